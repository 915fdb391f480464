package overlay

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"sort"
)

// Mutable fields, in the order they are applied and persisted.
var fieldOrder = []string{
	"stream_key", "type", "x", "y", "width", "height", "opacity",
	"text", "color", "bgColor", "fontSize", "url", "alt",
}

var allowed = func() map[string]int {
	m := make(map[string]int, len(fieldOrder))
	for i, f := range fieldOrder {
		m[f] = i
	}
	return m
}()

// Field is one validated attribute assignment. Value holds string, int,
// float64, *string or *float64 depending on the field.
type Field struct {
	Name  string
	Value any
}

// Patch is a validated set of field assignments.
type Patch []Field

// Apply writes every assignment in p to o.
func (p Patch) Apply(o *Overlay) {
	for _, f := range p {
		switch f.Name {
		case "stream_key":
			o.StreamKey = f.Value.(string)
		case "type":
			o.Type = f.Value.(string)
		case "x":
			o.X = f.Value.(int)
		case "y":
			o.Y = f.Value.(int)
		case "width":
			o.Width = f.Value.(*float64)
		case "height":
			o.Height = f.Value.(*float64)
		case "opacity":
			o.Opacity = f.Value.(float64)
		case "text":
			o.Text = f.Value.(*string)
		case "color":
			o.Color = f.Value.(*string)
		case "bgColor":
			o.BgColor = f.Value.(*string)
		case "fontSize":
			o.FontSize = f.Value.(*float64)
		case "url":
			o.URL = f.Value.(*string)
		case "alt":
			o.Alt = f.Value.(*string)
		}
	}
}

// Map returns the assignments keyed by field name, for stores that update
// documents in place.
func (p Patch) Map() map[string]any {
	m := make(map[string]any, len(p))
	for _, f := range p {
		m[f.Name] = f.Value
	}
	return m
}

// ParsePatch validates the recognized members of a request body. Unknown
// members are ignored; a body with no recognized member yields ErrNoFields.
func ParsePatch(raw map[string]json.RawMessage) (Patch, error) {
	var p Patch
	for name, value := range raw {
		if _, ok := allowed[name]; !ok {
			continue
		}
		v, err := decodeField(name, value)
		if err != nil {
			return nil, err
		}
		p = append(p, Field{Name: name, Value: v})
	}
	if len(p) == 0 {
		return nil, ErrNoFields
	}
	sort.Slice(p, func(i, j int) bool { return allowed[p[i].Name] < allowed[p[j].Name] })
	return p, nil
}

// Build validates a create request: stream_key is required, everything else
// falls back to the defaults of New.
func Build(raw map[string]json.RawMessage) (Overlay, error) {
	if _, ok := raw["stream_key"]; !ok {
		return Overlay{}, &ValidationError{Field: "stream_key", Msg: "stream_key required"}
	}
	p, err := ParsePatch(raw)
	if err != nil {
		return Overlay{}, err
	}
	o := New("")
	p.Apply(&o)
	return o, nil
}

func decodeField(name string, raw json.RawMessage) (any, error) {
	isNull := bytes.Equal(bytes.TrimSpace(raw), []byte("null"))

	switch name {
	case "stream_key":
		var s string
		if isNull || json.Unmarshal(raw, &s) != nil || s == "" {
			return nil, invalid(name, "must be a non-empty string")
		}
		return s, nil

	case "type":
		var s string
		if isNull || json.Unmarshal(raw, &s) != nil || (s != TypeText && s != TypeImage) {
			return nil, invalid(name, fmt.Sprintf("must be %q or %q", TypeText, TypeImage))
		}
		return s, nil

	case "x", "y":
		var f float64
		if isNull || json.Unmarshal(raw, &f) != nil {
			return nil, invalid(name, "must be a number")
		}
		if math.IsNaN(f) || f < math.MinInt32 || f > math.MaxInt32 {
			return nil, invalid(name, "must be a number in range")
		}
		return int(f), nil

	case "opacity":
		var f float64
		if isNull || json.Unmarshal(raw, &f) != nil || f < 0 || f > 1 {
			return nil, invalid(name, "must be a number between 0 and 1")
		}
		return f, nil

	case "width", "height", "fontSize":
		if isNull {
			return (*float64)(nil), nil
		}
		var f float64
		if json.Unmarshal(raw, &f) != nil {
			return nil, invalid(name, "must be a number or null")
		}
		return &f, nil

	default:
		if isNull {
			return (*string)(nil), nil
		}
		var s string
		if json.Unmarshal(raw, &s) != nil {
			return nil, invalid(name, "must be a string or null")
		}
		return &s, nil
	}
}

func invalid(field, reason string) *ValidationError {
	return &ValidationError{Field: field, Msg: field + " " + reason}
}
