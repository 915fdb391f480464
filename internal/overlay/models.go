package overlay

import (
	"errors"
)

// Overlay types.
const (
	TypeText  = "text"
	TypeImage = "image"
)

// Overlay is a positioned annotation drawn over one stream. Nullable
// attributes are pointers and serialize as null when unset.
type Overlay struct {
	ID        string   `json:"_id"`
	StreamKey string   `json:"stream_key"`
	Type      string   `json:"type"`
	X         int      `json:"x"`
	Y         int      `json:"y"`
	Width     *float64 `json:"width"`
	Height    *float64 `json:"height"`
	Opacity   float64  `json:"opacity"`
	Text      *string  `json:"text"`
	Color     *string  `json:"color"`
	BgColor   *string  `json:"bgColor"`
	FontSize  *float64 `json:"fontSize"`
	URL       *string  `json:"url"`
	Alt       *string  `json:"alt"`
}

// New returns an overlay for streamKey with the documented defaults:
// type text at (0,0), fully opaque, every other attribute null.
func New(streamKey string) Overlay {
	return Overlay{
		StreamKey: streamKey,
		Type:      TypeText,
		Opacity:   1,
	}
}

var (
	// ErrNotFound is returned when no overlay has the requested id.
	ErrNotFound = errors.New("not found")

	// ErrNoFields is returned by updates that name no mutable field.
	ErrNoFields = errors.New("no fields to update")
)

// ValidationError reports a missing or ill-typed field.
type ValidationError struct {
	Field string
	Msg   string
}

func (e *ValidationError) Error() string {
	return e.Msg
}
