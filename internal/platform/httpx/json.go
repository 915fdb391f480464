package httpx

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
)

// maxBodyBytes caps request bodies on the JSON endpoints.
const maxBodyBytes = 1 << 20

// ErrInvalidBody is returned when a request body is empty, oversized or not JSON.
var ErrInvalidBody = errors.New("invalid JSON body")

// WriteJSON writes v as a JSON response with the given status code.
func WriteJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

// WriteError writes {"error": msg} with the given status code.
func WriteError(w http.ResponseWriter, code int, msg string) {
	WriteJSON(w, code, map[string]string{"error": msg})
}

// DecodeJSON decodes the request body into v regardless of Content-Type.
func DecodeJSON(r *http.Request, v any) error {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes+1))
	if err != nil || len(body) == 0 || len(body) > maxBodyBytes {
		return ErrInvalidBody
	}
	if err := json.Unmarshal(body, v); err != nil {
		return ErrInvalidBody
	}
	return nil
}

// DecodeObject decodes a JSON object body into its raw members so callers can
// tell absent fields from explicit nulls.
func DecodeObject(r *http.Request) (map[string]json.RawMessage, error) {
	var fields map[string]json.RawMessage
	if err := DecodeJSON(r, &fields); err != nil {
		return nil, err
	}
	if fields == nil {
		return nil, ErrInvalidBody
	}
	return fields, nil
}
