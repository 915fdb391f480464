package httpx

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeObject(t *testing.T) {
	r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"x":1,"text":null}`))
	fields, err := DecodeObject(r)
	require.NoError(t, err)
	assert.Equal(t, "1", string(fields["x"]))
	assert.Equal(t, "null", string(fields["text"]))
}

func TestDecodeObject_rejects(t *testing.T) {
	for _, body := range []string{"", "not json", "null", "[1,2]", `"str"`} {
		r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
		_, err := DecodeObject(r)
		assert.ErrorIs(t, err, ErrInvalidBody, "body %q", body)
	}
}

func TestWriteError(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteError(rec, http.StatusBadRequest, "rtsp_url required")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.JSONEq(t, `{"error":"rtsp_url required"}`, rec.Body.String())
}
