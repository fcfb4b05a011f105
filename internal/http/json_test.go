package httpx

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDecodeJSONLimit(t *testing.T) {
	t.Run("within limit", func(t *testing.T) {
		var dst struct {
			Email string `json:"email"`
		}
		req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"email":"ada@example.com"}`))
		rec := httptest.NewRecorder()

		assert.True(t, DecodeJSONLimit(rec, req, &dst, 64))
		assert.Equal(t, "ada@example.com", dst.Email)
	})

	t.Run("too large", func(t *testing.T) {
		var dst map[string]string
		body := `{"email":"` + strings.Repeat("a", 128) + `"}`
		req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
		rec := httptest.NewRecorder()

		assert.False(t, DecodeJSONLimit(rec, req, &dst, 32))
		assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
		assert.Equal(t, "body_too_large", decodeError(t, rec)["error"])
	})
}

func TestWriteValidationError(t *testing.T) {
	rec := httptest.NewRecorder()

	WriteValidationError(rec, "invalid registration request", map[string]string{"email": "email must be valid"})

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.JSONEq(t,
		`{"error":"validation_failed","message":"invalid registration request","fields":{"email":"email must be valid"}}`,
		rec.Body.String())
}
