package shared

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dErrors "rightsledger/pkg/domain-errors"
)

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
	return body
}

func TestWriteError(t *testing.T) {
	t.Run("internal error hides the cause", func(t *testing.T) {
		w := httptest.NewRecorder()
		WriteError(w, dErrors.Wrap(errors.New("pq: relation missing"), dErrors.CodeInternal, "failed to persist transfer"))

		assert.Equal(t, http.StatusInternalServerError, w.Code)
		body := decode(t, w)
		assert.Equal(t, "internal", body["error"])
		assert.Equal(t, "internal server error", body["error_description"])
	})

	t.Run("plain errors are internal", func(t *testing.T) {
		w := httptest.NewRecorder()
		WriteError(w, errors.New("boom"))

		assert.Equal(t, http.StatusInternalServerError, w.Code)
		assert.Equal(t, "internal", decode(t, w)["error"])
	})

	t.Run("validation keeps its description", func(t *testing.T) {
		w := httptest.NewRecorder()
		WriteError(w, dErrors.New(dErrors.CodeValidation, "scope total would reach 1.1"))

		assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
		body := decode(t, w)
		assert.Equal(t, "validation", body["error"])
		assert.Equal(t, "scope total would reach 1.1", body["error_description"])
		assert.NotContains(t, body, "retryable")
	})

	t.Run("concurrency is retryable", func(t *testing.T) {
		w := httptest.NewRecorder()
		WriteError(w, dErrors.New(dErrors.CodeConcurrency, "lock wait exceeded"))

		assert.Equal(t, http.StatusConflict, w.Code)
		assert.Equal(t, true, decode(t, w)["retryable"])
	})
}
