package errors

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestAPIErrorError(t *testing.T) {
	err := New(http.StatusNotFound, "NOT_FOUND", "thing is gone")
	assert.Equal(t, "thing is gone", err.Error())
	assert.Equal(t, http.StatusNotFound, err.StatusCode)
}

func TestMissingColumnsError(t *testing.T) {
	err := MissingColumnsError([]string{"Quantidade", "Área"})
	assert.Equal(t, "MISSING_COLUMNS", err.ErrorCode)
	assert.Contains(t, err.Message, "Quantidade, Área")

	details, ok := err.Details.(map[string][]string)
	require.True(t, ok)
	assert.Equal(t, []string{"Quantidade", "Área"}, details["missing_columns"])
}

func TestUnreadableFileError(t *testing.T) {
	err := UnreadableFileError(fmt.Errorf("bad zip"), fmt.Errorf("bad ole"))
	assert.Equal(t, "UNREADABLE_FILE", err.ErrorCode)
	assert.Equal(t, http.StatusUnprocessableEntity, err.StatusCode)

	details, ok := err.Details.(map[string]string)
	require.True(t, ok)
	assert.Equal(t, "bad zip", details["primary_engine"])
	assert.Equal(t, "bad ole", details["fallback_engine"])
}

func handleAndDecode(t *testing.T, err error) (int, map[string]interface{}) {
	t.Helper()

	h := NewErrorHandler(testLogger(), false)
	req := httptest.NewRequest(http.MethodGet, "/api/test", nil)
	rec := httptest.NewRecorder()
	h.HandleError(rec, req, err)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "application/problem+json", rec.Header().Get("Content-Type"))
	return rec.Code, body
}

func TestHandleErrorMapsAPIErrors(t *testing.T) {
	tests := []struct {
		name       string
		err        *APIError
		wantStatus int
		wantType   string
	}{
		{"dataset not found", DatasetNotFoundError("sess-1"), http.StatusNotFound, TypeNotFound},
		{"unreadable file", ErrUnreadableFile, http.StatusUnprocessableEntity, TypeUnreadableFile},
		{"missing columns", MissingColumnsError([]string{"Área"}), http.StatusUnprocessableEntity, TypeMissingColumns},
		{"empty dataset", ErrEmptyDataset, http.StatusUnprocessableEntity, TypeEmptyDataset},
		{"validation", ErrValidation("kind", "bad"), http.StatusBadRequest, TypeValidation},
		{"payload too large", ErrPayloadTooLarge, http.StatusRequestEntityTooLarge, TypePayloadTooLarge},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, body := handleAndDecode(t, tt.err)
			assert.Equal(t, tt.wantStatus, status)
			assert.Equal(t, tt.wantType, body["type"])
			assert.Equal(t, tt.err.ErrorCode, body["error_code"])
			assert.Equal(t, "/api/test", body["instance"])
		})
	}
}

func TestHandleErrorWrappedAPIError(t *testing.T) {
	wrapped := fmt.Errorf("saida.xlsx: %w", ErrEmptyDataset)
	status, body := handleAndDecode(t, wrapped)
	assert.Equal(t, http.StatusUnprocessableEntity, status)
	assert.Equal(t, TypeEmptyDataset, body["type"])
}

func TestHandleErrorUnknownErrorIsInternal(t *testing.T) {
	status, body := handleAndDecode(t, fmt.Errorf("something odd"))
	assert.Equal(t, http.StatusInternalServerError, status)
	assert.Equal(t, TypeInternal, body["type"])
	// Internal details are not leaked.
	assert.NotContains(t, fmt.Sprint(body["detail"]), "something odd")
}

func TestProblemDetailsMarshalIncludesExtensions(t *testing.T) {
	pd := NewProblemDetails(http.StatusBadRequest, TypeValidation, "Bad Request", "nope", "/api/x").
		WithExtension("error_code", "VALIDATION_FAILED")

	data, err := json.Marshal(pd)
	require.NoError(t, err)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &body))
	assert.Equal(t, "VALIDATION_FAILED", body["error_code"])
	assert.Equal(t, float64(http.StatusBadRequest), body["status"])
}
