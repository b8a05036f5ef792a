package errors

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"datapulse/internal/shared/testutil"
)

func decodeProblem(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

func TestHandleErrorStatusMapping(t *testing.T) {
	verrs := &ValidationErrors{}
	verrs.Add(ErrTypeIncompleteAssignment, "credits", "1 subject(s) have no credit", "MA101")

	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantType   string
	}{
		{"file format", NewFileFormatError("a.csv", "unsupported extension", nil), http.StatusUnsupportedMediaType, TypeFileFormat},
		{"column missing", NewColumnMissingError("a.xlsx", []string{"GR"}), http.StatusUnprocessableEntity, TypeColumnMissing},
		{"batch limit", NewBatchLimitError(0, 10), http.StatusBadRequest, TypeBatchLimit},
		{"grade lookup", NewGradeLookupError("Z", "R1", "MA1", 1), http.StatusUnprocessableEntity, TypeGradeLookup},
		{"phase order", NewPhaseOrderError("current phase has not run"), http.StatusConflict, TypePhaseOrder},
		{"busy", NewBusyError("s"), http.StatusConflict, TypeSessionBusy},
		{"not found", NewNotFoundError("session"), http.StatusNotFound, TypeNotFound},
		{"credit set", verrs, http.StatusUnprocessableEntity, TypeCreditAssignment},
		{"api error", ErrRateLimitExceeded, http.StatusTooManyRequests, TypeRateLimit},
		{"payload", PayloadTooLarge(1024), http.StatusRequestEntityTooLarge, TypePayloadTooLarge},
		{"timeout", fmt.Errorf("compute: %w", context.DeadlineExceeded), http.StatusGatewayTimeout, TypeTimeout},
		{"unknown", stderrors.New("boom"), http.StatusInternalServerError, TypeInternal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logger, _ := testutil.NewTestLogger(t)
			h := NewErrorHandler(logger, false)

			req := httptest.NewRequest(http.MethodPost, "/api/v1/sessions/x/compute/current", nil)
			rec := httptest.NewRecorder()
			h.HandleError(rec, req, tt.err)

			assert.Equal(t, tt.wantStatus, rec.Code)
			body := decodeProblem(t, rec)
			assert.Equal(t, tt.wantType, body["type"])
			assert.Equal(t, float64(tt.wantStatus), body["status"])
			assert.Equal(t, "/api/v1/sessions/x/compute/current", body["instance"])
			assert.Contains(t, body, "trace_id")
		})
	}
}

func TestHandleErrorIncludesContextAndErrors(t *testing.T) {
	h := NewErrorHandler(nil, false)

	req := httptest.NewRequest(http.MethodPost, "/files", nil)
	rec := httptest.NewRecorder()
	h.HandleError(rec, req, NewColumnMissingError("march.xlsx", []string{"SEM", "GR"}))

	body := decodeProblem(t, rec)
	assert.Equal(t, "COLUMN_MISSING", body["error_code"])
	assert.Equal(t, "march.xlsx", body["file"])
	assert.Equal(t, []any{"SEM", "GR"}, body["columns"])

	verrs := &ValidationErrors{}
	verrs.Add(ErrTypeDuplicateSubject, "credits", "MA101 assigned more than once", "MA101")
	rec = httptest.NewRecorder()
	h.HandleError(rec, req, verrs)

	body = decodeProblem(t, rec)
	problems, ok := body["errors"].([]any)
	require.True(t, ok)
	require.Len(t, problems, 1)
	first := problems[0].(map[string]any)
	assert.Equal(t, "DUPLICATE_SUBJECT", first["code"])
	assert.Equal(t, []any{"MA101"}, first["subjects"])
}

func TestHandleErrorLogLevel(t *testing.T) {
	logger, handler := testutil.NewTestLogger(t)
	h := NewErrorHandler(logger, false)
	req := httptest.NewRequest(http.MethodGet, "/", nil)

	h.HandleError(httptest.NewRecorder(), req, NewBusyError("s"))
	h.HandleError(httptest.NewRecorder(), req, stderrors.New("boom"))
	h.HandleError(httptest.NewRecorder(), req, nil)

	assert.Len(t, handler.GetRecordsByLevel(slog.LevelWarn), 1)
	assert.Len(t, handler.GetRecordsByLevel(slog.LevelError), 1)
	assert.True(t, handler.ContainsAttr("component", "error_handler"))
}

func TestErrorMiddlewareRecoversPanic(t *testing.T) {
	logger, handler := testutil.NewTestLogger(t)
	mw := NewErrorMiddleware(NewErrorHandler(logger, true), logger)

	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("parser exploded")
	})

	rec := httptest.NewRecorder()
	mw.Handler(next).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/boom", nil))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	body := decodeProblem(t, rec)
	assert.Equal(t, "parser exploded", body["panic"])
	testutil.AssertLogContains(t, handler, slog.LevelError, "panic recovered")
	testutil.AssertLogContains(t, handler, slog.LevelError, "http request")
}

func TestErrorMiddlewareLogsRequests(t *testing.T) {
	logger, handler := testutil.NewTestLogger(t)
	mw := NewErrorMiddleware(NewErrorHandler(logger, false), logger)

	ok := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	mw.Handler(ok).ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/healthz?verbose=1", nil))

	testutil.AssertLogContains(t, handler, slog.LevelInfo, "http request")
	assert.True(t, handler.ContainsAttr("path", "/healthz"))
	assert.True(t, handler.ContainsAttr("query", "verbose=1"))
}

func TestNotFoundAndMethodNotAllowed(t *testing.T) {
	h := NewErrorHandler(nil, false)

	rec := httptest.NewRecorder()
	h.NotFound(rec, httptest.NewRequest(http.MethodGet, "/nope", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = httptest.NewRecorder()
	h.MethodNotAllowed(rec, httptest.NewRequest(http.MethodPatch, "/healthz", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
	assert.Contains(t, decodeProblem(t, rec)["detail"], "PATCH")
}
