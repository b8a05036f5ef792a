package http

import (
	"bytes"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "datapulse/internal/errors"
	"datapulse/internal/exporter"
	"datapulse/internal/grading"
	"datapulse/internal/middleware"
	"datapulse/internal/session"
	"datapulse/internal/shared/testutil"
	"datapulse/pkg/contracts/domain"
)

type envelope struct {
	Status string          `json:"status"`
	Data   json.RawMessage `json:"data"`
}

type testServer struct {
	t      *testing.T
	router http.Handler
	store  *session.Store
}

func newTestServer(t *testing.T, limiter *middleware.UploadLimiter) *testServer {
	t.Helper()
	logger, _ := testutil.NewTestLogger(t)

	store := session.NewStore(session.Options{
		Grading:       grading.Options{Precision: 2},
		TopPerformers: 5,
	}, nil, logger)
	h := NewSessionHandler(store, exporter.NewWriter(logger), limiter,
		apperrors.NewErrorHandler(logger, false), logger)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Mount("/sessions", h.Routes())
	return &testServer{t: t, router: r, store: store}
}

func (s *testServer) do(method, path string, body io.Reader, contentType string) *httptest.ResponseRecorder {
	s.t.Helper()
	req := httptest.NewRequest(method, path, body)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

func (s *testServer) doJSON(method, path, body string) *httptest.ResponseRecorder {
	s.t.Helper()
	return s.do(method, path, strings.NewReader(body), "application/json")
}

func (s *testServer) create() string {
	s.t.Helper()
	rec := s.do(http.MethodPost, "/sessions", nil, "")
	require.Equal(s.t, http.StatusCreated, rec.Code)

	var view SessionView
	decodeData(s.t, rec, &view)
	require.NotEmpty(s.t, view.ID)
	return view.ID
}

func (s *testServer) upload(id string, files map[string][]byte) *httptest.ResponseRecorder {
	s.t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	for name, data := range files {
		part, err := mw.CreateFormFile(UploadField, name)
		require.NoError(s.t, err)
		_, err = part.Write(data)
		require.NoError(s.t, err)
	}
	require.NoError(s.t, mw.Close())
	return s.do(http.MethodPost, "/sessions/"+id+"/files", &body, mw.FormDataContentType())
}

func decodeData(t *testing.T, rec *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	var env envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env), rec.Body.String())
	require.Equal(t, "success", env.Status)
	require.NoError(t, json.Unmarshal(env.Data, v))
}

func decodeProblem(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var problem map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &problem), rec.Body.String())
	return problem
}

func scenarioWorkbook(t *testing.T) []byte {
	return testutil.NewResultsWorkbook(t,
		testutil.ResultRow(1, "S1", "CS101", "A", "CS"),
		testutil.ResultRow(1, "S1", "CS102", "B", "CS"),
		testutil.ResultRow(1, "E1", "CS101", "O", "EC"),
		testutil.ResultRow(1, "E1", "CS102", "O", "EC"),
	)
}

const scenarioCredits = `{
	"capabilities": {"with_names": true},
	"credits": [
		{"subject_code": "CS102", "credit_value": 3, "subject_name": "Data Structures"},
		{"subject_code": "CS101", "credit_value": 4, "subject_name": "Programming"}
	]
}`

func TestSessionHandlerCurrentFlow(t *testing.T) {
	srv := newTestServer(t, nil)
	id := srv.create()

	rec := srv.upload(id, map[string][]byte{"sem1.xlsx": scenarioWorkbook(t)})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var ingested session.IngestResult
	decodeData(t, rec, &ingested)
	assert.Equal(t, 4, ingested.Records)

	rec = srv.do(http.MethodGet, "/sessions/"+id+"/subjects", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	var subjects struct {
		Subjects  []string `json:"subjects"`
		Semesters []int    `json:"semesters"`
	}
	decodeData(t, rec, &subjects)
	assert.Equal(t, []string{"CS101", "CS102"}, subjects.Subjects)
	assert.Equal(t, []int{1}, subjects.Semesters)

	rec = srv.do(http.MethodGet, "/sessions/"+id+"/departments", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"distinct_student_count":1`)

	rec = srv.do(http.MethodGet, "/sessions/"+id+"/records?department=EC", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	var recs []domain.StudentRecord
	decodeData(t, rec, &recs)
	require.Len(t, recs, 2)
	assert.Equal(t, "E1", recs[0].RegistrationNumber)

	rec = srv.doJSON(http.MethodPut, "/sessions/"+id+"/credits/current", scenarioCredits)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = srv.do(http.MethodPost, "/sessions/"+id+"/compute/current", nil, "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var computed ComputeResponse
	decodeData(t, rec, &computed)
	assert.Equal(t, "current", computed.Phase)
	require.Len(t, computed.Students, 2)
	for _, p := range computed.Students {
		switch p.RegistrationNumber {
		case "S1":
			assert.Equal(t, 7.14, p.SGPABySemester[1])
		case "E1":
			assert.Equal(t, 10.0, p.SGPABySemester[1])
		}
	}

	rec = srv.do(http.MethodGet, "/sessions/"+id+"/report", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	var rep struct {
		Comparison []struct {
			DepartmentCode       string `json:"department_code"`
			DistinctStudentCount int    `json:"distinct_student_count"`
		} `json:"comparison"`
	}
	decodeData(t, rec, &rep)
	require.Len(t, rep.Comparison, 2)
	assert.Equal(t, "CS", rep.Comparison[0].DepartmentCode)
	assert.Equal(t, 1, rep.Comparison[0].DistinctStudentCount)

	rec = srv.do(http.MethodGet, "/sessions/"+id+"/export.csv?department=CS", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, exporter.FormatCSV.ContentType(), rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "datapulse-"+id)
	assert.Contains(t, rec.Body.String(), "S1,CS,1,CS101,A")
	assert.NotContains(t, rec.Body.String(), "E1")
}

func TestSessionHandlerIncompleteCredits(t *testing.T) {
	srv := newTestServer(t, nil)
	id := srv.create()
	require.Equal(t, http.StatusOK, srv.upload(id, map[string][]byte{"sem1.xlsx": scenarioWorkbook(t)}).Code)

	rec := srv.doJSON(http.MethodPut, "/sessions/"+id+"/credits/current",
		`{"credits": [{"subject_code": "CS101", "credit_value": 4}]}`)
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	problem := decodeProblem(t, rec)
	assert.Equal(t, apperrors.TypeCreditAssignment, problem["type"])
	errs, ok := problem["errors"].([]interface{})
	require.True(t, ok)
	require.Len(t, errs, 1)
	first := errs[0].(map[string]interface{})
	assert.Equal(t, string(apperrors.ErrTypeIncompleteAssignment), first["code"])
	assert.Equal(t, []interface{}{"CS102"}, first["subjects"])

	rec = srv.do(http.MethodGet, "/sessions/"+id+"/report", nil, "")
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestSessionHandlerErrors(t *testing.T) {
	srv := newTestServer(t, nil)
	id := srv.create()

	tests := []struct {
		name       string
		method     string
		path       string
		body       string
		wantStatus int
		wantType   string
	}{
		{"unknown session", http.MethodGet, "/sessions/missing/subjects", "", http.StatusNotFound, apperrors.TypeNotFound},
		{"cumulative before current", http.MethodPost, "/sessions/" + id + "/compute/cumulative", "", http.StatusConflict, apperrors.TypePhaseOrder},
		{"unknown phase", http.MethodPut, "/sessions/" + id + "/credits/final", `{"credits": []}`, http.StatusBadRequest, apperrors.TypeValidation},
		{"malformed body", http.MethodPut, "/sessions/" + id + "/credits/current", `{"credits": `, http.StatusBadRequest, apperrors.TypeValidation},
		{"bad semester", http.MethodPost, "/sessions/" + id + "/compute/current", `{"semesters": [0]}`, http.StatusBadRequest, apperrors.TypeValidation},
		{"unknown export format", http.MethodGet, "/sessions/" + id + "/export.pdf", "", http.StatusBadRequest, apperrors.TypeValidation},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var rec *httptest.ResponseRecorder
			if tt.body != "" {
				rec = srv.doJSON(tt.method, tt.path, tt.body)
			} else {
				rec = srv.do(tt.method, tt.path, nil, "")
			}
			assert.Equal(t, tt.wantStatus, rec.Code, rec.Body.String())
			assert.Equal(t, tt.wantType, decodeProblem(t, rec)["type"])
		})
	}
}

func TestSessionHandlerUploadRejected(t *testing.T) {
	srv := newTestServer(t, nil)
	id := srv.create()

	t.Run("no files", func(t *testing.T) {
		rec := srv.upload(id, nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("not a spreadsheet", func(t *testing.T) {
		rec := srv.upload(id, map[string][]byte{"notes.xlsx": []byte("plain text, not a workbook")})
		assert.Equal(t, http.StatusUnsupportedMediaType, rec.Code)
		assert.Equal(t, apperrors.TypeFileFormat, decodeProblem(t, rec)["type"])
	})

	t.Run("missing column", func(t *testing.T) {
		data := testutil.NewWorkbook(t, "Results", []any{"SEM", "REGNO", "GR"}, []any{1, "S1", "A"})
		rec := srv.upload(id, map[string][]byte{"bad.xlsx": data})
		assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
		assert.Equal(t, apperrors.TypeColumnMissing, decodeProblem(t, rec)["type"])
	})
}

func TestSessionHandlerUploadRateLimited(t *testing.T) {
	logger, _ := testutil.NewTestLogger(t)
	srv := newTestServer(t, middleware.NewUploadLimiter(0.001, 1, 0, logger))
	id := srv.create()

	files := map[string][]byte{"sem1.xlsx": scenarioWorkbook(t)}
	require.Equal(t, http.StatusOK, srv.upload(id, files).Code)
	assert.Equal(t, http.StatusTooManyRequests, srv.upload(id, files).Code)
}

func TestSessionHandlerLifecycle(t *testing.T) {
	srv := newTestServer(t, nil)
	id := srv.create()
	assert.Equal(t, 1, srv.store.Len())

	rec := srv.do(http.MethodGet, "/sessions/"+id, nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	var view SessionView
	decodeData(t, rec, &view)
	assert.Equal(t, "idle", view.Phase)

	require.Equal(t, http.StatusOK, srv.upload(id, map[string][]byte{"sem1.xlsx": scenarioWorkbook(t)}).Code)
	rec = srv.do(http.MethodPost, "/sessions/"+id+"/reset", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	decodeData(t, rec, &view)
	assert.Zero(t, view.Records)

	assert.Equal(t, http.StatusNoContent, srv.do(http.MethodDelete, "/sessions/"+id, nil, "").Code)
	assert.Equal(t, 0, srv.store.Len())
	assert.Equal(t, http.StatusNotFound, srv.do(http.MethodDelete, "/sessions/"+id, nil, "").Code)
}
