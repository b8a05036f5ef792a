package http

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"github.com/go-playground/validator/v10"

	apperrors "datapulse/internal/errors"
	"datapulse/internal/exporter"
	"datapulse/internal/grading"
	"datapulse/internal/ingest"
	"datapulse/internal/middleware"
	"datapulse/internal/session"
	"datapulse/pkg/contracts/domain"
)

// uploadMemory is the multipart size kept in memory before spilling to disk
const uploadMemory = 32 << 20

// UploadField is the multipart field carrying result spreadsheets
const UploadField = "files"

type sessionCtxKey struct{}

// SessionHandler serves the analysis session API
type SessionHandler struct {
	store        SessionStore
	writer       ReportWriter
	limiter      *middleware.UploadLimiter
	validate     *validator.Validate
	errorHandler *apperrors.ErrorHandler
	logger       *slog.Logger
}

// NewSessionHandler creates the session handler. A nil limiter leaves
// uploads unthrottled.
func NewSessionHandler(store SessionStore, writer ReportWriter, limiter *middleware.UploadLimiter,
	errorHandler *apperrors.ErrorHandler, logger *slog.Logger) *SessionHandler {
	if logger == nil {
		logger = slog.Default()
	}
	if errorHandler == nil {
		errorHandler = apperrors.NewErrorHandler(logger, false)
	}
	return &SessionHandler{
		store:        store,
		writer:       writer,
		limiter:      limiter,
		validate:     validator.New(),
		errorHandler: errorHandler,
		logger:       logger.With(slog.String("component", "session_handler")),
	}
}

// Routes returns the session routes
func (h *SessionHandler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Post("/", h.Create)

	r.Route("/{sessionID}", func(r chi.Router) {
		r.Use(h.SessionCtx)

		r.Get("/", h.Get)
		r.Delete("/", h.Delete)
		r.Post("/reset", h.Reset)

		upload := r.With()
		if h.limiter != nil {
			upload = r.With(h.limiter.Handler)
		}
		upload.Post("/files", h.Upload)

		r.Get("/records", h.Records)
		r.Get("/departments", h.Departments)
		r.Get("/subjects", h.Subjects)
		r.Put("/credits/{phase}", h.SetCredits)
		r.Post("/compute/current", h.ComputeCurrent)
		r.Post("/compute/cumulative", h.ComputeCumulative)
		r.Get("/report", h.Report)
		r.Get("/export.{format}", h.Export)
	})

	return r
}

// SessionCtx loads the session named in the URL into the request context
func (h *SessionHandler) SessionCtx(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sess, err := h.store.Get(chi.URLParam(r, "sessionID"))
		if err != nil {
			h.errorHandler.HandleError(w, r, err)
			return
		}
		ctx := context.WithValue(r.Context(), sessionCtxKey{}, sess)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func sessionFrom(r *http.Request) *session.Session {
	sess, _ := r.Context().Value(sessionCtxKey{}).(*session.Session)
	return sess
}

// SessionView is the public summary of a session
type SessionView struct {
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"created_at"`
	Phase     string    `json:"phase"`
	Records   int       `json:"records"`
	Semesters []int     `json:"semesters"`
	Busy      bool      `json:"busy"`
}

func viewOf(sess *session.Session) SessionView {
	return SessionView{
		ID:        sess.ID,
		CreatedAt: sess.CreatedAt,
		Phase:     sess.Phase().String(),
		Records:   len(sess.Records()),
		Semesters: sess.Semesters(),
		Busy:      sess.Busy(),
	}
}

// CreditsRequest is the body of PUT /credits/{phase}
type CreditsRequest struct {
	Capabilities domain.CreditCapabilities `json:"capabilities"`
	Credits      []domain.SubjectCredit    `json:"credits"`
	Semesters    []int                     `json:"semesters,omitempty" validate:"omitempty,dive,gte=1"`
}

// ComputeRequest is the optional body of POST /compute/current
type ComputeRequest struct {
	Semesters []int `json:"semesters,omitempty" validate:"omitempty,dive,gte=1"`
}

// ComputeResponse carries one phase's results
type ComputeResponse struct {
	Phase    string                      `json:"phase"`
	Students []domain.StudentPerformance `json:"students"`
}

// Create handles POST /sessions
func (h *SessionHandler) Create(w http.ResponseWriter, r *http.Request) {
	sess := h.store.Create(r.Context())
	respond(w, r, http.StatusCreated, viewOf(sess))
}

// Get handles GET /sessions/{id}
func (h *SessionHandler) Get(w http.ResponseWriter, r *http.Request) {
	respond(w, r, http.StatusOK, viewOf(sessionFrom(r)))
}

// Delete handles DELETE /sessions/{id}
func (h *SessionHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.store.Delete(r.Context(), sessionFrom(r).ID); err != nil {
		h.errorHandler.HandleError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Reset handles POST /sessions/{id}/reset
func (h *SessionHandler) Reset(w http.ResponseWriter, r *http.Request) {
	sess := sessionFrom(r)
	if err := sess.Reset(r.Context()); err != nil {
		h.errorHandler.HandleError(w, r, err)
		return
	}
	respond(w, r, http.StatusOK, viewOf(sess))
}

// Upload handles POST /sessions/{id}/files
func (h *SessionHandler) Upload(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if err := r.ParseMultipartForm(uploadMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			h.errorHandler.HandleError(w, r, apperrors.PayloadTooLarge(tooLarge.Limit))
			return
		}
		h.errorHandler.HandleError(w, r, apperrors.InvalidRequestWithError(err))
		return
	}
	defer r.MultipartForm.RemoveAll()

	headers := r.MultipartForm.File[UploadField]
	if len(headers) == 0 {
		h.errorHandler.HandleError(w, r, apperrors.ErrValidation(UploadField, "at least one spreadsheet is required"))
		return
	}

	sources := make([]ingest.Source, 0, len(headers))
	for _, fh := range headers {
		f, err := fh.Open()
		if err != nil {
			h.errorHandler.HandleError(w, r, apperrors.InvalidRequestWithError(err))
			return
		}
		data, err := io.ReadAll(f)
		f.Close()
		if err != nil {
			h.errorHandler.HandleError(w, r, apperrors.InvalidRequestWithError(err))
			return
		}
		sources = append(sources, ingest.Source{Name: fh.Filename, Data: data})
	}

	res, err := sessionFrom(r).Ingest(ctx, sources)
	if err != nil {
		h.errorHandler.HandleError(w, r, err)
		return
	}

	h.logger.InfoContext(ctx, "files uploaded",
		slog.Int("files", res.Files),
		slog.Int("records", res.Records))
	respond(w, r, http.StatusOK, res)
}

// Records handles GET /sessions/{id}/records, optionally ?department=
func (h *SessionHandler) Records(w http.ResponseWriter, r *http.Request) {
	recs := sessionFrom(r).DepartmentRecords(r.URL.Query().Get("department"))
	if recs == nil {
		recs = []domain.StudentRecord{}
	}
	respond(w, r, http.StatusOK, recs)
}

// Departments handles GET /sessions/{id}/departments
func (h *SessionHandler) Departments(w http.ResponseWriter, r *http.Request) {
	depts := sessionFrom(r).Departments()
	if depts == nil {
		depts = []domain.DepartmentStats{}
	}
	respond(w, r, http.StatusOK, depts)
}

// Subjects handles GET /sessions/{id}/subjects
func (h *SessionHandler) Subjects(w http.ResponseWriter, r *http.Request) {
	sess := sessionFrom(r)
	subjects := sess.Subjects()
	if subjects == nil {
		subjects = []string{}
	}
	semesters := sess.Semesters()
	if semesters == nil {
		semesters = []int{}
	}
	respond(w, r, http.StatusOK, map[string]interface{}{
		"subjects":  subjects,
		"semesters": semesters,
	})
}

// SetCredits handles PUT /sessions/{id}/credits/{phase}
func (h *SessionHandler) SetCredits(w http.ResponseWriter, r *http.Request) {
	var req CreditsRequest
	if err := h.bind(r, &req); err != nil {
		h.errorHandler.HandleError(w, r, err)
		return
	}

	sess := sessionFrom(r)
	set := grading.CreditSet{Entries: req.Credits, Capabilities: req.Capabilities}

	var err error
	switch phase := chi.URLParam(r, "phase"); phase {
	case grading.PhaseCurrent.String():
		err = sess.SetCurrentCredits(r.Context(), set, req.Semesters)
	case grading.PhaseCumulative.String():
		err = sess.SetCumulativeCredits(r.Context(), set)
	default:
		err = apperrors.ErrValidation("phase", fmt.Sprintf("unknown phase %q (want current or cumulative)", phase))
	}
	if err != nil {
		h.errorHandler.HandleError(w, r, err)
		return
	}

	respond(w, r, http.StatusOK, map[string]interface{}{
		"phase":   chi.URLParam(r, "phase"),
		"entries": len(req.Credits),
	})
}

// ComputeCurrent handles POST /sessions/{id}/compute/current
func (h *SessionHandler) ComputeCurrent(w http.ResponseWriter, r *http.Request) {
	var req ComputeRequest
	if err := h.bindOptional(r, &req); err != nil {
		h.errorHandler.HandleError(w, r, err)
		return
	}

	perfs, err := sessionFrom(r).ComputeCurrent(r.Context(), req.Semesters)
	if err != nil {
		h.errorHandler.HandleError(w, r, err)
		return
	}
	respond(w, r, http.StatusOK, ComputeResponse{Phase: grading.PhaseCurrent.String(), Students: perfs})
}

// ComputeCumulative handles POST /sessions/{id}/compute/cumulative
func (h *SessionHandler) ComputeCumulative(w http.ResponseWriter, r *http.Request) {
	perfs, err := sessionFrom(r).ComputeCumulative(r.Context())
	if err != nil {
		h.errorHandler.HandleError(w, r, err)
		return
	}
	respond(w, r, http.StatusOK, ComputeResponse{Phase: grading.PhaseCumulative.String(), Students: perfs})
}

// Report handles GET /sessions/{id}/report
func (h *SessionHandler) Report(w http.ResponseWriter, r *http.Request) {
	rep, err := sessionFrom(r).Report(r.Context(), r.URL.Query().Get("department"))
	if err != nil {
		h.errorHandler.HandleError(w, r, err)
		return
	}
	respond(w, r, http.StatusOK, rep)
}

// Export handles GET /sessions/{id}/export.{format}
func (h *SessionHandler) Export(w http.ResponseWriter, r *http.Request) {
	format, err := exporter.ParseFormat(chi.URLParam(r, "format"))
	if err != nil {
		h.errorHandler.HandleError(w, r, apperrors.ErrValidation("format", err.Error()))
		return
	}

	sess := sessionFrom(r)
	rep, err := sess.Report(r.Context(), r.URL.Query().Get("department"))
	if err != nil {
		h.errorHandler.HandleError(w, r, err)
		return
	}

	// rendered in full first so a failure can still become a problem document
	var buf bytes.Buffer
	if err := h.writer.Write(r.Context(), &buf, format, rep); err != nil {
		h.errorHandler.HandleError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", format.ContentType())
	w.Header().Set("Content-Disposition",
		fmt.Sprintf(`attachment; filename="datapulse-%s-%s.%s"`, sess.ID, rep.Phase, format))
	w.WriteHeader(http.StatusOK)
	if _, err := buf.WriteTo(w); err != nil {
		h.logger.WarnContext(r.Context(), "export write interrupted", slog.String("error", err.Error()))
	}
}

// bind decodes a JSON body into v and validates it
func (h *SessionHandler) bind(r *http.Request, v interface{}) error {
	if err := render.DecodeJSON(r.Body, v); err != nil {
		return apperrors.InvalidRequestWithError(err)
	}
	return h.check(v)
}

// bindOptional is bind for endpoints whose body may be empty
func (h *SessionHandler) bindOptional(r *http.Request, v interface{}) error {
	if r.Body == nil || r.Body == http.NoBody {
		return nil
	}
	if err := render.DecodeJSON(r.Body, v); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return apperrors.InvalidRequestWithError(err)
	}
	return h.check(v)
}

func (h *SessionHandler) check(v interface{}) error {
	err := h.validate.Struct(v)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
		fe := fieldErrs[0]
		return apperrors.ErrValidation(fe.Namespace(), fmt.Sprintf("failed %q validation", fe.Tag()))
	}
	return apperrors.InvalidRequestWithError(err)
}

// respond writes data in the success envelope
func respond(w http.ResponseWriter, r *http.Request, status int, data interface{}) {
	render.Status(r, status)
	render.JSON(w, r, map[string]interface{}{
		"status": "success",
		"data":   data,
	})
}
