package http

import (
	"net/http"

	apperrors "datapulse/internal/errors"
)

// MetricsHandler serves the Prometheus scrape endpoint
type MetricsHandler struct {
	exposition   http.Handler
	errorHandler *apperrors.ErrorHandler
}

// NewMetricsHandler wraps the exposition handler of the telemetry
// registry. With a nil handler the endpoint answers 404.
func NewMetricsHandler(exposition http.Handler, errorHandler *apperrors.ErrorHandler) *MetricsHandler {
	if errorHandler == nil {
		errorHandler = apperrors.NewErrorHandler(nil, false)
	}
	return &MetricsHandler{exposition: exposition, errorHandler: errorHandler}
}

// ServeHTTP handles GET /metrics
func (h *MetricsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if h.exposition == nil {
		h.errorHandler.NotFound(w, r)
		return
	}
	h.exposition.ServeHTTP(w, r)
}
