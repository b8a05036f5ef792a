package http

import (
	"context"
	"io"

	"datapulse/internal/exporter"
	"datapulse/internal/session"
	"datapulse/pkg/contracts/domain"
)

// SessionStore defines the session lifecycle the handlers depend on
type SessionStore interface {
	Create(ctx context.Context) *session.Session
	Get(id string) (*session.Session, error)
	Delete(ctx context.Context, id string) error
}

// ReportWriter renders a report in one of the export formats
type ReportWriter interface {
	Write(ctx context.Context, out io.Writer, format exporter.Format, rep *domain.PerformanceReport) error
}

// Ensure the concrete types implement the interfaces
var (
	_ SessionStore = (*session.Store)(nil)
	_ ReportWriter = (*exporter.Writer)(nil)
)
