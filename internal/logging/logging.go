// Package logging builds the logrus logger shared by every component and
// decorates entries with the identifiers carried in the request context.
package logging

import (
	"context"
	"io"
	"os"
	"strings"

	"github.com/RezaEskandarii/genjob/internal/jobctx"
	"github.com/sirupsen/logrus"
)

const (
	FieldProjectID     = "project_id"
	FieldJobID         = "job_id"
	FieldCorrelationID = "correlation_id"
	FieldComponent     = "component"
)

// Options configures New.
type Options struct {
	Level  string // trace, debug, info, warn, error
	Format string // json or text
	Output io.Writer
}

// New creates a logger. Unknown levels fall back to info.
func New(opts Options) *logrus.Logger {
	l := logrus.New()

	switch strings.ToLower(opts.Format) {
	case "text":
		l.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	default:
		l.SetFormatter(&logrus.JSONFormatter{})
	}

	level, err := logrus.ParseLevel(opts.Level)
	if err != nil {
		level = logrus.InfoLevel
	}
	l.SetLevel(level)

	if opts.Output != nil {
		l.SetOutput(opts.Output)
	} else {
		l.SetOutput(os.Stdout)
	}
	return l
}

// Discard returns a logger that drops everything; handy as a default.
func Discard() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

// Component returns an entry tagged with the component name.
func Component(l logrus.FieldLogger, name string) *logrus.Entry {
	if l == nil {
		l = Discard()
	}
	return l.WithField(FieldComponent, name)
}

// FromContext decorates l with the identifiers found in ctx.
func FromContext(ctx context.Context, l logrus.FieldLogger) *logrus.Entry {
	if l == nil {
		l = Discard()
	}
	fields := logrus.Fields{}
	if v := jobctx.ProjectID(ctx); v != "" {
		fields[FieldProjectID] = v
	}
	if v := jobctx.JobID(ctx); v != "" {
		fields[FieldJobID] = v
	}
	if v := jobctx.CorrelationID(ctx); v != "" {
		fields[FieldCorrelationID] = v
	}
	return l.WithFields(fields)
}
