// Package logging provides structured logging for all core worker processes.
package logging

import (
	"context"
	"os"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

// ContextKey is the type for context keys used to carry logging metadata.
type ContextKey string

const (
	// JobIDKey is the context key for the job a log line belongs to.
	JobIDKey ContextKey = "job_id"
	// EventIDKey is the context key for the event currently being handled.
	EventIDKey ContextKey = "event_id"
)

// Logger wraps logrus.Logger with service-scoped defaults.
type Logger struct {
	*logrus.Logger
	service string
}

// New creates a Logger for service with an explicit level and format.
func New(service, level, format string) *Logger {
	l := logrus.New()

	parsed, err := logrus.ParseLevel(level)
	if err != nil {
		parsed = logrus.InfoLevel
	}
	l.SetLevel(parsed)

	if strings.EqualFold(format, "json") {
		l.SetFormatter(&logrus.JSONFormatter{
			TimestampFormat: time.RFC3339Nano,
			FieldMap: logrus.FieldMap{
				logrus.FieldKeyTime:  "timestamp",
				logrus.FieldKeyLevel: "level",
				logrus.FieldKeyMsg:   "message",
			},
		})
	} else {
		l.SetFormatter(&logrus.TextFormatter{
			TimestampFormat: time.RFC3339,
			FullTimestamp:   true,
		})
	}

	l.SetOutput(os.Stdout)

	return &Logger{Logger: l, service: service}
}

// NewFromEnv builds a logger using LOG_LEVEL and LOG_FORMAT, defaulting to
// info/json when unset.
func NewFromEnv(service string) *Logger {
	level := strings.TrimSpace(os.Getenv("LOG_LEVEL"))
	if level == "" {
		level = "info"
	}
	format := strings.TrimSpace(os.Getenv("LOG_FORMAT"))
	if format == "" {
		format = "json"
	}
	return New(service, level, format)
}

// WithField returns a log entry annotated with service and the given field.
func (l *Logger) WithField(key string, value interface{}) *logrus.Entry {
	return l.Logger.WithField("service", l.service).WithField(key, value)
}

// WithFields returns a log entry annotated with service and the given fields.
func (l *Logger) WithFields(fields logrus.Fields) *logrus.Entry {
	fields["service"] = l.service
	return l.Logger.WithFields(fields)
}

// WithContext extracts job_id/event_id carried on ctx, if present, into a log entry.
func (l *Logger) WithContext(ctx context.Context) *logrus.Entry {
	entry := l.Logger.WithField("service", l.service)
	if jobID, ok := ctx.Value(JobIDKey).(string); ok && jobID != "" {
		entry = entry.WithField("job_id", jobID)
	}
	if eventID, ok := ctx.Value(EventIDKey).(string); ok && eventID != "" {
		entry = entry.WithField("event_id", eventID)
	}
	return entry
}

// WithJob returns a context carrying the job ID for downstream logging.
func WithJob(ctx context.Context, jobID string) context.Context {
	return context.WithValue(ctx, JobIDKey, jobID)
}

// WithEvent returns a context carrying the event ID for downstream logging.
func WithEvent(ctx context.Context, eventID string) context.Context {
	return context.WithValue(ctx, EventIDKey, eventID)
}
