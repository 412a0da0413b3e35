package logger

import (
	"context"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"github.com/sirupsen/logrus"
)

const (
	// CorrelationIDHeader is the HTTP header carrying the correlation ID
	CorrelationIDHeader = "X-Correlation-ID"
	// CorrelationIDFieldKey is the field key used for correlation ID in log entries
	CorrelationIDFieldKey = "correlation_id"
)

// Context key for correlation ID
type contextKey string

const correlationIDContextKey contextKey = "correlation_id"

// LogField represents a structured log field with concrete types
type LogField struct {
	Key   string
	Value string
}

// Logger interface with simplified, focused methods
type Logger interface {
	Info(msg string, fields ...LogField)
	Error(msg string, fields ...LogField)
	Debug(msg string, fields ...LogField)
	Warn(msg string, fields ...LogField)
	WithFields(fields ...LogField) Logger
	WithCorrelationID(id string) Logger
}

// Config represents logger configuration
type Config struct {
	Level   Level
	Format  string    // "text" or "json" (default)
	Service string    // added to every entry as "service" when set
	Output  io.Writer // defaults to os.Stdout
}

// logger wraps a logrus entry. Entries are immutable, so WithFields never
// affects the parent.
type logger struct {
	entry *logrus.Entry
}

var logrusLevels = map[Level]logrus.Level{
	DebugLevel: logrus.DebugLevel,
	InfoLevel:  logrus.InfoLevel,
	WarnLevel:  logrus.WarnLevel,
	ErrorLevel: logrus.ErrorLevel,
}

// NewLogger creates a new logger instance with the given configuration
func NewLogger(config Config) Logger {
	base := logrus.New()

	if config.Format == "text" {
		base.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	} else {
		base.SetFormatter(&logrus.JSONFormatter{TimestampFormat: time.RFC3339Nano})
	}

	base.SetOutput(os.Stdout)
	if config.Output != nil {
		base.SetOutput(config.Output)
	}

	level, ok := logrusLevels[config.Level]
	if !ok {
		level = logrus.InfoLevel
	}
	base.SetLevel(level)

	entry := logrus.NewEntry(base)
	if config.Service != "" {
		entry = entry.WithField("service", config.Service)
	}
	return &logger{entry: entry}
}

// NewNopLogger returns a logger that discards everything. Useful in tests.
func NewNopLogger() Logger {
	return NewLogger(Config{Level: ErrorLevel, Output: io.Discard})
}

func (l *logger) with(fields []LogField) *logrus.Entry {
	if len(fields) == 0 {
		return l.entry
	}
	lf := make(logrus.Fields, len(fields))
	for _, f := range fields {
		lf[f.Key] = f.Value
	}
	return l.entry.WithFields(lf)
}

// WithFields returns a child logger carrying fields.
func (l *logger) WithFields(fields ...LogField) Logger {
	return &logger{entry: l.with(fields)}
}

// WithCorrelationID returns a child logger carrying the correlation ID.
func (l *logger) WithCorrelationID(id string) Logger {
	return l.WithFields(CorrelationIDField(id))
}

func (l *logger) Debug(msg string, fields ...LogField) { l.with(fields).Debug(msg) }
func (l *logger) Info(msg string, fields ...LogField)  { l.with(fields).Info(msg) }
func (l *logger) Warn(msg string, fields ...LogField)  { l.with(fields).Warn(msg) }
func (l *logger) Error(msg string, fields ...LogField) { l.with(fields).Error(msg) }

// Helper functions for common field types

// StringField returns a LogField for a string value.
func StringField(key, value string) LogField {
	return LogField{Key: key, Value: value}
}

// IntField returns a LogField for an integer value.
func IntField(key string, value int) LogField {
	return LogField{Key: key, Value: strconv.Itoa(value)}
}

// BoolField returns a LogField for a boolean value.
func BoolField(key string, value bool) LogField {
	return LogField{Key: key, Value: strconv.FormatBool(value)}
}

// Field formats any value: time.Time as RFC 3339, errors by message and
// everything else with fmt's %v.
func Field[T any](key string, value T) LogField {
	switch v := any(value).(type) {
	case string:
		return LogField{Key: key, Value: v}
	case time.Time:
		return LogField{Key: key, Value: v.Format(time.RFC3339)}
	case error:
		return ErrorField(v).withKey(key)
	default:
		return LogField{Key: key, Value: fmt.Sprint(v)}
	}
}

func (f LogField) withKey(key string) LogField {
	f.Key = key
	return f
}

// DurationField returns a LogField for a time.Duration value.
func DurationField(key string, value time.Duration) LogField {
	return LogField{Key: key, Value: value.String()}
}

// ErrorField returns a LogField for an error value.
func ErrorField(err error) LogField {
	if err == nil {
		return LogField{Key: "error", Value: "<nil>"}
	}
	return LogField{Key: "error", Value: err.Error()}
}

// CorrelationIDField returns a LogField for a correlation ID.
func CorrelationIDField(id string) LogField {
	return StringField(CorrelationIDFieldKey, id)
}

// HTTPMethodField returns a LogField for an HTTP method.
func HTTPMethodField(method string) LogField {
	return StringField("http_method", method)
}

// HTTPPathField returns a LogField for an HTTP path.
func HTTPPathField(path string) LogField {
	return StringField("http_path", path)
}

// HTTPStatusField returns a LogField for an HTTP status code.
func HTTPStatusField(status int) LogField {
	return IntField("http_status", status)
}

// ClientIPField returns a LogField for a client IP address.
func ClientIPField(ip string) LogField {
	return StringField("client_ip", ip)
}

// Message fields

// PlatformField returns a LogField for the messaging platform name.
func PlatformField(platform string) LogField {
	return StringField("platform", platform)
}

// ChatIDField returns a LogField for a chat identifier.
func ChatIDField(chatID string) LogField {
	return StringField("chat_id", chatID)
}

// UserIDField returns a LogField for a user identifier.
func UserIDField(userID string) LogField {
	return StringField("user_id", userID)
}

// RouteField returns a LogField for the router branch a message took.
func RouteField(route string) LogField {
	return StringField("route", route)
}

// Correlation ID context helpers

// WithCorrelationIDContext adds correlation ID to context
func WithCorrelationIDContext(ctx context.Context, correlationID string) context.Context {
	return context.WithValue(ctx, correlationIDContextKey, correlationID)
}

// GetCorrelationIDFromContext retrieves correlation ID from context
func GetCorrelationIDFromContext(ctx context.Context) string {
	if correlationID, ok := ctx.Value(correlationIDContextKey).(string); ok {
		return correlationID
	}
	return ""
}

// GetLoggerFromContext returns a logger with correlation ID from context automatically injected
func GetLoggerFromContext(ctx context.Context, baseLogger Logger) Logger {
	correlationID := GetCorrelationIDFromContext(ctx)
	if correlationID != "" {
		return baseLogger.WithCorrelationID(correlationID)
	}
	return baseLogger
}
