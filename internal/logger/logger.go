package logger

import (
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

const HeaderRequestID = "X-Request-ID"

type Logger struct {
	*logrus.Entry
}

// New builds a logger for the given environment and level. Local environments
// get a colored console format; everything else logs JSON.
func New(env, level string) *Logger {
	return NewWithOutput(env, level, os.Stdout)
}

func NewWithOutput(env, level string, out io.Writer) *Logger {
	base := logrus.New()

	if env == "" || env == "local" {
		base.SetFormatter(&logrus.TextFormatter{
			FullTimestamp:   true,
			TimestampFormat: time.RFC3339Nano,
			ForceColors:     true,
		})
	} else {
		base.SetFormatter(&logrus.JSONFormatter{
			TimestampFormat: time.RFC3339Nano,
		})
	}

	base.SetOutput(out)

	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		base.SetLevel(logrus.DebugLevel)
	case "warn":
		base.SetLevel(logrus.WarnLevel)
	case "error":
		base.SetLevel(logrus.ErrorLevel)
	default:
		base.SetLevel(logrus.InfoLevel)
	}

	return &Logger{Entry: logrus.NewEntry(base)}
}

// Discard returns a logger that drops everything; used by tests.
func Discard() *Logger {
	return NewWithOutput("test", "error", io.Discard)
}

// RequestID returns the caller supplied request id or a fresh one.
func RequestID(r *http.Request) string {
	if id := strings.TrimSpace(r.Header.Get(HeaderRequestID)); id != "" {
		return id
	}
	return uuid.NewString()
}

// WithRequest attaches request metadata and returns an entry
func (l *Logger) WithRequest(r *http.Request, reqID string) *logrus.Entry {
	return l.WithFields(logrus.Fields{
		"req_id":     reqID,
		"method":     r.Method,
		"path":       r.URL.Path,
		"remote_ip":  r.RemoteAddr,
		"user_agent": r.UserAgent(),
	})
}

// WithError standardizes error logging
func (l *Logger) WithError(err error) *logrus.Entry {
	if err == nil {
		return l.Entry
	}
	return l.Entry.WithField("error", err.Error())
}

// Component returns a child logger tagged with a component name.
func (l *Logger) Component(name string) *Logger {
	return &Logger{Entry: l.Entry.WithField("component", name)}
}
