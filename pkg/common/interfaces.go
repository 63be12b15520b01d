package common

import (
	"context"
	"net/http"

	"github.com/sirupsen/logrus"
)

type RequestHandler interface {
	Handle(log *logrus.Entry, writer http.ResponseWriter, request *http.Request)
}

type RequestChainedHandler interface {
	Handle(log *logrus.Entry, writer http.ResponseWriter, request *http.Request)
	SetNext(handler RequestHandler)
}

type HandlerFunc func(log *logrus.Entry, writer http.ResponseWriter, request *http.Request)

func (f HandlerFunc) Handle(log *logrus.Entry, writer http.ResponseWriter, request *http.Request) {
	f(log, writer, request)
}

type logEntryKey struct{}

func WithLogEntry(ctx context.Context, log *logrus.Entry) context.Context {
	return context.WithValue(ctx, logEntryKey{}, log)
}

// LogEntry returns the entry installed by the log filter, or a bare entry
// when the request did not pass through one.
func LogEntry(request *http.Request) *logrus.Entry {
	return ContextLogEntry(request.Context())
}

func ContextLogEntry(ctx context.Context) *logrus.Entry {
	if entry, ok := ctx.Value(logEntryKey{}).(*logrus.Entry); ok {
		return entry
	}
	return logrus.NewEntry(logrus.StandardLogger())
}

// Adapt exposes a chained handler to routers that speak net/http.
func Adapt(handler RequestHandler) http.HandlerFunc {
	return func(writer http.ResponseWriter, request *http.Request) {
		handler.Handle(LogEntry(request), writer, request)
	}
}

// Root turns the head of a handler chain into an http.Handler.
func Root(handler RequestHandler) http.Handler {
	return Adapt(handler)
}
