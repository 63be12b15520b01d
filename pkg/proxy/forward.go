package proxy

import (
	"context"
	"io"
	"net/http"

	"github.com/Alcereo/edgegate/pkg/backend"
	"github.com/Alcereo/edgegate/pkg/common"
	"github.com/Alcereo/edgegate/pkg/session"
	"github.com/sirupsen/logrus"
)

const (
	genericUpstreamMessage = "Upstream error."
	maxRequestBytes        = 10 << 20
)

// Only these inbound headers reach the backend.
var forwardedHeaders = []string{"Content-Type", "Authorization", "Cookie"}

type BackendPort interface {
	Do(ctx context.Context, call backend.Call) (*backend.Response, error)
}

type Forwarder struct {
	backend BackendPort
	codec   *session.Codec
}

func NewForwarder(backend BackendPort, codec *session.Codec) *Forwarder {
	return &Forwarder{
		backend: backend,
		codec:   codec,
	}
}

// Call relays the inbound request to backendPath and returns the backend
// answer untouched. The session cookie becomes a bearer token only when the
// request carries no Authorization of its own.
func (forwarder *Forwarder) Call(request *http.Request, backendPath string) (*backend.Response, error) {
	const stage = "Proxying request error."

	header := http.Header{}
	for _, name := range forwardedHeaders {
		if value := request.Header.Get(name); value != "" {
			header.Set(name, value)
		}
	}

	call := backend.Call{
		Method: request.Method,
		Path:   backendPath,
		Header: header,
	}
	if header.Get("Authorization") == "" {
		if token := forwarder.codec.Token(request); session.IsLoggedIn(token) {
			call.Token = token
		}
	}
	if request.Method != http.MethodGet && request.Method != http.MethodHead && request.Body != nil {
		body, err := io.ReadAll(io.LimitReader(request.Body, maxRequestBytes))
		if err != nil {
			return nil, &common.UpstreamUnavailableError{Cause: common.NewErr(stage, err)}
		}
		call.Body = body
	}
	return forwarder.backend.Do(request.Context(), call)
}

// Forward is Call followed by WriteProxied. The response is nil when the
// backend could not be reached.
func (forwarder *Forwarder) Forward(log *logrus.Entry, writer http.ResponseWriter, request *http.Request, backendPath string) *backend.Response {
	response, err := forwarder.Call(request, backendPath)
	if err != nil {
		log.Warn(err)
		common.WriteError(writer, err)
		return nil
	}
	WriteProxied(writer, response)
	return response
}

// WriteProxied renders a backend answer: failures get the uniform
// {message} shape with the backend status, successes pass through.
func WriteProxied(writer http.ResponseWriter, response *backend.Response) {
	value, isJSON := response.JSON()
	if !response.OK() {
		message := ""
		if isJSON {
			message = backend.DetailMessage(value)
		}
		if message == "" {
			message = genericUpstreamMessage
		}
		common.WriteJSON(writer, response.Status, common.ErrorBody{Message: message})
		return
	}
	if isJSON {
		common.WriteJSON(writer, response.Status, value)
		return
	}

	contentType := response.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "text/plain; charset=utf-8"
	}
	writer.Header().Set("Content-Type", contentType)
	writer.WriteHeader(response.Status)
	_, _ = writer.Write(response.Body)
}
