package keys

import (
	"io"
	"net/http"

	"github.com/Alcereo/edgegate/pkg/cache"
	"github.com/Alcereo/edgegate/pkg/common"
	"github.com/Alcereo/edgegate/pkg/proxy"
	"github.com/Alcereo/edgegate/pkg/session"
	"github.com/go-chi/chi/v5"
	"github.com/sirupsen/logrus"
)

const maxBodyBytes = 1 << 20

type keysHandler struct {
	repository  Repository
	codec       *session.Codec
	listProxy   common.RequestHandler
	createProxy common.RequestHandler
	revokeProxy common.RequestHandler
}

// NewHandler serves key mutations through the repository when the caller is
// a console session. Requests carrying their own Authorization take the
// plain proxy route. The list is always relayed untouched.
func NewHandler(repository Repository, forwarder *proxy.Forwarder, invalidator cache.Invalidator, codec *session.Codec) *keysHandler {
	return &keysHandler{
		repository:  repository,
		codec:       codec,
		listProxy:   proxy.NewRouteHandler(forwarder, invalidator, proxy.Route{Backend: "/keys"}),
		createProxy: proxy.NewRouteHandler(forwarder, invalidator, proxy.Route{Backend: "/keys", Invalidates: cache.RouteKeyCreate}),
		revokeProxy: proxy.NewRouteHandler(forwarder, invalidator, proxy.Route{Backend: "/keys/{id}", Invalidates: cache.RouteKeyRevoke}),
	}
}

func (handler *keysHandler) sessionToken(request *http.Request) (string, bool) {
	if request.Header.Get("Authorization") != "" {
		return "", false
	}
	token := handler.codec.Token(request)
	return token, session.IsLoggedIn(token)
}

func (handler *keysHandler) List(log *logrus.Entry, writer http.ResponseWriter, request *http.Request) {
	handler.listProxy.Handle(log, writer, request)
}

func (handler *keysHandler) Create(log *logrus.Entry, writer http.ResponseWriter, request *http.Request) {
	token, ok := handler.sessionToken(request)
	if !ok {
		handler.createProxy.Handle(log, writer, request)
		return
	}
	body, err := io.ReadAll(io.LimitReader(request.Body, maxBodyBytes))
	if err != nil {
		common.WriteError(writer, &common.ValidationError{Issues: []common.Issue{{Message: "Unreadable body"}}})
		return
	}
	response, err := handler.repository.Create(request.Context(), token, request.Header.Get("Content-Type"), body)
	if err != nil {
		log.Warn(err)
		common.WriteError(writer, err)
		return
	}
	proxy.WriteProxied(writer, response)
}

func (handler *keysHandler) Revoke(log *logrus.Entry, writer http.ResponseWriter, request *http.Request) {
	token, ok := handler.sessionToken(request)
	if !ok {
		handler.revokeProxy.Handle(log, writer, request)
		return
	}
	response, err := handler.repository.Revoke(request.Context(), token, chi.URLParam(request, "id"))
	if err != nil {
		log.Warn(err)
		common.WriteError(writer, err)
		return
	}
	proxy.WriteProxied(writer, response)
}
