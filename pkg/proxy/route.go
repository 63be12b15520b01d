package proxy

import (
	"net/http"
	"net/url"
	"regexp"

	"github.com/Alcereo/edgegate/pkg/backend"
	"github.com/Alcereo/edgegate/pkg/cache"
	"github.com/Alcereo/edgegate/pkg/common"
	"github.com/go-chi/chi/v5"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cast"
)

var pathParam = regexp.MustCompile(`\{(\w+)\}`)

// Route maps one inbound endpoint onto a backend path.
type Route struct {
	// Backend path; {name} segments are filled from the router's URL params.
	Backend string
	// Query forwards the inbound query string.
	Query bool
	// Invalidates is applied after a 2xx answer that passes When.
	Invalidates cache.Route
	When        func(response *backend.Response) bool
}

type routeHandler struct {
	forwarder   *Forwarder
	invalidator cache.Invalidator
	route       Route
}

func NewRouteHandler(forwarder *Forwarder, invalidator cache.Invalidator, route Route) *routeHandler {
	return &routeHandler{
		forwarder:   forwarder,
		invalidator: invalidator,
		route:       route,
	}
}

func (handler *routeHandler) backendPath(request *http.Request) string {
	path := pathParam.ReplaceAllStringFunc(handler.route.Backend, func(segment string) string {
		name := segment[1 : len(segment)-1]
		return url.PathEscape(chi.URLParam(request, name))
	})
	if handler.route.Query && request.URL.RawQuery != "" {
		path += "?" + request.URL.RawQuery
	}
	return path
}

func (handler *routeHandler) Handle(log *logrus.Entry, writer http.ResponseWriter, request *http.Request) {
	path := handler.backendPath(request)
	log = log.WithField("backendPath", path)

	response, err := handler.forwarder.Call(request, path)
	if err != nil {
		log.Warn(err)
		common.WriteError(writer, err)
		return
	}
	if response.OK() && (handler.route.When == nil || handler.route.When(response)) {
		cache.Bust(log, handler.invalidator, handler.route.Invalidates)
	}
	WriteProxied(writer, response)
}

// StatusCompleted matches a topup status answer that reached "completed".
func StatusCompleted(response *backend.Response) bool {
	value, ok := response.JSON()
	if !ok {
		return false
	}
	fields, ok := value.(map[string]interface{})
	if !ok {
		return false
	}
	return cast.ToString(fields["status"]) == "completed"
}
