package proxy

import (
	"net/http"
	"net/http/httputil"
	"net/url"
	"strings"

	"github.com/Alcereo/edgegate/pkg/common"
	"github.com/sirupsen/logrus"
)

// ReverseProxyHandler tunnels a whole path namespace to the backend, e.g.
// /v1/chat/completions to <backend base>/chat/completions.
type ReverseProxyHandler struct {
	TargetAddress url.URL
	StripPrefix   string
	proxy         *httputil.ReverseProxy
}

func NewReverseProxyHandler(target url.URL, stripPrefix string) *ReverseProxyHandler {
	handler := &ReverseProxyHandler{
		TargetAddress: target,
		StripPrefix:   stripPrefix,
	}
	handler.proxy = &httputil.ReverseProxy{
		Rewrite: func(outbound *httputil.ProxyRequest) {
			outbound.Out.URL.Path = handler.strip(outbound.In.URL.Path)
			outbound.Out.URL.RawPath = ""
			outbound.SetURL(&handler.TargetAddress)
			outbound.SetXForwarded()
		},
		ErrorHandler: func(writer http.ResponseWriter, request *http.Request, err error) {
			common.LogEntry(request).Warnf("Reverse proxy error. Reason: %v", err)
			common.WriteError(writer, &common.UpstreamUnavailableError{Cause: err})
		},
	}
	return handler
}

func (router *ReverseProxyHandler) strip(path string) string {
	trimmed := strings.TrimPrefix(path, router.StripPrefix)
	if trimmed == "" {
		return "/"
	}
	return trimmed
}

func (router *ReverseProxyHandler) Handle(log *logrus.Entry, writer http.ResponseWriter, request *http.Request) {
	log.WithField("target", router.TargetAddress.Host).Debugf("Tunnelling request")
	router.proxy.ServeHTTP(writer, request)
}
