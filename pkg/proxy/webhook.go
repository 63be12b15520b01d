package proxy

import (
	"io"
	"net/http"

	"github.com/Alcereo/edgegate/pkg/backend"
	"github.com/Alcereo/edgegate/pkg/common"
	"github.com/sirupsen/logrus"
)

const (
	SignatureHeader = "creem-signature"
	webhookPath     = "/webhook/creem"
)

// webhookHandler relays payment provider callbacks byte for byte. The
// backend verifies the signature.
type webhookHandler struct {
	backend BackendPort
}

func NewWebhookHandler(backend BackendPort) *webhookHandler {
	return &webhookHandler{backend: backend}
}

func (handler *webhookHandler) Handle(log *logrus.Entry, writer http.ResponseWriter, request *http.Request) {
	const stage = "Relaying webhook error."

	body, err := io.ReadAll(io.LimitReader(request.Body, maxRequestBytes))
	if err != nil {
		log.Warn(common.NewErr(stage, err))
		common.WriteError(writer, &common.UpstreamUnavailableError{Cause: err})
		return
	}

	header := http.Header{}
	for _, name := range []string{SignatureHeader, "Content-Type"} {
		if value := request.Header.Get(name); value != "" {
			header.Set(name, value)
		}
	}

	response, err := handler.backend.Do(request.Context(), backend.Call{
		Method: http.MethodPost,
		Path:   webhookPath,
		Header: header,
		Body:   body,
	})
	if err != nil {
		log.Warn(common.NewErr(stage, err))
		common.WriteError(writer, err)
		return
	}

	if contentType := response.Header.Get("Content-Type"); contentType != "" {
		writer.Header().Set("Content-Type", contentType)
	}
	writer.WriteHeader(response.Status)
	_, _ = writer.Write(response.Body)
}
