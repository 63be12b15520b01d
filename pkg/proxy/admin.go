package proxy

import (
	"context"
	"net/http"

	"github.com/Alcereo/edgegate/pkg/backend"
	"github.com/Alcereo/edgegate/pkg/cache"
	"github.com/Alcereo/edgegate/pkg/common"
	"github.com/Alcereo/edgegate/pkg/session"
	"github.com/sirupsen/logrus"
)

type RoleLookupPort interface {
	Get(ctx context.Context, path string, token string) (*backend.Response, error)
}

// modelsRefreshHandler drops every cached model listing. Admins only. The
// role is read from the backend on every call, never from the read cache.
type modelsRefreshHandler struct {
	codec       *session.Codec
	backend     RoleLookupPort
	invalidator cache.Invalidator
}

func NewModelsRefreshHandler(codec *session.Codec, backend RoleLookupPort, invalidator cache.Invalidator) *modelsRefreshHandler {
	return &modelsRefreshHandler{
		codec:       codec,
		backend:     backend,
		invalidator: invalidator,
	}
}

func (handler *modelsRefreshHandler) role(ctx context.Context, token string) (string, bool) {
	response, err := handler.backend.Get(ctx, "/auth/me", token)
	if err != nil || !response.OK() {
		return "", false
	}
	value, _ := response.JSON()
	fields, _ := value.(map[string]interface{})
	role, _ := fields["role"].(string)
	return role, true
}

func (handler *modelsRefreshHandler) Handle(log *logrus.Entry, writer http.ResponseWriter, request *http.Request) {
	token := handler.codec.Token(request)
	if !session.IsLoggedIn(token) {
		common.WriteError(writer, &common.AuthenticationError{Reason: "no session"})
		return
	}
	role, ok := handler.role(request.Context(), token)
	if !ok {
		common.WriteError(writer, &common.AuthenticationError{Reason: "session rejected"})
		return
	}
	user := common.CurrentUser{Role: role}
	if !user.IsAdmin() {
		log.Debugf("Models refresh forbidden for role %q", role)
		common.WriteError(writer, &common.AuthorizationError{Role: role})
		return
	}

	cache.Bust(log, handler.invalidator, cache.RouteModelRefresh)
	common.WriteJSON(writer, http.StatusOK, map[string]interface{}{"ok": true})
}
