package keys

import (
	"context"
	"net/http"
	"net/url"

	"github.com/Alcereo/edgegate/pkg/backend"
	"github.com/Alcereo/edgegate/pkg/cache"
	"github.com/Alcereo/edgegate/pkg/common"
)

// Repository performs key mutations for a console session. Keys live in the
// backend; a successful mutation drops the keys:user tag.
type Repository interface {
	Create(ctx context.Context, token string, contentType string, body []byte) (*backend.Response, error)
	Revoke(ctx context.Context, token string, id string) (*backend.Response, error)
}

type BackendPort interface {
	Do(ctx context.Context, call backend.Call) (*backend.Response, error)
}

type backendRepository struct {
	backend     BackendPort
	invalidator cache.Invalidator
}

func NewBackendRepository(backend BackendPort, invalidator cache.Invalidator) *backendRepository {
	return &backendRepository{
		backend:     backend,
		invalidator: invalidator,
	}
}

func (repository *backendRepository) Create(ctx context.Context, token string, contentType string, body []byte) (*backend.Response, error) {
	header := http.Header{}
	if contentType != "" {
		header.Set("Content-Type", contentType)
	}
	return repository.mutate(ctx, cache.RouteKeyCreate, backend.Call{
		Method: http.MethodPost,
		Path:   "/keys",
		Token:  token,
		Header: header,
		Body:   body,
	})
}

func (repository *backendRepository) Revoke(ctx context.Context, token string, id string) (*backend.Response, error) {
	return repository.mutate(ctx, cache.RouteKeyRevoke, backend.Call{
		Method: http.MethodDelete,
		Path:   "/keys/" + url.PathEscape(id),
		Token:  token,
	})
}

func (repository *backendRepository) mutate(ctx context.Context, route cache.Route, call backend.Call) (*backend.Response, error) {
	response, err := repository.backend.Do(ctx, call)
	if err != nil {
		return nil, err
	}
	if response.OK() {
		cache.Bust(common.ContextLogEntry(ctx), repository.invalidator, route)
	}
	return response, nil
}
