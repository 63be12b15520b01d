package fetchers

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/Alcereo/edgegate/pkg/backend"
	"github.com/Alcereo/edgegate/pkg/cache"
	"github.com/Alcereo/edgegate/pkg/common"
	"github.com/Alcereo/edgegate/pkg/session"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"
)

type TagCachePort interface {
	Generation(tag cache.Tag) uint64
	Get(tag cache.Tag, key string) (interface{}, bool)
	PutAt(tag cache.Tag, generation uint64, key string, value interface{}) bool
}

type BackendPort interface {
	Get(ctx context.Context, path string, token string) (*backend.Response, error)
}

// ShapeCheck reports whether a decoded JSON body has the structure the
// typed result requires.
type ShapeCheck func(value interface{}) bool

// Fetcher reads one backend resource on behalf of a session token. Results
// are shared per request, then per tag until the tag is invalidated or the
// entry expires. Any failure yields nil.
type Fetcher[T any] struct {
	tag     cache.Tag
	path    string
	shape   ShapeCheck
	backend BackendPort
	cache   TagCachePort
	group   singleflight.Group
}

func NewFetcher[T any](tag cache.Tag, path string, shape ShapeCheck, client BackendPort, store TagCachePort) *Fetcher[T] {
	return &Fetcher[T]{
		tag:     tag,
		path:    path,
		shape:   shape,
		backend: client,
		cache:   store,
	}
}

func (fetcher *Fetcher[T]) Tag() cache.Tag {
	return fetcher.tag
}

func tokenKey(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

// Fetch returns the cached or freshly loaded value. The returned value is
// shared between callers and must not be mutated.
func (fetcher *Fetcher[T]) Fetch(ctx context.Context, token string) *T {
	if !session.IsLoggedIn(token) {
		return nil
	}
	key := tokenKey(token)
	memoized := memoFrom(ctx)
	memoKey := string(fetcher.tag) + "|" + key

	if value, found := memoized.load(memoKey); found {
		result, _ := value.(*T)
		return result
	}

	result := fetcher.fetchShared(ctx, token, key)
	memoized.store(memoKey, result)
	return result
}

func (fetcher *Fetcher[T]) fetchShared(ctx context.Context, token string, key string) *T {
	if fetcher.cache != nil {
		if value, found := fetcher.cache.Get(fetcher.tag, key); found {
			if result, ok := value.(*T); ok {
				return result
			}
		}
	}

	var generation uint64
	if fetcher.cache != nil {
		generation = fetcher.cache.Generation(fetcher.tag)
	}
	flightKey := fmt.Sprintf("%s|%d|%s", fetcher.tag, generation, key)

	// The flight outlives the request that started it; the client timeout
	// still bounds the call.
	shared := context.WithoutCancel(ctx)
	value, _, _ := fetcher.group.Do(flightKey, func() (interface{}, error) {
		result := fetcher.load(shared, token)
		if result != nil && fetcher.cache != nil {
			fetcher.cache.PutAt(fetcher.tag, generation, key, result)
		}
		return result, nil
	})
	result, _ := value.(*T)
	return result
}

func (fetcher *Fetcher[T]) load(ctx context.Context, token string) *T {
	const stage = "Cached fetch error."
	log := logrus.WithField("tag", fetcher.tag)

	response, err := fetcher.backend.Get(ctx, fetcher.path, token)
	if err != nil {
		log.Debug(common.NewErr(stage, err))
		return nil
	}
	if !response.OK() {
		log.Debugf("%v Reason: status %d", stage, response.Status)
		return nil
	}
	value, ok := response.JSON()
	if !ok || (fetcher.shape != nil && !fetcher.shape(value)) {
		log.Debugf("%v Reason: unexpected response shape", stage)
		return nil
	}

	result := new(T)
	if err := json.Unmarshal(response.Body, result); err != nil {
		log.Debug(common.NewErr(stage, err))
		return nil
	}
	return result
}
