package fetchers

import (
	"context"
	"sync"
)

type memoKey struct{}

// memo holds results already read during one request, so a handler and the
// gate asking for the same thing share one backend call.
type memo struct {
	mu     sync.Mutex
	values map[string]interface{}
}

func WithMemo(ctx context.Context) context.Context {
	if memoFrom(ctx) != nil {
		return ctx
	}
	return context.WithValue(ctx, memoKey{}, &memo{values: make(map[string]interface{})})
}

func memoFrom(ctx context.Context) *memo {
	if ctx == nil {
		return nil
	}
	m, _ := ctx.Value(memoKey{}).(*memo)
	return m
}

func (m *memo) load(key string) (interface{}, bool) {
	if m == nil {
		return nil, false
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	value, found := m.values[key]
	return value, found
}

func (m *memo) store(key string, value interface{}) {
	if m == nil {
		return
	}
	m.mu.Lock()
	m.values[key] = value
	m.mu.Unlock()
}
