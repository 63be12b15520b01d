package cache

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/patrickmn/go-cache"
)

// goCacheTagStore keeps read results grouped by tag. Each tag has a
// generation; entries are keyed by it, so bumping the generation makes every
// entry of the tag unreachable in one step.
type goCacheTagStore struct {
	items       *cache.Cache
	mu          sync.Mutex
	generations map[Tag]uint64
}

func NewGoCacheTagStore(expiration time.Duration, evictSchedule time.Duration) *goCacheTagStore {
	return &goCacheTagStore{
		items:       cache.New(expiration, evictSchedule),
		generations: make(map[Tag]uint64),
	}
}

func entryKey(tag Tag, generation uint64, key string) string {
	return fmt.Sprintf("%s|%d|%s", tag, generation, key)
}

func (store *goCacheTagStore) Generation(tag Tag) uint64 {
	store.mu.Lock()
	defer store.mu.Unlock()
	return store.generations[tag]
}

func (store *goCacheTagStore) Get(tag Tag, key string) (interface{}, bool) {
	return store.items.Get(entryKey(tag, store.Generation(tag), key))
}

// PutAt stores value under the generation observed when it was fetched.
// A value fetched before an invalidation is dropped.
func (store *goCacheTagStore) PutAt(tag Tag, generation uint64, key string, value interface{}) bool {
	store.mu.Lock()
	defer store.mu.Unlock()
	if store.generations[tag] != generation {
		return false
	}
	store.items.Set(entryKey(tag, generation, key), value, cache.DefaultExpiration)
	return true
}

func (store *goCacheTagStore) Invalidate(tags ...Tag) error {
	for _, tag := range tags {
		if !tag.Valid() {
			return fmt.Errorf("unknown cache tag %q", tag)
		}
	}

	stale := make([]string, 0, len(tags))
	store.mu.Lock()
	for _, tag := range tags {
		stale = append(stale, fmt.Sprintf("%s|%d|", tag, store.generations[tag]))
		store.generations[tag]++
	}
	store.mu.Unlock()

	for key := range store.items.Items() {
		for _, prefix := range stale {
			if strings.HasPrefix(key, prefix) {
				store.items.Delete(key)
				break
			}
		}
	}
	return nil
}

func (store *goCacheTagStore) ItemCount() int {
	return store.items.ItemCount()
}
