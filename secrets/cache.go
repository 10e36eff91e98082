package secrets

import (
	"sync"
	"time"

	"golang.org/x/net/context"
)

const (
	defaultMaxEntries = 10
	defaultTTL        = 10 * time.Minute
)

type secret struct {
	value     string
	timeAdded time.Time
}

type fetchFunc func(ctx context.Context, name string) (string, error)

// secretCache holds fetched secrets for ttl and evicts the oldest entry once
// more than maxEntries are held.
type secretCache struct {
	mu         sync.Mutex
	secrets    map[string]secret
	maxEntries int
	ttl        time.Duration
	fetch      fetchFunc
	now        func() time.Time
}

func newSecretCache(options *CloudSecretsCacheOptions, fetch fetchFunc) *secretCache {
	cache := &secretCache{
		secrets:    make(map[string]secret),
		maxEntries: defaultMaxEntries,
		ttl:        defaultTTL,
		fetch:      fetch,
		now:        time.Now,
	}
	if options != nil {
		if options.MaxEntries > 0 {
			cache.maxEntries = options.MaxEntries
		}
		if options.TTL > 0 {
			cache.ttl = options.TTL
		}
	}
	return cache
}

func (cache *secretCache) get(ctx context.Context, name string) (string, error) {
	cache.mu.Lock()
	s, ok := cache.secrets[name]
	cache.mu.Unlock()
	if ok && cache.now().Sub(s.timeAdded) < cache.ttl {
		return s.value, nil
	}

	value, err := cache.fetch(ctx, name)
	if err != nil {
		return "", wrapError("unable to retrieve secret "+name, err)
	}

	cache.mu.Lock()
	defer cache.mu.Unlock()
	cache.secrets[name] = secret{value: value, timeAdded: cache.now()}
	if len(cache.secrets) > cache.maxEntries {
		cache.evict()
	}
	return value, nil
}

// evict drops the oldest entry. Callers hold mu.
func (cache *secretCache) evict() {
	var oldestName string
	var oldest time.Time
	for name, s := range cache.secrets {
		if oldestName == "" || s.timeAdded.Before(oldest) {
			oldestName, oldest = name, s.timeAdded
		}
	}
	delete(cache.secrets, oldestName)
}

func (cache *secretCache) len() int {
	cache.mu.Lock()
	defer cache.mu.Unlock()
	return len(cache.secrets)
}
