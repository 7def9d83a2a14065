package memory

import (
	"sync"
	"time"

	"github.com/patrickmn/go-cache"
)

// IdempotencyRepository remembers which item a client-supplied Idempotency-Key produced.
type IdempotencyRepository struct {
	mu    sync.Mutex
	cache *cache.Cache
}

func NewIdempotencyRepository(ttl time.Duration) *IdempotencyRepository {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &IdempotencyRepository{
		cache: cache.New(ttl, ttl*2),
	}
}

// Reserve claims key for the caller. If the key was already claimed the stored value
// is returned with reserved=false; the value is empty while the first request is still in flight.
func (r *IdempotencyRepository) Reserve(key string) (value string, reserved bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if x, found := r.cache.Get(key); found {
		return x.(string), false
	}
	r.cache.Set(key, "", cache.DefaultExpiration)
	return "", true
}

func (r *IdempotencyRepository) Complete(key, value string) {
	r.cache.Set(key, value, cache.DefaultExpiration)
}

// Release drops a reservation whose request failed so the client can retry with the same key.
func (r *IdempotencyRepository) Release(key string) {
	r.cache.Delete(key)
}
