package memory

import (
	"time"

	"magic-collection-be/pkg/relay"

	"github.com/google/uuid"
	"github.com/patrickmn/go-cache"
)

// SessionRegistry tracks in-flight relays. A session that outlives the TTL is
// aborted on eviction, which cancels its upstream generation.
type SessionRegistry struct {
	cache *cache.Cache
}

// SessionTTL is how long a relay may stay registered. An unbounded upstream
// means relays are never reaped; otherwise they get grace past the deadline.
func SessionTTL(upstreamTimeout, grace time.Duration) time.Duration {
	if upstreamTimeout <= 0 {
		return cache.NoExpiration
	}
	return upstreamTimeout + grace
}

func NewSessionRegistry(ttl, cleanupInterval time.Duration) *SessionRegistry {
	c := cache.New(ttl, cleanupInterval)
	c.OnEvicted(func(_ string, v interface{}) {
		if s, ok := v.(*relay.StreamSession); ok {
			s.Abort()
		}
	})
	return &SessionRegistry{
		cache: c,
	}
}

func (r *SessionRegistry) Register(s *relay.StreamSession) {
	r.cache.Set(s.Id.String(), s, cache.DefaultExpiration)
}

// Remove forgets a finished session. Abort is a no-op by then.
func (r *SessionRegistry) Remove(sessionId uuid.UUID) {
	r.cache.Delete(sessionId.String())
}

// AbortAll aborts every live relay and reports how many there were.
func (r *SessionRegistry) AbortAll() int {
	items := r.cache.Items()
	for _, item := range items {
		if s, ok := item.Object.(*relay.StreamSession); ok {
			s.Abort()
		}
	}
	return len(items)
}
