// Package ptr resolves and caches reverse DNS names for gateway addresses.
package ptr

import (
	"net"
	"strings"
	"time"

	"github.com/jellydator/ttlcache/v3"
)

// DefaultTTL bounds how long a resolved name is reused.
const DefaultTTL = 10 * time.Minute

// PtrManager handles PTR lookups with TTL-bounded caching. Failed lookups
// are cached as empty names so they are not retried until they expire.
type PtrManager struct {
	cache      *ttlcache.Cache[string, string]
	lookupFunc func(ip string) ([]string, error)
	retries    int
	retryDelay time.Duration
}

// NewPtrManager creates a new PtrManager whose entries live for ttl.
func NewPtrManager(ttl time.Duration) *PtrManager {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &PtrManager{
		cache: ttlcache.New[string, string](
			ttlcache.WithTTL[string, string](ttl),
			ttlcache.WithDisableTouchOnHit[string, string](),
		),
		lookupFunc: net.LookupAddr,
		retries:    3,
		retryDelay: 100 * time.Millisecond,
	}
}

// normalizePTR strips the trailing root dot of a PTR answer.
func normalizePTR(name string) string {
	return strings.TrimSuffix(name, ".")
}

// RequestPTR looks up the name of ip unless a result is already cached.
func (pm *PtrManager) RequestPTR(ip string) {
	// Has would also report expired entries.
	if pm.cache.Get(ip) != nil {
		return
	}
	name := ""
	for attempt := range pm.retries {
		if attempt > 0 {
			time.Sleep(pm.retryDelay)
		}
		names, err := pm.lookupFunc(ip)
		if err == nil && len(names) > 0 {
			name = normalizePTR(names[0])
			break
		}
	}
	pm.cache.Set(ip, name, ttlcache.DefaultTTL)
}

// GetPTR retrieves the cached PTR result for the given IP address.
// Returns the PTR and a boolean indicating if it was found.
func (pm *PtrManager) GetPTR(ip string) (string, bool) {
	item := pm.cache.Get(ip)
	if item == nil || item.Value() == "" {
		return "", false
	}
	return item.Value(), true
}

// Lookup resolves ip through the cache, performing the lookup on a miss.
func (pm *PtrManager) Lookup(ip string) (string, bool) {
	pm.RequestPTR(ip)
	return pm.GetPTR(ip)
}

// Len returns the number of cached results, including failed lookups.
func (pm *PtrManager) Len() int {
	return pm.cache.Len()
}
