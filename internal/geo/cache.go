package geo

import (
	"context"
	"time"

	gocache "github.com/patrickmn/go-cache"

	"github.com/shortclick/shortclick/internal/model"
)

// DefaultCacheTTL is how long a resolved location is reused for an IP.
const DefaultCacheTTL = 10 * time.Minute

// CachingLocator remembers successful lookups per IP. Unknown results are
// not cached so a transient failure is retried on the next visit.
type CachingLocator struct {
	next  Locator
	cache *gocache.Cache
}

// NewCachingLocator wraps next with a per-IP cache.
func NewCachingLocator(next Locator, ttl time.Duration) *CachingLocator {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	return &CachingLocator{
		next:  next,
		cache: gocache.New(ttl, 2*ttl),
	}
}

// Lookup returns the cached location for ip or asks the wrapped locator.
func (c *CachingLocator) Lookup(ctx context.Context, ip string) model.GeoLocation {
	if ip == "" {
		return c.next.Lookup(ctx, ip)
	}
	if v, ok := c.cache.Get(ip); ok {
		return v.(model.GeoLocation)
	}

	loc := c.next.Lookup(ctx, ip)
	if loc.Country != model.UnknownLocation {
		c.cache.SetDefault(ip, loc)
	}
	return loc
}
