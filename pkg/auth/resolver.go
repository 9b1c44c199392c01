package auth

import (
	"context"
	"errors"
	"time"

	lru "github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/platinummonkey/tollgate/pkg/observability"
)

// ResolverConfig controls credential resolution
type ResolverConfig struct {
	SandboxEnabled bool
	// CacheSize of zero disables the positive lookup cache
	CacheSize int
	CacheTTL  time.Duration
}

// Resolver maps a bearer credential to an Identity. It never writes.
type Resolver struct {
	store   KeyStore
	cache   *lru.LRU[string, Identity]
	sandbox bool
	logger  *observability.Logger
	metrics *observability.Metrics
}

// NewResolver creates a resolver over store. metrics may be nil.
func NewResolver(store KeyStore, cfg ResolverConfig, logger *observability.Logger, metrics *observability.Metrics) *Resolver {
	if logger == nil {
		logger = observability.NopLogger()
	}

	r := &Resolver{
		store:   store,
		sandbox: cfg.SandboxEnabled,
		logger:  logger,
		metrics: metrics,
	}
	if cfg.CacheSize > 0 {
		r.cache = lru.NewLRU[string, Identity](cfg.CacheSize, nil, cfg.CacheTTL)
	}
	return r
}

// Resolve returns the identity for an Authorization header value.
// Malformed headers, unknown or revoked keys, and lookup failures all yield
// no identity; failures are logged.
func (r *Resolver) Resolve(ctx context.Context, header string) (*Identity, bool) {
	token, ok := BearerToken(header)
	if !ok {
		return nil, false
	}

	if token == SandboxKey {
		if !r.sandbox {
			return nil, false
		}
		identity := SandboxIdentity
		return &identity, true
	}

	if ValidateTokenFormat(token) != nil {
		return nil, false
	}

	hash := HashToken(token)
	if r.cache != nil {
		if identity, hit := r.cache.Get(hash); hit {
			r.countCache(true)
			return &identity, true
		}
		r.countCache(false)
	}

	key, err := r.store.LookupByHash(ctx, hash)
	if err != nil {
		if !errors.Is(err, ErrKeyNotFound) {
			r.logger.WithContext(ctx).WithError(err).Warn("API key lookup failed")
		}
		return nil, false
	}

	identity := Identity{KeyID: key.ID, UserID: key.UserID}
	if r.cache != nil {
		r.cache.Add(hash, identity)
	}
	return &identity, true
}

// Forget drops a cached lookup, used after revocation
func (r *Resolver) Forget(hash string) {
	if r.cache != nil {
		r.cache.Remove(hash)
	}
}

func (r *Resolver) countCache(hit bool) {
	if r.metrics == nil {
		return
	}
	if hit {
		r.metrics.KeyCacheHitsTotal.Inc()
	} else {
		r.metrics.KeyCacheMissesTotal.Inc()
	}
}
