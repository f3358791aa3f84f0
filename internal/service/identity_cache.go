package service

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"golang.org/x/sync/singleflight"

	domainauth "github.com/acme/acct-console/internal/domain/auth"
	apperrors "github.com/acme/acct-console/internal/errors"
	"github.com/acme/acct-console/internal/observability/metrics"
	"github.com/acme/acct-console/internal/observability/statsd"
	"github.com/acme/acct-console/internal/ports"
)

// ErrFetchAbandoned is returned by Fetch when the caller's context ends before
// the shared identity fetch resolves. The fetch itself keeps running.
var ErrFetchAbandoned = errors.New("identity fetch abandoned")

const (
	defaultIdentityCacheSize = 10000
	defaultIdentityCacheTTL  = 5 * time.Minute
)

// IdentityState describes where a cache entry is in its lifecycle.
type IdentityState int

const (
	IdentityUninitialized IdentityState = iota
	IdentityFetching
	IdentityReady
	IdentityFailed
)

func (s IdentityState) String() string {
	switch s {
	case IdentityUninitialized:
		return "uninitialized"
	case IdentityFetching:
		return "fetching"
	case IdentityReady:
		return "ready"
	case IdentityFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Resolved reports whether a fetch has completed for the entry.
func (s IdentityState) Resolved() bool {
	return s == IdentityReady || s == IdentityFailed
}

// IdentitySnapshot is a non-blocking view of one cache entry.
type IdentitySnapshot struct {
	State    IdentityState
	Identity domainauth.Identity
	Present  bool
}

// IdentityCacheConfig bounds the cache.
type IdentityCacheConfig struct {
	Size int
	TTL  time.Duration
}

// IdentityCacheOptions groups dependencies for IdentityCache.
type IdentityCacheOptions struct {
	API      ports.AccountAPI   // Required
	Sessions ports.SessionStore // Required
	Config   IdentityCacheConfig
	Metrics  statsd.Sink
	Logger   *slog.Logger
}

// identityEntry is one resolved lookup. Failed entries are kept only so Peek
// can report them; Fetch treats them as a miss. expiresAt is the console
// session's own expiry, zero when no session backs the entry.
type identityEntry struct {
	identity  domainauth.Identity
	present   bool
	failed    bool
	expiresAt time.Time
}

func (e identityEntry) expired(now time.Time) bool {
	return !e.expiresAt.IsZero() && !now.Before(e.expiresAt)
}

// flight marks one in-flight upstream fetch for a key. Invalidate drops the
// marker so a late result from a superseded fetch is not stored.
type flight struct{}

// IdentityCache resolves console session IDs to identities, sharing one
// upstream request among concurrent callers and caching the outcome.
type IdentityCache struct {
	api      ports.AccountAPI
	sessions ports.SessionStore
	entries  *expirable.LRU[string, identityEntry]
	group    singleflight.Group
	metrics  statsd.Sink
	logger   *slog.Logger
	now      func() time.Time

	mu       sync.Mutex
	inflight map[string]*flight
}

// NewIdentityCache constructs an IdentityCache.
func NewIdentityCache(opts IdentityCacheOptions) *IdentityCache {
	if opts.API == nil {
		panic("IdentityCache requires an AccountAPI")
	}
	if opts.Sessions == nil {
		panic("IdentityCache requires a SessionStore")
	}

	size := opts.Config.Size
	if size <= 0 {
		size = defaultIdentityCacheSize
	}
	ttl := opts.Config.TTL
	if ttl <= 0 {
		ttl = defaultIdentityCacheTTL
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &IdentityCache{
		api:      opts.API,
		sessions: opts.Sessions,
		entries:  expirable.NewLRU[string, identityEntry](size, nil, ttl),
		metrics:  opts.Metrics,
		logger:   logger.With("component", "identity_cache"),
		now:      time.Now,
		inflight: make(map[string]*flight),
	}
}

type fetchResult struct {
	identity   domainauth.Identity
	present    bool
	expiresAt  time.Time
	superseded bool
}

// Fetch returns the identity for the session key. Upstream failures resolve
// to an absent identity, never to an error, and are retried by the next
// Fetch. The only error is ErrFetchAbandoned, returned when ctx ends first.
// A fetch overtaken by Invalidate resolves absent for everyone waiting on it.
func (c *IdentityCache) Fetch(ctx context.Context, key string) (domainauth.Identity, bool, error) {
	if key == "" {
		return domainauth.Identity{}, false, nil
	}
	if e, ok := c.cached(key, true); ok && !e.failed {
		return e.identity, e.present, nil
	}
	if err := ctx.Err(); err != nil {
		return domainauth.Identity{}, false, ErrFetchAbandoned
	}

	detached := context.WithoutCancel(ctx)
	ch := c.group.DoChan(key, func() (any, error) {
		f := c.begin(key)
		res, failed := c.load(detached, key)
		res.superseded = !c.finish(key, f, res, failed)
		return res, nil
	})

	select {
	case r := <-ch:
		res, _ := r.Val.(fetchResult)
		if res.superseded {
			return domainauth.Identity{}, false, nil
		}
		return res.identity, res.present, nil
	case <-ctx.Done():
		return domainauth.Identity{}, false, ErrFetchAbandoned
	}
}

// Peek reports the entry's state without blocking or fetching.
func (c *IdentityCache) Peek(key string) IdentitySnapshot {
	if key == "" {
		return IdentitySnapshot{State: IdentityReady}
	}
	if e, ok := c.cached(key, false); ok {
		state := IdentityReady
		if e.failed {
			state = IdentityFailed
		}
		return IdentitySnapshot{State: state, Identity: e.identity, Present: e.present}
	}

	c.mu.Lock()
	_, fetching := c.inflight[key]
	c.mu.Unlock()
	if fetching {
		return IdentitySnapshot{State: IdentityFetching}
	}
	return IdentitySnapshot{State: IdentityUninitialized}
}

// Invalidate drops the cached entry and any in-flight fetch for key so the
// next Fetch goes upstream again.
func (c *IdentityCache) Invalidate(key string) {
	if key == "" {
		return
	}
	c.mu.Lock()
	delete(c.inflight, key)
	c.entries.Remove(key)
	c.group.Forget(key)
	c.mu.Unlock()
}

// Len returns the number of cached entries.
func (c *IdentityCache) Len() int {
	return c.entries.Len()
}

// cached returns the live entry for key, dropping it once its session has
// expired. touch refreshes the entry's LRU recency.
func (c *IdentityCache) cached(key string, touch bool) (identityEntry, bool) {
	get := c.entries.Peek
	if touch {
		get = c.entries.Get
	}
	e, ok := get(key)
	if !ok {
		return identityEntry{}, false
	}
	if e.expired(c.now()) {
		c.entries.Remove(key)
		return identityEntry{}, false
	}
	return e, true
}

func (c *IdentityCache) begin(key string) *flight {
	f := &flight{}
	c.mu.Lock()
	c.inflight[key] = f
	c.mu.Unlock()
	return f
}

// finish stores the outcome unless Invalidate superseded the flight, and
// reports whether it did.
func (c *IdentityCache) finish(key string, f *flight, res fetchResult, failed bool) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.inflight[key] != f {
		return false
	}
	delete(c.inflight, key)
	c.entries.Add(key, identityEntry{
		identity:  res.identity,
		present:   res.present,
		failed:    failed,
		expiresAt: res.expiresAt,
	})
	return true
}

// load resolves the session's stored API credentials and asks the account API
// who they belong to. failed is true for errors other than "not signed in".
func (c *IdentityCache) load(ctx context.Context, key string) (res fetchResult, failed bool) {
	start := c.now()
	var err error
	defer func() {
		metrics.EmitIdentityFetch(c.metrics, metrics.IdentityFetch{
			Present:  res.present,
			Duration: time.Since(start),
			Err:      err,
		})
	}()

	sess, err := c.sessions.Get(ctx, key)
	if err != nil {
		if apperrors.IsNotFound(err) {
			err = nil
			return fetchResult{}, false
		}
		c.logger.WarnContext(ctx, "session lookup failed", "error", err)
		return fetchResult{}, true
	}
	if sess.Expired(c.now()) {
		return fetchResult{}, false
	}

	id, err := c.api.CurrentUser(ctx, sess.Credentials)
	if err != nil {
		if apperrors.IsUnauthenticated(err) {
			c.logger.DebugContext(ctx, "session credentials rejected", "email", sess.Email)
			return fetchResult{}, false
		}
		c.logger.WarnContext(ctx, "identity fetch failed", "email", sess.Email, "error", err)
		return fetchResult{}, true
	}
	return fetchResult{identity: id, present: true, expiresAt: sess.ExpiresAt}, false
}
