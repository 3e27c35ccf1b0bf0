// SPDX-License-Identifier: MIT

// Package identity resolves visitor keys to user profiles so that emotion
// samples can carry a dollar value. Resolution is best-effort: the store
// being down degrades sessions to anonymous, it never stalls the pipeline.
package identity

import (
	"container/list"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"github.com/moodpulse/moodpulse/internal/log"
	"github.com/moodpulse/moodpulse/internal/metrics"
)

// Profile is the resolved view of a visitor. The zero value is anonymous.
type Profile struct {
	UserID   string  `json:"user_id"`
	Plan     string  `json:"plan,omitempty"`
	LTVUSD   float64 `json:"ltv_usd"`
	Resolved bool    `json:"resolved"`
}

// Anonymous is returned for unknown keys and on lookup failure.
var Anonymous = Profile{}

const (
	positiveTTL = 5 * time.Minute
	negativeTTL = 30 * time.Second

	// cacheCap bounds resident entries; the least recently used entry is
	// evicted when the cache is full.
	cacheCap = 50_000

	// lookupDeadline caps one store round-trip. The pipeline budget per
	// event is far below a second; a slow store must not eat it.
	lookupDeadline = 200 * time.Millisecond

	keyPrefix = "identity:"
)

type entry struct {
	key string
	p   Profile
	exp time.Time
}

// Resolver caches profile lookups against a Redis-backed identity view.
// The cache is a bounded LRU. A nil store (no IDENTITY_STORE_URL
// configured) resolves everything to anonymous.
type Resolver struct {
	rdb *redis.Client
	sf  singleflight.Group

	mu       sync.Mutex
	cache    map[string]*list.Element
	order    *list.List // front = most recently used
	capacity int

	logger zerolog.Logger
}

func newResolver(rdb *redis.Client) *Resolver {
	return &Resolver{
		rdb:      rdb,
		cache:    make(map[string]*list.Element),
		order:    list.New(),
		capacity: cacheCap,
		logger:   log.WithComponent("identity"),
	}
}

// NewResolver connects to the identity view at rawURL. An empty URL yields
// a resolver that answers anonymous for every key.
func NewResolver(ctx context.Context, rawURL string) (*Resolver, error) {
	if rawURL == "" {
		return newResolver(nil), nil
	}
	opts, err := redis.ParseURL(rawURL)
	if err != nil {
		return nil, fmt.Errorf("parse identity store url: %w", err)
	}
	rdb := redis.NewClient(opts)
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("connect identity store: %w", err)
	}
	return newResolver(rdb), nil
}

// NewResolverFromClient wraps an existing client; used by tests.
func NewResolverFromClient(rdb *redis.Client) *Resolver {
	return newResolver(rdb)
}

// Resolve maps key to a profile. Concurrent lookups for the same key are
// coalesced into one store round-trip. Failures resolve to Anonymous and
// are negatively cached so a down store is not hammered.
func (r *Resolver) Resolve(ctx context.Context, key string) Profile {
	if key == "" || r.rdb == nil {
		metrics.IdentityLookupsTotal.WithLabelValues("anonymous").Inc()
		return Anonymous
	}

	if p, ok := r.cached(key); ok {
		source := "cache"
		if !p.Resolved {
			source = "negative_cache"
		}
		metrics.IdentityLookupsTotal.WithLabelValues(source).Inc()
		return p
	}

	v, _, _ := r.sf.Do(key, func() (any, error) {
		return r.lookup(ctx, key), nil
	})
	return v.(Profile)
}

// Close releases the store connection.
func (r *Resolver) Close() error {
	if r.rdb == nil {
		return nil
	}
	return r.rdb.Close()
}

// Healthy reports whether the identity store answers a ping. A resolver
// without a store is trivially healthy.
func (r *Resolver) Healthy(ctx context.Context) error {
	if r.rdb == nil {
		return nil
	}
	return r.rdb.Ping(ctx).Err()
}

func (r *Resolver) cached(key string) (Profile, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	el, ok := r.cache[key]
	if !ok {
		return Anonymous, false
	}
	e := el.Value.(*entry)
	if time.Now().After(e.exp) {
		r.order.Remove(el)
		delete(r.cache, key)
		return Anonymous, false
	}
	r.order.MoveToFront(el)
	return e.p, true
}

func (r *Resolver) lookup(ctx context.Context, key string) Profile {
	ctx, cancel := context.WithTimeout(ctx, lookupDeadline)
	defer cancel()

	raw, err := r.rdb.Get(ctx, keyPrefix+key).Bytes()
	switch {
	case errors.Is(err, redis.Nil):
		metrics.IdentityLookupsTotal.WithLabelValues("miss").Inc()
		r.store(key, Anonymous, negativeTTL)
		return Anonymous
	case err != nil:
		metrics.IdentityLookupsTotal.WithLabelValues("error").Inc()
		r.logger.Warn().Err(err).Msg("identity lookup failed, resolving anonymous")
		r.store(key, Anonymous, negativeTTL)
		return Anonymous
	}

	var p Profile
	if err := json.Unmarshal(raw, &p); err != nil {
		metrics.IdentityLookupsTotal.WithLabelValues("error").Inc()
		r.logger.Warn().Err(err).Msg("identity record is malformed")
		r.store(key, Anonymous, negativeTTL)
		return Anonymous
	}
	p.Resolved = true
	metrics.IdentityLookupsTotal.WithLabelValues("store").Inc()
	r.store(key, p, positiveTTL)
	return p
}

func (r *Resolver) store(key string, p Profile, ttl time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()

	exp := time.Now().Add(ttl)
	if el, ok := r.cache[key]; ok {
		e := el.Value.(*entry)
		e.p, e.exp = p, exp
		r.order.MoveToFront(el)
		return
	}
	r.cache[key] = r.order.PushFront(&entry{key: key, p: p, exp: exp})
	for len(r.cache) > r.capacity {
		oldest := r.order.Back()
		if oldest == nil {
			break
		}
		r.order.Remove(oldest)
		delete(r.cache, oldest.Value.(*entry).key)
	}
}
