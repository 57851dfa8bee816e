package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/trigg3rX/labelmarket-backend/internal/metrics"
	"github.com/trigg3rX/labelmarket-backend/pkg/logging"
)

const (
	DefaultTTL             = 30 * time.Second
	DefaultGrace           = 2 * time.Second
	DefaultLiveKeyLifetime = 5 * time.Minute
)

type Config struct {
	// TTL bounds how long an entry is served without a refresh
	TTL time.Duration
	// Grace is the delay before invalidated keys are dropped a second time, covering
	// reads served by a replica that had not yet applied the write
	Grace time.Duration
	// LiveKeyLifetime is how long a key keeps being auto-refreshed after its last read
	LiveKeyLifetime time.Duration
}

func DefaultConfig() Config {
	return Config{TTL: DefaultTTL, Grace: DefaultGrace, LiveKeyLifetime: DefaultLiveKeyLifetime}
}

type liveKey struct {
	refresh  func(ctx context.Context) error
	lastRead time.Time
}

// Layer is a keyed, time-bound cache in front of ledger queries. Concurrent misses on
// the same key share one load; invalidation wins over loads that started before it.
type Layer struct {
	backend Backend
	config  Config
	logger  logging.Logger
	group   singleflight.Group
	now     func() time.Time

	mu          sync.Mutex
	generations map[string]uint64
	live        map[string]*liveKey
	timers      map[*time.Timer]struct{}
	listeners   []func(keys []string)
	closed      bool
}

func NewLayer(backend Backend, cfg Config, logger logging.Logger) *Layer {
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultTTL
	}
	if cfg.LiveKeyLifetime <= 0 {
		cfg.LiveKeyLifetime = DefaultLiveKeyLifetime
	}
	return &Layer{
		backend:     backend,
		config:      cfg,
		logger:      logger,
		now:         time.Now,
		generations: make(map[string]uint64),
		live:        make(map[string]*liveKey),
		timers:      make(map[*time.Timer]struct{}),
	}
}

// Fetch serves key from the cache or loads it. A failed load is not cached.
func Fetch[T any](ctx context.Context, l *Layer, key string, load func(ctx context.Context) (T, error)) (T, error) {
	var zero T

	l.touch(key, func(ctx context.Context) error {
		_, _, err := sharedLoad(ctx, l, key, load)
		return err
	})

	if raw, err := l.backend.Get(ctx, key); err == nil {
		var value T
		if err := json.Unmarshal(raw, &value); err == nil {
			metrics.CacheRequestsTotal.WithLabelValues("hit").Inc()
			return value, nil
		}
		l.logger.Warn("Dropping undecodable cache entry", "key", key)
	} else if !errors.Is(err, ErrMiss) {
		// A broken backend degrades to uncached reads.
		l.logger.Warn("Cache backend read failed", "key", key, "error", err)
	}

	value, shared, err := sharedLoad(ctx, l, key, load)
	if shared {
		metrics.CacheRequestsTotal.WithLabelValues("coalesced").Inc()
	} else {
		metrics.CacheRequestsTotal.WithLabelValues("miss").Inc()
	}
	if err != nil {
		return zero, err
	}
	return value, nil
}

// sharedLoad joins the single in-flight load for key, starting it if none runs.
// The load is detached from the caller's cancellation so one caller leaving does not
// fail the others; each caller still stops waiting when its own ctx ends.
func sharedLoad[T any](ctx context.Context, l *Layer, key string, load func(ctx context.Context) (T, error)) (T, bool, error) {
	var zero T
	detached := context.WithoutCancel(ctx)
	ch := l.group.DoChan(key, func() (any, error) {
		return loadAndStore(detached, l, key, load)
	})

	select {
	case <-ctx.Done():
		return zero, false, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return zero, res.Shared, res.Err
		}
		if res.Val == nil {
			return zero, res.Shared, nil
		}
		value, ok := res.Val.(T)
		if !ok {
			return zero, res.Shared, fmt.Errorf("cache key %s: loaded %T", key, res.Val)
		}
		return value, res.Shared, nil
	}
}

func loadAndStore[T any](ctx context.Context, l *Layer, key string, load func(ctx context.Context) (T, error)) (T, error) {
	generation := l.generation(key)

	value, err := load(ctx)
	if err != nil {
		return value, err
	}

	raw, err := json.Marshal(value)
	if err != nil {
		l.logger.Warn("Failed to encode cache entry", "key", key, "error", err)
		return value, nil
	}

	// Skip the write if the key was invalidated while loading: the value may predate
	// the mutation.
	if l.generation(key) != generation {
		return value, nil
	}
	if err := l.backend.Set(ctx, key, raw, l.config.TTL); err != nil {
		l.logger.Warn("Cache backend write failed", "key", key, "error", err)
	}
	return value, nil
}

// Invalidate drops keys now and again after the grace delay.
func (l *Layer) Invalidate(ctx context.Context, keys ...string) {
	if len(keys) == 0 {
		return
	}
	l.drop(ctx, keys)
	metrics.CacheInvalidationsTotal.Add(float64(len(keys)))
	l.logger.Debug("Invalidated cache keys", "keys", keys)
	l.notify(keys)

	if l.config.Grace <= 0 {
		return
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return
	}
	var timer *time.Timer
	timer = time.AfterFunc(l.config.Grace, func() {
		l.mu.Lock()
		delete(l.timers, timer)
		l.mu.Unlock()
		l.drop(context.Background(), keys)
	})
	l.timers[timer] = struct{}{}
}

// OnInvalidate registers fn to be called with every set of invalidated keys. It is
// called once per Invalidate, not again for the grace drop.
func (l *Layer) OnInvalidate(fn func(keys []string)) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.listeners = append(l.listeners, fn)
}

func (l *Layer) notify(keys []string) {
	l.mu.Lock()
	listeners := append([]func([]string){}, l.listeners...)
	l.mu.Unlock()
	for _, fn := range listeners {
		fn(keys)
	}
}

func (l *Layer) drop(ctx context.Context, keys []string) {
	l.mu.Lock()
	for _, key := range keys {
		l.generations[key]++
	}
	l.mu.Unlock()

	if err := l.backend.Delete(ctx, keys...); err != nil {
		l.logger.Warn("Cache backend delete failed", "keys", keys, "error", err)
	}
}

func (l *Layer) generation(key string) uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.generations[key]
}

func (l *Layer) touch(key string, refresh func(ctx context.Context) error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.live[key] = &liveKey{refresh: refresh, lastRead: l.now()}
}

// Refresh reloads every key read within the live-key lifetime and forgets the rest.
// It returns the number of keys refreshed.
func (l *Layer) Refresh(ctx context.Context) (int, error) {
	l.mu.Lock()
	cutoff := l.now().Add(-l.config.LiveKeyLifetime)
	refreshers := make(map[string]func(context.Context) error, len(l.live))
	for key, lk := range l.live {
		if lk.lastRead.Before(cutoff) {
			delete(l.live, key)
			continue
		}
		refreshers[key] = lk.refresh
	}
	l.mu.Unlock()

	var errs []error
	refreshed := 0
	for key, refresh := range refreshers {
		if err := ctx.Err(); err != nil {
			return refreshed, err
		}
		if err := refresh(ctx); err != nil {
			metrics.CacheRefreshesTotal.WithLabelValues("error").Inc()
			l.logger.Warn("Cache refresh failed", "key", key, "error", err)
			errs = append(errs, err)
			continue
		}
		metrics.CacheRefreshesTotal.WithLabelValues("ok").Inc()
		refreshed++
	}
	return refreshed, errors.Join(errs...)
}

// LiveKeys returns how many keys are currently auto-refreshed.
func (l *Layer) LiveKeys() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.live)
}

// Close stops pending grace timers.
func (l *Layer) Close() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.closed = true
	for timer := range l.timers {
		timer.Stop()
	}
	l.timers = map[*time.Timer]struct{}{}
}
