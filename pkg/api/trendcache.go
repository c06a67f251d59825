package api

import (
	"context"
	"errors"
	"strings"
	"time"
)

var (
	errCacheDisabled = errors.New("cache disabled")
	errCacheStopped  = errors.New("cache stopped")
	errNoLoader      = errors.New("no loader")
)

// trendRequest models a single cache lookup or population attempt. Using a
// struct keeps the channel signature compact so the goroutine that owns
// the cache handles a single message type.
type trendRequest struct {
	ctx    context.Context
	key    string
	loader func(context.Context) ([]byte, error)
	reply  chan trendResponse
}

// trendResponse carries either the cached bytes or an error back to the
// handler goroutine.
type trendResponse struct {
	data []byte
	err  error
}

// trendEntry records cached JSON along with its expiry timestamp. Stale
// entries are trimmed lazily on access so no extra timers are needed.
type trendEntry struct {
	data    []byte
	expires time.Time
}

// TrendCache keeps rendered trend responses in memory. A trend request
// aggregates the entire record, so identical requests within the TTL skip
// that work entirely. State lives inside a dedicated goroutine coordinated
// over channels, no mutexes. Uploads purge the affected kind so a fresh
// record is visible immediately rather than after the TTL.
type TrendCache struct {
	ttl        time.Duration
	requests   chan trendRequest
	invalidate chan string
	quit       chan struct{}
	now        func() time.Time
}

// NewTrendCache starts the caching goroutine immediately. Callers may pass
// a non-positive TTL to disable caching entirely. The clock is injectable
// for tests; in production it defaults to time.Now.
func NewTrendCache(ttl time.Duration) *TrendCache {
	if ttl <= 0 {
		return nil
	}
	cache := &TrendCache{
		ttl:        ttl,
		requests:   make(chan trendRequest),
		invalidate: make(chan string),
		quit:       make(chan struct{}),
		now:        time.Now,
	}
	go cache.loop()
	return cache
}

// Close stops the cache goroutine. Safe to call multiple times.
func (c *TrendCache) Close() {
	if c == nil {
		return
	}
	select {
	case <-c.quit:
		return
	default:
	}
	close(c.quit)
}

// Get returns cached bytes for the provided key or invokes loader to
// produce them. The stored slice is copied before returning so callers can
// modify the result without corrupting future hits.
func (c *TrendCache) Get(ctx context.Context, key string, loader func(context.Context) ([]byte, error)) ([]byte, error) {
	if c == nil {
		return nil, errCacheDisabled
	}
	req := trendRequest{
		ctx:    ctx,
		key:    key,
		loader: loader,
		reply:  make(chan trendResponse, 1),
	}
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-c.quit:
		return nil, errCacheStopped
	case c.requests <- req:
	}
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-c.quit:
		return nil, errCacheStopped
	case resp := <-req.reply:
		if resp.err != nil {
			return nil, resp.err
		}
		if resp.data == nil {
			return nil, nil
		}
		copyBuf := make([]byte, len(resp.data))
		copy(copyBuf, resp.data)
		return copyBuf, nil
	}
}

// Invalidate drops every entry whose key starts with prefix. Called after
// a successful upload with the kind's key prefix.
func (c *TrendCache) Invalidate(prefix string) {
	if c == nil {
		return
	}
	select {
	case <-c.quit:
	case c.invalidate <- prefix:
	}
}

// loop serialises all cache access inside a single goroutine so plain maps
// suffice without additional locking constructs.
func (c *TrendCache) loop() {
	store := make(map[string]trendEntry)
	for {
		select {
		case <-c.quit:
			return
		case prefix := <-c.invalidate:
			for key := range store {
				if strings.HasPrefix(key, prefix) {
					delete(store, key)
				}
			}
		case req := <-c.requests:
			now := c.now()
			if entry, ok := store[req.key]; ok && now.Before(entry.expires) {
				req.reply <- trendResponse{data: entry.data}
				continue
			}
			if req.loader == nil {
				req.reply <- trendResponse{err: errNoLoader}
				continue
			}
			data, err := req.loader(req.ctx)
			if err == nil && data != nil {
				buf := make([]byte, len(data))
				copy(buf, data)
				store[req.key] = trendEntry{data: buf, expires: now.Add(c.ttl)}
			} else if err != nil {
				delete(store, req.key)
			}
			req.reply <- trendResponse{data: data, err: err}
		}
	}
}
