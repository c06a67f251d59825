package api

import (
	"context"
	"time"
)

// ===========================
// Per-IP upload serialization
// ===========================

// UploadLimiter sequences uploads per client IP without relying on mutexes.
// Each IP gets its own goroutine, so the design follows "Do not communicate
// by sharing memory; share memory by communicating". Uploads replace the
// active record wholesale, so letting one client fire them concurrently
// buys nothing and burns parsing work; after each upload the same IP also
// waits out a short cooldown.
type UploadLimiter struct {
	cooldown time.Duration
	requests chan keyedRequest
	now      func() time.Time
}

type keyedRequest struct {
	ip  string
	req uploadRequest
}

type uploadRequest struct {
	ctx      context.Context
	response chan acquireResponse
}

type acquireResponse struct {
	release chan struct{}
	err     error
}

// Permit represents an acquired upload slot. Call Release when the handler
// finished so the next queued upload from the same IP can proceed.
type Permit struct {
	release chan struct{}
}

// Release signals the IP's worker that the upload is done. The channel is
// set to nil afterwards so double releases are harmless.
func (p *Permit) Release() {
	if p == nil || p.release == nil {
		return
	}
	close(p.release)
	p.release = nil
}

// NewUploadLimiter constructs a limiter that enforces the given cooldown
// between consecutive uploads from one IP. The coordination goroutine
// starts immediately so the caller needs no extra plumbing.
func NewUploadLimiter(cooldown time.Duration) *UploadLimiter {
	l := &UploadLimiter{
		cooldown: cooldown,
		requests: make(chan keyedRequest),
		now:      time.Now,
	}

	go l.loop()

	return l
}

// Acquire reserves the upload slot for the given IP. The returned Permit
// must be released once the handler is done. A cancelled context while
// queued returns the context error.
func (l *UploadLimiter) Acquire(ctx context.Context, ip string) (*Permit, error) {
	if l == nil {
		return nil, nil
	}

	respCh := make(chan acquireResponse, 1)
	req := uploadRequest{ctx: ctx, response: respCh}

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case l.requests <- keyedRequest{ip: ip, req: req}:
	}

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case resp := <-respCh:
		if resp.err != nil {
			return nil, resp.err
		}
		return &Permit{release: resp.release}, nil
	}
}

func (l *UploadLimiter) loop() {
	workers := make(map[string]chan uploadRequest)

	for keyed := range l.requests {
		ch, ok := workers[keyed.ip]
		if !ok {
			ch = make(chan uploadRequest)
			workers[keyed.ip] = ch
			go l.runIPWorker(ch)
		}

		select {
		case ch <- keyed.req:
		case <-keyed.req.ctx.Done():
			keyed.req.response <- acquireResponse{err: keyed.req.ctx.Err()}
		}
	}
}

func (l *UploadLimiter) runIPWorker(requests <-chan uploadRequest) {
	var lastFinish time.Time

	for req := range requests {
		select {
		case <-req.ctx.Done():
			req.response <- acquireResponse{err: req.ctx.Err()}
			continue
		default:
		}

		if !lastFinish.IsZero() {
			readyAt := lastFinish.Add(l.cooldown)
			if now := l.now(); now.Before(readyAt) {
				timer := time.NewTimer(readyAt.Sub(now))
				select {
				case <-req.ctx.Done():
					if !timer.Stop() {
						<-timer.C
					}
					req.response <- acquireResponse{err: req.ctx.Err()}
					continue
				case <-timer.C:
				}
			}
		}

		release := make(chan struct{})

		select {
		case <-req.ctx.Done():
			req.response <- acquireResponse{err: req.ctx.Err()}
			continue
		case req.response <- acquireResponse{release: release}:
		}

		select {
		case <-release:
		case <-req.ctx.Done():
			<-release
		}

		lastFinish = l.now()
	}
}
