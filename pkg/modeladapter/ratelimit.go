package modeladapter

import (
	"context"
	"errors"
	"math/rand"
	"sync"
	"time"

	"github.com/germanamz/shorts/pkg/chats/chat"
	"github.com/germanamz/shorts/pkg/chats/message"
	"github.com/germanamz/shorts/pkg/modeladapter/usage"
	"github.com/germanamz/shorts/pkg/tools/toolbox"
)

var _ Completer = (*RateLimitedCompleter)(nil)

// RateLimitOpts configures a RateLimitedCompleter.
type RateLimitOpts struct {
	TPM        int           // Tokens per minute, input plus output (0 = no limit).
	RPM        int           // Requests per minute (0 = no limit).
	MaxRetries int           // Retries on 429 (default 3).
	BaseDelay  time.Duration // First backoff delay (default 1s).
}

type windowEntry struct {
	at     time.Time
	tokens int
}

// RateLimitedCompleter throttles a Completer to a per-minute request and
// token budget and retries 429 responses with jittered exponential backoff.
type RateLimitedCompleter struct {
	inner     Completer
	opts      RateLimitOpts
	mu        sync.Mutex
	window    []windowEntry
	fallback  usage.Tracker
	nowFunc   func() time.Time
	sleepFunc func(ctx context.Context, d time.Duration) error
	randFunc  func() float64
}

// NewRateLimitedCompleter wraps inner.
func NewRateLimitedCompleter(inner Completer, opts RateLimitOpts) *RateLimitedCompleter {
	if opts.MaxRetries <= 0 {
		opts.MaxRetries = 3
	}
	if opts.BaseDelay <= 0 {
		opts.BaseDelay = time.Second
	}

	return &RateLimitedCompleter{
		inner:     inner,
		opts:      opts,
		nowFunc:   time.Now,
		sleepFunc: sleepContext,
		randFunc:  rand.Float64,
	}
}

// SetClock replaces the time and sleep sources. Used by tests.
func (r *RateLimitedCompleter) SetClock(now func() time.Time, sleep func(ctx context.Context, d time.Duration) error) {
	r.nowFunc = now
	r.sleepFunc = sleep
}

// SetRandFunc replaces the jitter source. Used by tests.
func (r *RateLimitedCompleter) SetRandFunc(fn func() float64) { r.randFunc = fn }

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Complete waits for budget, calls the inner completer and retries on 429.
func (r *RateLimitedCompleter) Complete(ctx context.Context, c *chat.Chat, tools []toolbox.Tool) (message.Message, error) {
	var lastErr error

	for attempt := 0; attempt <= r.opts.MaxRetries; attempt++ {
		if err := r.waitForBudget(ctx); err != nil {
			return message.Message{}, err
		}

		before := r.UsageTracker().Total()
		msg, err := r.inner.Complete(ctx, c, tools)
		spent := r.UsageTracker().Total().Total() - before.Total()
		r.record(spent)

		if err == nil {
			return msg, nil
		}

		var rle *RateLimitError
		if !errors.As(err, &rle) {
			return message.Message{}, err
		}
		lastErr = err

		if attempt == r.opts.MaxRetries {
			break
		}

		if err := r.sleepFunc(ctx, r.backoff(attempt, rle.RetryAfter)); err != nil {
			return message.Message{}, err
		}
	}

	return message.Message{}, lastErr
}

// backoff is BaseDelay*2^attempt, or retryAfter when larger, with ±25% jitter.
func (r *RateLimitedCompleter) backoff(attempt int, retryAfter time.Duration) time.Duration {
	d := max(r.opts.BaseDelay<<attempt, retryAfter)
	factor := 0.75 + r.randFunc()*0.5 //nolint:mnd // jitter range: ±25%
	return time.Duration(float64(d) * factor)
}

func (r *RateLimitedCompleter) record(tokens int) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.window = append(r.window, windowEntry{at: r.nowFunc(), tokens: tokens})
}

// waitForBudget blocks until the last minute holds fewer than RPM requests
// and fewer than TPM tokens.
func (r *RateLimitedCompleter) waitForBudget(ctx context.Context) error {
	if r.opts.TPM <= 0 && r.opts.RPM <= 0 {
		return nil
	}

	for {
		r.mu.Lock()
		now := r.nowFunc()

		cutoff := now.Add(-time.Minute)
		i := 0
		for i < len(r.window) && !r.window[i].at.After(cutoff) {
			i++
		}
		r.window = r.window[i:]

		tokens := 0
		for _, e := range r.window {
			tokens += e.tokens
		}

		ok := (r.opts.RPM <= 0 || len(r.window) < r.opts.RPM) &&
			(r.opts.TPM <= 0 || tokens < r.opts.TPM)

		var wait time.Duration
		if !ok && len(r.window) > 0 {
			wait = r.window[0].at.Add(time.Minute).Sub(now)
		}
		r.mu.Unlock()

		if ok {
			return nil
		}

		if err := r.sleepFunc(ctx, max(wait, 10*time.Millisecond)); err != nil {
			return err
		}
	}
}

// UsageTracker forwards to the inner completer when it counts tokens.
func (r *RateLimitedCompleter) UsageTracker() *usage.Tracker {
	if ur, ok := r.inner.(UsageReporter); ok {
		return ur.UsageTracker()
	}
	return &r.fallback
}
