// Package usage counts the tokens a model backend spends across a run.
package usage

import (
	"fmt"
	"sync"
)

// TokenCount is a token spend, of one call or accumulated.
type TokenCount struct {
	InputTokens  int
	OutputTokens int
}

// Total returns input plus output tokens.
func (tc TokenCount) Total() int {
	return tc.InputTokens + tc.OutputTokens
}

// Plus returns the sum of tc and o.
func (tc TokenCount) Plus(o TokenCount) TokenCount {
	return TokenCount{
		InputTokens:  tc.InputTokens + o.InputTokens,
		OutputTokens: tc.OutputTokens + o.OutputTokens,
	}
}

func (tc TokenCount) String() string {
	return fmt.Sprintf("%d in / %d out", tc.InputTokens, tc.OutputTokens)
}

// Tracker keeps running totals. The zero value is ready to use and it is
// safe for concurrent use.
type Tracker struct {
	mu    sync.Mutex
	calls int
	sum   TokenCount
	last  TokenCount
}

// Add records one call.
func (t *Tracker) Add(tc TokenCount) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.calls++
	t.sum = t.sum.Plus(tc)
	t.last = tc
}

// Last returns the most recent call, or false when nothing was recorded.
func (t *Tracker) Last() (TokenCount, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	return t.last, t.calls > 0
}

// Total returns the spend of every recorded call.
func (t *Tracker) Total() TokenCount {
	t.mu.Lock()
	defer t.mu.Unlock()

	return t.sum
}

// Count returns the number of recorded calls.
func (t *Tracker) Count() int {
	t.mu.Lock()
	defer t.mu.Unlock()

	return t.calls
}
