// Package ratelimit implements the token-bucket admission gate that sits in
// front of the generation pipeline.
package ratelimit

import (
	"sync"
	"time"
)

// Bucket is a token bucket: permits accumulate at a fixed rate up to a cap
// and each admitted request consumes exactly one.
//
// A refill rate of zero yields a bucket that never refills once drained.
type Bucket struct {
	mu           sync.Mutex
	max          float64
	refillPerSec float64
	tokens       float64
	lastRefill   time.Time
	now          func() time.Time
}

// New creates a full bucket with the given capacity and refill rate
// (tokens per second).
func New(maxTokens, refillPerSec float64) *Bucket {
	if maxTokens < 1 {
		maxTokens = 1
	}
	if refillPerSec < 0 {
		refillPerSec = 0
	}
	b := &Bucket{
		max:          maxTokens,
		refillPerSec: refillPerSec,
		tokens:       maxTokens,
		now:          time.Now,
	}
	b.lastRefill = b.now()
	return b
}

// Allow refills the bucket from elapsed wall-clock time, then consumes one
// token if at least one is available. A rejected request consumes nothing.
func (b *Bucket) Allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.refill()
	if b.tokens < 1 {
		return false
	}
	b.tokens--
	return true
}

// Tokens returns the current token count after refill, without consuming.
func (b *Bucket) Tokens() float64 {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.refill()
	return b.tokens
}

// Reset restores the bucket to full capacity and resets the refill clock.
func (b *Bucket) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.tokens = b.max
	b.lastRefill = b.now()
}

// refill adds refillPerSec tokens per elapsed second, capped at max.
// Caller must hold mu.
func (b *Bucket) refill() {
	now := b.now()
	elapsed := now.Sub(b.lastRefill).Seconds()
	b.lastRefill = now

	if elapsed <= 0 || b.refillPerSec == 0 {
		return
	}
	b.tokens += elapsed * b.refillPerSec
	if b.tokens > b.max {
		b.tokens = b.max
	}
}
