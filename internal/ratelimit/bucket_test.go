package ratelimit

import (
	"testing"
	"time"
)

// fakeClock lets tests advance time without sleeping.
type fakeClock struct {
	t time.Time
}

func (c *fakeClock) now() time.Time { return c.t }

func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestBucket(maxTokens, refillPerSec float64) (*Bucket, *fakeClock) {
	clock := &fakeClock{t: time.Unix(1700000000, 0)}
	b := New(maxTokens, refillPerSec)
	b.now = clock.now
	b.lastRefill = clock.t
	return b, clock
}

func TestBucket_BurstThenReject(t *testing.T) {
	b, _ := newTestBucket(3, 0.2)

	for i := 0; i < 3; i++ {
		if !b.Allow() {
			t.Fatalf("call %d should be allowed", i+1)
		}
	}
	if b.Allow() {
		t.Error("fourth immediate call should be rejected")
	}
}

func TestBucket_RefillAfterFiveSeconds(t *testing.T) {
	b, clock := newTestBucket(3, 0.2)

	for i := 0; i < 3; i++ {
		b.Allow()
	}
	if b.Allow() {
		t.Fatal("bucket should be drained")
	}

	clock.advance(5 * time.Second)
	if !b.Allow() {
		t.Error("one token should have refilled after 5s")
	}
	if b.Allow() {
		t.Error("only one token should have refilled after 5s")
	}
}

func TestBucket_RefillNeverExceedsMax(t *testing.T) {
	b, clock := newTestBucket(3, 0.2)

	clock.advance(24 * time.Hour)
	if got := b.Tokens(); got != 3 {
		t.Errorf("Tokens() = %v, want 3 (capped at max)", got)
	}
}

func TestBucket_NeverNegative(t *testing.T) {
	b, clock := newTestBucket(2, 0.5)

	for i := 0; i < 20; i++ {
		b.Allow()
		if got := b.Tokens(); got < 0 || got > 2 {
			t.Fatalf("tokens out of range after call %d: %v", i+1, got)
		}
		clock.advance(300 * time.Millisecond)
	}
}

func TestBucket_RejectedRequestConsumesNothing(t *testing.T) {
	b, clock := newTestBucket(1, 0.1)

	if !b.Allow() {
		t.Fatal("first call should be allowed")
	}

	// Drained; repeated rejections must not push the count below zero.
	for i := 0; i < 5; i++ {
		if b.Allow() {
			t.Fatal("call on drained bucket should be rejected")
		}
	}

	clock.advance(10 * time.Second)
	if !b.Allow() {
		t.Error("token should be available after refill interval")
	}
}

func TestBucket_ZeroRefillNeverRecovers(t *testing.T) {
	b, clock := newTestBucket(1, 0)

	if !b.Allow() {
		t.Fatal("first call should be allowed")
	}
	if b.Allow() {
		t.Error("second immediate call should be rejected")
	}

	clock.advance(100 * time.Second)
	if b.Allow() {
		t.Error("zero refill rate should never recover")
	}
}

func TestBucket_TokensDoesNotConsume(t *testing.T) {
	b, _ := newTestBucket(3, 0.2)

	for i := 0; i < 10; i++ {
		if got := b.Tokens(); got != 3 {
			t.Fatalf("Tokens() = %v, want 3", got)
		}
	}
}

func TestBucket_Reset(t *testing.T) {
	b, _ := newTestBucket(3, 0)

	for i := 0; i < 3; i++ {
		b.Allow()
	}
	b.Reset()

	if got := b.Tokens(); got != 3 {
		t.Errorf("Tokens() after Reset = %v, want 3", got)
	}
}
