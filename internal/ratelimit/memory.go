package ratelimit

import (
	"context"
	"sync"
	"time"
)

type hitLog struct {
	stamps []time.Time
	window time.Duration
}

// MemoryLimiter implements a sliding-window log limiter in process memory.
type MemoryLimiter struct {
	mu   sync.Mutex
	hits map[string]*hitLog
}

// NewMemoryLimiter constructs a MemoryLimiter.
func NewMemoryLimiter() *MemoryLimiter {
	return &MemoryLimiter{
		hits: make(map[string]*hitLog),
	}
}

// Allow records a hit when fewer than limit hits fall inside the window ending at now.
func (l *MemoryLimiter) Allow(_ context.Context, key string, limit int, window time.Duration, now time.Time) (Result, error) {
	if limit <= 0 || window <= 0 || key == "" {
		return Result{Allowed: true}, nil
	}
	cutoff := now.Add(-window)

	l.mu.Lock()
	defer l.mu.Unlock()

	entry, ok := l.hits[key]
	if !ok {
		entry = &hitLog{}
		l.hits[key] = entry
	}
	entry.window = window

	kept := entry.stamps[:0]
	for _, hit := range entry.stamps {
		if hit.After(cutoff) {
			kept = append(kept, hit)
		}
	}
	if len(kept) >= limit {
		entry.stamps = kept
		return Result{Allowed: false, Limit: limit, Remaining: 0, Reset: kept[0].Add(window)}, nil
	}
	kept = append(kept, now)
	entry.stamps = kept
	return Result{Allowed: true, Limit: limit, Remaining: limit - len(kept), Reset: kept[0].Add(window)}, nil
}

// Prune drops keys whose newest hit has left its window. It returns the number of keys removed.
func (l *MemoryLimiter) Prune(now time.Time) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	removed := 0
	for key, entry := range l.hits {
		if len(entry.stamps) == 0 || !entry.stamps[len(entry.stamps)-1].Add(entry.window).After(now) {
			delete(l.hits, key)
			removed++
		}
	}
	return removed
}

// Len reports how many keys are tracked.
func (l *MemoryLimiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.hits)
}
