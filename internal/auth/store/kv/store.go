// Package kv holds the durable key-value backends the token store persists
// the current session through. Every backend returns sentinel.ErrNotFound
// from Load when the key is absent.
package kv

import "time"

// Clock is injected for testability (defaults to time.Now).
type Clock func() time.Time

// LatencyObserver records backend latency. *metrics.Metrics satisfies it.
type LatencyObserver interface {
	ObserveStoreLatency(backend, op string, start time.Time)
}

type noopObserver struct{}

func (noopObserver) ObserveStoreLatency(string, string, time.Time) {}
