package domain

import (
	"context"
	"time"
)

// RateLimiter provides distributed rate limiting.
type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}

// LockManager provides distributed locking.
type LockManager interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (unlock func(), err error)
}

// SignalBus provides pub/sub and durable streams.
type SignalBus interface {
	Publish(ctx context.Context, channel string, payload []byte) error
	Subscribe(ctx context.Context, channel string) (<-chan []byte, error)
	StreamAppend(ctx context.Context, stream string, payload []byte) error
}

// ScanHistory reads back recent stream entries, newest first.
type ScanHistory interface {
	StreamRecent(ctx context.Context, stream string, count int) ([][]byte, error)
}

// Channel and stream names used on the SignalBus.
const (
	ChannelOpportunities = "freightarb:opportunities"
	StreamScans          = "freightarb:scans"
)
