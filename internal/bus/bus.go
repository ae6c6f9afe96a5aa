// Package bus defines the publish/subscribe and keyed-TTL-state
// abstraction every agentfabric component talks through. Two
// implementations satisfy the same interface: a Redis-backed one for
// production (package-level redis.go) and an in-process one for tests and
// Redis-less local development (inmem.go).
package bus

import (
	"context"
	"time"
)

// Bus is the seam every component (agent runtime, orchestrator, tool
// core, gateway, coordinator) is constructed against. There is no
// process-wide global client: each cmd/ main constructs one Bus and
// passes the handle down explicitly.
type Bus interface {
	// Publish sends payload on topic. It must not block past ctx's
	// deadline; a slow or absent subscriber never stalls the publisher.
	Publish(ctx context.Context, topic string, payload []byte) error

	// Subscribe returns a live Subscription delivering every payload
	// published to topic from this point forward. Callers must call
	// Unsubscribe when done to release the channel and any backing
	// resources.
	Subscribe(ctx context.Context, topic string) (*Subscription, error)

	// Unsubscribe stops delivery to sub and closes its channel.
	Unsubscribe(sub *Subscription)

	// SetState stores value under key with the given time-to-live. A
	// zero ttl means the key never expires on its own.
	SetState(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// GetState returns the value stored under key, or ok=false if the
	// key is absent or has expired.
	GetState(ctx context.Context, key string) (value []byte, ok bool, err error)

	// Close releases all resources held by the bus (connections,
	// background goroutines). Subscriptions become invalid.
	Close() error
}

// Subscription is a live subscription to one topic. C delivers payloads
// in publish order; it is closed when the subscription is torn down by
// Unsubscribe or by Close on the owning Bus.
type Subscription struct {
	Topic string
	C     <-chan []byte

	// internal fields set by the owning implementation, opaque to callers.
	id      uint64
	cleanup func()
}
