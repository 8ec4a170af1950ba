package broadcast

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/neetpg/battle-backend/internal/config"
	"github.com/neetpg/battle-backend/internal/model"
	"github.com/redis/go-redis/v9"
)

// RedisBroadcaster publishes battle events on a per-battle Redis channel.
// Phase transitions are also stored as the battle's snapshot so late
// subscribers can catch up.
type RedisBroadcaster struct {
	rdb         redis.UniversalClient
	snapshotTTL time.Duration
}

// Subscription delivers raw envelopes published for one battle.
type Subscription struct {
	C       <-chan []byte
	closeFn func() error
}

// NewSubscription wraps a message channel and the function that ends it.
func NewSubscription(c <-chan []byte, closeFn func() error) *Subscription {
	return &Subscription{C: c, closeFn: closeFn}
}

// Close unsubscribes and releases the connection.
func (s *Subscription) Close() error {
	if s.closeFn == nil {
		return nil
	}
	return s.closeFn()
}

// NewRedisBroadcaster creates a new RedisBroadcaster.
func NewRedisBroadcaster(rdb redis.UniversalClient, snapshotTTL time.Duration) *RedisBroadcaster {
	return &RedisBroadcaster{rdb: rdb, snapshotTTL: snapshotTTL}
}

// Broadcast sends one event to every subscriber of battleID.
func (b *RedisBroadcaster) Broadcast(ctx context.Context, battleID uuid.UUID, event model.EventType, data interface{}) error {
	payload, err := BuildEnvelope(event, data)
	if err != nil {
		return err
	}

	id := battleID.String()
	_, err = b.rdb.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Publish(ctx, config.CacheKey.BattleChannel(id), payload)
		if event.IsPhaseTransition() && b.snapshotTTL > 0 {
			pipe.Set(ctx, config.CacheKey.BattleSnapshotKey(id), payload, b.snapshotTTL)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("publish %s: %w", event, err)
	}
	return nil
}

// Snapshot returns the last phase event of battleID, or nil if none is stored.
func (b *RedisBroadcaster) Snapshot(ctx context.Context, battleID uuid.UUID) ([]byte, error) {
	raw, err := b.rdb.Get(ctx, config.CacheKey.BattleSnapshotKey(battleID.String())).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get snapshot: %w", err)
	}
	return raw, nil
}

// Subscribe opens a subscription to battleID's channel. It returns once Redis
// has confirmed the subscription; C closes when ctx ends or the
// subscription is closed.
func (b *RedisBroadcaster) Subscribe(ctx context.Context, battleID uuid.UUID) (*Subscription, error) {
	pubsub := b.rdb.Subscribe(ctx, config.CacheKey.BattleChannel(battleID.String()))
	if _, err := pubsub.Receive(ctx); err != nil {
		pubsub.Close()
		return nil, fmt.Errorf("subscribe: %w", err)
	}

	out := make(chan []byte, 16)
	go func() {
		defer close(out)
		ch := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				select {
				case out <- []byte(msg.Payload):
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return NewSubscription(out, pubsub.Close), nil
}

// BuildEnvelope encodes {"type": event, "data": data}. Raw JSON data is
// embedded as is.
func BuildEnvelope(event model.EventType, data interface{}) ([]byte, error) {
	var raw json.RawMessage
	switch v := data.(type) {
	case json.RawMessage:
		raw = v
	case []byte:
		raw = v
	default:
		encoded, err := json.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("encode %s data: %w", event, err)
		}
		raw = encoded
	}
	if len(raw) == 0 {
		raw = json.RawMessage("null")
	}
	if !json.Valid(raw) {
		return nil, fmt.Errorf("encode %s data: invalid JSON", event)
	}
	return json.Marshal(model.Envelope{Type: event, Data: raw})
}
