// SPDX-License-Identifier: MIT

package bus

import (
	"context"
	"fmt"
	"sync"

	"github.com/redis/go-redis/v9"

	"github.com/moodpulse/moodpulse/internal/log"
	"github.com/moodpulse/moodpulse/internal/metrics"
)

// RedisBus fans events out over Redis pub/sub so that multiple engine
// nodes and dashboard frontends see the same stream. Redis pub/sub is
// fire-and-forget, which matches the at-most-once contract.
type RedisBus struct {
	rdb *redis.Client
}

// NewRedisBus connects to the given redis:// URL and verifies the
// connection with a ping.
func NewRedisBus(ctx context.Context, rawURL string) (*RedisBus, error) {
	opts, err := redis.ParseURL(rawURL)
	if err != nil {
		return nil, fmt.Errorf("parse bus url: %w", err)
	}
	rdb := redis.NewClient(opts)
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("connect bus: %w", err)
	}
	return &RedisBus{rdb: rdb}, nil
}

// NewRedisBusFromClient wraps an existing client. The caller keeps
// ownership of the client's lifecycle.
func NewRedisBusFromClient(rdb *redis.Client) *RedisBus {
	return &RedisBus{rdb: rdb}
}

func (b *RedisBus) Publish(ctx context.Context, topic string, msg Message) error {
	if err := b.rdb.Publish(ctx, topic, []byte(msg)).Err(); err != nil {
		metrics.IncBusDrop(topic, "redis_publish")
		return fmt.Errorf("publish topic %q: %w", topic, err)
	}
	metrics.IncBusPublished(topic)
	return nil
}

func (b *RedisBus) Subscribe(ctx context.Context, topic string) (Subscriber, error) {
	ps := b.rdb.Subscribe(ctx, topic)
	// Force the SUBSCRIBE round-trip so a dead broker fails here, not on
	// first receive.
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, fmt.Errorf("subscribe topic %q: %w", topic, err)
	}

	s := &redisSub{ps: ps, topic: topic, ch: make(chan Message, subBuffer)}
	go s.pump()
	return s, nil
}

// Ping verifies broker connectivity; used by the readiness probe.
func (b *RedisBus) Ping(ctx context.Context) error {
	return b.rdb.Ping(ctx).Err()
}

func (b *RedisBus) Close() error {
	return b.rdb.Close()
}

type redisSub struct {
	ps    *redis.PubSub
	topic string
	ch    chan Message
	once  sync.Once
}

func (s *redisSub) pump() {
	defer close(s.ch)
	for m := range s.ps.Channel() {
		select {
		case s.ch <- Message(m.Payload):
		default:
			metrics.IncBusDrop(s.topic, "slow_subscriber")
			log.L().Warn().
				Str(log.FieldTopic, s.topic).
				Msg("redis bus dropped message for slow subscriber")
		}
	}
}

func (s *redisSub) C() <-chan Message { return s.ch }

func (s *redisSub) Close() error {
	var err error
	s.once.Do(func() { err = s.ps.Close() })
	return err
}

var _ Bus = (*RedisBus)(nil)

// New picks the transport from configuration: a redis:// URL selects the
// Redis bus, an empty URL the in-process bus.
func New(ctx context.Context, busURL string) (Bus, error) {
	if busURL == "" {
		return NewMemoryBus(), nil
	}
	return NewRedisBus(ctx, busURL)
}
