// SPDX-License-Identifier: MIT

package bus

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/moodpulse/moodpulse/internal/log"
	"github.com/moodpulse/moodpulse/internal/metrics"
)

// subBuffer bounds each subscriber's delivery channel. A subscriber that
// falls this far behind starts losing messages.
const subBuffer = 64

const dropLogEvery = 100

var dropCount atomic.Uint64

// MemoryBus is the in-process pub/sub used for single-node deployments and
// tests. Delivery is at-most-once: a full subscriber channel drops the
// message rather than stalling the publisher.
type MemoryBus struct {
	mu     sync.RWMutex
	subs   map[string][]chan Message
	closed bool
}

func NewMemoryBus() *MemoryBus {
	return &MemoryBus{subs: make(map[string][]chan Message)}
}

func (b *MemoryBus) Publish(ctx context.Context, topic string, msg Message) error {
	if err := ctx.Err(); err != nil {
		metrics.IncBusDrop(topic, "context_done")
		return fmt.Errorf("publish topic %q: %w", topic, err)
	}
	b.mu.RLock()
	if b.closed {
		b.mu.RUnlock()
		return fmt.Errorf("publish topic %q: bus closed", topic)
	}
	chs := append([]chan Message(nil), b.subs[topic]...)
	b.mu.RUnlock()

	for _, ch := range chs {
		select {
		case ch <- msg:
		default:
			metrics.IncBusDrop(topic, "slow_subscriber")
			if n := dropCount.Add(1); n%dropLogEvery == 0 {
				log.L().Warn().
					Str(log.FieldTopic, topic).
					Uint64("dropped", n).
					Msg("memory bus dropped message for slow subscriber")
			}
		}
	}
	metrics.IncBusPublished(topic)
	return nil
}

func (b *MemoryBus) Subscribe(_ context.Context, topic string) (Subscriber, error) {
	ch := make(chan Message, subBuffer)

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil, fmt.Errorf("subscribe topic %q: bus closed", topic)
	}
	b.subs[topic] = append(b.subs[topic], ch)
	return &memSub{b: b, topic: topic, ch: ch}, nil
}

// Close detaches and closes every subscriber channel.
func (b *MemoryBus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil
	}
	b.closed = true
	for _, chs := range b.subs {
		for _, ch := range chs {
			close(ch)
		}
	}
	b.subs = nil
	return nil
}

type memSub struct {
	b     *MemoryBus
	topic string
	ch    chan Message
	once  sync.Once
}

func (s *memSub) C() <-chan Message { return s.ch }

func (s *memSub) Close() error {
	s.once.Do(func() {
		s.b.mu.Lock()
		defer s.b.mu.Unlock()
		if s.b.closed {
			return
		}
		lst := s.b.subs[s.topic]
		out := lst[:0]
		for _, c := range lst {
			if c != s.ch {
				out = append(out, c)
			}
		}
		if len(out) == 0 {
			delete(s.b.subs, s.topic)
		} else {
			s.b.subs[s.topic] = out
		}
		close(s.ch)
	})
	return nil
}

var _ Bus = (*MemoryBus)(nil)
