// SPDX-License-Identifier: MIT

// Package bus is the event transport between the pipeline and its
// consumers. Deployments run either the in-process memory bus or the
// Redis-backed bus; both deliver at-most-once and never block a publisher
// on a slow subscriber.
package bus

import (
	"context"
	"encoding/json"
	"fmt"
)

// Topics carried by the fabric. Payloads are JSON.
const (
	// TopicEmotions carries emotion.Sample state updates.
	TopicEmotions = "emotions.state"
	// TopicInterventions carries intervention.Command dispatches.
	TopicInterventions = "interventions.command"
	// TopicLifecycle carries session.LifecycleEvent transitions.
	TopicLifecycle = "sessions.lifecycle"
)

// Message is an encoded event payload.
type Message []byte

// Subscriber is one topic subscription.
type Subscriber interface {
	// C returns the delivery channel. It is closed by Close.
	C() <-chan Message
	// Close unsubscribes and releases the channel.
	Close() error
}

// Bus is the event transport abstraction.
type Bus interface {
	Publish(ctx context.Context, topic string, msg Message) error
	Subscribe(ctx context.Context, topic string) (Subscriber, error)
	Close() error
}

// PublishJSON marshals v and publishes it on topic.
func PublishJSON(ctx context.Context, b Bus, topic string, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s payload: %w", topic, err)
	}
	return b.Publish(ctx, topic, raw)
}
