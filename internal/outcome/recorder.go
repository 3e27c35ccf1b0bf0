// SPDX-License-Identifier: MIT

package outcome

import (
	"context"
	"encoding/json"
	"time"

	"github.com/rs/zerolog"

	"github.com/moodpulse/moodpulse/internal/bus"
	"github.com/moodpulse/moodpulse/internal/log"
	"github.com/moodpulse/moodpulse/internal/metrics"
	"github.com/moodpulse/moodpulse/internal/session"
)

// Retry schedule for failed writes: exponential from 100ms, capped at 30s,
// five attempts, then the record is dropped with an error log.
const (
	retryBase     = 100 * time.Millisecond
	retryCap      = 30 * time.Second
	retryAttempts = 5
)

// Recorder consumes the lifecycle topic and persists session state: every
// transition updates the hot snapshot, terminal transitions also land in
// the cold log.
type Recorder struct {
	snap   *SnapshotStore
	cold   *ColdLog
	logger zerolog.Logger
}

func NewRecorder(snap *SnapshotStore, cold *ColdLog) *Recorder {
	return &Recorder{snap: snap, cold: cold, logger: log.WithComponent("outcome")}
}

// Run subscribes to lifecycle events until ctx is done.
func (r *Recorder) Run(ctx context.Context, b bus.Bus) error {
	sub, err := b.Subscribe(ctx, bus.TopicLifecycle)
	if err != nil {
		return err
	}
	defer sub.Close()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-sub.C():
			if !ok {
				return nil
			}
			var ev session.LifecycleEvent
			if err := json.Unmarshal(msg, &ev); err != nil {
				r.logger.Warn().Err(err).Msg("dropping malformed lifecycle event")
				continue
			}
			r.handle(ctx, ev)
		}
	}
}

func (r *Recorder) handle(ctx context.Context, ev session.LifecycleEvent) {
	rec := Record{
		SessionID: ev.SessionID,
		TenantID:  ev.TenantID,
		State:     ev.NewState,
		Outcome:   ev.Outcome,
		UpdatedAt: ev.At,
		Summary:   ev.Summary,
	}

	r.persist(ctx, "snapshot", rec.SessionID, func() error { return r.snap.Put(rec) })

	if ev.NewState == session.StateTerminated && ev.Summary != nil {
		r.persist(ctx, "cold_log", rec.SessionID, func() error { return r.cold.Append(rec) })
	}
}

// persist retries a write on the backoff schedule. Context cancellation
// aborts between attempts.
func (r *Recorder) persist(ctx context.Context, store, sessionID string, write func() error) {
	delay := retryBase
	var err error
	for attempt := 1; attempt <= retryAttempts; attempt++ {
		if err = write(); err == nil {
			metrics.OutcomeWritesTotal.WithLabelValues(store, "ok").Inc()
			return
		}
		if attempt == retryAttempts {
			break
		}
		select {
		case <-ctx.Done():
			metrics.OutcomeWritesTotal.WithLabelValues(store, "canceled").Inc()
			return
		case <-time.After(delay):
		}
		delay *= 2
		if delay > retryCap {
			delay = retryCap
		}
	}
	metrics.OutcomeWritesTotal.WithLabelValues(store, "failed").Inc()
	r.logger.Error().Err(err).
		Str(log.FieldSessionID, sessionID).
		Str("store", store).
		Msg("outcome write failed after retries")
}
