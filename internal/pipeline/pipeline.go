// SPDX-License-Identifier: MIT

// Package pipeline runs the per-event processing chain: session update,
// physics accumulation, identity resolution, classification, pattern
// detection and intervention dispatch. Work is sharded by session ID so
// each session is only ever touched by one worker.
package pipeline

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"github.com/moodpulse/moodpulse/internal/bus"
	"github.com/moodpulse/moodpulse/internal/emotion"
	"github.com/moodpulse/moodpulse/internal/events"
	"github.com/moodpulse/moodpulse/internal/identity"
	"github.com/moodpulse/moodpulse/internal/intervention"
	"github.com/moodpulse/moodpulse/internal/log"
	"github.com/moodpulse/moodpulse/internal/metrics"
	"github.com/moodpulse/moodpulse/internal/pattern"
	"github.com/moodpulse/moodpulse/internal/physics"
	"github.com/moodpulse/moodpulse/internal/session"
)

// eventBudget is the per-event soft deadline; exceeding it is counted and
// logged but never aborts processing.
const eventBudget = 50 * time.Millisecond

// task is one unit of shard work.
type task struct {
	ev      events.Event
	userKey string
	url     string
}

// Deps are the pipeline's collaborators.
type Deps struct {
	Store      *session.Store
	Classifier *emotion.Classifier
	Detector   *pattern.Detector
	Engine     *intervention.Engine
	Resolver   *identity.Resolver
	Bus        bus.Bus
}

// Config sizes the queues.
type Config struct {
	// QueueDepth is the per-shard backlog; beyond it the oldest queued
	// event is dropped to admit the new one.
	QueueDepth int
	// Now overrides the clock in tests.
	Now func() time.Time
}

// Pipeline owns the shard workers.
type Pipeline struct {
	deps   Deps
	queues []chan task
	now    func() time.Time
	logger zerolog.Logger

	wg      sync.WaitGroup
	started bool
}

func New(deps Deps, cfg Config) *Pipeline {
	if cfg.QueueDepth <= 0 {
		cfg.QueueDepth = 1000
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	p := &Pipeline{
		deps:   deps,
		queues: make([]chan task, deps.Store.ShardCount()),
		now:    cfg.Now,
		logger: log.WithComponent("pipeline"),
	}
	for i := range p.queues {
		p.queues[i] = make(chan task, cfg.QueueDepth)
	}
	return p
}

// Start launches one worker per shard. Workers exit when ctx is done.
func (p *Pipeline) Start(ctx context.Context) {
	if p.started {
		return
	}
	p.started = true
	for i := range p.queues {
		p.wg.Add(1)
		go p.worker(ctx, i)
	}
}

// Wait blocks until all workers have exited.
func (p *Pipeline) Wait() { p.wg.Wait() }

// EnqueueBatch admits every event of a normalized batch. Order within the
// batch is preserved because all of a session's events map to one shard.
func (p *Pipeline) EnqueueBatch(b events.Batch, evs []events.Event) {
	for _, ev := range evs {
		p.enqueue(task{ev: ev, userKey: b.UserKey, url: b.URL})
	}
}

// enqueue admits t to its shard queue, evicting the oldest queued task
// when the shard is saturated.
func (p *Pipeline) enqueue(t task) {
	q := p.queues[p.deps.Store.ShardIndex(t.ev.SessionID)]
	for {
		select {
		case q <- t:
			return
		default:
		}
		select {
		case <-q: // drop-oldest
			metrics.SessionQueueDropsTotal.Inc()
		default:
		}
	}
}

func (p *Pipeline) worker(ctx context.Context, shard int) {
	defer p.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case t := <-p.queues[shard]:
			p.safeProcess(ctx, shard, t)
		}
	}
}

// safeProcess isolates panics: a poison event is logged and counted, the
// worker keeps serving its shard.
func (p *Pipeline) safeProcess(ctx context.Context, shard int, t task) {
	defer func() {
		if r := recover(); r != nil {
			metrics.WorkerPanicsTotal.WithLabelValues(strconv.Itoa(shard)).Inc()
			p.logger.Error().
				Int(log.FieldShard, shard).
				Str(log.FieldSessionID, t.ev.SessionID).
				Str("event_type", string(t.ev.Type)).
				Str("panic", fmt.Sprint(r)).
				Msg("worker recovered from panic")
		}
	}()
	p.process(ctx, t)
}

func (p *Pipeline) process(ctx context.Context, t task) {
	start := p.now()
	timer := prometheus.NewTimer(metrics.ClassifyDuration)
	defer func() {
		timer.ObserveDuration()
		if elapsed := p.now().Sub(start); elapsed > eventBudget {
			metrics.ClassifyOverrunsTotal.Inc()
			p.logger.Warn().
				Str(log.FieldSessionID, t.ev.SessionID).
				Str("event_type", string(t.ev.Type)).
				Dur("elapsed", elapsed).
				Msg("event processing exceeded budget")
		}
	}()

	ev := t.ev
	s, _ := p.deps.Store.GetOrCreate(ev.SessionID, ev.TenantID)
	p.deps.Store.Touch(s)

	// Control events short-circuit the behavioral chain. Mute is a
	// lifecycle transition, so it goes through the store.
	switch ev.Type {
	case events.TypeMute:
		p.deps.Store.SetMuted(ev.SessionID, true)
		return
	case events.TypeUnmute:
		p.deps.Store.SetMuted(ev.SessionID, false)
		return
	case events.TypeSessionEnd:
		p.deps.Store.BeginClose(ev.SessionID, session.OutcomeEnded)
		return
	}

	// The behavioral chain runs under the session mutex so a concurrent
	// summary (sweep, close timer, shutdown) sees a consistent session.
	// Store calls stay outside the closure; the store takes this mutex.
	converted := false
	s.Update(func() {
		converted = p.advance(ctx, s, t)
	})
	if converted {
		p.deps.Store.BeginClose(s.ID, session.OutcomeConverted)
	}
}

// advance applies one behavioral event to s and reports whether it
// completed a conversion. Caller holds the session mutex.
func (p *Pipeline) advance(ctx context.Context, s *session.Session, t task) bool {
	ev := t.ev
	if s.IdentityKey == "" && t.userKey != "" {
		s.IdentityKey = t.userKey
	}
	if s.URL == "" && t.url != "" {
		s.URL = t.url
	}

	if s.IsDuplicate(ev) {
		metrics.IncIngestEvent("duplicate")
		return false
	}
	s.RecordEvent(ev)
	metrics.IncIngestEvent("accepted")

	if s.HasPhysics {
		s.Physics = physics.Update(s.Physics, ev)
	} else {
		s.Physics = physics.NewState(ev)
		s.HasPhysics = true
	}

	converted := false
	if ev.Type == events.TypeFormSubmit && ev.Success &&
		(ev.Section == events.SectionCheckout || ev.Section == events.SectionCart) {
		s.Converted = true
		converted = true
	}

	if !s.Profile.Resolved && s.IdentityKey != "" && p.deps.Resolver != nil {
		s.Profile = p.deps.Resolver.Resolve(ctx, s.IdentityKey)
	}

	now := p.now()
	cands := p.classify(ctx, s, ev, now)
	p.decide(ctx, s, cands, now)
	return converted
}

// classify runs tiers 1-3 and, when a sample survives its cooldown, emits
// it and returns the pattern candidates it produced.
func (p *Pipeline) classify(ctx context.Context, s *session.Session, ev events.Event, now time.Time) []pattern.Detection {
	res, ok := p.deps.Classifier.Classify(emotion.Input{
		Physics:    s.Physics,
		Event:      ev,
		Section:    ev.Section,
		SessionAge: s.Age(now),
	})
	if !ok {
		metrics.EmotionsSuppressedTotal.WithLabelValues("null").Inc()
		return nil
	}
	if !s.Cooldowns.Allow(res.Emotion, now) {
		metrics.EmotionsSuppressedTotal.WithLabelValues("cooldown").Inc()
		return nil
	}

	sample := emotion.Sample{
		SessionID:   s.ID,
		TenantID:    s.TenantID,
		Timestamp:   now,
		Emotion:     res.Emotion,
		Confidence:  res.Confidence,
		Section:     ev.Section,
		Scores:      res.Scores,
		DollarValue: emotion.DollarValue(ev.Section, res.Emotion, res.Confidence, s.Profile.LTVUSD),
		Physics:     s.Physics,
	}
	s.RecordEmotion(sample)
	metrics.EmotionsEmittedTotal.WithLabelValues(string(res.Emotion)).Inc()

	if err := bus.PublishJSON(ctx, p.deps.Bus, bus.TopicEmotions, sample); err != nil {
		p.logger.Warn().Err(err).
			Str(log.FieldSessionID, s.ID).
			Str(log.FieldEmotion, string(res.Emotion)).
			Msg("emotion publish failed")
	}

	cands := p.deps.Detector.Detect(pattern.Input{
		History:      s.EmotionHistory(),
		RecentClicks: s.RecentClicks(),
	})
	for _, c := range cands {
		metrics.PatternsDetectedTotal.WithLabelValues(string(c.Pattern)).Inc()
	}
	return cands
}

func (p *Pipeline) decide(ctx context.Context, s *session.Session, cands []pattern.Detection, now time.Time) {
	cmd, disp := p.deps.Engine.Decide(&s.Intervention, cands, intervention.Context{
		SessionID: s.ID,
		TenantID:  s.TenantID,
		Now:       now,
		LTVUSD:    s.Profile.LTVUSD,
		Muted:     s.Muted,
	})
	if disp == intervention.NoCandidate {
		return
	}
	if cmd == nil {
		metrics.InterventionsTotal.WithLabelValues("suppressed", string(disp)).Inc()
		return
	}

	s.Dispatched++
	metrics.InterventionsTotal.WithLabelValues("dispatched", string(cmd.Pattern)).Inc()
	p.logger.Info().
		Str(log.FieldSessionID, s.ID).
		Str(log.FieldIntervention, string(cmd.Type)).
		Str(log.FieldPattern, string(cmd.Pattern)).
		Str(log.FieldPriority, string(cmd.Priority)).
		Msg("intervention dispatched")

	if err := bus.PublishJSON(ctx, p.deps.Bus, bus.TopicInterventions, *cmd); err != nil {
		p.logger.Warn().Err(err).
			Str(log.FieldSessionID, s.ID).
			Msg("intervention publish failed")
	}
}
