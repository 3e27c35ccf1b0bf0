// SPDX-License-Identifier: MIT

package pipeline

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/moodpulse/moodpulse/internal/bus"
	"github.com/moodpulse/moodpulse/internal/emotion"
	"github.com/moodpulse/moodpulse/internal/events"
	"github.com/moodpulse/moodpulse/internal/identity"
	"github.com/moodpulse/moodpulse/internal/intervention"
	"github.com/moodpulse/moodpulse/internal/pattern"
	"github.com/moodpulse/moodpulse/internal/session"
)

type testRig struct {
	p     *Pipeline
	store *session.Store
	b     *bus.MemoryBus
	emo   bus.Subscriber
	iv    bus.Subscriber
	clock *clock
}

type clock struct{ t time.Time }

func (c *clock) now() time.Time          { return c.t }
func (c *clock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newRig(t *testing.T) *testRig {
	t.Helper()
	clk := &clock{t: time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)}
	b := bus.NewMemoryBus()
	t.Cleanup(func() { _ = b.Close() })

	emo, err := b.Subscribe(context.Background(), bus.TopicEmotions)
	require.NoError(t, err)
	t.Cleanup(func() { _ = emo.Close() })
	iv, err := b.Subscribe(context.Background(), bus.TopicInterventions)
	require.NoError(t, err)
	t.Cleanup(func() { _ = iv.Close() })

	store := session.NewStore(session.Config{
		Shards:      4,
		IdleTimeout: 30 * time.Minute,
		CloseGrace:  20 * time.Millisecond,
		Now:         clk.now,
	}, b)
	resolver, err := identity.NewResolver(context.Background(), "")
	require.NoError(t, err)

	p := New(Deps{
		Store:      store,
		Classifier: emotion.NewClassifier(),
		Detector:   pattern.NewDetector(),
		Engine:     intervention.NewEngine(),
		Resolver:   resolver,
		Bus:        b,
	}, Config{QueueDepth: 16, Now: clk.now})

	return &testRig{p: p, store: store, b: b, emo: emo, iv: iv, clock: clk}
}

func (r *testRig) feed(t *testing.T, ev events.Event, userKey string) {
	t.Helper()
	r.p.process(context.Background(), task{ev: ev, userKey: userKey})
}

func (r *testRig) nextEmotion(t *testing.T) emotion.Sample {
	t.Helper()
	select {
	case msg, ok := <-r.emo.C():
		require.True(t, ok)
		var s emotion.Sample
		require.NoError(t, json.Unmarshal(msg, &s))
		return s
	case <-time.After(2 * time.Second):
		t.Fatal("no emotion sample published")
		return emotion.Sample{}
	}
}

func (r *testRig) nextIntervention(t *testing.T) intervention.Command {
	t.Helper()
	select {
	case msg, ok := <-r.iv.C():
		require.True(t, ok)
		var cmd intervention.Command
		require.NoError(t, json.Unmarshal(msg, &cmd))
		return cmd
	case <-time.After(2 * time.Second):
		t.Fatal("no intervention published")
		return intervention.Command{}
	}
}

func (r *testRig) assertNoIntervention(t *testing.T) {
	t.Helper()
	select {
	case msg := <-r.iv.C():
		t.Fatalf("unexpected intervention: %s", msg)
	case <-time.After(50 * time.Millisecond):
	}
}

func pricingHover(sessionID string, at time.Time, durationMS float64) events.Event {
	return events.Event{
		SessionID: sessionID, TenantID: "t1",
		Timestamp: at, Type: events.TypeHoverEnd,
		Section: events.SectionPricing, DurationMS: durationMS,
	}
}

// Mature sessions hovering a price tier emit purchase intent.
func TestPricingHoverEmitsPurchaseIntent(t *testing.T) {
	r := newRig(t)
	start := r.clock.now()

	r.feed(t, events.Event{
		SessionID: "s1", TenantID: "t1", Timestamp: start,
		Type: events.TypeSectionEnter, Section: events.SectionPricing,
	}, "")
	r.clock.advance(20 * time.Second)
	r.feed(t, pricingHover("s1", r.clock.now(), 1800), "")

	sample := r.nextEmotion(t)
	assert.Equal(t, emotion.PurchaseIntent, sample.Emotion)
	assert.Equal(t, 85, sample.Confidence)
	assert.Equal(t, "s1", sample.SessionID)
	assert.Zero(t, sample.DollarValue, "anonymous session carries no dollar value")
}

// Sticker shock from a resolved high-value user: the sample is priced
// against the profile's LTV and a value-proposition intervention follows.
func TestStickerShockDispatchesValueProposition(t *testing.T) {
	srv := miniredis.RunT(t)
	srv.Set("identity:fp-1", `{"user_id":"u1","plan":"enterprise","ltv_usd":10000}`)

	r := newRig(t)
	rdb := redis.NewClient(&redis.Options{Addr: srv.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	r.p.deps.Resolver = identity.NewResolverFromClient(rdb)

	start := r.clock.now()
	r.feed(t, events.Event{
		SessionID: "s1", TenantID: "t1", Timestamp: start,
		Type: events.TypeSectionEnter, Section: events.SectionPricing,
	}, "fp-1")
	r.clock.advance(20 * time.Second)

	// Slow drift over the price table, then a violent upward recoil.
	base := r.clock.now()
	r.feed(t, mouseMove("s1", base, 100, 400), "fp-1")
	r.feed(t, mouseMove("s1", base.Add(100*time.Millisecond), 110, 398), "fp-1")
	r.feed(t, mouseMove("s1", base.Add(200*time.Millisecond), 150, 343), "fp-1")

	var shock emotion.Sample
	deadline := time.After(2 * time.Second)
	for {
		sample := r.nextEmotion(t)
		if sample.Emotion == emotion.StickerShock {
			shock = sample
			break
		}
		select {
		case <-deadline:
			t.Fatal("sticker shock never emitted")
		default:
		}
	}
	assert.Equal(t, 92, shock.Confidence)
	assert.Equal(t, -0.7*10000*0.92, shock.DollarValue)

	cmd := r.nextIntervention(t)
	assert.Equal(t, pattern.ValueProposition, cmd.Type)
	// A $10k profile escalates the trigger to critical.
	assert.Equal(t, pattern.PriorityCritical, cmd.Priority)
	assert.Equal(t, "s1", cmd.SessionID)
}

func mouseMove(sessionID string, at time.Time, x, y float64) events.Event {
	return events.Event{
		SessionID: sessionID, TenantID: "t1", Timestamp: at,
		Type: events.TypeMouseMove, Section: events.SectionPricing,
		Motion: &events.Motion{X: x, Y: y},
	}
}

// Rage physics from a qualified visitor triggers the universal override
// and a help offer.
func TestRageDispatchesHelpOffer(t *testing.T) {
	srv := miniredis.RunT(t)
	srv.Set("identity:fp-1", `{"user_id":"u1","plan":"pro","ltv_usd":2000}`)

	r := newRig(t)
	rdb := redis.NewClient(&redis.Options{Addr: srv.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	r.p.deps.Resolver = identity.NewResolverFromClient(rdb)

	start := r.clock.now()
	r.feed(t, events.Event{
		SessionID: "s1", TenantID: "t1", Timestamp: start,
		Type: events.TypeSectionEnter, Section: events.SectionDemo,
	}, "fp-1")
	r.clock.advance(20 * time.Second)

	// Fast, accelerating pointer slams followed by a rage click.
	base := r.clock.now()
	r.feed(t, demoMove("s1", base, 0, 0), "fp-1")
	r.feed(t, demoMove("s1", base.Add(50*time.Millisecond), 30, 0), "fp-1")
	r.feed(t, demoMove("s1", base.Add(100*time.Millisecond), 90, 0), "fp-1")

	var rage emotion.Sample
	for {
		sample := r.nextEmotion(t)
		if sample.Emotion == emotion.Rage {
			rage = sample
			break
		}
	}
	assert.Equal(t, 95, rage.Confidence)

	cmd := r.nextIntervention(t)
	assert.Equal(t, pattern.HelpOffer, cmd.Type)
	assert.Equal(t, pattern.PriorityHigh, cmd.Priority)
}

// An anonymous session raging gets no help offer: high-priority dispatch
// needs a resolved profile worth at least the value floor.
func TestAnonymousRageGetsNoIntervention(t *testing.T) {
	r := newRig(t)
	start := r.clock.now()

	r.feed(t, events.Event{
		SessionID: "s1", TenantID: "t1", Timestamp: start,
		Type: events.TypeSectionEnter, Section: events.SectionDemo,
	}, "")
	r.clock.advance(20 * time.Second)

	base := r.clock.now()
	r.feed(t, demoMove("s1", base, 0, 0), "")
	r.feed(t, demoMove("s1", base.Add(50*time.Millisecond), 30, 0), "")
	r.feed(t, demoMove("s1", base.Add(100*time.Millisecond), 90, 0), "")

	sawRage := false
	for i := 0; i < 3; i++ {
		select {
		case msg := <-r.emo.C():
			var s emotion.Sample
			require.NoError(t, json.Unmarshal(msg, &s))
			if s.Emotion == emotion.Rage {
				sawRage = true
			}
		case <-time.After(100 * time.Millisecond):
		}
	}
	assert.True(t, sawRage, "the emotion feed still reports the rage")
	r.assertNoIntervention(t)
}

func demoMove(sessionID string, at time.Time, x, y float64) events.Event {
	return events.Event{
		SessionID: sessionID, TenantID: "t1", Timestamp: at,
		Type: events.TypeMouseMove, Section: events.SectionDemo,
		Motion: &events.Motion{X: x, Y: y},
	}
}

// Young sessions cannot express purchase intent.
func TestEarlySessionIsDamped(t *testing.T) {
	r := newRig(t)
	start := r.clock.now()

	r.feed(t, events.Event{
		SessionID: "s1", TenantID: "t1", Timestamp: start,
		Type: events.TypeSectionEnter, Section: events.SectionPricing,
	}, "")
	r.clock.advance(time.Second)
	r.feed(t, pricingHover("s1", r.clock.now(), 1500), "")

	sample := r.nextEmotion(t)
	assert.Contains(t, []emotion.Emotion{emotion.Browsing, emotion.Exploring}, sample.Emotion)
}

// The same emotion within its cooldown window is suppressed.
func TestEmotionCooldown(t *testing.T) {
	r := newRig(t)
	r.clock.advance(20 * time.Second)

	r.feed(t, pricingHover("s1", r.clock.now(), 1800), "")
	first := r.nextEmotion(t)
	require.Equal(t, emotion.PurchaseIntent, first.Emotion)

	r.clock.advance(2 * time.Second)
	r.feed(t, pricingHover("s1", r.clock.now(), 1800), "")
	select {
	case msg := <-r.emo.C():
		t.Fatalf("expected cooldown suppression, got %s", msg)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestMuteSuppressesInterventions(t *testing.T) {
	r := newRig(t)
	start := r.clock.now()

	r.feed(t, events.Event{
		SessionID: "s1", TenantID: "t1", Timestamp: start, Type: events.TypeMute,
	}, "")
	s, ok := r.store.Get("s1")
	require.True(t, ok)
	assert.Equal(t, session.StateMuted, r.store.StateOf(s))
	r.clock.advance(20 * time.Second)

	base := r.clock.now()
	r.feed(t, demoMove("s1", base, 0, 0), "")
	r.feed(t, demoMove("s1", base.Add(50*time.Millisecond), 30, 0), "")
	r.feed(t, demoMove("s1", base.Add(100*time.Millisecond), 90, 0), "")

	// Emotions still flow for dashboards; interventions do not.
	sawRage := false
	for i := 0; i < 3; i++ {
		select {
		case msg := <-r.emo.C():
			var s emotion.Sample
			require.NoError(t, json.Unmarshal(msg, &s))
			if s.Emotion == emotion.Rage {
				sawRage = true
			}
		case <-time.After(100 * time.Millisecond):
		}
	}
	assert.True(t, sawRage)
	r.assertNoIntervention(t)

	// Unmute restores dispatch on the next trigger.
	r.feed(t, events.Event{SessionID: "s1", TenantID: "t1", Type: events.TypeUnmute}, "")
	assert.Equal(t, session.StateActive, r.store.StateOf(s))
	assert.False(t, s.Muted)
}

func TestSessionEndClosesAfterGrace(t *testing.T) {
	r := newRig(t)
	r.feed(t, pricingHover("s1", r.clock.now(), 300), "")
	require.Equal(t, 1, r.store.Len())

	r.feed(t, events.Event{
		SessionID: "s1", TenantID: "t1", Type: events.TypeSessionEnd,
	}, "")

	// Trailing events within the grace window still reach the session.
	s, ok := r.store.Get("s1")
	require.True(t, ok)
	assert.Equal(t, session.StateClosing, r.store.StateOf(s))
	before := s.EventCount()
	r.feed(t, pricingHover("s1", r.clock.now().Add(100*time.Millisecond), 250), "")
	assert.Equal(t, before+1, s.EventCount())

	assert.Eventually(t, func() bool { return r.store.Len() == 0 },
		time.Second, 5*time.Millisecond)
}

func TestCheckoutConversionClosesSession(t *testing.T) {
	r := newRig(t)
	r.feed(t, pricingHover("s1", r.clock.now(), 300), "")

	r.feed(t, events.Event{
		SessionID: "s1", TenantID: "t1",
		Type:      events.TypeFormSubmit,
		Success:   true,
		Section:   events.SectionCheckout,
		Timestamp: r.clock.now().Add(time.Second),
	}, "")

	s, ok := r.store.Get("s1")
	require.True(t, ok)
	assert.True(t, s.Converted)
	assert.Equal(t, session.StateClosing, r.store.StateOf(s))
}

func TestDuplicateEventsIgnored(t *testing.T) {
	r := newRig(t)
	r.clock.advance(20 * time.Second)

	ev := pricingHover("s1", r.clock.now(), 1800)
	r.feed(t, ev, "")
	_ = r.nextEmotion(t)

	dup := ev
	dup.Timestamp = ev.Timestamp.Add(30 * time.Millisecond)
	r.feed(t, dup, "")

	s, ok := r.store.Get("s1")
	require.True(t, ok)
	assert.Equal(t, 1, s.EventCount(), "the duplicate must not be recorded")
}

func TestQueueDropsOldestUnderBackpressure(t *testing.T) {
	r := newRig(t)
	// Workers are not started; the queue fills synchronously.
	small := New(r.p.deps, Config{QueueDepth: 2, Now: r.clock.now})

	mk := func(target string) events.Event {
		return events.Event{SessionID: "s1", TenantID: "t1", Type: events.TypeClick, Target: target}
	}
	small.enqueue(task{ev: mk("a")})
	small.enqueue(task{ev: mk("b")})
	small.enqueue(task{ev: mk("c")})

	q := small.queues[small.deps.Store.ShardIndex("s1")]
	require.Len(t, q, 2)
	assert.Equal(t, "b", (<-q).ev.Target, "oldest event was evicted")
	assert.Equal(t, "c", (<-q).ev.Target)
}

func TestWorkerSurvivesPanic(t *testing.T) {
	r := newRig(t)
	// A nil classifier makes the chain panic; the worker must recover.
	broken := New(Deps{
		Store:    r.store,
		Detector: pattern.NewDetector(),
		Engine:   intervention.NewEngine(),
		Resolver: r.p.deps.Resolver,
		Bus:      r.b,
	}, Config{QueueDepth: 4, Now: r.clock.now})

	assert.NotPanics(t, func() {
		broken.safeProcess(context.Background(), 0, task{ev: pricingHover("s1", r.clock.now(), 1800)})
	})
}

func TestBatchOrderPreserved(t *testing.T) {
	r := newRig(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	r.p.Start(ctx)

	b := events.Batch{SessionID: "s1", TenantID: "t1"}
	evs := []events.Event{
		{SessionID: "s1", TenantID: "t1", Type: events.TypeClick, Target: "one", Timestamp: r.clock.now()},
		{SessionID: "s1", TenantID: "t1", Type: events.TypeClick, Target: "two", Timestamp: r.clock.now().Add(time.Second)},
		{SessionID: "s1", TenantID: "t1", Type: events.TypeClick, Target: "three", Timestamp: r.clock.now().Add(2 * time.Second)},
	}
	r.p.EnqueueBatch(b, evs)

	require.Eventually(t, func() bool {
		s, ok := r.store.Get("s1")
		return ok && s.EventCount() == 3
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	r.p.Wait()
}
