// SPDX-License-Identifier: MIT

package session

import (
	"context"
	"hash/fnv"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/moodpulse/moodpulse/internal/bus"
	"github.com/moodpulse/moodpulse/internal/log"
	"github.com/moodpulse/moodpulse/internal/metrics"
)

// publishTimeout bounds the lifecycle publish so a wedged bus cannot stall
// session maintenance.
const publishTimeout = time.Second

// defaultCloseGrace keeps a closing session alive for trailing events
// before its terminal summary is emitted.
const defaultCloseGrace = 3 * time.Second

// Config sizes the store.
type Config struct {
	// Shards is the number of session shards; the pipeline runs one
	// worker per shard.
	Shards int
	// IdleTimeout expires sessions with no traffic.
	IdleTimeout time.Duration
	// CloseGrace is how long a closing session accepts trailing events
	// before termination. Zero means the default of three seconds.
	CloseGrace time.Duration
	// Now overrides the clock in tests.
	Now func() time.Time
}

// Store is the sharded session registry. Lifecycle metadata (state,
// last-seen) is guarded per shard; behavioral state inside a Session is
// owned by that shard's pipeline worker.
type Store struct {
	shards []*shard
	idle   time.Duration
	grace  time.Duration
	bus    bus.Bus
	now    func() time.Time
	logger zerolog.Logger
}

type shard struct {
	mu       sync.Mutex
	sessions map[string]*Session
}

// NewStore builds a store publishing lifecycle transitions on b.
func NewStore(cfg Config, b bus.Bus) *Store {
	if cfg.Shards <= 0 {
		cfg.Shards = 1
	}
	if cfg.CloseGrace <= 0 {
		cfg.CloseGrace = defaultCloseGrace
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	st := &Store{
		shards: make([]*shard, cfg.Shards),
		idle:   cfg.IdleTimeout,
		grace:  cfg.CloseGrace,
		bus:    b,
		now:    cfg.Now,
		logger: log.WithComponent("session"),
	}
	for i := range st.shards {
		st.shards[i] = &shard{sessions: make(map[string]*Session)}
	}
	return st
}

// ShardCount returns the number of shards.
func (st *Store) ShardCount() int { return len(st.shards) }

// ShardIndex maps a session ID to its shard. Stable for the store's
// lifetime, so one session is always handled by the same worker.
func (st *Store) ShardIndex(sessionID string) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(sessionID))
	return int(h.Sum32() % uint32(len(st.shards)))
}

// GetOrCreate returns the session for id, creating it in StateNew when
// absent. The second result reports creation.
func (st *Store) GetOrCreate(id, tenantID string) (*Session, bool) {
	sh := st.shards[st.ShardIndex(id)]
	sh.mu.Lock()
	defer sh.mu.Unlock()

	if s, ok := sh.sessions[id]; ok {
		return s, false
	}
	s := newSession(id, tenantID, st.now())
	sh.sessions[id] = s
	metrics.SessionsActive.Inc()
	st.publish(LifecycleEvent{
		SessionID: id, TenantID: tenantID,
		NewState: StateNew, At: s.lastSeen,
	})
	return s, true
}

// Get returns the live session for id, if any.
func (st *Store) Get(id string) (*Session, bool) {
	sh := st.shards[st.ShardIndex(id)]
	sh.mu.Lock()
	defer sh.mu.Unlock()
	s, ok := sh.sessions[id]
	return s, ok
}

// Touch refreshes the idle clock and promotes StateNew to StateActive on
// first traffic.
func (st *Store) Touch(s *Session) {
	sh := st.shards[st.ShardIndex(s.ID)]
	sh.mu.Lock()
	defer sh.mu.Unlock()

	s.lastSeen = st.now()
	if s.state == StateNew {
		st.transitionLocked(s, StateActive, "", nil)
	}
}

// SetMuted applies a tenant mute to a live session. Muting moves the
// session to StateMuted and unmuting returns it to StateActive, each
// published on the lifecycle topic. A session already closing keeps its
// state, but the flag still applies so trailing events stay suppressed.
func (st *Store) SetMuted(id string, muted bool) {
	sh := st.shards[st.ShardIndex(id)]
	sh.mu.Lock()
	defer sh.mu.Unlock()

	s, ok := sh.sessions[id]
	if !ok {
		return
	}
	s.Update(func() { s.Muted = muted })
	switch {
	case muted && (s.state == StateNew || s.state == StateActive):
		st.transitionLocked(s, StateMuted, "", nil)
	case !muted && s.state == StateMuted:
		st.transitionLocked(s, StateActive, "", nil)
	}
}

// StateOf reads the lifecycle state under the shard lock.
func (st *Store) StateOf(s *Session) State {
	sh := st.shards[st.ShardIndex(s.ID)]
	sh.mu.Lock()
	defer sh.mu.Unlock()
	return s.state
}

// BeginClose moves the session into StateClosing after a terminal event.
// Trailing events are still accepted during the grace window; once it
// elapses the session terminates with the recorded outcome. Calling
// BeginClose on a session that is already closing or gone is a no-op.
func (st *Store) BeginClose(id string, outcome Outcome) {
	sh := st.shards[st.ShardIndex(id)]
	sh.mu.Lock()
	s, ok := sh.sessions[id]
	if !ok || s.state == StateClosing {
		sh.mu.Unlock()
		return
	}
	s.closeOutcome = outcome
	st.transitionLocked(s, StateClosing, "", nil)
	sh.mu.Unlock()

	time.AfterFunc(st.grace, func() { st.finalizeClose(id) })
}

// finalizeClose terminates a session whose close grace has elapsed. The
// session may have been terminated through another path in the meantime.
func (st *Store) finalizeClose(id string) {
	sh := st.shards[st.ShardIndex(id)]
	sh.mu.Lock()
	defer sh.mu.Unlock()

	s, ok := sh.sessions[id]
	if !ok || s.state != StateClosing {
		return
	}
	st.terminateLocked(sh, s, s.closeOutcome)
}

// Terminate closes the session with the given outcome, publishes its
// summary and removes it from the store. Terminating an already-removed
// session is a no-op.
func (st *Store) Terminate(id string, outcome Outcome) {
	sh := st.shards[st.ShardIndex(id)]
	sh.mu.Lock()
	defer sh.mu.Unlock()

	s, ok := sh.sessions[id]
	if !ok {
		return
	}
	st.terminateLocked(sh, s, outcome)
}

// Len counts live sessions across all shards.
func (st *Store) Len() int {
	n := 0
	for _, sh := range st.shards {
		sh.mu.Lock()
		n += len(sh.sessions)
		sh.mu.Unlock()
	}
	return n
}

// Sweep expires every session idle past the timeout and returns how many
// it closed.
func (st *Store) Sweep() int {
	cutoff := st.now().Add(-st.idle)
	expired := 0
	for _, sh := range st.shards {
		sh.mu.Lock()
		for _, s := range sh.sessions {
			if s.lastSeen.Before(cutoff) {
				st.terminateLocked(sh, s, OutcomeIdleTimeout)
				expired++
			}
		}
		sh.mu.Unlock()
	}
	if expired > 0 {
		st.logger.Info().Int("expired", expired).Msg("idle sessions swept")
	}
	return expired
}

// RunSweeper runs Sweep on the given interval until ctx is done.
func (st *Store) RunSweeper(ctx context.Context, interval time.Duration) {
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			st.Sweep()
		}
	}
}

// Shutdown terminates every live session with OutcomeShutdown so their
// summaries are persisted before the process exits.
func (st *Store) Shutdown() {
	for _, sh := range st.shards {
		sh.mu.Lock()
		for _, s := range sh.sessions {
			st.terminateLocked(sh, s, OutcomeShutdown)
		}
		sh.mu.Unlock()
	}
}

func (st *Store) terminateLocked(sh *shard, s *Session, outcome Outcome) {
	if outcome == OutcomeEnded && s.Converted {
		outcome = OutcomeConverted
	}
	sum := s.Summary(st.now())
	st.transitionLocked(s, StateTerminated, outcome, &sum)
	delete(sh.sessions, s.ID)
	metrics.SessionsActive.Dec()
	metrics.SessionsExpiredTotal.WithLabelValues(string(outcome)).Inc()
}

func (st *Store) transitionLocked(s *Session, next State, outcome Outcome, sum *Summary) {
	old := s.state
	s.state = next
	st.publish(LifecycleEvent{
		SessionID: s.ID, TenantID: s.TenantID,
		OldState: old, NewState: next,
		Outcome: outcome, At: st.now(), Summary: sum,
	})
}

func (st *Store) publish(ev LifecycleEvent) {
	if st.bus == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
	defer cancel()
	if err := bus.PublishJSON(ctx, st.bus, bus.TopicLifecycle, ev); err != nil {
		st.logger.Warn().Err(err).
			Str(log.FieldSessionID, ev.SessionID).
			Str(log.FieldNewState, string(ev.NewState)).
			Msg("lifecycle publish failed")
	}
}
