// SPDX-License-Identifier: MIT

package intervention

import (
	"time"

	"github.com/moodpulse/moodpulse/internal/pattern"
)

// Gating tunables. Budget and cooldowns bound how often a single visitor
// can be interrupted.
const (
	typeCooldown         = 60 * time.Second
	typeCooldownCritical = 30 * time.Second

	budgetWindow = 10 * time.Minute
	budgetMax    = 3

	// LTV bands gate and escalate dispatch: high-priority commands are
	// reserved for visitors worth at least ltvHighUSD, and a
	// ltvCriticalUSD visitor's high signal is treated as critical.
	// Critical-priority patterns bypass the value gate.
	ltvCriticalUSD = 10_000
	ltvHighUSD     = 1_000
)

// Disposition explains what the engine did with a decision request. The
// values feed the interventions_total metric.
type Disposition string

const (
	Dispatched          Disposition = "dispatched"
	SuppressedPriority  Disposition = "suppressed_priority"
	SuppressedMuted     Disposition = "suppressed_muted"
	SuppressedCooldown  Disposition = "suppressed_cooldown"
	SuppressedBudget    Disposition = "suppressed_budget"
	NoCandidate         Disposition = "no_candidate"
)

// State is one session's dispatch history. It is owned by the session
// record; the session's pipeline worker is the only mutator.
type State struct {
	lastByType   map[pattern.Intervention]time.Time
	lastDispatch time.Time
	dispatches   []time.Time
}

// Context carries the per-event facts the gate consults.
type Context struct {
	SessionID string
	TenantID  string
	Now       time.Time
	// LTVUSD is the resolved user's lifetime value; zero for anonymous.
	LTVUSD float64
	Muted  bool
}

// Engine gates pattern detections into at most one dispatched command per
// processed event. The engine itself is stateless; session state arrives
// via *State.
type Engine struct{}

func NewEngine() *Engine { return &Engine{} }

// Decide picks the strongest eligible candidate and, if it clears every
// gate, records and returns its command. At most one command is dispatched
// per call.
func (e *Engine) Decide(st *State, cands []pattern.Detection, ctx Context) (*Command, Disposition) {
	if len(cands) == 0 {
		return nil, NoCandidate
	}
	if ctx.Muted {
		return nil, SuppressedMuted
	}

	best, prio, ok := e.pick(cands, ctx)
	if !ok {
		return nil, SuppressedPriority
	}
	if !st.typeAllowed(best.Intervention, prio, ctx.Now) {
		return nil, SuppressedCooldown
	}
	if !st.sessionAllowed(prio, ctx.Now) {
		return nil, SuppressedCooldown
	}
	if !st.budgetAllowed(ctx.Now) {
		return nil, SuppressedBudget
	}

	st.record(best.Intervention, ctx.Now)
	cmd := newCommand(ctx.SessionID, ctx.TenantID, best, prio, ctx.Now)
	return &cmd, Dispatched
}

// pick resolves competing candidates by effective priority. Ties go to the
// earliest candidate; the detector lists sequence patterns before
// single-emotion triggers, so the richer signal wins.
func (e *Engine) pick(cands []pattern.Detection, ctx Context) (pattern.Detection, pattern.Priority, bool) {
	var (
		best     pattern.Detection
		bestPrio pattern.Priority
		found    bool
	)
	for _, c := range cands {
		prio := effectivePriority(c.Priority, ctx.LTVUSD)
		if !prio.Actionable() {
			continue
		}
		// High-priority dispatch requires a qualified visitor. Critical
		// stays exempt, so cart rescues fire for anonymous sessions too.
		if prio == pattern.PriorityHigh && ctx.LTVUSD < ltvHighUSD {
			continue
		}
		if !found || prio.Outranks(bestPrio) {
			best, bestPrio, found = c, prio, true
		}
	}
	return best, bestPrio, found
}

// effectivePriority escalates a candidate by the visitor's value band:
// a $10k+ user's high-priority signal is treated as critical, and a $1k+
// user's medium signal clears the dispatch gate.
func effectivePriority(p pattern.Priority, ltvUSD float64) pattern.Priority {
	switch {
	case ltvUSD >= ltvCriticalUSD && p == pattern.PriorityHigh:
		return pattern.PriorityCritical
	case ltvUSD >= ltvHighUSD && p == pattern.PriorityMedium:
		return pattern.PriorityHigh
	}
	return p
}

func (s *State) typeAllowed(t pattern.Intervention, prio pattern.Priority, now time.Time) bool {
	if s.lastByType == nil {
		return true
	}
	last, ok := s.lastByType[t]
	if !ok {
		return true
	}
	cd := typeCooldown
	if prio == pattern.PriorityCritical {
		cd = typeCooldownCritical
	}
	return now.Sub(last) >= cd
}

// sessionAllowed keeps at most one command in flight per session: a new
// dispatch of any type waits out the cooldown since the previous one.
func (s *State) sessionAllowed(prio pattern.Priority, now time.Time) bool {
	if s.lastDispatch.IsZero() {
		return true
	}
	cd := typeCooldown
	if prio == pattern.PriorityCritical {
		cd = typeCooldownCritical
	}
	return now.Sub(s.lastDispatch) >= cd
}

func (s *State) budgetAllowed(now time.Time) bool {
	n := 0
	for _, t := range s.dispatches {
		if now.Sub(t) < budgetWindow {
			n++
		}
	}
	return n < budgetMax
}

func (s *State) record(t pattern.Intervention, now time.Time) {
	if s.lastByType == nil {
		s.lastByType = make(map[pattern.Intervention]time.Time)
	}
	s.lastByType[t] = now
	s.lastDispatch = now

	// Compact expired entries while appending.
	kept := s.dispatches[:0]
	for _, ts := range s.dispatches {
		if now.Sub(ts) < budgetWindow {
			kept = append(kept, ts)
		}
	}
	s.dispatches = append(kept, now)
}
