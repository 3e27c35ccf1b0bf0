// SPDX-License-Identifier: MIT

package emotion

import "time"

// Cooldown defaults. Taken from the legacy tuning; configuration, not
// invariants.
const (
	defaultCooldown = 5 * time.Second
	longCooldown    = 10 * time.Second
)

var cooldownOverrides = map[Emotion]time.Duration{
	Rage:           longCooldown,
	PurchaseIntent: longCooldown,
}

// CooldownFor returns the re-emission suppression window for e.
func CooldownFor(e Emotion) time.Duration {
	if d, ok := cooldownOverrides[e]; ok {
		return d
	}
	return defaultCooldown
}

// CooldownSet tracks per-emotion last-emission times for one session.
// It is owned by the session store; the single-writer worker is the only
// mutator.
type CooldownSet struct {
	last map[Emotion]time.Time
}

// Allow reports whether e may be emitted at now, and records the emission
// when allowed.
func (c *CooldownSet) Allow(e Emotion, now time.Time) bool {
	if c.last == nil {
		c.last = make(map[Emotion]time.Time)
	}
	if prev, ok := c.last[e]; ok && now.Sub(prev) < CooldownFor(e) {
		return false
	}
	c.last[e] = now
	return true
}

// Peek reports whether e could be emitted at now without recording anything.
func (c *CooldownSet) Peek(e Emotion, now time.Time) bool {
	if c.last == nil {
		return true
	}
	prev, ok := c.last[e]
	return !ok || now.Sub(prev) >= CooldownFor(e)
}
