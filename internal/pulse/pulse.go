// SPDX-License-Identifier: MIT

// Package pulse aggregates the live emotion stream into a site-wide
// volatility index and per-emotion shares for dashboards.
package pulse

import (
	"context"
	"encoding/json"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/moodpulse/moodpulse/internal/bus"
	"github.com/moodpulse/moodpulse/internal/emotion"
	"github.com/moodpulse/moodpulse/internal/log"
)

// window is the rolling horizon the index is computed over.
const window = 5 * time.Minute

// topN bounds how many emotion shares a snapshot reports.
const topN = 10

// Share is one emotion's fraction of the current window.
type Share struct {
	Emotion emotion.Emotion `json:"emotion"`
	Count   int             `json:"count"`
	Share   float64         `json:"share"`
}

// Snapshot is the dashboard view of the last five minutes.
type Snapshot struct {
	// EVI is the emotional volatility index in [0,100]. High values mean
	// the audience is split across many emotional states; 0 means calm or
	// no signal.
	EVI int `json:"evi"`
	// Emotions maps every observed emotion to its share of the window.
	Emotions map[emotion.Emotion]float64 `json:"emotions"`
	// SampleCount is the number of observations in the window.
	SampleCount int `json:"sample"`
	// TS is the snapshot time in seconds since the epoch.
	TS int64 `json:"ts"`

	Distinct    int     `json:"distinct_emotions"`
	DollarDelta float64 `json:"dollar_delta"`
	TopEmotions []Share `json:"top_emotions"`
	WindowMS    int64   `json:"window_ms"`
}

type obs struct {
	at      time.Time
	emotion emotion.Emotion
	dollars float64
}

// Aggregator maintains the rolling observation window. Safe for
// concurrent use.
type Aggregator struct {
	mu     sync.Mutex
	buf    []obs
	now    func() time.Time
	logger zerolog.Logger
}

func NewAggregator() *Aggregator {
	return &Aggregator{now: time.Now, logger: log.WithComponent("pulse")}
}

// Observe records one classified sample.
func (a *Aggregator) Observe(s emotion.Sample) {
	a.mu.Lock()
	defer a.mu.Unlock()
	at := s.Timestamp
	if at.IsZero() {
		at = a.now()
	}
	a.buf = append(a.buf, obs{at: at, emotion: s.Emotion, dollars: s.DollarValue})
}

// Snapshot computes the current index. The EVI is the normalized
// complement of the Herfindahl concentration of emotion shares: all
// samples in one state scores 0, an even split across states scores 100.
func (a *Aggregator) Snapshot() Snapshot {
	a.mu.Lock()
	defer a.mu.Unlock()

	now := a.now()
	a.pruneLocked(now)

	snap := Snapshot{
		Emotions: map[emotion.Emotion]float64{},
		TS:       now.Unix(),
		WindowMS: window.Milliseconds(),
	}
	if len(a.buf) == 0 {
		snap.TopEmotions = []Share{}
		return snap
	}

	counts := make(map[emotion.Emotion]int)
	for _, o := range a.buf {
		counts[o.emotion]++
		snap.DollarDelta += o.dollars
	}
	snap.SampleCount = len(a.buf)
	snap.Distinct = len(counts)

	total := float64(len(a.buf))
	var herfindahl float64
	for e, n := range counts {
		share := float64(n) / total
		herfindahl += share * share
		snap.Emotions[e] = share
		snap.TopEmotions = append(snap.TopEmotions, Share{Emotion: e, Count: n, Share: share})
	}
	sort.Slice(snap.TopEmotions, func(i, j int) bool {
		if snap.TopEmotions[i].Count != snap.TopEmotions[j].Count {
			return snap.TopEmotions[i].Count > snap.TopEmotions[j].Count
		}
		return snap.TopEmotions[i].Emotion < snap.TopEmotions[j].Emotion
	})
	if len(snap.TopEmotions) > topN {
		snap.TopEmotions = snap.TopEmotions[:topN]
	}

	if k := float64(len(counts)); k > 1 {
		// Normalize so an even split over the observed states maps to 100.
		snap.EVI = int(math.Round(100 * (1 - herfindahl) / (1 - 1/k)))
	}
	return snap
}

func (a *Aggregator) pruneLocked(now time.Time) {
	cutoff := now.Add(-window)
	kept := a.buf[:0]
	for _, o := range a.buf {
		if o.at.After(cutoff) {
			kept = append(kept, o)
		}
	}
	a.buf = kept
}

// Run feeds the aggregator from the emotions topic until ctx is done.
// Deployments with multiple pipeline nodes share one index this way.
func (a *Aggregator) Run(ctx context.Context, b bus.Bus) error {
	sub, err := b.Subscribe(ctx, bus.TopicEmotions)
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
			var s emotion.Sample
			if err := json.Unmarshal(msg, &s); err != nil {
				a.logger.Warn().Err(err).Msg("dropping malformed emotion sample")
				continue
			}
			a.Observe(s)
		}
	}
}
