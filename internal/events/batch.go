// SPDX-License-Identifier: MIT

package events

import (
	"encoding/json"
	"fmt"
	"time"
)

// Batch is the wire shape of a POST /telemetry payload.
type Batch struct {
	SessionID string `json:"session_id"`
	TenantID  string `json:"tenant_id"`
	URL       string `json:"url"`
	// UserKey is an optional identity hint (hashed login or device
	// fingerprint) used to resolve the visitor's profile.
	UserKey  string     `json:"user_key,omitempty"`
	Viewport Viewport   `json:"viewport"`
	Events   []RawEvent `json:"events"`
}

// Viewport is the client viewport geometry at batch time.
type Viewport struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

// RawEvent is a single duck-typed event as sent by the collector.
type RawEvent struct {
	Type      string          `json:"type"`
	Timestamp int64           `json:"timestamp"` // ms since epoch
	Data      json.RawMessage `json:"data"`
}

// rawData is the superset of fields collectors put into RawEvent.Data.
type rawData struct {
	Target       string        `json:"target"`
	Section      string        `json:"section"`
	Context      string        `json:"context"`
	X            *float64      `json:"x"`
	Y            *float64      `json:"y"`
	ScrollY      *float64      `json:"scroll_y"`
	Clicks       *int          `json:"clicks"`
	Hovers       *int          `json:"hovers"`
	Scrolls      *int          `json:"scrolls"`
	DurationMS   float64       `json:"duration_ms"`
	Success      bool          `json:"success"`
	Motion       *Motion       `json:"motion"`
	Interactions *Interactions `json:"interactions"`
}

// NormalizeResult summarises a batch normalization pass.
type NormalizeResult struct {
	Events  []Event
	Unknown int // events discarded for unknown type
	Invalid int // events discarded for malformed payloads
}

// Validate performs structural checks on the batch envelope.
func (b Batch) Validate() error {
	if b.SessionID == "" {
		return fmt.Errorf("batch missing session_id")
	}
	if b.TenantID == "" {
		return fmt.Errorf("batch missing tenant_id")
	}
	if len(b.Events) == 0 {
		return fmt.Errorf("batch contains no events")
	}
	return nil
}

// Normalize converts the raw batch into ordered, typed events. Unknown event
// types and undecodable payloads are counted and discarded, never forwarded.
func (b Batch) Normalize() NormalizeResult {
	res := NormalizeResult{Events: make([]Event, 0, len(b.Events))}
	urlSection := InferSectionFromURL(b.URL)

	for _, raw := range b.Events {
		t := Type(raw.Type)
		if !Known(t) {
			res.Unknown++
			continue
		}

		var data rawData
		if len(raw.Data) > 0 {
			if err := json.Unmarshal(raw.Data, &data); err != nil {
				res.Invalid++
				continue
			}
		}

		ev := Event{
			SessionID:  b.SessionID,
			TenantID:   b.TenantID,
			Timestamp:  time.UnixMilli(raw.Timestamp).UTC(),
			Type:       t,
			Target:     data.Target,
			DurationMS: data.DurationMS,
			Success:    data.Success,
		}

		switch {
		case data.Section != "":
			ev.Section = ParseSection(data.Section)
		case data.Context != "":
			ev.Section = ParseSection(data.Context)
		default:
			ev.Section = urlSection
		}

		switch {
		case data.Motion != nil:
			m := *data.Motion
			ev.Motion = &m
		case data.X != nil || data.Y != nil || data.ScrollY != nil:
			m := Motion{}
			if data.X != nil {
				m.X = *data.X
			}
			if data.Y != nil {
				m.Y = *data.Y
			}
			if data.ScrollY != nil {
				m.ScrollY = *data.ScrollY
			}
			ev.Motion = &m
		}

		switch {
		case data.Interactions != nil:
			i := *data.Interactions
			ev.Interactions = &i
		case data.Clicks != nil || data.Hovers != nil || data.Scrolls != nil:
			i := Interactions{}
			if data.Clicks != nil {
				i.Clicks = *data.Clicks
			}
			if data.Hovers != nil {
				i.Hovers = *data.Hovers
			}
			if data.Scrolls != nil {
				i.Scrolls = *data.Scrolls
			}
			ev.Interactions = &i
		}

		res.Events = append(res.Events, ev)
	}
	return res
}
