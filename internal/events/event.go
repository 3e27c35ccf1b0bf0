// SPDX-License-Identifier: MIT

// Package events defines the normalized telemetry event vocabulary.
// Incoming batches carry heterogeneous duck-typed payloads; everything past
// the ingest boundary is one of the closed types below.
package events

import (
	"strings"
	"time"
)

// Type identifies a telemetry event kind. The set is closed: unknown types
// are discarded at the ingest boundary and never reach the classifier.
type Type string

const (
	TypeMouseMove        Type = "mouse_move"
	TypeClick            Type = "click"
	TypeRageClick        Type = "rage_click"
	TypeHoverStart       Type = "hover_start"
	TypeHoverEnd         Type = "hover_end"
	TypeScroll           Type = "scroll"
	TypeTextSelection    Type = "text_selection"
	TypeTabSwitch        Type = "tab_switch"
	TypeMouseExit        Type = "mouse_exit"
	TypeMouseReturn      Type = "mouse_return"
	TypeFieldFocus       Type = "field_focus"
	TypeFieldBlur        Type = "field_blur"
	TypeViewportBoundary Type = "viewport_boundary"
	TypeFormSubmit       Type = "form_submit"
	TypeSectionEnter     Type = "section_enter"
	TypeMute             Type = "mute"
	TypeUnmute           Type = "unmute"
	TypeSessionEnd       Type = "session_end"
)

var knownTypes = map[Type]struct{}{
	TypeMouseMove: {}, TypeClick: {}, TypeRageClick: {}, TypeHoverStart: {},
	TypeHoverEnd: {}, TypeScroll: {}, TypeTextSelection: {}, TypeTabSwitch: {},
	TypeMouseExit: {}, TypeMouseReturn: {}, TypeFieldFocus: {}, TypeFieldBlur: {},
	TypeViewportBoundary: {}, TypeFormSubmit: {}, TypeSectionEnter: {},
	TypeMute: {}, TypeUnmute: {}, TypeSessionEnd: {},
}

// Known reports whether t belongs to the closed event vocabulary.
func Known(t Type) bool {
	_, ok := knownTypes[t]
	return ok
}

// Terminal reports whether the event closes its session.
func (t Type) Terminal() bool {
	return t == TypeSessionEnd
}

// Section is a semantic page region, supplied by the client or inferred
// from the page URL.
type Section string

const (
	SectionHero         Section = "hero"
	SectionDemo         Section = "demo"
	SectionPricing      Section = "pricing"
	SectionTestimonials Section = "testimonials"
	SectionContact      Section = "contact"
	SectionCart         Section = "cart"
	SectionCheckout     Section = "checkout"
	SectionOther        Section = "other"
)

// ParseSection maps a client-supplied label or URL fragment to a Section.
func ParseSection(raw string) Section {
	switch s := Section(strings.ToLower(strings.TrimSpace(raw))); s {
	case SectionHero, SectionDemo, SectionPricing, SectionTestimonials,
		SectionContact, SectionCart, SectionCheckout:
		return s
	}
	return SectionOther
}

// InferSectionFromURL guesses the section from a page URL path.
func InferSectionFromURL(url string) Section {
	lower := strings.ToLower(url)
	for _, s := range []Section{
		SectionPricing, SectionDemo, SectionTestimonials,
		SectionContact, SectionCheckout, SectionCart,
	} {
		if strings.Contains(lower, string(s)) {
			return s
		}
	}
	return SectionOther
}

// Motion carries pointer and scroll coordinates for kinematic events.
type Motion struct {
	X       float64 `json:"x"`
	Y       float64 `json:"y"`
	ScrollY float64 `json:"scroll_y"`
}

// Interactions carries client-aggregated interaction counters.
type Interactions struct {
	Clicks  int `json:"clicks"`
	Hovers  int `json:"hovers"`
	Scrolls int `json:"scrolls"`
}

// Event is a normalized telemetry event. Ordering is defined only per
// SessionID.
type Event struct {
	SessionID    string        `json:"session_id"`
	TenantID     string        `json:"tenant_id"`
	Timestamp    time.Time     `json:"timestamp"`
	Type         Type          `json:"type"`
	Target       string        `json:"target,omitempty"`
	Section      Section       `json:"section"`
	Motion       *Motion       `json:"motion,omitempty"`
	Interactions *Interactions `json:"interactions,omitempty"`

	// DurationMS is populated for hover_end (hover dwell time) and
	// field_blur (field dwell time).
	DurationMS float64 `json:"duration_ms,omitempty"`

	// Success is populated for form_submit.
	Success bool `json:"success,omitempty"`
}

// SameAs reports whether other is a duplicate delivery of e: identical type,
// target and coordinates with timestamps within the dedupe window.
func (e Event) SameAs(other Event, window time.Duration) bool {
	if e.Type != other.Type || e.Target != other.Target {
		return false
	}
	d := e.Timestamp.Sub(other.Timestamp)
	if d < 0 {
		d = -d
	}
	if d > window {
		return false
	}
	if (e.Motion == nil) != (other.Motion == nil) {
		return false
	}
	if e.Motion != nil && *e.Motion != *other.Motion {
		return false
	}
	return true
}
