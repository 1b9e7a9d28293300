package domain

import (
	"fmt"
	"time"
)

// SourceKind distinguishes rate-limited social accounts from plain feeds.
type SourceKind string

const (
	SourceKindSocial SourceKind = "social"
	SourceKindFeed   SourceKind = "feed"
)

// Priority tiers, 1 is fetched first and gets the largest call share.
const (
	PriorityHigh   = 1
	PriorityMedium = 2
	PriorityLow    = 3
)

// Source is a user-owned subscription. The curation engine only reads it.
type Source struct {
	ID          string     `db:"id" json:"id"`
	UserID      string     `db:"user_id" json:"user_id"`
	Kind        SourceKind `db:"kind" json:"kind"`
	Handle      string     `db:"handle" json:"handle"`
	DisplayName string     `db:"display_name" json:"display_name,omitempty"`
	FeedURL     string     `db:"feed_url" json:"feed_url,omitempty"`
	Priority    int        `db:"priority" json:"priority"`
	Active      bool       `db:"active" json:"active"`
	UpdatedAt   time.Time  `db:"updated_at" json:"updated_at"`
}

// Tier clamps Priority into the 1..3 range.
func (s Source) Tier() int {
	switch {
	case s.Priority < PriorityHigh:
		return PriorityHigh
	case s.Priority > PriorityLow:
		return PriorityLow
	default:
		return s.Priority
	}
}

// Name is the label used in progress messages.
func (s Source) Name() string {
	if s.DisplayName != "" {
		return s.DisplayName
	}
	if s.Kind == SourceKindSocial && s.Handle != "" {
		return "@" + s.Handle
	}
	if s.Handle != "" {
		return s.Handle
	}
	return s.FeedURL
}

// Validate enforces the per-kind required attributes.
func (s Source) Validate() error {
	switch s.Kind {
	case SourceKindFeed:
		if s.FeedURL == "" {
			return fmt.Errorf("feed source %s: feed url is required", s.ID)
		}
	case SourceKindSocial:
		if s.Handle == "" {
			return fmt.Errorf("social source %s: handle is required", s.ID)
		}
	default:
		return fmt.Errorf("source %s: unknown kind %q", s.ID, s.Kind)
	}
	return nil
}
