// Package store persists the incident journal: one row per detection
// episode, append-only, pruned to a configurable cap. Detection itself
// never reads the journal; it exists for the control client and for
// after-the-fact review.
package store

import "time"

// Incident is one recorded detection episode.
type Incident struct {
	ID            int64     `json:"id"`
	Timestamp     time.Time `json:"timestamp"`
	Reason        string    `json:"reason"`
	AvgIntervalMs float64   `json:"avg_interval_ms"`
	WindowFill    int       `json:"window_fill"`
	Locked        bool      `json:"locked"`
}
