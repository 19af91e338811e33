package storage

import (
	"errors"
	"time"
)

var ErrDisabled = errors.New("storage disabled")

// Config configures the dispatch audit trail.
//
// Driver values:
//   - "file": dependency-free JSON Lines backend
//   - "sqlite": SQLite database file
//
// If Driver is empty or "none", the audit trail is disabled.
type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // sqlite only; 0 means default
}

// DispatchRecord captures one notification dispatch for operator review.
// Keep it compact and schema-stable.
type DispatchRecord struct {
	At          time.Time `json:"at"`
	ItemID      string    `json:"item_id"`
	Key         string    `json:"key"`
	Title       string    `json:"title"`
	Severity    string    `json:"severity"`
	LeadMinutes int       `json:"lead_minutes"`
	ScheduledAt time.Time `json:"scheduled_at"`
	OK          bool      `json:"ok"`
	Error       string    `json:"error,omitempty"`
}
