package config

import (
	"sort"
	"strconv"
	"strings"
	"time"
)

// Defaults applied when a setting is missing or malformed. Bad values never
// abort the engine; they fall back here instead.
const (
	DefaultPollInterval   = 30 * time.Second
	MinPollInterval       = 10 * time.Second
	MaxPollInterval       = 300 * time.Second
	DefaultDailyRescanHr  = 3
	DefaultAllDayTime     = "09:00"
	DefaultQuietStartHour = 22
	DefaultQuietEndHour   = 7
)

// DefaultLeadTimes is used when the configured interval list yields nothing.
var DefaultLeadTimes = []int{5, 0}

type Config struct {
	Reminders RemindersConfig `json:"reminders"`
	Graph     GraphConfig     `json:"graph"`
	Logging   LoggingConfig   `json:"logging"`

	// Telegram is the notification sink. If omitted, notifications are
	// written to the log only.
	Telegram *TelegramConfig `json:"telegram,omitempty"`

	// Storage is the optional dispatch audit trail. Nil means disabled.
	Storage *StorageConfig `json:"storage,omitempty"`
}

// RemindersConfig mirrors the user-facing reminder settings.
//
// Hour fields are pointers so an explicit 0 can be told apart from "omitted".
type RemindersConfig struct {
	// Intervals is a comma-separated list of lead times in minutes,
	// e.g. "0,5,15". Each produces an independent notification per item.
	Intervals string `json:"intervals"`

	AllDayEnabled bool `json:"all_day_enabled"`
	// AllDayTime is the resolved time-of-day for date-only schedules,
	// 24-hour "HH:MM".
	AllDayTime string `json:"all_day_time"`

	// PollIntervalSeconds controls how often the due-check runs (10-300).
	PollIntervalSeconds int `json:"poll_interval_seconds"`

	// DailyRescanHour is the hour of day (0-23) for the full rescan.
	DailyRescanHour *int `json:"daily_rescan_hour,omitempty"`

	QuietHours QuietHoursConfig `json:"quiet_hours"`
}

type QuietHoursConfig struct {
	Enabled   bool `json:"enabled"`
	StartHour *int `json:"start_hour,omitempty"`
	EndHour   *int `json:"end_hour,omitempty"`
}

// GraphConfig points at the markdown graph to scan.
type GraphConfig struct {
	Path string `json:"path"`
}

type TelegramConfig struct {
	Token    string `json:"token"`
	ChatID   int64  `json:"chat_id"`
	ThreadID int    `json:"thread_id,omitempty"`
	// RatePerSec bounds outgoing sends. Default 3.
	RatePerSec int `json:"rate_per_sec,omitempty"`
	// RetryMax bounds per-dispatch retries. 0 means the default of 2;
	// set a negative value to disable retries.
	RetryMax int `json:"retry_max,omitempty"`
}

// StorageConfig controls the optional dispatch audit trail.
//
// Driver values:
//   - "file": dependency-free jsonl backend
//   - "sqlite": SQLite database file
//
// If Driver is empty or "none", the audit trail is disabled.
type StorageConfig struct {
	Driver      string `json:"driver"`
	Path        string `json:"path"`
	BusyTimeout string `json:"busy_timeout,omitempty"` // Go duration string (sqlite)
}

type LoggingConfig struct {
	Level   string      `json:"level"`
	Console bool        `json:"console"`
	File    LoggingFile `json:"file"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

// LeadTimes parses the configured interval list into minutes, sorted
// descending so the furthest-out reminder is evaluated first. Malformed or
// negative entries are dropped; an empty result falls back to the defaults.
func (r RemindersConfig) LeadTimes() []int {
	out := make([]int, 0, 4)
	for _, part := range strings.Split(r.Intervals, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		n, err := strconv.Atoi(part)
		if err != nil || n < 0 {
			continue
		}
		out = append(out, n)
	}
	if len(out) == 0 {
		return append([]int(nil), DefaultLeadTimes...)
	}
	sort.Sort(sort.Reverse(sort.IntSlice(out)))
	return out
}

// PollInterval returns the due-check cadence clamped to [10s, 300s].
func (r RemindersConfig) PollInterval() time.Duration {
	if r.PollIntervalSeconds <= 0 {
		return DefaultPollInterval
	}
	d := time.Duration(r.PollIntervalSeconds) * time.Second
	if d < MinPollInterval {
		return MinPollInterval
	}
	if d > MaxPollInterval {
		return MaxPollInterval
	}
	return d
}

// RescanHour returns the daily full-rescan hour (0-23).
func (r RemindersConfig) RescanHour() int {
	if r.DailyRescanHour == nil {
		return DefaultDailyRescanHr
	}
	h := *r.DailyRescanHour
	if h < 0 || h > 23 {
		return DefaultDailyRescanHr
	}
	return h
}

// AllDayTimeOrDefault returns the configured all-day time string, falling
// back to 09:00 when empty. Range validation happens at resolve time.
func (r RemindersConfig) AllDayTimeOrDefault() string {
	if strings.TrimSpace(r.AllDayTime) == "" {
		return DefaultAllDayTime
	}
	return r.AllDayTime
}

// Start returns the quiet-hours start hour with the 22:00 default.
func (q QuietHoursConfig) Start() int {
	if q.StartHour == nil || *q.StartHour < 0 || *q.StartHour > 23 {
		return DefaultQuietStartHour
	}
	return *q.StartHour
}

// End returns the quiet-hours end hour with the 07:00 default.
func (q QuietHoursConfig) End() int {
	if q.EndHour == nil || *q.EndHour < 0 || *q.EndHour > 23 {
		return DefaultQuietEndHour
	}
	return *q.EndHour
}
