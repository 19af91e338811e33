package config

import (
	"errors"
	"fmt"
	"strings"
)

// Validate checks the settings that have no sensible fallback. Everything
// else (intervals, poll cadence, hours, all-day time) degrades to defaults
// instead of failing, so a bad value there never rejects a reload.
func (c *Config) Validate() error {
	if c == nil {
		return errors.New("config is nil")
	}
	if strings.TrimSpace(c.Graph.Path) == "" {
		return errors.New("graph.path is required")
	}
	if t := c.Telegram; t != nil {
		if strings.TrimSpace(t.Token) == "" {
			return errors.New("telegram.token is required when telegram is configured")
		}
		if t.ChatID == 0 {
			return errors.New("telegram.chat_id is required when telegram is configured")
		}
	}
	if s := c.Storage; s != nil {
		switch strings.ToLower(strings.TrimSpace(s.Driver)) {
		case "", "none":
		case "file", "sqlite":
			if strings.TrimSpace(s.Path) == "" {
				return fmt.Errorf("storage.path is required for driver %q", s.Driver)
			}
		default:
			return fmt.Errorf("unknown storage driver %q", s.Driver)
		}
	}
	return nil
}
