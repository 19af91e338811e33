package storage

import (
	"context"
	"errors"
	"strings"

	logx "remindd/pkg/logx"
)

// Store is the audit-trail API. The dedup ledger is deliberately NOT here;
// notification history is session-scoped.
type Store interface {
	AppendDispatch(ctx context.Context, r DispatchRecord) error
	RecentDispatches(ctx context.Context, limit int) ([]DispatchRecord, error)
	Close() error
}

// Open initializes the configured store.
// It returns (nil, nil) if storage is disabled.
func Open(cfg Config, log logx.Logger) (Store, error) {
	if log.IsZero() {
		log = logx.Nop()
	}
	switch driver := strings.ToLower(strings.TrimSpace(cfg.Driver)); driver {
	case "", "none":
		return nil, nil
	case "file":
		return openFile(cfg, log)
	case "sqlite", "sqlite3":
		return openSQLite(cfg, log)
	default:
		return nil, errors.New("unknown storage driver: " + driver)
	}
}
