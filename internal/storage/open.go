package storage

import (
	"errors"
	"strings"

	"aquakeep/internal/event"
	logx "aquakeep/pkg/logx"
)

// Open initializes the configured repository driver.
func Open(cfg Config, log logx.Logger) (event.Repository, error) {
	if log.IsZero() {
		log = logx.Nop()
	}

	switch strings.ToLower(strings.TrimSpace(cfg.Driver)) {
	case "", "memory":
		return NewMemory(), nil
	case "sqlite", "sqlite3":
		return openSQLite(cfg, log)
	default:
		return nil, errors.New("unknown storage driver: " + cfg.Driver)
	}
}
