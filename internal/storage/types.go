package storage

import (
	"errors"
	"time"
)

var ErrClosed = errors.New("storage closed")

// Config configures the event repository backend.
//
// Driver values:
//   - "memory": in-process map, lost on restart (tests, dev)
//   - "sqlite": SQLite database file
type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // sqlite only; 0 means default
}

const defaultPageLimit = 20
