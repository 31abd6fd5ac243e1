// Package lock guards the platform against concurrent mutating operations.
//
// The lock is an exclusive flock on a small bbolt database. Acquisition is
// a single non-blocking attempt: a held lock fails fast with
// errs.ErrLockHeld rather than queueing. The database also records who
// holds the lock, so a holder that died without releasing is reported by
// the next acquirer.
package lock

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/cuemby/fleetadm/pkg/errs"
	"github.com/cuemby/fleetadm/pkg/log"
	"github.com/cuemby/fleetadm/pkg/metrics"
	"github.com/rs/zerolog"
	bolt "go.etcd.io/bbolt"
)

var (
	bucketLock = []byte("lock")
	keyHolder  = []byte("holder")
)

// Holder describes the operation holding the lock
type Holder struct {
	PID        int        `json:"pid"`
	Hostname   string     `json:"hostname"`
	Operation  string     `json:"operation"`
	AcquiredAt time.Time  `json:"acquired_at"`
	ReleasedAt *time.Time `json:"released_at,omitempty"`
}

// Manager hands out the single fleet lock
type Manager struct {
	path   string
	mu     sync.Mutex
	held   *Holder
	logger zerolog.Logger
}

// NewManager creates a lock manager backed by the file at path
func NewManager(path string) *Manager {
	return &Manager{
		path:   path,
		logger: log.WithComponent("lock"),
	}
}

// Lock is an acquired fleet lock. Release it on every exit path.
type Lock struct {
	m        *Manager
	db       *bolt.DB
	holder   Holder
	released bool
}

// Acquire takes the lock for operation or fails immediately with
// errs.ErrLockHeld.
func (m *Manager) Acquire(ctx context.Context, operation string) (*Lock, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.held != nil {
		metrics.LockContentionTotal.Inc()
		return nil, fmt.Errorf("%w: %q (pid %d) since %s", errs.ErrLockHeld,
			m.held.Operation, m.held.PID, m.held.AcquiredAt.Format(time.RFC3339))
	}

	// A timeout shorter than bbolt's flock retry interval makes Open try
	// the lock exactly once.
	db, err := bolt.Open(m.path, 0600, &bolt.Options{Timeout: time.Nanosecond})
	if err != nil {
		if errors.Is(err, bolt.ErrTimeout) {
			metrics.LockContentionTotal.Inc()
			return nil, fmt.Errorf("%w: lock file %s is held by another process", errs.ErrLockHeld, m.path)
		}
		return nil, fmt.Errorf("failed to open lock file: %w", err)
	}

	hostname, _ := os.Hostname()
	holder := Holder{
		PID:        os.Getpid(),
		Hostname:   hostname,
		Operation:  operation,
		AcquiredAt: time.Now().UTC(),
	}

	err = db.Update(func(tx *bolt.Tx) error {
		b, err := tx.CreateBucketIfNotExists(bucketLock)
		if err != nil {
			return err
		}
		if prev := b.Get(keyHolder); prev != nil {
			var last Holder
			if err := json.Unmarshal(prev, &last); err == nil && last.ReleasedAt == nil {
				m.logger.Warn().
					Str("operation", last.Operation).
					Int("pid", last.PID).
					Time("acquired_at", last.AcquiredAt).
					Msg("Previous holder did not release the lock; check history for an unfinished run")
			}
		}
		data, err := json.Marshal(holder)
		if err != nil {
			return err
		}
		return b.Put(keyHolder, data)
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to record lock holder: %w", err)
	}

	m.held = &holder
	m.logger.Debug().Str("operation", operation).Msg("Lock acquired")
	return &Lock{m: m, db: db, holder: holder}, nil
}

// Release frees the lock. Releasing twice is a no-op.
func (l *Lock) Release() error {
	l.m.mu.Lock()
	defer l.m.mu.Unlock()

	if l.released {
		return nil
	}
	l.released = true
	l.m.held = nil

	now := time.Now().UTC()
	l.holder.ReleasedAt = &now
	updateErr := l.db.Update(func(tx *bolt.Tx) error {
		data, err := json.Marshal(l.holder)
		if err != nil {
			return err
		}
		return tx.Bucket(bucketLock).Put(keyHolder, data)
	})

	if err := l.db.Close(); err != nil {
		return fmt.Errorf("failed to release lock: %w", err)
	}
	l.m.logger.Debug().Str("operation", l.holder.Operation).Msg("Lock released")
	return updateErr
}

// Held reports whether this process currently holds the lock
func (m *Manager) Held() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.held != nil
}

// With runs fn while holding the lock and releases it however fn exits
func (m *Manager) With(ctx context.Context, operation string, fn func(ctx context.Context) error) (err error) {
	l, err := m.Acquire(ctx, operation)
	if err != nil {
		return err
	}
	defer func() {
		if relErr := l.Release(); relErr != nil && err == nil {
			err = relErr
		}
	}()
	return fn(ctx)
}
