package history

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/cuemby/fleetadm/pkg/errs"
	"github.com/cuemby/fleetadm/pkg/types"
	"github.com/google/uuid"
	bolt "go.etcd.io/bbolt"
)

var bucketHistory = []byte("history")

// ErrNotFound is returned by Get for an unknown entry
var ErrNotFound = errors.New("history entry not found")

// openTimeout bounds the wait for another process's transaction
const openTimeout = 5 * time.Second

// BoltJournal implements Journal using BoltDB. The database is opened per
// call so the file lock is only held for the length of one transaction:
// the fleet lock, not the journal, decides who may run.
type BoltJournal struct {
	path    string
	timeout time.Duration
	now     func() time.Time
}

// NewBoltJournal creates the history database in dataDir if needed
func NewBoltJournal(dataDir string) (*BoltJournal, error) {
	if err := os.MkdirAll(dataDir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create data dir: %w", err)
	}
	j := &BoltJournal{
		path:    filepath.Join(dataDir, "history.db"),
		timeout: openTimeout,
		now:     func() time.Time { return time.Now().UTC() },
	}

	err := j.update(func(tx *bolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists(bucketHistory); err != nil {
			return fmt.Errorf("failed to create bucket %s: %w", bucketHistory, err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return j, nil
}

// Close is a no-op; no handle outlives a call
func (j *BoltJournal) Close() error {
	return nil
}

func (j *BoltJournal) open(readOnly bool) (*bolt.DB, error) {
	db, err := bolt.Open(j.path, 0600, &bolt.Options{Timeout: j.timeout, ReadOnly: readOnly})
	if err != nil {
		if errors.Is(err, bolt.ErrTimeout) {
			return nil, fmt.Errorf("%w: history database %s is busy", errs.ErrLockHeld, j.path)
		}
		return nil, fmt.Errorf("failed to open history database: %w", err)
	}
	return db, nil
}

func (j *BoltJournal) update(fn func(tx *bolt.Tx) error) error {
	db, err := j.open(false)
	if err != nil {
		return err
	}
	defer db.Close()
	return db.Update(fn)
}

// view opens the database with a shared lock, so readers never block
// each other
func (j *BoltJournal) view(fn func(b *bolt.Bucket) error) error {
	db, err := j.open(true)
	if err != nil {
		return err
	}
	defer db.Close()
	return db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketHistory)
		if b == nil {
			return errs.Internalf("history database %s has no %s bucket", j.path, bucketHistory)
		}
		return fn(b)
	})
}

func (j *BoltJournal) put(entry *types.HistoryEntry) error {
	return j.update(func(tx *bolt.Tx) error {
		data, err := json.Marshal(entry)
		if err != nil {
			return err
		}
		return tx.Bucket(bucketHistory).Put([]byte(entry.UUID), data)
	})
}

func (j *BoltJournal) Save(ctx context.Context, operation string, changes []types.Change) (*types.HistoryEntry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	entry := &types.HistoryEntry{
		UUID:      uuid.NewString(),
		Operation: operation,
		Changes:   append([]types.Change(nil), changes...),
		StartedAt: j.now(),
	}
	if err := j.put(entry); err != nil {
		return nil, fmt.Errorf("failed to save history: %w", err)
	}
	return entry, nil
}

func (j *BoltJournal) Update(ctx context.Context, entry *types.HistoryEntry, runErr error) error {
	stored, err := j.Get(ctx, entry.UUID)
	if err != nil {
		return err
	}
	if stored.Finished() {
		return errs.Internalf("history entry %s was already finalized", entry.UUID)
	}

	finished := j.now()
	entry.FinishedAt = &finished
	if runErr != nil {
		entry.Error = runErr.Error()
	}
	if err := j.put(entry); err != nil {
		return fmt.Errorf("failed to update history: %w", err)
	}
	return nil
}

func (j *BoltJournal) Get(ctx context.Context, id string) (*types.HistoryEntry, error) {
	var entry types.HistoryEntry
	err := j.view(func(b *bolt.Bucket) error {
		data := b.Get([]byte(id))
		if data == nil {
			return fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		return json.Unmarshal(data, &entry)
	})
	if err != nil {
		return nil, err
	}
	return &entry, nil
}

func (j *BoltJournal) List(ctx context.Context) ([]*types.HistoryEntry, error) {
	var entries []*types.HistoryEntry
	err := j.view(func(b *bolt.Bucket) error {
		return b.ForEach(func(k, v []byte) error {
			var entry types.HistoryEntry
			if err := json.Unmarshal(v, &entry); err != nil {
				return err
			}
			entries = append(entries, &entry)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	sort.SliceStable(entries, func(a, b int) bool {
		return entries[a].StartedAt.Before(entries[b].StartedAt)
	})
	return entries, nil
}

// Import stores a finished entry recorded elsewhere, keeping its UUID and
// timestamps. It reports false when an entry with that UUID exists.
func (j *BoltJournal) Import(ctx context.Context, entry *types.HistoryEntry) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	if _, err := uuid.Parse(entry.UUID); err != nil {
		return false, &errs.ValidationError{Field: "uuid", Msg: fmt.Sprintf("invalid history uuid %q", entry.UUID)}
	}
	if entry.StartedAt.IsZero() {
		return false, &errs.ValidationError{Field: "started", Msg: "missing start time"}
	}

	added := false
	err := j.update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketHistory)
		if b.Get([]byte(entry.UUID)) != nil {
			return nil
		}
		data, err := json.Marshal(entry)
		if err != nil {
			return err
		}
		added = true
		return b.Put([]byte(entry.UUID), data)
	})
	if err != nil {
		return false, fmt.Errorf("failed to import history: %w", err)
	}
	return added, nil
}
