package history

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/cuemby/fleetadm/pkg/errs"
	"github.com/cuemby/fleetadm/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	bolt "go.etcd.io/bbolt"
)

func newJournal(t *testing.T) *BoltJournal {
	t.Helper()
	j, err := NewBoltJournal(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { j.Close() })
	return j
}

var testChanges = []types.Change{
	{Type: types.ChangeUpdateService, Service: "cnapi"},
	{Type: types.ChangeCreate, Service: "cns", Version: "1.2.0"},
}

func TestSaveAndUpdateSuccess(t *testing.T) {
	ctx := context.Background()
	j := newJournal(t)

	entry, err := j.Save(ctx, "update", testChanges)
	require.NoError(t, err)
	assert.NotEmpty(t, entry.UUID)
	assert.False(t, entry.Finished(), "a saved entry is unfinished until updated")

	stored, err := j.Get(ctx, entry.UUID)
	require.NoError(t, err)
	assert.Equal(t, testChanges, stored.Changes)
	assert.Nil(t, stored.FinishedAt)

	require.NoError(t, j.Update(ctx, entry, nil))

	stored, err = j.Get(ctx, entry.UUID)
	require.NoError(t, err)
	assert.True(t, stored.Finished())
	assert.Empty(t, stored.Error)
}

func TestUpdateRecordsError(t *testing.T) {
	ctx := context.Background()
	j := newJournal(t)

	entry, err := j.Save(ctx, "update", testChanges)
	require.NoError(t, err)
	require.NoError(t, j.Update(ctx, entry, errors.New("sapi: 503 Service Unavailable")))

	stored, err := j.Get(ctx, entry.UUID)
	require.NoError(t, err)
	assert.True(t, stored.Finished())
	assert.Equal(t, "sapi: 503 Service Unavailable", stored.Error)
}

func TestUpdateExactlyOnce(t *testing.T) {
	ctx := context.Background()
	j := newJournal(t)

	entry, err := j.Save(ctx, "update", testChanges)
	require.NoError(t, err)
	require.NoError(t, j.Update(ctx, entry, nil))

	err = j.Update(ctx, entry, nil)
	var ie *errs.InternalError
	assert.True(t, errors.As(err, &ie))
}

func TestListOrdersByStart(t *testing.T) {
	ctx := context.Background()
	j := newJournal(t)

	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	tick := 0
	j.now = func() time.Time {
		tick++
		return base.Add(time.Duration(tick) * time.Minute)
	}

	var ids []string
	for i := 0; i < 3; i++ {
		e, err := j.Save(ctx, "update", testChanges[:1])
		require.NoError(t, err)
		ids = append(ids, e.UUID)
	}

	entries, err := j.List(ctx)
	require.NoError(t, err)
	require.Len(t, entries, 3)
	for i, e := range entries {
		assert.Equal(t, ids[i], e.UUID)
	}
}

func TestGetMissing(t *testing.T) {
	j := newJournal(t)
	_, err := j.Get(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestReopenKeepsEntries(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	j, err := NewBoltJournal(dir)
	require.NoError(t, err)
	entry, err := j.Save(ctx, "update", testChanges)
	require.NoError(t, err)
	require.NoError(t, j.Close())

	// an entry never finalized survives as evidence of an interrupted run
	j2, err := NewBoltJournal(dir)
	require.NoError(t, err)
	defer j2.Close()
	stored, err := j2.Get(ctx, entry.UUID)
	require.NoError(t, err)
	assert.False(t, stored.Finished())
}

func TestImport(t *testing.T) {
	ctx := context.Background()
	j := newJournal(t)

	started := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	finished := started.Add(time.Minute)
	legacy := &types.HistoryEntry{
		UUID:       "5e3c6a52-8ec4-4d0f-9d3b-8c9a7e4b2f10",
		Changes:    testChanges,
		StartedAt:  started,
		FinishedAt: &finished,
	}

	added, err := j.Import(ctx, legacy)
	require.NoError(t, err)
	assert.True(t, added)

	added, err = j.Import(ctx, legacy)
	require.NoError(t, err)
	assert.False(t, added, "second import is skipped")

	stored, err := j.Get(ctx, legacy.UUID)
	require.NoError(t, err)
	assert.True(t, stored.StartedAt.Equal(started))
	assert.True(t, stored.Finished())

	tests := []struct {
		name  string
		entry *types.HistoryEntry
		field string
	}{
		{"bad uuid", &types.HistoryEntry{UUID: "nope", StartedAt: started}, "uuid"},
		{"no start", &types.HistoryEntry{UUID: "7d3c6a52-8ec4-4d0f-9d3b-8c9a7e4b2f10"}, "started"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := j.Import(ctx, tt.entry)
			var ve *errs.ValidationError
			require.True(t, errors.As(err, &ve))
			assert.Equal(t, tt.field, ve.Field)
		})
	}
}

func TestJournalsShareTheFile(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	j1, err := NewBoltJournal(dir)
	require.NoError(t, err)
	defer j1.Close()

	start := time.Now()
	j2, err := NewBoltJournal(dir)
	require.NoError(t, err)
	defer j2.Close()
	assert.Less(t, time.Since(start), time.Second, "a second journal must not wait on the first")

	entry, err := j1.Save(ctx, "update", testChanges)
	require.NoError(t, err)

	stored, err := j2.Get(ctx, entry.UUID)
	require.NoError(t, err)
	assert.Equal(t, testChanges, stored.Changes)

	require.NoError(t, j2.Update(ctx, stored, nil))
	entries, err := j1.List(ctx)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.True(t, entries[0].Finished())
}

func TestBusyDatabaseIsLockHeld(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	j, err := NewBoltJournal(dir)
	require.NoError(t, err)
	j.timeout = 20 * time.Millisecond

	db, err := bolt.Open(filepath.Join(dir, "history.db"), 0600, nil)
	require.NoError(t, err)
	defer db.Close()

	_, err = j.Save(ctx, "update", testChanges)
	assert.ErrorIs(t, err, errs.ErrLockHeld)

	_, err = j.List(ctx)
	assert.ErrorIs(t, err, errs.ErrLockHeld)
}
