package main

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/cuemby/fleetadm/pkg/history"
	"github.com/cuemby/fleetadm/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	okUUID   = "0b2b1d9e-6a1c-4d7e-9c55-2f4a9b1e7c01"
	failUUID = "1c3c2e0f-7b2d-4e8f-8d66-3a5b0c2f8d02"
)

func writeLegacy(t *testing.T, dir, name, body string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(body), 0600))
}

func TestMigrate(t *testing.T) {
	from := t.TempDir()
	dataDir := t.TempDir()
	writeLegacy(t, from, okUUID+".json", `{
		"uuid": "`+okUUID+`",
		"changes": [{"type": "update-service", "service": "cnapi"}],
		"started": 1700000000000,
		"finished": 1700000060000
	}`)
	writeLegacy(t, from, failUUID+".json", `{
		"changes": [{"type": "create", "service": "cns"}],
		"started": 1700001000000,
		"finished": 1700001005000,
		"error": {"message": "imgapi: connection refused"}
	}`)
	writeLegacy(t, from, "junk.json", `not json`)

	ctx := context.Background()
	require.NoError(t, migrate(ctx, from, dataDir, false))
	require.NoError(t, migrate(ctx, from, dataDir, false), "second run skips existing entries")

	j, err := history.NewBoltJournal(dataDir)
	require.NoError(t, err)
	defer j.Close()

	entries, err := j.List(ctx)
	require.NoError(t, err)
	require.Len(t, entries, 2)

	assert.Equal(t, okUUID, entries[0].UUID)
	assert.Equal(t, []types.Change{{Type: types.ChangeUpdateService, Service: "cnapi"}}, entries[0].Changes)
	assert.True(t, entries[0].StartedAt.Equal(time.UnixMilli(1700000000000)))
	assert.Empty(t, entries[0].Error)

	assert.Equal(t, failUUID, entries[1].UUID, "uuid taken from the file name")
	assert.Equal(t, "imgapi: connection refused", entries[1].Error)
	assert.True(t, entries[1].Finished())
}

func TestMigrateDryRunWritesNothing(t *testing.T) {
	from := t.TempDir()
	dataDir := filepath.Join(t.TempDir(), "data")
	writeLegacy(t, from, okUUID+".json", `{"uuid": "`+okUUID+`", "started": 1700000000000}`)

	require.NoError(t, migrate(context.Background(), from, dataDir, true))
	_, err := os.Stat(dataDir)
	assert.True(t, os.IsNotExist(err))
}

func TestLegacyError(t *testing.T) {
	tests := []struct {
		raw  string
		want string
	}{
		{``, ""},
		{`null`, ""},
		{`"boom"`, "boom"},
		{`{"message": "boom", "code": "X"}`, "boom"},
		{`{"code": "X"}`, `{"code": "X"}`},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, legacyError([]byte(tt.raw)), tt.raw)
	}
}
