package history

import (
	"context"

	"github.com/cuemby/fleetadm/pkg/types"
)

// Journal is the durable record of confirmed change sets. Save must be
// called after operator confirmation and before the first mutation;
// Update exactly once when the run ends, successful or not.
type Journal interface {
	// Save records a new, unfinished entry for changes
	Save(ctx context.Context, operation string, changes []types.Change) (*types.HistoryEntry, error)

	// Update finalizes entry, recording runErr when non-nil
	Update(ctx context.Context, entry *types.HistoryEntry, runErr error) error

	// Get returns one entry by UUID
	Get(ctx context.Context, uuid string) (*types.HistoryEntry, error)

	// List returns all entries, oldest first
	List(ctx context.Context) ([]*types.HistoryEntry, error)

	Close() error
}
