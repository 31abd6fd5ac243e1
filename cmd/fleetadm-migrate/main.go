// Command fleetadm-migrate imports the per-run JSON history files written
// by older tooling into the fleetadm history database.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/cuemby/fleetadm/pkg/history"
	"github.com/cuemby/fleetadm/pkg/log"
	"github.com/cuemby/fleetadm/pkg/types"
	"github.com/spf13/cobra"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:           "fleetadm-migrate --from DIR",
	Short:         "Import legacy history files into the fleetadm journal",
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		from, _ := cmd.Flags().GetString("from")
		dataDir, _ := cmd.Flags().GetString("data-dir")
		dryRun, _ := cmd.Flags().GetBool("dry-run")

		log.Init(log.Config{Level: log.InfoLevel})
		return migrate(cmd.Context(), from, dataDir, dryRun)
	},
}

func init() {
	rootCmd.Flags().String("from", "/var/sdcadm/history", "Directory of legacy <uuid>.json history files")
	rootCmd.Flags().String("data-dir", "/var/fleetadm", "fleetadm data directory")
	rootCmd.Flags().Bool("dry-run", false, "Show what would be imported without making changes")
}

// legacyEntry is the on-disk shape of an old history file. Times are
// milliseconds since the epoch.
type legacyEntry struct {
	UUID     string          `json:"uuid"`
	Changes  json.RawMessage `json:"changes"`
	Started  int64           `json:"started"`
	Finished int64           `json:"finished"`
	Error    json.RawMessage `json:"error"`
}

func (l *legacyEntry) convert() (*types.HistoryEntry, error) {
	entry := &types.HistoryEntry{
		UUID:      l.UUID,
		Operation: "update",
		StartedAt: time.UnixMilli(l.Started).UTC(),
	}
	if len(l.Changes) > 0 {
		if err := json.Unmarshal(l.Changes, &entry.Changes); err != nil {
			return nil, fmt.Errorf("changes: %w", err)
		}
	}
	if l.Finished > 0 {
		finished := time.UnixMilli(l.Finished).UTC()
		entry.FinishedAt = &finished
	}
	entry.Error = legacyError(l.Error)
	return entry, nil
}

// legacyError flattens an error recorded as a string or as an object
// with a message
func legacyError(raw json.RawMessage) string {
	if len(raw) == 0 || string(raw) == "null" {
		return ""
	}
	var s string
	if json.Unmarshal(raw, &s) == nil {
		return s
	}
	var obj struct {
		Message string `json:"message"`
	}
	if json.Unmarshal(raw, &obj) == nil && obj.Message != "" {
		return obj.Message
	}
	return string(raw)
}

func readLegacy(dir string) ([]*types.HistoryEntry, error) {
	paths, err := filepath.Glob(filepath.Join(dir, "*.json"))
	if err != nil {
		return nil, err
	}
	sort.Strings(paths)

	var out []*types.HistoryEntry
	for _, path := range paths {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", path, err)
		}
		var l legacyEntry
		if err := json.Unmarshal(data, &l); err != nil {
			log.Logger.Warn().Err(err).Str("file", path).Msg("Skipping invalid history file")
			continue
		}
		if l.UUID == "" {
			l.UUID = strings.TrimSuffix(filepath.Base(path), ".json")
		}
		entry, err := l.convert()
		if err != nil {
			log.Logger.Warn().Err(err).Str("file", path).Msg("Skipping invalid history file")
			continue
		}
		out = append(out, entry)
	}
	return out, nil
}

func migrate(ctx context.Context, from, dataDir string, dryRun bool) error {
	entries, err := readLegacy(from)
	if err != nil {
		return err
	}
	log.Logger.Info().Int("entries", len(entries)).Str("from", from).Msg("Found legacy history")
	if len(entries) == 0 || dryRun {
		for _, e := range entries {
			log.Logger.Info().Str("uuid", e.UUID).Int("changes", len(e.Changes)).Msg("[DRY RUN] Would import")
		}
		return nil
	}

	j, err := history.NewBoltJournal(dataDir)
	if err != nil {
		return err
	}
	defer j.Close()

	imported, skipped := 0, 0
	for _, e := range entries {
		added, err := j.Import(ctx, e)
		if err != nil {
			log.Logger.Warn().Err(err).Str("uuid", e.UUID).Msg("Skipping entry")
			skipped++
			continue
		}
		if !added {
			skipped++
			continue
		}
		imported++
	}
	log.Logger.Info().Int("imported", imported).Int("skipped", skipped).Msg("Migration completed")
	return nil
}
