package main

import (
	"encoding/json"
	"fmt"
	"text/tabwriter"

	"github.com/cuemby/fleetadm/pkg/history"
	"github.com/spf13/cobra"
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List past fleetadm runs",
	RunE: func(cmd *cobra.Command, args []string) error {
		j, err := history.NewBoltJournal(cfg.DataDir)
		if err != nil {
			return err
		}
		defer j.Close()

		entries, err := j.List(cmd.Context())
		if err != nil {
			return err
		}
		if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
			return writeJSON(cmd, entries)
		}

		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "UUID\tOPERATION\tCHANGES\tSTARTED\tFINISHED\tERROR")
		for _, e := range entries {
			finished := "-"
			if e.Finished() {
				finished = e.FinishedAt.Format("2006-01-02T15:04:05Z")
			}
			fmt.Fprintf(w, "%s\t%s\t%d\t%s\t%s\t%s\n",
				e.UUID, e.Operation, len(e.Changes), e.StartedAt.Format("2006-01-02T15:04:05Z"), finished, e.Error)
		}
		return w.Flush()
	},
}

var historyGetCmd = &cobra.Command{
	Use:   "get UUID",
	Short: "Show one history entry",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		j, err := history.NewBoltJournal(cfg.DataDir)
		if err != nil {
			return err
		}
		defer j.Close()

		entry, err := j.Get(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		return writeJSON(cmd, entry)
	},
}

func init() {
	historyCmd.AddCommand(historyGetCmd)
	historyCmd.Flags().Bool("json", false, "Print entries as JSON")
	rootCmd.AddCommand(historyCmd)
}

func writeJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
