package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/cuemby/fleetadm/pkg/packages"
	"github.com/cuemby/fleetadm/pkg/types"
	"github.com/spf13/cobra"
)

var postSetupCmd = &cobra.Command{
	Use:   "post-setup",
	Short: "Optional setup steps run after the initial install",
}

var haManateeCmd = &cobra.Command{
	Use:   "ha-manatee -s SERVER -s SERVER",
	Short: "Make the data shard highly available",
	Long: `Add a synchronous and an asynchronous peer to the single-node
data shard, one on each given server, then restart moray so it picks up
the new topology.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		servers, _ := cmd.Flags().GetStringSlice("server")
		yes, _ := cmd.Flags().GetBool("yes")
		return guarded(cmd, "post-setup ha-manatee", addChanges("manatee", servers), yes,
			fmt.Sprintf("Add manatee instances on %s?", strings.Join(servers, ", ")),
			func(ctx context.Context, a *app) error {
				return a.bootstrapper().PromoteHA(ctx, servers)
			})
	},
}

var zookeeperCmd = &cobra.Command{
	Use:   "zookeeper --members N -s SERVER...",
	Short: "Form a coordination ensemble",
	Long: `Grow the single coordination node into an ensemble of 3 or 5 by
adding N (2 or 4) members, one per given server, and point the platform
at the new membership.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		members, _ := cmd.Flags().GetInt("members")
		servers, _ := cmd.Flags().GetStringSlice("server")
		yes, _ := cmd.Flags().GetBool("yes")
		return guarded(cmd, "post-setup zookeeper", addChanges("binder", servers), yes,
			fmt.Sprintf("Add %d binder instances on %s?", members, strings.Join(servers, ", ")),
			func(ctx context.Context, a *app) error {
				return a.bootstrapper().FormEnsemble(ctx, members, servers)
			})
	},
}

var sampleDataCmd = &cobra.Command{
	Use:   "dev-sample-data",
	Short: "Add sample packages for development installs",
	RunE: func(cmd *cobra.Command, args []string) error {
		yes, _ := cmd.Flags().GetBool("yes")
		return guarded(cmd, "post-setup dev-sample-data", nil, yes, "Add sample packages?",
			func(ctx context.Context, a *app) error {
				added, err := packages.AddSamples(ctx, a.gw)
				for _, pkg := range added {
					fmt.Fprintf(cmd.OutOrStdout(), "Added package %s (%s)\n", pkg.Name, pkg.UUID)
				}
				if err == nil && len(added) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "Sample packages already present.")
				}
				return err
			})
	},
}

func init() {
	postSetupCmd.AddCommand(haManateeCmd)
	postSetupCmd.AddCommand(zookeeperCmd)
	postSetupCmd.AddCommand(sampleDataCmd)
	rootCmd.AddCommand(postSetupCmd)

	for _, c := range []*cobra.Command{haManateeCmd, zookeeperCmd, sampleDataCmd} {
		c.Flags().BoolP("yes", "y", false, "Do not ask for confirmation")
	}
	for _, c := range []*cobra.Command{haManateeCmd, zookeeperCmd} {
		c.Flags().StringSliceP("server", "s", nil, "Target server UUID or hostname (repeatable)")
	}
	zookeeperCmd.Flags().IntP("members", "m", 2, "Members to add (2 or 4)")
}

func addChanges(service string, servers []string) []types.Change {
	out := make([]types.Change, 0, len(servers))
	for _, s := range servers {
		out = append(out, types.Change{Type: types.ChangeAddInstance, Service: service, Server: s})
	}
	return out
}

// guarded runs fn under the fleet lock with a history entry, after an
// optional confirmation
func guarded(cmd *cobra.Command, operation string, changes []types.Change, yes bool, prompt string, fn func(ctx context.Context, a *app) error) error {
	a, err := newApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	if err := a.confirm(prompt+" [y/N] ", yes); err != nil {
		return err
	}
	entry, err := a.runner.Guard(cmd.Context(), operation, changes, func(ctx context.Context) error {
		return fn(ctx, a)
	})
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Completed successfully (history %s).\n", entry.UUID)
	return nil
}
