package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/cuemby/fleetadm/pkg/change"
	"github.com/cuemby/fleetadm/pkg/executor"
	"github.com/cuemby/fleetadm/pkg/plan"
	"github.com/cuemby/fleetadm/pkg/types"
	"github.com/spf13/cobra"
)

var updateCmd = &cobra.Command{
	Use:   "update [SERVICE|INSTANCE[@VERSION|@IMAGE]...]",
	Short: "Update services and instances to newer images",
	Long: `Update platform services to the latest (or a pinned) image.

Examples:
  # Update every service that has a newer image
  fleetadm update -a

  # Update two services, one pinned to a version range
  fleetadm update cnapi vmapi@^4.2

  # Reprovision one instance onto a specific image
  fleetadm update 3c1d6a0e-...@b9d8a8d2-...`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runPlan(cmd, "update", types.ChangeUpdateService, args)
	},
}

var createCmd = &cobra.Command{
	Use:   "create SERVICE -s SERVER...",
	Short: "Create a service instance on one or more servers",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runPlan(cmd, "create", types.ChangeCreate, args)
	},
}

var availCmd = &cobra.Command{
	Use:   "avail [SERVICE...]",
	Short: "List available service updates",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		state, err := plan.LoadState(cmd.Context(), a.gw)
		if err != nil {
			return err
		}
		updates := plan.Available(state, args)
		if len(updates) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "Up-to-date.")
			return nil
		}
		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "SERVICE\tCURRENT\tIMAGE\tVERSION\tPUBLISHED")
		for _, u := range updates {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
				u.Service, u.Current, u.Target.UUID, u.Target.Version, u.Target.PublishedAt.Format("2006-01-02"))
		}
		return w.Flush()
	},
}

func init() {
	rootCmd.AddCommand(updateCmd)
	rootCmd.AddCommand(createCmd)
	rootCmd.AddCommand(availCmd)

	for _, c := range []*cobra.Command{updateCmd, createCmd} {
		c.Flags().BoolP("yes", "y", false, "Answer yes to the plan confirmation")
		c.Flags().BoolP("dry-run", "n", false, "Show the plan without applying it")
		c.Flags().Bool("skip-ha-check", false, "Allow updating HA services with a single instance")
	}

	updateCmd.Flags().BoolP("all", "a", false, "Update every eligible service")
	updateCmd.Flags().StringSliceP("exclude", "x", nil, "Service to skip with --all (repeatable)")
	updateCmd.Flags().Bool("force-rabbitmq", false, "Include rabbitmq with --all")
	updateCmd.Flags().Bool("force-data-path", false, "Include portolan with --all")
	updateCmd.Flags().Bool("experimental", false, "Include agent services with --all")

	createCmd.Flags().StringSliceP("server", "s", nil, "Target server UUID or hostname (repeatable)")
	createCmd.Flags().Bool("allow-duplicate-servers", false, "Do not ask before placing a second instance on a server")
}

func runPlan(cmd *cobra.Command, operation string, typ types.ChangeType, args []string) error {
	ctx := cmd.Context()
	flags := cmd.Flags()

	a, err := newApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	opts := change.Options{Type: typ}
	opts.All, _ = flags.GetBool("all")
	opts.Exclude, _ = flags.GetStringSlice("exclude")
	opts.Servers, _ = flags.GetStringSlice("server")
	opts.ForceRabbitmq, _ = flags.GetBool("force-rabbitmq")
	opts.ForceDataPath, _ = flags.GetBool("force-data-path")
	opts.Experimental, _ = flags.GetBool("experimental")

	state, err := plan.LoadState(ctx, a.gw)
	if err != nil {
		return err
	}
	cat := state.Catalog()
	if opts.All {
		opts.Exclude = append(opts.Exclude, knownServices(cat, a.cfg.Exclude)...)
	}
	changes, err := change.SpecFromArgs(cat, args, opts)
	if err != nil {
		return err
	}

	var planOpts plan.Options
	planOpts.SkipHACheck, _ = flags.GetBool("skip-ha-check")
	planOpts.AllowDuplicateServers, _ = flags.GetBool("allow-duplicate-servers")
	p, err := plan.Generate(changes, state, planOpts)
	if err != nil {
		return err
	}

	var runOpts executor.RunOptions
	runOpts.Yes, _ = flags.GetBool("yes")
	runOpts.DryRun, _ = flags.GetBool("dry-run")
	entry, err := a.runner.Run(ctx, operation, p, runOpts)
	if err != nil {
		return err
	}
	if entry != nil {
		fmt.Fprintf(cmd.OutOrStdout(), "Completed successfully (history %s).\n", entry.UUID)
	}
	return nil
}

// knownServices drops configured exclusions for services this
// deployment does not have
func knownServices(cat *change.Catalog, names []string) []string {
	var out []string
	for _, name := range names {
		for _, svc := range cat.Services {
			if svc.Name == name {
				out = append(out, name)
				break
			}
		}
	}
	return out
}
