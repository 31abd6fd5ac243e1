package main

import (
	"context"
	"fmt"

	"github.com/cuemby/fleetadm/pkg/platform"
	"github.com/spf13/cobra"
)

var platformCmd = &cobra.Command{
	Use:   "platform",
	Short: "Manage compute node boot platforms",
}

var platformAssignCmd = &cobra.Command{
	Use:   "assign PLATFORM (--all | -s SERVER...)",
	Short: "Set the boot platform of servers",
	Long: `Set the platform the given servers boot on their next reboot.
PLATFORM is an installed platform version or "latest".`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var target platform.Target
		target.All, _ = cmd.Flags().GetBool("all")
		target.Servers, _ = cmd.Flags().GetStringSlice("server")
		yes, _ := cmd.Flags().GetBool("yes")

		return guarded(cmd, "platform assign", nil, yes,
			fmt.Sprintf("Assign platform %s?", args[0]),
			func(ctx context.Context, a *app) error {
				servers, err := platform.Assign(ctx, a.gw, args[0], target)
				fmt.Fprintf(cmd.OutOrStdout(), "Updated boot parameters of %d server(s).\n", len(servers))
				return err
			})
	},
}

var platformSetDefaultCmd = &cobra.Command{
	Use:   "set-default PLATFORM",
	Short: "Set the boot platform of new servers",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		yes, _ := cmd.Flags().GetBool("yes")
		return guarded(cmd, "platform set-default", nil, yes,
			fmt.Sprintf("Make %s the default platform?", args[0]),
			func(ctx context.Context, a *app) error {
				return platform.SetDefault(ctx, a.gw, args[0])
			})
	},
}

func init() {
	platformCmd.AddCommand(platformAssignCmd)
	platformCmd.AddCommand(platformSetDefaultCmd)
	rootCmd.AddCommand(platformCmd)

	platformAssignCmd.Flags().Bool("all", false, "Assign to every set-up server")
	platformAssignCmd.Flags().StringSliceP("server", "s", nil, "Server UUID or hostname (repeatable)")
	for _, c := range []*cobra.Command{platformAssignCmd, platformSetDefaultCmd} {
		c.Flags().BoolP("yes", "y", false, "Do not ask for confirmation")
	}
}
