// Package platform assigns boot platforms to compute nodes.
package platform

import (
	"context"
	"fmt"
	"sort"

	"github.com/cuemby/fleetadm/pkg/errs"
	"github.com/cuemby/fleetadm/pkg/gateway"
	"github.com/cuemby/fleetadm/pkg/log"
	"github.com/cuemby/fleetadm/pkg/retry"
	"github.com/cuemby/fleetadm/pkg/types"
	"golang.org/x/sync/errgroup"
)

const (
	// AssignConcurrency bounds parallel boot parameter updates
	AssignConcurrency = 5
	// Retries is the retry budget of a boot parameter update
	Retries = 3

	// DefaultParams names the boot parameters used by new servers
	DefaultParams = "default"
	// Latest selects the newest installed platform
	Latest = "latest"
)

// Target selects the servers of an assignment
type Target struct {
	All     bool
	Servers []string
}

// Resolve maps a platform name onto an installed platform version
func Resolve(ctx context.Context, gw *gateway.Context, name string) (string, error) {
	plats, err := gw.Inventory.ListPlatforms(ctx)
	if err != nil {
		return "", errs.Client("cnapi", err)
	}
	if name == Latest {
		// platform stamps sort chronologically
		versions := make([]string, 0, len(plats))
		for v := range plats {
			versions = append(versions, v)
		}
		if len(versions) == 0 {
			return "", errs.Updatef("no platforms installed")
		}
		sort.Sort(sort.Reverse(sort.StringSlice(versions)))
		for _, v := range versions {
			if plats[v].Latest {
				return v, nil
			}
		}
		return versions[0], nil
	}
	if _, ok := plats[name]; !ok {
		return "", errs.Usagef("platform %q is not installed", name)
	}
	return name, nil
}

// Assign sets the boot platform of the target servers. Servers are
// updated in parallel and each update is retried; every failure is
// reported once all servers are done.
func Assign(ctx context.Context, gw *gateway.Context, name string, target Target) ([]*types.Server, error) {
	if target.All == (len(target.Servers) > 0) {
		return nil, errs.Usagef("specify either --all or one or more servers")
	}
	version, err := Resolve(ctx, gw, name)
	if err != nil {
		return nil, err
	}
	servers, err := targets(ctx, gw, target)
	if err != nil {
		return nil, err
	}

	failures := make([]error, len(servers))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(AssignConcurrency)
	for i, s := range servers {
		i, s := i, s
		g.Go(func() error {
			logger := log.WithServerID(s.UUID).With().Str("component", "platform").Logger()
			failures[i] = assign(gctx, gw, s.UUID, version)
			if failures[i] != nil {
				logger.Error().Err(failures[i]).Msg("Failed to assign platform")
			} else {
				logger.Info().Str("platform", version).Msg("Assigned platform")
			}
			return nil
		})
	}
	_ = g.Wait()
	return servers, errs.Collect(failures)
}

// SetDefault sets the platform new servers boot
func SetDefault(ctx context.Context, gw *gateway.Context, name string) error {
	version, err := Resolve(ctx, gw, name)
	if err != nil {
		return err
	}
	if err := assign(ctx, gw, DefaultParams, version); err != nil {
		return err
	}
	logger := log.WithComponent("platform")
	logger.Info().Str("platform", version).Msg("Set default boot platform")
	return nil
}

// assign updates one set of boot parameters, keeping kernel arguments
func assign(ctx context.Context, gw *gateway.Context, id, version string) error {
	_, err := retry.ExecWithRetries(ctx, Retries, func(ctx context.Context) (struct{}, error) {
		bp, err := gw.Inventory.GetBootParams(ctx, id)
		if err != nil && !gateway.IsNotFound(err) {
			return struct{}{}, err
		}
		params := types.BootParams{Platform: version}
		if bp != nil {
			if bp.Platform == version {
				return struct{}{}, nil
			}
			params.KernelArgs = bp.KernelArgs
		}
		return struct{}{}, gw.Inventory.SetBootParams(ctx, id, params)
	})
	if err != nil {
		return errs.Client("cnapi", fmt.Errorf("boot params of %s: %w", id, err))
	}
	return nil
}

func targets(ctx context.Context, gw *gateway.Context, target Target) ([]*types.Server, error) {
	setup := true
	all, err := gw.Inventory.ListServers(ctx, gateway.ServerFilter{Setup: &setup})
	if err != nil {
		return nil, errs.Client("cnapi", err)
	}
	if target.All {
		return all, nil
	}
	out := make([]*types.Server, 0, len(target.Servers))
	for _, ref := range target.Servers {
		var found *types.Server
		for _, s := range all {
			if s.UUID == ref || s.Hostname == ref {
				found = s
				break
			}
		}
		if found == nil {
			return nil, errs.Usagef("unknown or unset-up server %q", ref)
		}
		out = append(out, found)
	}
	return out, nil
}
