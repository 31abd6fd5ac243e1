package plan

import (
	"context"
	"fmt"

	"github.com/cuemby/fleetadm/pkg/change"
	"github.com/cuemby/fleetadm/pkg/errs"
	"github.com/cuemby/fleetadm/pkg/gateway"
	"github.com/cuemby/fleetadm/pkg/types"
	"golang.org/x/sync/errgroup"
)

// State is a snapshot of the live platform the planner diffs against. It
// is loaded fresh for every invocation and never mutated.
type State struct {
	Mode         types.Mode
	Services     []*types.Service
	Instances    []*types.Instance
	Servers      []*types.Server
	LocalImages  []*types.Image
	SourceImages []*types.Image
	Packages     []*types.Package
}

// LoadState reads everything the planner needs through the gateway. The
// reads are independent and run concurrently; the first failure wins.
func LoadState(ctx context.Context, gw *gateway.Context) (*State, error) {
	var s State
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() (err error) {
		if s.Mode, err = gw.Registry.GetMode(ctx); err != nil {
			return errs.Client("sapi", fmt.Errorf("get mode: %w", err))
		}
		return nil
	})
	g.Go(func() (err error) {
		if s.Services, err = gw.Registry.ListServices(ctx, gateway.ServiceFilter{}); err != nil {
			return errs.Client("sapi", fmt.Errorf("list services: %w", err))
		}
		return nil
	})
	g.Go(func() (err error) {
		if s.Instances, err = gw.Registry.ListInstances(ctx, gateway.InstanceFilter{}); err != nil {
			return errs.Client("sapi", fmt.Errorf("list instances: %w", err))
		}
		return nil
	})
	g.Go(func() (err error) {
		if s.Servers, err = gw.Inventory.ListServers(ctx, gateway.ServerFilter{}); err != nil {
			return errs.Client("cnapi", fmt.Errorf("list servers: %w", err))
		}
		return nil
	})
	g.Go(func() (err error) {
		if s.LocalImages, err = gw.Images.ListImages(ctx, gateway.ImageFilter{}); err != nil {
			return errs.Client("imgapi", fmt.Errorf("list images: %w", err))
		}
		return nil
	})
	g.Go(func() (err error) {
		if s.SourceImages, err = gw.Images.ListSourceImages(ctx, gw.Channel, gateway.ImageFilter{}); err != nil {
			return errs.Client("imgapi", fmt.Errorf("list %s channel images: %w", gw.Channel, err))
		}
		return nil
	})
	g.Go(func() (err error) {
		active := true
		if s.Packages, err = gw.Packages.ListPackages(ctx, gateway.PackageFilter{Active: &active}); err != nil {
			return errs.Client("papi", fmt.Errorf("list packages: %w", err))
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return &s, nil
}

// Catalog returns the view of the snapshot the change normalizer needs
func (s *State) Catalog() *change.Catalog {
	return &change.Catalog{Services: s.Services, Instances: s.Instances, Servers: s.Servers}
}

func (s *State) service(name string) *types.Service {
	for _, svc := range s.Services {
		if svc.Name == name {
			return svc
		}
	}
	return nil
}

func (s *State) instance(id string) *types.Instance {
	for _, inst := range s.Instances {
		if inst.UUID == id {
			return inst
		}
	}
	return nil
}

func (s *State) serviceByUUID(id string) *types.Service {
	for _, svc := range s.Services {
		if svc.UUID == id {
			return svc
		}
	}
	return nil
}

func (s *State) instancesOf(svc *types.Service) []*types.Instance {
	var out []*types.Instance
	for _, inst := range s.Instances {
		if inst.ServiceUUID == svc.UUID {
			out = append(out, inst)
		}
	}
	return out
}

func (s *State) server(id string) *types.Server {
	for _, srv := range s.Servers {
		if srv.UUID == id {
			return srv
		}
	}
	return nil
}

func (s *State) headnode() *types.Server {
	for _, srv := range s.Servers {
		if srv.Headnode {
			return srv
		}
	}
	return nil
}

func (s *State) isLocal(id string) bool {
	for _, img := range s.LocalImages {
		if img.UUID == id {
			return img.State == "" || img.State == "active"
		}
	}
	return false
}
