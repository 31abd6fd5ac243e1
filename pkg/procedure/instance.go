package procedure

import (
	"context"
	"fmt"

	"github.com/cuemby/fleetadm/pkg/errs"
	"github.com/cuemby/fleetadm/pkg/gateway"
	"github.com/cuemby/fleetadm/pkg/types"
)

// AddInstance creates one instance of an existing (or just created)
// service
type AddInstance struct {
	Service  string
	Alias    string
	Server   *types.Server
	Image    *types.Image
	Metadata map[string]any
}

func (*AddInstance) sealed()    {}
func (*AddInstance) Kind() Kind { return KindAddInstance }

func (p *AddInstance) Summarize() string {
	return fmt.Sprintf("create instance %q of service %q on server %s\n    using image %s",
		p.Alias, p.Service, serverLabel(p.Server), imageLabel(p.Image))
}

func (p *AddInstance) Execute(ctx context.Context, gw *gateway.Context) error {
	logger := serviceLogger(p, p.Service).With().Str("alias", p.Alias).Logger()

	svc, err := gw.ServiceByName(ctx, p.Service)
	if gateway.IsNotFound(err) {
		return errs.Internalf("service %q does not exist; cannot add instance %s", p.Service, p.Alias)
	}
	if err != nil {
		return err
	}

	insts, err := gw.InstancesOf(ctx, svc)
	if err != nil {
		return err
	}
	for _, inst := range insts {
		if inst.Alias == p.Alias {
			logger.Info().Str("instance_uuid", inst.UUID).Msg("Instance already exists, skipping")
			return nil
		}
	}

	spec := gateway.InstanceSpec{Alias: p.Alias, Metadata: p.Metadata}
	if p.Server != nil {
		spec.ServerUUID = p.Server.UUID
	}
	if p.Image != nil {
		spec.ImageUUID = p.Image.UUID
	}
	inst, err := gw.Registry.CreateInstance(ctx, svc.UUID, spec)
	if err != nil {
		return errs.Client("sapi", fmt.Errorf("create instance %s: %w", p.Alias, err))
	}
	logger.Info().Str("instance_uuid", inst.UUID).Str("server_uuid", inst.ServerUUID).Msg("Instance created")
	return nil
}

// UpdateInstance changes an instance's image parameter in place. It is
// used for agent instances, which are not reprovisioned.
type UpdateInstance struct {
	Instance *types.Instance
	Image    *types.Image
}

func (*UpdateInstance) sealed()    {}
func (*UpdateInstance) Kind() Kind { return KindUpdateInstance }

func (p *UpdateInstance) Summarize() string {
	return fmt.Sprintf("update %s instance %s to image %s", p.Instance.Service, instanceLabel(p.Instance), imageLabel(p.Image))
}

func (p *UpdateInstance) Execute(ctx context.Context, gw *gateway.Context) error {
	logger := instanceLogger(p, p.Instance.UUID)

	current, err := currentInstance(ctx, gw, p.Instance)
	if err != nil {
		return err
	}
	if current.ImageUUID == p.Image.UUID {
		logger.Info().Msg("Instance already at target image, skipping")
		return nil
	}

	if _, err := gw.Registry.UpdateInstance(ctx, p.Instance.UUID, gateway.InstancePatch{ImageUUID: strPtr(p.Image.UUID)}); err != nil {
		return errs.Client("sapi", fmt.Errorf("update instance %s: %w", instanceLabel(p.Instance), err))
	}
	logger.Info().Str("image", p.Image.UUID).Msg("Instance updated")
	return nil
}

// ReprovisionInstance rebuilds a VM instance on a new image, keeping its
// identity and data
type ReprovisionInstance struct {
	Instance *types.Instance
	Image    *types.Image
}

func (*ReprovisionInstance) sealed()    {}
func (*ReprovisionInstance) Kind() Kind { return KindReprovision }

func (p *ReprovisionInstance) Summarize() string {
	return fmt.Sprintf("reprovision %s instance %s\n    from image %s\n    to image %s",
		p.Instance.Service, instanceLabel(p.Instance), p.Instance.ImageUUID, imageLabel(p.Image))
}

func (p *ReprovisionInstance) Execute(ctx context.Context, gw *gateway.Context) error {
	logger := instanceLogger(p, p.Instance.UUID)

	vm, err := gw.VMs.GetVM(ctx, p.Instance.UUID)
	if err != nil {
		return errs.Client("vmapi", fmt.Errorf("get vm %s: %w", p.Instance.UUID, err))
	}
	if vm.ImageUUID == p.Image.UUID {
		logger.Info().Msg("Instance already at target image, skipping")
		return nil
	}

	logger.Info().Str("from", vm.ImageUUID).Str("to", p.Image.UUID).Msg("Reprovisioning instance")
	if err := gw.Registry.ReprovisionInstance(ctx, p.Instance.UUID, p.Image.UUID); err != nil {
		return errs.Client("sapi", fmt.Errorf("reprovision %s: %w", instanceLabel(p.Instance), err))
	}
	return nil
}

func currentInstance(ctx context.Context, gw *gateway.Context, inst *types.Instance) (*types.Instance, error) {
	insts, err := gw.Registry.ListInstances(ctx, gateway.InstanceFilter{ServiceUUID: inst.ServiceUUID})
	if err != nil {
		return nil, errs.Client("sapi", err)
	}
	for _, cur := range insts {
		if cur.UUID == inst.UUID {
			return cur, nil
		}
	}
	return nil, fmt.Errorf("instance %s: %w", inst.UUID, gateway.ErrNotFound)
}

func instanceLabel(inst *types.Instance) string {
	if inst.Alias != "" {
		return fmt.Sprintf("%s (%s)", inst.UUID, inst.Alias)
	}
	return inst.UUID
}

func serverLabel(s *types.Server) string {
	if s == nil {
		return "<any>"
	}
	if s.Hostname != "" {
		return fmt.Sprintf("%s (%s)", s.UUID, s.Hostname)
	}
	return s.UUID
}
