package procedure

import (
	"context"
	"fmt"

	"github.com/cuemby/fleetadm/pkg/errs"
	"github.com/cuemby/fleetadm/pkg/gateway"
	"github.com/cuemby/fleetadm/pkg/types"
)

// DefaultApplication is the application new services are created under
const DefaultApplication = "sdc"

// AddService registers a new service
type AddService struct {
	Name    string
	Type    types.ServiceType
	Image   *types.Image
	Package *types.Package
	// Application defaults to DefaultApplication
	Application string
}

func (*AddService) sealed()    {}
func (*AddService) Kind() Kind { return KindAddService }

func (p *AddService) Summarize() string {
	s := fmt.Sprintf("create %q service\n    using image %s", p.Name, imageLabel(p.Image))
	if p.Package != nil {
		s += fmt.Sprintf("\n    with package %s", p.Package.Name)
	}
	return s
}

func (p *AddService) Execute(ctx context.Context, gw *gateway.Context) error {
	logger := serviceLogger(p, p.Name)

	existing, err := gw.ServiceByName(ctx, p.Name)
	if err == nil {
		logger.Info().Str("service_uuid", existing.UUID).Msg("Service already exists, skipping")
		return nil
	}
	if !gateway.IsNotFound(err) {
		return err
	}

	appName := p.Application
	if appName == "" {
		appName = DefaultApplication
	}
	apps, err := gw.Registry.ListApplications(ctx, appName)
	if err != nil {
		return errs.Client("sapi", err)
	}
	if len(apps) == 0 {
		return errs.Internalf("application %q not found", appName)
	}

	svcType := p.Type
	if svcType == "" {
		svcType = types.ServiceTypeVM
	}
	spec := gateway.ServiceSpec{
		Type: svcType,
		Metadata: map[string]any{
			"SERVICE_NAME":   gw.DomainFor(p.Name),
			"SERVICE_DOMAIN": gw.DomainFor(p.Name),
		},
	}
	if p.Image != nil {
		spec.Params.ImageUUID = p.Image.UUID
	}
	if p.Package != nil {
		spec.Params.BillingID = p.Package.UUID
	}

	svc, err := gw.Registry.CreateService(ctx, p.Name, apps[0].UUID, spec)
	if err != nil {
		return errs.Client("sapi", fmt.Errorf("create service %s: %w", p.Name, err))
	}
	logger.Info().Str("service_uuid", svc.UUID).Msg("Service created")
	return nil
}

// UpdateService points a service's image parameter at a new image, so
// that instances created afterwards use it
type UpdateService struct {
	Service *types.Service
	Image   *types.Image
}

func (*UpdateService) sealed()    {}
func (*UpdateService) Kind() Kind { return KindUpdateService }

func (p *UpdateService) Summarize() string {
	return fmt.Sprintf("update %q service to image %s", p.Service.Name, imageLabel(p.Image))
}

func (p *UpdateService) Execute(ctx context.Context, gw *gateway.Context) error {
	logger := serviceLogger(p, p.Service.Name)

	current, err := gw.ServiceByName(ctx, p.Service.Name)
	if err != nil {
		return err
	}
	if current.Params.ImageUUID == p.Image.UUID {
		logger.Info().Msg("Service already at target image, skipping")
		return nil
	}

	if _, err := gw.Registry.UpdateService(ctx, current.UUID, gateway.ServicePatch{ImageUUID: strPtr(p.Image.UUID)}); err != nil {
		return errs.Client("sapi", fmt.Errorf("update service %s: %w", p.Service.Name, err))
	}
	logger.Info().Str("image", p.Image.UUID).Msg("Service image updated")
	return nil
}
