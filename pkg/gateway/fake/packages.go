package fake

import (
	"context"
	"fmt"

	"github.com/cuemby/fleetadm/pkg/gateway"
	"github.com/cuemby/fleetadm/pkg/types"
	"github.com/google/uuid"
)

// --- gateway.PackageCatalog ---

func (p *Platform) ListPackages(ctx context.Context, filter gateway.PackageFilter) ([]*types.Package, error) {
	p.record("ListPackages", filter)
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.failure("ListPackages"); err != nil {
		return nil, err
	}
	var out []*types.Package
	for _, id := range p.order["package"] {
		pkg := p.packages[id]
		if filter.Name != "" && pkg.Name != filter.Name {
			continue
		}
		if filter.Active != nil && pkg.Active != *filter.Active {
			continue
		}
		cp := *pkg
		out = append(out, &cp)
	}
	return out, nil
}

func (p *Platform) AddPackage(ctx context.Context, pkg *types.Package) (*types.Package, error) {
	p.record("AddPackage", pkg.Name)
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.failure("AddPackage"); err != nil {
		return nil, err
	}
	for _, existing := range p.packages {
		if existing.Name == pkg.Name && existing.Version == pkg.Version {
			return nil, fmt.Errorf("package %s@%s already exists", pkg.Name, pkg.Version)
		}
	}
	cp := *pkg
	if cp.UUID == "" {
		cp.UUID = uuid.NewString()
	}
	p.packages[cp.UUID] = &cp
	p.track("package", cp.UUID)
	out := cp
	return &out, nil
}
