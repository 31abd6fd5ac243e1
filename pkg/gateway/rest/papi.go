package rest

import (
	"context"
	"net/http"
	"net/url"

	"github.com/cuemby/fleetadm/pkg/gateway"
	"github.com/cuemby/fleetadm/pkg/types"
)

// PAPI is the package catalog client
type PAPI struct{ c *client }

var _ gateway.PackageCatalog = (*PAPI)(nil)

func (p *PAPI) ListPackages(ctx context.Context, filter gateway.PackageFilter) ([]*types.Package, error) {
	q := url.Values{}
	setIf(q, "name", filter.Name)
	setBool(q, "active", filter.Active)
	var out []*types.Package
	if err := p.c.get(ctx, "/packages", q, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (p *PAPI) AddPackage(ctx context.Context, pkg *types.Package) (*types.Package, error) {
	var out types.Package
	if err := p.c.do(ctx, http.MethodPost, "/packages", nil, pkg, &out); err != nil {
		return nil, err
	}
	return &out, nil
}
