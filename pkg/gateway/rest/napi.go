package rest

import (
	"context"
	"net/url"

	"github.com/cuemby/fleetadm/pkg/gateway"
	"github.com/cuemby/fleetadm/pkg/types"
)

// NAPI is the network registry client
type NAPI struct{ c *client }

var _ gateway.NetworkRegistry = (*NAPI)(nil)

func (n *NAPI) ListNetworkPools(ctx context.Context) ([]*types.NetworkPool, error) {
	var out []*types.NetworkPool
	if err := n.c.get(ctx, "/network_pools", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (n *NAPI) ListNics(ctx context.Context, belongsToUUID string) ([]*types.Nic, error) {
	q := url.Values{}
	setIf(q, "belongs_to_uuid", belongsToUUID)
	var out []*types.Nic
	if err := n.c.get(ctx, "/nics", q, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (n *NAPI) GetNicTag(ctx context.Context, name string) (*types.NicTag, error) {
	var out types.NicTag
	if err := n.c.get(ctx, "/nic_tags/"+name, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}
