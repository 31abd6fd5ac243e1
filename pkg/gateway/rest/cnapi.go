package rest

import (
	"context"
	"net/http"
	"net/url"

	"github.com/cuemby/fleetadm/pkg/gateway"
	"github.com/cuemby/fleetadm/pkg/types"
)

// CNAPI is the compute-node inventory client
type CNAPI struct{ c *client }

var _ gateway.Inventory = (*CNAPI)(nil)

func (n *CNAPI) ListServers(ctx context.Context, filter gateway.ServerFilter) ([]*types.Server, error) {
	q := url.Values{"extras": {"sysinfo"}}
	setIf(q, "hostname", filter.Hostname)
	setBool(q, "setup", filter.Setup)
	setBool(q, "headnode", filter.Headnode)
	var out []*types.Server
	if err := n.c.get(ctx, "/servers", q, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (n *CNAPI) GetServer(ctx context.Context, uuid string) (*types.Server, error) {
	var out types.Server
	if err := n.c.get(ctx, "/servers/"+uuid, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (n *CNAPI) GetBootParams(ctx context.Context, serverUUID string) (*types.BootParams, error) {
	var out types.BootParams
	if err := n.c.get(ctx, "/boot/"+serverUUID, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (n *CNAPI) SetBootParams(ctx context.Context, serverUUID string, params types.BootParams) error {
	return n.c.do(ctx, http.MethodPut, "/boot/"+serverUUID, nil, params, nil)
}

func (n *CNAPI) ListPlatforms(ctx context.Context) (map[string]*types.Platform, error) {
	var out map[string]*types.Platform
	if err := n.c.get(ctx, "/platforms", nil, &out); err != nil {
		return nil, err
	}
	for v, p := range out {
		p.Version = v
	}
	return out, nil
}

func (n *CNAPI) CommandExecute(ctx context.Context, serverUUID, script string) (*types.CommandResult, error) {
	var out types.CommandResult
	body := map[string]string{"script": script}
	if err := n.c.do(ctx, http.MethodPost, "/servers/"+serverUUID+"/execute", nil, body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}
