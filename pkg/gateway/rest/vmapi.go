package rest

import (
	"context"
	"net/http"
	"net/url"

	"github.com/cuemby/fleetadm/pkg/gateway"
	"github.com/cuemby/fleetadm/pkg/types"
)

// VMAPI is the VM control client
type VMAPI struct{ c *client }

var _ gateway.VMControl = (*VMAPI)(nil)

func (v *VMAPI) GetVM(ctx context.Context, uuid string) (*types.VM, error) {
	var out types.VM
	if err := v.c.get(ctx, "/vms/"+uuid, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (v *VMAPI) ListVMs(ctx context.Context, filter gateway.VMFilter) ([]*types.VM, error) {
	q := url.Values{}
	setIf(q, "server_uuid", filter.ServerUUID)
	setIf(q, "alias", filter.Alias)
	setIf(q, "state", filter.State)
	var out []*types.VM
	if err := v.c.get(ctx, "/vms", q, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (v *VMAPI) UpdateVM(ctx context.Context, uuid string, update gateway.VMUpdate) error {
	body := map[string]any{}
	if update.BillingID != "" {
		body["billing_id"] = update.BillingID
	}
	if update.RAM > 0 {
		body["ram"] = update.RAM
	}
	if len(update.Tags) > 0 {
		body["set_tags"] = update.Tags
	}
	q := url.Values{"action": {"update"}, "sync": {"true"}}
	return v.c.do(ctx, http.MethodPost, "/vms/"+uuid, q, body, nil)
}
