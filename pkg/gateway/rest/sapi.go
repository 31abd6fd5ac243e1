package rest

import (
	"context"
	"net/http"
	"net/url"

	"github.com/cuemby/fleetadm/pkg/gateway"
	"github.com/cuemby/fleetadm/pkg/types"
)

// SAPI is the service registry client
type SAPI struct{ c *client }

var _ gateway.Registry = (*SAPI)(nil)

// sapiInstance is the registry's instance shape; placement lives in params
type sapiInstance struct {
	UUID        string            `json:"uuid"`
	ServiceUUID string            `json:"service_uuid"`
	Type        types.ServiceType `json:"type"`
	Params      sapiInstParams    `json:"params"`
	Metadata    map[string]any    `json:"metadata,omitempty"`
}

type sapiInstParams struct {
	Alias      string `json:"alias,omitempty"`
	ServerUUID string `json:"server_uuid,omitempty"`
	ImageUUID  string `json:"image_uuid,omitempty"`
}

func (s *sapiInstance) instance(service string) *types.Instance {
	return &types.Instance{
		UUID:        s.UUID,
		ServiceUUID: s.ServiceUUID,
		Service:     service,
		Type:        s.Type,
		Alias:       s.Params.Alias,
		ServerUUID:  s.Params.ServerUUID,
		ImageUUID:   s.Params.ImageUUID,
		Metadata:    s.Metadata,
	}
}

type updateBody struct {
	Action   string         `json:"action"`
	Params   map[string]any `json:"params,omitempty"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

func (r *SAPI) GetMode(ctx context.Context) (types.Mode, error) {
	var mode types.Mode
	if err := r.c.get(ctx, "/mode", nil, &mode); err != nil {
		return "", err
	}
	return mode, nil
}

func (r *SAPI) ListApplications(ctx context.Context, name string) ([]*types.Application, error) {
	q := url.Values{}
	setIf(q, "name", name)
	var out []*types.Application
	if err := r.c.get(ctx, "/applications", q, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (r *SAPI) UpdateApplication(ctx context.Context, uuid string, metadata map[string]any) (*types.Application, error) {
	var out types.Application
	body := updateBody{Action: "update", Metadata: metadata}
	if err := r.c.do(ctx, http.MethodPut, "/applications/"+uuid, nil, body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (r *SAPI) ListServices(ctx context.Context, filter gateway.ServiceFilter) ([]*types.Service, error) {
	q := url.Values{}
	setIf(q, "name", filter.Name)
	setIf(q, "application_uuid", filter.ApplicationUUID)
	setIf(q, "type", string(filter.Type))
	var out []*types.Service
	if err := r.c.get(ctx, "/services", q, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// ListInstances fills in each instance's service name from the registry
func (r *SAPI) ListInstances(ctx context.Context, filter gateway.InstanceFilter) ([]*types.Instance, error) {
	q := url.Values{}
	setIf(q, "service_uuid", filter.ServiceUUID)
	setIf(q, "type", string(filter.Type))
	var raw []*sapiInstance
	if err := r.c.get(ctx, "/instances", q, &raw); err != nil {
		return nil, err
	}
	names, err := r.serviceNames(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]*types.Instance, 0, len(raw))
	for _, inst := range raw {
		out = append(out, inst.instance(names[inst.ServiceUUID]))
	}
	return out, nil
}

func (r *SAPI) serviceNames(ctx context.Context) (map[string]string, error) {
	svcs, err := r.ListServices(ctx, gateway.ServiceFilter{})
	if err != nil {
		return nil, err
	}
	names := make(map[string]string, len(svcs))
	for _, svc := range svcs {
		names[svc.UUID] = svc.Name
	}
	return names, nil
}

func (r *SAPI) CreateService(ctx context.Context, name, appUUID string, spec gateway.ServiceSpec) (*types.Service, error) {
	body := map[string]any{
		"name":             name,
		"application_uuid": appUUID,
		"type":             spec.Type,
		"params":           spec.Params,
		"metadata":         spec.Metadata,
	}
	var out types.Service
	if err := r.c.do(ctx, http.MethodPost, "/services", nil, body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (r *SAPI) CreateInstance(ctx context.Context, serviceUUID string, spec gateway.InstanceSpec) (*types.Instance, error) {
	body := sapiInstance{
		ServiceUUID: serviceUUID,
		Params: sapiInstParams{
			Alias:      spec.Alias,
			ServerUUID: spec.ServerUUID,
			ImageUUID:  spec.ImageUUID,
		},
		Metadata: spec.Metadata,
	}
	var out sapiInstance
	if err := r.c.do(ctx, http.MethodPost, "/instances", nil, body, &out); err != nil {
		return nil, err
	}
	return out.instance(""), nil
}

func (r *SAPI) UpdateService(ctx context.Context, uuid string, patch gateway.ServicePatch) (*types.Service, error) {
	body := updateBody{Action: "update", Metadata: patch.Metadata}
	params := map[string]any{}
	if patch.ImageUUID != nil {
		params["image_uuid"] = *patch.ImageUUID
	}
	if patch.BillingID != nil {
		params["billing_id"] = *patch.BillingID
	}
	if len(params) > 0 {
		body.Params = params
	}
	var out types.Service
	if err := r.c.do(ctx, http.MethodPut, "/services/"+uuid, nil, body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (r *SAPI) UpdateInstance(ctx context.Context, uuid string, patch gateway.InstancePatch) (*types.Instance, error) {
	body := updateBody{Action: "update", Metadata: patch.Metadata}
	if patch.ImageUUID != nil {
		body.Params = map[string]any{"image_uuid": *patch.ImageUUID}
	}
	var out sapiInstance
	if err := r.c.do(ctx, http.MethodPut, "/instances/"+uuid, nil, body, &out); err != nil {
		return nil, err
	}
	return out.instance(""), nil
}

func (r *SAPI) ReprovisionInstance(ctx context.Context, uuid, imageUUID string) error {
	body := map[string]string{"image_uuid": imageUUID}
	return r.c.do(ctx, http.MethodPut, "/instances/"+uuid+"/upgrade", nil, body, nil)
}

func (r *SAPI) DeleteInstance(ctx context.Context, uuid string) error {
	return r.c.do(ctx, http.MethodDelete, "/instances/"+uuid, nil, nil, nil)
}

func (r *SAPI) DeleteService(ctx context.Context, uuid string) error {
	return r.c.do(ctx, http.MethodDelete, "/services/"+uuid, nil, nil, nil)
}
