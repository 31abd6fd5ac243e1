// Package gateway declares the narrow contracts fleetadm consumes from the
// remote control-plane services. Components receive a *Context and never
// reach for an ambient client.
package gateway

import (
	"context"
	"errors"

	"github.com/cuemby/fleetadm/pkg/types"
)

// ErrNotFound is returned (wrapped) when a lookup finds nothing
var ErrNotFound = errors.New("not found")

// ServiceFilter narrows ListServices
type ServiceFilter struct {
	Name            string
	ApplicationUUID string
	Type            types.ServiceType
}

// InstanceFilter narrows ListInstances
type InstanceFilter struct {
	ServiceUUID string
	Type        types.ServiceType
}

// ServiceSpec describes a service to create
type ServiceSpec struct {
	Type     types.ServiceType
	Params   types.ServiceParams
	Metadata map[string]any
}

// InstanceSpec describes an instance to create
type InstanceSpec struct {
	Alias      string
	ServerUUID string
	ImageUUID  string
	Metadata   map[string]any
}

// ServicePatch updates a service. Nil fields are left alone.
type ServicePatch struct {
	ImageUUID *string
	BillingID *string
	Metadata  map[string]any
}

// InstancePatch updates an instance
type InstancePatch struct {
	ImageUUID *string
	Metadata  map[string]any
}

// Registry is the service/instance registry (SAPI)
type Registry interface {
	GetMode(ctx context.Context) (types.Mode, error)
	ListApplications(ctx context.Context, name string) ([]*types.Application, error)
	UpdateApplication(ctx context.Context, uuid string, metadata map[string]any) (*types.Application, error)
	ListServices(ctx context.Context, filter ServiceFilter) ([]*types.Service, error)
	ListInstances(ctx context.Context, filter InstanceFilter) ([]*types.Instance, error)
	CreateService(ctx context.Context, name, appUUID string, spec ServiceSpec) (*types.Service, error)
	CreateInstance(ctx context.Context, serviceUUID string, spec InstanceSpec) (*types.Instance, error)
	UpdateService(ctx context.Context, uuid string, patch ServicePatch) (*types.Service, error)
	UpdateInstance(ctx context.Context, uuid string, patch InstancePatch) (*types.Instance, error)
	ReprovisionInstance(ctx context.Context, uuid, imageUUID string) error
	DeleteInstance(ctx context.Context, uuid string) error
	DeleteService(ctx context.Context, uuid string) error
}

// ServerFilter narrows ListServers
type ServerFilter struct {
	Hostname string
	Setup    *bool
	Headnode *bool
}

// Inventory is the compute-node inventory (CNAPI)
type Inventory interface {
	ListServers(ctx context.Context, filter ServerFilter) ([]*types.Server, error)
	GetServer(ctx context.Context, uuid string) (*types.Server, error)
	GetBootParams(ctx context.Context, serverUUID string) (*types.BootParams, error)
	SetBootParams(ctx context.Context, serverUUID string, params types.BootParams) error
	ListPlatforms(ctx context.Context) (map[string]*types.Platform, error)
	CommandExecute(ctx context.Context, serverUUID, script string) (*types.CommandResult, error)
}

// VMFilter narrows ListVMs
type VMFilter struct {
	ServerUUID string
	Alias      string
	State      string
}

// VMUpdate resizes or retags a VM
type VMUpdate struct {
	BillingID string
	RAM       int
	Tags      map[string]string
}

// VMControl is VM lifecycle control (VMAPI)
type VMControl interface {
	GetVM(ctx context.Context, uuid string) (*types.VM, error)
	ListVMs(ctx context.Context, filter VMFilter) ([]*types.VM, error)
	UpdateVM(ctx context.Context, uuid string, update VMUpdate) error
}

// ImageFilter narrows image listings
type ImageFilter struct {
	Name  string
	State string
}

// ImageRepository is the local image repository (IMGAPI) plus the update
// channel it imports from
type ImageRepository interface {
	ListImages(ctx context.Context, filter ImageFilter) ([]*types.Image, error)
	GetImage(ctx context.Context, uuid string) (*types.Image, error)
	GetImageFile(ctx context.Context, uuid, destPath string) error
	ListSourceImages(ctx context.Context, channel string, filter ImageFilter) ([]*types.Image, error)
	ImportRemoteImage(ctx context.Context, uuid, channel string) error
}

// PackageFilter narrows ListPackages
type PackageFilter struct {
	Name   string
	Active *bool
}

// PackageCatalog holds billing/sizing templates (PAPI)
type PackageCatalog interface {
	ListPackages(ctx context.Context, filter PackageFilter) ([]*types.Package, error)
	AddPackage(ctx context.Context, pkg *types.Package) (*types.Package, error)
}

// NetworkRegistry is the network registry (NAPI)
type NetworkRegistry interface {
	ListNetworkPools(ctx context.Context) ([]*types.NetworkPool, error)
	ListNics(ctx context.Context, belongsToUUID string) ([]*types.Nic, error)
	GetNicTag(ctx context.Context, name string) (*types.NicTag, error)
}

// Context bundles one client per remote collaborator plus settings shared
// by every operation of a run
type Context struct {
	Registry  Registry
	Inventory Inventory
	VMs       VMControl
	Images    ImageRepository
	Packages  PackageCatalog
	Networks  NetworkRegistry

	// Channel is the update channel images are imported from
	Channel string
	// Datacenter and DNSDomain build service domain names for new services
	Datacenter string
	DNSDomain  string
}

// IsNotFound reports whether err wraps ErrNotFound
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
