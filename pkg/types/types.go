package types

import (
	"time"
)

// ServiceType distinguishes zone-based services from agents installed
// directly on compute nodes
type ServiceType string

const (
	ServiceTypeVM    ServiceType = "vm"
	ServiceTypeAgent ServiceType = "agent"
)

// Mode is the operational mode reported by the service registry
type Mode string

const (
	ModeProto Mode = "proto"
	ModeFull  Mode = "full"
)

// Application groups the services of one platform deployment
type Application struct {
	UUID     string         `json:"uuid"`
	Name     string         `json:"name"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// Service is a registry entry describing how instances of a platform
// component are deployed
type Service struct {
	UUID            string            `json:"uuid"`
	Name            string            `json:"name"`
	ApplicationUUID string            `json:"application_uuid"`
	Type            ServiceType       `json:"type"`
	Params          ServiceParams     `json:"params"`
	Metadata        map[string]any    `json:"metadata,omitempty"`
	Tags            map[string]string `json:"tags,omitempty"`
}

// ServiceParams are the deployment parameters inherited by new instances
type ServiceParams struct {
	ImageUUID string   `json:"image_uuid,omitempty"`
	BillingID string   `json:"billing_id,omitempty"`
	Networks  []string `json:"networks,omitempty"`
	Delegate  bool     `json:"delegate_dataset,omitempty"`
}

// Instance is a deployment of a service on one server
type Instance struct {
	UUID        string         `json:"uuid"`
	ServiceUUID string         `json:"service_uuid"`
	Service     string         `json:"service"`
	Type        ServiceType    `json:"type"`
	Alias       string         `json:"alias,omitempty"`
	ServerUUID  string         `json:"server_uuid"`
	ImageUUID   string         `json:"image_uuid,omitempty"`
	Version     string         `json:"version,omitempty"`
	Metadata    map[string]any `json:"metadata,omitempty"`
}

// Image is an image manifest, either imported locally or offered by the
// update channel
type Image struct {
	UUID        string    `json:"uuid"`
	Name        string    `json:"name"`
	Version     string    `json:"version"`
	Type        string    `json:"type,omitempty"`
	OS          string    `json:"os,omitempty"`
	State       string    `json:"state,omitempty"`
	PublishedAt time.Time `json:"published_at"`
	Channel     string    `json:"channel,omitempty"`
}

// Server is a compute node known to the inventory
type Server struct {
	UUID            string `json:"uuid"`
	Hostname        string `json:"hostname"`
	Headnode        bool   `json:"headnode"`
	Setup           bool   `json:"setup"`
	Status          string `json:"status"`
	AdminIP         string `json:"admin_ip,omitempty"`
	CurrentPlatform string `json:"current_platform,omitempty"`
	BootPlatform    string `json:"boot_platform,omitempty"`
}

// Running reports whether the server is set up and reachable
func (s *Server) Running() bool {
	return s.Setup && s.Status == "running"
}

// BootParams are the boot-time settings of a server
type BootParams struct {
	Platform   string            `json:"platform"`
	KernelArgs map[string]string `json:"kernel_args,omitempty"`
}

// Platform is a bootable platform image on the headnode
type Platform struct {
	Version string `json:"version"`
	Latest  bool   `json:"latest,omitempty"`
	Default bool   `json:"default,omitempty"`
}

// CommandResult is the outcome of a remote script run on a server
type CommandResult struct {
	ExitStatus int    `json:"exit_status"`
	Stdout     string `json:"stdout"`
	Stderr     string `json:"stderr"`
}

// VM is a virtual machine as known to VM control
type VM struct {
	UUID       string            `json:"uuid"`
	Alias      string            `json:"alias"`
	ServerUUID string            `json:"server_uuid"`
	ImageUUID  string            `json:"image_uuid"`
	BillingID  string            `json:"billing_id,omitempty"`
	State      string            `json:"state"`
	RAM        int               `json:"ram,omitempty"`
	Nics       []*Nic            `json:"nics,omitempty"`
	Tags       map[string]string `json:"tags,omitempty"`
}

// AdminIP returns the address of the VM's admin NIC, if any
func (v *VM) AdminIP() string {
	for _, nic := range v.Nics {
		if nic.NicTag == "admin" {
			return nic.IP
		}
	}
	return ""
}

// Package is a billing and sizing template for new instances
type Package struct {
	UUID              string `json:"uuid"`
	Name              string `json:"name"`
	Version           string `json:"version"`
	Active            bool   `json:"active"`
	Default           bool   `json:"default"`
	Group             string `json:"group,omitempty"`
	Description       string `json:"description,omitempty"`
	MaxPhysicalMemory int    `json:"max_physical_memory"`
	MaxSwap           int    `json:"max_swap"`
	MaxLWPs           int    `json:"max_lwps"`
	Quota             int    `json:"quota"`
	CPUCap            int    `json:"cpu_cap"`
	FSS               int    `json:"fss"`
	VCPUs             int    `json:"vcpus,omitempty"`
	ZFSIOPriority     int    `json:"zfs_io_priority"`
}

// NetworkPool groups networks for provisioning
type NetworkPool struct {
	UUID     string   `json:"uuid"`
	Name     string   `json:"name"`
	Networks []string `json:"networks"`
}

// Nic is a network interface owned by a VM or server
type Nic struct {
	MAC           string `json:"mac"`
	IP            string `json:"ip"`
	NicTag        string `json:"nic_tag"`
	BelongsToUUID string `json:"belongs_to_uuid"`
	BelongsToType string `json:"belongs_to_type"`
}

// NicTag names a physical network a NIC can attach to
type NicTag struct {
	UUID string `json:"uuid"`
	Name string `json:"name"`
	MTU  int    `json:"mtu"`
}
