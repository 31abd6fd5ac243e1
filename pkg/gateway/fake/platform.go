// Package fake provides an in-memory control plane implementing every
// gateway interface, for tests.
package fake

import (
	"fmt"
	"sync"

	"github.com/cuemby/fleetadm/pkg/gateway"
	"github.com/cuemby/fleetadm/pkg/types"
	"github.com/google/uuid"
)

// Compile-time interface assertions.
var (
	_ gateway.Registry        = (*Platform)(nil)
	_ gateway.Inventory       = (*Platform)(nil)
	_ gateway.VMControl       = (*Platform)(nil)
	_ gateway.ImageRepository = (*Platform)(nil)
	_ gateway.PackageCatalog  = (*Platform)(nil)
	_ gateway.NetworkRegistry = (*Platform)(nil)
)

// CommandHandler answers a CommandExecute call
type CommandHandler func(serverUUID, script string) (*types.CommandResult, error)

// Platform is a whole fake control plane. The zero value is not usable;
// call New.
type Platform struct {
	CallRecorder

	mu           sync.Mutex
	mode         types.Mode
	apps         map[string]*types.Application
	services     map[string]*types.Service
	instances    map[string]*types.Instance
	servers      map[string]*types.Server
	bootParams   map[string]*types.BootParams
	platforms    map[string]*types.Platform
	vms          map[string]*types.VM
	images       map[string]*types.Image
	sourceImages map[string]*types.Image
	packages     map[string]*types.Package
	pools        []*types.NetworkPool
	nics         map[string][]*types.Nic
	nicTags      map[string]*types.NicTag
	nextIP       int

	// order preserves insertion order for deterministic listings
	order map[string][]string

	errs map[string]error

	// ImportErr, when set, decides per image whether an import fails
	ImportErr func(uuid string) error
	// Commands answers CommandExecute; the default succeeds with no output
	Commands CommandHandler
	// ReverseInstances lists instances newest first, as a registry that
	// makes no ordering promise may
	ReverseInstances bool
}

// New creates an empty platform in full mode with an "sdc" application
func New() *Platform {
	p := &Platform{
		mode:         types.ModeFull,
		apps:         make(map[string]*types.Application),
		services:     make(map[string]*types.Service),
		instances:    make(map[string]*types.Instance),
		servers:      make(map[string]*types.Server),
		bootParams:   make(map[string]*types.BootParams),
		platforms:    make(map[string]*types.Platform),
		vms:          make(map[string]*types.VM),
		images:       make(map[string]*types.Image),
		sourceImages: make(map[string]*types.Image),
		packages:     make(map[string]*types.Package),
		nics:         make(map[string][]*types.Nic),
		nicTags:      make(map[string]*types.NicTag),
		order:        make(map[string][]string),
		errs:         make(map[string]error),
		nextIP:       10,
	}
	p.AddApplication(&types.Application{UUID: uuid.NewString(), Name: "sdc", Metadata: map[string]any{}})
	return p
}

// Gateway returns a gateway.Context backed by this platform
func (p *Platform) Gateway() *gateway.Context {
	return &gateway.Context{
		Registry:   p,
		Inventory:  p,
		VMs:        p,
		Images:     p,
		Packages:   p,
		Networks:   p,
		Channel:    "release",
		Datacenter: "coal",
		DNSDomain:  "joyent.us",
	}
}

// FailOn makes every subsequent call to method return err. A nil err
// clears the failure.
func (p *Platform) FailOn(method string, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err == nil {
		delete(p.errs, method)
		return
	}
	p.errs[method] = err
}

func (p *Platform) failure(method string) error {
	return p.errs[method]
}

// SetMode sets the registry's operational mode
func (p *Platform) SetMode(mode types.Mode) {
	p.mu.Lock()
	p.mode = mode
	p.mu.Unlock()
}

func (p *Platform) track(kind, id string) {
	p.order[kind] = append(p.order[kind], id)
}

func (p *Platform) untrack(kind, id string) {
	ids := p.order[kind]
	for i, v := range ids {
		if v == id {
			p.order[kind] = append(ids[:i:i], ids[i+1:]...)
			return
		}
	}
}

func (p *Platform) allocIP() string {
	p.nextIP++
	return fmt.Sprintf("10.99.99.%d", p.nextIP)
}

// --- seeding helpers ---

// AddApplication seeds an application
func (p *Platform) AddApplication(app *types.Application) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.apps[app.UUID] = app
	p.track("app", app.UUID)
}

// AddServer seeds a compute node
func (p *Platform) AddServer(s *types.Server) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if s.AdminIP == "" {
		s.AdminIP = p.allocIP()
	}
	p.servers[s.UUID] = s
	p.bootParams[s.UUID] = &types.BootParams{Platform: s.BootPlatform}
	p.track("server", s.UUID)
}

// AddService seeds a service, assigning a UUID when empty
func (p *Platform) AddService(svc *types.Service) *types.Service {
	p.mu.Lock()
	defer p.mu.Unlock()
	if svc.UUID == "" {
		svc.UUID = uuid.NewString()
	}
	if svc.ApplicationUUID == "" {
		svc.ApplicationUUID = p.order["app"][0]
	}
	if svc.Type == "" {
		svc.Type = types.ServiceTypeVM
	}
	p.services[svc.UUID] = svc
	p.track("service", svc.UUID)
	return svc
}

// AddInstance seeds an instance of svc on server, with its VM
func (p *Platform) AddInstance(svc *types.Service, alias, server, image string) *types.Instance {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.createInstanceLocked(svc, gateway.InstanceSpec{Alias: alias, ServerUUID: server, ImageUUID: image})
}

// AddImage seeds a locally imported image
func (p *Platform) AddImage(img *types.Image) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.images[img.UUID] = img
	p.track("image", img.UUID)
}

// AddSourceImage seeds an image offered by the update channel
func (p *Platform) AddSourceImage(img *types.Image) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.sourceImages[img.UUID] = img
	p.track("source", img.UUID)
}

// SeedPackage seeds a package without recording a call
func (p *Platform) SeedPackage(pkg *types.Package) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if pkg.UUID == "" {
		pkg.UUID = uuid.NewString()
	}
	p.packages[pkg.UUID] = pkg
	p.track("package", pkg.UUID)
}

// SeedNicTag seeds a NIC tag
func (p *Platform) SeedNicTag(tag *types.NicTag) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.nicTags[tag.Name] = tag
}

// AddNic attaches a NIC to a VM
func (p *Platform) AddNic(vmUUID string, nic *types.Nic) {
	p.mu.Lock()
	defer p.mu.Unlock()
	nic.BelongsToUUID = vmUUID
	nic.BelongsToType = "zone"
	p.nics[vmUUID] = append(p.nics[vmUUID], nic)
	if vm, ok := p.vms[vmUUID]; ok {
		vm.Nics = append(vm.Nics, nic)
	}
}

// SetVMState forces a VM's state
func (p *Platform) SetVMState(vmUUID, state string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if vm, ok := p.vms[vmUUID]; ok {
		vm.State = state
	}
}

// Instance returns a copy of the stored instance, or nil
func (p *Platform) Instance(id string) *types.Instance {
	p.mu.Lock()
	defer p.mu.Unlock()
	if inst, ok := p.instances[id]; ok {
		cp := *inst
		return &cp
	}
	return nil
}

// Service returns a copy of the named service, or nil
func (p *Platform) Service(name string) *types.Service {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, id := range p.order["service"] {
		if svc := p.services[id]; svc.Name == name {
			cp := *svc
			return &cp
		}
	}
	return nil
}

// Application returns the named application, or nil
func (p *Platform) Application(name string) *types.Application {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, id := range p.order["app"] {
		if app := p.apps[id]; app.Name == name {
			return app
		}
	}
	return nil
}
