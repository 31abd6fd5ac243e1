// Package change turns operator arguments into normalized Change records.
package change

import (
	"slices"
	"strings"

	"github.com/cuemby/fleetadm/pkg/errs"
	"github.com/cuemby/fleetadm/pkg/types"
	"github.com/google/uuid"
)

var (
	// unsupportedServices are deprecated or removed and never updated
	unsupportedServices = []string{"hostvolume", "sdcsso"}

	// lockedServices need an explicit opt-in before "all" mode touches them
	lockedServices = map[string]string{
		"rabbitmq": "--force-rabbitmq",
		"portolan": "--force-data-path",
	}

	// installableServices may be created even though the registry does
	// not know them yet
	installableServices = []string{
		"cloudapi", "cmon", "cns", "docker", "grafana",
		"kbmapi", "logarchiver", "portolan", "prometheus", "volapi",
	}
)

// Catalog is the registry snapshot arguments are resolved against
type Catalog struct {
	Services  []*types.Service
	Instances []*types.Instance
	Servers   []*types.Server
}

// Options controls how arguments are normalized
type Options struct {
	// Type is the change type for service-scoped targets
	Type types.ChangeType
	// All expands an empty argument list to every eligible service
	All bool
	// Exclude names services skipped in All mode
	Exclude []string
	// Servers fans an add/create change out to one change per server
	Servers []string

	ForceRabbitmq bool
	ForceDataPath bool
	// Experimental includes agent services in All mode
	Experimental bool
}

// Installable reports whether name may be created before it is registered
func Installable(name string) bool {
	return slices.Contains(installableServices, name)
}

func adding(t types.ChangeType) bool {
	switch t {
	case types.ChangeCreate, types.ChangeAddService, types.ChangeAddInstance:
		return true
	}
	return false
}

// SpecFromArgs parses args of the form TARGET[@VERSION|@IMAGE] where
// TARGET is a service name, SERVER/SERVICE or an instance UUID or alias.
// Every failure is a UsageError and happens before any remote call.
func SpecFromArgs(cat *Catalog, args []string, opts Options) ([]types.Change, error) {
	if opts.Type == "" {
		opts.Type = types.ChangeUpdateService
	}

	if opts.All {
		if len(args) > 0 {
			return nil, errs.Usagef("cannot specify services or instances together with --all")
		}
		return allServices(cat, opts)
	}
	if len(args) == 0 {
		return nil, errs.Usagef("must specify at least one service or instance, or --all")
	}

	servers, err := resolveServers(cat, opts.Servers)
	if err != nil {
		return nil, err
	}

	var changes []types.Change
	for _, arg := range args {
		parsed, err := parseToken(cat, arg, opts)
		if err != nil {
			return nil, err
		}

		// fan service-scoped additions out to the requested servers
		if adding(parsed.Type) && parsed.Server == "" && parsed.Type != types.ChangeAddService && len(servers) > 0 {
			for _, s := range servers {
				c := parsed
				c.Server = s
				changes = append(changes, c)
			}
			continue
		}
		changes = append(changes, parsed)
	}
	return changes, nil
}

func parseToken(cat *Catalog, token string, opts Options) (types.Change, error) {
	target, pin, hasPin := strings.Cut(token, "@")
	if target == "" {
		return types.Change{}, errs.Usagef("invalid target %q: empty service or instance", token)
	}
	if hasPin && pin == "" {
		return types.Change{}, errs.Usagef("invalid target %q: empty version or image after '@'", token)
	}

	c := types.Change{Type: opts.Type}
	if hasPin {
		if isUUID(pin) {
			c.Image = pin
		} else {
			c.Version = pin
		}
	}

	if serverRef, svcName, scoped := strings.Cut(target, "/"); scoped {
		return parseScoped(cat, token, serverRef, svcName, c)
	}

	if svc := findService(cat, target); svc != nil || (adding(c.Type) && Installable(target)) {
		c.Service = target
		return c, nil
	}

	if inst := findInstance(cat, target); inst != nil {
		if adding(c.Type) {
			return types.Change{}, errs.Usagef("%q is an instance; %s needs a service", token, c.Type)
		}
		c.Type = types.ChangeReprovision
		c.Instance = inst.UUID
		return c, nil
	}

	return types.Change{}, errs.Usagef("unknown service or instance %q", token)
}

func parseScoped(cat *Catalog, token, serverRef, svcName string, c types.Change) (types.Change, error) {
	server := findServer(cat, serverRef)
	if server == nil {
		return types.Change{}, errs.Usagef("unknown server %q in %q", serverRef, token)
	}
	svc := findService(cat, svcName)
	if svc == nil && !(adding(c.Type) && Installable(svcName)) {
		return types.Change{}, errs.Usagef("unknown service %q in %q", svcName, token)
	}

	if adding(c.Type) {
		if c.Type == types.ChangeAddService {
			return types.Change{}, errs.Usagef("%q names a server; add-service takes a bare service name", token)
		}
		c.Service = svcName
		c.Server = server.UUID
		return c, nil
	}

	for _, inst := range cat.Instances {
		if inst.ServiceUUID == svc.UUID && inst.ServerUUID == server.UUID {
			c.Type = types.ChangeReprovision
			c.Instance = inst.UUID
			return c, nil
		}
	}
	return types.Change{}, errs.Usagef("no %s instance on server %s", svcName, serverRef)
}

func allServices(cat *Catalog, opts Options) ([]types.Change, error) {
	for _, name := range opts.Exclude {
		if findService(cat, name) == nil {
			return nil, errs.Usagef("unknown service %q in exclusions", name)
		}
	}

	var changes []types.Change
	for _, svc := range cat.Services {
		if slices.Contains(unsupportedServices, svc.Name) || slices.Contains(opts.Exclude, svc.Name) {
			continue
		}
		if flag, locked := lockedServices[svc.Name]; locked && !forced(flag, opts) {
			continue
		}
		if svc.Type == types.ServiceTypeAgent && !opts.Experimental {
			continue
		}
		changes = append(changes, types.Change{Type: types.ChangeUpdateService, Service: svc.Name})
	}
	return changes, nil
}

func forced(flag string, opts Options) bool {
	switch flag {
	case "--force-rabbitmq":
		return opts.ForceRabbitmq
	case "--force-data-path":
		return opts.ForceDataPath
	}
	return false
}

// LockedFlag returns the opt-in flag a locked service needs, or ""
func LockedFlag(service string) string {
	return lockedServices[service]
}

func resolveServers(cat *Catalog, refs []string) ([]string, error) {
	var out []string
	for _, ref := range refs {
		s := findServer(cat, ref)
		if s == nil {
			return nil, errs.Usagef("unknown server %q", ref)
		}
		out = append(out, s.UUID)
	}
	return out, nil
}

func isUUID(s string) bool {
	if len(s) != 36 {
		return false
	}
	_, err := uuid.Parse(s)
	return err == nil
}

func findService(cat *Catalog, name string) *types.Service {
	for _, svc := range cat.Services {
		if svc.Name == name {
			return svc
		}
	}
	return nil
}

func findInstance(cat *Catalog, ref string) *types.Instance {
	for _, inst := range cat.Instances {
		if inst.UUID == ref || (inst.Alias != "" && inst.Alias == ref) {
			return inst
		}
	}
	return nil
}

func findServer(cat *Catalog, ref string) *types.Server {
	for _, s := range cat.Servers {
		if s.UUID == ref || s.Hostname == ref {
			return s
		}
	}
	return nil
}
