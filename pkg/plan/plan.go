// Package plan diffs operator changes against a live state snapshot and
// produces the ordered list of procedures that reconciles them.
package plan

import (
	"cmp"
	"fmt"
	"slices"
	"strings"

	"github.com/cuemby/fleetadm/pkg/errs"
	"github.com/cuemby/fleetadm/pkg/log"
	"github.com/cuemby/fleetadm/pkg/procedure"
	"github.com/cuemby/fleetadm/pkg/types"
)

// haServices lose availability when updated with a single instance
var haServices = []string{"manatee", "binder", "moray"}

// preferredPackages names the billing package new services start with
var preferredPackages = map[string]string{
	"cloudapi":    "sdc_2048",
	"cmon":        "sdc_1024",
	"cns":         "sdc_1024",
	"docker":      "sdc_4096",
	"grafana":     "sdc_1024",
	"kbmapi":      "sdc_1024",
	"logarchiver": "sdc_1024",
	"portolan":    "sdc_1024",
	"prometheus":  "sdc_4096",
	"volapi":      "sdc_1024",
}

// Options tune plan generation
type Options struct {
	// SkipHACheck allows updating HA-sensitive services that have fewer
	// than two instances
	SkipHACheck bool
	// AllowDuplicateServers suppresses the confirmation required when
	// several instances of a service target the same server
	AllowDuplicateServers bool
}

// Plan is an ordered list of procedures. It is computed per invocation
// and never persisted.
type Plan struct {
	Changes []types.Change
	Procs   []procedure.Procedure
	// Confirmations must each be acknowledged by the operator, even when
	// other prompts are skipped
	Confirmations []string
}

// Empty reports whether every change is already satisfied
func (p *Plan) Empty() bool {
	return len(p.Procs) == 0
}

// Summary renders the plan for the confirmation prompt
func (p *Plan) Summary() string {
	if p.Empty() {
		return "Up-to-date."
	}
	var b strings.Builder
	b.WriteString("This update will make the following changes:\n")
	for _, proc := range p.Procs {
		for _, line := range strings.Split(proc.Summarize(), "\n") {
			b.WriteString("    ")
			b.WriteString(line)
			b.WriteString("\n")
		}
	}
	return b.String()
}

// generator accumulates procedures per stage while walking the changes
type generator struct {
	state *State
	opts  Options

	downloads []*types.Image
	procs     []procedure.Procedure

	// services created by this plan, by name
	created map[string]*types.Image
	// aliases taken by existing instances or earlier changes, by service
	aliases map[string]map[string]bool
	// servers targeted by new instances, by service
	targets map[string]map[string]int

	confirmations []string
}

// Generate turns changes into a Plan against state. Any error aborts the
// whole generation; no partial plan is returned.
func Generate(changes []types.Change, state *State, opts Options) (*Plan, error) {
	logger := log.WithComponent("planner")

	g := &generator{
		state:   state,
		opts:    opts,
		created: make(map[string]*types.Image),
		aliases: make(map[string]map[string]bool),
		targets: make(map[string]map[string]int),
	}

	for _, c := range changes {
		if err := validate(c); err != nil {
			return nil, err
		}
		var err error
		switch c.Type {
		case types.ChangeUpdateService:
			err = g.updateService(c)
		case types.ChangeReprovision:
			err = g.reprovision(c)
		case types.ChangeAddService, types.ChangeCreate, types.ChangeAddInstance:
			err = g.add(c)
		default:
			err = errs.Internalf("unknown change type %q", c.Type)
		}
		if err != nil {
			return nil, err
		}
	}

	p := &Plan{Changes: changes}
	if len(g.downloads) > 0 {
		p.Procs = append(p.Procs, &procedure.DownloadImages{Images: g.downloads})
	}
	p.Procs = append(p.Procs, g.procs...)
	slices.SortStableFunc(p.Procs, func(a, b procedure.Procedure) int {
		return cmp.Compare(procedure.Stage(a), procedure.Stage(b))
	})
	if !opts.AllowDuplicateServers {
		p.Confirmations = g.confirmations
	}

	logger.Debug().Int("changes", len(changes)).Int("procs", len(p.Procs)).Msg("Plan generated")
	return p, nil
}

func validate(c types.Change) error {
	if c.Image != "" && c.Version != "" {
		return errs.Usagef("%s: cannot pin both an image and a version", c)
	}
	if (c.Service == "") == (c.Instance == "") {
		return errs.Internalf("change %s must name exactly one service or instance", c)
	}
	return nil
}

// need schedules img for download unless it is already imported or
// already scheduled
func (g *generator) need(img *types.Image) {
	if g.state.isLocal(img.UUID) {
		return
	}
	for _, d := range g.downloads {
		if d.UUID == img.UUID {
			return
		}
	}
	g.downloads = append(g.downloads, img)
}

func (g *generator) checkHA(svc *types.Service, count int) error {
	if g.opts.SkipHACheck || !slices.Contains(haServices, svc.Name) || count >= 2 {
		return nil
	}
	return errs.Updatef("%s has %d instance(s); updating it would cause an outage. "+
		"Add instances first (fleetadm post-setup) or pass --skip-ha-check", svc.Name, count)
}

func (g *generator) updateService(c types.Change) error {
	svc := g.state.service(c.Service)
	if svc == nil {
		return errs.Updatef("unknown service %q", c.Service)
	}
	img, err := g.state.resolveImage(svc.Name, c)
	if err != nil {
		return err
	}

	insts := g.state.instancesOf(svc)
	var outdated []*types.Instance
	for _, inst := range insts {
		if inst.ImageUUID != img.UUID {
			outdated = append(outdated, inst)
		}
	}
	serviceStale := svc.Params.ImageUUID != img.UUID
	if !serviceStale && len(outdated) == 0 {
		return nil
	}
	if len(outdated) > 0 {
		if err := g.checkHA(svc, len(insts)); err != nil {
			return err
		}
	}

	g.need(img)
	if serviceStale {
		g.procs = append(g.procs, &procedure.UpdateService{Service: svc, Image: img})
	}
	for _, inst := range outdated {
		g.procs = append(g.procs, instanceUpdate(svc, inst, img))
	}
	return nil
}

func (g *generator) reprovision(c types.Change) error {
	inst := g.state.instance(c.Instance)
	if inst == nil {
		return errs.Updatef("unknown instance %q", c.Instance)
	}
	svc := g.state.serviceByUUID(inst.ServiceUUID)
	if svc == nil {
		return errs.Internalf("instance %s belongs to unknown service %s", inst.UUID, inst.ServiceUUID)
	}
	img, err := g.state.resolveImage(svc.Name, c)
	if err != nil {
		return err
	}
	if inst.ImageUUID == img.UUID {
		return nil
	}
	if err := g.checkHA(svc, len(g.state.instancesOf(svc))); err != nil {
		return err
	}

	g.need(img)
	g.procs = append(g.procs, instanceUpdate(svc, inst, img))
	return nil
}

func instanceUpdate(svc *types.Service, inst *types.Instance, img *types.Image) procedure.Procedure {
	if svc.Type == types.ServiceTypeAgent {
		return &procedure.UpdateInstance{Instance: inst, Image: img}
	}
	return &procedure.ReprovisionInstance{Instance: inst, Image: img}
}

// add handles add-service, create and add-instance changes
func (g *generator) add(c types.Change) error {
	svc := g.state.service(c.Service)

	var img *types.Image
	switch {
	case svc != nil:
		if c.Type == types.ChangeAddService {
			return nil
		}
		if c.Image == "" && c.Version == "" {
			img = g.state.findImage(svc.Params.ImageUUID)
		}
		if img == nil {
			var err error
			if img, err = g.state.resolveImage(svc.Name, c); err != nil {
				return err
			}
		}
	case g.created[c.Service] != nil:
		img = g.created[c.Service]
	default:
		if c.Type == types.ChangeAddInstance {
			return errs.Updatef("service %q does not exist; create it first", c.Service)
		}
		if g.state.Mode != types.ModeFull {
			return errs.Updatef("cannot create service %s: the service registry is in %q mode, not %q",
				c.Service, g.state.Mode, types.ModeFull)
		}
		var err error
		if img, err = g.state.resolveImage(c.Service, c); err != nil {
			return err
		}
		pkg, err := g.choosePackage(c.Service)
		if err != nil {
			return err
		}
		g.need(img)
		g.procs = append(g.procs, &procedure.AddService{Name: c.Service, Image: img, Package: pkg})
		g.created[c.Service] = img
	}

	if c.Type == types.ChangeAddService {
		return nil
	}

	server, err := g.targetServer(c)
	if err != nil {
		return err
	}

	// create is satisfied by any existing instance on the target server
	if c.Type == types.ChangeCreate && svc != nil {
		for _, inst := range g.state.instancesOf(svc) {
			if c.Server == "" || inst.ServerUUID == server.UUID {
				return nil
			}
		}
	}

	g.noteTarget(c.Service, svc, server)
	g.need(img)
	g.procs = append(g.procs, &procedure.AddInstance{
		Service: c.Service,
		Alias:   g.nextAlias(c.Service, svc),
		Server:  server,
		Image:   img,
	})
	return nil
}

func (g *generator) targetServer(c types.Change) (*types.Server, error) {
	if c.Server != "" {
		srv := g.state.server(c.Server)
		if srv == nil {
			return nil, errs.Updatef("unknown server %q", c.Server)
		}
		if !srv.Running() {
			return nil, errs.Updatef("server %s (%s) is not set up and running", srv.UUID, srv.Hostname)
		}
		return srv, nil
	}
	hn := g.state.headnode()
	if hn == nil {
		return nil, errs.Updatef("no headnode found to place %s on", c.Service)
	}
	return hn, nil
}

// noteTarget records a new instance on server and raises a confirmation
// when the service already has, or will have, an instance there
func (g *generator) noteTarget(name string, svc *types.Service, server *types.Server) {
	counts, ok := g.targets[name]
	if !ok {
		counts = make(map[string]int)
		if svc != nil {
			for _, inst := range g.state.instancesOf(svc) {
				counts[inst.ServerUUID]++
			}
		}
		g.targets[name] = counts
	}
	counts[server.UUID]++
	if counts[server.UUID] == 2 {
		g.confirmations = append(g.confirmations,
			fmt.Sprintf("more than one %s instance will run on server %s (%s)", name, server.UUID, server.Hostname))
	}
}

// nextAlias returns the lowest free "<service>N" alias
func (g *generator) nextAlias(name string, svc *types.Service) string {
	used, ok := g.aliases[name]
	if !ok {
		used = make(map[string]bool)
		if svc != nil {
			for _, inst := range g.state.instancesOf(svc) {
				used[inst.Alias] = true
			}
		}
		g.aliases[name] = used
	}
	for n := 0; ; n++ {
		alias := fmt.Sprintf("%s%d", name, n)
		if !used[alias] {
			used[alias] = true
			return alias
		}
	}
}

// choosePackage picks the billing package for a new service: its
// preferred package when active, else the first active sdc_ package
func (g *generator) choosePackage(service string) (*types.Package, error) {
	var eligible []*types.Package
	for _, pkg := range g.state.Packages {
		if pkg.Active && strings.HasPrefix(pkg.Name, "sdc_") {
			eligible = append(eligible, pkg)
		}
	}
	if want, ok := preferredPackages[service]; ok {
		for _, pkg := range eligible {
			if pkg.Name == want {
				return pkg, nil
			}
		}
	}
	if len(eligible) == 0 {
		return nil, errs.Updatef("no active sdc_ package available for new service %s", service)
	}
	return eligible[0], nil
}
