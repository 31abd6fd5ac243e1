package plan

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/cuemby/fleetadm/pkg/errs"
	"github.com/cuemby/fleetadm/pkg/gateway"
	"github.com/cuemby/fleetadm/pkg/gateway/fake"
	"github.com/cuemby/fleetadm/pkg/procedure"
	"github.com/cuemby/fleetadm/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

func day(n int) time.Time { return t0.AddDate(0, 0, n) }

func newPlatform() *fake.Platform {
	p := fake.New()
	p.AddServer(&types.Server{UUID: "srv-hn", Hostname: "headnode", Headnode: true, Setup: true, Status: "running"})
	p.AddServer(&types.Server{UUID: "srv-cn1", Hostname: "cn1", Setup: true, Status: "running"})
	p.AddServer(&types.Server{UUID: "srv-cn2", Hostname: "cn2", Setup: false, Status: "unknown"})
	return p
}

// addService seeds a VM service whose instances all run image, which is
// imported locally
func addService(p *fake.Platform, name, image string, servers ...string) *types.Service {
	p.AddImage(&types.Image{UUID: image, Name: ImageName(name), Version: "1.0.0", State: "active", PublishedAt: t0})
	svc := p.AddService(&types.Service{Name: name, Params: types.ServiceParams{ImageUUID: image}})
	for i, srv := range servers {
		p.AddInstance(svc, name+string(rune('0'+i)), srv, image)
	}
	return svc
}

func load(t *testing.T, p *fake.Platform) *State {
	t.Helper()
	s, err := LoadState(context.Background(), p.Gateway())
	require.NoError(t, err)
	return s
}

func apply(t *testing.T, p *fake.Platform, plan *Plan) {
	t.Helper()
	for _, proc := range plan.Procs {
		require.NoError(t, proc.Execute(context.Background(), p.Gateway()), proc.Summarize())
	}
}

func kinds(plan *Plan) []procedure.Kind {
	var out []procedure.Kind
	for _, proc := range plan.Procs {
		out = append(out, proc.Kind())
	}
	return out
}

func TestLatestKeepsInputOrderOnTies(t *testing.T) {
	a := &types.Image{UUID: "a", PublishedAt: day(2)}
	b := &types.Image{UUID: "b", PublishedAt: day(5)}
	c := &types.Image{UUID: "c", PublishedAt: day(5)}
	d := &types.Image{UUID: "d", PublishedAt: day(1)}

	assert.Equal(t, "c", latest([]*types.Image{a, b, c, d}).UUID)
	assert.Equal(t, "b", latest([]*types.Image{c, b, a}).UUID)
	assert.Nil(t, latest(nil))
}

func TestResolveImage(t *testing.T) {
	state := &State{
		LocalImages: []*types.Image{
			{UUID: "11111111-1111-1111-1111-111111111111", Name: "vmapi", Version: "1.2.0", PublishedAt: day(1)},
		},
		SourceImages: []*types.Image{
			{UUID: "22222222-2222-2222-2222-222222222222", Name: "vmapi", Version: "1.3.0", PublishedAt: day(2)},
			{UUID: "33333333-3333-3333-3333-333333333333", Name: "vmapi", Version: "2.0.0", PublishedAt: day(3)},
			{UUID: "44444444-4444-4444-4444-444444444444", Name: "sdc-postgres", Version: "9.6.3", PublishedAt: day(4)},
		},
	}

	tests := []struct {
		name    string
		service string
		change  types.Change
		want    string
		wantErr string
	}{
		{name: "latest", service: "vmapi", want: "33333333-3333-3333-3333-333333333333"},
		{name: "image pin", service: "vmapi", change: types.Change{Image: "11111111-1111-1111-1111-111111111111"}, want: "11111111-1111-1111-1111-111111111111"},
		{name: "exact version", service: "vmapi", change: types.Change{Version: "1.3.0"}, want: "22222222-2222-2222-2222-222222222222"},
		{name: "semver constraint", service: "vmapi", change: types.Change{Version: "^1.2"}, want: "22222222-2222-2222-2222-222222222222"},
		{name: "mapped image name", service: "manatee", want: "44444444-4444-4444-4444-444444444444"},
		{name: "unknown image pin", service: "vmapi", change: types.Change{Image: "55555555-5555-5555-5555-555555555555"}, wantErr: "not found"},
		{name: "image of another service", service: "vmapi", change: types.Change{Image: "44444444-4444-4444-4444-444444444444"}, wantErr: "sdc-postgres"},
		{name: "no matching version", service: "vmapi", change: types.Change{Version: "9.9.9"}, wantErr: "9.9.9"},
		{name: "no images at all", service: "cnapi", wantErr: "no image found"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			img, err := state.resolveImage(tt.service, tt.change)
			if tt.wantErr != "" {
				var ue *errs.UpdateError
				require.ErrorAs(t, err, &ue)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, img.UUID)
		})
	}
}

func TestGenerateUpdateIsIdempotent(t *testing.T) {
	p := newPlatform()
	addService(p, "vmapi", "vmapi-1", "srv-hn", "srv-cn1")
	p.AddSourceImage(&types.Image{UUID: "vmapi-2", Name: "vmapi", Version: "1.1.0", PublishedAt: day(3)})

	changes := []types.Change{{Type: types.ChangeUpdateService, Service: "vmapi"}}
	plan, err := Generate(changes, load(t, p), Options{})
	require.NoError(t, err)
	assert.Equal(t, []procedure.Kind{
		procedure.KindDownloadImages,
		procedure.KindUpdateService,
		procedure.KindReprovision,
		procedure.KindReprovision,
	}, kinds(plan))
	assert.Contains(t, plan.Summary(), "reprovision vmapi instance")

	apply(t, p, plan)

	again, err := Generate(changes, load(t, p), Options{})
	require.NoError(t, err)
	assert.Empty(t, again.Procs)
	assert.True(t, again.Empty())
	assert.Equal(t, "Up-to-date.", again.Summary())
}

func TestGenerateSkipsSatisfiedChanges(t *testing.T) {
	p := newPlatform()
	addService(p, "sapi", "sapi-1", "srv-hn")
	addService(p, "cnapi", "cnapi-1", "srv-hn")
	p.AddSourceImage(&types.Image{UUID: "cnapi-2", Name: "cnapi", Version: "1.1.0", PublishedAt: day(1)})

	plan, err := Generate([]types.Change{
		{Type: types.ChangeUpdateService, Service: "sapi"},
		{Type: types.ChangeUpdateService, Service: "cnapi"},
	}, load(t, p), Options{})
	require.NoError(t, err)

	for _, proc := range plan.Procs {
		assert.NotContains(t, proc.Summarize(), "sapi")
	}
	assert.Len(t, plan.Procs, 3)
	assert.Len(t, plan.Changes, 2)
}

func TestGeneratePinnedOlderImage(t *testing.T) {
	p := newPlatform()
	addService(p, "vmapi", "vmapi-2", "srv-hn")
	p.AddImage(&types.Image{UUID: "vmapi-1", Name: "vmapi", Version: "0.9.0", State: "active", PublishedAt: t0.AddDate(0, 0, -30)})

	plan, err := Generate([]types.Change{{Type: types.ChangeUpdateService, Service: "vmapi", Version: "0.9.0"}}, load(t, p), Options{})
	require.NoError(t, err)
	assert.Equal(t, []procedure.Kind{procedure.KindUpdateService, procedure.KindReprovision}, kinds(plan),
		"local image needs no download")
}

func TestGenerateCreateEndToEnd(t *testing.T) {
	p := newPlatform()
	p.SeedPackage(&types.Package{Name: "sdc_1024", Version: "1.0.0", Active: true, MaxPhysicalMemory: 1024})
	p.SeedPackage(&types.Package{Name: "sample-512M", Version: "1.0.0", Active: true})
	p.AddSourceImage(&types.Image{UUID: "cns-1", Name: "cns", Version: "1.0.0", PublishedAt: day(1)})

	changes := []types.Change{{Type: types.ChangeCreate, Service: "cns"}}
	plan, err := Generate(changes, load(t, p), Options{})
	require.NoError(t, err)
	require.Equal(t, []procedure.Kind{
		procedure.KindDownloadImages,
		procedure.KindAddService,
		procedure.KindAddInstance,
	}, kinds(plan))

	apply(t, p, plan)

	svc := p.Service("cns")
	require.NotNil(t, svc)
	assert.Equal(t, "cns-1", svc.Params.ImageUUID)

	state := load(t, p)
	insts := state.instancesOf(state.service("cns"))
	require.Len(t, insts, 1)
	assert.Equal(t, "cns0", insts[0].Alias)
	assert.Equal(t, "srv-hn", insts[0].ServerUUID)

	again, err := Generate(changes, state, Options{})
	require.NoError(t, err)
	assert.Empty(t, again.Procs)
}

func TestGenerateAddInstanceAliases(t *testing.T) {
	p := newPlatform()
	svc := addService(p, "moray", "moray-1", "srv-hn")
	p.AddInstance(svc, "moray2", "srv-cn1", "moray-1")

	plan, err := Generate([]types.Change{
		{Type: types.ChangeAddInstance, Service: "moray", Server: "srv-cn1"},
		{Type: types.ChangeAddInstance, Service: "moray", Server: "srv-cn1"},
	}, load(t, p), Options{})
	require.NoError(t, err)

	var aliases []string
	for _, proc := range plan.Procs {
		aliases = append(aliases, proc.(*procedure.AddInstance).Alias)
	}
	assert.Equal(t, []string{"moray1", "moray3"}, aliases)
	assert.Len(t, plan.Confirmations, 1, "three moray instances would share cn1")

	plan, err = Generate([]types.Change{{Type: types.ChangeAddInstance, Service: "moray", Server: "srv-cn1"}}, load(t, p), Options{AllowDuplicateServers: true})
	require.NoError(t, err)
	assert.Empty(t, plan.Confirmations)
	assert.Len(t, plan.Procs, 1)
}

func TestGenerateRejections(t *testing.T) {
	tests := []struct {
		name    string
		setup   func(p *fake.Platform)
		changes []types.Change
		opts    Options
		check   func(t *testing.T, err error)
	}{
		{
			name: "single manatee update needs skip-ha-check",
			setup: func(p *fake.Platform) {
				addService(p, "manatee", "pg-1", "srv-hn")
				p.AddSourceImage(&types.Image{UUID: "pg-2", Name: "sdc-postgres", Version: "1.1.0", PublishedAt: day(1)})
			},
			changes: []types.Change{{Type: types.ChangeUpdateService, Service: "manatee"}},
			check: func(t *testing.T, err error) {
				var ue *errs.UpdateError
				require.ErrorAs(t, err, &ue)
				assert.Contains(t, err.Error(), "--skip-ha-check")
			},
		},
		{
			name: "service creation requires full mode",
			setup: func(p *fake.Platform) {
				p.SetMode(types.ModeProto)
				p.SeedPackage(&types.Package{Name: "sdc_1024", Active: true})
				p.AddSourceImage(&types.Image{UUID: "cns-1", Name: "cns", PublishedAt: day(1)})
			},
			changes: []types.Change{{Type: types.ChangeCreate, Service: "cns"}},
			check: func(t *testing.T, err error) {
				var ue *errs.UpdateError
				require.ErrorAs(t, err, &ue)
				assert.Contains(t, err.Error(), "proto")
			},
		},
		{
			name: "no eligible package",
			setup: func(p *fake.Platform) {
				p.SeedPackage(&types.Package{Name: "sdc_1024", Active: false})
				p.AddSourceImage(&types.Image{UUID: "cns-1", Name: "cns", PublishedAt: day(1)})
			},
			changes: []types.Change{{Type: types.ChangeCreate, Service: "cns"}},
			check: func(t *testing.T, err error) {
				assert.Contains(t, err.Error(), "package")
			},
		},
		{
			name: "server that is not set up",
			setup: func(p *fake.Platform) {
				addService(p, "moray", "moray-1", "srv-hn")
			},
			changes: []types.Change{{Type: types.ChangeAddInstance, Service: "moray", Server: "srv-cn2"}},
			check: func(t *testing.T, err error) {
				assert.Contains(t, err.Error(), "not set up")
			},
		},
		{
			name:    "instance of a missing service",
			changes: []types.Change{{Type: types.ChangeAddInstance, Service: "cns"}},
			check: func(t *testing.T, err error) {
				assert.Contains(t, err.Error(), "create it first")
			},
		},
		{
			name: "conflicting pins",
			setup: func(p *fake.Platform) {
				addService(p, "sapi", "sapi-1", "srv-hn")
			},
			changes: []types.Change{{Type: types.ChangeUpdateService, Service: "sapi", Image: "sapi-1", Version: "1.0.0"}},
			check: func(t *testing.T, err error) {
				assert.True(t, errs.IsUsage(err))
			},
		},
		{
			name: "a failing change discards the whole plan",
			setup: func(p *fake.Platform) {
				addService(p, "vmapi", "vmapi-1", "srv-hn")
				p.AddSourceImage(&types.Image{UUID: "vmapi-2", Name: "vmapi", PublishedAt: day(1)})
			},
			changes: []types.Change{
				{Type: types.ChangeUpdateService, Service: "vmapi"},
				{Type: types.ChangeUpdateService, Service: "nope"},
			},
			check: func(t *testing.T, err error) {
				assert.Contains(t, err.Error(), "nope")
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := newPlatform()
			if tt.setup != nil {
				tt.setup(p)
			}
			plan, err := Generate(tt.changes, load(t, p), tt.opts)
			require.Error(t, err)
			assert.Nil(t, plan)
			tt.check(t, err)
		})
	}
}

func TestGenerateSkipHACheck(t *testing.T) {
	p := newPlatform()
	addService(p, "manatee", "pg-1", "srv-hn")
	p.AddSourceImage(&types.Image{UUID: "pg-2", Name: "sdc-postgres", Version: "1.1.0", PublishedAt: day(1)})

	plan, err := Generate([]types.Change{{Type: types.ChangeUpdateService, Service: "manatee"}}, load(t, p), Options{SkipHACheck: true})
	require.NoError(t, err)
	assert.Len(t, plan.Procs, 3)
}

func TestGenerateOrdersByStage(t *testing.T) {
	p := newPlatform()
	p.SeedPackage(&types.Package{Name: "sdc_1024", Active: true})
	addService(p, "vmapi", "vmapi-1", "srv-hn")
	agent := p.AddService(&types.Service{Name: "net-agent", Type: types.ServiceTypeAgent, Params: types.ServiceParams{ImageUUID: "na-1"}})
	p.AddInstance(agent, "", "srv-hn", "na-1")
	p.AddSourceImage(&types.Image{UUID: "vmapi-2", Name: "vmapi", PublishedAt: day(1)})
	p.AddSourceImage(&types.Image{UUID: "na-2", Name: "net-agent", PublishedAt: day(1)})
	p.AddSourceImage(&types.Image{UUID: "cns-1", Name: "cns", PublishedAt: day(1)})

	plan, err := Generate([]types.Change{
		{Type: types.ChangeUpdateService, Service: "vmapi"},
		{Type: types.ChangeCreate, Service: "cns"},
		{Type: types.ChangeUpdateService, Service: "net-agent"},
	}, load(t, p), Options{})
	require.NoError(t, err)

	require.Len(t, plan.Procs, 7)
	for i := 1; i < len(plan.Procs); i++ {
		assert.LessOrEqual(t, procedure.Stage(plan.Procs[i-1]), procedure.Stage(plan.Procs[i]))
	}
	downloads := plan.Procs[0].(*procedure.DownloadImages)
	assert.Len(t, downloads.Images, 3, "one download procedure for all images")
	assert.IsType(t, &procedure.UpdateInstance{}, plan.Procs[6], "agents are updated in place")
}

func TestGenerateReprovisionInstance(t *testing.T) {
	p := newPlatform()
	svc := addService(p, "moray", "moray-1", "srv-hn", "srv-cn1")
	p.AddSourceImage(&types.Image{UUID: "moray-2", Name: "moray", PublishedAt: day(1)})
	insts, err := p.ListInstances(context.Background(), gatewayFilter(svc))
	require.NoError(t, err)

	changes := []types.Change{{Type: types.ChangeReprovision, Instance: insts[1].UUID}}
	plan, err := Generate(changes, load(t, p), Options{})
	require.NoError(t, err)
	assert.Equal(t, []procedure.Kind{procedure.KindDownloadImages, procedure.KindReprovision}, kinds(plan))

	apply(t, p, plan)
	again, err := Generate(changes, load(t, p), Options{})
	require.NoError(t, err)
	assert.Empty(t, again.Procs)
	assert.Equal(t, "moray-1", p.Instance(insts[0].UUID).ImageUUID, "other instances untouched")
}

func TestAvailable(t *testing.T) {
	p := newPlatform()
	svc := addService(p, "vmapi", "vmapi-1", "srv-hn", "srv-cn1")
	p.AddImage(&types.Image{UUID: "vmapi-0", Name: "vmapi", State: "active", PublishedAt: t0.AddDate(0, 0, -10)})
	p.AddInstance(svc, "vmapi2", "srv-hn", "vmapi-0")
	p.AddSourceImage(&types.Image{UUID: "vmapi-2", Name: "vmapi", PublishedAt: day(2)})
	addService(p, "sapi", "sapi-1", "srv-hn")

	rows := Available(load(t, p), nil)
	require.Len(t, rows, 2, "one row per distinct stale image")
	assert.Equal(t, "vmapi-1", rows[0].Current)
	assert.Equal(t, "vmapi-0", rows[1].Current)
	for _, r := range rows {
		assert.Equal(t, "vmapi", r.Service)
		assert.Equal(t, "vmapi-2", r.Target.UUID)
	}

	assert.Empty(t, Available(load(t, p), []string{"sapi"}))
}

func TestLoadStateTagsFailures(t *testing.T) {
	tests := []struct {
		method  string
		service string
	}{
		{"GetMode", "sapi"},
		{"ListInstances", "sapi"},
		{"ListServers", "cnapi"},
		{"ListSourceImages", "imgapi"},
		{"ListPackages", "papi"},
	}
	for _, tt := range tests {
		t.Run(tt.method, func(t *testing.T) {
			p := newPlatform()
			p.FailOn(tt.method, errors.New("unavailable"))

			_, err := LoadState(context.Background(), p.Gateway())
			var ce *errs.SDCClientError
			require.ErrorAs(t, err, &ce)
			assert.Equal(t, tt.service, ce.Service)
		})
	}
}

func TestLoadStateReadsEverything(t *testing.T) {
	p := newPlatform()
	addService(p, "vmapi", "vmapi-1", "srv-hn")

	state, err := LoadState(context.Background(), p.Gateway())
	require.NoError(t, err)
	assert.Equal(t, types.ModeFull, state.Mode)
	assert.NotEmpty(t, state.Services)
	assert.NotEmpty(t, state.Instances)
	assert.NotEmpty(t, state.Servers)
	for _, m := range []string{"GetMode", "ListServices", "ListInstances", "ListServers", "ListImages", "ListSourceImages", "ListPackages"} {
		assert.Len(t, p.Calls(m), 1, m)
	}
}

func gatewayFilter(svc *types.Service) gateway.InstanceFilter {
	return gateway.InstanceFilter{ServiceUUID: svc.UUID}
}
