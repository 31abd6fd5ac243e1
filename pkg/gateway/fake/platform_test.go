package fake

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/cuemby/fleetadm/pkg/gateway"
	"github.com/cuemby/fleetadm/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateInstanceProvisionsVM(t *testing.T) {
	ctx := context.Background()
	p := New()
	p.AddServer(&types.Server{UUID: "hn", Hostname: "headnode", Headnode: true, Setup: true, Status: "running"})
	svc, err := p.CreateService(ctx, "cns", p.Application("sdc").UUID, gateway.ServiceSpec{
		Type:   types.ServiceTypeVM,
		Params: types.ServiceParams{ImageUUID: "img-1"},
	})
	require.NoError(t, err)

	inst, err := p.CreateInstance(ctx, svc.UUID, gateway.InstanceSpec{Alias: "cns0", ServerUUID: "hn"})
	require.NoError(t, err)
	assert.Equal(t, "img-1", inst.ImageUUID, "image is inherited from the service")
	assert.Equal(t, "cns", inst.Service)

	vm, err := p.GetVM(ctx, inst.UUID)
	require.NoError(t, err)
	assert.Equal(t, "running", vm.State)
	assert.NotEmpty(t, vm.AdminIP())

	_, err = p.CreateService(ctx, "cns", "", gateway.ServiceSpec{})
	assert.Error(t, err, "service names are unique")
}

func TestImportRemoteImage(t *testing.T) {
	ctx := context.Background()
	p := New()
	p.AddSourceImage(&types.Image{UUID: "img-1", Name: "cns", Version: "1.0", PublishedAt: time.Now()})

	_, err := p.GetImage(ctx, "img-1")
	assert.True(t, gateway.IsNotFound(err))

	require.NoError(t, p.ImportRemoteImage(ctx, "img-1", "release"))
	img, err := p.GetImage(ctx, "img-1")
	require.NoError(t, err)
	assert.Equal(t, "active", img.State)

	assert.Error(t, p.ImportRemoteImage(ctx, "missing", "release"))

	p.ImportErr = func(id string) error { return errors.New("no route to host") }
	assert.EqualError(t, p.ImportRemoteImage(ctx, "img-1", "release"), "no route to host")
}

func TestFailOnAndRecorder(t *testing.T) {
	ctx := context.Background()
	p := New()
	boom := errors.New("boom")

	p.FailOn("GetMode", boom)
	_, err := p.GetMode(ctx)
	assert.ErrorIs(t, err, boom)

	p.FailOn("GetMode", nil)
	mode, err := p.GetMode(ctx)
	require.NoError(t, err)
	assert.Equal(t, types.ModeFull, mode)

	assert.Len(t, p.Calls("GetMode"), 2)
	assert.Empty(t, p.Mutations())

	_, _ = p.CommandExecute(ctx, "hn", "svcadm restart manatee-sitter")
	assert.Equal(t, []string{"CommandExecute"}, p.Mutations())
	assert.Equal(t, []string{"svcadm restart manatee-sitter"}, p.Scripts("hn"))

	p.Reset()
	assert.Empty(t, p.Calls(""))
}

func TestReprovisionRequiresImportedImage(t *testing.T) {
	ctx := context.Background()
	p := New()
	p.AddServer(&types.Server{UUID: "hn", Setup: true, Status: "running"})
	p.AddImage(&types.Image{UUID: "old", Name: "vmapi", Version: "1"})
	svc := p.AddService(&types.Service{Name: "vmapi", Params: types.ServiceParams{ImageUUID: "old"}})
	inst := p.AddInstance(svc, "vmapi0", "hn", "old")

	assert.Error(t, p.ReprovisionInstance(ctx, inst.UUID, "new"))

	p.AddImage(&types.Image{UUID: "new", Name: "vmapi", Version: "2"})
	require.NoError(t, p.ReprovisionInstance(ctx, inst.UUID, "new"))
	assert.Equal(t, "new", p.Instance(inst.UUID).ImageUUID)
	assert.Equal(t, "2", p.Instance(inst.UUID).Version)

	vm, err := p.GetVM(ctx, inst.UUID)
	require.NoError(t, err)
	assert.Equal(t, "new", vm.ImageUUID)
}
