package packages

import (
	"context"
	"errors"
	"testing"

	"github.com/cuemby/fleetadm/pkg/errs"
	"github.com/cuemby/fleetadm/pkg/gateway/fake"
	"github.com/cuemby/fleetadm/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func byName(pkgs []*types.Package) map[string]*types.Package {
	out := make(map[string]*types.Package, len(pkgs))
	for _, p := range pkgs {
		out[p.Name] = p
	}
	return out
}

func TestSamples(t *testing.T) {
	pkgs := Samples()
	require.Len(t, pkgs, 12)
	got := byName(pkgs)

	tests := []struct {
		name        string
		mem, swap   int
		quota, cpu  int
		vcpus       int
		description string
	}{
		{"sample-0.25-smartos", 256, 512, 4096, 20, 0, "Sample 0.25 GB RAM, 4 GB Disk"},
		{"sample-0.25-kvm", 256, 512, 4096, 20, 1, "Sample 0.25 GB RAM, 4 GB Disk"},
		{"sample-0.5-kvm", 512, 1024, 8192, 20, 1, "Sample 0.5 GB RAM, 8 GB Disk"},
		{"sample-1.0-smartos", 1024, 2048, 16384, 20, 0, "Sample 1 GB RAM, 16 GB Disk"},
		{"sample-4.0-kvm", 4096, 8192, 65536, 50, 1, "Sample 4 GB RAM, 64 GB Disk"},
		{"sample-8.0-smartos", 8192, 16384, 131072, 100, 0, "Sample 8 GB RAM, 128 GB Disk"},
		{"sample-16.0-kvm", 16384, 32768, 262144, 200, 2, "Sample 16 GB RAM, 256 GB Disk"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, ok := got[tt.name]
			require.True(t, ok)
			assert.Equal(t, tt.mem, p.MaxPhysicalMemory)
			assert.Equal(t, tt.swap, p.MaxSwap)
			assert.Equal(t, tt.quota, p.Quota)
			assert.Equal(t, tt.cpu, p.CPUCap)
			assert.Equal(t, tt.cpu, p.FSS)
			assert.Equal(t, tt.vcpus, p.VCPUs)
			assert.Equal(t, tt.description, p.Description)
			assert.True(t, p.Active)
			assert.Equal(t, "Sample", p.Group)
		})
	}
}

func TestAddSamples(t *testing.T) {
	p := fake.New()
	p.SeedPackage(&types.Package{Name: "sample-1.0-smartos", Version: "1.0.0", Active: true})
	gw := p.Gateway()

	added, err := AddSamples(context.Background(), gw)
	require.NoError(t, err)
	assert.Len(t, added, 11)
	assert.NotContains(t, byName(added), "sample-1.0-smartos")

	added, err = AddSamples(context.Background(), gw)
	require.NoError(t, err)
	assert.Empty(t, added)
}

func TestAddSamplesTagsFailures(t *testing.T) {
	p := fake.New()
	p.FailOn("AddPackage", errors.New("connection refused"))

	_, err := AddSamples(context.Background(), p.Gateway())
	var ce *errs.SDCClientError
	require.True(t, errors.As(err, &ce))
	assert.Equal(t, "papi", ce.Service)
	assert.Len(t, p.Calls("AddPackage"), 1)
}
