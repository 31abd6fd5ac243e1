// Package packages generates the sample package set offered on
// development installs.
package packages

import (
	"context"
	"fmt"
	"math"
	"strconv"

	"github.com/cuemby/fleetadm/pkg/errs"
	"github.com/cuemby/fleetadm/pkg/gateway"
	"github.com/cuemby/fleetadm/pkg/log"
	"github.com/cuemby/fleetadm/pkg/types"
)

// The largest sample; smaller ones scale it down linearly by memory
const (
	topMemory   = 16384
	topSwap     = 32768
	topQuota    = 262144
	topCPUCap   = 200
	minCPUCap   = 20
	sampleLWPs  = 4000
	sampleIOPri = 100
	group       = "Sample"
	version     = "1.0.0"
)

// SampleSizes are the memory sizes of the sample packages, in GB
var SampleSizes = []float64{0.25, 0.5, 1, 4, 8, 16}

// Samples returns the sample packages: one smartos and one kvm variant
// per size
func Samples() []*types.Package {
	out := make([]*types.Package, 0, 2*len(SampleSizes))
	for _, gb := range SampleSizes {
		mem := int(gb * 1024)
		cpu := int(math.Round(float64(topCPUCap*mem) / topMemory))
		if cpu < minCPUCap {
			cpu = minCPUCap
		}
		quota := topQuota * mem / topMemory

		base := types.Package{
			Version:           version,
			Active:            true,
			Group:             group,
			Description:       fmt.Sprintf("Sample %s GB RAM, %d GB Disk", strconv.FormatFloat(gb, 'f', -1, 64), quota/1024),
			MaxPhysicalMemory: mem,
			MaxSwap:           topSwap * mem / topMemory,
			MaxLWPs:           sampleLWPs,
			Quota:             quota,
			CPUCap:            cpu,
			FSS:               cpu,
			ZFSIOPriority:     sampleIOPri,
		}

		smartos := base
		smartos.Name = "sample-" + sizeLabel(gb) + "-smartos"
		kvm := base
		kvm.Name = "sample-" + sizeLabel(gb) + "-kvm"
		kvm.VCPUs = max(1, cpu/100)
		out = append(out, &smartos, &kvm)
	}
	return out
}

// sizeLabel always carries a fractional part: 0.25, 1.0, 16.0
func sizeLabel(gb float64) string {
	if gb == math.Trunc(gb) {
		return strconv.FormatFloat(gb, 'f', 1, 64)
	}
	return strconv.FormatFloat(gb, 'f', -1, 64)
}

// AddSamples adds the sample packages missing from the catalog and
// returns the ones it added
func AddSamples(ctx context.Context, gw *gateway.Context) ([]*types.Package, error) {
	logger := log.WithComponent("packages")

	existing, err := gw.Packages.ListPackages(ctx, gateway.PackageFilter{})
	if err != nil {
		return nil, errs.Client("papi", err)
	}
	have := make(map[string]bool, len(existing))
	for _, pkg := range existing {
		have[pkg.Name] = true
	}

	var added []*types.Package
	for _, pkg := range Samples() {
		if have[pkg.Name] {
			logger.Debug().Str("package", pkg.Name).Msg("Sample package exists")
			continue
		}
		created, err := gw.Packages.AddPackage(ctx, pkg)
		if err != nil {
			return added, errs.Client("papi", fmt.Errorf("add package %s: %w", pkg.Name, err))
		}
		logger.Info().Str("package", created.Name).Str("uuid", created.UUID).Msg("Added sample package")
		added = append(added, created)
	}
	return added, nil
}
