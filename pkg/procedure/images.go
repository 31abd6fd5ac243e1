package procedure

import (
	"context"
	"fmt"
	"strings"

	"github.com/cuemby/fleetadm/pkg/errs"
	"github.com/cuemby/fleetadm/pkg/gateway"
	"github.com/cuemby/fleetadm/pkg/metrics"
	"github.com/cuemby/fleetadm/pkg/types"
	"golang.org/x/sync/errgroup"
)

// DefaultImportConcurrency bounds parallel image imports
const DefaultImportConcurrency = 4

// ExternalNicsHint is shown when imports fail and the image repository
// has no outbound network path
const ExternalNicsHint = "the imgapi instance has no external NIC; run 'fleetadm post-setup common-external-nics' and retry"

// DownloadImages imports images from the update channel into the local
// image repository
type DownloadImages struct {
	Images []*types.Image
	// Concurrency defaults to DefaultImportConcurrency
	Concurrency int
}

func (*DownloadImages) sealed()    {}
func (*DownloadImages) Kind() Kind { return KindDownloadImages }

func (p *DownloadImages) Summarize() string {
	lines := make([]string, 0, len(p.Images)+1)
	lines = append(lines, fmt.Sprintf("download %d image(s):", len(p.Images)))
	for _, img := range p.Images {
		lines = append(lines, "    image "+imageLabel(img))
	}
	return strings.Join(lines, "\n")
}

// Execute imports every image, skipping those already present. One
// failed import does not stop its siblings; all failures are reported
// together once the batch is done.
func (p *DownloadImages) Execute(ctx context.Context, gw *gateway.Context) error {
	logger := logger(p)

	limit := p.Concurrency
	if limit <= 0 {
		limit = DefaultImportConcurrency
	}

	failures := make([]error, len(p.Images))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)
	for i, img := range p.Images {
		i, img := i, img
		g.Go(func() error {
			failures[i] = importImage(gctx, gw, img)
			if failures[i] != nil {
				metrics.ImageImportsTotal.WithLabelValues("failure").Inc()
				logger.Warn().Err(failures[i]).Str("image", img.UUID).Msg("Image import failed")
				return nil
			}
			metrics.ImageImportsTotal.WithLabelValues("success").Inc()
			return nil
		})
	}
	_ = g.Wait()

	err := errs.Collect(failures)
	if err == nil {
		return nil
	}
	if missingExternalNic(ctx, gw) {
		return &errs.UpdateError{Msg: "image import failed", Err: err, Hint: ExternalNicsHint}
	}
	return err
}

func importImage(ctx context.Context, gw *gateway.Context, img *types.Image) error {
	local, err := gw.Images.GetImage(ctx, img.UUID)
	if err == nil && local.State == "active" {
		return nil
	}
	if err != nil && !gateway.IsNotFound(err) {
		return errs.Client("imgapi", fmt.Errorf("get image %s: %w", img.UUID, err))
	}
	if err := gw.Images.ImportRemoteImage(ctx, img.UUID, gw.Channel); err != nil {
		return errs.Client("imgapi", fmt.Errorf("import image %s (%s@%s): %w", img.UUID, img.Name, img.Version, err))
	}
	return nil
}

// missingExternalNic reports whether the image repository instance is
// known and has no NIC on the external network. Lookup failures count as
// "unknown" and produce no hint.
func missingExternalNic(ctx context.Context, gw *gateway.Context) bool {
	svc, err := gw.ServiceByName(ctx, "imgapi")
	if err != nil {
		return false
	}
	insts, err := gw.InstancesOf(ctx, svc)
	if err != nil || len(insts) == 0 {
		return false
	}
	nics, err := gw.Networks.ListNics(ctx, insts[0].UUID)
	if err != nil {
		return false
	}
	for _, nic := range nics {
		if nic.NicTag == "external" {
			return false
		}
	}
	return true
}
