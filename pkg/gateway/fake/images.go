package fake

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/cuemby/fleetadm/pkg/gateway"
	"github.com/cuemby/fleetadm/pkg/types"
)

// --- gateway.ImageRepository ---

func matchImage(img *types.Image, filter gateway.ImageFilter) bool {
	if filter.Name != "" && img.Name != filter.Name {
		return false
	}
	if filter.State != "" && img.State != filter.State {
		return false
	}
	return true
}

func (p *Platform) ListImages(ctx context.Context, filter gateway.ImageFilter) ([]*types.Image, error) {
	p.record("ListImages", filter)
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.failure("ListImages"); err != nil {
		return nil, err
	}
	var out []*types.Image
	for _, id := range p.order["image"] {
		if img := p.images[id]; matchImage(img, filter) {
			cp := *img
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (p *Platform) GetImage(ctx context.Context, id string) (*types.Image, error) {
	p.record("GetImage", id)
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.failure("GetImage"); err != nil {
		return nil, err
	}
	img, ok := p.images[id]
	if !ok {
		return nil, fmt.Errorf("image %s: %w", id, gateway.ErrNotFound)
	}
	cp := *img
	return &cp, nil
}

// GetImageFile writes the image manifest to destPath in place of the file
func (p *Platform) GetImageFile(ctx context.Context, id, destPath string) error {
	p.record("GetImageFile", id, destPath)
	img, err := p.GetImage(ctx, id)
	if err != nil {
		return err
	}
	data, err := json.Marshal(img)
	if err != nil {
		return err
	}
	return os.WriteFile(destPath, data, 0644)
}

func (p *Platform) ListSourceImages(ctx context.Context, channel string, filter gateway.ImageFilter) ([]*types.Image, error) {
	p.record("ListSourceImages", channel, filter)
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.failure("ListSourceImages"); err != nil {
		return nil, err
	}
	var out []*types.Image
	for _, id := range p.order["source"] {
		img := p.sourceImages[id]
		if img.Channel != "" && channel != "" && img.Channel != channel {
			continue
		}
		if matchImage(img, filter) {
			cp := *img
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (p *Platform) ImportRemoteImage(ctx context.Context, id, channel string) error {
	p.record("ImportRemoteImage", id, channel)
	p.mu.Lock()
	if err := p.failure("ImportRemoteImage"); err != nil {
		p.mu.Unlock()
		return err
	}
	importErr := p.ImportErr
	p.mu.Unlock()

	if importErr != nil {
		if err := importErr(id); err != nil {
			return err
		}
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.images[id]; ok {
		return nil
	}
	src, ok := p.sourceImages[id]
	if !ok {
		return fmt.Errorf("image %s in channel %s: %w", id, channel, gateway.ErrNotFound)
	}
	cp := *src
	cp.State = "active"
	p.images[id] = &cp
	p.track("image", id)
	return nil
}
