package rest

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"

	"github.com/cuemby/fleetadm/pkg/errs"
	"github.com/cuemby/fleetadm/pkg/gateway"
	"github.com/cuemby/fleetadm/pkg/types"
)

// IMGAPI is the local image repository client. Source listings go to the
// update server directly.
type IMGAPI struct {
	c       *client
	updates *client
	source  string
}

var _ gateway.ImageRepository = (*IMGAPI)(nil)

func imageQuery(filter gateway.ImageFilter) url.Values {
	q := url.Values{}
	setIf(q, "name", filter.Name)
	setIf(q, "state", filter.State)
	return q
}

func (i *IMGAPI) ListImages(ctx context.Context, filter gateway.ImageFilter) ([]*types.Image, error) {
	var out []*types.Image
	if err := i.c.get(ctx, "/images", imageQuery(filter), &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (i *IMGAPI) GetImage(ctx context.Context, uuid string) (*types.Image, error) {
	var out types.Image
	if err := i.c.get(ctx, "/images/"+uuid, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (i *IMGAPI) GetImageFile(ctx context.Context, uuid, destPath string) error {
	resp, err := i.c.send(ctx, http.MethodGet, "/images/"+uuid+"/file", nil, nil)
	if err != nil {
		return errs.Client("imgapi", err)
	}
	defer resp.Body.Close()

	f, err := os.Create(destPath)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", destPath, err)
	}
	if _, err := io.Copy(f, resp.Body); err != nil {
		f.Close()
		return errs.Client("imgapi", fmt.Errorf("download image %s: %w", uuid, err))
	}
	return f.Close()
}

func (i *IMGAPI) ListSourceImages(ctx context.Context, channel string, filter gateway.ImageFilter) ([]*types.Image, error) {
	q := imageQuery(filter)
	setIf(q, "channel", channel)
	var out []*types.Image
	if err := i.updates.get(ctx, "/images", q, &out); err != nil {
		return nil, err
	}
	for _, img := range out {
		img.Channel = channel
	}
	return out, nil
}

func (i *IMGAPI) ImportRemoteImage(ctx context.Context, uuid, channel string) error {
	q := url.Values{"action": {"import-remote"}, "source": {i.source}}
	setIf(q, "channel", channel)
	return i.c.do(ctx, http.MethodPost, "/images/"+uuid, q, nil, nil)
}
