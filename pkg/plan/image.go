package plan

import (
	"sort"

	"github.com/Masterminds/semver/v3"
	"github.com/cuemby/fleetadm/pkg/errs"
	"github.com/cuemby/fleetadm/pkg/types"
)

// imageNames maps services whose image is not named after the service
var imageNames = map[string]string{
	"manatee":       "sdc-postgres",
	"binder":        "sdc-zookeeper",
	"manta":         "manta-deployment",
	"assets":        "sdc-assets",
	"dhcpd":         "sdc-booter",
	"sdc":           "sdc-sdc",
	"hagfish-watch": "hagfish-watcher",
}

// ImageName returns the image name used by a service
func ImageName(service string) string {
	if name, ok := imageNames[service]; ok {
		return name
	}
	return service
}

// candidates returns every image for the service known locally or
// offered by the update channel, local entries first, deduplicated
func (s *State) candidates(service string) []*types.Image {
	name := ImageName(service)
	seen := make(map[string]bool)
	var out []*types.Image
	for _, list := range [][]*types.Image{s.LocalImages, s.SourceImages} {
		for _, img := range list {
			if img.Name != name || seen[img.UUID] {
				continue
			}
			seen[img.UUID] = true
			out = append(out, img)
		}
	}
	return out
}

func (s *State) findImage(id string) *types.Image {
	for _, list := range [][]*types.Image{s.LocalImages, s.SourceImages} {
		for _, img := range list {
			if img.UUID == id {
				return img
			}
		}
	}
	return nil
}

// latest picks the image with the greatest publish time. Equal times
// keep their input order, so the last of them wins.
func latest(imgs []*types.Image) *types.Image {
	if len(imgs) == 0 {
		return nil
	}
	sorted := make([]*types.Image, len(imgs))
	copy(sorted, imgs)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].PublishedAt.Before(sorted[j].PublishedAt)
	})
	return sorted[len(sorted)-1]
}

// matchVersion keeps images whose version equals want or, failing that,
// satisfies want read as a semver constraint
func matchVersion(imgs []*types.Image, want string) []*types.Image {
	var exact []*types.Image
	for _, img := range imgs {
		if img.Version == want {
			exact = append(exact, img)
		}
	}
	if len(exact) > 0 {
		return exact
	}

	constraint, err := semver.NewConstraint(want)
	if err != nil {
		return nil
	}
	var out []*types.Image
	for _, img := range imgs {
		v, err := semver.NewVersion(img.Version)
		if err != nil {
			continue
		}
		if constraint.Check(v) {
			out = append(out, img)
		}
	}
	return out
}

// resolveImage returns the target image of a change for service: the
// pinned image, the latest image of the pinned version, or the latest
// image overall
func (s *State) resolveImage(service string, c types.Change) (*types.Image, error) {
	if c.Image != "" {
		img := s.findImage(c.Image)
		if img == nil {
			return nil, errs.Updatef("image %s not found locally or in the update channel", c.Image)
		}
		if want := ImageName(service); img.Name != want {
			return nil, errs.Updatef("image %s is a %q image, service %s needs %q", c.Image, img.Name, service, want)
		}
		return img, nil
	}

	cands := s.candidates(service)
	if c.Version != "" {
		cands = matchVersion(cands, c.Version)
		if len(cands) == 0 {
			return nil, errs.Updatef("no %s image found matching version %q", service, c.Version)
		}
	}
	img := latest(cands)
	if img == nil {
		return nil, errs.Updatef("no image found for service %s", service)
	}
	return img, nil
}
