package plan

import (
	"slices"

	"github.com/cuemby/fleetadm/pkg/types"
)

// Update is one row of the available-updates listing
type Update struct {
	Service string
	// Current is the image some instances of Service run today
	Current string
	Target  *types.Image
}

// Available lists, per service, every distinct image its instances run
// that differs from the latest available image. A drifted fleet yields
// one row per stale image. Services with no candidate image are skipped.
// An empty names list means every service.
func Available(state *State, names []string) []Update {
	var out []Update
	for _, svc := range state.Services {
		if len(names) > 0 && !slices.Contains(names, svc.Name) {
			continue
		}
		target := latest(state.candidates(svc.Name))
		if target == nil {
			continue
		}

		seen := make(map[string]bool)
		for _, inst := range state.instancesOf(svc) {
			if inst.ImageUUID == target.UUID || seen[inst.ImageUUID] {
				continue
			}
			seen[inst.ImageUUID] = true
			out = append(out, Update{Service: svc.Name, Current: inst.ImageUUID, Target: target})
		}
	}
	return out
}
