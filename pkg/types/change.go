package types

import (
	"fmt"
	"time"
)

// ChangeType names the kind of reconciliation an operator asked for
type ChangeType string

const (
	ChangeAddInstance   ChangeType = "add-instance"
	ChangeAddService    ChangeType = "add-service"
	ChangeCreate        ChangeType = "create"
	ChangeUpdateService ChangeType = "update-service"
	ChangeReprovision   ChangeType = "reprovision"
)

// Change is one unit of operator intent. Exactly one of Service and
// Instance identifies the target; Server narrows a service-scoped change
// to one compute node. At most one of Image and Version pins the artifact.
type Change struct {
	Type     ChangeType `json:"type"`
	Service  string     `json:"service,omitempty"`
	Instance string     `json:"instance,omitempty"`
	Server   string     `json:"server,omitempty"`
	Image    string     `json:"image,omitempty"`
	Version  string     `json:"version,omitempty"`
}

// Target returns a short human-readable identifier of the change target
func (c Change) Target() string {
	target := c.Service
	if c.Instance != "" {
		target = c.Instance
	} else if c.Server != "" {
		target = c.Server + "/" + c.Service
	}
	switch {
	case c.Image != "":
		return target + "@" + c.Image
	case c.Version != "":
		return target + "@" + c.Version
	}
	return target
}

func (c Change) String() string {
	return fmt.Sprintf("%s %s", c.Type, c.Target())
}

// HistoryEntry records one confirmed change set and its outcome. A nil
// FinishedAt marks a run that was interrupted before it could be
// finalized.
type HistoryEntry struct {
	UUID       string     `json:"uuid"`
	Changes    []Change   `json:"changes"`
	Operation  string     `json:"operation,omitempty"`
	StartedAt  time.Time  `json:"started_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
	Error      string     `json:"error,omitempty"`
}

// Finished reports whether the entry was finalized
func (h *HistoryEntry) Finished() bool {
	return h.FinishedAt != nil
}
