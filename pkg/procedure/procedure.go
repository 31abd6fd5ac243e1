// Package procedure holds the closed set of operations a plan is made of.
//
// Every procedure carries what was decided at plan time (target image,
// package, server) and re-reads just enough live state before mutating to
// turn a repeated run into a no-op.
package procedure

import (
	"context"
	"fmt"

	"github.com/cuemby/fleetadm/pkg/gateway"
	"github.com/cuemby/fleetadm/pkg/log"
	"github.com/cuemby/fleetadm/pkg/types"
	"github.com/rs/zerolog"
)

// Kind names a procedure variant
type Kind string

const (
	KindDownloadImages Kind = "download-images"
	KindAddService     Kind = "add-service"
	KindUpdateService  Kind = "update-service"
	KindAddInstance    Kind = "add-instance"
	KindUpdateInstance Kind = "update-instance"
	KindReprovision    Kind = "reprovision-instance"
)

// Procedure is one executable unit of a plan
type Procedure interface {
	// Kind identifies the variant
	Kind() Kind
	// Summarize describes the procedure for the confirmation prompt
	Summarize() string
	// Execute applies the procedure through the gateway
	Execute(ctx context.Context, gw *gateway.Context) error

	sealed()
}

// Stage orders procedures within a plan: image downloads first, then
// service-level work, then instance-level work
func Stage(p Procedure) int {
	switch p.Kind() {
	case KindDownloadImages:
		return 0
	case KindAddService, KindUpdateService:
		return 1
	}
	return 2
}

func logger(p Procedure) zerolog.Logger {
	return log.WithComponent("procedure").With().Str("proc", string(p.Kind())).Logger()
}

func serviceLogger(p Procedure, service string) zerolog.Logger {
	return log.WithServiceID(service).With().Str("component", "procedure").Str("proc", string(p.Kind())).Logger()
}

func instanceLogger(p Procedure, instanceUUID string) zerolog.Logger {
	return log.WithInstanceID(instanceUUID).With().Str("component", "procedure").Str("proc", string(p.Kind())).Logger()
}

func imageLabel(img *types.Image) string {
	if img == nil {
		return "<none>"
	}
	return fmt.Sprintf("%s@%s (%s)", img.Name, img.Version, img.UUID)
}

func strPtr(s string) *string { return &s }
