package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/cuemby/fleetadm/pkg/errs"
	"github.com/cuemby/fleetadm/pkg/health"
	"github.com/cuemby/fleetadm/pkg/log"
	"github.com/cuemby/fleetadm/pkg/metrics"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

var checkHealthCmd = &cobra.Command{
	Use:   "check-health",
	Short: "Ping every control-plane service",
	RunE: func(cmd *cobra.Command, args []string) error {
		checks := healthChecks()

		results := make([]health.Result, len(checks))
		var g errgroup.Group
		for i, c := range checks {
			i, c := i, c
			g.Go(func() error {
				results[i] = c.Check(cmd.Context())
				return nil
			})
		}
		_ = g.Wait()

		unhealthy := 0
		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "SERVICE\tCHECK\tHEALTHY\tLATENCY\tMESSAGE")
		for i, c := range checks {
			r := results[i]
			up := 1.0
			if !r.Healthy {
				up = 0
				unhealthy++
			}
			metrics.ServiceUp.WithLabelValues(c.service, string(c.Type())).Set(up)
			fmt.Fprintf(w, "%s\t%s\t%t\t%s\t%s\n", c.service, c.Type(), r.Healthy, r.Duration.Round(1e6), r.Message)
		}
		if err := w.Flush(); err != nil {
			return err
		}
		if err := metrics.WriteTextfile(cfg.MetricsTextfile); err != nil {
			log.Logger.Warn().Err(err).Msg("Failed to write metrics")
		}
		if unhealthy > 0 {
			return errs.Updatef("%d service(s) unhealthy", unhealthy)
		}
		return nil
	},
}

type namedCheck struct {
	health.Checker
	service string
}

// healthChecks pings each API over HTTP and, with a resolver configured,
// checks that its name resolves in the datacenter zone.
func healthChecks() []namedCheck {
	ep := cfg.Endpoints
	apis := []struct{ name, url string }{
		{"sapi", ep.SAPI},
		{"cnapi", ep.CNAPI},
		{"vmapi", ep.VMAPI},
		{"imgapi", ep.IMGAPI},
		{"papi", ep.PAPI},
		{"napi", ep.NAPI},
	}

	var checks []namedCheck
	for _, api := range apis {
		checks = append(checks, namedCheck{
			Checker: health.NewHTTPChecker(api.name, api.url).WithTimeout(cfg.RequestTimeout),
			service: api.name,
		})
	}
	if cfg.DNSResolver != "" {
		for _, api := range apis {
			name := fmt.Sprintf("%s.%s.%s", api.name, cfg.Datacenter, cfg.DNSDomain)
			dc := health.NewDNSChecker(cfg.DNSResolver, name)
			dc.Client.Timeout = cfg.RequestTimeout
			checks = append(checks, namedCheck{Checker: dc, service: api.name})
		}
	}
	return checks
}

func init() {
	rootCmd.AddCommand(checkHealthCmd)
}
