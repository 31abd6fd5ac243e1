package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/cuemby/fleetadm/pkg/bootstrap"
	"github.com/cuemby/fleetadm/pkg/config"
	"github.com/cuemby/fleetadm/pkg/errs"
	"github.com/cuemby/fleetadm/pkg/events"
	"github.com/cuemby/fleetadm/pkg/executor"
	"github.com/cuemby/fleetadm/pkg/gateway"
	"github.com/cuemby/fleetadm/pkg/gateway/rest"
	"github.com/cuemby/fleetadm/pkg/history"
	"github.com/cuemby/fleetadm/pkg/lock"
	"github.com/cuemby/fleetadm/pkg/log"
	"github.com/cuemby/fleetadm/pkg/metrics"
	"github.com/spf13/cobra"
)

var (
	// Version information (set via ldflags during build)
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(exitCode(err))
	}
}

// exitCode is 2 for operator mistakes and 1 for everything else
func exitCode(err error) int {
	if errs.IsUsage(err) {
		return 2
	}
	return 1
}

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "fleetadm",
	Short: "fleetadm - Administer the services of a platform deployment",
	Long: `fleetadm plans and applies changes to the platform's own services:
image updates, new services and instances, HA bootstrap of the
coordination and data tiers, and boot platform assignment.

Every mutating command shows its plan, asks for confirmation, takes the
fleet lock and records the run in the history journal.`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		path, _ := cmd.Flags().GetString("config")
		c, err := config.Load(path)
		if err != nil {
			return err
		}
		cfg = c

		level := cfg.Log.Level
		if cmd.Flags().Changed("log-level") {
			level, _ = cmd.Flags().GetString("log-level")
		}
		jsonLogs := cfg.Log.JSON
		if cmd.Flags().Changed("json-logs") {
			jsonLogs, _ = cmd.Flags().GetBool("json-logs")
		}
		log.Init(log.Config{Level: log.ParseLevel(level), JSONOutput: jsonLogs})
		return nil
	},
}

func init() {
	rootCmd.SetVersionTemplate(fmt.Sprintf(
		"fleetadm version %s\nCommit: %s\nBuilt: %s\n",
		Version, Commit, BuildTime,
	))

	rootCmd.PersistentFlags().String("config", config.DefaultPath, "Config file")
	rootCmd.PersistentFlags().String("log-level", "info", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().Bool("json-logs", false, "Log in JSON")
}

// app holds the collaborators of one mutating command
type app struct {
	cfg     *config.Config
	gw      *gateway.Context
	broker  *events.Broker
	exec    *executor.Executor
	journal *history.BoltJournal
	runner  *executor.Runner

	printed chan struct{}
}

func newApp(cmd *cobra.Command) (*app, error) {
	journal, err := history.NewBoltJournal(cfg.DataDir)
	if err != nil {
		return nil, err
	}

	out := cmd.OutOrStdout()
	broker := events.NewBroker()
	broker.Start()
	a := &app{
		cfg:     cfg,
		gw:      rest.NewContext(cfg),
		broker:  broker,
		journal: journal,
		printed: make(chan struct{}),
	}
	go printEvents(out, broker.Subscribe(), a.printed)

	a.exec = executor.New(a.gw, broker)
	a.runner = &executor.Runner{
		Executor: a.exec,
		Locks:    lock.NewManager(cfg.LockPath),
		Journal:  journal,
		Confirm:  promptConfirm(cmd.InOrStdin(), out),
		Show:     func(summary string) { fmt.Fprintln(out, summary) },
	}
	return a, nil
}

func (a *app) bootstrapper() *bootstrap.Bootstrapper {
	return bootstrap.New(a.exec, bootstrap.WaitOptions{
		Interval:     a.cfg.Wait.Interval,
		Attempts:     a.cfg.Wait.Attempts,
		SettleDelay:  a.cfg.Wait.SettleDelay,
		RestartPause: a.cfg.Wait.RestartPause,
	})
}

// confirm asks prompt unless yes is set
func (a *app) confirm(prompt string, yes bool) error {
	if yes {
		return nil
	}
	ok, err := a.runner.Confirm(prompt)
	if err != nil {
		return err
	}
	if !ok {
		return errs.ErrAborted
	}
	return nil
}

func (a *app) Close() {
	a.broker.Stop()
	<-a.printed
	if err := a.journal.Close(); err != nil {
		log.Logger.Warn().Err(err).Msg("Failed to close history journal")
	}
	if err := metrics.WriteTextfile(a.cfg.MetricsTextfile); err != nil {
		log.Logger.Warn().Err(err).Str("path", a.cfg.MetricsTextfile).Msg("Failed to write metrics")
	}
}

func printEvents(w io.Writer, sub events.Subscriber, done chan<- struct{}) {
	defer close(done)
	for ev := range sub {
		switch ev.Type {
		case events.EventProcedureStarted, events.EventBootstrapStep, events.EventBootstrapWait:
			fmt.Fprintf(w, "[%s] %s\n", ev.Timestamp.Format("15:04:05"), ev.Message)
		case events.EventProcedureFailed, events.EventPlanFailed:
			fmt.Fprintf(w, "[%s] ✗ %s\n", ev.Timestamp.Format("15:04:05"), ev.Message)
		}
	}
}

// promptConfirm reads a yes/no answer per prompt
func promptConfirm(in io.Reader, out io.Writer) executor.Confirm {
	r := bufio.NewReader(in)
	return func(prompt string) (bool, error) {
		fmt.Fprint(out, prompt)
		line, err := r.ReadString('\n')
		if err != nil && !(errors.Is(err, io.EOF) && line != "") {
			if errors.Is(err, io.EOF) {
				return false, nil
			}
			return false, err
		}
		switch strings.ToLower(strings.TrimSpace(line)) {
		case "y", "yes":
			return true, nil
		}
		return false, nil
	}
}
