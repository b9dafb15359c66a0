package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/saworbit/brutesim/internal/version"
	"github.com/saworbit/brutesim/pkg/authn"
	"github.com/saworbit/brutesim/pkg/config"
	"github.com/saworbit/brutesim/pkg/driver"
)

// app carries the process-level collaborators so commands can be driven
// from tests without a terminal or the real su binary.
type app struct {
	in     io.Reader
	out    io.Writer
	errOut io.Writer

	newAuth func(cfg *config.SimConfig, logger *log.Logger) (driver.Authenticator, error)
	sleep   func(ctx context.Context, d time.Duration) error
}

func defaultApp() *app {
	return &app{
		in:     os.Stdin,
		out:    os.Stdout,
		errOut: os.Stderr,
		newAuth: func(cfg *config.SimConfig, logger *log.Logger) (driver.Authenticator, error) {
			return authn.NewCommandAuthenticator(cfg.AuthCommand, cfg.AttemptTimeout, logger)
		},
		sleep: driver.Sleep,
	}
}

func main() {
	a := defaultApp()
	root := newRootCmd(a)
	if err := root.Execute(); err != nil {
		// The invalid count message has already been shown to the operator.
		if !errors.Is(err, driver.ErrInvalidAttemptCount) {
			fmt.Fprintf(a.errOut, "Error: %v\n", err)
		}
		os.Exit(1)
	}
}

func newRootCmd(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:           "brutesim",
		Short:         "brutesim - failed-login generator for detection testing",
		Version:       version.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetIn(a.in)
	root.SetOut(a.out)
	root.SetErr(a.errOut)

	root.AddCommand(newSimulateCmd(a), newHistoryCmd(a))
	return root
}

type simulateFlags struct {
	configPath   string
	attempts     int
	delayMin     string
	delayMax     string
	logFile      string
	timeout      time.Duration
	startDelay   time.Duration
	seed         int64
	trustOutcome bool
	usernames    []string
	authCommand  string
	metricsAddr  string
	journalDir   string
	watchAuthLog string
	verbose      bool
}

func newSimulateCmd(a *app) *cobra.Command {
	var f simulateFlags

	cmd := &cobra.Command{
		Use:   "simulate",
		Short: "Generate failed authentication attempts for the monitoring pipeline",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(f.configPath)
			if err != nil {
				return err
			}
			if err := applyFlagOverrides(cmd, cfg, &f); err != nil {
				return err
			}

			logger := log.New(io.Discard, "", 0)
			if f.verbose {
				logger = log.New(a.errOut, "", log.LstdFlags)
			}

			return a.runSimulate(cmd.Context(), cfg, cmd.Flags().Changed("attempts"), logger)
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&f.configPath, "config", "", "TOML configuration file")
	flags.IntVarP(&f.attempts, "attempts", "n", config.DefaultAttempts, "Number of attempts (skips the prompt)")
	flags.StringVar(&f.delayMin, "delay-min", "", "Minimum pause between attempts (seconds or duration)")
	flags.StringVar(&f.delayMax, "delay-max", "", "Maximum pause between attempts (seconds or duration)")
	flags.StringVar(&f.logFile, "log-file", "", "Session log path (truncated on every run)")
	flags.DurationVar(&f.timeout, "timeout", 0, "Timeout for a single authentication attempt")
	flags.DurationVar(&f.startDelay, "start-delay", 0, "Countdown before the first attempt")
	flags.Int64Var(&f.seed, "seed", 0, "Seed for username and delay sampling (0 = random)")
	flags.BoolVar(&f.trustOutcome, "trust-outcome", false, "Record the command's real result instead of always FAILED")
	flags.StringSliceVar(&f.usernames, "usernames", nil, "Candidate usernames")
	flags.StringVar(&f.authCommand, "auth-command", "", "Authentication command template ({user} is replaced)")
	flags.StringVar(&f.metricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address during the run")
	flags.StringVar(&f.journalDir, "journal-dir", "", "Directory of the run history journal")
	flags.StringVar(&f.watchAuthLog, "watch-auth-log", "", "Count lines appended to this auth log during the run")
	flags.BoolVarP(&f.verbose, "verbose", "v", false, "Print diagnostic logs to stderr")
	return cmd
}

// applyFlagOverrides copies explicitly set flags over the loaded config.
func applyFlagOverrides(cmd *cobra.Command, cfg *config.SimConfig, f *simulateFlags) error {
	changed := cmd.Flags().Changed

	if changed("attempts") {
		cfg.Attempts = f.attempts
	}
	if changed("delay-min") {
		d, err := config.ParseDelay(f.delayMin)
		if err != nil {
			return fmt.Errorf("--delay-min: %w", err)
		}
		cfg.DelayMin = d
	}
	if changed("delay-max") {
		d, err := config.ParseDelay(f.delayMax)
		if err != nil {
			return fmt.Errorf("--delay-max: %w", err)
		}
		cfg.DelayMax = d
	}
	if changed("log-file") {
		cfg.LogFile = f.logFile
	}
	if changed("timeout") {
		cfg.AttemptTimeout = f.timeout
	}
	if changed("start-delay") {
		cfg.StartDelay = f.startDelay
	}
	if changed("seed") {
		cfg.Seed = f.seed
	}
	if changed("trust-outcome") {
		cfg.TrustOutcome = f.trustOutcome
	}
	if changed("usernames") {
		cfg.Usernames = f.usernames
	}
	if changed("auth-command") {
		cfg.AuthCommand = f.authCommand
	}
	if changed("metrics-addr") {
		cfg.MetricsAddr = f.metricsAddr
	}
	if changed("journal-dir") {
		cfg.JournalDir = f.journalDir
	}
	if changed("watch-auth-log") {
		cfg.WatchAuthLog = f.watchAuthLog
	}
	return nil
}
