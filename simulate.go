package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/saworbit/brutesim/internal/metrics"
	"github.com/saworbit/brutesim/internal/version"
	"github.com/saworbit/brutesim/pkg/authwatch"
	"github.com/saworbit/brutesim/pkg/config"
	"github.com/saworbit/brutesim/pkg/driver"
	"github.com/saworbit/brutesim/pkg/recorder"
	"github.com/saworbit/brutesim/pkg/sessionlog"
)

func (a *app) runSimulate(ctx context.Context, cfg *config.SimConfig, attemptsGiven bool, logger *log.Logger) error {
	printIntro(a.out)

	if !attemptsGiven {
		p := newPrompter(a.in, a.out)
		n, err := promptAttempts(p, a.out, cfg.Attempts)
		p.Close()
		if err != nil {
			return err
		}
		cfg.Attempts = n
	}
	if cfg.Attempts < 1 {
		fmt.Fprintln(a.out, "Error: Number of attempts must be at least 1")
		return driver.ErrInvalidAttemptCount
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	// From here on Ctrl-C aborts the run, including a pending pause.
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	auth, err := a.newAuth(cfg, logger)
	if err != nil {
		return err
	}

	if cfg.MetricsAddr != "" {
		metrics.SetAgentInfo("", "", version.Version)
		metricsCtx, cancelMetrics := context.WithCancel(ctx)
		defer cancelMetrics()
		go func() {
			if err := metrics.Serve(metricsCtx, cfg.MetricsAddr, logger); err != nil {
				logger.Printf("[metrics] server stopped: %v", err)
			}
		}()
	}

	printCountdown(a.out, cfg.StartDelay)
	if err := a.sleep(ctx, cfg.StartDelay); err != nil {
		return err
	}

	sessionLog := sessionlog.New(cfg.LogFile)
	opts := driver.Options{
		Usernames:     cfg.Usernames,
		DelayMin:      cfg.DelayMin,
		DelayMax:      cfg.DelayMax,
		ProgressEvery: cfg.ProgressEvery,
		TrustOutcome:  cfg.TrustOutcome,
		Rand:          driver.NewRand(cfg.Seed),
		Sleep:         a.sleep,
		OnProgress:    func(p driver.Progress) { printProgress(a.out, p) },
		Logger:        logger,
	}

	d, err := driver.New(auth, sessionLog, opts)
	if err != nil {
		return err
	}

	var journalSession *recorder.Session
	if cfg.JournalDir != "" {
		journal, err := recorder.Open(cfg.JournalDir)
		if err != nil {
			return err
		}
		defer journal.Close()

		journalSession, err = journal.BeginSession(time.Now(), cfg.LogFile)
		if err != nil {
			return err
		}
		d.SetSink(journalSession)
		logger.Printf("[journal] recording session %s in %s", journalSession.ID(), cfg.JournalDir)
	}

	var watcher *authwatch.Watcher
	if cfg.WatchAuthLog != "" {
		watcher, err = authwatch.Start(ctx, cfg.WatchAuthLog, logger)
		if err != nil {
			logger.Printf("[authwatch] not watching %s: %v", cfg.WatchAuthLog, err)
		}
	}

	metrics.SetUp(true)
	defer metrics.SetUp(false)

	printStartBanner(a.out, cfg.Attempts, time.Now())
	summary, runErr := d.Run(ctx, cfg.Attempts)

	authLines := -1
	if watcher != nil {
		authLines = watcher.Stop()
	}
	if journalSession != nil {
		finished := summary.Finished
		if finished.IsZero() {
			finished = time.Now()
		}
		if err := journalSession.Finish(finished); err != nil {
			logger.Printf("[journal] finish session: %v", err)
		}
	}

	if runErr != nil {
		if errors.Is(runErr, context.Canceled) {
			metrics.ObserveRun("interrupted")
			printInterrupted(a.out, summary)
			return fmt.Errorf("simulation interrupted")
		}
		metrics.ObserveRun("error")
		return runErr
	}
	metrics.ObserveRun("completed")

	if digest, err := sessionLog.Digest(); err == nil {
		logger.Printf("[driver] session log %s digest %s", sessionLog.Path(), digest)
	}

	printSummary(a.out, summary, authLines)
	return nil
}
