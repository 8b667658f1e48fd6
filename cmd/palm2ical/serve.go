package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/robfig/cron/v3"
	"github.com/urfave/cli"

	"palm2ical/internal/convert"
	appLog "palm2ical/internal/log"
	"palm2ical/internal/model"
	"palm2ical/internal/web"
)

var (
	listenOpt string

	serveFlags = []cli.Flag{
		cli.StringFlag{
			Name:        "listen",
			Usage:       "HTTP listen address (overrides config if set)",
			Destination: &listenOpt,
		},
	}
)

// cronLogger routes the scheduler's own logging through the app logger.
type cronLogger struct {
	l *appLog.Logger
}

func (c cronLogger) Info(msg string, kv ...interface{}) {
	c.l.Debug("cron: "+msg, kv...)
}

func (c cronLogger) Error(err error, msg string, kv ...interface{}) {
	c.l.Error("cron: "+msg, err, kv...)
}

func serveAction(c *cli.Context) error {
	cfg, logger, err := settings()
	if err != nil {
		return err
	}
	if listenOpt != "" {
		cfg.Listen = listenOpt
	}
	if c.NArg() > 0 {
		cfg.Source = c.Args().Get(0)
	}
	if cfg.Source == "" || cfg.Source == convert.Stdio {
		return errors.New("serve: a source file is required (set source in the config or pass a path)")
	}
	opts, err := convertOptions(cfg, logger)
	if err != nil {
		return err
	}

	logger.Info("effective config",
		"source", cfg.Source,
		"encoding", cfg.Encoding,
		"timezone", cfg.Timezone,
		"listen", cfg.Listen,
		"refresh", cfg.RefreshCron,
		"horizon_days", cfg.HorizonDays,
	)

	// Root context with cancellation on SIGINT/SIGTERM.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		select {
		case sig := <-sigCh:
			logger.Info("signal received, shutting down", "signal", sig.String())
			cancel()
		case <-ctx.Done():
		}
	}()

	srv := web.NewServer(cfg, func(context.Context) (*model.Calendar, error) {
		return convert.Load(cfg.Source, opts)
	}, web.WithLogger(logger), web.WithClock(now))

	// A failed first load is not fatal; the next scheduled reload may
	// find the file, and /api/status reports the error meanwhile.
	_ = srv.Reload(ctx)

	sched := cron.New(cron.WithLogger(cronLogger{l: logger}))
	if _, err := sched.AddFunc(cfg.RefreshCron, func() {
		_ = srv.Reload(ctx)
	}); err != nil {
		return fmt.Errorf("serve: refresh schedule %q: %w", cfg.RefreshCron, err)
	}
	sched.Start()
	defer func() {
		<-sched.Stop().Done()
	}()

	err = srv.ListenAndServe(ctx)
	logger.Info("palm2ical exiting")
	return err
}
