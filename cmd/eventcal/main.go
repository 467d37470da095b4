package main

import (
	"context"
	"encoding/json"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"

	"eventcal/internal/capture"
	"eventcal/internal/config"
	appLog "eventcal/internal/log"
	"eventcal/internal/view"
)

var version = "0.1.0-dev"

type flagConfig struct {
	configPath string
	listen     string
	once       bool
	snapshot   bool
}

func main() {
	flags := parseFlags()

	conf, err := config.Load(flags.configPath)
	if err != nil {
		appLog.Error("failed to load config", err, "config_path", flags.configPath)
		os.Exit(1)
	}
	if flags.listen != "" {
		conf.Listen = flags.listen
	}
	appLog.SetLevel(appLog.ParseLevel(conf.LogLevel))

	appLog.Info("eventcal starting", "version", version)
	appLog.Info("effective config",
		"listen", conf.Listen,
		"timezone", conf.Location().String(),
		"week_start", conf.WeekStart,
		"refresh", conf.RefreshCron,
		"sources", len(conf.Sources),
		"snapshot", conf.Snapshot.Enabled,
		"once", flags.once,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, conf, flags); err != nil {
		appLog.Error("eventcal failed", err)
		os.Exit(1)
	}
	appLog.Info("eventcal exiting")
}

func run(ctx context.Context, conf *config.Config, flags flagConfig) error {
	a, err := newApp(ctx, conf, conf.Snapshot.Path)
	if err != nil {
		return err
	}
	defer a.Close()

	if flags.once {
		return printPage(ctx, a)
	}

	serveCtx, cancelServe := context.WithCancel(ctx)
	defer cancelServe()
	errCh := make(chan error, 1)
	go func() { errCh <- a.server.ListenAndServe(serveCtx, conf.Listen) }()

	if flags.snapshot {
		err := a.snapshot(ctx)
		cancelServe()
		if serveErr := <-errCh; err == nil {
			err = serveErr
		}
		return err
	}

	sched := cron.New(cron.WithLocation(conf.Location()))
	if _, err := sched.AddFunc(conf.RefreshCron, func() { a.scheduledRefresh(ctx) }); err != nil {
		cancelServe()
		<-errCh
		return err
	}
	sched.Start()
	defer func() { <-sched.Stop().Done() }()

	if conf.Snapshot.Enabled {
		go a.scheduledRefresh(ctx)
	}

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		appLog.Info("signal received, shutting down")
		return <-errCh
	}
}

// scheduledRefresh is the cron job: reload events and, if enabled, retake
// the snapshot.
func (a *app) scheduledRefresh(ctx context.Context) {
	if err := a.refresh(ctx); err != nil {
		appLog.Error("scheduled refresh failed", err)
	}
	if !a.cfg.Snapshot.Enabled {
		return
	}
	if err := a.snapshot(ctx); err != nil {
		appLog.Error("snapshot failed", err)
	}
}

func (a *app) snapshot(ctx context.Context) error {
	url, err := capture.CalendarURL(a.cfg.Listen)
	if err != nil {
		return err
	}
	// Give the listener a moment on first start.
	time.Sleep(500 * time.Millisecond)

	start := time.Now()
	err = capture.CaptureCalendarPNG(ctx, capture.Options{
		URL:        url,
		OutputPath: a.cfg.Snapshot.Path,
		Width:      a.cfg.Snapshot.Width,
		Height:     a.cfg.Snapshot.Height,
	})
	if err != nil {
		return err
	}
	appLog.Info("snapshot written", "path", a.cfg.Snapshot.Path, "elapsed", time.Since(start).String())
	return nil
}

// printPage renders the home list once and writes it to stdout as JSON.
func printPage(ctx context.Context, a *app) error {
	page, err := a.renderer.Display(ctx, view.Request{Page: view.PageHome, Mode: view.ModeList})
	if err != nil {
		return err
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(page)
}

func parseFlags() flagConfig {
	var cfg flagConfig

	flag.StringVar(&cfg.configPath, "config", "./config.yaml", "Path to config file")
	flag.StringVar(&cfg.listen, "listen", "", "HTTP listen address (overrides config if set)")
	flag.BoolVar(&cfg.once, "once", false, "Render the home list once as JSON and exit")
	flag.BoolVar(&cfg.snapshot, "snapshot", false, "Serve, capture one calendar snapshot and exit")

	flag.Parse()

	return cfg
}
