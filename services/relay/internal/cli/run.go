package cli

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/charliejllewellyn/airplanes.live-takserver-script/services/relay/internal/config"
	"github.com/charliejllewellyn/airplanes.live-takserver-script/services/relay/internal/cot"
	"github.com/charliejllewellyn/airplanes.live-takserver-script/services/relay/internal/feed"
	"github.com/charliejllewellyn/airplanes.live-takserver-script/services/relay/internal/logging"
	"github.com/charliejllewellyn/airplanes.live-takserver-script/services/relay/internal/metrics"
	"github.com/charliejllewellyn/airplanes.live-takserver-script/services/relay/internal/scheduler"
	"github.com/charliejllewellyn/airplanes.live-takserver-script/services/relay/internal/status"
	"github.com/charliejllewellyn/airplanes.live-takserver-script/services/relay/internal/transport"
)

func newLogger(cfg config.Config) logging.Logger {
	return logging.New(logging.Config{Level: cfg.LogLevel, Format: cfg.LogFormat}).
		With(logging.String("service", "adsb-cot"))
}

// runRelay owns the transport for the whole run: it is opened before the
// first poll and closed on every exit path, signals included.
func runRelay(parent context.Context, cfg config.Config, log logging.Logger) error {
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	opts, err := cfg.TransportOptions()
	if err != nil {
		return err
	}
	sender, err := transport.Dial(ctx, opts)
	if err != nil {
		log.Error(ctx, "transport setup failed", logging.String("mode", string(opts.Mode)), logging.String("dest", opts.Addr), logging.Err(err))
		return fmt.Errorf("open transport: %w", err)
	}
	defer func() {
		if err := sender.Close(); err != nil {
			log.Warn(context.Background(), "closing transport", logging.Err(err))
		}
	}()

	collector, err := metrics.NewCollector(nil)
	if err != nil {
		return fmt.Errorf("metrics: %w", err)
	}
	observers := []scheduler.Observer{collector}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	statusDone := make(chan struct{})
	if cfg.StatusAddr != "" {
		srv := status.New(cfg.StatusAddr, status.Info{
			Version:     version,
			Mode:        string(opts.Mode),
			Destination: opts.Addr,
			Query:       cfg.Query(),
			RateSeconds: cfg.RateSeconds,
		}, collector.Handler())
		observers = append(observers, srv)

		go func() {
			defer close(statusDone)
			log.Info(runCtx, "status server listening", logging.String("addr", cfg.StatusAddr))
			if err := srv.Run(runCtx); err != nil {
				log.Warn(runCtx, "status server exited", logging.Err(err))
			}
		}()
	} else {
		close(statusDone)
	}

	stale := scheduler.StaleInterval(cfg.RateSeconds)
	sched, err := scheduler.New(scheduler.Config{
		Query:       cfg.Query(),
		RateSeconds: cfg.RateSeconds,
		Mode:        string(opts.Mode),
		Fetcher:     feed.NewClient(&http.Client{Timeout: cfg.FeedTimeout}, cfg.FeedBaseURL),
		Builder:     cot.NewBuilder(stale),
		Sender:      sender,
		Logger:      log,
		Observers:   observers,
	})
	if err != nil {
		return err
	}

	log.Info(ctx, "relay starting",
		logging.String("mode", string(opts.Mode)),
		logging.String("dest", opts.Addr),
		logging.Float("lat", cfg.Lat),
		logging.Float("lon", cfg.Lon),
		logging.Int("radius_nm", cfg.RadiusNM),
		logging.Int("rate_s", cfg.RateSeconds),
		logging.String("stale", stale.String()),
	)

	runErr := sched.Run(runCtx)
	cancel()
	<-statusDone

	if runErr != nil {
		log.Error(ctx, "relay stopped", logging.Err(runErr))
		return runErr
	}
	log.Info(ctx, "relay finished")
	return nil
}
