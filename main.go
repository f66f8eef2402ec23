package gqlmock

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"time"

	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// Main runs the mock server. This function is exported so that it can be
// reused when building gqlmock with custom plugins.
func Main() {
	ctx := context.Background()

	var configFiles arrayFlags
	flag.Var(&configFiles, "config", "Config file (can appear multiple times)")
	flag.Parse()

	log.SetFormatter(&log.JSONFormatter{TimestampFormat: time.RFC3339Nano})

	cfg, err := GetConfig(configFiles)
	if err != nil {
		log.WithError(err).Fatal("failed to get config")
	}

	shutdown, err := InitTelemetry(ctx, cfg.Telemetry)
	if err != nil {
		log.WithError(err).Error("error creating telemetry")
	} else {
		defer func() {
			log.Info("flushing and shutting down telemetry")
			if err := shutdown(context.Background()); err != nil {
				log.WithError(err).Error("shutting down telemetry")
			}
		}()
	}

	if err := cfg.Init(); err != nil {
		log.WithError(err).Fatal("failed to configure")
	}
	go cfg.Watch()

	log.WithField("config", cfg).Debug("configuration")

	srv := NewServer(cfg.Backend(), cfg.EnabledPlugins())
	RegisterMetrics()

	ctx, cancel := signal.NotifyContext(ctx, os.Interrupt)
	defer cancel()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return runHandler(ctx, "metrics", cfg.MetricAddress(), cfg.DefaultTimeouts, NewMetricsHandler())
	})
	g.Go(func() error {
		return runHandler(ctx, "private", cfg.PrivateAddress(), cfg.PrivateTimeouts, srv.PrivateRouter())
	})
	g.Go(func() error {
		return runHandler(ctx, "public", cfg.PublicAddress(), cfg.PublicTimeouts, srv.Router())
	})

	if err := g.Wait(); err != nil {
		log.WithError(err).Error("server terminated unexpectedly")
	}
}

func runHandler(ctx context.Context, name, addr string, timeouts TimeoutConfig, handler http.Handler) error {
	srv := &http.Server{
		Addr:         addr,
		Handler:      handler,
		ReadTimeout:  timeouts.ReadTimeoutDuration,
		WriteTimeout: timeouts.WriteTimeoutDuration,
		IdleTimeout:  timeouts.IdleTimeoutDuration,
	}

	errc := make(chan error, 1)
	go func() {
		log.WithField("addr", addr).Infof("serving %s handler", name)
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			errc <- err
		}
		close(errc)
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}

	timeoutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	log.Infof("shutting down %s handler", name)
	if err := srv.Shutdown(timeoutCtx); err != nil {
		log.WithError(err).Error("error shutting down server")
	}
	log.Infof("shut down %s handler", name)
	return nil
}
