package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/arloliu/baton"
	"github.com/arloliu/baton/presence"
	"github.com/arloliu/baton/transport"
)

var errUnknownTransport = errors.New("unknown transport")

func loadConfig(path string) (baton.Config, error) {
	if path == "" {
		cfg := baton.DefaultConfig()
		return cfg, nil
	}

	return baton.LoadConfig(path)
}

func run(ctx context.Context, opts *options) error {
	zl := newLogger(opts.logLevel, opts.logEncoding)
	defer func() { _ = zl.Sync() }()
	logger := baton.NewZapLogger(zl)

	cfg, err := loadConfig(opts.configPath)
	if err != nil {
		return err
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	mgrOpts := []baton.Option{
		baton.WithLogger(logger),
		baton.WithMetrics(baton.NewPrometheusMetrics(reg, "baton")),
		baton.WithHooks(&baton.Hooks{
			OnHolderChanged: func(_ context.Context, key, holder string) error {
				zl.Info("holder changed", zap.String("key", key), zap.String("holder", holder))
				return nil
			},
		}),
	}
	if opts.participantID != "" {
		mgrOpts = append(mgrOpts, baton.WithParticipantID(opts.participantID))
	}

	mgr, cleanup, err := newManager(ctx, &cfg, opts, mgrOpts)
	if err != nil {
		return err
	}
	defer cleanup()

	if err := mgr.Start(ctx); err != nil {
		return fmt.Errorf("failed to start manager: %w", err)
	}
	zl.Info("batond started",
		zap.String("participant", mgr.ParticipantID()),
		zap.String("transport", opts.transport),
		zap.Strings("keys", opts.keys),
	)

	var srv *http.Server
	if opts.metricsAddr != "" {
		srv = serveMetrics(opts.metricsAddr, reg, zl)
	}

	var wg sync.WaitGroup
	for _, key := range opts.keys {
		b, err := mgr.Baton(key)
		if err != nil {
			_ = mgr.Stop(context.Background())
			return fmt.Errorf("failed to open baton %s: %w", key, err)
		}

		wg.Add(1)
		go func() {
			defer wg.Done()
			cycle(ctx, b, opts.hold, opts.cooldown, zl)
		}()
	}

	<-ctx.Done()
	zl.Info("shutting down")
	wg.Wait()

	if srv != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		_ = srv.Shutdown(shutdownCtx)
		cancel()
	}

	stopCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	return mgr.Stop(stopCtx)
}

// newManager builds a Manager for the selected transport. The returned
// cleanup closes connections and must run after Stop.
func newManager(ctx context.Context, cfg *baton.Config, opts *options, mgrOpts []baton.Option) (*baton.Manager, func(), error) {
	switch opts.transport {
	case "nats":
		url := opts.natsURL
		stopServer := func() {}
		if opts.embeddedNATS {
			var err error
			url, stopServer, err = startEmbeddedNATS()
			if err != nil {
				return nil, nil, err
			}
		}

		nc, err := nats.Connect(url, nats.Name("batond"))
		if err != nil {
			stopServer()
			return nil, nil, fmt.Errorf("failed to connect to NATS at %s: %w", url, err)
		}
		cleanup := func() {
			nc.Close()
			stopServer()
		}

		mgr, err := baton.NewNATSManager(ctx, cfg, nc, mgrOpts...)
		if err != nil {
			cleanup()
			return nil, nil, err
		}

		return mgr, cleanup, nil

	case "redis":
		client := redis.NewClient(&redis.Options{Addr: opts.redisAddr})
		cleanup := func() { _ = client.Close() }

		tr, err := transport.NewRedis(client, transport.WithSubscribeTimeout(cfg.OperationTimeout))
		if err != nil {
			cleanup()
			return nil, nil, err
		}

		// Redis has no KV presence directory; quorum is sized from the
		// declared participant count.
		mgrOpts = append(mgrOpts, baton.WithPresence(presence.NewStatic(opts.participants)))
		mgr, err := baton.NewManager(cfg, tr, mgrOpts...)
		if err != nil {
			cleanup()
			return nil, nil, err
		}

		return mgr, cleanup, nil

	default:
		return nil, nil, fmt.Errorf("%w: %q", errUnknownTransport, opts.transport)
	}
}

func serveMetrics(addr string, reg *prometheus.Registry, zl *zap.Logger) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))

	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			zl.Error("metrics server failed", zap.Error(err))
		}
	}()

	return srv
}

// cycle claims b, holds it for hold once elected, releases it and claims
// again after cooldown until ctx is done.
func cycle(ctx context.Context, b *baton.Baton, hold, cooldown time.Duration, zl *zap.Logger) {
	elected := make(chan struct{}, 1)
	onElected := func(key string) {
		zl.Info("elected", zap.String("key", key))
		select {
		case elected <- struct{}{}:
		default:
		}
	}
	onReleased := func(key string) {
		zl.Info("released", zap.String("key", key))
	}

	for {
		b.Claim(onElected, onReleased)

		select {
		case <-ctx.Done():
			return
		case <-elected:
		}

		if hold <= 0 {
			<-ctx.Done()
			return
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(hold):
		}

		if b.IsHolding() {
			b.Release(nil)
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(cooldown):
		}
	}
}
