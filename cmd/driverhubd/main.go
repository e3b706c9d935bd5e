package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"driverhub/internal/api"
	"driverhub/internal/backend"
	"driverhub/internal/config"
	"driverhub/internal/dispatch"
	"driverhub/internal/history"
	"driverhub/internal/location"
	"driverhub/internal/metrics"
	"driverhub/internal/model"
	"driverhub/internal/session"
)

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	slog.SetDefault(logger)

	cfg, err := config.Load(os.Args[1:])
	if err != nil {
		logger.Error("failed to load config", "err", err)
		os.Exit(1)
	}

	metrics.RegisterDefault()

	// Session store: Redis when configured, in-memory otherwise.
	var sessions session.Store
	if cfg.RedisURL != "" {
		rs, err := session.NewRedis(cfg.RedisURL)
		if err != nil {
			logger.Error("failed to init redis session store", "err", err)
			os.Exit(1)
		}
		sessions = rs
	} else {
		sessions = session.NewMemory()
	}

	// History store: Postgres when configured, in-memory otherwise.
	var hist history.Store
	if cfg.DatabaseURL != "" {
		pg, err := history.NewPostgres(cfg.DatabaseURL)
		if err != nil {
			logger.Error("failed to init postgres history store", "err", err)
			os.Exit(1)
		}
		if err := pg.Migrate(context.Background()); err != nil {
			logger.Error("history migration failed", "err", err)
			os.Exit(1)
		}
		hist = pg
	} else {
		hist = history.NewMemory()
	}

	client := backend.NewClient(cfg.BackendURL, cfg.Token)
	fallback := model.GeoPoint{Lat: cfg.FallbackLat, Lng: cfg.FallbackLng}

	engine := dispatch.New(dispatch.Options{
		DriverID: cfg.DriverID,
		RiderID:  cfg.RiderID,
		Backend:  client,
		Sessions: sessions,
		History:  hist,
		NewFeed: func(onFrame func([]byte)) dispatch.Feed {
			return backend.NewSocket(cfg.WSURL, cfg.DriverID, onFrame, logger)
		},
		PollInterval:     cfg.PollInterval,
		PollInitialDelay: cfg.PollInitialDelay,
		OfferTTL:         cfg.OfferTTL,
		PickupRadiusM:    cfg.PickupRadiusM,
		PickupArmDelay:   cfg.PickupArmDelay,
		Log:              logger,
	})

	reporter := location.NewReporter(
		client,
		location.Fixed{Point: fallback},
		cfg.RiderID,
		fallback,
		cfg.LocationInterval,
		cfg.LocateTimeout,
		cfg.GoOnlineTimeout,
		engine.Status,
		logger,
	)
	reporter.OnSample = engine.UpdateLocation
	engine.SetReporter(reporter)

	if err := engine.Start(context.Background()); err != nil {
		logger.Error("failed to start engine", "err", err)
		os.Exit(1)
	}
	reporter.Start()

	srv := api.NewServer(engine, hist, cfg.RiderID, logger)

	mux := http.NewServeMux()

	// Driver
	mux.HandleFunc("/v1/driver/state", srv.StateHandler)
	mux.HandleFunc("/v1/driver/toggle", srv.ToggleHandler)
	mux.HandleFunc("/v1/driver/vehicle", srv.VehicleHandler)
	mux.HandleFunc("/v1/driver/stream", srv.StreamHandler)

	// Offers and active order
	mux.HandleFunc("/v1/requests/", srv.RequestsHandler)
	mux.HandleFunc("/v1/order/", srv.OrderHandler)

	// History
	mux.HandleFunc("/v1/history", srv.HistoryHandler)

	// Health & metrics
	mux.HandleFunc("/healthz", srv.HealthHandler)
	mux.HandleFunc("/readyz", srv.ReadyHandler)
	mux.Handle("/metrics", promhttp.HandlerFor(metrics.Registry, promhttp.HandlerOpts{}))

	httpSrv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           logMiddleware(logger, mux),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("driverhub listening", "addr", httpSrv.Addr, "rider_id", cfg.RiderID)
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "err", err)
			os.Exit(1)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	logger.Info("shutting down")
	reporter.Stop()
	engine.Stop()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = httpSrv.Shutdown(ctx)
}

func logMiddleware(logger *slog.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		logger.Debug("http", "method", r.Method, "path", r.URL.Path, "dur", time.Since(start))
	})
}
