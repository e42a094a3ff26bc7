// README: Entry point; loads config, wires stores and services, starts the HTTP server.
package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"carpool/internal/config"
	httptransport "carpool/internal/http"
	"carpool/internal/infra"
	"carpool/internal/maps"
	"carpool/internal/modules/audit"
	"carpool/internal/modules/booking"
	"carpool/internal/modules/carpool"
	"carpool/internal/modules/pricing"
	"carpool/internal/modules/settings"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal(err)
	}
	logger, err := infra.NewLogger(cfg.Log.Level)
	if err != nil {
		log.Fatal(err)
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	dbPool, err := infra.NewDB(ctx, cfg.DB.DSN)
	if err != nil {
		logger.Fatal("db init", zap.Error(err))
	}
	defer dbPool.Close()

	redisClient := infra.NewRedis(ctx, cfg.Redis.Addr, cfg.Redis.Password, logger)
	if redisClient != nil {
		defer func() { _ = redisClient.Close() }()
	}

	var estimator maps.Estimator
	var distance carpool.DistanceStrategy
	if cfg.Route.MapsAPIKey != "" {
		routeSvc, err := maps.NewRouteService(cfg.Route.MapsAPIKey, cfg.Route.Timeout)
		if err != nil {
			logger.Fatal("maps init", zap.Error(err))
		}
		cached := maps.NewCachedEstimator(routeSvc, maps.NewCache(redisClient, cfg.Route.CacheTTL))
		estimator = cached
		distance = carpool.EstimatorDistance{
			Estimator: cached,
			Fallback:  carpool.FixedPerWaypoint(carpool.DefaultWaypointDistanceKm),
		}
	} else {
		logger.Info("maps api key not set; using text similarity and fixed waypoint distances")
	}

	settingsSvc := settings.NewService(settings.NewStore(dbPool), cfg.Carpool, logger)
	pricingSvc := pricing.NewService(pricing.NewStore(dbPool), cfg.Cost, logger)
	auditSvc := audit.NewService(audit.NewStore(dbPool), logger)

	carpoolSvc := carpool.NewService(carpool.Deps{
		Bookings:  booking.NewStore(dbPool),
		Repo:      carpool.NewStore(dbPool),
		Settings:  settingsSvc,
		Rates:     pricingSvc,
		Audit:     auditSvc,
		Estimator: estimator,
		Distance:  distance,
		Log:       logger,
	})

	router := httptransport.NewRouter(carpoolSvc, logger)
	server := httptransport.NewServer(cfg.HTTP.Addr, router)

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Warn("http shutdown", zap.Error(err))
		}
	}()

	logger.Info("carpool api listening", zap.String("addr", cfg.HTTP.Addr))
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Fatal("http server", zap.Error(err))
	}
}
