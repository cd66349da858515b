// README: Entry point; loads config, wires services, starts HTTP server and background sweepers.
package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"carpool/internal/config"
	httptransport "carpool/internal/http"
	"carpool/internal/infra"
	"carpool/internal/logging"
	"carpool/internal/maps"
	"carpool/internal/modules/pricing"
	"carpool/internal/modules/request"
	"carpool/internal/modules/ride"
	"carpool/internal/modules/trip"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal(err)
	}
	logger := logging.NewLogger(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	dbPool, err := infra.NewDB(ctx, cfg.DB.DSN)
	if err != nil {
		log.Fatal(err)
	}
	defer dbPool.Close()

	redisClient := infra.NewRedis(cfg.Redis.Addr)

	var router trip.Router
	if cfg.Maps.APIKey != "" {
		routeService, err := maps.NewRouteService(cfg.Maps.APIKey)
		if err != nil {
			log.Fatalf("maps init: %v", err)
		}
		router = routeService
	} else {
		logger.Warn("CARPOOL_MAPS_API_KEY not set; trip estimates unavailable")
	}
	tripSvc := trip.NewService(router, trip.NewStore(redisClient, cfg.Trip.CacheTTL))

	pricingSvc := pricing.NewService(pricing.NewStore(dbPool))

	rideSvc := ride.NewService(ride.NewStore(dbPool))
	requestSvc := request.NewService(request.NewStore(dbPool), rideSvc)

	handler := httptransport.NewRouter(httptransport.RouterDeps{
		Pricing:  pricingSvc,
		Trips:    tripSvc,
		Rides:    rideSvc,
		Requests: requestSvc,
		Logger:   logger,
	})

	server := &http.Server{Addr: cfg.HTTP.Addr, Handler: handler}

	tick := time.Duration(cfg.Sweeper.TickSeconds) * time.Second
	go requestSvc.RunExpirySweeper(ctx, tick)
	go rideSvc.RunExpirySweeper(ctx, tick)

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	logger.Info("carpool api listening", "addr", cfg.HTTP.Addr)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatal(err)
	}
}
