package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-redis/redis_rate/v10"
	"go.uber.org/zap"

	"agromarket/internal/backend"
	"agromarket/internal/cache"
	"agromarket/internal/config"
	"agromarket/internal/connectivity"
	"agromarket/internal/diagnosis"
	"agromarket/internal/handlers"
	"agromarket/internal/logger"
	"agromarket/internal/market"
	"agromarket/internal/models"
	"agromarket/internal/stream"
	"agromarket/internal/tracing"
	"agromarket/internal/translate"
	"agromarket/internal/weather"
)

func main() {
	cfg, envFile := config.Load()

	port := flag.String("port", cfg.Port, "Port for the market API")
	instance := flag.String("instance", cfg.Instance, "Instance ID for this server")
	dbConn := flag.String("db", cfg.DatabaseURL, "Database connection string")
	flag.Parse()
	cfg.Port, cfg.Instance, cfg.DatabaseURL = *port, *instance, *dbConn

	logger.InitLogger(cfg.LogLevel, cfg.Environment)
	defer logger.Sync()
	if !envFile {
		logger.Log.Info("No .env file found, using environment")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdown, err := tracing.InitTracer(ctx, cfg.ServiceName, cfg.OTLPEndpoint)
	if err != nil {
		logger.Log.Fatal("Failed to initialize tracer", zap.Error(err))
	}
	defer func() {
		if err := shutdown(context.Background()); err != nil {
			logger.Log.Error("Failed to shutdown tracer", zap.Error(err))
		}
	}()

	if err := cache.InitRedis(ctx, cfg.RedisAddr); err != nil {
		logger.Log.Warn("Redis unavailable, running without shared cache", zap.Error(err))
	}

	storage, db, err := backend.Open(ctx, cfg)
	if err != nil {
		logger.Log.Fatal("Failed to open listing storage", zap.Error(err))
	}
	if db != nil {
		defer db.Close()
	}

	var source market.Source = market.NewStaticSource()
	if cfg.RemoteListingsURL != "" {
		source = market.NewHTTPSource(cfg.RemoteListingsURL, 15*time.Second)
	}

	hub := handlers.NewListingHub()
	onChange := hub.Broadcast
	if brokers := cfg.Brokers(); brokers != nil {
		pub, err := stream.NewPublisher(brokers, cfg.KafkaPriceTopic)
		if err != nil {
			logger.Log.Fatal("Failed to create Kafka publisher", zap.Error(err))
		}
		defer pub.Close()
		onChange = func(listings []models.Listing) {
			hub.Broadcast(listings)
			pub.PublishListings(listings)
		}
	}

	store := market.NewStore(storage, source,
		market.WithLogger(logger.Log.With(zap.String("instance", cfg.Instance))),
		market.WithOnChange(onChange),
	)

	monitor := connectivity.NewMonitor(true)
	if cfg.ProbeURL != "" {
		go monitor.Probe(ctx, cfg.ProbeURL, cfg.ProbeInterval)
	}
	store.Start(ctx, monitor)
	go store.RunSync(ctx, cfg.SyncInterval)

	handlers.InitSSE(ctx)

	api := &handlers.API{
		Store:             store,
		Weather:           weather.NewClient(cfg.WeatherBaseURL),
		Translator:        translate.NewClient(cfg.TranslateBaseURL),
		Diagnoser:         diagnosis.NewClient(cfg.DiagnosisURL, cfg.DiagnosisAPIKey, cfg.DiagnosisModel),
		Hub:               hub,
		Instance:          cfg.Instance,
		DefaultLat:        cfg.DefaultLat,
		DefaultLon:        cfg.DefaultLon,
		DiagnosePerMinute: cfg.DiagnoseRatePerMinute,
	}
	if db != nil {
		api.Scans = db
	}
	if cache.Enabled() {
		api.Limiter = redis_rate.NewLimiter(cache.RedisClient)
	}

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           api.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Log.Error("HTTP server shutdown failed", zap.Error(err))
		}
	}()

	logger.Log.Info("Market service starting",
		zap.String("port", cfg.Port),
		zap.String("instance", cfg.Instance),
		zap.String("storage", cfg.StorageBackend),
	)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Log.Fatal("HTTP server failed", zap.Error(err))
	}
	logger.Log.Info("Market service stopped")
}
