package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"github.com/citytransit/tracking-service/internal/application"
	"github.com/citytransit/tracking-service/internal/config"
	"github.com/citytransit/tracking-service/internal/infrastructure/cache"
	"github.com/citytransit/tracking-service/internal/infrastructure/database"
	"github.com/citytransit/tracking-service/internal/infrastructure/kafka"
	redisconn "github.com/citytransit/tracking-service/internal/infrastructure/redis"
	"github.com/citytransit/tracking-service/internal/infrastructure/websocket"
	"github.com/citytransit/tracking-service/internal/token"
	httpTransport "github.com/citytransit/tracking-service/internal/transport/http"
)

func main() {
	if err := godotenv.Load(); err != nil {
		logrus.Info("No .env file found, using system environment variables")
	}

	cfg := config.Load()
	setupLogger(cfg.LogLevel, cfg.Environment)

	logrus.Info("Starting Tracking Service...")

	db, err := database.NewConnection(cfg.DatabaseURL)
	if err != nil {
		logrus.Fatal("Failed to connect to database: ", err)
	}
	defer db.Close()

	if err := database.Migrate(db); err != nil {
		logrus.Fatal("Failed to migrate database: ", err)
	}

	redisClient, err := redisconn.NewClient(cfg.RedisAddr, cfg.RedisPassword)
	if err != nil {
		logrus.Fatal("Failed to connect to Redis: ", err)
	}
	defer redisClient.Close()

	kafkaProducer := kafka.NewProducer(cfg.KafkaBrokers, cfg.KafkaTopic, cfg.ServiceName)
	defer kafkaProducer.Close()

	wsHub := websocket.NewHub()
	go wsHub.Run()

	// Durable repositories
	routeRepo := database.NewRouteRepository(db)
	polylineRepo := database.NewPolylineRepository(db)
	vehicleRepo := database.NewVehicleRepository(db)
	driverRepo := database.NewDriverRepository(db)

	// Hot stores
	geometryCache := cache.NewGeometryCache(redisClient, routeRepo, polylineRepo, cfg.GeometryCacheTTL())
	stateStore := cache.NewVehicleStateStore(redisClient, cfg.SpeedRingSize)

	// Application services
	trackingService := application.NewTrackingService(
		vehicleRepo, stateStore, geometryCache, wsHub, kafkaProducer,
		cfg.StalenessThreshold(), cfg.MinSpeedFloorKmh,
	)
	adminService := application.NewAdminService(routeRepo, polylineRepo, vehicleRepo, geometryCache)
	tokenManager := token.NewManager(cfg.JWTSecret, cfg.JWTExpiry(), cfg.ServiceName)
	authService := application.NewAuthService(driverRepo, vehicleRepo, tokenManager)

	handlers := httpTransport.NewHandlers(trackingService, adminService, authService, wsHub, cfg)

	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Recovery())
	handlers.SetupRoutes(router)

	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logrus.Infof("Tracking Service listening on port %s", cfg.ServerPort)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logrus.Fatal("Failed to start server: ", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logrus.Info("Shutting down Tracking Service...")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		logrus.Error("Forced shutdown: ", err)
	}
}

func setupLogger(level, environment string) {
	parsed, err := logrus.ParseLevel(level)
	if err != nil {
		parsed = logrus.InfoLevel
	}
	logrus.SetLevel(parsed)

	if environment == "production" {
		logrus.SetFormatter(&logrus.JSONFormatter{})
	} else {
		logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
}
