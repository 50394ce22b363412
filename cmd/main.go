package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"dispatch-service/internal/config"
	"dispatch-service/internal/events"
	"dispatch-service/internal/handlers"
	"dispatch-service/internal/kinesis"
	"dispatch-service/internal/service"
	"dispatch-service/internal/storage"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	kinesisService "github.com/aws/aws-sdk-go-v2/service/kinesis"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func main() {
	// Setup structured JSON logging
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	cfg, err := config.Load(os.Getenv("CONFIG_FILE"))
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	// Initialize storage based on configuration
	var store storage.Store
	switch cfg.StorageType {
	case "dynamodb":
		awsCfg, err := awsconfig.LoadDefaultConfig(context.TODO(), awsconfig.WithRegion(cfg.AWSRegion))
		if err != nil {
			slog.Error("Failed to load AWS config", "error", err)
			os.Exit(1)
		}

		dynamoClient := dynamodb.NewFromConfig(awsCfg)
		store = storage.NewDynamoDBStore(dynamoClient, cfg.DynamoDB.JobsTable, cfg.DynamoDB.UnitsTable, cfg.DynamoDB.LogTable)
		slog.Info("Using DynamoDB storage", "jobs_table", cfg.DynamoDB.JobsTable, "units_table", cfg.DynamoDB.UnitsTable)
	default:
		store = storage.NewMemoryStore()
		slog.Info("Using in-memory storage")
	}

	// Seed units from configuration (unit creation is out-of-band for the
	// engine itself)
	for _, seed := range cfg.Units {
		unit := &storage.Unit{
			ID:        seed.ID,
			Name:      seed.Name,
			Lat:       seed.Lat,
			Lng:       seed.Lng,
			Available: true,
		}
		if err := store.CreateUnit(context.Background(), unit); err != nil {
			slog.Warn("Failed to seed unit", "unit_id", seed.ID, "error", err)
		}
	}

	// Event sinks: always log, stream to Kinesis when configured
	sinks := events.Fanout{events.LogSink{}}
	if cfg.KinesisStream != "" {
		awsCfg, err := awsconfig.LoadDefaultConfig(context.TODO(), awsconfig.WithRegion(cfg.AWSRegion))
		if err != nil {
			slog.Warn("Failed to load AWS config for Kinesis", "error", err)
		} else {
			kinesisClient := kinesisService.NewFromConfig(awsCfg)
			sinks = append(sinks, kinesis.NewStreamer(kinesisClient, cfg.KinesisStream))
			slog.Info("Kinesis event streaming enabled", "stream", cfg.KinesisStream)
		}
	}

	// Initialize engine and deferred confirmation
	engine := service.NewEngine(store, cfg.Pricing, service.TransitionPolicy{Strict: cfg.StrictTransitions}, sinks)
	confirmer := service.NewConfirmer(engine, cfg.ConfirmGrace())
	engine.SetConfirmer(confirmer)

	// Initialize HTTP handlers
	httpHandler := handlers.NewHTTPHandler(engine, store)

	// Setup routes
	router := mux.NewRouter()
	httpHandler.RegisterRoutes(router)
	router.Handle("/metrics", promhttp.Handler()).Methods("GET")

	// Add CORS middleware for frontend
	router.Use(corsMiddleware)

	// Setup graceful shutdown
	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)

	// Start server in a goroutine
	go func() {
		slog.Info("Dispatch Service starting", "port", cfg.Port, "storage", cfg.StorageType)
		if err := http.ListenAndServe(":"+cfg.Port, router); err != nil {
			slog.Error("Dispatch Service failed to start", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal
	<-c
	slog.Info("Dispatch Service shutting down")
	confirmer.Stop()
}

// corsMiddleware adds CORS headers for frontend access
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}
