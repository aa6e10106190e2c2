package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/freshtrace/freshtrace-backend/internal/fulfillment/events"
	"github.com/freshtrace/freshtrace-backend/internal/fulfillment/handler"
	"github.com/freshtrace/freshtrace-backend/internal/fulfillment/label"
	"github.com/freshtrace/freshtrace-backend/internal/fulfillment/ledger"
	"github.com/freshtrace/freshtrace-backend/internal/fulfillment/lotcode"
	"github.com/freshtrace/freshtrace-backend/internal/fulfillment/repository"
	"github.com/freshtrace/freshtrace-backend/internal/fulfillment/service"
	"github.com/freshtrace/freshtrace-backend/pkg/config"
	"github.com/freshtrace/freshtrace-backend/pkg/database"
	"github.com/freshtrace/freshtrace-backend/pkg/httputil"
	"github.com/freshtrace/freshtrace-backend/pkg/logger"
	"github.com/freshtrace/freshtrace-backend/pkg/messaging"
)

func main() {
	// Load configuration with validation (fails fast in production if required config is missing)
	cfg, err := config.LoadWithValidation("fulfillment-service")
	if err != nil {
		fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
		os.Exit(1)
	}

	log := logger.New("fulfillment-service", cfg.Server.Environment)
	log.Info().Msg("starting Fulfillment Service")

	generator := lotcode.NewGenerator(cfg.LotCode.Prefix, cfg.LotCode.SuffixLength)

	// Pick the storage driver. The memory driver backs development and is
	// rejected by config validation in production.
	var store ledger.Store
	var db *database.DB
	switch cfg.Storage.Driver {
	case config.StorageDriverPostgres:
		db, err = database.New(&cfg.Database, log)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to connect to database")
		}
		defer db.Close()
		store = repository.NewStore(db, generator, cfg.LotCode.MaxAttempts)
	case config.StorageDriverMemory:
		log.Warn().Msg("using in-memory storage; lots will not survive a restart")
		store = ledger.NewMemory(generator, cfg.LotCode.MaxAttempts)
	}

	// Connect to RabbitMQ when enabled; the service runs without it.
	var publisher *events.FulfillmentEventPublisher
	var rmq *messaging.RabbitMQ
	if cfg.RabbitMQ.Enabled {
		rmq, err = messaging.New(&cfg.RabbitMQ, log)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to connect to RabbitMQ")
		}
		defer rmq.Close()

		publisher, err = events.NewFulfillmentEventPublisher(rmq, log)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to create event publisher")
		}
	}

	// Initialize service and handlers
	encoder := label.NewEncoder(cfg.Label.ExpiryMarker)
	fulfillmentService := service.NewFulfillmentService(store, encoder, publisher, log)

	lotHandler := handler.NewLotHandler(fulfillmentService, log)
	orderHandler := handler.NewOrderHandler(fulfillmentService, log)
	itemHandler := handler.NewItemHandler(fulfillmentService, log)
	vendorHandler := handler.NewVendorHandler(fulfillmentService, log)

	// Create router
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RealIP)
	r.Use(httputil.RequestID)
	r.Use(httputil.Logger(log))
	r.Use(httputil.Recoverer(log))
	r.Use(middleware.Timeout(60 * time.Second))

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"http://localhost:3000", "http://localhost:5173"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type", "X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// Health check
	r.Get("/health", func(w http.ResponseWriter, req *http.Request) {
		health := map[string]interface{}{
			"status":  "healthy",
			"service": "fulfillment-service",
			"storage": cfg.Storage.Driver,
		}
		if db != nil {
			health["database"] = db.Health(req.Context())
		}
		if rmq != nil {
			health["rabbitmq"] = rmq.Health()
		}
		httputil.JSON(w, http.StatusOK, health)
	})

	// API routes
	r.Route("/api/v1/fulfillment", func(r chi.Router) {
		r.Route("/lots", func(r chi.Router) {
			r.Post("/", lotHandler.Receive)
			r.Get("/expiring", lotHandler.ListExpiring)
			r.Get("/{lotCode}", lotHandler.Get)
			r.Post("/{lotCode}/release", lotHandler.Release)
			r.Get("/{lotCode}/label", lotHandler.Label)
		})

		r.Route("/orders", func(r chi.Router) {
			r.Post("/{orderID}/fulfill", orderHandler.Fulfill)
			r.Post("/{orderID}/cancel", orderHandler.Cancel)
		})

		r.Route("/items", func(r chi.Router) {
			r.Get("/", itemHandler.List)
			r.Post("/", itemHandler.Create)
			r.Get("/{id}", itemHandler.Get)
			r.Get("/{id}/lots", lotHandler.ListByItem)
		})

		r.Route("/vendors", func(r chi.Router) {
			r.Post("/", vendorHandler.Create)
			r.Get("/{id}", vendorHandler.Get)
		})
	})

	// Create server
	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	// Start server
	go func() {
		log.Info().Str("addr", addr).Msg("server listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server error")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down server")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server forced to shutdown")
	}

	log.Info().Msg("server stopped")
}
