package main

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/bookstore/services/order/internal/config"
	"github.com/bookstore/services/order/internal/db"
	"github.com/bookstore/services/order/internal/events"
	grpcserver "github.com/bookstore/services/order/internal/grpc"
	"github.com/bookstore/services/order/internal/httpapi"
	"github.com/bookstore/services/order/internal/metrics"
	"github.com/bookstore/services/order/internal/orders"
	"github.com/bookstore/services/order/internal/repo"
	"github.com/bookstore/services/order/pkg/logger"
	"github.com/bookstore/services/order/pkg/tracing"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"
)

func main() {
	cfg := config.Load()

	log := logger.NewLogger(cfg.ServiceName, cfg.LogLevel)
	defer log.Sync()

	log.Info("Order service starting")

	tracerProvider, err := tracing.Setup(context.Background(), cfg.ServiceName, cfg.OTLPEndpoint)
	if err != nil {
		log.Fatal("Failed to set up tracing", zap.Error(err))
	}

	log.Info("Connecting to database...")
	database, err := db.Connect(cfg.PGDSN)
	if err != nil {
		log.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer database.Close()

	log.Info("Running database migrations...")
	if err := db.RunMigrations(database); err != nil {
		log.Fatal("Failed to run migrations", zap.Error(err))
	}
	if cfg.SeedDemoData {
		if err := db.SeedDemoBooks(database); err != nil {
			log.Fatal("Failed to seed demo books", zap.Error(err))
		}
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(registry)

	// Events are best effort; the service keeps taking orders without a broker
	var (
		publisher    orders.EventPublisher
		brokerStatus grpcserver.BrokerStatus
	)
	log.Info("Connecting to RabbitMQ")
	amqpPublisher, err := events.NewPublisher(cfg.RabbitMQURL, log)
	if err != nil {
		log.Warn("RabbitMQ unavailable, order events disabled", zap.Error(err))
	} else {
		defer amqpPublisher.Close()
		publisher = amqpPublisher
		brokerStatus = amqpPublisher
	}

	books := repo.NewBookRepository(database, log)
	ledger := repo.NewInventoryLedger(log)
	carts := repo.NewCartRepository(database, books, ledger, log)
	orderRepo := repo.NewOrderRepository(database, log)
	orderService := orders.NewService(database, carts, orderRepo, ledger, publisher, m, log)

	health := grpcserver.NewHealthServer(database, brokerStatus, log)

	grpcServer := grpcserver.NewServer(health, log)
	grpcListener, err := net.Listen("tcp", fmt.Sprintf(":%s", cfg.GRPCPort))
	if err != nil {
		log.Fatal("Failed to listen on gRPC port", zap.Error(err))
	}

	go func() {
		log.Info("Starting gRPC server", zap.String("address", grpcListener.Addr().String()))
		if err := grpcServer.Serve(grpcListener); err != nil {
			log.Fatal("Failed to serve gRPC", zap.Error(err))
		}
	}()

	gin.SetMode(gin.ReleaseMode)
	router := httpapi.NewRouter(
		httpapi.NewHandler(orderService, carts, log),
		health,
		m,
		registry,
		cfg.RequestTimeout,
	)

	httpServer := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.HTTPPort),
		Handler:      otelhttp.NewHandler(router, cfg.ServiceName),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: cfg.RequestTimeout + 5*time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		log.Info("Starting HTTP server", zap.String("address", httpServer.Addr))
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("Failed to serve HTTP", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := httpServer.Shutdown(ctx); err != nil {
		log.Error("HTTP server shutdown error", zap.Error(err))
	}

	grpcServer.GracefulStop()

	if err := tracerProvider.Shutdown(ctx); err != nil {
		log.Error("Tracer provider shutdown error", zap.Error(err))
	}

	log.Info("Server stopped")
}
