package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"restaurant-checkout/internal/adapter/catalogpg"
	"restaurant-checkout/internal/adapter/geodistance"
	"restaurant-checkout/internal/adapter/notify"
	"restaurant-checkout/internal/adapter/payment"
	"restaurant-checkout/internal/cache"
	"restaurant-checkout/internal/config"
	"restaurant-checkout/internal/database"
	"restaurant-checkout/internal/geo"
	"restaurant-checkout/internal/logger"
	"restaurant-checkout/internal/messaging"
	"restaurant-checkout/internal/services/checkout"
	"restaurant-checkout/internal/services/notification"
	"restaurant-checkout/internal/services/order"
)

func main() {
	var (
		mode     = flag.String("mode", "", "Service mode (order-service, notification-subscriber)")
		port     = flag.Int("port", 0, "HTTP port (overrides HTTP_PORT)")
		prefetch = flag.Int("prefetch", 1, "RabbitMQ prefetch count")
	)
	flag.Parse()

	if *mode == "" {
		fmt.Fprintf(os.Stderr, "Error: --mode flag is required\n")
		flag.Usage()
		os.Exit(1)
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}
	if *port != 0 {
		cfg.HTTP.Port = *port
	}

	log := logger.New(*mode)
	requestID := logger.GenerateRequestID()

	log.Info("service_started", fmt.Sprintf("Starting %s", *mode), requestID,
		map[string]interface{}{"mode": *mode, "port": cfg.HTTP.Port})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		log.Info("graceful_shutdown", "Received shutdown signal", requestID, nil)
		cancel()
	}()

	switch *mode {
	case "order-service":
		if err := runOrderService(ctx, cfg, log); err != nil {
			log.Error("service_failed", "Order service failed", requestID, err, nil)
			os.Exit(1)
		}
	case "notification-subscriber":
		if err := runNotificationSubscriber(ctx, cfg, log, *prefetch); err != nil {
			log.Error("service_failed", "Notification subscriber failed", requestID, err, nil)
			os.Exit(1)
		}
	default:
		log.Error("validation_failed", fmt.Sprintf("Unknown mode: %s", *mode), requestID, nil, nil)
		os.Exit(1)
	}

	log.Info("service_stopped", "Service stopped gracefully", requestID, nil)
}

func runOrderService(ctx context.Context, cfg *config.Config, log *logger.Logger) error {
	requestID := logger.GenerateRequestID()

	db, err := database.New(cfg, log)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	defer db.Close()
	log.Info("db_connected", "Connected to PostgreSQL", requestID, nil)

	if err := db.RunMigrations(ctx, "migrations"); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	mq, err := messaging.New(cfg, log)
	if err != nil {
		return fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}
	defer mq.Close()
	log.Info("rabbitmq_connected", "Connected to RabbitMQ", requestID, nil)

	var geoCache cache.Cache
	if cfg.Redis.Addr != "" {
		geoCache = cache.NewRedisCache(cfg.Redis.Addr, "order-service")
		log.Info("cache_connected", "Using Redis cache", requestID,
			map[string]interface{}{"addr": cfg.Redis.Addr})
	} else {
		geoCache = cache.NewMemoryCache("order-service")
		log.Info("cache_connected", "Using in-memory cache", requestID, nil)
	}

	publisher := messaging.NewPublisher(mq, log)

	provider := geodistance.NewProvider(
		cfg.Geo.GeocoderBaseURL, cfg.Geo.RouterBaseURL, cfg.Checkout.ProviderTimeout, log)
	resolver := geo.NewResolver(provider, geoCache, log,
		cfg.Checkout.GeocodeSuccessTTL, cfg.Checkout.GeocodeFailureTTL, cfg.Checkout.ProviderTimeout)

	catalog := catalogpg.NewStore(db)
	pricer := checkout.NewLineItemPricer(catalog, catalog, log)
	selector := checkout.NewCenterSelector(catalog, catalog, resolver, log)
	previews := checkout.NewPreviewCache(geoCache, cfg.Checkout.PreviewTTL)
	orchestrator := checkout.NewOrchestrator(catalog, catalog, resolver, selector,
		pricer, checkout.NewRepository(db), publisher, previews, log)

	gateway := payment.NewManualGateway(log)
	digests := notification.NewDigestScheduler(publisher, cfg.Checkout.DigestDebounce, log)
	go digests.Run(ctx)

	orders := order.NewRepository(db)
	lifecycle := order.NewService(orders, pricer, catalog, gateway, publisher, digests, log)

	handler := order.NewHandler(orchestrator, lifecycle, db.Ping, log)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.HTTP.Port),
		Handler:      handler.Router(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("http_listening", fmt.Sprintf("Listening on :%d", cfg.HTTP.Port), requestID, nil)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("http server failed: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

func runNotificationSubscriber(ctx context.Context, cfg *config.Config, log *logger.Logger, prefetch int) error {
	mq, err := messaging.New(cfg, log)
	if err != nil {
		return fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}
	defer mq.Close()

	consumer := messaging.NewConsumer(mq, log, "notifications_queue", "notification-subscriber", prefetch)
	dispatcher := notification.NewDispatcher(notify.NewConsoleGateway(log), log)
	subscriber := notification.NewSubscriber(consumer, dispatcher, log)
	return subscriber.Start(ctx)
}
