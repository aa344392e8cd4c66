package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/tdminh/storecore/internal/barcode"
	"github.com/tdminh/storecore/internal/config"
	"github.com/tdminh/storecore/internal/coordinator"
	"github.com/tdminh/storecore/internal/event"
	"github.com/tdminh/storecore/internal/http"
	"github.com/tdminh/storecore/internal/integrity"
	"github.com/tdminh/storecore/internal/log"
	"github.com/tdminh/storecore/internal/relay"
	"github.com/tdminh/storecore/internal/repository"
	"github.com/tdminh/storecore/internal/storage/cache"
	"github.com/tdminh/storecore/internal/storage/db"
	"github.com/tdminh/storecore/internal/storage/mq"
	"github.com/tdminh/storecore/internal/telemetry"
	"github.com/tdminh/storecore/internal/views"
	"github.com/tdminh/storecore/pkg/cmdutil"
	"github.com/tdminh/storecore/pkg/validator"
)

func main() {
	if err := run(); err != nil {
		fmt.Printf("error running server application: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	time.Local = time.UTC

	type Config struct {
		Log      config.Log
		Postgres config.Postgres
		Redis    config.Redis
		HTTP     config.HTTP
		Relay    config.Relay
		Kafka    config.Kafka
		Otel     config.Otel
		Barcode  config.Barcode
	}
	cfg, err := config.New[Config]()
	if err != nil {
		return fmt.Errorf("error loading config: %w", err)
	}

	logger := log.NewSlogLogger(cfg.Log)

	cleanupTracer, err := telemetry.InitTracer(ctx, cfg.Otel)
	if err != nil {
		return fmt.Errorf("error initializing tracer: %w", err)
	}
	defer func() {
		if err := cleanupTracer(ctx); err != nil {
			logger.ErrorContext(ctx, "error cleaning up tracer", slog.Any("error", err))
		}
	}()

	pgxPool, err := db.NewPgxPool(ctx, cfg.Postgres)
	if err != nil {
		return fmt.Errorf("error creating pgx pool: %w", err)
	}
	defer pgxPool.Close()

	dbClient := db.NewClient(pgxPool)

	v, err := validator.NewDefaultValidator()
	if err != nil {
		return fmt.Errorf("error creating validator: %w", err)
	}

	productRepository := repository.NewProductRepository(dbClient)
	unitRepository := repository.NewProductUnitRepository(dbClient)
	registryRepository := repository.NewBarcodeRegistryRepository(dbClient)
	supplierRepository := repository.NewSupplierRepository(dbClient)
	transactionRepository := repository.NewSupplierTransactionRepository(dbClient)
	auditEventRepository := repository.NewAuditEventRepository(dbClient)

	coord := coordinator.New(logger)

	var viewCache cache.ViewCache
	if cfg.Redis.Enabled {
		redisCache := cache.NewRedisViewCache(cfg.Redis)
		if err := redisCache.Ping(ctx); err != nil {
			return fmt.Errorf("error pinging redis: %w", err)
		}
		defer func() {
			if err := redisCache.Close(); err != nil {
				logger.ErrorContext(ctx, "error closing redis client", slog.Any("error", err))
			}
		}()
		viewCache = redisCache
	} else {
		viewCache = cache.NewMemoryViewCache()
	}

	invalidator := views.NewInvalidator(logger, viewCache)
	unsubscribeInvalidator := invalidator.Register(coord)
	defer unsubscribeInvalidator()

	authority := barcode.NewAuthority(
		cfg.Barcode,
		logger,
		dbClient,
		unitRepository,
		productRepository,
		registryRepository,
		auditEventRepository,
		coord,
	)
	checker := integrity.NewChecker(logger, productRepository, unitRepository, registryRepository, transactionRepository)
	repairer := integrity.NewRepairer(logger, authority, unitRepository, registryRepository, transactionRepository, auditEventRepository, coord)
	recovery := integrity.NewRecovery(logger, dbClient, v, unitRepository, supplierRepository, transactionRepository, auditEventRepository, coord)

	interruptChan := cmdutil.InterruptChan()
	var wg sync.WaitGroup

	if cfg.Kafka.Enabled {
		kafkaProducer, err := mq.NewKafkaProducer(ctx, cfg.Kafka)
		if err != nil {
			return fmt.Errorf("error creating kafka producer: %w", err)
		}
		defer kafkaProducer.Close()

		kafkaConsumer, err := mq.NewKafkaConsumer(ctx, cfg.Kafka, logger)
		if err != nil {
			return fmt.Errorf("error creating kafka consumer: %w", err)
		}
		defer kafkaConsumer.Close()

		wg.Go(func() {
			svc := event.New(logger, kafkaConsumer, coord)
			cleanup, err := svc.Run(ctx)
			if err != nil {
				panic(fmt.Errorf("error running event service: %w", err))
			}
			logger.InfoContext(ctx, "event service started")

			<-interruptChan

			logger.InfoContext(ctx, "event service is shutting down")
			cleanup()

			logger.InfoContext(ctx, "event service is stopped")
		})

		wg.Go(func() {
			svc := relay.NewService(cfg.Relay, logger, dbClient, auditEventRepository, kafkaProducer)
			cleanup := svc.Run(ctx)
			logger.InfoContext(ctx, "relay service started")

			<-interruptChan

			logger.InfoContext(ctx, "relay service is shutting down")
			cleanup()

			logger.InfoContext(ctx, "relay service is stopped")
		})
	}

	wg.Go(func() {
		svc := http.New(cfg.HTTP, logger, authority, checker, repairer, recovery, dbClient)
		cleanup, err := svc.Run(ctx)
		if err != nil {
			panic(fmt.Errorf("error running http service: %w", err))
		}

		logger.InfoContext(ctx, "http service started", slog.String("address", fmt.Sprintf(":%d", cfg.HTTP.Port)))

		<-interruptChan

		logger.InfoContext(ctx, "http service is shutting down")
		if err := cleanup(ctx); err != nil {
			logger.ErrorContext(ctx, "error shutting down http service", slog.Any("error", err))
		}

		logger.InfoContext(ctx, "http service is stopped")
	})

	wg.Wait()

	return nil
}
