package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"example.com/freshcart/config"
	"example.com/freshcart/internal/api"
	"example.com/freshcart/internal/cache"
	"example.com/freshcart/internal/messaging"
	"example.com/freshcart/internal/metrics"
	"example.com/freshcart/internal/models"
	"example.com/freshcart/internal/notify"
	"example.com/freshcart/internal/repository"
	"example.com/freshcart/internal/search"
	"example.com/freshcart/internal/service"
	"example.com/freshcart/internal/tracing"
)

var apiCmd = &cobra.Command{
	Use:   "api",
	Short: "Start the API server",
	Long:  `Start the HTTP API server handling customers, admins and delivery agents`,
	RunE:  runAPI,
}

func init() {
	rootCmd.AddCommand(apiCmd)
}

func runAPI(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadConfig(".")
	if err != nil {
		return err
	}

	if cfg.Environment == "development" {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	}

	ctx, stop := signal.NotifyContext(context.Background(),
		os.Interrupt, syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	db, err := initDatabase(cfg)
	if err != nil {
		return err
	}

	redisCache, err := cache.NewRedisCache(cfg.Redis)
	if err != nil {
		log.Warn().Err(err).Msg("Failed to initialize Redis cache, continuing without caching")
	}

	tracer, err := tracing.NewTracer(cfg.Tracing)
	if err != nil {
		log.Warn().Err(err).Msg("Failed to initialize tracer, continuing without tracing")
		tracer = new(tracing.NewRelicTracer)
	}

	elasticClient, err := search.NewElasticClient(cfg.Elastic)
	if err != nil {
		log.Warn().Err(err).Msg("Failed to initialize Elasticsearch client, continuing without search")
		elasticClient = nil
	}

	var bus messaging.Client
	if cfg.ServiceBus.ConnectionString != "" {
		bus, err = messaging.NewServiceBusClient(cfg.ServiceBus)
		if err != nil {
			log.Warn().Err(err).Msg("Failed to initialize service bus, continuing without event publishing")
			bus = nil
		}
	}

	metricsCollector := metrics.NewMetrics()

	var push notify.PushSender
	if cfg.Push.ServerKey != "" {
		push = notify.NewFCMSender(notify.FCMConfig{
			URL:       cfg.Push.URL,
			ServerKey: cfg.Push.ServerKey,
			Timeout:   cfg.Push.Timeout,
		})
	}
	sms := notify.NewSMSSender(notify.SMSConfig{
		Enabled:    cfg.SMS.Enabled,
		URL:        cfg.SMS.URL,
		AccountSID: cfg.SMS.AccountSID,
		AuthToken:  cfg.SMS.AuthToken,
		From:       cfg.SMS.From,
		Timeout:    cfg.SMS.Timeout,
	})
	notifier := notify.NewNotifier(push, sms, metricsCollector)

	orderService := service.NewOrderService(
		repository.NewOrderRepository(db),
		repository.NewAgentRepository(db),
		repository.NewProductRepository(db),
		repository.NewUserRepository(db),
		repository.NewEventRepository(db),
		redisCache,
		elasticClient,
		bus,
		notifier,
		metricsCollector,
		cfg.Server.TrackingURL,
	)
	productService := service.NewProductService(repository.NewProductRepository(db))

	server := api.NewServer(cfg, orderService, productService, metricsCollector, tracer)

	go func() {
		if err := server.Start(); err != nil {
			log.Error().Err(err).Msg("Server error")
		}
	}()

	<-ctx.Done()

	if err := server.Shutdown(context.Background()); err != nil {
		log.Error().Err(err).Msg("Server shutdown error")
	}
	if bus != nil {
		if err := bus.Close(); err != nil {
			log.Warn().Err(err).Msg("Service bus close error")
		}
	}
	if err := redisCache.Close(); err != nil {
		log.Warn().Err(err).Msg("Redis close error")
	}

	log.Info().Msg("Shutting down API server")
	return nil
}

func initDatabase(cfg config.Config) (*gorm.DB, error) {
	db, err := gorm.Open(postgres.Open(cfg.DB.DSN), &gorm.Config{})
	if err != nil {
		return nil, errors.Wrap(err, "failed to connect to database")
	}

	if err := models.SetupModels(db); err != nil {
		return nil, errors.Wrap(err, "failed to run migrations")
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, errors.Wrap(err, "failed to get underlying DB connection")
	}
	sqlDB.SetMaxIdleConns(cfg.DB.MaxIdleConns)
	sqlDB.SetMaxOpenConns(cfg.DB.MaxOpenConns)
	if cfg.DB.ConnMaxLifetime > 0 {
		sqlDB.SetConnMaxLifetime(cfg.DB.ConnMaxLifetime)
	} else {
		sqlDB.SetConnMaxLifetime(time.Hour)
	}

	return db, nil
}
