package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"example.com/freshcart/config"
	"example.com/freshcart/internal/messaging"
	"example.com/freshcart/internal/metrics"
	"example.com/freshcart/internal/models"
	"example.com/freshcart/internal/repository"
	"example.com/freshcart/internal/search"
	"example.com/freshcart/internal/service"
)

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Start the background worker",
	Long:  `Start the background worker that republishes and reindexes order events missed by the inline dispatch`,
	RunE:  runWorker,
}

func init() {
	rootCmd.AddCommand(workerCmd)
}

const reconcileBatchSize = 100

func runWorker(cmd *cobra.Command, args []string) error {
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

	g, ctx := errgroup.WithContext(ctx)

	db, err := initDatabase(cfg)
	if err != nil {
		return err
	}

	elasticClient, err := search.NewElasticClient(cfg.Elastic)
	if err != nil {
		log.Warn().Err(err).Msg("Failed to initialize Elasticsearch client, continuing without indexing")
		elasticClient = nil
	}

	var bus messaging.Client
	if cfg.ServiceBus.ConnectionString != "" {
		bus, err = messaging.NewServiceBusClient(cfg.ServiceBus)
		if err != nil {
			log.Warn().Err(err).Msg("Failed to initialize service bus, continuing without publishing")
			bus = nil
		}
	}

	metricsCollector := metrics.NewMetrics()

	reconciler := &eventReconciler{
		orders:  repository.NewOrderRepository(db),
		events:  repository.NewEventRepository(db),
		elastic: elasticClient,
		bus:     bus,
		metrics: metricsCollector,
	}

	g.Go(func() error {
		log.Info().Msg("Starting order event reconciliation job")

		scheduler, err := gocron.NewScheduler()
		if err != nil {
			return err
		}

		_, err = scheduler.NewJob(
			gocron.DurationJob(time.Minute),
			gocron.NewTask(func() {
				if err := reconciler.run(ctx); err != nil {
					log.Error().Err(err).Msg("Failed to reconcile order events")
				}
			}),
		)
		if err != nil {
			return err
		}

		scheduler.Start()

		<-ctx.Done()

		return scheduler.Shutdown()
	})

	if err := g.Wait(); err != nil {
		log.Error().Err(err).Msg("Worker error")
		return err
	}

	if bus != nil {
		if err := bus.Close(); err != nil {
			log.Warn().Err(err).Msg("Service bus close error")
		}
	}

	log.Info().Msg("Worker shutting down gracefully")
	return nil
}

// eventReconciler drains the order event outbox: events whose publish or
// index step failed at dispatch time are retried here until they succeed.
type eventReconciler struct {
	orders  repository.OrderRepository
	events  repository.EventRepository
	elastic *search.ElasticClient
	bus     messaging.Client
	metrics *metrics.Metrics
}

func (r *eventReconciler) run(ctx context.Context) error {
	if err := r.publishPending(ctx); err != nil {
		return err
	}
	return r.indexPending(ctx)
}

func (r *eventReconciler) publishPending(ctx context.Context) error {
	if r.bus == nil {
		return nil
	}

	pending, err := r.events.FindUnpublished(ctx, reconcileBatchSize)
	if err != nil {
		return err
	}
	for _, event := range pending {
		order, err := r.orders.GetByID(ctx, event.OrderID)
		if err != nil {
			log.Error().Err(err).Str("event_id", event.ID.String()).Msg("Failed to load order for unpublished event")
			continue
		}

		msg := service.OrderEventMessage{
			EventID:     event.ID,
			OrderID:     order.ID,
			OrderNumber: order.OrderNumber,
			Kind:        event.Kind,
			FromStatus:  event.FromStatus,
			ToStatus:    event.ToStatus,
			OccurredAt:  event.CreatedAt,
		}
		err = messaging.RetryWithBackoff(ctx, func() error {
			return r.bus.SendMessage(ctx, msg)
		}, 3)
		if err != nil {
			log.Error().Err(err).Str("event_id", event.ID.String()).Msg("Failed to republish order event")
			r.metrics.IncrementCounter("worker.publish_failed")
			continue
		}

		if err := r.events.MarkPublished(ctx, event.ID); err != nil {
			log.Error().Err(err).Str("event_id", event.ID.String()).Msg("Failed to mark event as published")
			continue
		}
		r.metrics.IncrementCounter("worker.published")
	}
	return nil
}

func (r *eventReconciler) indexPending(ctx context.Context) error {
	if r.elastic == nil {
		return nil
	}

	pending, err := r.events.FindUnindexed(ctx, reconcileBatchSize)
	if err != nil {
		return err
	}

	// Deduplicate by order; indexing is idempotent on the order document.
	seen := make(map[string]*models.Order)
	for _, event := range pending {
		order, ok := seen[event.OrderID.String()]
		if !ok {
			order, err = r.orders.GetByID(ctx, event.OrderID)
			if err != nil {
				log.Error().Err(err).Str("event_id", event.ID.String()).Msg("Failed to load order for unindexed event")
				continue
			}
			seen[event.OrderID.String()] = order
		}

		if err := r.elastic.IndexOrder(ctx, order); err != nil {
			log.Error().Err(err).Str("order_number", order.OrderNumber).Msg("Failed to reindex order")
			r.metrics.IncrementCounter("worker.index_failed")
			continue
		}

		if err := r.events.MarkIndexed(ctx, event.ID); err != nil {
			log.Error().Err(err).Str("event_id", event.ID.String()).Msg("Failed to mark event as indexed")
			continue
		}
		r.metrics.IncrementCounter("worker.indexed")
	}
	return nil
}
