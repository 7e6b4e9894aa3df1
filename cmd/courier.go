package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"example.com/freshcart/config"
	"example.com/freshcart/internal/courier"
	"example.com/freshcart/internal/models"
)

var courierCmd = &cobra.Command{
	Use:   "courier",
	Short: "Delivery agent client",
	Long:  `Client commands for delivery agents. Status updates made while offline are queued locally and replayed once connectivity returns.`,
}

var courierStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Update the status of an assigned order",
	RunE:  runCourierStatus,
}

var courierFlushCmd = &cobra.Command{
	Use:   "flush",
	Short: "Replay queued offline requests",
	RunE:  runCourierFlush,
}

var courierPendingCmd = &cobra.Command{
	Use:   "pending",
	Short: "Show queued offline requests",
	RunE:  runCourierPending,
}

var (
	courierOrderID  string
	courierStatus   string
	courierPayment  string
	courierWatch    bool
	courierInterval time.Duration
)

func init() {
	courierStatusCmd.Flags().StringVar(&courierOrderID, "order", "", "order id (required)")
	courierStatusCmd.Flags().StringVar(&courierStatus, "status", "", "target status (required)")
	courierStatusCmd.Flags().StringVar(&courierPayment, "payment", "", "payment type collected on delivery (cod or qr)")
	_ = courierStatusCmd.MarkFlagRequired("order")
	_ = courierStatusCmd.MarkFlagRequired("status")

	courierFlushCmd.Flags().BoolVar(&courierWatch, "watch", false, "keep running and flush on an interval")
	courierFlushCmd.Flags().DurationVar(&courierInterval, "interval", 30*time.Second, "auto-flush interval with --watch")

	courierCmd.AddCommand(courierStatusCmd)
	courierCmd.AddCommand(courierFlushCmd)
	courierCmd.AddCommand(courierPendingCmd)
	rootCmd.AddCommand(courierCmd)
}

func buildCourierClient() (*courier.Client, error) {
	cfg, err := config.LoadConfig(".")
	if err != nil {
		return nil, err
	}

	if cfg.Environment == "development" {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	}

	if cfg.Courier.BaseURL == "" {
		return nil, errors.New("courier.base_url is not configured")
	}

	store, err := courier.NewSQLiteStore(cfg.Courier.QueuePath)
	if err != nil {
		return nil, errors.Wrap(err, "failed to open offline queue store")
	}

	probe := courier.NewHTTPProbe(cfg.Courier.BaseURL)

	// The client is both the queue's sender and the queue's owner, so wire
	// the sender through an indirection resolved after construction.
	var client *courier.Client
	queue := courier.NewQueue(store, probe, courier.SenderFunc(func(ctx context.Context, req courier.QueuedRequest) error {
		return client.Do(ctx, req)
	}))
	client = courier.NewClient(cfg.Courier, queue, probe)

	return client, nil
}

func runCourierStatus(cmd *cobra.Command, args []string) error {
	client, err := buildCourierClient()
	if err != nil {
		return err
	}

	orderID, err := uuid.Parse(courierOrderID)
	if err != nil {
		return errors.Wrap(err, "invalid order id")
	}

	status := models.OrderStatus(courierStatus)
	if !status.IsValid() {
		return errors.Errorf("invalid status %q", courierStatus)
	}

	var paymentType *models.PaymentType
	if courierPayment != "" {
		pt := models.PaymentType(courierPayment)
		if !pt.IsValid() {
			return errors.Errorf("invalid payment type %q", courierPayment)
		}
		paymentType = &pt
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
	defer cancel()

	queued, err := client.UpdateStatus(ctx, orderID, status, paymentType)
	if err != nil {
		return err
	}
	if queued {
		fmt.Printf("Offline: update queued for replay (%d pending)\n", client.Queue().PendingCount())
		return nil
	}
	fmt.Printf("Order %s updated to %s\n", orderID, status)
	return nil
}

func runCourierFlush(cmd *cobra.Command, args []string) error {
	client, err := buildCourierClient()
	if err != nil {
		return err
	}
	queue := client.Queue()

	queue.Subscribe(func(pending int) {
		log.Info().Int("pending", pending).Msg("Offline queue changed")
	})

	if courierWatch {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		fmt.Printf("Watching offline queue, flushing every %s\n", courierInterval)
		queue.RunAutoFlush(ctx, courierInterval)
		return nil
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), 2*time.Minute)
	defer cancel()

	if err := queue.Flush(ctx); err != nil {
		return err
	}
	fmt.Printf("Flush complete (%d still pending)\n", queue.PendingCount())
	return nil
}

func runCourierPending(cmd *cobra.Command, args []string) error {
	client, err := buildCourierClient()
	if err != nil {
		return err
	}

	pending, err := client.Queue().PendingRequests()
	if err != nil {
		return err
	}
	if len(pending) == 0 {
		fmt.Println("Offline queue is empty")
		return nil
	}

	fmt.Printf("%d queued request(s):\n", len(pending))
	for _, req := range pending {
		fmt.Printf("  %s  %s %s  retries=%d  queued_at=%s\n",
			req.ID, req.Method, req.Path, req.RetryCount, req.CreatedAt.Format(time.RFC3339))
	}
	return nil
}
