package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/stayswap/stayswap/internal/booking"
	bookingpostgres "github.com/stayswap/stayswap/internal/booking/postgres"
	"github.com/stayswap/stayswap/internal/core/datamodel/job"
	"github.com/stayswap/stayswap/internal/core/events"
	"github.com/stayswap/stayswap/internal/jobs"
	jobspostgres "github.com/stayswap/stayswap/internal/jobs/postgres"
	"github.com/stayswap/stayswap/internal/mailer"
	"github.com/stayswap/stayswap/internal/notification"
	"github.com/stayswap/stayswap/internal/paymentgateway"
	"github.com/stayswap/stayswap/internal/points"
	pointspostgres "github.com/stayswap/stayswap/internal/points/postgres"
	"github.com/stayswap/stayswap/internal/user"
	userpostgres "github.com/stayswap/stayswap/internal/user/postgres"
	"github.com/stayswap/stayswap/pkg/logger"
)

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Start the background worker",
	Long: `Start the background worker: polls the job queue, runs housekeeping,
and sweeps paid bookings whose stay has ended into completed.`,
	Run: func(cmd *cobra.Command, args []string) {
		startWorker()
	},
}

func startWorker() {
	config, err := loadConfig(".")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	config.Worker.Clamp()

	logger.Init(config.Environment, config.Logging.Level, config.Logging.Format)
	lg := logger.LoggerWrapper()

	db, err := initSQLDB(config.Database)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize database: %v\n", err)
		os.Exit(1)
	}
	defer db.Close()

	gormDB, err := initGormDB(db)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize ORM: %v\n", err)
		os.Exit(1)
	}

	queueRepo := jobspostgres.NewQueueRepository(gormDB)
	jobService := jobs.NewService(queueRepo, config.Worker.MaxAttempts, lg)

	pointsService := points.NewService(pointspostgres.NewLedgerRepository(gormDB), lg)
	notifier := notification.NewService(gormDB, lg)
	userService := user.NewService(userpostgres.NewUserRepository(gormDB))
	eventBus := events.NewEventBus(lg)

	gatewayClient := paymentgateway.NewClient(paymentgateway.Config{
		BaseURL:   config.Gateway.BaseURL,
		SecretKey: config.Gateway.SecretKey,
		Currency:  config.Payments.Currency,
		Timeout:   config.Gateway.Timeout,
	}, lg)

	bookingService := booking.NewService(
		bookingpostgres.NewBookingRepository(gormDB),
		pointsService,
		gatewayClient,
		notifier,
		jobService,
		userService,
		eventBus,
		config.Payments,
		lg,
	)

	worker := jobs.NewWorker(queueRepo, jobService, bookingService, config.Worker, lg)
	worker.RegisterHandler(job.TaskEmailNotification, jobs.EmailHandler(mailer.New(config.Mail, lg), lg))
	worker.RegisterHandler(job.TaskCacheCleanup, jobs.CleanupHandler(queueRepo, lg))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigChan
		lg.Info("received signal, stopping worker", "signal", sig)
		cancel()
	}()

	if err := worker.Run(ctx); err != nil && err != context.Canceled {
		lg.Error("worker exited with error", "error", err)
		os.Exit(1)
	}

	lg.Info("worker shutdown complete")
}
