package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	"github.com/spf13/cobra"
	gormpostgres "gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/stayswap/stayswap/internal"
	"github.com/stayswap/stayswap/internal/auth"
	authpostgres "github.com/stayswap/stayswap/internal/auth/postgres"
	"github.com/stayswap/stayswap/internal/booking"
	bookingpostgres "github.com/stayswap/stayswap/internal/booking/postgres"
	"github.com/stayswap/stayswap/internal/core/events"
	"github.com/stayswap/stayswap/internal/jobs"
	jobspostgres "github.com/stayswap/stayswap/internal/jobs/postgres"
	"github.com/stayswap/stayswap/internal/notification"
	"github.com/stayswap/stayswap/internal/payment"
	paymentpostgres "github.com/stayswap/stayswap/internal/payment/postgres"
	"github.com/stayswap/stayswap/internal/paymentgateway"
	"github.com/stayswap/stayswap/internal/points"
	pointspostgres "github.com/stayswap/stayswap/internal/points/postgres"
	"github.com/stayswap/stayswap/internal/transport"
	"github.com/stayswap/stayswap/internal/transport/rest"
	"github.com/stayswap/stayswap/internal/user"
	userpostgres "github.com/stayswap/stayswap/internal/user/postgres"
	"github.com/stayswap/stayswap/pkg/logger"
)

var httpServerCmd = &cobra.Command{
	Use:   "server",
	Short: "Start HTTP server",
	Long:  `Start the HTTP server to handle API requests`,
	Run: func(cmd *cobra.Command, args []string) {
		startHTTPServer()
	},
}

func startHTTPServer() {
	config, err := loadConfig(".")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger.Init(config.Environment, config.Logging.Level, config.Logging.Format)
	lg := logger.LoggerWrapper()

	db, err := initSQLDB(config.Database)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize database: %v\n", err)
		os.Exit(1)
	}

	gormDB, err := initGormDB(db)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize ORM: %v\n", err)
		os.Exit(1)
	}

	router := chi.NewRouter()
	wireRoutes(router, db, gormDB, config, lg)

	addr := fmt.Sprintf(":%d", config.Server.Port)
	lg.Info("starting HTTP server", "address", addr, "environment", config.Environment)

	server := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  config.Server.ReadTimeout,
		WriteTimeout: config.Server.WriteTimeout,
		IdleTimeout:  config.Server.IdleTimeout,
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	serverErrChan := make(chan error, 1)
	go func() {
		serverErrChan <- server.ListenAndServe()
	}()

	select {
	case sig := <-sigChan:
		lg.Info("received signal, shutting down", "signal", sig)
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := server.Shutdown(ctx); err != nil {
			lg.Error("server shutdown error", "error", err)
		}
		if err := db.Close(); err != nil {
			lg.Error("database close error", "error", err)
		}
	case err := <-serverErrChan:
		if err != nil && err != http.ErrServerClosed {
			lg.Error("server failed to start", "error", err)
			os.Exit(1)
		}
	}

	lg.Info("server stopped")
}

func wireRoutes(router *chi.Mux, db *sqlx.DB, gormDB *gorm.DB, config *internal.Config, lg *slog.Logger) {
	eventBus := events.NewEventBus(lg)

	// Auth + user
	authRepo := authpostgres.NewRepository(gormDB)
	tokenGen := auth.NewJWTTokenGenerator(config.Security.AccessTokenSecret, config.Security.RefreshTokenSecret)
	authService := auth.NewService(authRepo, tokenGen)
	authHandler := auth.NewHandler(authService)

	userRepo := userpostgres.NewUserRepository(gormDB)
	userService := user.NewService(userRepo)
	userHandler := user.NewHandler(userService)

	// Jobs: the server only enqueues; execution belongs to the worker
	// process.
	queueRepo := jobspostgres.NewQueueRepository(gormDB)
	jobService := jobs.NewService(queueRepo, config.Worker.MaxAttempts, lg)

	// Domain services
	pointsRepo := pointspostgres.NewLedgerRepository(gormDB)
	pointsService := points.NewService(pointsRepo, lg)

	gatewayClient := paymentgateway.NewClient(paymentgateway.Config{
		BaseURL:   config.Gateway.BaseURL,
		SecretKey: config.Gateway.SecretKey,
		Currency:  config.Payments.Currency,
		Timeout:   config.Gateway.Timeout,
	}, lg)

	notifier := notification.NewService(gormDB, lg)

	bookingRepo := bookingpostgres.NewBookingRepository(gormDB)
	bookingService := booking.NewService(
		bookingRepo,
		pointsService,
		gatewayClient,
		notifier,
		jobService,
		userService,
		eventBus,
		config.Payments,
		lg,
	)
	bookingHandler := booking.NewHandler(bookingService)

	webhookEvents := paymentpostgres.NewWebhookEventRepository(gormDB)
	webhookHandler := payment.NewWebhookHandler(
		transport.NewBaseHandler(lg),
		bookingService,
		webhookEvents,
		config.Gateway.WebhookSecret,
		config.Payments.Currency,
		config.IsProduction(),
		lg,
	)

	rest.RegisterAllRoutes(router, db.DB, authHandler, userHandler, bookingHandler, webhookHandler, lg)
}

// initSQLDB opens the pgx-backed sqlx handle used for health checks and
// connection pooling.
func initSQLDB(cfg internal.DatabaseConfig) (*sqlx.DB, error) {
	const driver = "pgx"

	dbConn, err := sqlx.Connect(driver, cfg.Source)
	if err != nil {
		return nil, fmt.Errorf("failed to open db connection: %w", err)
	}

	dbConn.SetMaxIdleConns(cfg.MaxIdleConns)
	dbConn.SetMaxOpenConns(cfg.MaxOpenConns)

	if err := dbConn.Ping(); err != nil {
		_ = dbConn.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return dbConn, nil
}

// initGormDB layers GORM over the already-open pgx connection so both
// handles share one pool.
func initGormDB(db *sqlx.DB) (*gorm.DB, error) {
	gormDB, err := gorm.Open(gormpostgres.New(gormpostgres.Config{
		Conn: db.DB,
	}), &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("failed to open gorm: %w", err)
	}
	return gormDB, nil
}
