package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/joho/godotenv"

	"github.com/aforo/aforo/internal/broadcast"
	"github.com/aforo/aforo/internal/http/handlers"
	chmw "github.com/aforo/aforo/internal/http/middleware"
	"github.com/aforo/aforo/internal/ledger"
	"github.com/aforo/aforo/internal/notify"
	"github.com/aforo/aforo/internal/report"
	"github.com/aforo/aforo/internal/repo/postgres"
	"github.com/aforo/aforo/internal/service"
	"github.com/aforo/aforo/internal/token"
	"github.com/aforo/aforo/pkg/config"
	"github.com/aforo/aforo/pkg/database"
	"github.com/aforo/aforo/pkg/events"
	"github.com/aforo/aforo/pkg/logger"
	mw "github.com/aforo/aforo/pkg/middleware"
)

func main() {
	_ = godotenv.Load()
	cfg := config.Load()

	ctx := context.Background()
	pool, err := database.Connect(ctx, cfg.Database.URL)
	if err != nil {
		logger.Error("Failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	eventBus, err := events.NewNATSEventBus(cfg.NATS.URL)
	if err != nil {
		logger.Error("Failed to connect to NATS", "error", err)
		os.Exit(1)
	}
	defer eventBus.Close()

	// nil disables rate limiting; the server still serves scans.
	rdb := database.ConnectRedis(cfg.Redis)
	if rdb == nil {
		logger.Warn("Redis unavailable, rate limiting disabled")
	}

	// Repositories
	reservationRepo := postgres.NewReservationRepo(pool)
	guestPassRepo := postgres.NewGuestPassRepo(pool)
	walkInRepo := postgres.NewWalkInRepo(pool)
	promoterRepo := postgres.NewPromoterRepo(pool)
	idempotencyRepo := postgres.NewIdempotencyRepo(pool)

	// Core services
	broadcaster := broadcast.NewBroadcaster(eventBus)
	tokens := token.NewService(reservationRepo, guestPassRepo,
		cfg.CheckIn.QRValidBefore, cfg.CheckIn.QRValidAfter)
	attendance := ledger.NewAttendanceLedger(reservationRepo, idempotencyRepo,
		broadcaster, cfg.CheckIn.IdempotencyTTL)
	redemptions := ledger.NewRedemptionLedger(guestPassRepo, broadcaster)

	var notifier notify.Notifier
	if cfg.Email.DevMode || cfg.Email.MailerSendKey == "" {
		notifier = notify.NewDevNotifier()
	} else {
		notifier = notify.NewMailerSendNotifier(cfg.Email.MailerSendKey, cfg.Email.FromName, cfg.Email.FromEmail)
	}

	reservationSvc := service.NewReservationService(reservationRepo, broadcaster, notifier)
	venueSvc := service.NewVenueService(walkInRepo, guestPassRepo, promoterRepo, broadcaster)
	aggregator := report.NewAggregator(reservationRepo, walkInRepo, guestPassRepo, promoterRepo)

	// Handlers
	checkInHandler := handlers.NewCheckInHandler(tokens, attendance, redemptions)
	reservationsHandler := handlers.NewReservationsHandler(reservationSvc)
	venueHandler := handlers.NewVenueHandler(venueSvc)
	changesHandler := handlers.NewChangesHandler(broadcaster)
	reportsHandler := handlers.NewReportsHandler(aggregator)

	scanLimiter := chmw.NewRateLimiter(rdb, chmw.RateLimitConfig{
		Requests: cfg.CheckIn.RateLimitPerMinute,
		Window:   time.Minute,
		Prefix:   "checkin",
	})

	r := chi.NewRouter()
	r.Use(mw.RequestID)
	r.Use(mw.ServiceName("aforo-api"))
	r.Use(mw.Logging)
	r.Use(mw.Health)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "Idempotency-Key"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	r.Route("/v1", func(r chi.Router) {
		r.Use(chmw.RequireAuth(cfg.Auth.JWTSecret))
		handlers.MountV1(r,
			checkInHandler, reservationsHandler, changesHandler,
			venueHandler, reportsHandler,
			scanLimiter.Middleware(), chmw.RequireRole("manager"))
	})

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	janitorCtx, stopJanitor := context.WithCancel(ctx)
	defer stopJanitor()
	go runIdempotencyJanitor(janitorCtx, idempotencyRepo)

	// Graceful shutdown
	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		<-sigChan

		logger.Info("Shutting down...")

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := srv.Shutdown(ctx); err != nil {
			logger.Error("Server shutdown error", "error", err)
		}
	}()

	logger.Info("Starting server", "port", cfg.Server.Port)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error("Server error", "error", err)
		os.Exit(1)
	}
}

// runIdempotencyJanitor sweeps expired check-in idempotency records.
func runIdempotencyJanitor(ctx context.Context, repo postgres.IdempotencyRepo) {
	ticker := time.NewTicker(time.Hour)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			removed, err := repo.CleanupExpired(ctx)
			if err != nil {
				logger.Error("Idempotency cleanup failed", "error", err)
				continue
			}
			if removed > 0 {
				logger.Info("Cleaned up expired idempotency records", "removed", removed)
			}
		}
	}
}
