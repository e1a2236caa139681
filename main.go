package main

import (
	"context"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"gigbook/config"
	"gigbook/cron"
	"gigbook/database"
	bookingRepo "gigbook/database/repository/booking"
	conversationRepo "gigbook/database/repository/conversation"
	payoutRepo "gigbook/database/repository/payout"
	reviewRepo "gigbook/database/repository/review"
	"gigbook/handlers"
	"gigbook/middleware"
	"gigbook/routes"
	"gigbook/services/booking"
	"gigbook/services/conversation"
	"gigbook/services/ledger"
	"gigbook/services/realtime"
	"gigbook/services/review"
	"gigbook/services/tasks"
	"gigbook/utils"

	"github.com/gin-gonic/gin"
	"github.com/hibiken/asynq"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/readpref"
	"go.uber.org/zap"
)

type stores struct {
	bookings      bookingRepo.BookingRepository
	payouts       payoutRepo.PayoutAccountRepository
	reviews       reviewRepo.ReviewRepository
	conversations conversationRepo.ConversationRepository
	refresher     utils.Refresher
	client        *mongo.Client
}

func openStores(cfg *config.Config, logger *zap.Logger) (*stores, error) {
	if cfg.StoreDriver == "memory" {
		logger.Warn("main: using in-memory store, data will not survive a restart")
		return &stores{
			bookings:      bookingRepo.NewMemoryBookingRepo(),
			payouts:       payoutRepo.NewMemoryPayoutAccountRepo(),
			reviews:       reviewRepo.NewMemoryReviewRepo(),
			conversations: conversationRepo.NewMemoryConversationRepo(),
		}, nil
	}

	client, err := database.InitDB(cfg)
	if err != nil {
		return nil, err
	}
	db := database.Database(client, cfg)
	payouts, err := payoutRepo.NewMongoPayoutAccountRepo(db)
	if err != nil {
		return nil, err
	}
	conversations, err := conversationRepo.NewMongoConversationRepo(db)
	if err != nil {
		return nil, err
	}
	return &stores{
		bookings:      bookingRepo.NewMongoBookingRepo(db, logger),
		payouts:       payouts,
		reviews:       reviewRepo.NewMongoReviewRepo(db),
		conversations: conversations,
		// A fresh ping makes the pool re-authenticate a connection.
		refresher: utils.RefreshFunc(func(ctx context.Context) error {
			return client.Ping(ctx, readpref.Primary())
		}),
		client: client,
	}, nil
}

func openLedger(cfg *config.Config, logger *zap.Logger) (ledger.Gateway, utils.Refresher, error) {
	if cfg.LedgerDriver == "memory" {
		logger.Warn("main: using in-memory ledger, no money will move")
		return ledger.NewMemoryGateway(), nil, nil
	}
	gw, err := ledger.NewStripeGateway(config.StripeKey, logger)
	if err != nil {
		return nil, nil, err
	}
	return gw, gw, nil
}

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("main: %v", err)
	}
	logger := utils.InitializeLogger(cfg)
	defer logger.Sync()

	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	st, err := openStores(cfg, logger)
	if err != nil {
		logger.Fatal("main: failed to open store", zap.Error(err))
	}
	gateway, ledgerRefresher, err := openLedger(cfg, logger)
	if err != nil {
		logger.Fatal("main: failed to initialize ledger", zap.Error(err))
	}

	// Redis backs dedupe, token revocation and the reconcile queue. Only a
	// fully in-memory setup may run without it.
	inMemory := cfg.StoreDriver == "memory" && cfg.LedgerDriver == "memory"
	var (
		deduper   booking.Deduper
		revoker   utils.TokenRevoker
		scheduler tasks.Scheduler
		health    = map[string]utils.Pinger{}
	)
	cacheClient, err := utils.NewRedisClient(cfg, cfg.RedisCacheDB)
	if err != nil && !inMemory {
		logger.Fatal("main: redis unavailable", zap.Error(err))
	}
	var queueClient *asynq.Client
	if cacheClient != nil {
		authClient, err := utils.NewRedisClient(cfg, cfg.RedisAuthDB)
		if err != nil {
			logger.Fatal("main: redis auth db unavailable", zap.Error(err))
		}
		deduper = booking.NewRedisDeduper(cacheClient)
		revoker = utils.NewRedisTokenRevoker(authClient)
		queueClient = asynq.NewClient(cron.RedisOpt(cfg))
		defer queueClient.Close()
		scheduler = tasks.NewAsynqScheduler(queueClient, cfg.ClaimTTL)
		health["redis"] = utils.PingFunc(func(ctx context.Context) error {
			return cacheClient.Ping(ctx).Err()
		})
	} else {
		logger.Warn("main: redis unavailable, falling back to in-process dedupe and revocation", zap.Error(err))
		deduper = booking.NewMemoryDeduper()
		revoker = utils.NewMemoryTokenRevoker()
	}
	if st.client != nil {
		health["mongo"] = utils.PingFunc(func(ctx context.Context) error {
			return st.client.Ping(ctx, readpref.Primary())
		})
	}

	bookingService := &booking.DefaultBookingService{
		Store:           st.bookings,
		Ledger:          gateway,
		Payouts:         st.payouts,
		Conversations:   conversation.NewBridge(st.conversations, logger),
		Reviews:         review.NewGate(st.reviews),
		Deduper:         deduper,
		Scheduler:       scheduler,
		StoreRefresher:  st.refresher,
		LedgerRefresher: ledgerRefresher,
		Logger:          logger,
		Currency:        cfg.DefaultCurrency,
		FeeRate:         cfg.PlatformFeeRate,
		ClaimTTL:        cfg.ClaimTTL,
		DedupeWindow:    cfg.DedupeWindow,
	}

	var worker *asynq.Server
	if queueClient != nil {
		worker = cron.InitReconcileWorker(ctx, cfg, bookingService, logger)
	}

	hub := realtime.NewBookingHub(logger)
	go hub.Follow(ctx, st.bookings.Watch, time.Second, 30*time.Second)

	monitor := utils.NewHealthMonitor(health)
	monitor.Start(ctx, 30*time.Second)

	tokens := utils.NewTokenManager(cfg.JWTSecret, cfg.AccessTokenTTL, cfg.RefreshTokenTTL)

	// Create the Gin router.
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(utils.ErrorHandler())
	router.Use(utils.RequestLogger(logger))
	router.Use(middleware.RateLimitMiddleware(cfg.MaxRequestsPerMin))

	handlerBundle := handlers.NewHandlerBundle(
		handlers.NewBookingHandler(bookingService, hub),
		handlers.NewPaymentHandler(bookingService),
		handlers.NewAuthHandler(tokens, revoker),
		monitor,
	)
	routes.RegisterRoutes(router, handlerBundle)

	// Start the HTTP server. No write timeout: the booking stream is long lived.
	port := cfg.AppPort
	if port == "" {
		port = "8080"
	}
	srv := &http.Server{
		Addr:              "0.0.0.0:" + port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	logger.Info("starting server", zap.String("addr", srv.Addr),
		zap.String("store", cfg.StoreDriver), zap.String("ledger", cfg.LedgerDriver))
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("main: server failed to start", zap.Error(err))
		}
	}()

	// Wait for an OS signal to gracefully shutdown.
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("main: server is shutting down...")

	// Request contexts derive from ctx, so this ends open booking streams.
	stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("main: server forced to shutdown", zap.Error(err))
	}
	if worker != nil {
		worker.Shutdown()
	}
	if st.client != nil {
		_ = st.client.Disconnect(shutdownCtx)
	}

	logger.Info("main: server stopped gracefully")
}
