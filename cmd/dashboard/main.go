package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"creditguild/internal/auction"
	"creditguild/internal/client/chain"
	"creditguild/internal/client/indexer"
	"creditguild/internal/client/prices"
	"creditguild/internal/config"
	cronrunner "creditguild/internal/cron"
	"creditguild/internal/db"
	"creditguild/internal/handler"
	"creditguild/internal/logger"
	"creditguild/internal/metrics"
	"creditguild/internal/poller"
	gormrepository "creditguild/internal/repository/gorm"
	"creditguild/internal/service"
	"creditguild/internal/state"

	_ "creditguild/docs"
)

func main() {
	cfgPath := os.Getenv("CG_CONFIG")
	if cfgPath == "" {
		cfgPath = "config/config.yaml"
	}

	envOnly := false
	if envOnlyRaw := os.Getenv("CG_ENV_ONLY"); envOnlyRaw != "" {
		envOnly = strings.EqualFold(envOnlyRaw, "true") || envOnlyRaw == "1"
	}

	cfg, err := config.Load(cfgPath, envOnly)
	if err != nil {
		panic(err)
	}

	log, err := logger.New(cfg.Log)
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	if len(cfg.Markets) == 0 {
		log.Fatal("no markets configured")
	}

	dbConn, err := db.Open(cfg.DB)
	if err != nil {
		log.Fatal("db open failed", zap.Error(err))
	}
	defer db.Close(dbConn)
	if dbConn == nil {
		log.Warn("database disabled, sync state will not be persisted")
	}
	if err := db.SetTimezone(dbConn, cfg.DB.Timezone); err != nil {
		log.Warn("failed to set timezone", zap.Error(err))
	}
	if err := db.AutoMigrate(dbConn); err != nil {
		log.Fatal("auto-migrate failed", zap.Error(err))
	}
	repo := gormrepository.New(db.GormOf(dbConn))

	syncMetrics := metrics.Sync()
	store := state.NewStore()
	store.OnDrop = func(state.Event) { syncMetrics.IncDropped() }

	markets := make(map[string]config.MarketConfig, len(cfg.Markets))
	for _, m := range cfg.Markets {
		markets[m.ID] = m
		store.Market(m.ID)
	}

	var limiter *rate.Limiter
	if cfg.Indexer.RateLimit > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.Indexer.RateLimit), max(cfg.Indexer.Burst, 1))
	}
	indexerClient := indexer.NewClient(&http.Client{Timeout: cfg.Indexer.Timeout}, cfg.Indexer.BaseURL, limiter)
	priceClient := prices.NewClient(&http.Client{Timeout: cfg.Prices.Timeout}, cfg.Prices.BaseURL)

	syncSvc := &service.SnapshotSyncService{
		Source:  indexerClient,
		State:   store,
		Repo:    repo,
		Metrics: syncMetrics,
		Logger:  logger.Component(log, "sync"),
		Poll: poller.Options{
			Interval:    cfg.Poller.Interval,
			MaxAttempts: cfg.Poller.MaxAttempts,
			Timeout:     cfg.Poller.Timeout,
		},
		PersistRaw: cfg.Sync.PersistRaw,
		KeepRaw:    cfg.Sync.KeepRaw,
	}

	var houseReader service.HouseReader
	var headBlock func(ctx context.Context) (uint64, error)
	if rpcURL := strings.TrimSpace(cfg.Chain.RPCURL); rpcURL != "" {
		evm, err := chain.Dial(rpcURL)
		if err != nil {
			log.Fatal("evm dial failed", zap.Error(err))
		}
		defer evm.Close()
		syncSvc.Receipts = &chain.ReceiptWaiter{
			Client:   evm,
			Interval: cfg.Chain.ReceiptInterval,
			Logger:   logger.Component(log, "receipts"),
		}
		houseReader = &chain.AuctionHouseReader{Client: evm}
		headBlock = func(ctx context.Context) (uint64, error) {
			return chain.HeadBlock(ctx, evm)
		}
	} else {
		log.Warn("chain rpc not configured, tx_hash sync and on-chain auction house reads disabled")
	}

	priceSvc := &service.PriceFeedService{
		Source:  priceClient,
		State:   store,
		Markets: markets,
		Logger:  logger.Component(log, "prices"),
	}
	houses := service.NewAuctionHouseService(cfg.Markets, houseReader, logger.Component(log, "houses"))
	curveSvc := &service.CurveService{
		State:   store,
		Houses:  houses,
		Markets: markets,
		Options: auction.Options{Samples: cfg.Curve.Samples, PaddingRatio: cfg.Curve.PaddingRatio},
		Metrics: syncMetrics,
	}

	if strings.EqualFold(cfg.App.Env, "dev") {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}
	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(handler.CORS(cfg.Server.AllowedOrigins))

	healthHandler := &handler.HealthHandler{DB: db.GormOf(dbConn), State: store, Head: headBlock}
	healthHandler.Register(engine)
	marketHandler := &handler.MarketHandler{
		Sync:        syncSvc,
		Prices:      priceSvc,
		Curves:      curveSvc,
		State:       store,
		Markets:     markets,
		Logger:      log,
		SyncTimeout: cfg.Poller.Timeout,
	}
	marketHandler.Register(engine)
	streamHandler := &handler.StreamHandler{
		State:          store,
		Logger:         log,
		Buffer:         64,
		OriginPatterns: handler.OriginHosts(cfg.Server.AllowedOrigins),
	}
	streamHandler.Register(engine)

	engine.GET("/metrics", gin.WrapH(promhttp.Handler()))
	engine.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	srv := &http.Server{
		Addr:    cfg.Server.HTTPAddr,
		Handler: engine,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Initial load so the first requests have data.
	for id := range markets {
		if err := syncSvc.RefreshMarket(ctx, id); err != nil {
			log.Warn("initial snapshot load failed (continuing)", zap.String("market", id), zap.Error(err))
		}
		if _, err := priceSvc.Refresh(ctx, id); err != nil {
			log.Warn("initial price load failed (continuing)", zap.String("market", id), zap.Error(err))
		}
	}

	if cfg.Cron.Enabled {
		cronRunner := cronrunner.New(logger.Component(log, "cron"), ctx)
		for marketID := range markets {
			if _, err := cronRunner.Add("refresh:"+marketID, cfg.Cron.Refresh, func(ctx context.Context) error {
				return syncSvc.RefreshMarket(ctx, marketID)
			}); err != nil {
				log.Warn("cron register refresh failed", zap.String("market", marketID), zap.Error(err))
			}
			if _, err := cronRunner.Add("prices:"+marketID, cfg.Cron.Prices, func(ctx context.Context) error {
				_, err := priceSvc.Refresh(ctx, marketID)
				return err
			}); err != nil {
				log.Warn("cron register prices failed", zap.String("market", marketID), zap.Error(err))
			}
		}
		cronRunner.Start()
		defer cronRunner.Stop()
	}

	errCh := make(chan error, 1)

	go func() {
		log.Info("http server starting", zap.String("addr", cfg.Server.HTTPAddr), zap.Int("markets", len(markets)))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		log.Info("shutdown requested")
	case err := <-errCh:
		log.Error("server error", zap.Error(err))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)
}
