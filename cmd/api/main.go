package main

import (
	"context"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"storefront/internal/config"
	"storefront/internal/domain/model"
	"storefront/internal/handler"
	"storefront/internal/infra/db"
	"storefront/internal/infra/memory"
	"storefront/internal/infra/payment"
	infraRepo "storefront/internal/infra/repository"
	"storefront/internal/logging"
	"storefront/internal/notify"
	"storefront/internal/ratelimit"
	repo "storefront/internal/repository"
	"storefront/internal/server"
	"storefront/internal/usecase"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
)

type repositories struct {
	tx      repo.TransactionManager
	orders  repo.OrderRepository
	coupons repo.CouponRepository
	logs    repo.ActivityLogRepository
}

func main() {
	cfg, err := config.Load(config.FilePathFromEnv())
	if err != nil {
		slog.Error("load config", "err", err)
		os.Exit(1)
	}

	log := logging.Init(cfg.App.Name, cfg.Log.File, cfg.Log.Level)
	log.Info("starting", "env", cfg.App.Env, "addr", cfg.Addr())

	repos, err := openRepositories(cfg, log)
	if err != nil {
		log.Error("open storage", "err", err)
		os.Exit(1)
	}

	//Redisが無ければレート制限は素通し
	var counter ratelimit.Counter
	if cfg.Redis.Addr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer rdb.Close()

		pingCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		if err := rdb.Ping(pingCtx).Err(); err != nil {
			log.Warn("redis unreachable, rate limiting fails open until it recovers", "err", err)
		}
		cancel()
		counter = ratelimit.NewRedisCounter(rdb)
	} else {
		log.Warn("redis not configured, rate limiting disabled")
	}
	limiter := ratelimit.New(counter, ratelimit.PoliciesFromConfig(cfg.RateLimit))

	notifier, closeNotifier := openNotifier(cfg, log)
	defer closeNotifier()
	dispatcher := notify.NewDispatcher(notifier, cfg.Notify.QueueSize)
	dispatcher.Start()

	gateway, err := payment.NewHostedCheckoutGateway(cfg.Payment.CheckoutBaseURL)
	if err != nil {
		log.Error("payment gateway", "err", err)
		os.Exit(1)
	}

	//Usecase生成
	clock := usecase.SystemClock{}
	activityUC := usecase.NewActivityLogUsecase(repos.logs, clock)
	couponUC := usecase.NewCouponUsecase(repos.coupons, clock)
	orderUC := usecase.NewOrderUsecase(repos.orders)
	lifecycleUC := usecase.NewOrderLifecycleUsecase(repos.orders, activityUC, dispatcher, clock)
	checkoutUC := usecase.NewCheckoutUsecase(repos.tx, repos.orders, couponUC, activityUC, dispatcher, gateway, clock)

	//Handler生成
	e := server.New(cfg, limiter, server.Handlers{
		Coupons:     handler.NewCouponHandler(couponUC),
		Orders:      handler.NewOrderHandler(orderUC),
		AdminOrders: handler.NewAdminOrderHandler(lifecycleUC, activityUC),
		Checkout:    handler.NewCheckoutHandler(checkoutUC, cfg.Payment),
	})

	go func() {
		if err := server.Start(e, cfg.Addr()); err != nil {
			log.Error("server stopped", "err", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx, e); err != nil {
		log.Error("server shutdown", "err", err)
	}

	//残っている通知を送り切る
	dispatcher.Close()
	if err := dispatcher.WaitClosed(ctx); err != nil {
		log.Warn("notifications left unsent", "err", err)
	}
}

// DB設定が無ければインメモリで動かす（ローカル開発用）
func openRepositories(cfg config.Config, log *slog.Logger) (repositories, error) {
	if !cfg.Database.Enabled() {
		log.Warn("database not configured, using in-memory store")
		store := memory.NewStore()
		seedDevCoupons(store)
		return repositories{
			tx:      store,
			orders:  store.Orders(),
			coupons: store.Coupons(),
			logs:    store.ActivityLogs(),
		}, nil
	}

	gormDB, err := db.Connect(cfg.Database)
	if err != nil {
		return repositories{}, err
	}
	if err := db.Migrate(gormDB); err != nil {
		return repositories{}, err
	}
	return repositories{
		tx:      infraRepo.NewTxManagerGorm(gormDB),
		orders:  infraRepo.NewOrderGormRepository(gormDB),
		coupons: infraRepo.NewCouponGormRepository(gormDB),
		logs:    infraRepo.NewActivityLogGormRepository(gormDB),
	}, nil
}

// Kafka → RabbitMQ → ログ出力 の順で最初に設定されているものを使う
func openNotifier(cfg config.Config, log *slog.Logger) (notify.Notifier, func()) {
	if len(cfg.Notify.KafkaBrokers) > 0 {
		k := notify.NewKafkaNotifier(cfg.Notify.KafkaBrokers, cfg.Notify.KafkaTopic)
		log.Info("notifications via kafka", "topic", cfg.Notify.KafkaTopic)
		return k, closer(log, k)
	}
	if cfg.Notify.RabbitURL != "" {
		r, err := notify.NewRabbitNotifier(cfg.Notify.RabbitURL, cfg.Notify.RabbitExchange)
		if err == nil {
			log.Info("notifications via rabbitmq", "exchange", cfg.Notify.RabbitExchange)
			return r, closer(log, r)
		}
		log.Warn("rabbitmq unavailable, notifications will only be logged", "err", err)
	}
	return notify.NewLogNotifier(), func() {}
}

func closer(log *slog.Logger, c io.Closer) func() {
	return func() {
		if err := c.Close(); err != nil {
			log.Warn("close notifier", "err", err)
		}
	}
}

func seedDevCoupons(store *memory.Store) {
	store.SeedCoupon(model.Coupon{
		Code:          "SAVE10",
		Description:   "10% off",
		DiscountType:  model.DiscountTypePercentage,
		DiscountValue: decimal.NewFromInt(10),
		IsActive:      true,
	})
	store.SeedCoupon(model.Coupon{
		Code:          "FLAT20",
		Description:   "20 off",
		DiscountType:  model.DiscountTypeFixedAmount,
		DiscountValue: decimal.NewFromInt(20),
		IsActive:      true,
	})
	store.SeedCoupon(model.Coupon{
		Code:           "BULK15",
		Description:    "15% off orders over 50",
		DiscountType:   model.DiscountTypePercentage,
		DiscountValue:  decimal.NewFromInt(15),
		MinOrderAmount: decimal.NewFromInt(50),
		IsActive:       true,
	})
}
