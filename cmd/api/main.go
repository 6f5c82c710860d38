package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs-labo46/storefront/internal/config"
	"github.com/rs-labo46/storefront/internal/handler"
	"github.com/rs-labo46/storefront/internal/infra/cache"
	"github.com/rs-labo46/storefront/internal/infra/db"
	"github.com/rs-labo46/storefront/internal/infra/events"
	infraRepo "github.com/rs-labo46/storefront/internal/infra/repository"
	"github.com/rs-labo46/storefront/internal/obs"
	"github.com/rs-labo46/storefront/internal/payment"
	"github.com/rs-labo46/storefront/internal/payment/alipay"
	"github.com/rs-labo46/storefront/internal/payment/wechatpay"
	"github.com/rs-labo46/storefront/internal/server"
	"github.com/rs-labo46/storefront/internal/usecase"

	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"
)

// 購読ループ（Kafka / RabbitMQ）
type consumer interface {
	Run(ctx context.Context, h events.PaymentEventHandler) error
}

func main() {
	// .envは無くてもよい（本番は環境変数）
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		obs.Logger.Error("config load failed", "err", err)
		os.Exit(1)
	}
	obs.InitLogger(cfg.GoEnv)

	if err := run(cfg); err != nil {
		obs.Logger.Error("server stopped with error", "err", err)
		os.Exit(1)
	}
}

func run(cfg config.Config) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	//DB接続
	gormDB, err := db.Connect(cfg)
	if err != nil {
		return err
	}
	if err := db.Migrate(gormDB); err != nil {
		return err
	}

	//Repository（GORM実装）生成
	productRepo := infraRepo.NewProductGormRepository(gormDB)
	inventoryRepo := infraRepo.NewInventoryGormRepository(gormDB)
	paymentRepo := infraRepo.NewPaymentGormRepository(gormDB)
	txm := infraRepo.NewTxManagerGorm(gormDB)

	orderUC := usecase.NewOrderUsecase(txm)

	//決済ゲートウェイ
	gateways := []payment.Gateway{wechatpay.New()}
	if cfg.AlipayAppID != "" {
		ali, err := alipay.New(alipay.Config{
			AppID:          cfg.AlipayAppID,
			Production:     cfg.AlipayProduction,
			NotifyURL:      cfg.AlipayNotifyURL,
			ReturnURL:      cfg.AlipayReturnURL,
			PrivateKeyPath: cfg.AlipayPrivateKeyPath,
			PublicKeyPath:  cfg.AlipayPublicKeyPath,
			Timeout:        cfg.ProviderTimeout,
		})
		if err != nil {
			return err
		}
		gateways = append(gateways, ali)
	} else {
		obs.Logger.Warn("alipay disabled: ALIPAY_APP_ID is empty")
	}
	registry := payment.NewRegistry(gateways...)

	//終端ステータスのキャッシュ
	opts := usecase.PaymentOptions{
		ProviderTimeout: cfg.ProviderTimeout,
		ReferencePrefix: cfg.PaymentReferencePrefix,
	}
	if cfg.RedisAddr != "" {
		rdb := cache.NewRedisClient(cfg.RedisAddr)
		defer rdb.Close()
		opts.Cache = cache.NewPaymentStatusRedisCache(rdb, cache.DefaultTTL)
	}

	//イベント発行/購読
	var sub consumer
	switch cfg.EventBroker {
	case "kafka":
		pub := events.NewKafkaPublisher(cfg.KafkaBrokers, cfg.KafkaPaymentTopic)
		defer pub.Close()
		opts.Publisher = pub
		sub = events.NewKafkaConsumer(cfg.KafkaBrokers, cfg.KafkaGroupID, cfg.KafkaPaymentTopic)
	case "rabbitmq":
		conn, ch, err := events.DialRabbitMQ(cfg.RabbitMQURL)
		if err != nil {
			return err
		}
		defer conn.Close()
		defer ch.Close()
		opts.Publisher = events.NewRabbitPublisher(ch)
		sub = events.NewRabbitConsumer(ch)
	default:
		opts.Publisher = events.DirectPublisher{Handler: orderUC.ApplyPaymentEvent}
	}

	//Usecase生成
	productUC := usecase.NewProductUsecase(productRepo)
	stockUC := usecase.NewStockUsecase(productRepo, inventoryRepo, txm)
	adminOrderUC := usecase.NewAdminOrderUsecase(txm)
	auditLogUC := usecase.NewAuditLogUsecase(infraRepo.NewAuditLogGormRepository(gormDB))
	paymentUC := usecase.NewPaymentUsecase(paymentRepo, registry, opts)

	//Handler生成
	e := server.New(cfg, server.Handlers{
		Product:      handler.NewProductHandler(productUC),
		AdminProduct: handler.NewAdminProductHandler(productUC),
		Stock:        handler.NewStockHandler(stockUC),
		Order:        handler.NewOrderHandler(orderUC),
		AdminOrder:   handler.NewAdminOrderHandler(adminOrderUC),
		AuditLog:     handler.NewAdminAuditLogHandler(auditLogUC),
		Payment:      handler.NewPaymentHandler(paymentUC),
		Alipay:       handler.NewAlipayHandler(paymentUC),
	})

	addr := cfg.Port
	if addr == "" || addr[0] != ':' {
		addr = ":" + addr
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return server.Run(gctx, e, addr)
	})
	if sub != nil {
		g.Go(func() error {
			return sub.Run(gctx, orderUC.ApplyPaymentEvent)
		})
	}
	return g.Wait()
}
