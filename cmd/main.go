package main

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"time"

	"github.com/go-redis/redis/v8"
	_ "github.com/go-sql-driver/mysql"
	echojwt "github.com/labstack/echo-jwt/v4"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"golang.org/x/time/rate"

	"order-pipeline/internal/api"
	"order-pipeline/internal/config"
	"order-pipeline/internal/gateway"
	"order-pipeline/internal/repository"
	"order-pipeline/internal/service"
	"order-pipeline/internal/worker"
	"order-pipeline/migrations"
)

func connectDB(cfg config.DB) (*sql.DB, error) {
	dsn := fmt.Sprintf("%s:%s@tcp(%s:%s)/%s?parseTime=true", cfg.User, cfg.Pass, cfg.Host, cfg.Port, cfg.Name)

	var db *sql.DB
	var err error
	for i := 0; i < 10; i++ {
		db, err = sql.Open("mysql", dsn)
		if err == nil {
			err = db.Ping()
			if err == nil {
				log.Printf("connected to DB %s", cfg.Name)
				return db, nil
			}
		}
		log.Printf("retry %d: failed to connect to DB %s (%s:%s): %v", i+1, cfg.Name, cfg.Host, cfg.Port, err)
		time.Sleep(3 * time.Second)
	}
	return nil, fmt.Errorf("failed to connect to DB %s at %s:%s after retries: %v", cfg.Name, cfg.Host, cfg.Port, err)
}

func main() {
	db, err := connectDB(config.LoadDB())
	if err != nil {
		panic(err)
	}
	if err := migrations.AutoMigrate(db); err != nil {
		log.Fatalf("failed to migrate schema: %v", err)
	}

	rdb := redis.NewClient(&redis.Options{Addr: config.LoadRedis().Addr})
	kafkaWriter := config.NewKafkaWriter("order-events")

	gatewayCfg := config.LoadGateway()
	webhookCfg := config.LoadWebhooks()
	serverCfg := config.LoadServer()

	orderRepo := repository.NewOrderRepo(db)
	catalogRepo := repository.NewCatalogRepo(db)
	couponRepo := repository.NewCouponRepo(db)
	eventRepo := repository.NewWebhookEventRepo(db)
	returnRepo := repository.NewReturnRepo(db)
	auditRepo := repository.NewAuditRepo(db)

	gw := gateway.New(gatewayCfg)
	notifier := service.NewNotifier(config.LoadNotifier(), auditRepo, kafkaWriter)
	validatorService := service.NewValidatorService(catalogRepo)
	checkoutService := service.NewCheckoutService(db, orderRepo, catalogRepo, validatorService, gw, gatewayCfg)
	callbackService := service.NewCallbackService(orderRepo, catalogRepo, gw, notifier)
	refundService := service.NewRefundService(orderRepo, catalogRepo, auditRepo, gw, notifier)
	shippingService := service.NewShippingService(orderRepo, eventRepo, webhookCfg, notifier)
	returnsService := service.NewReturnsService(orderRepo, returnRepo, eventRepo, webhookCfg, notifier)
	couponService := service.NewCouponService(couponRepo)

	housekeeper := worker.NewHousekeeper(orderRepo, callbackService, config.LoadHousekeeper())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go housekeeper.Run(ctx)

	handler := api.NewHandler(
		catalogRepo, validatorService, checkoutService, callbackService,
		refundService, shippingService, returnsService, couponService, serverCfg,
	)

	e := echo.New()

	limiterConfig := middleware.RateLimiterConfig{
		Skipper: middleware.DefaultSkipper,
		Store: middleware.NewRateLimiterMemoryStoreWithConfig(
			middleware.RateLimiterMemoryStoreConfig{
				Rate:      rate.Limit(20),
				Burst:     60,
				ExpiresIn: 3 * time.Minute,
			}),
		IdentifierExtractor: func(context echo.Context) (string, error) {
			return context.RealIP(), nil
		},
		ErrorHandler: func(context echo.Context, err error) error {
			return context.JSON(429, map[string]string{"error": "rate limit exceeded"})
		},
		DenyHandler: func(context echo.Context, identifier string, err error) error {
			return context.JSON(429, map[string]string{"error": "rate limit exceeded"})
		},
	}

	e.Use(middleware.Logger())
	e.Use(middleware.Recover())
	e.Use(middleware.RateLimiterWithConfig(limiterConfig))

	// Mutating endpoints also share a redis fixed window across instances.
	limited := api.RedisRateLimit(rdb, config.LoadRateLimit())
	jwtAuth := echojwt.JWT([]byte(serverCfg.JWTSecret))

	e.POST("/orders/validate", handler.ValidateCart, limited)
	e.POST("/checkout", handler.Checkout, limited)
	e.POST("/payment/callback", handler.PaymentCallback)
	e.POST("/orders/:id/refund", handler.Refund, limited, jwtAuth)
	e.POST("/webhooks/shipping", handler.ShippingWebhook)
	e.POST("/webhooks/returns", handler.ReturnsWebhook)
	e.POST("/coupons/apply", handler.ApplyCoupon, limited)
	e.GET("/shipping/status", handler.ShippingStatus)
	e.PUT("/admin/orders/:id/shipping", handler.AdminUpdateShipping, jwtAuth)
	e.GET("/health", handler.Health)

	e.Logger.Fatal(e.Start(":" + serverCfg.Port))
}
