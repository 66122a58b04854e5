package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"
	"github.com/linemk/usdt-shop/internal/app"
	"github.com/linemk/usdt-shop/internal/app/handlers"
	"github.com/linemk/usdt-shop/internal/cache"
	"github.com/linemk/usdt-shop/internal/config"
	"github.com/linemk/usdt-shop/internal/jwt-new/jwtmiddleware"
	"github.com/linemk/usdt-shop/internal/ledger"
	"github.com/linemk/usdt-shop/internal/lib/logger"
	"github.com/linemk/usdt-shop/internal/lib/logger/handlers/urllog"
	"github.com/linemk/usdt-shop/internal/notify"
	"github.com/linemk/usdt-shop/internal/reconcile"
	"github.com/linemk/usdt-shop/internal/service"
	"github.com/linemk/usdt-shop/internal/storage"
	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
)

const shutdownTimeout = 10 * time.Second

func main() {
	// .env не обязателен, переменные могут прийти из окружения
	_ = godotenv.Load()

	// загрузка конфигурации
	cfg := config.MustLoad()

	// инициализация логгера, зависит от настройки окружения
	log := logger.SetupLogger(cfg.Env)
	log.Info("starting app", slog.String("env", cfg.Env), slog.String("storage", cfg.Storage.Driver))

	// загружаем объект приложения: конфиг и хранилища
	application, err := app.NewApp(log, cfg)
	if err != nil {
		log.Error("failed to initialize app", slog.Any("error", err))
		panic(errors.Wrap(err, "failed to initialize app"))
	}
	defer application.Close()

	repos := application.Repos

	// кэш заказов для чтений покупателя, если задан redis;
	// выдача, воркеры и оператор читают заказы напрямую из хранилища
	var buyerOrders storage.OrderStorage = repos.Orders
	var rdb *redis.Client
	if cfg.Redis.Addr != "" {
		rdb = cache.NewClient(cfg.Redis.Addr)
		buyerOrders = cache.NewOrderCache(log, repos.Orders, rdb, cfg.Redis.OrderTTL)
		log.Info("order cache enabled", slog.String("addr", cfg.Redis.Addr))
	}

	// уведомления: kafka или лог
	var notifier notify.Notifier
	var kafkaNotifier *notify.KafkaNotifier
	if len(cfg.Kafka.Brokers) > 0 {
		kafkaNotifier = notify.NewKafkaNotifier(log, notify.NewKafkaWriter(cfg.Kafka.Brokers, cfg.Kafka.Topic), cfg.Kafka.Buffer)
		kafkaNotifier.Start()
		notifier = kafkaNotifier
		log.Info("kafka notifier enabled", slog.String("topic", cfg.Kafka.Topic))
	} else {
		notifier = notify.NewLogNotifier(log)
	}
	messenger := notify.NewMessenger(log, notifier, cfg.Notify.OperatorIDs, cfg.Notify.SupportContact)

	tolerance, err := cfg.Payment.Tolerance()
	if err != nil {
		panic(errors.Wrap(err, "invalid amount tolerance"))
	}

	probe := ledger.NewTronGridProbe(log, ledger.Config{
		BaseURL:         cfg.Tron.BaseURL,
		ContractAddress: cfg.Tron.ContractAddress,
		APIKey:          cfg.Tron.APIKey,
		Decimals:        cfg.Tron.Decimals,
		Limit:           cfg.Tron.Limit,
		RequestTimeout:  cfg.Tron.RequestTimeout,
		RPS:             cfg.Tron.RPS,
		Burst:           cfg.Tron.Burst,
	}, nil)

	fulfillmentService := service.NewFulfillmentService(log, repos.Orders, repos.Inventory, messenger)

	registry := reconcile.NewRegistry(log, reconcile.Config{
		Timeout:   cfg.Payment.Timeout,
		Interval:  cfg.Payment.PollInterval,
		Tolerance: tolerance,
	}, repos.Orders, probe, fulfillmentService, messenger)

	// поднимаем ожидание оплаты для заказов, оставшихся с прошлого запуска
	if _, err := registry.Resume(context.Background()); err != nil {
		log.Error("failed to resume pending orders", slog.Any("error", err))
		panic(errors.Wrap(err, "failed to resume pending orders"))
	}

	authService := service.NewAuthService(log, repos.Users, time.Duration(cfg.JWT.TokenTTL)*time.Minute, cfg.JWT.Secret, cfg.Admin.Usernames)
	purchaseService := service.NewPurchaseService(log, repos.Users, repos.Products, buyerOrders, registry, messenger, service.PaymentSettings{
		WalletAddress: cfg.Payment.WalletAddress,
		Timeout:       cfg.Payment.Timeout,
	})
	adminService := service.NewAdminService(log, repos.Users, repos.Products, repos.Orders, repos.Inventory, fulfillmentService, messenger, cfg.Payment.Currency)

	router := chi.NewRouter()
	// настройка middleware
	router.Use(middleware.RequestID)
	router.Use(urllog.CustomLoggerMiddleware(log))
	router.Use(middleware.Recoverer)
	router.Use(middleware.URLFormat)

	router.Get("/healthz", handlers.HealthHandler())
	// эндпоинт для аутентификации
	router.Post("/api/auth", handlers.AuthHandler(log, authService))

	router.Group(func(r chi.Router) {
		r.Use(jwtmiddleware.NewJWTMiddleware(cfg.JWT.Secret))

		// покупатель
		r.Get("/api/products", handlers.ProductsHandler(log, purchaseService))
		r.Post("/api/orders", handlers.CreateOrderHandler(log, purchaseService))
		r.Get("/api/orders", handlers.ListOrdersHandler(log, purchaseService))
		r.Get("/api/orders/{id}", handlers.GetOrderHandler(log, purchaseService))
		r.Post("/api/orders/{id}/cancel", handlers.CancelOrderHandler(log, purchaseService))
		r.Post("/api/orders/{id}/paid", handlers.MarkPaidHandler(log, purchaseService))

		// оператор
		r.Route("/api/admin", func(r chi.Router) {
			r.Use(jwtmiddleware.AdminOnly)

			r.Get("/orders", handlers.AdminOrdersHandler(log, adminService))
			r.Get("/orders/manual", handlers.ManualQueueHandler(log, adminService))
			r.Post("/orders/{id}/confirm", handlers.ConfirmOrderHandler(log, adminService))
			r.Post("/orders/{id}/reject", handlers.RejectOrderHandler(log, adminService))
			r.Post("/orders/{id}/deliver", handlers.DeliverOrderHandler(log, adminService))

			r.Get("/products", handlers.AdminProductsHandler(log, adminService))
			r.Post("/products", handlers.CreateProductHandler(log, adminService))
			r.Post("/products/{id}/price", handlers.UpdatePriceHandler(log, adminService))
			r.Post("/products/{id}/enabled", handlers.SetProductEnabledHandler(log, adminService))
			r.Post("/products/{id}/inventory", handlers.AddInventoryHandler(log, adminService))

			r.Post("/users/{id}/ban", handlers.BanUserHandler(log, adminService))
			r.Get("/stats", handlers.StatsHandler(log, adminService))
		})
	})

	srv := &http.Server{
		Addr:         cfg.HTTPServer.Address,
		Handler:      router,
		ReadTimeout:  cfg.HTTPServer.Timeout,
		WriteTimeout: cfg.HTTPServer.Timeout,
		IdleTimeout:  cfg.HTTPServer.IdleTimeout,
	}

	go func() {
		log.Info("starting server", slog.String("address", cfg.HTTPServer.Address))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("server error", slog.Any("error", err))
		}
	}()

	// graceful shutdown
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	stopSign := <-stop
	log.Info("received shutdown signal", slog.String("signal", stopSign.String()))

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Error("server shutdown failed", slog.Any("error", err))
	}
	// воркеры останавливаются до закрытия уведомлений, им ещё может понадобиться отправка
	if err := registry.Shutdown(ctx); err != nil {
		log.Error("reconcile shutdown failed", slog.Any("error", err))
	}
	if kafkaNotifier != nil {
		if err := kafkaNotifier.Close(ctx); err != nil {
			log.Error("notifier shutdown failed", slog.Any("error", err))
		}
	}
	if rdb != nil {
		if err := rdb.Close(); err != nil {
			log.Error("redis shutdown failed", slog.Any("error", err))
		}
	}
	log.Info("server gracefully stopped")
}
