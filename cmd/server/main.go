package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/awadhimassomo/Mkulima-smart/cache"
	"github.com/awadhimassomo/Mkulima-smart/database"
	"github.com/awadhimassomo/Mkulima-smart/gateway"
	"github.com/awadhimassomo/Mkulima-smart/handlers"
	"github.com/awadhimassomo/Mkulima-smart/inventory"
	"github.com/awadhimassomo/Mkulima-smart/kafka"
	"github.com/awadhimassomo/Mkulima-smart/middleware"
	"github.com/awadhimassomo/Mkulima-smart/models"
	"github.com/awadhimassomo/Mkulima-smart/notify"
	"github.com/awadhimassomo/Mkulima-smart/orders"
	"github.com/awadhimassomo/Mkulima-smart/payments"
	"github.com/awadhimassomo/Mkulima-smart/users"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.uber.org/zap"
)

func main() {
	// Initialize logger
	logger, err := zap.NewProduction()
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logger.Sync()

	// Initialize database
	db, err := database.InitDB(logger)
	if err != nil {
		logger.Fatal("Failed to initialize database", zap.Error(err))
	}
	defer db.Close()

	// Initialize OpenTelemetry
	shutdownTracing, err := middleware.InitTracing("marketplace")
	if err != nil {
		logger.Fatal("Failed to initialize tracing", zap.Error(err))
	}
	defer shutdownTracing()

	// Redis is a read-path optimization; the service runs without it.
	rdb, err := cache.InitRedis(logger)
	if err != nil {
		logger.Warn("Redis unavailable, product cache disabled", zap.Error(err))
		rdb = nil
	}

	// Kafka producer for lifecycle notifications
	var notifier notify.Notifier
	producer, err := notify.InitProducer(logger)
	if err != nil {
		logger.Warn("Kafka unavailable, notifications disabled", zap.Error(err))
		notifier = notify.Nop{}
	} else {
		defer producer.Close()
		notifier = notify.NewKafkaNotifier(producer, logger)
	}

	// Notification worker
	consumerCtx, cancelConsumer := context.WithCancel(context.Background())
	defer cancelConsumer()
	if consumer, err := kafka.InitConsumer(logger); err != nil {
		logger.Warn("Kafka consumer unavailable", zap.Error(err))
	} else {
		defer consumer.Close()
		go func() {
			if err := kafka.StartConsumer(consumerCtx, consumer, logger); err != nil && err != context.Canceled {
				logger.Error("Kafka consumer error", zap.Error(err))
			}
		}()
	}

	// Payment gateway registry
	registry := gateway.NewRegistry()
	takaBank := gateway.NewTakaBank(gateway.TakaBankConfigFromEnv(), logger)
	registry.RegisterProvider(takaBank.Name(), takaBank)
	registry.RegisterType(models.MethodCreditCard, takaBank)

	mobileMoney := gateway.NewMobileMoney()
	registry.RegisterProvider(mobileMoney.Name(), mobileMoney)
	registry.RegisterType(models.MethodMobileMoney, mobileMoney)

	bankTransfer := gateway.NewBankTransfer()
	registry.RegisterProvider(bankTransfer.Name(), bankTransfer)
	registry.RegisterType(models.MethodBankTransfer, bankTransfer)

	// Services
	userDirectory := users.NewStore(db, logger)
	inventoryService := inventory.NewService(db, logger)
	orderService := orders.NewService(db, inventoryService, userDirectory, notifier, logger)
	paymentService := payments.NewService(db, registry, userDirectory, notifier, logger)
	orderService.BindRefunds(paymentService)
	paymentService.BindOrders(orderService)

	// Handlers
	orderHandler := handlers.NewOrderHandler(orderService, logger)
	paymentHandler := handlers.NewPaymentHandler(paymentService, logger)
	productHandler := handlers.NewProductHandler(inventoryService, rdb, logger)

	// Setup REST API with Gin
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(otelgin.Middleware("marketplace"))
	router.Use(middleware.LoggerMiddleware(logger))
	router.Use(middleware.MetricsMiddleware())

	router.GET("/health", handlers.HealthCheck)
	router.GET("/metrics", middleware.PrometheusHandler())

	// Gateways authenticate webhooks by signature, not by bearer token.
	router.POST("/webhooks/payments/:provider", paymentHandler.HandleWebhook)

	api := router.Group("/api/v1")
	api.GET("/products/:id", productHandler.GetProduct)
	api.GET("/products/:id/availability", productHandler.CheckAvailability)

	authed := api.Group("")
	authed.Use(middleware.AuthMiddleware())
	{
		authed.POST("/products/:id/stock", productHandler.AdjustStock)
		authed.GET("/products/:id/inventory-logs", productHandler.GetInventoryLogs)

		authed.POST("/orders", orderHandler.CreateOrder)
		authed.GET("/orders/:id", orderHandler.GetOrder)
		authed.PATCH("/orders/:id/status", orderHandler.UpdateOrderStatus)
		authed.POST("/orders/:id/cancel", orderHandler.CancelOrder)
		authed.GET("/orders/:id/history", orderHandler.GetOrderHistory)
		authed.POST("/orders/summary", orderHandler.CalculateSummary)

		authed.GET("/payment-methods", paymentHandler.ListPaymentMethods)
		authed.POST("/payments", paymentHandler.CreatePayment)
		authed.GET("/payments/:id", paymentHandler.GetPayment)
		authed.POST("/payments/:id/process", paymentHandler.ProcessPayment)
		authed.GET("/payments/:id/status", paymentHandler.CheckPaymentStatus)
		authed.POST("/payments/:id/refunds", paymentHandler.CreateRefund)
		authed.POST("/refunds/:id/process", paymentHandler.ProcessRefund)
		authed.POST("/refunds/:id/complete", paymentHandler.CompleteRefund)
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}
	srv := &http.Server{
		Addr:    ":" + port,
		Handler: router,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Failed to start REST server", zap.Error(err))
		}
	}()

	logger.Info("Marketplace service started", zap.String("port", port))

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")
	cancelConsumer()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server forced to shutdown", zap.Error(err))
	}
	logger.Info("Server exited")
}
