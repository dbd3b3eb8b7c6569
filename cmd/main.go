package main

import (
	"context"
	"database/sql"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/joho/godotenv"
	_ "github.com/lib/pq"

	"github.com/vam12375/muying-mall-sub003/internal/config"
	"github.com/vam12375/muying-mall-sub003/internal/gateway"
	"github.com/vam12375/muying-mall-sub003/internal/handlers"
	"github.com/vam12375/muying-mall-sub003/internal/messaging"
	"github.com/vam12375/muying-mall-sub003/internal/repository"
	"github.com/vam12375/muying-mall-sub003/internal/service"
)

func main() {
	log.Println("🚀 Payment core starting...")

	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment")
	}
	cfg := config.Load()

	// Database connection
	db, err := initDatabase(cfg)
	if err != nil {
		log.Fatalf("Database connection error: %v", err)
	}
	defer db.Close()

	// RabbitMQ connection
	rabbitConfig := messaging.NewRabbitMQConfig()
	rabbitClient := messaging.NewRabbitMQClient(rabbitConfig)

	if err := rabbitClient.Connect(); err != nil {
		log.Fatalf("RabbitMQ connection error: %v", err)
	}
	defer rabbitClient.Close()

	publisher := messaging.NewPublisher(rabbitClient)

	// Gateway client and signature verifier
	gatewayPub, err := os.ReadFile(cfg.GatewayPublicKeyPath)
	if err != nil {
		log.Fatalf("Gateway public key read error: %v", err)
	}
	verifier, err := gateway.NewRSAVerifier(gatewayPub)
	if err != nil {
		log.Fatalf("Gateway verifier init error: %v", err)
	}

	merchantPriv, err := os.ReadFile(cfg.MerchantPrivateKeyPath)
	if err != nil {
		log.Fatalf("Merchant private key read error: %v", err)
	}
	gatewayClient, err := gateway.NewHTTPClient(cfg.GatewayEndpoint, cfg.GatewayAppID, merchantPriv, cfg.GatewayQueryTimeout)
	if err != nil {
		log.Fatalf("Gateway client init error: %v", err)
	}

	// Dependencies injection
	runner := repository.NewTxRunner(db)
	reader := repository.NewReader(db)

	orderTransitions := service.NewOrderTransitions(runner, publisher)
	paymentTransitions := service.NewPaymentTransitions(runner, publisher)
	refundTransitions := service.NewRefundTransitions(runner, publisher)
	ledgerService := service.NewLedgerService(runner)
	refundService := service.NewRefundService(runner, reader, gatewayClient, publisher, cfg.GatewayQueryTimeout)
	reconciler := service.NewReconcileService(runner, reader, gatewayClient, verifier, publisher,
		cfg.GatewayQueryTimeout, cfg.PaymentStaleAfter, cfg.PaymentExpireAfter)

	notifyHandler := handlers.NewNotifyHandler(reconciler, cfg.PayResultURL)
	paymentHandler := handlers.NewPaymentHandler(reconciler)
	transitionHandler := handlers.NewTransitionHandler(orderTransitions, paymentTransitions, refundTransitions, reader)
	refundHandler := handlers.NewRefundHandler(refundService)
	walletHandler := handlers.NewWalletHandler(ledgerService, reader)

	// Fiber app setup
	app := setupFiberApp()
	setupRoutes(app, notifyHandler, paymentHandler, transitionHandler, refundHandler, walletHandler)

	// Polling fallback for lost webhooks
	pollCtx, pollCancel := context.WithCancel(context.Background())
	defer pollCancel()
	go runPollLoop(pollCtx, reconciler, cfg.PollInterval)

	// Graceful shutdown setup
	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		<-sigChan

		log.Println("🛑 Payment core closing...")
		pollCancel()
		if err := app.Shutdown(); err != nil {
			log.Printf("Shutdown error: %v", err)
		}
	}()

	log.Printf("🌍 Payment core working: http://localhost:%s", cfg.Port)
	if err := app.Listen(":" + cfg.Port); err != nil {
		log.Fatalf("Server start error: %v", err)
	}
}

func initDatabase(cfg *config.Config) (*sql.DB, error) {
	db, err := sql.Open("postgres", cfg.DBConnectionString())
	if err != nil {
		return nil, err
	}

	// Connection test
	if err := db.Ping(); err != nil {
		return nil, err
	}

	log.Printf("✅ Database connection successful: %s", cfg.DBName)
	return db, nil
}

func setupFiberApp() *fiber.App {
	app := fiber.New(fiber.Config{
		AppName:      "Payment Core v1.0",
		ErrorHandler: errorHandler,
	})

	// Middlewares
	app.Use(recover.New())
	app.Use(logger.New(logger.Config{
		Format: "[${time}] ${status} - ${method} ${path} - ${latency}\n",
	}))
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowMethods: "GET,POST,PUT,DELETE,OPTIONS",
		AllowHeaders: "Origin,Content-Type,Accept,Authorization,X-Request-ID",
	}))

	return app
}

func setupRoutes(
	app *fiber.App,
	notifyHandler *handlers.NotifyHandler,
	paymentHandler *handlers.PaymentHandler,
	transitionHandler *handlers.TransitionHandler,
	refundHandler *handlers.RefundHandler,
	walletHandler *handlers.WalletHandler,
) {
	// API v1 routes
	api := app.Group("/api/v1")

	// Health check
	api.Get("/health", paymentHandler.HealthCheck)

	// Gateway-facing endpoints (bare string / redirect contracts)
	payments := api.Group("/payments")
	payments.Post("/notify", notifyHandler.HandleNotify)
	payments.Get("/return", notifyHandler.HandleReturn)
	payments.Post("/:id/wallet-pay", paymentHandler.PayWithWallet)

	// User/ops order actions
	orders := api.Group("/orders")
	orders.Post("/:id/payments", paymentHandler.InitiatePayment)
	orders.Post("/:id/cancel", paymentHandler.CancelOrder)

	// Wallet admin operations
	accounts := api.Group("/accounts")
	accounts.Get("/:userId", walletHandler.GetBalance)
	accounts.Post("/:userId/adjust", walletHandler.AdjustBalance)

	// Refund lifecycle
	refunds := api.Group("/refunds")
	refunds.Post("/", refundHandler.Request)
	refunds.Post("/:id/approve", refundHandler.Approve)
	refunds.Post("/:id/reject", refundHandler.Reject)
	refunds.Post("/:id/execute", refundHandler.Execute)

	// State-machine admin API
	api.Post("/:entity/:id/transition", transitionHandler.Transition)
	api.Get("/:entity/:id/next-states", transitionHandler.NextStates)
	api.Get("/:entity/:id/history", transitionHandler.History)
	api.Get("/:entity/can-transit", transitionHandler.CanTransit)

	// Route not found
	app.Use("*", func(c *fiber.Ctx) error {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"success": false,
			"message": "Route not found",
		})
	})
}

func runPollLoop(ctx context.Context, reconciler *service.ReconcileService, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			finalized, err := reconciler.PollPending(ctx)
			if err != nil {
				log.Printf("Poll sweep error: %v", err)
				continue
			}
			if finalized > 0 {
				log.Printf("Poll sweep finalized %d payment(s)", finalized)
			}
		}
	}
}

func errorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	message := "Internal Server Error"

	if e, ok := err.(*fiber.Error); ok {
		code = e.Code
		message = e.Message
	}

	log.Printf("Error: %v", err)

	return c.Status(code).JSON(fiber.Map{
		"success": false,
		"message": message,
	})
}
