package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"redweb-bot/internal/bot"
	"redweb-bot/internal/config"
	"redweb-bot/internal/database"
	"redweb-bot/internal/notify"
	"redweb-bot/internal/payment"
	"redweb-bot/internal/storage"
	"redweb-bot/internal/vpn"
	"redweb-bot/internal/worker"
)

func main() {
	// Load Configuration
	cfg := config.LoadConfig()
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	// Connect to Database
	db, err := database.ConnectPostgres(cfg)
	if err != nil {
		log.Fatalf("Could not connect to database: %v", err)
	}

	// Connect to Redis
	rdb, err := database.ConnectRedis(cfg)
	if err != nil {
		log.Fatalf("Could not connect to redis: %v", err)
	}

	users := storage.NewUsers(db)
	vpnService := vpn.NewService(cfg)
	paymentClient := payment.NewClient(cfg.YookassaShopID, cfg.YookassaKey)

	tgBot, err := bot.NewBot(cfg, users, vpnService, paymentClient, rdb)
	if err != nil {
		log.Fatalf("Could not create bot: %v", err)
	}
	notifier := notify.NewTelegram(tgBot.Instance)

	checker := worker.NewChecker(users, notifier, vpnService)

	// Admin flags are rebuilt from the allow-list once per process start.
	if err := checker.SyncAdmins(cfg.AdminIDs); err != nil {
		log.Fatalf("Admin sync failed: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go checker.Start(ctx)

	// Payment webhook server
	webhookHandler := payment.NewHandler(cfg, users, vpnService, notifier, db)
	mux := http.NewServeMux()
	mux.HandleFunc("/webhook/yookassa", webhookHandler.HandleWebhook)
	go func() {
		log.Printf("Payment webhook listening on %s", cfg.WebhookAddr)
		if err := http.ListenAndServe(cfg.WebhookAddr, mux); err != nil {
			log.Printf("Webhook server stopped: %v", err)
		}
	}()

	log.Println("Service started successfully")
	tgBot.Start()
}
