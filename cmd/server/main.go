package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"repairbot/config"
	"repairbot/internal/api"
	"repairbot/internal/broker"
	"repairbot/internal/catalog"
	"repairbot/internal/engine"
	"repairbot/internal/invoice"
	"repairbot/internal/messaging"
	"repairbot/internal/payment"
	"repairbot/internal/session"
	"repairbot/internal/store"
	"repairbot/internal/util"
	"repairbot/internal/worker"

	"github.com/gin-gonic/gin"
)

func main() {

	cfg := config.Load()

	if err := util.InitLogger(cfg.Server.Env); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer util.SyncLogger()

	logger := util.GetLogger()
	logger.Info("Starting repairbot")

	tp, err := util.InitTracer("repairbot", cfg.Observ.JaegerEndpoint)
	if err != nil {
		log.Fatalf("Failed to initialize tracer: %v", err)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tp.Shutdown(ctx); err != nil {
			log.Printf("Error shutting down tracer: %v", err)
		}
	}()

	cat := catalog.Default()

	issuer := invoice.NewIssuer(cfg.Business.InvoiceDir, cfg.Business.FontFile, invoice.BusinessInfo{
		Name:     cfg.Business.Name,
		Subtitle: cfg.Business.Subtitle,
		Phone:    cfg.Business.Phone,
		Note1:    cfg.Business.Note1,
		Note2:    cfg.Business.Note2,
	})

	db, err := store.New(cfg.Database.URL, cat, issuer)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()

	if err := db.Migrate(context.Background()); err != nil {
		log.Fatalf("Failed to apply schema: %v", err)
	}
	log.Println("Database connected")

	// Sessions go to Redis when configured; the in-memory store is a
	// single-instance fallback for local development.
	var sessions session.Store
	if cfg.Redis.Addr != "" {
		redisSessions, err := session.NewRedisStore(
			cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB,
			time.Duration(cfg.Business.SessionTTLMinutes)*time.Minute)
		if err != nil {
			log.Fatalf("Failed to connect to Redis: %v", err)
		}
		defer redisSessions.Close()
		sessions = redisSessions
		log.Println("Redis connected")
	} else {
		sessions = session.NewMemoryStore()
		log.Println("Using in-memory sessions")
	}

	producer := broker.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.TopicEvents)
	defer producer.Close()
	log.Println("Kafka producer initialized")

	eventPublisher := broker.NewEventPublisher(producer)

	gateway := payment.NewPayPal(payment.Config{
		BaseURL:       cfg.PayPal.BaseURL,
		ClientID:      cfg.PayPal.ClientID,
		ClientSecret:  cfg.PayPal.ClientSecret,
		Currency:      cfg.PayPal.Currency,
		BrandName:     cfg.Business.Name,
		ReturnBaseURL: cfg.Business.PublicBaseURL,
	})

	sender := messaging.NewClient(cfg.WhatsApp.GraphVersion, cfg.WhatsApp.PhoneNumberID, cfg.WhatsApp.Token)
	admins := engine.NewAdminList(cfg.Business.AdminPhones)

	eng := engine.New(sessions, db, cat, gateway, sender, eventPublisher, admins, engine.Config{
		BusinessName:    cfg.Business.Name,
		SiteURL:         cfg.Business.SiteURL,
		WazeURL:         cfg.Business.WazeURL,
		GoogleReviewURL: cfg.Business.GoogleReviewURL,
		EasyReviewURL:   cfg.Business.EasyReviewURL,
	})

	workerCtx, workerCancel := context.WithCancel(context.Background())
	defer workerCancel()

	consumer := broker.NewConsumer(cfg.Kafka.Brokers, cfg.Kafka.TopicEvents, cfg.Kafka.ConsumerGroup)
	notifier := worker.NewNotifier(consumer, sender, admins)
	go func() {
		if err := notifier.Start(workerCtx); err != nil {
			log.Printf("Notifier worker error: %v", err)
		}
	}()

	if cfg.Server.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	handler := api.NewHandler(eng, cfg.WhatsApp.VerifyToken)
	handler.SetupRoutes(router)

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%s", cfg.Server.Port),
		Handler: router,
	}

	go func() {
		log.Printf("Starting HTTP server on port %s", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("Server forced to shutdown: %v", err)
	}

	workerCancel()
	if err := notifier.Close(); err != nil {
		log.Printf("Notifier close error: %v", err)
	}

	log.Println("Server exited")
}
