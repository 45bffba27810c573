package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"presence-tracker-backend/config"
	"presence-tracker-backend/internal/api"
	"presence-tracker-backend/internal/db"
	"presence-tracker-backend/internal/model"
	"presence-tracker-backend/internal/notification"
	"presence-tracker-backend/internal/parse"
	"presence-tracker-backend/internal/presence"
	"presence-tracker-backend/internal/scanner"
	"presence-tracker-backend/internal/store"

	"github.com/SherClockHolmes/webpush-go"
	"github.com/joho/godotenv"
)

func main() {
	// Setup logger
	logger := log.New(os.Stdout, "presence-backend ", log.LstdFlags)

	// A missing .env is normal in production.
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		logger.Printf("failed to read .env: %v", err)
	}

	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "./config/config.yaml" // Default path for local development
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		logger.Fatalf("failed to load configuration from %s: %v", configPath, err)
	}
	logger.Printf("configuration loaded successfully from %s", configPath)

	gormDB, err := db.Init(&cfg.Database)
	if err != nil {
		logger.Fatalf("failed to initialize database: %v", err)
	}
	logger.Println("database initialized successfully")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	appStore := store.NewGormStore(gormDB)
	if n, err := appStore.EnsureMembers(ctx, seedMembers(cfg.Members)); err != nil {
		logger.Fatalf("failed to seed members: %v", err)
	} else if n > 0 {
		logger.Printf("registered %d members from config", n)
	}

	engine := presence.NewEngine(&cfg.Presence, appStore)
	if err := engine.LoadMode(ctx); err != nil {
		logger.Fatalf("failed to load scanner mode: %v", err)
	}

	var webpushOptions *webpush.Options
	var pool *notification.WorkerPool
	if cfg.Push.Enabled() {
		webpushOptions = &webpush.Options{
			VAPIDPublicKey:  cfg.Push.PublicKey,
			VAPIDPrivateKey: cfg.Push.PrivateKey,
			Subscriber:      cfg.Push.Subject,
			TTL:             cfg.Push.TTL,
		}
		pool = notification.NewWorkerPool(cfg.WorkerPool.Size, gormDB, webpushOptions)
		pool.Start(ctx)
		engine.SetNotifier(pool)
		logger.Printf("push notifications enabled (%d workers)", cfg.WorkerPool.Size)
	} else {
		logger.Println("VAPID keys not configured; push notifications disabled")
	}

	sweeper := presence.NewSweeper(&cfg.Presence, appStore)
	sweeper.Start(ctx)

	var reader scanner.Reader
	switch {
	case !cfg.Scanner.Enabled:
	case cfg.Scanner.Mode == "simulate":
		reader = scanner.NewSimulatedReader()
		logger.Println("scanner in simulate mode; queue reads with POST /api/admin/inject")
	case cfg.Scanner.Device != "":
		lr, err := scanner.OpenDevice(cfg.Scanner.Device)
		if err != nil {
			logger.Printf("RFID reader unavailable, falling back to test mode: %v", err)
		} else {
			defer lr.Close()
			reader = lr
		}
	}
	scannerSvc := scanner.NewService(&cfg.Scanner, reader, engine)
	go scannerSvc.Run(ctx)

	handler := api.NewHandler(appStore, engine, scannerSvc, sweeper, webpushOptions)
	router := api.NewRouter(&cfg.Server, handler)
	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: router,
	}

	go func() {
		logger.Printf("HTTP server starting on port %d", cfg.Server.Port)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatalf("HTTP server ListenAndServe: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	<-stop
	logger.Println("Shutdown signal received, stopping services...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Printf("HTTP server Shutdown: %v", err)
	}
	sweeper.Stop()
	cancel()
	if pool != nil {
		pool.Wait()
	}

	logger.Println("Server gracefully stopped")
}

func seedMembers(seeds []config.MemberSeed) []model.Member {
	members := make([]model.Member, 0, len(seeds))
	for _, s := range seeds {
		id := parse.NormalizeTag(s.ID, false)
		if id == "" || s.Name == "" {
			continue
		}
		m := model.Member{ID: id, Name: s.Name}
		if s.Category != "" {
			category := s.Category
			m.Category = &category
		}
		if s.BoatClass != "" {
			boatClass := s.BoatClass
			m.BoatClass = &boatClass
		}
		members = append(members, m)
	}
	return members
}
