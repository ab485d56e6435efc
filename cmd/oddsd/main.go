package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/whisper/odds/internal/config"
	"github.com/whisper/odds/internal/httpapi"
	"github.com/whisper/odds/internal/messaging"
	"github.com/whisper/odds/internal/ratelimit"
	"github.com/whisper/odds/internal/session"
)

func main() {
	log.Println("Starting odds session service...")

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	// --- Redis ---
	store, err := session.NewStore(session.RedisConfig{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	if err != nil {
		log.Fatalf("failed to connect to Redis: %v", err)
	}

	opts := []session.Option{}

	// --- NATS (optional) ---
	var natsClient *messaging.NATSClient
	if cfg.NATSURL != "" {
		natsConfig := messaging.DefaultNATSConfig()
		natsConfig.URL = cfg.NATSURL
		natsConfig.Name = cfg.NATSName

		natsClient, err = messaging.NewNATSClient(natsConfig)
		if err != nil {
			log.Fatalf("failed to connect to NATS: %v", err)
		}
		opts = append(opts, session.WithEvents(natsClient))
	}

	manager := session.NewManager(store, opts...)
	api := httpapi.NewServer(manager, httpapi.Options{
		MaxBodyBytes: cfg.MaxBodyBytes,
		Limiter:      ratelimit.NewLimiter(store.Client()),
		CreateRule:   ratelimit.CreateRule(cfg.CreateRateLimit, cfg.RateWindow),
		SubmitRule:   ratelimit.SubmitRule(cfg.SubmitRateLimit, cfg.RateWindow),
		Health:       store,
	})

	httpServer := &http.Server{
		Addr:         cfg.ListenAddr,
		Handler:      api,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}

	log.Printf("odds session service running")
	log.Printf("  listen_addr:   %s", cfg.ListenAddr)
	log.Printf("  redis_addr:    %s", cfg.RedisAddr)
	log.Printf("  nats_url:      %s", cfg.NATSURL)
	log.Printf("  create_limit:  %d/%s", cfg.CreateRateLimit, cfg.RateWindow)
	log.Printf("  submit_limit:  %d/%s", cfg.SubmitRateLimit, cfg.RateWindow)

	errCh := make(chan error, 1)
	go func() {
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	// Graceful shutdown.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	select {
	case sig := <-sigCh:
		log.Printf("received signal %v, shutting down...", sig)
	case err := <-errCh:
		log.Printf("http server error: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(ctx); err != nil {
		log.Printf("http shutdown: %v", err)
	}

	if natsClient != nil {
		natsClient.Close()
	}
	store.Close()
}
