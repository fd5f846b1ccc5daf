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

	"github.com/emeraldgrove/clinic-assistant/internal/adapter/llm"
	"github.com/emeraldgrove/clinic-assistant/internal/config"
	"github.com/emeraldgrove/clinic-assistant/internal/policy"
	"github.com/emeraldgrove/clinic-assistant/internal/repository"
	"github.com/emeraldgrove/clinic-assistant/internal/service"
	transport "github.com/emeraldgrove/clinic-assistant/internal/transport/http"
)

func main() {
	cfg := config.Load()

	log.Printf("Starting clinic assistant...")
	log.Printf("HTTP Port: %d", cfg.HTTPPort)
	log.Printf("Database: %s", cfg.DatabaseURL)
	log.Printf("LLM: %s (%s)", cfg.LLMBaseURL, cfg.LLMModel)

	db, err := repository.NewSQLiteStore(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("Failed to initialize store: %v", err)
	}
	defer db.Close()

	ctx := context.Background()
	if err := db.Seed(ctx); err != nil {
		log.Fatalf("Failed to seed clinic data: %v", err)
	}

	llmClient := llm.NewLLMClient(cfg.LLMBaseURL, cfg.LLMAPIKey, cfg.LLMTimeout)

	policyEngine, err := policy.NewEngine(ctx, policy.DefaultPolicy)
	if err != nil {
		log.Fatalf("Failed to initialize policy engine: %v", err)
	}

	svc := service.New(db, llmClient, policyEngine, cfg)
	server := transport.NewServer(svc, db, cfg)

	go func() {
		addr := fmt.Sprintf(":%d", cfg.HTTPPort)
		if err := server.Start(addr); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	log.Printf("Clinic assistant started on port %d", cfg.HTTPPort)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down clinic assistant...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("Failed to shutdown server gracefully: %v", err)
	}

	log.Println("Clinic assistant stopped")
}
