package main

import (
	"context"
	"log"
	"net/http"
	"time"

	"github.com/rgeron/SwapDecksMarketplace/internal/api"
	"github.com/rgeron/SwapDecksMarketplace/internal/config"
	"github.com/rgeron/SwapDecksMarketplace/internal/engine"
	"github.com/rgeron/SwapDecksMarketplace/internal/gateway"
	"github.com/rgeron/SwapDecksMarketplace/internal/store"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal(err)
	}

	ledgerStore, err := store.NewPostgresStore(cfg.DBSource)
	if err != nil {
		log.Fatalf("Unable to connect to database: %v", err)
	}
	defer ledgerStore.Close()

	// Initialize Layers
	processor := gateway.NewProcessorClient(cfg)
	eng := engine.New(ledgerStore, processor, cfg)
	handler := api.NewHandler(ledgerStore, eng)
	router := api.NewRouter(handler)

	// Background sweep failing purchase intents nothing will unblock.
	go func() {
		ticker := time.NewTicker(time.Hour)
		defer ticker.Stop()
		for range ticker.C {
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			expired, err := eng.ExpireStale(ctx)
			cancel()
			if err != nil {
				log.Printf("intent expiry sweep failed: %v", err)
				continue
			}
			if expired > 0 {
				log.Printf("expired %d stale purchase intents", expired)
			}
		}
	}()

	log.Printf("Server starting on :%s", cfg.Port)
	if err := http.ListenAndServe(":"+cfg.Port, router); err != nil {
		log.Fatal(err)
	}
}
