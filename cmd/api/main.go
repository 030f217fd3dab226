package main

import (
	"context"
	"log"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/punchamoorthee/railbridge/internal/api"
	"github.com/punchamoorthee/railbridge/internal/bankdir"
	"github.com/punchamoorthee/railbridge/internal/config"
	"github.com/punchamoorthee/railbridge/internal/ledger"
	"github.com/punchamoorthee/railbridge/internal/rail"
	"github.com/punchamoorthee/railbridge/internal/service"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal(err)
	}

	dbPool, err := pgxpool.New(context.Background(), cfg.DBSource)
	if err != nil {
		log.Fatalf("Unable to connect to database: %v", err)
	}
	defer dbPool.Close()

	fallback, err := ledger.NewDocumentStore(cfg.FallbackDBPath, cfg.StoreTimeout)
	if err != nil {
		log.Fatalf("Unable to open fallback store: %v", err)
	}
	defer fallback.Close()

	// Initialize Layers
	primary := ledger.NewPostgresStore(dbPool, cfg.StoreTimeout)
	banks := bankdir.NewDirectory(dbPool, cfg.StoreTimeout)
	railClient := rail.NewClient(cfg.RailBaseURL, &http.Client{Timeout: cfg.RailTimeout})
	orchestrator := service.NewOrchestrator(banks, railClient, primary, fallback)
	handler := api.NewHandler(orchestrator)

	// Router
	r := mux.NewRouter()
	r.Handle("/metrics", promhttp.Handler())
	r.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"ok"}`))
	})
	handler.Routes(r)

	log.Printf("Server starting on :%s (env=%s, rail=%s)", cfg.Port, cfg.Env, cfg.RailBaseURL)
	if err := http.ListenAndServe(":"+cfg.Port, r); err != nil {
		log.Fatal(err)
	}
}
