package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"

	"github.com/butlernet/jobboard/pkg/agent"
	"github.com/butlernet/jobboard/pkg/api"
	"github.com/butlernet/jobboard/pkg/board"
	"github.com/butlernet/jobboard/pkg/config"
	"github.com/butlernet/jobboard/pkg/logging"
	"github.com/butlernet/jobboard/pkg/metrics"
	"github.com/butlernet/jobboard/pkg/registry"
	"github.com/butlernet/jobboard/pkg/store"
)

func main() {
	cfgFile := flag.String("config", "", "config file path (default: ./boardd.yaml)")
	flag.Parse()

	cfg, err := config.Load(*cfgFile)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	log.Println("Starting job board daemon")
	log.Printf("Listen address: %s", cfg.ListenAddr)

	logger := logging.NewLogger(logging.ParseLevel(cfg.LogLevel), cfg.LogJSON)

	reg := registry.New()
	st := store.NewMemoryStore()
	jb := board.NewJobBoard(reg, st, logger)
	if cfg.ExecuteOnAssign {
		jb.EnableExecutionHandoff()
	}

	exporter := metrics.NewBoardExporter(st, reg)
	jb.SetMetricsRecorder(exporter)

	// Optional declarative fleet of in-process workers
	if cfg.FleetFile != "" {
		fleet, err := config.LoadFleet(cfg.FleetFile)
		if err != nil {
			log.Fatalf("Failed to load fleet: %v", err)
		}
		for _, workerCfg := range fleet.Workers {
			ag := agent.New(workerCfg, logger)
			if err := reg.Register(ag.Worker()); err != nil {
				log.Fatalf("Failed to register worker %s: %v", workerCfg.WorkerID, err)
			}
		}
		log.Printf("Registered %d fleet workers", len(fleet.Workers))
	}

	handler := api.NewBoardHandler(jb, logger)
	handler.SetDefaultBidWindow(cfg.DefaultBidWindowSeconds)
	router := mux.NewRouter()
	handler.RegisterRoutes(router)
	router.Handle("/metrics", exporter).Methods("GET")

	srv := &http.Server{
		Addr:         cfg.ListenAddr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Printf("Job board listening on %s", cfg.ListenAddr)
		log.Println("API endpoints:")
		log.Println("  POST   /workers/register")
		log.Println("  GET    /workers")
		log.Println("  DELETE /workers/{id}")
		log.Println("  POST   /jobs")
		log.Println("  GET    /jobs")
		log.Println("  GET    /jobs/{id}")
		log.Println("  GET    /jobs/{id}/bids")
		log.Println("  GET    /jobs/{id}/result")
		log.Println("  POST   /jobs/{id}/cancel")
		log.Println("  GET    /metrics")
		log.Println("  GET    /health")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	log.Println("Shutting down...")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Printf("Shutdown error: %v", err)
	}
}
