package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"nssportal/internal/config"
	"nssportal/internal/metrics"
	"nssportal/internal/portal"
	"nssportal/internal/queue"
	"nssportal/internal/roster"
	"nssportal/internal/store"
)

// Worker consumes roster events from redis and sweeps dangling member ids
// out of program rosters.
func main() {
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		log.Fatalf("config: %v", err)
	}
	if cfg.StoreBackend != config.BackendPostgres || cfg.QueueBackend != config.BackendRedis {
		log.Fatalf("worker needs STORE_BACKEND=postgres and QUEUE_BACKEND=redis; the API sweeps in-process otherwise")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Graceful shutdown
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Println("shutdown signal received")
		cancel()
	}()

	db, err := store.NewDB(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("db connect failed: %v", err)
	}
	defer db.Close()

	redisClient := store.NewRedis(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	defer redisClient.Close()
	if !redisClient.Healthy(ctx) {
		log.Printf("WARNING: redis not reachable at %s, will keep retrying", cfg.RedisAddr)
	}

	q := queue.NewRedisQueue(redisClient.Client, queue.DefaultKey)
	svc := portal.NewService(portal.NewPGStore(db.Pool), nil)
	m := metrics.New(prometheus.DefaultRegisterer)

	if addr := cfg.WorkerMetricsAddr; addr != "" {
		go func() {
			mux := http.NewServeMux()
			mux.Handle("/metrics", promhttp.Handler())
			if err := http.ListenAndServe(addr, mux); err != nil {
				log.Printf("metrics server: %v", err)
			}
		}()
	}

	if err := roster.NewWorker(svc, q, m, cfg.SweepInterval).Run(ctx); err != nil {
		log.Fatalf("queue consume init failed: %v", err)
	}
}
