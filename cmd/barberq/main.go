package main

import (
	"context"
	"expvar"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"barberq/internal/config"
	"barberq/internal/estimate"
	"barberq/internal/httpapi"
	"barberq/internal/hub"
	"barberq/internal/queue"
	"barberq/internal/store"
	"barberq/internal/store/memory"
	"barberq/internal/store/postgres"
	"barberq/internal/telemetry"
	"barberq/internal/worker"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

func main() {
	cfg := config.Load()
	shutdownTelemetry := telemetry.Setup("barberq")
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = shutdownTelemetry(ctx)
	}()

	var st store.Store
	if cfg.DatabaseURL != "" {
		pool, err := pgxpool.New(context.Background(), cfg.DatabaseURL)
		if err != nil {
			log.Fatalf("db connect: %v", err)
		}
		defer pool.Close()
		st = postgres.NewStore(pool)
	} else {
		log.Printf("DB_DSN not set, using in-memory store")
		st = memory.NewStore()
	}

	var cache *estimate.Cache
	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			log.Fatalf("redis url: %v", err)
		}
		client := redis.NewClient(opts)
		defer client.Close()
		cache = estimate.NewCache(client, cfg.EstimateCacheTTL)
	}

	estimator := estimate.New(st, estimate.Config{
		WindowDays:        cfg.EstimateWindowDays,
		MaxSamples:        cfg.EstimateMaxSamples,
		MinSamples:        cfg.EstimateMinSamples,
		DefaultAvgMinutes: cfg.DefaultAvgMinutes,
	}, cache)
	reconciler := queue.NewReconciler(st)
	views := queue.NewViews(st, estimator, reconciler)

	h := hub.New()
	notifier := hub.NewBoardNotifier(h, views)
	scheduler := queue.NewScheduler(st, estimator, notifier)

	handler := httpapi.NewHandler(scheduler, views, st)
	limiter := httpapi.NewRateLimiter(httpapi.RateLimitConfig{
		IPPerMinute:     cfg.RateLimitPerMinute,
		IPBurst:         cfg.RateLimitBurst,
		TenantPerMinute: cfg.TenantRateLimitPerMinute,
		TenantBurst:     cfg.TenantRateLimitBurst,
	})

	mux := http.NewServeMux()
	mux.Handle("/metrics", expvar.Handler())
	mux.Handle("/realtime/", hub.Handler(h, "/realtime"))
	mux.Handle("/", handler.Routes())

	chain := httpapi.AuthMiddleware(st, mux)
	chain = limiter.Middleware(chain)
	chain = httpapi.LoggingMiddleware(chain)
	otelHandler := otelhttp.NewHandler(chain, "barberq")

	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      otelHandler,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	rootCtx, cancelRoot := context.WithCancel(context.Background())
	defer cancelRoot()

	go func() {
		log.Printf("barberq listening on %s", server.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	}()

	go func() {
		if cfg.ReconcileInterval <= 0 {
			return
		}
		ticker := time.NewTicker(cfg.ReconcileInterval)
		defer ticker.Stop()
		for {
			select {
			case <-rootCtx.Done():
				return
			case <-ticker.C:
				ctx, cancel := context.WithTimeout(rootCtx, 10*time.Second)
				tenants, err := st.ListTenants(ctx)
				if err != nil {
					log.Printf("list tenants error: %v", err)
					cancel()
					continue
				}
				for _, tenantID := range tenants {
					if err := reconciler.Sweep(ctx, tenantID); err != nil {
						log.Printf("reconcile sweep error tenant=%s: %v", tenantID, err)
					}
				}
				cancel()
			}
		}
	}()

	if len(cfg.KafkaBrokers) > 0 {
		writer := worker.NewWriter(cfg.KafkaBrokers, cfg.KafkaTopic)
		defer writer.Close()
		dispatcher := worker.NewDispatcher(st, writer, worker.Config{BatchSize: cfg.OutboxBatchSize})
		go dispatcher.RunLoop(rootCtx, cfg.OutboxInterval)
	}

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop
	cancelRoot()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		log.Printf("shutdown error: %v", err)
	}
}
