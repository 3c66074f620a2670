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

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"nssportal/internal/auth"
	"nssportal/internal/cloudinary"
	"nssportal/internal/config"
	"nssportal/internal/handler"
	"nssportal/internal/httpmiddleware"
	"nssportal/internal/metrics"
	"nssportal/internal/portal"
	"nssportal/internal/queue"
	"nssportal/internal/roster"
	"nssportal/internal/store"
	"nssportal/internal/stories"
)

func main() {
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		log.Fatalf("config: %v", err)
	}

	// Set Gin mode based on environment
	if cfg.Env == "production" || cfg.Env == "prod" {
		gin.SetMode(gin.ReleaseMode)
	}

	if err := runHTTP(cfg); err != nil {
		log.Fatalf("http server failed: %v", err)
	}
}

func runHTTP(cfg config.App) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var (
		db         *store.DB
		portalData portal.Store
		storyData  stories.Store
	)
	switch cfg.StoreBackend {
	case config.BackendPostgres:
		var err error
		db, err = store.NewDB(ctx, cfg.DatabaseURL)
		if err != nil {
			return fmt.Errorf("connect postgres: %w", err)
		}
		defer db.Close()
		if err := db.Migrate(ctx); err != nil {
			return err
		}
		portalData = portal.NewPGStore(db.Pool)
		storyData = stories.NewPGStore(db.Pool)
		log.Println("store: postgres")
	default:
		portalData = portal.NewMemStore()
		storyData = stories.NewMemStore()
		log.Println("store: in-memory, data is lost on restart")
	}

	var rdb *store.Redis
	if cfg.UsesRedis() {
		rdb = store.NewRedis(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		defer rdb.Close()
	}

	var sessions auth.SessionStore = auth.NewMemorySessionStore()
	if cfg.SessionBackend == config.BackendRedis {
		sessions = auth.NewRedisSessionStore(rdb.Client, "session:")
	}

	var q queue.Queue
	if cfg.QueueBackend == config.BackendRedis {
		q = queue.NewRedisQueue(rdb.Client, queue.DefaultKey)
	} else {
		q = queue.NewInMemory(64)
	}

	m := metrics.New(prometheus.DefaultRegisterer)
	svc := portal.NewService(portalData, q)
	if err := svc.Load(ctx); err != nil {
		log.Printf("warning: initial load failed, will retry on demand: %v", err)
	}

	// The worker process owns the redis queue; a memory queue is only
	// visible here, so sweep in-process.
	if cfg.QueueBackend == config.BackendMemory {
		go func() {
			if err := roster.NewWorker(svc, q, m, cfg.SweepInterval).Run(ctx); err != nil {
				log.Printf("roster worker: %v", err)
			}
		}()
	}

	// Cloudinary client (nil when not configured)
	cdn := newCloudinary(cfg.Cloudinary)
	var gallery *stories.Gallery
	var profiles handler.ProfileStorage
	if cdn != nil {
		gallery = stories.NewGallery(storyData, cdn)
		profiles = cdn
	} else {
		gallery = stories.NewGallery(storyData, nil)
	}
	if err := gallery.EnsureDefault(ctx); err != nil {
		log.Printf("warning: seed stories: %v", err)
	}

	mgr := auth.NewManager(auth.ManagerConfig{
		Officer:     auth.Officer(cfg.Officer),
		Issuer:      cfg.JWTIssuer,
		SigningKey:  cfg.JWTSigningKey,
		IdleTimeout: cfg.IdleTimeout,
		NoticeTTL:   cfg.ExpiryNoticeTTL,
	}, portalData, sessions, m)
	defer mgr.Close()

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(gin.LoggerWithConfig(gin.LoggerConfig{
		SkipPaths: []string{"/healthz", "/metrics"},
	}))
	r.Use(cors.New(cors.Config{
		AllowOrigins:     cfg.CORSOrigins,
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization"},
		AllowCredentials: true,
		MaxAge:           24 * time.Hour,
	}))
	r.Use(httpmiddleware.SecurityHeaders())
	r.Use(httpmiddleware.NewLimiter(cfg.RateLimitPerMin, 0).Middleware())

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	r.GET("/healthz", func(c *gin.Context) {
		status := http.StatusOK
		body := gin.H{"status": "ok", "store": cfg.StoreBackend}
		if db != nil {
			ok := db.Healthy(c.Request.Context())
			body["db"] = ok
			if !ok {
				status = http.StatusServiceUnavailable
			}
		}
		if rdb != nil {
			ok := rdb.Healthy(c.Request.Context())
			body["redis"] = ok
			if !ok {
				status = http.StatusServiceUnavailable
			}
		}
		if status != http.StatusOK {
			body["status"] = "degraded"
		}
		c.JSON(status, body)
	})

	handler.New(svc, mgr, gallery, profiles, m).Register(r.Group("/v1"))

	// Graceful shutdown
	srv := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Printf("Starting server on :%s", cfg.HTTPPort)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server error: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("Shutting down server...")

	// Give outstanding requests 10 seconds to complete
	shutdownCtx, stop := context.WithTimeout(context.Background(), 10*time.Second)
	defer stop()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("Server forced shutdown: %v", err)
	}

	log.Println("Server exited")
	return nil
}

func newCloudinary(cfg config.Cloudinary) *cloudinary.Client {
	if cfg.URL != "" {
		c, err := cloudinary.FromURL(cfg.URL, cfg.Folder)
		if err != nil {
			log.Printf("Cloudinary not configured: %v", err)
			return nil
		}
		log.Println("Cloudinary configured:", c.CloudName)
		return c
	}
	if cfg.CloudName != "" && cfg.APIKey != "" && cfg.APISecret != "" {
		log.Println("Cloudinary configured:", cfg.CloudName)
		return cloudinary.New(cfg.CloudName, cfg.APIKey, cfg.APISecret, cfg.Folder)
	}
	log.Println("Cloudinary not configured (CLOUDINARY_URL or CLOUDINARY_CLOUD_NAME / API_KEY / API_SECRET not set)")
	return nil
}
