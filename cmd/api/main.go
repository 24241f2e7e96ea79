package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/arecko/backend/internal/accounts"
	"github.com/arecko/backend/internal/config"
	"github.com/arecko/backend/internal/database"
	"github.com/arecko/backend/internal/events"
	"github.com/arecko/backend/internal/handlers"
	"github.com/arecko/backend/internal/infra"
	"github.com/arecko/backend/internal/mailer"
	"github.com/arecko/backend/internal/media"
	"github.com/arecko/backend/internal/metrics"
	"github.com/arecko/backend/internal/middleware"
	"github.com/arecko/backend/internal/newsletter"
	"github.com/arecko/backend/internal/referrals"
	"github.com/arecko/backend/internal/reputation"
	"github.com/arecko/backend/internal/solicit"
	"github.com/arecko/backend/internal/websocket"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found")
	}

	cfg, err := config.LoadConfig(configPath())
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	m := metrics.New(prometheus.DefaultRegisterer)
	health := map[string]handlers.HealthCheck{}

	// Persistence
	store := openStore(ctx, cfg)
	defer store.Close()
	health["database"] = store.Ping

	// Media
	blobs := openMediaStore(cfg)
	var video *media.VideoProcessor
	if cfg.Media.CompressVideos {
		video = media.NewVideoProcessor(nil, media.VideoConfig{
			FFmpegPath: cfg.Media.FFmpegPath,
		})
	}
	uploader := media.NewUploader(blobs, video, m)
	resolver := media.NewResolver(cfg.Media.BaseURL, cfg.Media.CloudName)

	// Mail
	var sender mailer.Sender = mailer.LogSender{}
	if cfg.Mail.Host != "" {
		smtpSender, err := mailer.NewSMTPSender(mailer.SMTPConfig{
			Host:     cfg.Mail.Host,
			Port:     cfg.Mail.Port,
			Username: cfg.Mail.Username,
			Password: cfg.Mail.Password,
			From:     cfg.Mail.From,
		})
		if err != nil {
			log.Fatalf("Failed to configure SMTP: %v", err)
		}
		sender = smtpSender
		log.Printf("📧 SMTP delivery via %s:%d", cfg.Mail.Host, cfg.Mail.Port)
	} else {
		log.Println("⚠️ SMTP_HOST not set, emails are logged only")
	}
	dispatcher := mailer.NewDispatcher(sender, m, mailer.DispatcherConfig{
		Workers:   cfg.Mail.Workers,
		QueueSize: cfg.Mail.QueueSize,
	})
	defer dispatcher.Close()
	links := mailer.Links{
		ReferralURL:  cfg.Server.PublicURL + "/post/",
		DashboardURL: cfg.Server.PublicURL + "/business/dashboard/",
	}

	// API quota
	var quota solicit.Quota = solicit.NewMemoryQuota(cfg.Limits.APIDailyRequests)
	if cfg.Redis.Addr != "" {
		rdb, err := infra.NewGoRedisAdapter(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			log.Printf("⚠️ Redis unavailable (%v), using in-memory quota", err)
		} else {
			defer rdb.Close()
			quota = solicit.NewRedisQuota(rdb, cfg.Limits.APIDailyRequests)
			health["redis"] = rdb.Ping
		}
	}

	// Events
	bus := events.NewBus()
	var emitter events.Emitter = bus
	if cfg.Events.PubSubProject != "" && cfg.Events.PubSubTopic != "" {
		ps, err := events.NewPubSubBus(ctx, cfg.Events.PubSubProject, cfg.Events.PubSubTopic)
		if err != nil {
			log.Printf("⚠️ Pub/Sub unavailable (%v), events stay in-process", err)
		} else {
			defer ps.Close()
			bus, emitter = ps.Bus, ps
			health["pubsub"] = ps.HealthCheck
		}
	}
	feed := websocket.NewFeedStreamer(bus, cfg.Server.CORSAllowOrigins)
	go feed.Run(ctx)

	// Newsletter drafts
	var model newsletter.TextModel
	if cfg.Newsletter.GeminiAPIKey != "" {
		gm, err := newsletter.NewGeminiModel(ctx, cfg.Newsletter.GeminiAPIKey, cfg.Newsletter.Model)
		if err != nil {
			log.Printf("⚠️ Gemini unavailable (%v), newsletters use the template", err)
		} else {
			model = gm
		}
	}
	drafter := newsletter.NewGenerator(model, newsletter.Config{
		Timeout: time.Duration(cfg.Newsletter.TimeoutSeconds) * time.Second,
	}, m)

	// Services
	acc := accounts.NewService(store, uploader, accounts.NewTokenIssuer(cfg.Auth.JWTSecret, cfg.TokenTTL()))
	refs := referrals.NewService(referrals.Deps{
		Store:    store,
		Engine:   reputation.NewEngine(store),
		Resolver: resolver,
		Media:    uploader,
		Mail:     dispatcher,
		Links:    links,
		Events:   emitter,
		Metrics:  m,
	})
	sol := solicit.NewSolicitor(store, dispatcher, links, quota, m)

	limiter := middleware.NewRateLimiter(middleware.RateLimitConfig{
		MaxCallsPerMinute: cfg.Limits.PublicCallsPerMin,
		TrustedProxies:    cfg.Server.TrustedProxies,
	})
	defer limiter.Stop()

	router := handlers.NewRouter(handlers.Deps{
		Accounts:       acc,
		Referrals:      refs,
		Solicitor:      sol,
		Newsletters:    dispatcher,
		Drafter:        drafter,
		Resolver:       resolver,
		MediaStore:     blobs,
		Bus:            bus,
		Feed:           feed.HandleWebSocket,
		Metrics:        promhttp.Handler(),
		Health:         health,
		Limiter:        limiter,
		CORSOrigins:    cfg.Server.CORSAllowOrigins,
		MaxUploadBytes: int64(cfg.Media.MaxUploadMB) << 20,
		DailyLimit:     cfg.Limits.APIDailyRequests,
		AccessLog:      os.Stdout,
	})

	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  60 * time.Second,
		WriteTimeout: 120 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-sigChan
		log.Println("Received shutdown signal, shutting down gracefully...")

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout())
		defer shutdownCancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Printf("Server shutdown error: %v", err)
		}
		cancel()
	}()

	log.Printf("🚀 Arecko API starting on port %s (env=%s)", cfg.Server.Port, cfg.Server.Env)
	log.Printf("📊 Health check: http://localhost:%s/health", cfg.Server.Port)

	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatalf("Server failed to start: %v", err)
	}

	log.Println("Server stopped")
}

// configPath returns CONFIG_PATH, or config.yaml when it exists.
func configPath() string {
	if p := os.Getenv("CONFIG_PATH"); p != "" {
		return p
	}
	if _, err := os.Stat("config.yaml"); err == nil {
		return "config.yaml"
	}
	return ""
}

func openStore(ctx context.Context, cfg *config.Config) database.Store {
	if cfg.Database.URL == "" {
		log.Println("⚠️ DATABASE_URL not set, using in-memory store")
		return database.NewMemoryStore()
	}
	store, err := database.NewPostgresStore(ctx, cfg.Database.URL, cfg.Database.Migrate)
	if err != nil {
		log.Fatalf("Failed to connect to Postgres: %v", err)
	}
	log.Println("✅ Connected to Postgres")
	return store
}

func openMediaStore(cfg *config.Config) media.Store {
	if cfg.Media.MinioEndpoint != "" {
		s, err := media.NewMinioStore(media.MinioConfig{
			Endpoint:        cfg.Media.MinioEndpoint,
			AccessKeyID:     cfg.Media.MinioAccessKey,
			SecretAccessKey: cfg.Media.MinioSecretKey,
			Bucket:          cfg.Media.MinioBucket,
			Region:          cfg.Media.MinioRegion,
			UseSSL:          cfg.Media.MinioUseSSL,
		})
		if err != nil {
			log.Fatalf("Failed to connect to MinIO: %v", err)
		}
		log.Printf("✅ Media stored in MinIO bucket %s", cfg.Media.MinioBucket)
		return s
	}
	s, err := media.NewLocalStore(cfg.Media.Root)
	if err != nil {
		log.Fatalf("Failed to open media root: %v", err)
	}
	log.Printf("📁 Media stored under %s", cfg.Media.Root)
	return s
}
