package main

import (
	"context"
	"fmt"
	"log"
	"math"
	"os"
	"time"

	"github.com/gin-gonic/gin"

	"voxlink-backend/internal/config"
	callHandler "voxlink-backend/internal/handler/http/call"
	pushHandler "voxlink-backend/internal/handler/http/push"
	wsHandler "voxlink-backend/internal/handler/ws"
	"voxlink-backend/internal/middleware"
	cassandraRepo "voxlink-backend/internal/repository/cassandra"
	"voxlink-backend/internal/repository/cockroach"
	redisRepo "voxlink-backend/internal/repository/redis"
	callService "voxlink-backend/internal/service/call"
	presenceService "voxlink-backend/internal/service/presence"
	"voxlink-backend/pkg/constants"
	"voxlink-backend/pkg/database"
	"voxlink-backend/pkg/jwt"
	"voxlink-backend/pkg/logger"
	"voxlink-backend/pkg/metrics"
	"voxlink-backend/pkg/push"
)

func main() {
	ctx := context.Background()

	// 1. Logger and configuration
	logger.InitDefault()
	defer logger.Sync()

	cfg := config.Load()
	if cfg.IsProduction() && len(cfg.JWTSecret) < 32 {
		log.Fatal("JWT_SECRET must be at least 32 characters in production")
	}

	jwtManager := jwt.NewJWTManager(cfg.JWTSecret, constants.AccessTokenExpiry)

	// 2. Connect to CockroachDB for call records with exponential backoff retry
	var db *database.CockroachDB
	var err error

	maxRetries := 5
	baseDelay := 1 * time.Second
	maxDelay := 30 * time.Second

	db, err = database.NewCockroachDBFromEnv(ctx)
	if err != nil {
		for attempt := 2; attempt <= maxRetries; attempt++ {
			delay := time.Duration(float64(baseDelay) * math.Pow(2, float64(attempt-1)))
			if delay > maxDelay {
				delay = maxDelay
			}
			log.Printf("⚠️  CockroachDB connection attempt %d failed: %v. Retrying in %v...", attempt-1, err, delay)
			time.Sleep(delay)

			db, err = database.NewCockroachDBFromEnv(ctx)
			if err == nil {
				break
			}
		}
	}
	if err != nil {
		log.Fatalf("Failed to connect to CockroachDB after %d attempts: %v", maxRetries, err)
	}
	defer db.Close()
	log.Println("✅ Connected to CockroachDB")

	callRepo := cockroach.NewCallRepository(db.Pool)
	userRepo := cockroach.NewUserRepository(db.Pool)

	// 3. Redis for presence mirroring, token revocation, and push tokens.
	// The service stays up without it; those concerns degrade gracefully.
	var redisDB *database.RedisDB
	redisDB, err = database.NewRedisDBFromEnv()
	if err != nil {
		log.Printf("Warning: Failed to connect to Redis: %v", err)
		log.Println("Running without presence mirror, revocation checks, and mobile push")
		redisDB = nil
	} else {
		defer redisDB.Close()
		log.Println("✅ Connected to Redis")
	}

	// 4. Cassandra for the signaling audit log (optional)
	var signalLogger wsHandler.SignalLogger
	var signalLog callHandler.SignalLog
	cassandraDB, err := database.NewCassandraDBFromEnv()
	if err != nil {
		log.Printf("Warning: Failed to connect to Cassandra: %v", err)
		log.Println("Running without signaling audit log")
	} else {
		defer cassandraDB.Close()
		signalRepo := cassandraRepo.NewSignalRepository(cassandraDB.Session)
		signalLogger = signalRepo
		signalLog = signalRepo
		log.Println("✅ Connected to Cassandra")
	}

	// 5. Metrics
	appMetrics := metrics.NewMetrics(cfg.ServiceName)
	prometheusMiddleware := middleware.NewPrometheusMiddleware(appMetrics)

	// 6. Presence registry and hub
	var mirror presenceService.Mirror
	if redisDB != nil {
		mirror = redisRepo.NewPresenceRepository(redisDB.Client)
	}
	registry := presenceService.NewRegistry(mirror, userRepo)
	presenceHub := wsHandler.NewPresenceHub(registry, appMetrics)

	// 7. Mobile push for offline receivers
	var pusher callService.MobilePusher
	var pushHdlr *pushHandler.Handler
	if redisDB != nil {
		providers := push.NewProvidersFromEnv()
		tokenRepo := redisRepo.NewPushTokenRepository(redisDB.Client)
		pusher = push.NewService(providers, tokenRepo, appMetrics)
		pushHdlr = pushHandler.NewHandler(tokenRepo)
		log.Printf("✅ Push service initialized (%d providers)", len(providers))
	}

	// 8. Signaling rooms and the call lifecycle service
	roomHub := wsHandler.NewRoomHub(callRepo, signalLogger, appMetrics)
	callSvc := callService.NewService(callRepo, userRepo, presenceHub, roomHub, pusher, appMetrics)
	roomHub.SetLifecycle(callSvc)
	defer callSvc.Shutdown()

	callHdlr := callHandler.NewHandler(callSvc, signalLog)

	// 9. Gin router
	router := gin.New()

	trustedProxies := []string{}
	if os.Getenv("ENV") == "production" {
		trustedProxies = []string{
			"https://api.voxlink.io",
			"https://*.voxlink.io",
		}
	} else {
		trustedProxies = []string{
			"http://localhost:3000",
			"http://localhost:8080",
			"http://127.0.0.1:3000",
			"http://127.0.0.1:8080",
		}
	}
	router.SetTrustedProxies(trustedProxies)

	router.Use(middleware.Recovery())
	router.Use(middleware.RequestLogger())
	router.Use(middleware.CORSMiddleware())
	router.Use(prometheusMiddleware.Handler())

	// Health check
	router.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{
			"status":  "healthy",
			"service": cfg.ServiceName,
			"time":    time.Now().UTC(),
		})
	})

	// Metrics endpoint (for Prometheus scraping)
	router.GET("/metrics", middleware.MetricsHandler())

	var revocationChecker middleware.RevocationChecker
	if redisDB != nil {
		revocationChecker = middleware.NewRedisRevocationChecker(redisDB.Client)
	}
	authMiddleware := middleware.AuthMiddleware(jwtManager, revocationChecker)

	// Call lifecycle routes (all require authentication)
	calls := router.Group("/v1/calls")
	calls.Use(authMiddleware)
	{
		calls.POST("", callHdlr.InitiateCall)
		calls.POST("/:id/ringing", callHdlr.MarkRinging)
		calls.POST("/:id/accept", callHdlr.AcceptCall)
		calls.POST("/:id/reject", callHdlr.RejectCall)
		calls.POST("/:id/cancel", callHdlr.CancelCall)
		calls.POST("/:id/end", callHdlr.EndCall)
		calls.GET("/:id", callHdlr.GetCall)
		calls.GET("/:id/signals", callHdlr.GetCallSignals)
		calls.GET("/active", callHdlr.ListActiveCalls)
		calls.GET("/history", callHdlr.ListCallHistory)
		calls.GET("/missed", callHdlr.ListMissedCalls)
	}

	// Device push token registration (needs Redis)
	if pushHdlr != nil {
		tokens := router.Group("/v1/push")
		tokens.Use(authMiddleware)
		{
			tokens.POST("/tokens", pushHdlr.RegisterToken)
			tokens.DELETE("/tokens", pushHdlr.UnregisterToken)
		}
	}

	// WebSocket endpoints: presence/notification channel and signaling rooms
	sockets := router.Group("/v1/ws")
	sockets.Use(authMiddleware)
	{
		sockets.GET("/presence", presenceHub.ServeWS)
		sockets.GET("/calls", roomHub.ServeWS)
	}

	// 10. Start server
	addr := fmt.Sprintf(":%s", cfg.Port)

	log.Printf("🚀 Call Service starting on port %s\n", cfg.Port)
	log.Println("📡 Presence channel: /v1/ws/presence")
	log.Println("📡 Signaling rooms:  /v1/ws/calls")
	if err := router.Run(addr); err != nil {
		log.Fatalf("Failed to start server: %v", err)
	}
}
