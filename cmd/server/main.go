// Package main runs the watch-party server: HTTP auth/catalog endpoints and
// the WebSocket session sync engine, with graceful shutdown.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/NWB-044/movietime-gather/config"
	"github.com/NWB-044/movietime-gather/internal/catalog"
	"github.com/NWB-044/movietime-gather/internal/identity"
	"github.com/NWB-044/movietime-gather/internal/middleware"
	"github.com/NWB-044/movietime-gather/internal/realtime"
	"github.com/NWB-044/movietime-gather/internal/session"
	"github.com/NWB-044/movietime-gather/pkg/redis"
	"github.com/NWB-044/movietime-gather/pkg/response"
)

func main() {
	logger := newLogger()
	defer logger.Sync()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("load config", zap.Error(err))
	}

	ctx := context.Background()
	tokenTTL := time.Duration(cfg.Token.ExpireHours) * time.Hour

	var store identity.Store
	if cfg.Redis.Addr != "" {
		rdb, err := redis.NewClient(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, logger)
		if err != nil {
			logger.Fatal("redis", zap.Error(err))
		}
		defer rdb.Close()
		store = identity.NewRedisStore(rdb.Client, tokenTTL)
	} else {
		logger.Info("redis not configured, using in-memory identity store")
		store = identity.NewMemoryStore(tokenTTL)
	}

	manager := session.NewManager(session.Config{
		GracePeriod:    cfg.Session.GracePeriod,
		EventRetention: cfg.Session.EventRetention,
		ChatRetention:  cfg.Session.ChatRetention,
		ChatTail:       cfg.Session.ChatTail,
	}, logger)

	tokens := identity.NewTokenService(cfg.Token.Secret, cfg.Token.ExpireHours)
	verifier := identity.NewEnvVerifier(cfg.Admin.Nickname, cfg.Admin.PasscodeHash, cfg.Admin.Passcode)
	identityHandler := identity.NewHandler(manager, verifier, tokens, store, logger)

	catalogSvc, err := catalog.NewService(cfg.Media.Root, logger)
	if err != nil {
		logger.Fatal("media catalog", zap.Error(err))
	}
	catalogHandler := catalog.NewHandler(catalogSvc)

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.CORS(cfg.Server.CORSAllowedOrigins))
	router.Use(middleware.Logger(logger))

	router.GET("/health", func(c *gin.Context) { response.OK(c, gin.H{"status": "ok"}) })

	router.POST("/auth/admin", identityHandler.AdminLogin)
	router.POST("/auth/viewer", identityHandler.ViewerLogin)

	api := router.Group("")
	api.Use(middleware.Token(tokens))
	{
		api.GET("/catalog", middleware.RequireRole(string(session.RoleAdmin)), catalogHandler.Tree)
		api.GET("/sessions/:id/stats", middleware.RequireRole(string(session.RoleAdmin)), func(c *gin.Context) {
			id, err := uuid.Parse(c.Param("id"))
			if err != nil {
				response.BadRequest(c, "invalid session id")
				return
			}
			sess, ok := manager.Get(id)
			if !ok {
				response.NotFound(c, "session not found")
				return
			}
			response.OK(c, sess.CurrentStats())
		})
	}

	// WebSocket (token in the join frame; no Authorization header required)
	router.GET("/ws", realtime.ServeWs(manager, tokens, store, realtime.Config{
		SendBuffer:    cfg.Session.SendBuffer,
		ValidateMedia: catalogSvc.Contains,
	}, logger))

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
	}

	go func() {
		logger.Info("server listening", zap.String("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	manager.Shutdown("server shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown", zap.Error(err))
	}
	logger.Info("server stopped")
}

func newLogger() *zap.Logger {
	config := zap.NewProductionConfig()
	config.EncoderConfig.TimeKey = "timestamp"
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	logger, _ := config.Build()
	return logger
}
