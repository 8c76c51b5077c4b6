package server

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/naitive/backend/internal/auth"
	"github.com/naitive/backend/internal/config"
	"github.com/naitive/backend/internal/http/handlers"
	"github.com/naitive/backend/internal/http/middleware"
	"github.com/naitive/backend/internal/version"
	"github.com/naitive/backend/internal/ws"
)

type Dependencies struct {
	Pinger             handlers.Pinger
	Cache              handlers.Pinger
	JWTManager         *auth.JWTManager
	FlexWebhookHandler *handlers.FlexWebhookHandler
	SyncRequestHandler *handlers.SyncRequestHandler
	WSHandler          *ws.Handler
}

func NewRouter(cfg config.Config, logger *slog.Logger, deps Dependencies) *gin.Engine {
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.Info("request",
			"method", c.Request.Method,
			"path", c.FullPath(),
			"status", c.Writer.Status(),
			"duration_ms", time.Since(start).Milliseconds(),
		)
	})

	health := handlers.NewHealthHandler(deps.Pinger, deps.Cache)
	meta := handlers.NewMetaHandler(cfg.Env, version.Version, cfg.SyncAutoApproveUpdates)

	r.GET("/health", health.Health)
	r.GET("/ready", health.Ready)
	r.GET("/v1/meta", meta.GetMeta)

	if deps.FlexWebhookHandler != nil {
		r.POST("/v1/webhooks/flex/lenders",
			middleware.RequestBodyLimit(cfg.RequestBodyLimitBytes),
			middleware.RequireSharedSecret(cfg.FlexWebhookHeader, cfg.FlexWebhookSecret),
			deps.FlexWebhookHandler.Receive,
		)
	}

	if deps.JWTManager != nil {
		admin := r.Group("/v1")
		admin.Use(middleware.RequireAuth(deps.JWTManager), middleware.RequireRole(auth.RoleAdmin))

		if h := deps.SyncRequestHandler; h != nil {
			review := admin.Group("/lender-sync")
			review.GET("/requests", h.ListRequests)
			review.GET("/requests/:id", h.GetRequest)
			review.GET("/pending-count", h.PendingCount)
			review.POST("/requests/:id/approve", h.Approve)
			review.POST("/requests/:id/reject", h.Reject)
			review.POST("/requests/:id/merge", h.Merge)
		}
		if deps.WSHandler != nil {
			admin.GET("/ws", deps.WSHandler.HandleWebSocket)
		}
	}

	r.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{"error": "not_found"})
	})

	return r
}
