package route

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"lms-agent/api"
	"lms-agent/config"
	"lms-agent/service"
)

// New builds the engine with middleware and routes registered.
func New(cfg config.ServerConfig, chatSvc *service.ChatService, logger *slog.Logger) (*gin.Engine, error) {
	if cfg.Debug {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	if err := r.SetTrustedProxies(cfg.TrustedProxies); err != nil {
		return nil, err
	}
	r.Use(
		api.RequestIDMiddleware(),
		api.RecoveryMiddleware(logger),
		api.SecurityHeadersMiddleware(),
		api.LoggingMiddleware(logger),
	)
	Register(r, cfg, chatSvc)
	return r, nil
}

func Register(r *gin.Engine, cfg config.ServerConfig, chatSvc *service.ChatService) {
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	chatGroup := r.Group("/chat")
	{
		chatGroup.POST("", api.ChatHandler(chatSvc, cfg.MaxBodyBytes))
		chatGroup.GET("/capabilities", api.CapabilitiesHandler(chatSvc))
	}
}
