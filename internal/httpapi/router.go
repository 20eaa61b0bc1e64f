package httpapi

import (
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/suPer8Hu/research-chat/internal/chat"
	"github.com/suPer8Hu/research-chat/internal/common"
	"github.com/suPer8Hu/research-chat/internal/httpapi/handlers"
	"github.com/suPer8Hu/research-chat/internal/httpapi/middleware"
	"go.uber.org/zap"
)

type Options struct {
	// JWTSecret enables bearer auth on the session routes when non-empty.
	JWTSecret string
	// AllowOrigins enables CORS for the listed origins.
	AllowOrigins []string
}

func NewRouter(svc *chat.Service, log *zap.Logger, opts Options) *gin.Engine {
	if log == nil {
		log = zap.NewNop()
	}

	r := gin.New()
	r.HandleMethodNotAllowed = true
	r.Use(middleware.RequestID())
	r.Use(middleware.AccessLog(log.Named("http")))
	r.Use(middleware.Recovery(log))
	if len(opts.AllowOrigins) > 0 {
		r.Use(cors.New(cors.Config{
			AllowOrigins:  opts.AllowOrigins,
			AllowMethods:  []string{http.MethodGet, http.MethodPost, http.MethodOptions},
			AllowHeaders:  []string{"Authorization", "Content-Type", middleware.RequestIDHeader},
			ExposeHeaders: []string{middleware.RequestIDHeader},
			MaxAge:        12 * time.Hour,
		}))
	}

	r.NoRoute(func(c *gin.Context) {
		common.Fail(c, http.StatusNotFound, 40400, "route not found")
	})
	r.NoMethod(func(c *gin.Context) {
		common.Fail(c, http.StatusMethodNotAllowed, 40500, "method not allowed")
	})

	h := handlers.NewHandler(svc, log.Named("handlers"))

	r.GET("/ping", h.Ping)

	api := r.Group("/")
	if opts.JWTSecret != "" {
		api.Use(middleware.AuthRequired(opts.JWTSecret))
	}
	api.GET("/sessions", h.ListSessions)
	api.POST("/sessions", h.CreateSession)
	api.GET("/sessions/:session_id", h.GetSession)
	api.POST("/sessions/:session_id/select", h.SelectSession)
	api.GET("/sessions/:session_id/status", h.SessionStatus)
	api.POST("/sessions/:session_id/messages", h.SendToSession)
	api.POST("/sessions/:session_id/messages/stream", h.SendToSessionStream)
	api.POST("/messages", h.SendToActive)
	return r
}
