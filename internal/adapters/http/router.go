package http

import (
	"context"

	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"

	"droidview/internal/adapters/control"
	"droidview/internal/app"
	"droidview/internal/config"
	"droidview/internal/core"
	"droidview/internal/observability"
)

func genClientToken() string {
	return uuid.NewString()
}

func ClientTokenMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		token, _ := c.Cookie("ct")
		if token == "" {
			token = genClientToken()
			c.SetCookie("ct", token, 3600*24*7, "/", "", false, true)
		}
		c.Set("client_token", token)
		c.Next()
	}
}

func SetupRouter(ctx context.Context, cfg *config.Config, reg *app.Registry, keys core.CredentialStore, m *observability.Metrics) *gin.Engine {
	if cfg.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	if cfg.Mode == "debug" {
		r.Use(gin.Logger())
	}
	r.Use(gin.Recovery())

	store := cookie.NewStore([]byte(cfg.Secret))
	r.Use(sessions.Sessions("DroidviewSessions", store))
	r.Use(ClientTokenMiddleware())

	r.Static("/static", cfg.StaticPath)
	r.GET("/", func(c *gin.Context) {
		c.File(cfg.StaticPath + "/index.html")
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	log.Info().Str("module", "adapters.http").Str("static", cfg.StaticPath).Msg("router setup")

	api := r.Group("/api")

	api.GET("/status", func(c *gin.Context) {
		c.JSON(200, gin.H{"sessions": reg.Count()})
	})

	// Diagnostic view of the caller's own session: lifecycle state plus the
	// retained status lines.
	api.GET("/session", func(c *gin.Context) {
		sid := core.SessionID(c.GetString("client_token"))
		entry, ok := reg.Get(sid)
		if !ok {
			c.JSON(404, gin.H{"error": "no session"})
			return
		}
		c.JSON(200, gin.H{
			"state":  entry.Controller.State().String(),
			"recent": entry.Controller.RecentLog(),
		})
	})

	api.GET("/ws/control", func(c *gin.Context) {
		ctrl := control.NewControlWSController(cfg, reg, keys, m)
		log.Info().Str("module", "adapters.http").Str("sid", c.GetString("client_token")).Msg("control endpoint hit")
		ctrl.HandleControl(ctx, c)
	})

	return r
}
