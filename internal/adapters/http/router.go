package http

import (
	"context"
	"os"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/teamvoice/internal/adapters/signal"
	"github.com/dkeye/teamvoice/internal/app/orch"
	"github.com/dkeye/teamvoice/internal/config"
)

func SetupRouter(ctx context.Context, cfg *config.Config, orch *orch.Orchestrator) *gin.Engine {
	if cfg.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	if cfg.Mode == "debug" {
		r.Use(gin.Logger())
	}
	r.Use(gin.Recovery())

	if st, err := os.Stat(cfg.StaticPath); err == nil && st.IsDir() {
		r.Static("/static", cfg.StaticPath)
		r.GET("/", func(c *gin.Context) {
			c.File(cfg.StaticPath + "/index.html")
		})
	} else {
		log.Warn().Str("module", "adapters.http").Str("static", cfg.StaticPath).Msg("static path missing, not serving UI")
	}

	r.GET("/healthz", handleHealth(orch))

	api := r.Group("/api")
	api.GET("/rooms", handleListRooms(orch))
	api.GET("/rooms/:room", handleGetRoom(orch))

	limiter := signal.NewJoinRateLimiter(cfg.JoinRate, cfg.JoinBurst)
	ctrl := signal.NewSignalWSController(orch, limiter, signal.OptionsFromConfig(cfg))
	api.GET("/ws/signal", func(c *gin.Context) {
		log.Debug().Str("module", "adapters.http").Str("remote", c.ClientIP()).Msg("ws signal endpoint hit")
		ctrl.HandleSignal(ctx, c)
	})

	log.Info().Str("module", "adapters.http").Msg("router setup")
	return r
}
