package app

import (
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"firewatch.io/firewatch/internal/api/handlers"
	"firewatch.io/firewatch/internal/api/middleware"
	"firewatch.io/firewatch/internal/config"
	"firewatch.io/firewatch/internal/pkg/logger"
)

// defaultAllowedOrigins is the development allowlist used when no origins are
// configured.
var defaultAllowedOrigins = []string{
	"http://localhost:3000",
	"http://localhost:5173",
}

func newRouter(cfg *config.Config, server *handlers.Server) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery(), middleware.RequestID(), middleware.ErrorHandler())
	router.Use(cors.New(buildCORSConfig(cfg)))

	v1 := router.Group("/api/v1")
	{
		v1.POST("/disasters", server.CreateDisaster)
		v1.GET("/instances/:id", server.GetInstance)
		v1.GET("/availability/:region", server.GetAvailability)
		v1.GET("/failure-logs", server.ListFailureLogs)

		v1.GET("/health/live", server.GetLiveness)
		v1.GET("/health/ready", server.GetReadiness)

		admin := v1.Group("/admin")
		{
			admin.DELETE("/cache/:region", server.InvalidateAvailability)
			// zap's AtomicLevel handler: GET reads the level, PUT changes it.
			admin.Any("/log-level", gin.WrapH(logger.HTTPHandler()))
		}
	}
	return router
}

// buildCORSConfig derives CORS settings from configuration. A wildcard origin
// is honored only with the unsafe flag set, and then without credentials.
func buildCORSConfig(cfg *config.Config) cors.Config {
	corsCfg := cors.DefaultConfig()
	corsCfg.AllowCredentials = cfg.Server.AllowCredentials
	corsCfg.AllowHeaders = append(corsCfg.AllowHeaders, middleware.RequestIDHeader)

	if cfg.Server.UnsafeAllowAllOrigins {
		corsCfg.AllowAllOrigins = true
		corsCfg.AllowCredentials = false
		return corsCfg
	}

	var origins []string
	for _, o := range cfg.Server.AllowedOrigins {
		if o == "*" {
			continue
		}
		origins = append(origins, o)
	}
	if len(origins) == 0 {
		origins = defaultAllowedOrigins
	}
	corsCfg.AllowOrigins = origins
	return corsCfg
}
