package httpapi

import (
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/souschef/recipe-assistant/internal/config"
	"github.com/souschef/recipe-assistant/internal/ws"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// The relay serves first-party terminal clients, not browsers; origin
	// checks stay open.
	CheckOrigin: func(*http.Request) bool { return true },
}

// NewRouter builds the Gin engine: middleware chain, ops endpoints, the
// websocket upgrade route, and the analytics API.
func NewRouter(cfg config.Config, analytics Analytics, reg *ws.Registry) *gin.Engine {
	gin.SetMode(cfg.GinMode)

	r := gin.New()
	r.Use(otelgin.Middleware(cfg.OTEL.ServiceName))
	r.Use(RequestID())
	r.Use(AccessLog())
	r.Use(Recovery())
	r.Use(gzip.Gzip(gzip.DefaultCompression, gzip.WithExcludedPaths([]string{"/ws"})))
	r.Use(Metrics())
	r.Use(corsMiddleware(cfg.CORS))

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	r.GET("/ws", func(c *gin.Context) {
		conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			// Upgrade already wrote the HTTP error response.
			log.Warn().Err(err).Str("remote_ip", c.ClientIP()).Msg("websocket upgrade failed")
			return
		}
		sess := reg.Accept(conn)
		if cfg.Greeting != "" {
			if err := sess.Send(cfg.Greeting); err != nil {
				log.Warn().Err(err).Str("session_id", sess.ID()).Msg("greeting not delivered")
			}
		}
		reg.Serve(sess)
	})

	h := NewHandler(analytics)
	api := r.Group("/api/v1")
	{
		api.GET("/popular/:view", h.Popular)
		api.GET("/weekdays/:view", h.Weekdays)
		api.GET("/users/:name/favorites", h.Favorites)
	}

	return r
}

// corsMiddleware allows the configured origins, or any origin when none
// are configured.
func corsMiddleware(cc config.CORSConfig) gin.HandlerFunc {
	conf := cors.Config{
		AllowMethods:     []string{"GET", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "X-Request-ID"},
		ExposeHeaders:    []string{"X-Request-ID"},
		AllowCredentials: false,
		MaxAge:           12 * time.Hour,
	}
	if len(cc.AllowedOrigins) == 0 {
		conf.AllowAllOrigins = true
	} else {
		conf.AllowOrigins = cc.AllowedOrigins
	}
	return cors.New(conf)
}
