package status

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/conservacam/fieldcam/logging"
)

// Server is the station's read-only HTTP status endpoint.
type Server struct {
	httpServer *http.Server
	logger     logging.Logger
}

// NewServer wires the status routes onto a new Gin engine listening on addr.
func NewServer(addr string, handler *StatusHandler, logger logging.Logger) *Server {
	logger = logging.OrNop(logger)

	router := initializeGin()
	router.Use(gin.Recovery())
	router.Use(requestLogger(logger))

	setupRoutes(router, handler)

	return &Server{
		httpServer: &http.Server{
			Addr:              addr,
			Handler:           router,
			ReadHeaderTimeout: 10 * time.Second,
		},
		logger: logger,
	}
}

// Handler returns the HTTP handler serving the status routes.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Start serves until Shutdown is called.
func (s *Server) Start() error {
	s.logger.Info("Status server listening", "address", s.httpServer.Addr)

	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops accepting requests and waits for in-flight ones.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// setupRoutes configures the HTTP routes
func setupRoutes(router *gin.Engine, handler *StatusHandler) {
	api := router.Group("/api")

	api.GET("/session", handler.GetSession)
	api.GET("/jobs", handler.ListJobs)

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "ok",
			"service": "fieldcam",
		})
	})
}

func requestLogger(logger logging.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.Debug("HTTP request",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"duration", time.Since(start))
	}
}
