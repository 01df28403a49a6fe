package reconciler

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/Vastxiao/mongocheckd/internal/logger"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/pkg/errors"
)

// ProgressReporter supplies the data behind the progress endpoint.
type ProgressReporter interface {
	Snapshots() []ProgressSnapshot
}

// WebServer serves read-only progress over HTTP.
type WebServer struct {
	port     int
	runID    string
	reporter ProgressReporter
	logger   *logger.Logger
	srv      *http.Server
}

// NewWebServer creates a WebServer object
func NewWebServer(port int, runID string, reporter ProgressReporter, logger *logger.Logger) *WebServer {
	return &WebServer{
		port:     port,
		runID:    runID,
		reporter: reporter,
		logger:   logger,
	}
}

// RequestLogger is the middleware for logging each request and its response
// status.
func (server *WebServer) RequestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		t := time.Now()

		// A UUID to correlate each request with a response in the logs.
		traceID := uuid.New().String()

		server.logger.Debug().Str("uri", c.Request.RequestURI).
			Str("method", c.Request.Method).
			Str("clientIP", c.ClientIP()).
			Str("traceID", traceID).
			Msg("received request")

		c.Header("Trace-Id", traceID)

		c.Next()

		server.logger.Debug().Int("status", c.Writer.Status()).
			Str("traceID", traceID).
			Str("latency", time.Since(t).String()).
			Msg("sent response")
	}
}

func (server *WebServer) setupRouter() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(server.RequestLogger(), gin.Recovery())

	api := router.Group("/api")
	{
		v1 := api.Group("/v1")
		{
			v1.GET("/progress", server.progressEndpoint)
		}
	}

	router.HandleMethodNotAllowed = true

	return router
}

// Run serves until ctx is canceled. This is a blocking call.
func (server *WebServer) Run(ctx context.Context) error {
	server.srv = &http.Server{
		Addr:              "0.0.0.0:" + strconv.Itoa(server.port),
		Handler:           server.setupRouter(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	server.logger.Info().Int("port", server.port).Msg("Running status server.")

	serveErr := make(chan error, 1)
	go func() {
		// We always get a non-nil error at the end.
		serveErr <- server.srv.ListenAndServe()
	}()

	select {
	case err := <-serveErr:
		return errors.Wrapf(err, "status server on port %d", server.port)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := server.srv.Shutdown(shutdownCtx); err != nil {
		server.logger.Warn().Err(err).Msg("Status server forced to shut down.")
	}

	return nil
}

// progressEndpoint implements the gin handle for the progress endpoint.
func (server *WebServer) progressEndpoint(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"runID":       server.runID,
		"collections": server.reporter.Snapshots(),
	})
}
