package ops

import (
	"context"
	"errors"
	"net/http"
	"time"

	"pricefeed/internal/engine"

	"github.com/gin-gonic/gin"
	"github.com/yanun0323/logs"
)

const shutdownTimeout = 5 * time.Second

// StatusProvider is what the diagnostics endpoints report on.
type StatusProvider interface {
	Status() engine.Status
	Ready() bool
}

// Server serves health and status over HTTP.
type Server struct {
	addr   string
	router *gin.Engine
}

// NewServer builds the routes: /healthz, /readyz and /status.
func NewServer(addr string, provider StatusProvider) *Server {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery(), requestLog())

	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	router.GET("/readyz", func(c *gin.Context) {
		if !provider.Ready() {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "warming up"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})
	router.GET("/status", func(c *gin.Context) {
		c.JSON(http.StatusOK, provider.Status())
	})

	return &Server{addr: addr, router: router}
}

// Handler exposes the router for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Run listens until ctx is done and then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.addr,
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logs.Infof("http: listening on %s", s.addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logs.Warnf("http: shutdown, err: %+v", err)
		return err
	}
	return nil
}

func requestLog() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logs.Debugf("http: %s %s %d %s", c.Request.Method, c.Request.URL.Path, c.Writer.Status(), time.Since(start))
	}
}
