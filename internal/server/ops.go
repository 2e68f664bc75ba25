// Package server exposes the engine's operational endpoint. The business API
// (reference data, reports) lives in a separate service.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// Ops serves /healthz and /metrics.
type Ops struct {
	srv    *http.Server
	logger *zap.Logger
}

// NewOps builds the ops server.
func NewOps(host string, port int, logger *zap.Logger) *Ops {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())

	started := time.Now()
	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status": "ok",
			"uptime": time.Since(started).String(),
		})
	})
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return &Ops{
		srv: &http.Server{
			Addr:              fmt.Sprintf("%s:%d", host, port),
			Handler:           router,
			ReadHeaderTimeout: 5 * time.Second,
		},
		logger: logger,
	}
}

// Run serves until the listener fails or Shutdown is called.
func (o *Ops) Run() error {
	o.logger.Info("ops endpoint listening", zap.String("addr", o.srv.Addr))
	if err := o.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown drains the server.
func (o *Ops) Shutdown(ctx context.Context) error {
	return o.srv.Shutdown(ctx)
}
