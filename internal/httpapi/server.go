package httpapi

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/RezaEskandarii/genjob/internal/logging"
	"github.com/RezaEskandarii/genjob/internal/pool"
	"github.com/RezaEskandarii/genjob/types"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// JobReader is the read side of client.JobManager.
type JobReader interface {
	Get(ctx context.Context, jobID string) (*types.Job, error)
	ListJobs(ctx context.Context, projectID string) ([]*types.Job, error)
}

type HealthReporter interface {
	IsHealthy() bool
	Snapshot() pool.Snapshot
}

// Server exposes read-only job state and pool health.
type Server struct {
	jobs   JobReader
	health HealthReporter
	logger *logrus.Entry
	engine *gin.Engine
}

// NewServer builds the routes. health may be nil when no database pool is in use.
func NewServer(jobs JobReader, health HealthReporter, logger logrus.FieldLogger) *Server {
	gin.SetMode(gin.ReleaseMode)
	s := &Server{
		jobs:   jobs,
		health: health,
		logger: logging.Component(logger, "http"),
		engine: gin.New(),
	}
	s.engine.Use(gin.Recovery(), s.requestLogger())
	s.engine.GET("/healthz", s.healthz)
	s.engine.GET("/jobs/:id", s.getJob)
	s.engine.GET("/projects/:id/jobs", s.listJobs)
	return s
}

func (s *Server) Handler() http.Handler {
	return s.engine
}

// ListenAndServe serves on addr until ctx is done.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.engine,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.WithField("addr", addr).Info("http server listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}
}

func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.logger.WithFields(logrus.Fields{
			"method":   c.Request.Method,
			"path":     c.FullPath(),
			"status":   c.Writer.Status(),
			"duration": time.Since(start),
		}).Debug("request")
	}
}

func (s *Server) healthz(c *gin.Context) {
	if s.health == nil {
		c.JSON(http.StatusOK, gin.H{"healthy": true})
		return
	}
	healthy := s.health.IsHealthy()
	status := http.StatusOK
	if !healthy {
		status = http.StatusServiceUnavailable
	}
	c.JSON(status, gin.H{"healthy": healthy, "pool": s.health.Snapshot()})
}

func (s *Server) getJob(c *gin.Context) {
	job, err := s.jobs.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.fail(c, err)
		return
	}
	if job == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "job not found"})
		return
	}
	c.JSON(http.StatusOK, job)
}

func (s *Server) listJobs(c *gin.Context) {
	jobs, err := s.jobs.ListJobs(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": jobs, "total": len(jobs)})
}

func (s *Server) fail(c *gin.Context, err error) {
	s.logger.WithError(err).WithField("path", c.FullPath()).Error("request failed")
	status := http.StatusInternalServerError
	if pool.IsSystemError(err) {
		status = http.StatusServiceUnavailable
	}
	c.JSON(status, gin.H{"error": http.StatusText(status)})
}
