// Package server exposes the placement engine over HTTP.
package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/spigell/placement-engine/internal/lifecycle"
	"github.com/spigell/placement-engine/internal/logger"
	"github.com/spigell/placement-engine/internal/placement"
)

const (
	defaultAddr            = ":8080"
	defaultReadTimeout     = 30 * time.Second
	defaultWriteTimeout    = 120 * time.Second
	defaultShutdownTimeout = 15 * time.Second
	defaultMaxUploadBytes  = 5 << 20
)

// Engine is the set of operations served over HTTP.
type Engine interface {
	Ping(ctx context.Context) error
	CreateJob(ctx context.Context, in lifecycle.NewJob) (*placement.JobPosting, error)
	GetJob(ctx context.Context, jobID string) (*placement.JobPosting, error)
	RegisterStudent(ctx context.Context, in lifecycle.NewStudent) (*placement.Student, error)
	AttachResume(ctx context.Context, studentID, filename, declaredMIME string, data []byte) (*lifecycle.ResumeUpload, error)
	ScoreResume(ctx context.Context, req lifecycle.ScoreRequest) (*lifecycle.ScoreResult, error)
	Get(ctx context.Context, applicationID string) (*placement.Application, error)
	Accept(ctx context.Context, applicationID string) (*placement.Application, error)
	Reject(ctx context.Context, applicationID string) (*lifecycle.RejectResult, error)
	ListForJob(ctx context.Context, jobID string, status placement.Status) ([]*placement.Application, error)
	ListForStudent(ctx context.Context, studentID string) ([]*placement.Application, error)
	Stats(ctx context.Context) (*placement.Stats, error)
}

var _ Engine = (*lifecycle.Manager)(nil)

type Config struct {
	Addr            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
	CORSOrigins     []string
	// MaxUploadBytes bounds the resume upload body.
	MaxUploadBytes int64
}

type Server struct {
	engine          Engine
	logger          *zap.Logger
	router          *gin.Engine
	http            *http.Server
	maxUploadBytes  int64
	shutdownTimeout time.Duration
}

func New(engine Engine, cfg Config, log *zap.Logger) *Server {
	if cfg.Addr == "" {
		cfg.Addr = defaultAddr
	}
	if cfg.ReadTimeout <= 0 {
		cfg.ReadTimeout = defaultReadTimeout
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = defaultWriteTimeout
	}
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = defaultShutdownTimeout
	}
	if cfg.MaxUploadBytes <= 0 {
		cfg.MaxUploadBytes = defaultMaxUploadBytes
	}

	s := &Server{
		engine:          engine,
		logger:          logger.OrNop(log),
		maxUploadBytes:  cfg.MaxUploadBytes,
		shutdownTimeout: cfg.ShutdownTimeout,
	}
	s.router = s.routes(cfg.CORSOrigins)
	s.http = &http.Server{
		Addr:         cfg.Addr,
		Handler:      s.router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}
	return s
}

func (s *Server) Handler() http.Handler { return s.router }

func (s *Server) routes(origins []string) *gin.Engine {
	r := gin.New()
	r.Use(requestLogger(s.logger), recovery(s.logger))

	corsConfig := cors.DefaultConfig()
	if len(origins) == 0 || (len(origins) == 1 && origins[0] == "*") {
		corsConfig.AllowAllOrigins = true
	} else {
		corsConfig.AllowOrigins = origins
	}
	corsConfig.AllowHeaders = append(corsConfig.AllowHeaders, "Authorization", "X-User-ID", "X-User-Role")
	r.Use(cors.New(corsConfig))

	api := r.Group("/api/v1")
	api.GET("/health", s.health)

	api.POST("/jobs", s.createJob)
	api.GET("/jobs/:id", s.getJob)
	api.GET("/jobs/:id/applications", s.listJobApplications)

	api.POST("/students", s.registerStudent)
	api.POST("/students/:id/resume", s.uploadResume)
	api.GET("/students/:id/applications", s.listStudentApplications)

	api.POST("/applications/score", s.scoreResume)
	api.GET("/applications/:id", s.getApplication)
	api.POST("/applications/:id/accept", s.acceptApplication)
	api.POST("/applications/:id/reject", s.rejectApplication)

	api.GET("/stats", s.stats)

	return r
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		s.logger.Info("http server listening", zap.String("addr", s.http.Addr))
		if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout)
		defer cancel()
		s.logger.Info("http server shutting down")
		return s.http.Shutdown(shutdownCtx)
	})

	return g.Wait()
}
