// Package http serves the operator dialog as a JSON API.
package http

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"

	"billingsync/internal/core"
	"billingsync/internal/log"
	"billingsync/internal/middleware/ratelimit"
	"billingsync/internal/middleware/security"
	"billingsync/internal/middleware/trace"
	"billingsync/internal/pipeline"
	"billingsync/internal/storage"
)

// ImportService runs stage 1.
type ImportService interface {
	Prepare(ctx context.Context, sourceSheet string) (*storage.ImportSession, error)
	Import(ctx context.Context, sessionID uuid.UUID, req pipeline.ImportRequest) log.Outcome
}

// ProcessService runs stage 2.
type ProcessService interface {
	Process(ctx context.Context, rawSheet string) log.Alert
}

// StatusService reports period status.
type StatusService interface {
	Inspect(ctx context.Context, label core.PeriodLabel) (pipeline.PeriodStatus, error)
}

// Pinger checks a dependency for /readyz.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Services are the handlers' collaborators.
type Services struct {
	Importer  ImportService
	Processor ProcessService
	Status    StatusService
	Ready     Pinger
}

// Options configure the server.
type Options struct {
	Logger             *log.Logger
	RateLimitPerMinute int
	// StageTimeout bounds one stage run; zero means no limit.
	StageTimeout time.Duration
}

type Server struct {
	http.Server
	svc          Services
	logger       *log.Logger
	rateLimiter  *ratelimit.Limiter
	tracer       *trace.Middleware
	detector     *security.Detector
	stageTimeout time.Duration

	shutdownOnce sync.Once
}

// NewServer configures routes and middleware, returning a ready-to-run server.
func NewServer(addr string, svc Services, opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = log.New(log.DefaultConfig())
	}
	logger = logger.WithComponent(log.ComponentHTTP)

	s := &Server{
		Server: http.Server{
			Addr:              addr,
			ReadHeaderTimeout: 10 * time.Second,
		},
		svc:          svc,
		logger:       logger,
		detector:     security.NewDetector(),
		stageTimeout: opts.StageTimeout,
	}
	s.tracer = trace.NewMiddleware(logger, s.detector.ClientIP)
	if opts.RateLimitPerMinute > 0 {
		s.rateLimiter = ratelimit.NewLimiter(ratelimit.Config{RequestsPerMinute: opts.RateLimitPerMinute})
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", handleHealth)
	mux.HandleFunc("GET /readyz", s.handleReady)
	mux.Handle("GET /api/import/session", s.limited(s.handlePrepareImport))
	mux.Handle("POST /api/import", s.limited(s.handleImport))
	mux.Handle("POST /api/process", s.limited(s.handleProcess))
	mux.HandleFunc("GET /api/periods/{label}", s.handlePeriod)

	s.Handler = s.tracer.Middleware(s.detector.Middleware(security.Headers(security.APIHeadersConfig())(mux)))
	return s
}

// limited applies the per-client rate limit to operations that touch the
// workbook.
func (s *Server) limited(h http.HandlerFunc) http.Handler {
	if s.rateLimiter == nil {
		return h
	}
	return s.rateLimiter.Middleware(s.detector.ClientIP, func(w http.ResponseWriter, r *http.Request) {
		log.FromContext(r.Context()).WarnContext(r.Context(), "Rate limit exceeded",
			log.FieldClientIP, s.detector.ClientIP(r), "path", r.URL.Path)
		ErrorResponse(http.StatusTooManyRequests, "Rate limit exceeded. Please try again later.").Write(w)
	})(h)
}

// Shutdown gracefully shuts down the server and the rate limiter.
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error
	s.shutdownOnce.Do(func() {
		if s.rateLimiter != nil {
			s.rateLimiter.Stop()
		}
		shutdownErr = s.Server.Shutdown(ctx)
	})
	return shutdownErr
}
