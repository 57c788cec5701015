// Package server exposes the interview service over HTTP.
package server

import (
	"context"
	"io"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/spigell/interview-scorer/internal/analyzer"
	"github.com/spigell/interview-scorer/internal/chain"
	"github.com/spigell/interview-scorer/internal/evaluation"
	"github.com/spigell/interview-scorer/internal/interview"
	"github.com/spigell/interview-scorer/internal/logger"
	"github.com/spigell/interview-scorer/internal/scoring"
	"github.com/spigell/interview-scorer/internal/session"
)

const (
	appName = "interview-scorer"

	defaultAddr         = ":5000"
	defaultReadTimeout  = 30 * time.Second
	defaultWriteTimeout = 120 * time.Second
	defaultBodyLimit    = 64 << 20
)

// Interview is the service behind the JSON endpoints.
type Interview interface {
	Next(ctx context.Context, key session.Key) (session.Next, error)
	Submit(ctx context.Context, sub interview.Submission) (interview.Report, error)
	EvaluateAnswer(ctx context.Context, answer, reference string) chain.Outcome
	GenerateFeedback(ctx context.Context, signals scoring.Signals) evaluation.Feedback
	Reset(ctx context.Context, key session.Key) error
	Session(ctx context.Context, key session.Key) (session.Record, error)
	Health(ctx context.Context) error
}

// Analyzer forwards uploaded media to the modality analyzers.
type Analyzer interface {
	Analyze(ctx context.Context, m analyzer.Modality, filename string, media io.Reader, fields map[string]string) map[string]any
}

// HTTPRecorder observes finished requests.
type HTTPRecorder interface {
	ObserveHTTP(method, path string, status int, elapsed time.Duration)
}

type Config struct {
	Addr         string        `mapstructure:"addr"`
	ReadTimeout  time.Duration `mapstructure:"read-timeout"`
	WriteTimeout time.Duration `mapstructure:"write-timeout"`
	CORSOrigins  []string      `mapstructure:"cors-origins"`
	BodyLimit    int           `mapstructure:"body-limit"`
}

// Deps are the collaborators of a Server. Analyzer, Recorder and Gatherer may be nil.
type Deps struct {
	Service  Interview
	Analyzer Analyzer
	Recorder HTTPRecorder
	Gatherer prometheus.Gatherer
	Logger   *zap.Logger
}

type Server struct {
	app    *fiber.App
	addr   string
	deps   Deps
	logger *zap.Logger
}

func New(cfg Config, deps Deps) *Server {
	log := logger.WithFields(deps.Logger, zap.String("component", "server"))

	addr := cfg.Addr
	if addr == "" {
		addr = defaultAddr
	}
	readTimeout := cfg.ReadTimeout
	if readTimeout <= 0 {
		readTimeout = defaultReadTimeout
	}
	writeTimeout := cfg.WriteTimeout
	if writeTimeout <= 0 {
		writeTimeout = defaultWriteTimeout
	}
	bodyLimit := cfg.BodyLimit
	if bodyLimit <= 0 {
		bodyLimit = defaultBodyLimit
	}

	app := fiber.New(fiber.Config{
		AppName:               appName,
		ReadTimeout:           readTimeout,
		WriteTimeout:          writeTimeout,
		BodyLimit:             bodyLimit,
		DisableStartupMessage: true,
		Immutable:             true,
		ErrorHandler:          errorHandler(log),
	})

	app.Use(requestID())
	app.Use(recoverPanics(log))
	app.Use(accessLog(log))
	if deps.Recorder != nil {
		app.Use(observe(deps.Recorder))
	}
	if len(cfg.CORSOrigins) > 0 {
		app.Use(cors.New(cors.Config{
			AllowOrigins: strings.Join(cfg.CORSOrigins, ","),
			AllowHeaders: "Origin, Content-Type, Accept, " + requestIDHeader,
		}))
	}

	s := &Server{app: app, addr: addr, deps: deps, logger: log}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.app.Get("/", s.home)
	s.app.Get("/health", s.health)
	if s.deps.Gatherer != nil {
		s.app.Get("/metrics", adaptor.HTTPHandler(promhttp.HandlerFor(s.deps.Gatherer, promhttp.HandlerOpts{})))
	}

	s.app.Get("/question", s.nextQuestion)
	s.app.Post("/evaluate", s.evaluate)
	s.app.Post("/generate-feedback", s.generateFeedback)
	s.app.Post("/submit", s.submit)
	s.app.Get("/session", s.session)
	s.app.Post("/session/reset", s.resetSession)

	s.app.Post("/transcribe", s.analyze(analyzer.Transcription, "audio"))
	s.app.Post("/detect-emotion", s.analyze(analyzer.Emotion, "image"))
	s.app.Post("/analyze-posture", s.analyze(analyzer.Posture, "video"))
	s.app.Post("/analyze-tone", s.analyze(analyzer.Tone, "audio"))
}

// App returns the underlying fiber application.
func (s *Server) App() *fiber.App { return s.app }

// Run serves until ctx is done, then shuts down gracefully within grace.
func (s *Server) Run(ctx context.Context, grace time.Duration) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("starting server", zap.String("addr", s.addr))
		errCh <- s.app.Listen(s.addr)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	s.logger.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), grace)
	defer cancel()

	if err := s.app.ShutdownWithContext(shutdownCtx); err != nil {
		return err
	}
	s.logger.Info("server stopped")
	return nil
}
