// Package httpapi serves the assistant over HTTP.
//
// Answers and education documents are streamed as server-sent events, one
// event per chunk: the event name is the chunk type and the data is the
// JSON-encoded chunk content. A stream ends with a "done" event, or an
// "error" event when generation fails. Closing the connection cancels
// generation.
//
// Routes:
//
//	POST /visits/:id/chat          {"session_id": "...", "message": "..."}
//	POST /visits/:id/education
//	POST /sessions/:id/summary
//	GET  /ai/tiers
//	PUT  /ai/tier                  {"tier": "good|better|opus46"}
//	GET  /healthz
package httpapi

import (
	"context"
	"errors"
	"iter"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/postvisit/carecore/model"
	"github.com/postvisit/carecore/provider"
	"github.com/postvisit/carecore/records"
)

// Answerer answers chat questions. *assistant.QA satisfies it.
type Answerer interface {
	Answer(ctx context.Context, session *records.Session, question string) iter.Seq2[provider.Chunk, error]
	QuickAnswer(ctx context.Context, session *records.Session, question string) iter.Seq2[provider.Chunk, error]
}

// Educator writes education documents. *assistant.Education satisfies it.
type Educator interface {
	Generate(ctx context.Context, visit *records.Visit) iter.Seq2[provider.Chunk, error]
}

// Summarizer digests finished sessions. *summary.Summarizer satisfies it.
type Summarizer interface {
	Summarize(ctx context.Context, session *records.Session) (*records.SessionSummary, error)
}

// Store is the record store the server reads visits and sessions from.
type Store interface {
	records.VisitRepository
	records.SessionRepository
}

// Server is the HTTP front of the assistant.
type Server struct {
	echo       *echo.Echo
	store      Store
	qa         Answerer
	education  Educator
	summarizer Summarizer
	tiers      *model.TierStore
	logger     *slog.Logger
}

// Option configures a Server.
type Option func(*Server)

// WithEducation enables the education route.
func WithEducation(e Educator) Option {
	return func(s *Server) { s.education = e }
}

// WithSummarizer enables the summary route.
func WithSummarizer(sm Summarizer) Option {
	return func(s *Server) { s.summarizer = sm }
}

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) { s.logger = l }
}

// New creates a server. tiers backs the tier admin routes and is attached
// to every request so one request sees one tier.
func New(store Store, qa Answerer, tiers *model.TierStore, opts ...Option) *Server {
	s := &Server{
		store:  store,
		qa:     qa,
		tiers:  tiers,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = s.handleError

	e.Use(recovery(s.logger))
	e.Use(requestID())
	e.Use(requestLogger(s.logger))

	e.GET("/healthz", s.health)
	e.POST("/visits/:id/chat", s.chat)
	e.POST("/visits/:id/education", s.generateEducation)
	e.POST("/sessions/:id/summary", s.summarize)
	e.GET("/ai/tiers", s.listTiers)
	e.PUT("/ai/tier", s.setTier)

	s.echo = e
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.echo.ServeHTTP(w, r)
}

// Start listens on addr until Shutdown.
func (s *Server) Start(addr string) error {
	s.logger.Info("starting server", slog.String("addr", addr))
	if err := s.echo.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops the server, waiting for open requests until ctx is done.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}

// requestContext pins the request's tier on its context.
func (s *Server) requestContext(c echo.Context) context.Context {
	ctx := c.Request().Context()
	if s.tiers == nil {
		return ctx
	}
	return model.NewContext(ctx, s.tiers.Resolve(ctx))
}

// handleError renders errors as {"message": "..."} and maps record lookups
// to 404.
func (s *Server) handleError(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}
	code := http.StatusInternalServerError
	msg := http.StatusText(code)

	var he *echo.HTTPError
	switch {
	case errors.As(err, &he):
		code = he.Code
		if m, ok := he.Message.(string); ok {
			msg = m
		} else {
			msg = http.StatusText(code)
		}
	case errors.Is(err, records.ErrNotFound):
		code = http.StatusNotFound
		msg = err.Error()
	default:
		s.logger.Error("request failed",
			slog.String("request_id", requestIDFrom(c)),
			slog.Any("error", err))
	}

	if c.Request().Method == http.MethodHead {
		_ = c.NoContent(code)
		return
	}
	_ = c.JSON(code, errorPayload{Message: msg})
}

// publicMessage is the error text sent to clients mid-stream.
func publicMessage(err error) string {
	switch {
	case errors.Is(err, provider.ErrRateLimited):
		return "The assistant is busy. Please try again in a moment."
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "The request was cancelled."
	default:
		return "The assistant is unavailable right now. Please try again later."
	}
}
