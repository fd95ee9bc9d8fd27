package httpapi

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/postvisit/carecore/model"
	"github.com/postvisit/carecore/records"
)

type chatRequest struct {
	SessionID string `json:"session_id"`
	Message   string `json:"message"`

	// Quick streams a short preliminary answer before the full one.
	Quick bool `json:"quick"`
}

type tierRequest struct {
	Tier string `json:"tier"`
}

type tiersResponse struct {
	Current string           `json:"current"`
	Tiers   []model.TierInfo `json:"tiers"`
}

func (s *Server) health(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

// chat streams the answer to one message and records both turns in the
// session once the stream ends.
func (s *Server) chat(c echo.Context) error {
	var req chatRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	req.Message = strings.TrimSpace(req.Message)
	if req.SessionID == "" || req.Message == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "session_id and message are required")
	}

	ctx := s.requestContext(c)
	session, err := s.store.Session(ctx, req.SessionID)
	if err != nil {
		return err
	}
	visitID := c.Param("id")
	if session.Visit == nil {
		if session.Visit, err = s.store.Visit(ctx, visitID); err != nil {
			return err
		}
	}
	if session.Visit.ID != visitID {
		return echo.NewHTTPError(http.StatusNotFound, "session does not belong to this visit")
	}

	log := s.logger.With(
		slog.String("request_id", requestIDFrom(c)),
		slog.String("session_id", session.ID),
		slog.String("visit_id", visitID))
	onErr := func(err error) {
		if errors.Is(err, ctx.Err()) {
			log.Info("chat stream abandoned by client")
			return
		}
		log.Error("chat stream failed", slog.Any("error", err))
	}

	asked := time.Now().UTC()
	w := newSSEWriter(c)
	proceed := true
	if req.Quick {
		// A failed quick answer still leaves the full answer to run.
		proceed = w.preface(s.qa.QuickAnswer(ctx, session, req.Message), func(err error) {
			log.Warn("quick answer failed, continuing with full answer", slog.Any("error", err))
		}) && ctx.Err() == nil
	}
	var answer string
	if proceed {
		var ok bool
		if answer, ok = w.stream(s.qa.Answer(ctx, session, req.Message), onErr); ok {
			w.done()
		}
	}

	// Turns are kept even when the client left early.
	persist := context.WithoutCancel(ctx)
	if err := s.store.AppendMessage(persist, session.ID, records.ChatMessage{
		Role: records.RoleUser, Content: req.Message, CreatedAt: asked,
	}); err != nil {
		log.Warn("failed to store patient message", slog.Any("error", err))
	}
	if answer != "" {
		if err := s.store.AppendMessage(persist, session.ID, records.ChatMessage{
			Role: records.RoleAssistant, Content: answer, CreatedAt: time.Now().UTC(),
		}); err != nil {
			log.Warn("failed to store assistant message", slog.Any("error", err))
		}
	}
	return nil
}

func (s *Server) generateEducation(c echo.Context) error {
	if s.education == nil {
		return echo.NewHTTPError(http.StatusNotImplemented, "education is not enabled")
	}
	ctx := s.requestContext(c)
	visit, err := s.store.Visit(ctx, c.Param("id"))
	if err != nil {
		return err
	}

	log := s.logger.With(
		slog.String("request_id", requestIDFrom(c)),
		slog.String("visit_id", visit.ID))
	w := newSSEWriter(c)
	_, ok := w.stream(s.education.Generate(ctx, visit), func(err error) {
		log.Error("education stream failed", slog.Any("error", err))
	})
	if ok {
		w.done()
	}
	return nil
}

// summarize digests a session. It answers 204 when the session was too
// short or the model produced no summary.
func (s *Server) summarize(c echo.Context) error {
	if s.summarizer == nil {
		return echo.NewHTTPError(http.StatusNotImplemented, "summaries are not enabled")
	}
	ctx := s.requestContext(c)
	session, err := s.store.Session(ctx, c.Param("id"))
	if err != nil {
		return err
	}
	sum, err := s.summarizer.Summarize(ctx, session)
	if err != nil {
		return err
	}
	if sum == nil {
		return c.NoContent(http.StatusNoContent)
	}
	return c.JSON(http.StatusCreated, sum)
}

func (s *Server) listTiers(c echo.Context) error {
	return c.JSON(http.StatusOK, tiersResponse{
		Current: s.tiers.Current().Name,
		Tiers:   s.tiers.Tiers(),
	})
}

// setTier changes the process-wide tier. Requests already running keep
// the tier they started with.
func (s *Server) setTier(c echo.Context) error {
	var req tierRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	t, err := model.ParseTier(req.Tier)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := s.tiers.Set(t); err != nil {
		if errors.Is(err, model.ErrTierPinned) {
			return echo.NewHTTPError(http.StatusConflict, err.Error())
		}
		return err
	}

	current := s.tiers.Current()
	s.logger.Info("tier changed",
		slog.String("request_id", requestIDFrom(c)),
		slog.String("tier", current.Name))
	return c.JSON(http.StatusOK, tiersResponse{Current: current.Name, Tiers: s.tiers.Tiers()})
}
