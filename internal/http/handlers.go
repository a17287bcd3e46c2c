package http

import (
	"context"
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/voxd/internal/calendar"
	"github.com/fyrsmithlabs/voxd/internal/capture"
	"github.com/fyrsmithlabs/voxd/internal/lifecycle"
	"github.com/fyrsmithlabs/voxd/internal/logging"
	"github.com/fyrsmithlabs/voxd/internal/scheduler"
	"github.com/fyrsmithlabs/voxd/internal/session"
	"github.com/fyrsmithlabs/voxd/internal/store"
)

// StartSessionRequest is the request body for POST /api/v1/sessions.
type StartSessionRequest struct {
	OwnerID      string             `json:"owner_id"`
	Title        string             `json:"title"`
	Participants []string           `json:"participants,omitempty"`
	ContextTag   session.ContextTag `json:"context_tag"`
}

// StopSessionRequest is the request body for POST /api/v1/sessions/:id/stop.
// Payload carries the captured audio bytes, base64-encoded on the wire.
type StopSessionRequest struct {
	Payload    []byte `json:"payload,omitempty"`
	Transcript string `json:"transcript,omitempty"`
}

// ConfirmActRequest is the request body for POST /api/v1/acts/:id/confirm.
type ConfirmActRequest struct {
	Decision lifecycle.Decision `json:"decision"`
}

// SuggestionsResponse is the response body for GET /api/v1/acts/:id/suggestions.
type SuggestionsResponse struct {
	ActID       string                 `json:"act_id"`
	Suggestions []scheduler.Suggestion `json:"suggestions"`
}

// sessionScope attaches the route's session id to the request context
// so downstream logs and spans carry it. Malformed ids are skipped;
// the lookup they feed will 404 anyway.
func sessionScope(c echo.Context) context.Context {
	ctx := c.Request().Context()
	if id := c.Param("id"); logging.ValidID(id) {
		ctx = logging.WithSessionID(ctx, id)
	}
	return ctx
}

// actScope attaches the route's act id to the request context.
func actScope(c echo.Context) context.Context {
	ctx := c.Request().Context()
	if id := c.Param("id"); logging.ValidID(id) {
		ctx = logging.WithActID(ctx, id)
	}
	return ctx
}

// httpError maps domain errors onto status codes.
func httpError(err error) error {
	switch {
	case errors.Is(err, session.ErrNotFound),
		errors.Is(err, store.ErrActNotFound),
		errors.Is(err, capture.ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	case errors.Is(err, session.ErrSessionConflict),
		errors.Is(err, scheduler.ErrNoAcceptableSlot):
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	case errors.Is(err, session.ErrInvalidTransition),
		errors.Is(err, lifecycle.ErrInvalidState):
		return echo.NewHTTPError(http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, calendar.ErrCredentialInvalid):
		return echo.NewHTTPError(http.StatusUnauthorized, err.Error())
	case errors.Is(err, capture.ErrStorageExhausted):
		return echo.NewHTTPError(http.StatusInsufficientStorage, err.Error())
	case errors.Is(err, lifecycle.ErrPartialWrite):
		return echo.NewHTTPError(http.StatusBadGateway, err.Error())
	default:
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
}

func (s *Server) handleStartSession(c echo.Context) error {
	var req StartSessionRequest
	if err := c.Bind(&req); err != nil {
		s.logger.Warn(c.Request().Context(), "invalid start session request", zap.Error(err))
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if req.OwnerID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "owner_id field is required")
	}

	ctx := c.Request().Context()
	if logging.ValidID(req.OwnerID) {
		ctx = logging.WithOwnerID(ctx, req.OwnerID)
	}
	sess, err := s.deps.Sessions.Start(ctx, req.OwnerID, session.Meta{
		Title:        req.Title,
		Participants: req.Participants,
		ContextTag:   req.ContextTag,
	})
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusCreated, sess)
}

func (s *Server) handleListSessions(c echo.Context) error {
	ownerID := c.QueryParam("owner_id")
	if ownerID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "owner_id query parameter is required")
	}

	ctx := c.Request().Context()
	if logging.ValidID(ownerID) {
		ctx = logging.WithOwnerID(ctx, ownerID)
	}
	sessions, err := s.deps.Sessions.List(ctx, ownerID)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, sessions)
}

func (s *Server) handleGetSession(c echo.Context) error {
	sess, err := s.deps.Sessions.Get(sessionScope(c), c.Param("id"))
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, sess)
}

func (s *Server) handlePauseSession(c echo.Context) error {
	sess, err := s.deps.Sessions.Pause(sessionScope(c), c.Param("id"))
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, sess)
}

func (s *Server) handleResumeSession(c echo.Context) error {
	sess, err := s.deps.Sessions.Resume(sessionScope(c), c.Param("id"))
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, sess)
}

func (s *Server) handleStopSession(c echo.Context) error {
	var req StopSessionRequest
	if err := c.Bind(&req); err != nil {
		s.logger.Warn(c.Request().Context(), "invalid stop session request", zap.Error(err))
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	sess, err := s.deps.Sessions.Stop(sessionScope(c), c.Param("id"), session.StopRequest{
		Payload:    req.Payload,
		Transcript: req.Transcript,
	})
	if err != nil {
		return httpError(err)
	}
	// Extraction continues in the background; the session is returned
	// in its processing state.
	return c.JSON(http.StatusAccepted, sess)
}

func (s *Server) handleArchiveSession(c echo.Context) error {
	if err := s.deps.Sessions.Archive(sessionScope(c), c.Param("id")); err != nil {
		return httpError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (s *Server) handleListActs(c echo.Context) error {
	ctx := sessionScope(c)
	id := c.Param("id")

	// Existence check so an unknown session yields 404, not an empty list.
	if _, err := s.deps.Sessions.Get(ctx, id); err != nil {
		return httpError(err)
	}

	acts, err := s.deps.Acts.ListActs(ctx, id)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, acts)
}

// ownerForAct resolves an act's owner through its session.
func (s *Server) ownerForAct(ctx context.Context, actID string) (string, *echo.HTTPError) {
	a, err := s.deps.Acts.GetAct(ctx, actID)
	if err != nil {
		return "", httpError(err).(*echo.HTTPError)
	}
	sess, err := s.deps.Sessions.Get(ctx, a.SessionID)
	if err != nil {
		return "", httpError(err).(*echo.HTTPError)
	}
	return sess.OwnerID, nil
}

func (s *Server) handleSuggestions(c echo.Context) error {
	ctx := actScope(c)
	id := c.Param("id")

	a, err := s.deps.Acts.GetAct(ctx, id)
	if err != nil {
		return httpError(err)
	}
	sess, err := s.deps.Sessions.Get(ctx, a.SessionID)
	if err != nil {
		return httpError(err)
	}

	suggestions, err := s.deps.Scheduler.Suggest(ctx, sess.OwnerID, *a)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, SuggestionsResponse{
		ActID:       id,
		Suggestions: suggestions,
	})
}

func (s *Server) handleConfirmAct(c echo.Context) error {
	var req ConfirmActRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if req.Decision != lifecycle.DecisionConfirmed && req.Decision != lifecycle.DecisionRejected {
		return echo.NewHTTPError(http.StatusBadRequest, "decision must be confirmed or rejected")
	}

	a, err := s.deps.Lifecycle.Confirm(actScope(c), c.Param("id"), req.Decision)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, a)
}

func (s *Server) handleScheduleAct(c echo.Context) error {
	var sug scheduler.Suggestion
	if err := c.Bind(&sug); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if sug.Date == "" || sug.Time == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "date and time fields are required")
	}

	id := c.Param("id")
	ctx := actScope(c)
	ownerID, herr := s.ownerForAct(ctx, id)
	if herr != nil {
		return herr
	}
	if logging.ValidID(ownerID) {
		ctx = logging.WithOwnerID(ctx, ownerID)
	}

	a, err := s.deps.Lifecycle.Schedule(ctx, ownerID, id, sug)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, a)
}

func (s *Server) handleCompleteAct(c echo.Context) error {
	a, err := s.deps.Lifecycle.Complete(actScope(c), c.Param("id"))
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, a)
}

func (s *Server) handleUploadMedia(c echo.Context) error {
	rec, err := s.deps.Captures.AttemptUpload(c.Request().Context(), c.Param("id"))
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, rec)
}

func (s *Server) handlePendingMedia(c echo.Context) error {
	ownerID := c.QueryParam("owner_id")
	if ownerID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "owner_id query parameter is required")
	}

	ctx := c.Request().Context()
	if logging.ValidID(ownerID) {
		ctx = logging.WithOwnerID(ctx, ownerID)
	}
	recs, err := s.deps.Captures.Pending(ctx, ownerID)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, recs)
}
