// Package runtime serves the agent runtime contract of the agent container.
package runtime

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog/log"

	"github.com/aws-samples/sample-ai-agent-accelerator/internal/agent"
	"github.com/aws-samples/sample-ai-agent-accelerator/internal/domain"
)

// InvocationRequest is the body of POST /invocations.
type InvocationRequest struct {
	Input *domain.InvocationInput `json:"input"`
}

// InvocationResponse is the body of a successful invocation.
type InvocationResponse struct {
	Message domain.Message `json:"message"`
}

// Handler handles agent runtime requests.
type Handler struct {
	binding  *agent.Binding
	memoryID string
}

// NewHandler creates a new handler.
func NewHandler(binding *agent.Binding, memoryID string) *Handler {
	return &Handler{binding: binding, memoryID: memoryID}
}

// RegisterRoutes registers the runtime routes.
func (h *Handler) RegisterRoutes(e *echo.Echo) {
	e.POST("/invocations", h.Invoke)
	e.GET("/ping", h.Ping)
}

// Ping returns health status.
// GET /ping
func (h *Handler) Ping(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "healthy"})
}

// Invoke runs one turn on the session's agent.
// POST /invocations
func (h *Handler) Invoke(c echo.Context) error {
	ctx := c.Request().Context()

	var req InvocationRequest
	if err := c.Bind(&req); err != nil {
		return h.reject(c, http.StatusBadRequest, "invalid request body")
	}
	if req.Input == nil || req.Input.Prompt == "" {
		return h.reject(c, http.StatusBadRequest, "No prompt found in input. Please provide a 'prompt' key in the input.")
	}
	if req.Input.UserID == "" {
		return h.reject(c, http.StatusBadRequest, "No user_id found in input. Please provide a 'user_id' key in the input.")
	}
	sessionID := c.Request().Header.Get(domain.SessionIDHeader)
	if sessionID == "" {
		return h.reject(c, http.StatusBadRequest, "Missing header "+domain.SessionIDHeader)
	}

	key := domain.MemoryKey{MemoryID: h.memoryID, SessionID: sessionID, ActorID: req.Input.UserID}
	a, err := h.binding.Acquire(ctx, key)
	switch {
	case errors.Is(err, domain.ErrBindingMismatch):
		return h.reject(c, http.StatusConflict, "session does not match this agent container")
	case errors.Is(err, domain.ErrInputValidation):
		return h.reject(c, http.StatusBadRequest, err.Error())
	case err != nil:
		log.Ctx(ctx).Error().Err(err).Msg("agent initialization failed")
		return c.JSON(http.StatusInternalServerError, map[string]string{"detail": "agent initialization failed"})
	}

	log.Ctx(ctx).Info().Str("session", sessionID).Msg("invoking agent")
	msg, err := a.Invoke(ctx, req.Input.Prompt)
	if err != nil {
		log.Ctx(ctx).Error().Err(err).Msg("agent processing failed")
		return c.JSON(http.StatusInternalServerError, map[string]string{"detail": "agent processing failed"})
	}
	log.Ctx(ctx).Info().Msg("agent invocation completed successfully")

	return c.JSON(http.StatusOK, InvocationResponse{Message: msg})
}

func (h *Handler) reject(c echo.Context, status int, detail string) error {
	log.Ctx(c.Request().Context()).Error().Int("status", status).Msg(detail)
	return c.JSON(status, map[string]string{"detail": detail})
}
