// Package web serves the chat UI and the JSON API of the web tier.
package web

import (
	"errors"
	"net/http"
	"strings"
	"time"
	"unicode"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog/log"

	"github.com/aws-samples/sample-ai-agent-accelerator/internal/domain"
	"github.com/aws-samples/sample-ai-agent-accelerator/internal/service"
)

// ALB shards its session cookie into at most four cookies.
const albSessionCookieShards = 4

// Handler handles web tier requests.
type Handler struct {
	service   *service.Service
	templates *Templates
	identity  Identity
	logoutURL string
}

// NewHandler creates a new handler.
func NewHandler(svc *service.Service, templates *Templates, identity Identity, logoutURL string) *Handler {
	return &Handler{
		service:   svc,
		templates: templates,
		identity:  identity,
		logoutURL: logoutURL,
	}
}

// RegisterRoutes registers the UI and API routes.
func (h *Handler) RegisterRoutes(e *echo.Echo) {
	e.GET("/health", h.Health)

	// UI
	e.GET("/", h.Index)
	e.GET("/logout", h.Logout)
	e.POST("/new", h.New)
	e.GET("/conversations", h.Conversations)
	e.POST("/ask", h.Ask)
	e.GET("/conversation/:id", h.GetConversation)

	// API
	e.POST("/api/ask", h.APIAsk)
	e.POST("/api/ask/", h.APIAskExisting)
	e.POST("/api/ask/:id", h.APIAskExisting)
	e.GET("/api/conversations/users/:user_id", h.APIListConversations)
}

type pageData struct {
	Conversation *domain.Conversation
	ChatHistory  []domain.ConversationSummary
	Sources      []string
	UserEmail    string
	AuthEnabled  bool
}

// Health returns health status.
// GET /health
func (h *Handler) Health(c echo.Context) error {
	return c.String(http.StatusOK, "healthy")
}

// Index renders the home page.
// GET /
func (h *Handler) Index(c echo.Context) error {
	data := pageData{AuthEnabled: h.identity.AuthEnabled}
	if h.identity.AuthEnabled {
		data.UserEmail = h.identity.Email(c.Request())
	}
	return c.Render(http.StatusOK, "index.html", data)
}

// Logout expires the load balancer session cookies and sends the user to the
// identity provider's logout page.
// GET /logout
func (h *Handler) Logout(c echo.Context) error {
	if !h.identity.AuthEnabled || h.logoutURL == "" {
		return c.Redirect(http.StatusFound, "/")
	}

	for i := 0; i < albSessionCookieShards; i++ {
		c.SetCookie(&http.Cookie{
			Name:     "AWSELBAuthSessionCookie-" + string(rune('0'+i)),
			Value:    "",
			Path:     "/",
			Expires:  time.Unix(0, 0),
			MaxAge:   -1,
			Secure:   true,
			HttpOnly: true,
		})
	}
	return c.Redirect(http.StatusFound, h.logoutURL)
}

// New renders an empty chat.
// POST /new
func (h *Handler) New(c echo.Context) error {
	return c.Render(http.StatusOK, "chat.html", pageData{})
}

// Conversations renders the user's recent conversations.
// GET /conversations
func (h *Handler) Conversations(c echo.Context) error {
	ctx := c.Request().Context()
	userID := h.identity.UserID(c.Request())

	log.Ctx(ctx).Info().Str("user_id", userID).Msg("fetching chat history")
	history, err := h.service.History(ctx, userID)
	if err != nil {
		return h.fail(c, err, false)
	}

	data := pageData{ChatHistory: history, AuthEnabled: h.identity.AuthEnabled}
	if h.identity.AuthEnabled {
		data.UserEmail = h.identity.Email(c.Request())
	}
	return c.Render(http.StatusOK, "conversations.html", data)
}

// Ask adds a question to a conversation and renders the updated chat. A new
// conversation also gets an out-of-band history item.
// POST /ask
func (h *Handler) Ask(c echo.Context) error {
	ctx := c.Request().Context()

	form, err := c.FormParams()
	if err != nil {
		return c.String(http.StatusBadRequest, "invalid form data")
	}
	if _, ok := form["conversation_id"]; !ok {
		return h.badRequest(c, "missing required form data: conversation_id")
	}
	if _, ok := form["question"]; !ok {
		return h.badRequest(c, "missing required form data: question")
	}
	conversationID := form.Get("conversation_id")
	question := strings.TrimRightFunc(form.Get("question"), unicode.IsSpace)

	userID := h.identity.UserID(c.Request())
	res, err := h.service.Ask(ctx, userID, conversationID, question)
	if err != nil {
		return h.fail(c, err, false)
	}

	body, err := h.templates.render("chat.html", pageData{Conversation: res.Conversation, Sources: res.Sources})
	if err != nil {
		return h.fail(c, err, false)
	}

	if res.IsNew {
		item, err := h.templates.render("conversation_item.html", domain.ConversationSummary{
			ConversationID:  res.Conversation.ConversationID,
			InitialQuestion: question,
			Created:         time.Now(),
		})
		if err != nil {
			return h.fail(c, err, false)
		}
		body = append(body, `<div hx-swap-oob="afterbegin:#conversation-list">`...)
		body = append(body, item...)
		body = append(body, `</div>`...)
	}

	return c.HTMLBlob(http.StatusOK, body)
}

// GetConversation renders a stored conversation.
// GET /conversation/:id
func (h *Handler) GetConversation(c echo.Context) error {
	ctx := c.Request().Context()
	userID := h.identity.UserID(c.Request())

	conv, err := h.service.Conversation(ctx, c.Param("id"), userID)
	if err != nil {
		return h.fail(c, err, false)
	}
	return c.Render(http.StatusOK, "chat.html", pageData{Conversation: conv})
}

// APIAsk starts a new conversation.
// POST /api/ask
func (h *Handler) APIAsk(c echo.Context) error {
	return h.apiAsk(c, "")
}

// APIAskExisting continues a conversation.
// POST /api/ask/:id
func (h *Handler) APIAskExisting(c echo.Context) error {
	id := c.Param("id")
	if id == "" {
		return h.apiBadRequest(c, "missing required path parameter: conversation id")
	}
	return h.apiAsk(c, id)
}

func (h *Handler) apiAsk(c echo.Context, conversationID string) error {
	ctx := c.Request().Context()

	var req domain.AskRequest
	if err := c.Bind(&req); err != nil {
		return h.apiBadRequest(c, "invalid request body")
	}
	if req.Question == nil || *req.Question == "" {
		return h.apiBadRequest(c, "missing required field: question")
	}

	userID := h.identity.UserID(c.Request())
	var (
		res *service.AskResult
		err error
	)
	if conversationID == "" {
		res, err = h.service.Ask(ctx, userID, "", *req.Question)
	} else {
		res, err = h.service.Continue(ctx, userID, conversationID, *req.Question)
	}
	if err != nil {
		return h.fail(c, err, true)
	}

	return c.JSON(http.StatusOK, domain.AskResponse{
		ConversationID: res.Conversation.ConversationID,
		Answer:         res.Answer,
		Sources:        res.Sources,
	})
}

// APIListConversations lists a user's recent conversations.
// GET /api/conversations/users/:user_id
func (h *Handler) APIListConversations(c echo.Context) error {
	history, err := h.service.History(c.Request().Context(), c.Param("user_id"))
	if err != nil {
		return h.fail(c, err, true)
	}
	return c.JSON(http.StatusOK, history)
}

func (h *Handler) badRequest(c echo.Context, msg string) error {
	log.Ctx(c.Request().Context()).Error().Msg(msg)
	return c.String(http.StatusBadRequest, msg)
}

func (h *Handler) apiBadRequest(c echo.Context, msg string) error {
	log.Ctx(c.Request().Context()).Error().Msg(msg)
	return c.JSON(http.StatusBadRequest, map[string]string{"error": msg})
}

// fail maps service errors to responses. Internal details are logged only.
func (h *Handler) fail(c echo.Context, err error, api bool) error {
	status, msg := statusFor(err)
	event := log.Ctx(c.Request().Context()).Error().Err(err).Int("status", status)
	var rie *domain.RuntimeInvocationError
	if errors.As(err, &rie) {
		event = event.Int("runtime_status", rie.StatusCode)
	}
	event.Msg("request failed")

	if api {
		return c.JSON(status, map[string]string{"error": msg})
	}
	return c.String(status, msg)
}

func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, domain.ErrInputValidation):
		return http.StatusBadRequest, strings.TrimPrefix(err.Error(), domain.ErrInputValidation.Error()+": ")
	case errors.Is(err, domain.ErrConversationNotFound):
		return http.StatusNotFound, "conversation not found"
	default:
		return http.StatusInternalServerError, "internal server error"
	}
}
