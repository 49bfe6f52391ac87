package server

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/orionlabs/orion-go/internal/auth"
	"github.com/orionlabs/orion-go/internal/chat"
	"github.com/orionlabs/orion-go/internal/export"
	"github.com/orionlabs/orion-go/internal/logger"
	"github.com/orionlabs/orion-go/internal/store"
)

const userKey = "userID"

type errorBody struct {
	Message string `json:"message"`
}

func formatUserID(id int64) string {
	return strconv.FormatInt(id, 10)
}

func bearerToken(c echo.Context) string {
	header := c.Request().Header.Get(echo.HeaderAuthorization)
	if strings.HasPrefix(header, "Bearer ") {
		return strings.TrimPrefix(header, "Bearer ")
	}
	return ""
}

func (s *Server) callerID(c echo.Context) int64 {
	id, _ := c.Get(userKey).(int64)
	return id
}

func (s *Server) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

// --- chat ---

type chatRequest struct {
	Message      string   `json:"message"`
	SessionID    string   `json:"session_id"`
	Regenerate   bool     `json:"regenerate"`
	Model        string   `json:"model"`
	Temperature  *float32 `json:"temperature"`
	MaxTokens    int      `json:"max_tokens"`
	SystemPrompt string   `json:"system_prompt"`
}

type chatResponse struct {
	Reply        string `json:"reply"`
	Success      bool   `json:"success"`
	SessionID    string `json:"session_id,omitempty"`
	SessionTitle string `json:"session_title,omitempty"`
	Model        string `json:"model,omitempty"`
	TokensUsed   int    `json:"tokens_used,omitempty"`
}

func (s *Server) handleChat(c echo.Context) error {
	var req chatRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, chatResponse{Reply: "Invalid request format.", Success: false})
	}

	result, err := s.turns.Turn(c.Request().Context(), chat.Request{
		UserID:       s.callerID(c),
		SessionID:    req.SessionID,
		Message:      req.Message,
		Regenerate:   req.Regenerate,
		Model:        req.Model,
		Temperature:  req.Temperature,
		MaxTokens:    req.MaxTokens,
		SystemPrompt: req.SystemPrompt,
	})
	if err != nil {
		status, reply := turnFailure(err)
		return c.JSON(status, chatResponse{Reply: reply, Success: false})
	}

	return c.JSON(http.StatusOK, chatResponse{
		Reply:        result.Reply,
		Success:      true,
		SessionID:    result.SessionID,
		SessionTitle: result.SessionTitle,
		Model:        result.Model,
		TokensUsed:   result.TokensUsed,
	})
}

// turnFailure maps a turn error to an HTTP status and caller-safe reply text.
func turnFailure(err error) (int, string) {
	switch {
	case errors.Is(err, chat.ErrInvalidInput):
		return http.StatusBadRequest, "Message is empty or too long."
	case errors.Is(err, chat.ErrNothingToRegenerate):
		return http.StatusBadRequest, "There is no assistant reply to regenerate."
	case errors.Is(err, chat.ErrNotFound):
		return http.StatusNotFound, "Session not found."
	case errors.Is(err, chat.ErrProviderUnavailable):
		return http.StatusServiceUnavailable, "The assistant is unavailable right now. Please try again."
	case errors.Is(err, chat.ErrProviderTimeout):
		return http.StatusGatewayTimeout, "The assistant took too long to respond. Please try again."
	default:
		return http.StatusInternalServerError, "Server error."
	}
}

// --- sessions ---

func (s *Server) ownedSession(c echo.Context) (*store.Session, error) {
	sess, err := s.store.GetSession(c.Request().Context(), c.Param("id"))
	if err != nil {
		return nil, err
	}
	if sess.UserID != s.callerID(c) {
		return nil, store.ErrNotFound
	}
	return sess, nil
}

func (s *Server) sessionNotFound(c echo.Context) error {
	return c.JSON(http.StatusNotFound, errorBody{Message: "session not found"})
}

func (s *Server) handleListSessions(c echo.Context) error {
	includeArchived := c.QueryParam("archived") == "true"
	sessions, err := s.store.ListSessions(c.Request().Context(), s.callerID(c), includeArchived)
	if err != nil {
		logger.L.Error("list sessions", "error", err)
		return c.JSON(http.StatusInternalServerError, errorBody{Message: "server error"})
	}
	return c.JSON(http.StatusOK, map[string]any{"sessions": sessions})
}

type createSessionRequest struct {
	Title        string `json:"title"`
	Model        string `json:"model"`
	SystemPrompt string `json:"system_prompt"`
}

func (s *Server) handleCreateSession(c echo.Context) error {
	var req createSessionRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, errorBody{Message: "invalid request body"})
	}
	sess := &store.Session{
		UserID:       s.callerID(c),
		Title:        strings.TrimSpace(req.Title),
		Model:        req.Model,
		SystemPrompt: req.SystemPrompt,
		Temperature:  float64(s.cfg.Provider.Temperature),
		MaxTokens:    s.cfg.Provider.MaxTokens,
	}
	if sess.Model == "" {
		sess.Model = s.cfg.Provider.Model
	}
	created, err := s.store.CreateSession(c.Request().Context(), sess)
	if err != nil {
		logger.L.Error("create session", "error", err)
		return c.JSON(http.StatusInternalServerError, errorBody{Message: "server error"})
	}
	return c.JSON(http.StatusCreated, created)
}

func (s *Server) handleSearchSessions(c echo.Context) error {
	query := strings.TrimSpace(c.QueryParam("q"))
	if query == "" {
		return c.JSON(http.StatusBadRequest, errorBody{Message: "missing query"})
	}
	sessions, err := s.store.SearchSessions(c.Request().Context(), s.callerID(c), query)
	if err != nil {
		logger.L.Error("search sessions", "error", err)
		return c.JSON(http.StatusInternalServerError, errorBody{Message: "server error"})
	}
	return c.JSON(http.StatusOK, map[string]any{"sessions": sessions})
}

func (s *Server) handleGetSession(c echo.Context) error {
	sess, err := s.ownedSession(c)
	if err != nil {
		return s.sessionNotFound(c)
	}
	return c.JSON(http.StatusOK, sess)
}

type updateSessionRequest struct {
	Title        *string `json:"title"`
	SystemPrompt *string `json:"system_prompt"`
	Model        *string `json:"model"`
}

func (s *Server) handleUpdateSession(c echo.Context) error {
	sess, err := s.ownedSession(c)
	if err != nil {
		return s.sessionNotFound(c)
	}
	var req updateSessionRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, errorBody{Message: "invalid request body"})
	}

	ctx := c.Request().Context()
	if req.Title != nil {
		title := strings.TrimSpace(*req.Title)
		if title == "" {
			return c.JSON(http.StatusBadRequest, errorBody{Message: "title cannot be empty"})
		}
		if err := s.store.RenameSession(ctx, sess.ID, title); err != nil {
			logger.L.Error("rename session", "session", sess.ID, "error", err)
			return c.JSON(http.StatusInternalServerError, errorBody{Message: "server error"})
		}
	}
	if req.SystemPrompt != nil {
		if err := s.store.SetSessionPrompt(ctx, sess.ID, *req.SystemPrompt); err != nil {
			logger.L.Error("set session prompt", "session", sess.ID, "error", err)
			return c.JSON(http.StatusInternalServerError, errorBody{Message: "server error"})
		}
	}
	if req.Model != nil && *req.Model != "" {
		if err := s.store.SetSessionModel(ctx, sess.ID, *req.Model); err != nil {
			logger.L.Error("set session model", "session", sess.ID, "error", err)
			return c.JSON(http.StatusInternalServerError, errorBody{Message: "server error"})
		}
	}

	updated, err := s.store.GetSession(ctx, sess.ID)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, errorBody{Message: "server error"})
	}
	return c.JSON(http.StatusOK, updated)
}

func (s *Server) handleDeleteSession(c echo.Context) error {
	sess, err := s.ownedSession(c)
	if err != nil {
		return s.sessionNotFound(c)
	}
	if err := s.store.DeleteSession(c.Request().Context(), sess.ID); err != nil {
		logger.L.Error("delete session", "session", sess.ID, "error", err)
		return c.JSON(http.StatusInternalServerError, errorBody{Message: "server error"})
	}
	return c.NoContent(http.StatusNoContent)
}

func (s *Server) handleToggleArchived(c echo.Context) error {
	sess, err := s.ownedSession(c)
	if err != nil {
		return s.sessionNotFound(c)
	}
	archived, err := s.store.ToggleArchived(c.Request().Context(), sess.ID)
	if err != nil {
		logger.L.Error("toggle archived", "session", sess.ID, "error", err)
		return c.JSON(http.StatusInternalServerError, errorBody{Message: "server error"})
	}
	return c.JSON(http.StatusOK, map[string]bool{"is_archived": archived})
}

func (s *Server) handleTogglePinned(c echo.Context) error {
	sess, err := s.ownedSession(c)
	if err != nil {
		return s.sessionNotFound(c)
	}
	pinned, err := s.store.TogglePinned(c.Request().Context(), sess.ID)
	if err != nil {
		logger.L.Error("toggle pinned", "session", sess.ID, "error", err)
		return c.JSON(http.StatusInternalServerError, errorBody{Message: "server error"})
	}
	return c.JSON(http.StatusOK, map[string]bool{"is_pinned": pinned})
}

func (s *Server) handleListMessages(c echo.Context) error {
	sess, err := s.ownedSession(c)
	if err != nil {
		return s.sessionNotFound(c)
	}
	msgs, err := s.store.Messages(c.Request().Context(), sess.ID)
	if err != nil {
		logger.L.Error("list messages", "session", sess.ID, "error", err)
		return c.JSON(http.StatusInternalServerError, errorBody{Message: "server error"})
	}
	return c.JSON(http.StatusOK, map[string]any{"messages": msgs})
}

func (s *Server) handleExport(c echo.Context) error {
	sess, err := s.ownedSession(c)
	if err != nil {
		return s.sessionNotFound(c)
	}
	msgs, err := s.store.Messages(c.Request().Context(), sess.ID)
	if err != nil {
		logger.L.Error("export messages", "session", sess.ID, "error", err)
		return c.JSON(http.StatusInternalServerError, errorBody{Message: "server error"})
	}
	body, contentType, err := export.Render(sess, msgs, export.Format(c.QueryParam("format")))
	if err != nil {
		return c.JSON(http.StatusBadRequest, errorBody{Message: err.Error()})
	}
	return c.Blob(http.StatusOK, contentType, []byte(body))
}

// --- auth ---

type registerRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (s *Server) handleRegister(c echo.Context) error {
	if !s.auth.Enabled() {
		return c.JSON(http.StatusNotFound, errorBody{Message: "registration disabled"})
	}
	var req registerRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, errorBody{Message: "invalid request body"})
	}
	req.Username = strings.TrimSpace(req.Username)
	if req.Username == "" || req.Email == "" || len(req.Password) < 8 {
		return c.JSON(http.StatusBadRequest, errorBody{Message: "username, email and a password of at least 8 characters are required"})
	}
	user, err := s.auth.Register(c.Request().Context(), req.Username, req.Email, req.Password)
	if err != nil {
		if errors.Is(err, auth.ErrUserExists) {
			return c.JSON(http.StatusConflict, errorBody{Message: "user already exists"})
		}
		logger.L.Error("register", "error", err)
		return c.JSON(http.StatusInternalServerError, errorBody{Message: "server error"})
	}
	return c.JSON(http.StatusCreated, user)
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

func (s *Server) handleLogin(c echo.Context) error {
	if !s.auth.Enabled() {
		return c.JSON(http.StatusNotFound, errorBody{Message: "login disabled"})
	}
	var req loginRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, errorBody{Message: "invalid request body"})
	}
	token, user, err := s.auth.Login(c.Request().Context(), req.Username, req.Password)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, errorBody{Message: "invalid credentials"})
	}
	c.SetCookie(&http.Cookie{
		Name:     auth.CookieName,
		Value:    token,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		Expires:  time.Now().Add(30 * 24 * time.Hour),
	})
	return c.JSON(http.StatusOK, map[string]any{"token": token, "user": user})
}

// --- usage ---

func (s *Server) handleUsage(c echo.Context) error {
	tokens, cost, err := s.store.UsageSummary(c.Request().Context(), s.callerID(c))
	if err != nil {
		logger.L.Error("usage summary", "error", err)
		return c.JSON(http.StatusInternalServerError, errorBody{Message: "server error"})
	}
	return c.JSON(http.StatusOK, map[string]any{"tokens_used": tokens, "cost": cost})
}
