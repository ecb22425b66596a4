// Package server exposes the HTTP API.
package server

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"bilichat/internal/app"
	"bilichat/internal/usertoken"
	"bilichat/internal/util"
	"bilichat/pkg/ai"
	"bilichat/pkg/auth"
	"bilichat/pkg/domain"
	"bilichat/pkg/i18n"
	"bilichat/pkg/store"
)

// Config wires required dependencies for the HTTP server.
type Config struct {
	App    *app.App
	Store  store.Store
	Tokens *usertoken.Manager
	Ollama *ai.OllamaClient
}

// Server exposes HTTP endpoints for the chat backend.
type Server struct {
	app    *app.App
	store  store.Store
	tokens *usertoken.Manager
	ollama *ai.OllamaClient
	mux    *http.ServeMux
}

// New constructs the server with routes configured.
func New(cfg Config) *Server {
	s := &Server{
		app:    cfg.App,
		store:  cfg.Store,
		tokens: cfg.Tokens,
		ollama: cfg.Ollama,
		mux:    http.NewServeMux(),
	}
	s.routes()
	return s
}

// Router returns the configured handler with the middleware chain applied.
func (s *Server) Router() http.Handler {
	return util.WithSecurityHeaders(util.WithCORS(util.WithRequestID(util.WithRequestLog("bilichat", s.mux))))
}

func (s *Server) routes() {
	s.mux.HandleFunc("GET /healthz", s.handleHealth)
	s.mux.HandleFunc("GET /api/models", s.handleListModels)
	s.mux.HandleFunc("POST /api/auth/signup", s.handleSignup)
	s.mux.HandleFunc("POST /api/auth/login", s.handleLogin)
	s.mux.Handle("GET /api/users/me", s.withUser(s.handleMe))
	s.mux.Handle("POST /api/chat", s.withUser(s.handleSendMessage))
	s.mux.Handle("POST /api/chat/stream", s.withUser(s.handleStreamChat))
	s.mux.Handle("GET /api/chat", s.withUser(s.handleListChats))
	s.mux.Handle("DELETE /api/chat/{id}", s.withUser(s.handleDeleteChat))
	s.mux.Handle("GET /api/profile/summary", s.withUser(s.handleProfileSummary))
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type userHandler func(http.ResponseWriter, *http.Request, domain.User)

// withUser authenticates the bearer token and resolves the full user record
// so handlers get the stored language preference, not a guess.
func (s *Server) withUser(next userHandler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		lang := i18n.FromAcceptLanguage(r.Header.Get("Accept-Language"))
		token, ok := bearerToken(r)
		if !ok {
			writeError(w, http.StatusUnauthorized, i18n.T(lang, "auth_required"))
			return
		}
		userID, err := s.tokens.VerifySubject(token)
		if err != nil {
			writeError(w, http.StatusUnauthorized, i18n.T(lang, "auth_invalid_token"))
			return
		}
		user, found, err := s.store.GetUserByID(userID)
		if err != nil || !found {
			writeError(w, http.StatusUnauthorized, i18n.T(lang, "auth_invalid_token"))
			return
		}
		next(w, r, user)
	})
}

type signupRequest struct {
	Email    string          `json:"email"`
	Password string          `json:"password"`
	Language domain.Language `json:"language,omitempty"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type authResponse struct {
	Token string      `json:"token"`
	User  domain.User `json:"user"`
}

func (s *Server) handleSignup(w http.ResponseWriter, r *http.Request) {
	lang := i18n.FromAcceptLanguage(r.Header.Get("Accept-Language"))
	var req signupRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, i18n.T(lang, "error_invalid_input"))
		return
	}
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	if req.Email == "" || len(req.Password) < 8 {
		writeError(w, http.StatusBadRequest, i18n.T(lang, "error_invalid_input"))
		return
	}
	if req.Language != domain.LangArabic {
		req.Language = domain.LangEnglish
	}
	exists, err := s.store.HasUserEmail(req.Email)
	if err != nil {
		s.serverError(w, r, lang, err)
		return
	}
	if exists {
		writeError(w, http.StatusConflict, i18n.T(lang, "error_invalid_input"))
		return
	}
	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		s.serverError(w, r, lang, err)
		return
	}
	now := time.Now().UTC()
	user := domain.User{
		ID:           util.NewID(),
		Email:        req.Email,
		PasswordHash: hash,
		Language:     req.Language,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.store.SaveUser(user); err != nil {
		s.serverError(w, r, lang, err)
		return
	}
	token, err := s.tokens.Issue(user.ID)
	if err != nil {
		s.serverError(w, r, lang, err)
		return
	}
	writeJSON(w, http.StatusCreated, authResponse{Token: token, User: user})
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	lang := i18n.FromAcceptLanguage(r.Header.Get("Accept-Language"))
	var req loginRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, i18n.T(lang, "error_invalid_input"))
		return
	}
	user, found, err := s.store.GetUserByEmail(strings.ToLower(strings.TrimSpace(req.Email)))
	if err != nil {
		s.serverError(w, r, lang, err)
		return
	}
	if !found || !auth.CheckPassword(req.Password, user.PasswordHash) {
		writeError(w, http.StatusUnauthorized, i18n.T(lang, "auth_invalid_token"))
		return
	}
	token, err := s.tokens.Issue(user.ID)
	if err != nil {
		s.serverError(w, r, lang, err)
		return
	}
	writeJSON(w, http.StatusOK, authResponse{Token: token, User: user})
}

func (s *Server) handleMe(w http.ResponseWriter, _ *http.Request, user domain.User) {
	writeJSON(w, http.StatusOK, user)
}

func (s *Server) handleSendMessage(w http.ResponseWriter, r *http.Request, user domain.User) {
	var req app.ChatRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, i18n.T(user.Language, "error_invalid_input"))
		return
	}
	if req.Model == "" {
		req.Model = domain.ModelLlama
	}
	if !domain.KnownModel(req.Model) || !validRoles(req.Messages) {
		writeError(w, http.StatusBadRequest, i18n.T(user.Language, "error_invalid_input"))
		return
	}
	chat, err := s.app.SendMessage(r.Context(), user, req)
	if err != nil {
		s.chatError(w, r, user.Language, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"chat":    chat,
		"message": i18n.T(user.Language, "chat_saved"),
	})
}

func (s *Server) handleListChats(w http.ResponseWriter, r *http.Request, user domain.User) {
	chats, err := s.app.ListChats(r.Context(), user.ID)
	if err != nil {
		s.serverError(w, r, user.Language, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"chats": chats})
}

func (s *Server) handleDeleteChat(w http.ResponseWriter, r *http.Request, user domain.User) {
	chatID := r.PathValue("id")
	if chatID == "" {
		writeError(w, http.StatusBadRequest, i18n.T(user.Language, "error_invalid_input"))
		return
	}
	if err := s.app.DeleteChat(r.Context(), chatID, user.ID); err != nil {
		if errors.Is(err, app.ErrChatNotFound) {
			writeError(w, http.StatusNotFound, i18n.T(user.Language, "error_not_found"))
			return
		}
		s.serverError(w, r, user.Language, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"message": i18n.T(user.Language, "chat_deleted"),
	})
}

func (s *Server) handleProfileSummary(w http.ResponseWriter, r *http.Request, user domain.User) {
	summary, found, err := s.app.ProfileSummary(r.Context(), user.ID)
	if err != nil {
		s.serverError(w, r, user.Language, err)
		return
	}
	if !found {
		writeError(w, http.StatusNotFound, i18n.T(user.Language, "error_not_found"))
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"summary": summary})
}

func (s *Server) chatError(w http.ResponseWriter, r *http.Request, lang domain.Language, err error) {
	switch {
	case errors.Is(err, app.ErrInvalidInput):
		writeError(w, http.StatusBadRequest, i18n.T(lang, "error_invalid_input"))
	case errors.Is(err, app.ErrChatNotFound):
		writeError(w, http.StatusNotFound, i18n.T(lang, "error_not_found"))
	default:
		s.serverError(w, r, lang, err)
	}
}

// serverError hides detail from the client; the full error only hits logs.
func (s *Server) serverError(w http.ResponseWriter, r *http.Request, lang domain.Language, err error) {
	util.LoggerFromContext(r.Context()).Error("request failed", "path", r.URL.Path, "err", err)
	writeError(w, http.StatusInternalServerError, i18n.T(lang, "error_server"))
}

func validRoles(messages []domain.ChatMessage) bool {
	for _, m := range messages {
		if m.Role != domain.RoleUser && m.Role != domain.RoleAssistant {
			return false
		}
		if m.Content == "" {
			return false
		}
	}
	return true
}

func decodeBody(r *http.Request, out any) error {
	return json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(out)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func bearerToken(r *http.Request) (string, bool) {
	authHeader := r.Header.Get("Authorization")
	if !strings.HasPrefix(authHeader, "Bearer ") {
		return "", false
	}
	token := strings.TrimSpace(strings.TrimPrefix(authHeader, "Bearer "))
	if token == "" {
		return "", false
	}
	return token, true
}
