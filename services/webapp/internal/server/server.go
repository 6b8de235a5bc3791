// Package server exposes the webapp HTTP API.
package server

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"docchatai/internal/util"
	"docchatai/pkg/directory"
	"docchatai/services/webapp/internal/app"
)

const maxJSONBody = 1 << 20

// TokenVerifier validates a bearer token and returns the user's email.
type TokenVerifier interface {
	VerifyEmail(token string) (string, error)
}

// RateLimiter admits or rejects a request for a key.
type RateLimiter interface {
	Allow(key string) bool
}

// Config wires required dependencies for the HTTP server.
type Config struct {
	App      *app.App
	Verifier TokenVerifier

	// UploadLimiter and AskLimiter are optional; nil disables limiting.
	UploadLimiter RateLimiter
	AskLimiter    RateLimiter

	MaxUploadBytes int64
}

// Server exposes the webapp's HTTP endpoints.
type Server struct {
	app            *app.App
	verifier       TokenVerifier
	uploadLimiter  RateLimiter
	askLimiter     RateLimiter
	maxUploadBytes int64
	mux            *http.ServeMux
}

// userHandler is a handler that runs with a verified user identity.
type userHandler func(w http.ResponseWriter, r *http.Request, userEmail string)

// New constructs the server with routes configured.
func New(cfg Config) *Server {
	maxBytes := cfg.MaxUploadBytes
	if maxBytes <= 0 {
		maxBytes = 50 << 20
	}
	s := &Server{
		app:            cfg.App,
		verifier:       cfg.Verifier,
		uploadLimiter:  cfg.UploadLimiter,
		askLimiter:     cfg.AskLimiter,
		maxUploadBytes: maxBytes,
		mux:            http.NewServeMux(),
	}
	s.routes()
	return s
}

// Router returns the configured handler with CORS and security headers.
func (s *Server) Router() http.Handler {
	return util.WithSecurityHeaders(util.WithCORS(s.mux))
}

func (s *Server) routes() {
	s.mux.HandleFunc("/healthz", s.handleHealth)
	s.mux.Handle("/api/channels", s.authenticated(s.handleChannels))
	s.mux.Handle("/api/channels/", s.authenticated(s.handleChannelTree))
	s.mux.Handle("/api/ask", s.authenticated(s.handleAsk))
	s.mux.Handle("/api/users/search", s.authenticated(s.handleUserSearch))
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// authenticated verifies the bearer token and passes the user's email on.
func (s *Server) authenticated(next userHandler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || strings.TrimSpace(token) == "" {
			s.audit(r, "auth_missing_token", "denied")
			writeError(w, http.StatusUnauthorized, "missing bearer token")
			return
		}
		email, err := s.verifier.VerifyEmail(strings.TrimSpace(token))
		if err != nil {
			s.audit(r, "auth_invalid_token", "denied", "error", err.Error())
			writeError(w, http.StatusUnauthorized, "invalid token")
			return
		}
		next(w, r, email)
	})
}

func (s *Server) handleChannels(w http.ResponseWriter, r *http.Request, userEmail string) {
	switch r.Method {
	case http.MethodGet:
		channels, err := s.app.Channels(userEmail)
		if err != nil {
			slog.Error("list channels failed", "user", userEmail, "error", err)
			writeError(w, http.StatusInternalServerError, "internal error")
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"channels": channels})
	case http.MethodPost:
		var req struct {
			Name string `json:"name"`
		}
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid JSON body")
			return
		}
		container, err := s.app.CreateChannel(r.Context(), req.Name)
		if err != nil {
			s.audit(r, "channel_created", "failure", "name", req.Name)
			writeError(w, statusForError(err), safeMessage(err))
			return
		}
		s.audit(r, "channel_created", "success", "channel", container, "user", userEmail)
		writeJSON(w, http.StatusCreated, map[string]string{"channel": container})
	default:
		methodNotAllowed(w)
	}
}

// handleChannelTree dispatches /api/channels/{channel}/files[/{file}[/access]].
func (s *Server) handleChannelTree(w http.ResponseWriter, r *http.Request, userEmail string) {
	rest := strings.TrimPrefix(r.URL.Path, "/api/channels/")
	parts := strings.Split(rest, "/")
	switch {
	case len(parts) == 2 && parts[1] == "files":
		s.handleFiles(w, r, userEmail, parts[0])
	case len(parts) == 3 && parts[1] == "files" && parts[2] != "":
		s.handleFile(w, r, userEmail, parts[0], parts[2])
	case len(parts) == 4 && parts[1] == "files" && parts[3] == "access":
		s.handleFileAccess(w, r, userEmail, parts[0], parts[2])
	default:
		http.NotFound(w, r)
	}
}

func (s *Server) handleFiles(w http.ResponseWriter, r *http.Request, userEmail, channel string) {
	switch r.Method {
	case http.MethodGet:
		files, err := s.app.ListFiles(r.Context(), channel, userEmail)
		if err != nil {
			writeError(w, statusForError(err), safeMessage(err))
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"files": files})
	case http.MethodPost:
		s.handleUpload(w, r, userEmail, channel)
	default:
		methodNotAllowed(w)
	}
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request, userEmail, channel string) {
	if !s.allowRate(w, r, s.uploadLimiter, "too many uploads, slow down") {
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, s.maxUploadBytes+(1<<20))
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		writeError(w, http.StatusBadRequest, "invalid multipart form")
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "file field is required")
		return
	}
	defer file.Close()

	level := r.FormValue("accessLevel")
	if level == "" {
		level = "organization"
	}
	result, err := s.app.UploadFile(r.Context(), app.UploadRequest{
		Channel:       channel,
		FileName:      header.Filename,
		Content:       file,
		Size:          header.Size,
		AccessLevel:   level,
		Users:         splitEmails(r.FormValue("users")),
		UploaderEmail: userEmail,
	})
	if err != nil {
		s.audit(r, "file_uploaded", "failure", "channel", channel, "file", header.Filename, "user", userEmail)
		writeError(w, statusForError(err), safeMessage(err))
		return
	}
	s.audit(r, "file_uploaded", "success",
		"channel", result.Channel, "file", result.FileName, "level", level, "user", userEmail)
	writeJSON(w, http.StatusCreated, result)
}

func (s *Server) handleFile(w http.ResponseWriter, r *http.Request, userEmail, channel, fileName string) {
	if r.Method != http.MethodDelete {
		methodNotAllowed(w)
		return
	}
	if err := s.app.DeleteFile(r.Context(), channel, fileName); err != nil {
		s.audit(r, "file_deleted", "failure", "channel", channel, "file", fileName, "user", userEmail)
		writeError(w, statusForError(err), safeMessage(err))
		return
	}
	s.audit(r, "file_deleted", "success", "channel", channel, "file", fileName, "user", userEmail)
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

func (s *Server) handleFileAccess(w http.ResponseWriter, r *http.Request, userEmail, channel, fileName string) {
	switch r.Method {
	case http.MethodPut:
		var req struct {
			AccessLevel string   `json:"accessLevel"`
			Users       []string `json:"users"`
		}
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid JSON body")
			return
		}
		if err := s.app.UpdateAccess(channel, fileName, req.AccessLevel, req.Users, userEmail); err != nil {
			s.audit(r, "access_updated", "failure", "channel", channel, "file", fileName, "user", userEmail)
			writeError(w, statusForError(err), safeMessage(err))
			return
		}
		s.audit(r, "access_updated", "success",
			"channel", channel, "file", fileName, "level", req.AccessLevel, "user", userEmail)
		writeJSON(w, http.StatusOK, map[string]string{"status": "updated"})
	case http.MethodDelete:
		if err := s.app.RemoveAccess(channel, fileName); err != nil {
			s.audit(r, "access_removed", "failure", "channel", channel, "file", fileName, "user", userEmail)
			writeError(w, statusForError(err), safeMessage(err))
			return
		}
		s.audit(r, "access_removed", "success", "channel", channel, "file", fileName, "user", userEmail)
		writeJSON(w, http.StatusOK, map[string]string{"status": "removed"})
	default:
		methodNotAllowed(w)
	}
}

func (s *Server) handleAsk(w http.ResponseWriter, r *http.Request, userEmail string) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	if !s.allowRate(w, r, s.askLimiter, "too many questions, slow down") {
		return
	}
	var req struct {
		Channel  string `json:"channel"`
		Question string `json:"question"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	answer, err := s.app.Ask(r.Context(), req.Channel, req.Question, userEmail)
	if err != nil {
		writeError(w, statusForError(err), safeMessage(err))
		return
	}
	writeJSON(w, http.StatusOK, answer)
}

func (s *Server) handleUserSearch(w http.ResponseWriter, r *http.Request, _ string) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	users, err := s.app.SearchUsers(r.Context(), r.URL.Query().Get("q"), limit)
	if err != nil {
		var apiErr *directory.APIError
		if errors.As(err, &apiErr) {
			slog.Warn("directory lookup rejected", "status", apiErr.Status, "error", apiErr.Message)
		} else {
			slog.Error("directory lookup failed", "error", err)
		}
		writeError(w, http.StatusBadGateway, "directory unavailable")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"users": users})
}

// allowRate applies a fixed-window limit keyed by route and client address.
func (s *Server) allowRate(w http.ResponseWriter, r *http.Request, limiter RateLimiter, msg string) bool {
	if limiter == nil {
		return true
	}
	key := r.URL.Path + "|" + util.ClientIP(r)
	if limiter.Allow(key) {
		return true
	}
	s.audit(r, "rate_limited", "denied")
	w.Header().Set("Retry-After", "60")
	writeError(w, http.StatusTooManyRequests, msg)
	return false
}

func (s *Server) audit(r *http.Request, event, outcome string, attrs ...any) {
	args := append([]any{
		"event", event,
		"outcome", outcome,
		"path", r.URL.Path,
		"method", r.Method,
		"ip", util.ClientIP(r),
	}, attrs...)
	if outcome == "success" {
		slog.Info("security_event", args...)
		return
	}
	slog.Warn("security_event", args...)
}

func statusForError(err error) int {
	switch {
	case errors.Is(err, app.ErrInvalidChannelName),
		errors.Is(err, app.ErrInvalidFileName),
		errors.Is(err, app.ErrUnsupportedFileType),
		errors.Is(err, app.ErrInvalidAccessLevel),
		errors.Is(err, app.ErrQuestionRequired):
		return http.StatusBadRequest
	case errors.Is(err, app.ErrFileTooLarge):
		return http.StatusRequestEntityTooLarge
	default:
		return http.StatusInternalServerError
	}
}

// safeMessage keeps backend detail out of client responses.
func safeMessage(err error) string {
	if statusForError(err) == http.StatusInternalServerError {
		slog.Error("request failed", "error", err)
		return "internal error"
	}
	return err.Error()
}

func splitEmails(raw string) []string {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	emails := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			emails = append(emails, trimmed)
		}
	}
	return emails
}

func decodeJSON(r *http.Request, dst any) error {
	return json.NewDecoder(io.LimitReader(r.Body, maxJSONBody)).Decode(dst)
}

func methodNotAllowed(w http.ResponseWriter) {
	writeError(w, http.StatusMethodNotAllowed, "method not allowed")
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
