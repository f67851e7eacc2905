package app

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"

	"tickbox/internal/auth"
	"tickbox/internal/store"
)

const stateCookieName = "tickbox_oauth_state"
const stateTTL = 10 * time.Minute

type HTTPServer struct {
	service        *Service
	frontendOrigin string
}

func NewHTTPServer(service *Service, frontendOrigin string) *HTTPServer {
	return &HTTPServer{service: service, frontendOrigin: frontendOrigin}
}

func (s *HTTPServer) Handler() http.Handler {
	return s.withMiddleware(http.HandlerFunc(s.handle))
}

func (s *HTTPServer) handle(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodOptions {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	if (r.Method == http.MethodGet || r.Method == http.MethodHead) && r.URL.Path == "/api/health" {
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
		return
	}

	if (r.Method == http.MethodGet || r.Method == http.MethodHead) && r.URL.Path == "/api/ready" {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		status := "ready"
		statusCode := http.StatusOK
		checks := map[string]any{
			"database": map[string]any{"status": "ok"},
		}

		if err := s.service.Ping(ctx); err != nil {
			status = "not_ready"
			statusCode = http.StatusServiceUnavailable
			checks["database"] = map[string]any{
				"status": "error",
				"error":  err.Error(),
			}
		}

		writeJSON(w, statusCode, map[string]any{
			"ok":     status == "ready",
			"status": status,
			"checks": checks,
		})
		return
	}

	// Auth routes (no session required)
	if r.Method == http.MethodGet && r.URL.Path == "/auth/google" {
		s.handleGoogleStart(w, r)
		return
	}

	if r.Method == http.MethodGet && r.URL.Path == "/auth/google/callback" {
		s.handleGoogleCallback(w, r)
		return
	}

	if r.Method == http.MethodGet && r.URL.Path == "/auth/me" {
		token := s.sessionToken(r)
		if token == "" {
			writeJSON(w, http.StatusOK, map[string]any{"user": nil})
			return
		}
		session, err := s.service.SessionFromToken(r.Context(), token)
		if err != nil {
			writeJSON(w, http.StatusOK, map[string]any{"user": nil})
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"user": userPayload(session)})
		return
	}

	if r.Method == http.MethodPost && r.URL.Path == "/auth/logout" {
		session, ok := s.requireSession(w, r)
		if !ok {
			return
		}
		if err := s.service.Logout(r.Context(), session.Token); err != nil {
			writeError(w, http.StatusInternalServerError, "SERVER_ERROR", "Logout failed", nil)
			return
		}
		s.clearSessionCookie(w)
		writeJSON(w, http.StatusOK, map[string]any{"message": "Logged out successfully"})
		return
	}

	if r.URL.Path == "/api/todos" {
		session, ok := s.requireSession(w, r)
		if !ok {
			return
		}
		s.handleTodoCollection(w, r, session)
		return
	}

	if strings.HasPrefix(r.URL.Path, "/api/todos/") {
		session, ok := s.requireSession(w, r)
		if !ok {
			return
		}
		parts := splitPath(r.URL.Path)
		if len(parts) != 3 {
			writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
			return
		}
		s.handleTodoItem(w, r, session, parts[2])
		return
	}

	writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
}

func (s *HTTPServer) handleTodoCollection(w http.ResponseWriter, r *http.Request, session Session) {
	if r.Method == http.MethodGet {
		todos, err := s.service.ListTodos(r.Context(), session.User.ID)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "SERVER_ERROR", "Failed to fetch todos", nil)
			return
		}
		payload := make([]map[string]any, 0, len(todos))
		for _, t := range todos {
			payload = append(payload, todoPayload(t))
		}
		writeJSON(w, http.StatusOK, payload)
		return
	}

	if r.Method == http.MethodPost {
		var body struct {
			Title       string `json:"title"`
			Description string `json:"description"`
		}
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		todo, err := s.service.CreateTodo(r.Context(), session.User.ID, body.Title, body.Description)
		if err != nil {
			status, code, message, details := mapError(err)
			writeError(w, status, code, message, details)
			return
		}
		writeJSON(w, http.StatusCreated, todoPayload(todo))
		return
	}

	writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
}

func (s *HTTPServer) handleTodoItem(w http.ResponseWriter, r *http.Request, session Session, todoID string) {
	if r.Method == http.MethodPatch {
		var body TodoPatchInput
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		todo, err := s.service.UpdateTodo(r.Context(), session.User.ID, todoID, body)
		if err != nil {
			status, code, message, details := mapError(err)
			writeError(w, status, code, message, details)
			return
		}
		writeJSON(w, http.StatusOK, todoPayload(todo))
		return
	}

	if r.Method == http.MethodDelete {
		if err := s.service.DeleteTodo(r.Context(), session.User.ID, todoID); err != nil {
			status, code, message, details := mapError(err)
			writeError(w, status, code, message, details)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"message": "Todo deleted successfully"})
		return
	}

	writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
}

func (s *HTTPServer) handleGoogleStart(w http.ResponseWriter, r *http.Request) {
	if !s.service.OAuthEnabled() {
		writeError(w, http.StatusServiceUnavailable, "AUTH_UNAVAILABLE", "Sign-in is not configured", nil)
		return
	}
	state, err := auth.IssueState([]byte(s.service.cfg.SessionSecret), stateTTL)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "SERVER_ERROR", "Sign-in failed", nil)
		return
	}
	http.SetCookie(w, &http.Cookie{
		Name:     stateCookieName,
		Value:    state,
		Path:     "/auth",
		MaxAge:   int(stateTTL.Seconds()),
		HttpOnly: true,
		Secure:   s.service.cfg.Production(),
		SameSite: http.SameSiteLaxMode,
	})
	http.Redirect(w, r, s.service.GoogleAuthURL(state), http.StatusFound)
}

func (s *HTTPServer) handleGoogleCallback(w http.ResponseWriter, r *http.Request) {
	if !s.service.OAuthEnabled() {
		writeError(w, http.StatusServiceUnavailable, "AUTH_UNAVAILABLE", "Sign-in is not configured", nil)
		return
	}

	state := r.URL.Query().Get("state")
	cookie, err := r.Cookie(stateCookieName)
	if err != nil || state == "" || cookie.Value != state {
		writeError(w, http.StatusBadRequest, "INVALID_STATE", "Sign-in failed", nil)
		return
	}
	if err := auth.VerifyState([]byte(s.service.cfg.SessionSecret), state); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_STATE", "Sign-in failed", nil)
		return
	}

	code := r.URL.Query().Get("code")
	if code == "" {
		writeError(w, http.StatusBadRequest, "INVALID_STATE", "Sign-in failed", nil)
		return
	}

	session, err := s.service.SignInWithCode(r.Context(), code)
	if err != nil {
		status, codeStr, message, details := mapError(err)
		writeError(w, status, codeStr, message, details)
		return
	}

	// One-shot state cookie; drop it now that the flow completed.
	http.SetCookie(w, &http.Cookie{
		Name:     stateCookieName,
		Value:    "",
		Path:     "/auth",
		MaxAge:   -1,
		HttpOnly: true,
	})
	s.setSessionCookie(w, session)
	http.Redirect(w, r, s.frontendOrigin, http.StatusFound)
}

func (s *HTTPServer) setSessionCookie(w http.ResponseWriter, session Session) {
	http.SetCookie(w, &http.Cookie{
		Name:     s.service.cfg.CookieName,
		Value:    session.Token,
		Path:     "/",
		MaxAge:   int(time.Until(session.ExpiresAt).Seconds()),
		HttpOnly: true,
		Secure:   s.service.cfg.Production(),
		SameSite: http.SameSiteLaxMode,
	})
}

func (s *HTTPServer) clearSessionCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     s.service.cfg.CookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   s.service.cfg.Production(),
		SameSite: http.SameSiteLaxMode,
	})
}

func (s *HTTPServer) sessionToken(r *http.Request) string {
	cookie, err := r.Cookie(s.service.cfg.CookieName)
	if err != nil {
		return ""
	}
	return cookie.Value
}

// requireSession is the gate in front of every todo route: no resolved
// identity, no service call. The rejection carries no detail beyond
// "unauthenticated".
func (s *HTTPServer) requireSession(w http.ResponseWriter, r *http.Request) (Session, bool) {
	token := s.sessionToken(r)
	if token == "" {
		writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Unauthorized", nil)
		return Session{}, false
	}
	session, err := s.service.SessionFromToken(r.Context(), token)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Unauthorized", nil)
		return Session{}, false
	}
	return session, true
}

func (s *HTTPServer) withMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get("X-Request-ID")
		if requestID == "" {
			requestID = randomRequestID()
		}
		ctx := context.WithValue(r.Context(), requestIDKey{}, requestID)
		r = r.WithContext(ctx)

		started := time.Now()
		writer := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		s.setCORSHeaders(writer.Header(), r)
		writer.Header().Set("X-Request-ID", requestID)

		next.ServeHTTP(writer, r)

		log.Printf(`{"request_id":"%s","method":"%s","path":"%s","status":%d,"duration_ms":%d}`,
			requestID,
			r.Method,
			r.URL.Path,
			writer.status,
			time.Since(started).Milliseconds(),
		)
	})
}

type requestIDKey struct{}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func randomRequestID() string {
	buf := make([]byte, 8)
	_, _ = rand.Read(buf)
	return hex.EncodeToString(buf)
}

// setCORSHeaders echoes the single configured origin. Credentialed requests
// forbid a wildcard, so anything else gets no CORS grant at all.
func (s *HTTPServer) setCORSHeaders(header http.Header, r *http.Request) {
	origin := r.Header.Get("Origin")
	if origin != "" && origin == s.frontendOrigin {
		header.Set("Access-Control-Allow-Origin", origin)
		header.Set("Access-Control-Allow-Credentials", "true")
		header.Set("Vary", "Origin")
	}
	header.Set("Access-Control-Allow-Headers", "Content-Type, X-Request-ID")
	header.Set("Access-Control-Allow-Methods", "GET,POST,PATCH,DELETE,OPTIONS")
	header.Set("Cache-Control", "no-store")
	header.Set("Content-Type", "application/json")
}

func todoPayload(t store.Todo) map[string]any {
	return map[string]any{
		"id":          t.ID,
		"title":       t.Title,
		"description": t.Description,
		"completed":   t.Completed,
		"ownerId":     t.OwnerID,
		"createdAt":   t.CreatedAt.UTC().Format(time.RFC3339Nano),
	}
}

func userPayload(session Session) map[string]any {
	return map[string]any{
		"id":     session.User.ID,
		"name":   session.User.DisplayName,
		"avatar": session.User.AvatarURL,
		"email":  session.User.Email,
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, code, message string, details any) {
	response := map[string]any{
		"code":  code,
		"error": message,
	}
	if details != nil {
		response["details"] = details
	}
	writeJSON(w, status, response)
}

func decodeBody(r *http.Request, target any) error {
	if r.Body == nil {
		return nil
	}
	defer r.Body.Close()
	decoder := json.NewDecoder(r.Body)
	if err := decoder.Decode(target); err != nil {
		if errors.Is(err, http.ErrBodyReadAfterClose) {
			return nil
		}
		return fmt.Errorf("invalid JSON body")
	}
	return nil
}

func splitPath(path string) []string {
	trimmed := strings.Trim(path, "/")
	if trimmed == "" {
		return nil
	}
	return strings.Split(trimmed, "/")
}

func mapError(err error) (status int, code, message string, details any) {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Status, domainErr.Code, domainErr.Message, domainErr.Details
	}
	if errors.Is(err, sql.ErrNoRows) {
		return http.StatusNotFound, "NOT_FOUND", "Todo not found", nil
	}
	return http.StatusInternalServerError, "SERVER_ERROR", "Server error", nil
}
