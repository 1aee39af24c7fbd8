// ABOUTME: HTTP API handlers for user accounts, code analysis and health checks
// ABOUTME: JSON in and out; errors are {"detail": msg} with the status taken from the error kind

package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/algosensei/sensei-gateway/internal/analysis"
	"github.com/algosensei/sensei-gateway/internal/apperr"
	"github.com/algosensei/sensei-gateway/internal/auth"
)

// maxBodyBytes caps request bodies.
const maxBodyBytes = 1 << 20

const (
	msgInternal    = "Internal server error"
	msgInvalidJSON = "Invalid JSON body"
	msgBodyTooBig  = "Request body too large"
	welcomeMessage = "Welcome to AlgoSensei API"
)

// RegisterRequest is the body of POST /users/register.
type RegisterRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

// LoginRequest is the body of POST /users/login. Username and email are
// both optional but at least one must be set.
type LoginRequest struct {
	Username string `json:"username,omitempty"`
	Email    string `json:"email,omitempty"`
	Password string `json:"password"`
}

// ChangePasswordRequest is the body of PUT /users/change-password.
type ChangePasswordRequest struct {
	OldPassword string `json:"old_password"`
	NewPassword string `json:"new_password"`
}

// AnalysisRequest is the body of both /agent endpoints.
type AnalysisRequest struct {
	UserID             string `json:"user_id"`
	SessionID          string `json:"session_id"`
	ProblemDescription string `json:"problem_description"`
	Language           string `json:"language"`
	Code               string `json:"code"`
}

// HintResponse is returned by POST /agent/get-hints.
type HintResponse struct {
	Hints     string `json:"hints"`
	HintsHTML string `json:"hints_html,omitempty"`
}

// ComplexityResponse is returned by POST /agent/analyze-complexity.
type ComplexityResponse struct {
	Analysis     string `json:"analysis"`
	AnalysisHTML string `json:"analysis_html,omitempty"`
}

// registerRoutes mounts every endpoint on mux.
func (g *Gateway) registerRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /{$}", g.handleRoot)
	mux.HandleFunc("GET /health", g.handleHealth)
	mux.HandleFunc("GET /health/ready", g.handleReady)

	mux.HandleFunc("POST /users/register", g.handleRegister)
	mux.HandleFunc("POST /users/login", g.handleLogin)
	mux.Handle("GET /users/me", auth.RequireSubject(http.HandlerFunc(g.handleMe)))
	mux.Handle("PUT /users/change-password", auth.RequireSubject(http.HandlerFunc(g.handleChangePassword)))
	mux.Handle("DELETE /users/delete", auth.RequireSubject(http.HandlerFunc(g.handleDeleteAccount)))
	mux.Handle("POST /users/logout", auth.RequireSubject(http.HandlerFunc(g.handleLogout)))

	mux.HandleFunc("POST /agent/get-hints", g.handleGetHints)
	mux.HandleFunc("POST /agent/analyze-complexity", g.handleAnalyzeComplexity)
}

func (g *Gateway) handleRoot(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"message": welcomeMessage,
		"status":  "healthy",
	})
}

// handleHealth returns 200 OK if the process is serving.
func (g *Gateway) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// pinger is implemented by session stores with a remote backend.
type pinger interface {
	Ping(ctx context.Context) error
}

// handleReady returns 200 when the database (and a remote session store, if
// any) answers a ping.
func (g *Gateway) handleReady(w http.ResponseWriter, r *http.Request) {
	if err := g.store.Ping(r.Context()); err != nil {
		g.logger.Warn("readiness check failed", "dependency", "database", "error", err)
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
		return
	}
	if p, ok := g.sessions.(pinger); ok {
		if err := p.Ping(r.Context()); err != nil {
			g.logger.Warn("readiness check failed", "dependency", "sessions", "error", err)
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func (g *Gateway) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if err := decodeJSON(w, r, &req); err != nil {
		g.writeError(w, r, err)
		return
	}

	identity, err := g.auth.Register(r.Context(), auth.RegisterInput{
		Username: req.Username,
		Email:    req.Email,
		Password: req.Password,
	})
	if err != nil {
		g.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, identity)
}

func (g *Gateway) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		g.writeError(w, r, err)
		return
	}

	pair, err := g.auth.Login(r.Context(), auth.LoginInput{
		Username: req.Username,
		Email:    req.Email,
		Password: req.Password,
	})
	if err != nil {
		g.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, pair)
}

func (g *Gateway) handleMe(w http.ResponseWriter, r *http.Request) {
	subject := auth.MustSubjectFromContext(r.Context())

	identity, err := g.auth.GetUser(r.Context(), subject.UserID)
	if err != nil {
		g.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, identity)
}

func (g *Gateway) handleChangePassword(w http.ResponseWriter, r *http.Request) {
	subject := auth.MustSubjectFromContext(r.Context())

	var req ChangePasswordRequest
	if err := decodeJSON(w, r, &req); err != nil {
		g.writeError(w, r, err)
		return
	}

	identity, err := g.auth.ChangePassword(r.Context(), subject.UserID, auth.ChangePasswordInput{
		OldPassword: req.OldPassword,
		NewPassword: req.NewPassword,
	})
	if err != nil {
		g.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, identity)
}

func (g *Gateway) handleDeleteAccount(w http.ResponseWriter, r *http.Request) {
	subject := auth.MustSubjectFromContext(r.Context())

	identity, err := g.auth.Delete(r.Context(), subject.UserID)
	if err != nil {
		g.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, identity)
}

func (g *Gateway) handleLogout(w http.ResponseWriter, r *http.Request) {
	subject := auth.MustSubjectFromContext(r.Context())

	if err := g.auth.Logout(r.Context(), subject.UserID); err != nil {
		g.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (g *Gateway) handleGetHints(w http.ResponseWriter, r *http.Request) {
	req, err := parseAnalysisRequest(w, r)
	if err != nil {
		g.writeError(w, r, err)
		return
	}

	hints, err := g.analysis.ProvideHints(r.Context(), req)
	if err != nil {
		g.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, HintResponse{Hints: hints, HintsHTML: g.render(hints)})
}

func (g *Gateway) handleAnalyzeComplexity(w http.ResponseWriter, r *http.Request) {
	req, err := parseAnalysisRequest(w, r)
	if err != nil {
		g.writeError(w, r, err)
		return
	}

	result, err := g.analysis.AnalyzeComplexity(r.Context(), req)
	if err != nil {
		g.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ComplexityResponse{Analysis: result, AnalysisHTML: g.render(result)})
}

// parseAnalysisRequest decodes the body and picks the session owner. An
// authenticated subject takes precedence over the body's user_id, and
// anonymous ids live in their own session namespace.
func parseAnalysisRequest(w http.ResponseWriter, r *http.Request) (analysis.Request, error) {
	var body AnalysisRequest
	if err := decodeJSON(w, r, &body); err != nil {
		return analysis.Request{}, err
	}

	req := analysis.Request{
		UserID:             body.UserID,
		SessionID:          body.SessionID,
		ProblemDescription: body.ProblemDescription,
		Language:           body.Language,
		Code:               body.Code,
	}
	if subject, ok := auth.SubjectFromContext(r.Context()); ok {
		req.UserID = strconv.FormatInt(subject.UserID, 10)
		req.Authenticated = true
	}
	return req, nil
}

// render converts a markdown reply to HTML. A rendering failure only drops
// the HTML field.
func (g *Gateway) render(markdown string) string {
	html, err := analysis.RenderHTML(markdown)
	if err != nil {
		g.logger.Warn("failed to render reply", "error", err)
		return ""
	}
	return html
}

// decodeJSON reads a size-limited JSON body into dst. Unknown fields are ignored.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			return apperr.Wrap(apperr.KindBadRequest, "gateway.decode", msgBodyTooBig, err)
		}
		return apperr.Wrap(apperr.KindBadRequest, "gateway.decode", msgInvalidJSON, err)
	}
	return nil
}

// writeError maps err to a status and a public detail message. Causes are
// logged, never sent.
func (g *Gateway) writeError(w http.ResponseWriter, r *http.Request, err error) {
	kind := apperr.KindOf(err)
	status := apperr.HTTPStatus(kind)

	switch kind {
	case apperr.KindInternal:
		g.logger.Error("request failed", "path", r.URL.Path, "request_id", requestIDFromContext(r.Context()), "error", err)
	case apperr.KindUnavailable:
		g.logger.Warn("upstream failed", "path", r.URL.Path, "request_id", requestIDFromContext(r.Context()), "error", err)
	case apperr.KindUnauthorized:
		w.Header().Set("WWW-Authenticate", "Bearer")
	}

	writeDetail(w, status, apperr.PublicMessage(err))
}

// writeDetail writes a {"detail": msg} error body.
func writeDetail(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"detail": msg})
}

// writeJSON writes v as a JSON response.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
