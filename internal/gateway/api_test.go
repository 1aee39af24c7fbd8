// ABOUTME: Tests for the user account and analysis HTTP endpoints
// ABOUTME: Drives the full middleware chain with httptest against a mock store

package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/algosensei/sensei-gateway/internal/analysis"
	"github.com/algosensei/sensei-gateway/internal/auth"
	"github.com/algosensei/sensei-gateway/internal/store"
)

// do sends a JSON request through the gateway handler.
func do(t *testing.T, h http.Handler, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		switch b := body.(type) {
		case string:
			buf.WriteString(b)
		default:
			require.NoError(t, json.NewEncoder(&buf).Encode(b))
		}
	}

	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&v), "body: %s", rec.Body.String())
	return v
}

func detailOf(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	return decodeBody[map[string]string](t, rec)["detail"]
}

// registerAndLogin creates an account and returns its bearer token.
func registerAndLogin(t *testing.T, h http.Handler, username, email, password string) string {
	t.Helper()

	rec := do(t, h, http.MethodPost, "/users/register", "", RegisterRequest{Username: username, Email: email, Password: password})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = do(t, h, http.MethodPost, "/users/login", "", LoginRequest{Email: email, Password: password})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	return decodeBody[auth.TokenPair](t, rec).AccessToken
}

func TestRootAndHealth(t *testing.T) {
	h := newTestGateway(t, &fakeCompleter{}).Handler()

	rec := do(t, h, http.MethodGet, "/", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, map[string]string{"message": "Welcome to AlgoSensei API", "status": "healthy"}, decodeBody[map[string]string](t, rec))

	rec = do(t, h, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", decodeBody[map[string]string](t, rec)["status"])

	rec = do(t, h, http.MethodGet, "/health/ready", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ready", decodeBody[map[string]string](t, rec)["status"])

	rec = do(t, h, http.MethodGet, "/nope", "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

type downStore struct {
	*store.MockStore
}

func (downStore) Ping(context.Context) error { return errors.New("connection refused") }

func TestReadyUnavailable(t *testing.T) {
	sessions := analysis.NewMemorySessionStore(0, 0, 0)
	defer sessions.Close()

	gw, err := assemble(testConfig(t), downStore{store.NewMockStore()}, &fakeCompleter{}, sessions, testLogger())
	require.NoError(t, err)

	rec := do(t, gw.Handler(), http.MethodGet, "/health/ready", "", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "unavailable", decodeBody[map[string]string](t, rec)["status"])
}

func TestRegister(t *testing.T) {
	h := newTestGateway(t, &fakeCompleter{}).Handler()

	rec := do(t, h, http.MethodPost, "/users/register", "", RegisterRequest{Username: "ada", Email: "ada@example.com", Password: "s3cret"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var identity map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &identity))
	assert.Equal(t, "ada", identity["username"])
	assert.Equal(t, "ada@example.com", identity["email"])
	assert.Equal(t, true, identity["is_active"])
	assert.NotZero(t, identity["id"])
	assert.NotContains(t, rec.Body.String(), "password")
	assert.NotContains(t, rec.Body.String(), "argon2")
}

func TestRegisterConflictAndValidation(t *testing.T) {
	h := newTestGateway(t, &fakeCompleter{}).Handler()

	rec := do(t, h, http.MethodPost, "/users/register", "", RegisterRequest{Username: "ada", Email: "ada@example.com", Password: "pw"})
	require.Equal(t, http.StatusCreated, rec.Code)

	tests := []struct {
		name   string
		body   any
		status int
		detail string
	}{
		{"duplicate username", RegisterRequest{Username: "ada", Email: "other@example.com", Password: "pw"}, http.StatusConflict, "User with given username or email already exists."},
		{"duplicate email", RegisterRequest{Username: "grace", Email: "ada@example.com", Password: "pw"}, http.StatusConflict, "User with given username or email already exists."},
		{"invalid email", RegisterRequest{Username: "grace", Email: "not-an-email", Password: "pw"}, http.StatusBadRequest, ""},
		{"username too long", RegisterRequest{Username: strings.Repeat("x", 31), Email: "g@example.com", Password: "pw"}, http.StatusBadRequest, ""},
		{"missing password", RegisterRequest{Username: "grace", Email: "g@example.com"}, http.StatusBadRequest, ""},
		{"malformed json", `{"username":`, http.StatusBadRequest, "Invalid JSON body"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, h, http.MethodPost, "/users/register", "", tt.body)
			assert.Equal(t, tt.status, rec.Code, rec.Body.String())
			detail := detailOf(t, rec)
			assert.NotEmpty(t, detail)
			if tt.detail != "" {
				assert.Equal(t, tt.detail, detail)
			}
		})
	}
}

func TestRegisterBodyTooLarge(t *testing.T) {
	h := newTestGateway(t, &fakeCompleter{}).Handler()

	big := `{"username":"` + strings.Repeat("a", maxBodyBytes+1) + `"}`
	rec := do(t, h, http.MethodPost, "/users/register", "", big)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Request body too large", detailOf(t, rec))
}

func TestRegisterIgnoresUnknownFields(t *testing.T) {
	h := newTestGateway(t, &fakeCompleter{}).Handler()

	rec := do(t, h, http.MethodPost, "/users/register", "", `{"username":"ada","email":"ada@example.com","password":"pw","is_admin":true}`)
	assert.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
}

func TestLogin(t *testing.T) {
	h := newTestGateway(t, &fakeCompleter{}).Handler()

	rec := do(t, h, http.MethodPost, "/users/register", "", RegisterRequest{Username: "ada", Email: "ada@example.com", Password: "pw"})
	require.Equal(t, http.StatusCreated, rec.Code)
	rec = do(t, h, http.MethodPost, "/users/register", "", RegisterRequest{Username: "grace", Email: "grace@example.com", Password: "pw"})
	require.Equal(t, http.StatusCreated, rec.Code)

	tests := []struct {
		name   string
		body   LoginRequest
		status int
		detail string
	}{
		{"by email", LoginRequest{Email: "ada@example.com", Password: "pw"}, http.StatusOK, ""},
		{"by username", LoginRequest{Username: "ada", Password: "pw"}, http.StatusOK, ""},
		{"both matching", LoginRequest{Username: "ada", Email: "ada@example.com", Password: "pw"}, http.StatusOK, ""},
		{"mismatched accounts", LoginRequest{Username: "grace", Email: "ada@example.com", Password: "pw"}, http.StatusUnauthorized, "Email and username do not match the same account"},
		{"wrong password", LoginRequest{Email: "ada@example.com", Password: "nope"}, http.StatusUnauthorized, "Incorrect email/username or password"},
		{"unknown user", LoginRequest{Username: "nobody", Password: "pw"}, http.StatusUnauthorized, "Incorrect email/username or password"},
		{"no identifier", LoginRequest{Password: "pw"}, http.StatusBadRequest, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, h, http.MethodPost, "/users/login", "", tt.body)
			require.Equal(t, tt.status, rec.Code, rec.Body.String())

			if tt.status == http.StatusOK {
				pair := decodeBody[auth.TokenPair](t, rec)
				assert.NotEmpty(t, pair.AccessToken)
				assert.Equal(t, "bearer", pair.TokenType)
				assert.Equal(t, int64(3600), pair.ExpiresIn)
				return
			}
			if tt.status == http.StatusUnauthorized {
				assert.Equal(t, "Bearer", rec.Header().Get("WWW-Authenticate"))
			}
			detail := detailOf(t, rec)
			if tt.detail != "" {
				assert.Equal(t, tt.detail, detail)
			}
		})
	}
}

func TestMe(t *testing.T) {
	h := newTestGateway(t, &fakeCompleter{}).Handler()
	token := registerAndLogin(t, h, "ada", "ada@example.com", "pw")

	rec := do(t, h, http.MethodGet, "/users/me", token, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	identity := decodeBody[auth.Identity](t, rec)
	assert.Equal(t, "ada", identity.Username)
	assert.True(t, identity.IsActive)
}

func TestProtectedEndpointsRequireAuth(t *testing.T) {
	h := newTestGateway(t, &fakeCompleter{}).Handler()

	endpoints := []struct {
		method string
		path   string
	}{
		{http.MethodGet, "/users/me"},
		{http.MethodPut, "/users/change-password"},
		{http.MethodDelete, "/users/delete"},
		{http.MethodPost, "/users/logout"},
	}

	for _, ep := range endpoints {
		for _, token := range []string{"", "garbage.token.value"} {
			t.Run(ep.method+" "+ep.path+" token="+token, func(t *testing.T) {
				rec := do(t, h, ep.method, ep.path, token, nil)
				assert.Equal(t, http.StatusUnauthorized, rec.Code)
				assert.Equal(t, "Bearer", rec.Header().Get("WWW-Authenticate"))
				assert.Equal(t, "Not authenticated", detailOf(t, rec))
			})
		}
	}
}

func TestChangePassword(t *testing.T) {
	h := newTestGateway(t, &fakeCompleter{}).Handler()
	token := registerAndLogin(t, h, "ada", "ada@example.com", "old-pw")

	rec := do(t, h, http.MethodPut, "/users/change-password", token, ChangePasswordRequest{OldPassword: "wrong", NewPassword: "new-pw"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "Old password is incorrect", detailOf(t, rec))

	rec = do(t, h, http.MethodPut, "/users/change-password", token, ChangePasswordRequest{OldPassword: "old-pw"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, h, http.MethodPut, "/users/change-password", token, ChangePasswordRequest{OldPassword: "old-pw", NewPassword: "new-pw"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "ada", decodeBody[auth.Identity](t, rec).Username)

	rec = do(t, h, http.MethodPost, "/users/login", "", LoginRequest{Username: "ada", Password: "old-pw"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = do(t, h, http.MethodPost, "/users/login", "", LoginRequest{Username: "ada", Password: "new-pw"})
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestDeleteAccount(t *testing.T) {
	h := newTestGateway(t, &fakeCompleter{}).Handler()
	token := registerAndLogin(t, h, "ada", "ada@example.com", "pw")

	rec := do(t, h, http.MethodDelete, "/users/delete", token, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	identity := decodeBody[auth.Identity](t, rec)
	assert.False(t, identity.IsActive)
	assert.Equal(t, "ada", identity.Username)

	// The token is still well-formed but its user is gone.
	rec = do(t, h, http.MethodGet, "/users/me", token, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = do(t, h, http.MethodPost, "/users/login", "", LoginRequest{Username: "ada", Password: "pw"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	// Names of deleted accounts can be registered again.
	rec = do(t, h, http.MethodPost, "/users/register", "", RegisterRequest{Username: "ada", Email: "ada@example.com", Password: "pw2"})
	assert.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
}

func TestLogout(t *testing.T) {
	h := newTestGateway(t, &fakeCompleter{}).Handler()
	token := registerAndLogin(t, h, "ada", "ada@example.com", "pw")

	rec := do(t, h, http.MethodPost, "/users/logout", token, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Empty(t, rec.Body.String())
}

func TestMethodNotAllowed(t *testing.T) {
	h := newTestGateway(t, &fakeCompleter{}).Handler()

	rec := do(t, h, http.MethodGet, "/users/register", "", nil)
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func analysisBody(userID string) AnalysisRequest {
	return AnalysisRequest{
		UserID:             userID,
		SessionID:          "tab-1",
		ProblemDescription: "Two Sum",
		Language:           "go",
		Code:               "func twoSum(nums []int, target int) []int { return nil }",
	}
}

func TestGetHintsAnonymous(t *testing.T) {
	completer := &fakeCompleter{reply: "Try a **hash map**."}
	h := newTestGateway(t, completer).Handler()

	rec := do(t, h, http.MethodPost, "/agent/get-hints", "", analysisBody("guest"))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	resp := decodeBody[HintResponse](t, rec)
	assert.Equal(t, "Try a **hash map**.", resp.Hints)
	assert.Contains(t, resp.HintsHTML, "<strong>hash map</strong>")

	msgs := completer.lastCall()
	require.Len(t, msgs, 2)
	assert.Equal(t, analysis.RoleSystem, msgs[0].Role)
	assert.Contains(t, msgs[1].Content, "Two Sum")
	assert.Contains(t, msgs[1].Content, "twoSum")
}

func TestGetHintsRequiresUserWhenAnonymous(t *testing.T) {
	completer := &fakeCompleter{reply: "hint"}
	h := newTestGateway(t, completer).Handler()

	rec := do(t, h, http.MethodPost, "/agent/get-hints", "", analysisBody(""))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, 0, completer.callCount())
}

func TestAnalysisUsesSubjectOverBody(t *testing.T) {
	completer := &fakeCompleter{reply: "O(n) time, O(n) space."}
	gw := newTestGateway(t, completer)
	h := gw.Handler()
	token := registerAndLogin(t, h, "ada", "ada@example.com", "pw")

	rec := do(t, h, http.MethodGet, "/users/me", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	me := decodeBody[auth.Identity](t, rec)

	rec = do(t, h, http.MethodPost, "/agent/analyze-complexity", token, analysisBody("spoofed"))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	resp := decodeBody[ComplexityResponse](t, rec)
	assert.Equal(t, "O(n) time, O(n) space.", resp.Analysis)
	assert.Contains(t, resp.AnalysisHTML, "<p>")

	ctx := context.Background()
	_, created, err := gw.sessions.CreateOrGet(ctx, analysis.SessionKey(false, "spoofed", "tab-1"))
	require.NoError(t, err)
	assert.True(t, created, "body user_id must not be used when authenticated")

	sess, created, err := gw.sessions.CreateOrGet(ctx, analysis.SessionKey(true, itoa(me.ID), "tab-1"))
	require.NoError(t, err)
	assert.False(t, created)
	assert.Len(t, sess.Messages, 2)
}

func TestAnalysisAnonymousCannotClaimAccountSession(t *testing.T) {
	completer := &fakeCompleter{reply: "secret hint for ada"}
	h := newTestGateway(t, completer).Handler()
	token := registerAndLogin(t, h, "ada", "ada@example.com", "pw")

	rec := do(t, h, http.MethodGet, "/users/me", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	me := decodeBody[auth.Identity](t, rec)

	rec = do(t, h, http.MethodPost, "/agent/get-hints", token, analysisBody(""))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	completer.reply = "fresh hint"
	rec = do(t, h, http.MethodPost, "/agent/get-hints", "", analysisBody(itoa(me.ID)))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	msgs := completer.lastCall()
	require.Len(t, msgs, 2, "anonymous call must not inherit the account's history")
	for _, m := range msgs {
		assert.NotContains(t, m.Content, "secret hint for ada")
	}
}

func TestAnalysisHistoryCarriesOver(t *testing.T) {
	completer := &fakeCompleter{reply: "first"}
	h := newTestGateway(t, completer).Handler()

	rec := do(t, h, http.MethodPost, "/agent/get-hints", "", analysisBody("guest"))
	require.Equal(t, http.StatusOK, rec.Code)

	rec = do(t, h, http.MethodPost, "/agent/analyze-complexity", "", analysisBody("guest"))
	require.Equal(t, http.StatusOK, rec.Code)

	msgs := completer.lastCall()
	require.Len(t, msgs, 4)
	assert.Equal(t, analysis.RoleUser, msgs[1].Role)
	assert.Equal(t, analysis.RoleAssistant, msgs[2].Role)
	assert.Equal(t, "first", msgs[2].Content)
}

func TestAnalysisEmptyReply(t *testing.T) {
	h := newTestGateway(t, &fakeCompleter{reply: "   "}).Handler()

	rec := do(t, h, http.MethodPost, "/agent/get-hints", "", analysisBody("guest"))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "No response generated", decodeBody[HintResponse](t, rec).Hints)
}

func TestAnalysisProviderFailure(t *testing.T) {
	h := newTestGateway(t, &fakeCompleter{err: errors.New("upstream 500: secret-ish detail")}).Handler()

	rec := do(t, h, http.MethodPost, "/agent/analyze-complexity", "", analysisBody("guest"))
	assert.Equal(t, http.StatusBadGateway, rec.Code)
	assert.Equal(t, "Analysis provider unavailable", detailOf(t, rec))
	assert.NotContains(t, rec.Body.String(), "secret-ish")
}

func itoa(id int64) string {
	return strconv.FormatInt(id, 10)
}
