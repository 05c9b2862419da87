package server

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"messager/internal/storage"
	mytesting "messager/internal/testing"
)

func statusOkHandler(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
}

func postJSON(t *testing.T, body, contentType string) *http.Request {
	t.Helper()

	req, err := http.NewRequest("POST", "/", bytes.NewBufferString(body))
	require.NoError(t, err)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	return req
}

func TestEnforceJSON(t *testing.T) {
	t.Parallel()

	req := postJSON(t, `{"name":"`+mytesting.RandString()+`"}`, "application/json")

	rr := httptest.NewRecorder()
	enforceJSON(http.HandlerFunc(statusOkHandler)).ServeHTTP(rr, req)

	require.Equal(t, http.StatusOK, rr.Code)
}

func TestEnforceJSON_MalformedContentType(t *testing.T) {
	t.Parallel()

	req := postJSON(t, `{"name":"x"}`, "1:2\n+/-")

	rr := httptest.NewRecorder()
	enforceJSON(http.HandlerFunc(statusOkHandler)).ServeHTTP(rr, req)

	require.Equal(t, http.StatusBadRequest, rr.Code)
	require.Equal(t, "Malformed Content-Type header\n", rr.Body.String())
}

func TestEnforceJSON_UnsupportedContentType(t *testing.T) {
	t.Parallel()

	req := postJSON(t, `{"name":"x"}`, "text/plain")

	rr := httptest.NewRecorder()
	enforceJSON(http.HandlerFunc(statusOkHandler)).ServeHTTP(rr, req)

	require.Equal(t, http.StatusUnsupportedMediaType, rr.Code)
	require.Equal(t, "Content-Type header must be application/json\n", rr.Body.String())
}

func TestEnforceJSON_BlankContentType(t *testing.T) {
	t.Parallel()

	req := postJSON(t, `{"name":"x"}`, "")

	rr := httptest.NewRecorder()
	enforceJSON(http.HandlerFunc(statusOkHandler)).ServeHTTP(rr, req)

	require.Equal(t, http.StatusOK, rr.Code)
}

func TestEnforceJSON_NoBody(t *testing.T) {
	t.Parallel()

	req := postJSON(t, "", "application/json")

	rr := httptest.NewRecorder()
	enforceJSON(http.HandlerFunc(statusOkHandler)).ServeHTTP(rr, req)

	require.Equal(t, http.StatusBadRequest, rr.Code)
	require.Equal(t, "No body provided\n", rr.Body.String())
}

func TestEnforceJSON_MalformedJSON(t *testing.T) {
	t.Parallel()

	// missing opening quotation mark after colon
	req := postJSON(t, `{"name":x"}`, "application/json")

	rr := httptest.NewRecorder()
	enforceJSON(http.HandlerFunc(statusOkHandler)).ServeHTTP(rr, req)

	require.Equal(t, http.StatusBadRequest, rr.Code)
	require.Equal(t, "Malformed JSON\n", rr.Body.String())
}

func TestRequireAdmin(t *testing.T) {
	t.Parallel()

	req, err := http.NewRequest("GET", "/admin/users", nil)
	require.NoError(t, err)
	req = req.WithContext(contextWithUser(req.Context(), storage.User{ID: 1, IsAdmin: true}))

	rr := httptest.NewRecorder()
	requireAdmin(http.HandlerFunc(statusOkHandler)).ServeHTTP(rr, req)

	require.Equal(t, http.StatusOK, rr.Code)
}

func TestRequireAdmin_Forbidden(t *testing.T) {
	t.Parallel()

	req, err := http.NewRequest("GET", "/admin/users", nil)
	require.NoError(t, err)
	req = req.WithContext(contextWithUser(req.Context(), storage.User{ID: 2}))

	rr := httptest.NewRecorder()
	requireAdmin(http.HandlerFunc(statusOkHandler)).ServeHTTP(rr, req)

	require.Equal(t, http.StatusForbidden, rr.Code)
}

func TestRequireAdmin_NoPrincipal(t *testing.T) {
	t.Parallel()

	req, err := http.NewRequest("GET", "/admin/users", nil)
	require.NoError(t, err)

	rr := httptest.NewRecorder()
	requireAdmin(http.HandlerFunc(statusOkHandler)).ServeHTTP(rr, req)

	require.Equal(t, http.StatusForbidden, rr.Code)
}

type stubAuthenticator struct {
	users map[string]storage.User
}

func (a stubAuthenticator) Authenticate(_ context.Context, authorization string) (storage.User, error) {
	u, ok := a.users[authorization]
	if !ok {
		return storage.User{}, ErrUnauthorized
	}
	return u, nil
}

func TestAuthenticate(t *testing.T) {
	t.Parallel()

	srv := &Server{
		logger: zap.NewNop().Sugar(),
		auth:   stubAuthenticator{users: map[string]storage.User{"Bearer good": {ID: 5, Username: "alice"}}},
	}

	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		u, ok := userFromContext(r.Context())
		require.True(t, ok)
		require.Equal(t, "alice", u.Username)
		w.WriteHeader(http.StatusOK)
	})

	req, err := http.NewRequest("GET", "/channels", nil)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer good")

	rr := httptest.NewRecorder()
	srv.authenticate(next).ServeHTTP(rr, req)
	require.Equal(t, http.StatusOK, rr.Code)
}

func TestAuthenticate_Unauthorized(t *testing.T) {
	t.Parallel()

	srv := &Server{
		logger: zap.NewNop().Sugar(),
		auth:   stubAuthenticator{users: map[string]storage.User{}},
	}

	req, err := http.NewRequest("GET", "/channels", nil)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer bad")

	rr := httptest.NewRecorder()
	srv.authenticate(http.HandlerFunc(statusOkHandler)).ServeHTTP(rr, req)
	require.Equal(t, http.StatusUnauthorized, rr.Code)
}
