package handler

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/nat-prohmpiriya/fipe-garage/apps/account-service/internal/events"
	"github.com/nat-prohmpiriya/fipe-garage/pkg/logger"
	"github.com/nat-prohmpiriya/fipe-garage/pkg/usersession"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func testLogger() *logger.Logger { return &logger.Logger{Logger: zap.NewNop()} }

// fakeVerifier maps tokens to users. A revoked token still has a subject
// but no longer authenticates.
type fakeVerifier struct {
	mu      sync.Mutex
	users   map[string]*usersession.Principal
	revoked map[string]bool
}

func newFakeVerifier() *fakeVerifier {
	return &fakeVerifier{
		users: map[string]*usersession.Principal{
			"token-ana": {ID: "u-1", Email: "ana@example.com"},
		},
		revoked: map[string]bool{},
	}
}

func (v *fakeVerifier) revoke(token string) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.revoked[token] = true
}

func (v *fakeVerifier) Subject(token string) (string, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if p, ok := v.users[token]; ok {
		return p.ID, nil
	}
	return "", errors.New("invalid token")
}

func (v *fakeVerifier) ForToken(token string) usersession.Authenticator {
	return usersession.AuthenticatorFunc(func(context.Context) (*usersession.Principal, error) {
		v.mu.Lock()
		defer v.mu.Unlock()
		if token == "" {
			return nil, nil
		}
		if v.revoked[token] {
			return nil, errors.New("token revoked")
		}
		p, ok := v.users[token]
		if !ok {
			return nil, errors.New("invalid token")
		}
		return p, nil
	})
}

type staticProfiles map[string]*usersession.Profile

func (s staticProfiles) GetProfileByID(_ context.Context, id string) (*usersession.Profile, error) {
	return s[id], nil
}

func newSessionRouter(verifier TokenVerifier, src usersession.AuthEventSource) *gin.Engine {
	r := gin.New()
	NewSessionHandler(SessionHandlerConfig{
		Verifier:  verifier,
		Profiles:  staticProfiles{"u-1": {ID: "u-1", FullName: "Ana Souza"}},
		Events:    src,
		Options:   usersession.DefaultOptions(),
		KeepAlive: time.Hour,
		Logger:    testLogger(),
	}).RegisterRoutes(r)
	return r
}

type sessionBody struct {
	Success bool `json:"success"`
	Data    struct {
		User            *usersession.Principal `json:"user"`
		Profile         *usersession.Profile   `json:"profile"`
		Loading         bool                   `json:"loading"`
		Error           *string                `json:"error"`
		IsAuthenticated bool                   `json:"is_authenticated"`
	} `json:"data"`
	Error *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func doGet(r http.Handler, path, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestGetSession_SignedIn(t *testing.T) {
	r := newSessionRouter(newFakeVerifier(), nil)

	w := doGet(r, "/api/v1/session", "token-ana")
	require.Equal(t, http.StatusOK, w.Code)

	var body sessionBody
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.True(t, body.Success)
	require.NotNil(t, body.Data.User)
	assert.Equal(t, "u-1", body.Data.User.ID)
	require.NotNil(t, body.Data.Profile)
	assert.Equal(t, "Ana Souza", body.Data.Profile.FullName)
	assert.False(t, body.Data.Loading)
	assert.Nil(t, body.Data.Error)
	assert.True(t, body.Data.IsAuthenticated)
}

func TestGetSession_AccessTokenQuery(t *testing.T) {
	r := newSessionRouter(newFakeVerifier(), nil)

	w := doGet(r, "/api/v1/session?access_token=token-ana", "")
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestGetSession_NotAuthenticated(t *testing.T) {
	r := newSessionRouter(newFakeVerifier(), nil)

	for _, token := range []string{"", "bogus"} {
		w := doGet(r, "/api/v1/session", token)
		require.Equal(t, http.StatusUnauthorized, w.Code, "token %q", token)

		var body sessionBody
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
		assert.False(t, body.Success)
		assert.Nil(t, body.Data.User)
		assert.Nil(t, body.Data.Profile)
		assert.False(t, body.Data.Loading)
		require.NotNil(t, body.Data.Error)
		assert.Equal(t, usersession.ErrNotAuthenticated.Error(), *body.Data.Error)
		require.NotNil(t, body.Error)
		assert.Equal(t, "UNAUTHORIZED", body.Error.Code)
	}
}

func TestGetSession_Redirect(t *testing.T) {
	r := newSessionRouter(newFakeVerifier(), nil)

	w := doGet(r, "/api/v1/session?redirect=true", "")
	assert.Equal(t, http.StatusFound, w.Code)
	assert.Equal(t, usersession.DefaultLoginPath, w.Header().Get("Location"))

	w = doGet(r, "/api/v1/session?redirect=true", "token-ana")
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestStreamSession_RejectsBadTokens(t *testing.T) {
	r := newSessionRouter(newFakeVerifier(), events.NewHub())

	assert.Equal(t, http.StatusUnauthorized, doGet(r, "/api/v1/session/stream", "").Code)
	assert.Equal(t, http.StatusUnauthorized, doGet(r, "/api/v1/session/stream", "bogus").Code)
}

type sseEvent struct {
	name string
	data string
}

func readEvent(t *testing.T, r *bufio.Reader) sseEvent {
	t.Helper()
	var ev sseEvent
	for {
		line, err := r.ReadString('\n')
		require.NoError(t, err)
		line = strings.TrimRight(line, "\n")
		switch {
		case line == "":
			if ev.name != "" {
				return ev
			}
		case strings.HasPrefix(line, "event:"):
			ev.name = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
		case strings.HasPrefix(line, "data:"):
			ev.data += strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		}
	}
}

func TestStreamSession_FollowsSignOut(t *testing.T) {
	hub := events.NewHub()
	verifier := newFakeVerifier()
	srv := httptest.NewServer(newSessionRouter(verifier, hub))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/api/v1/session/stream", nil)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer token-ana")

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	reader := bufio.NewReader(resp.Body)

	first := readEvent(t, reader)
	assert.Equal(t, "state", first.name)
	var st usersession.State
	require.NoError(t, json.Unmarshal([]byte(first.data), &st))
	require.True(t, st.IsAuthenticated())
	assert.Equal(t, "Ana Souza", st.Profile.FullName)

	verifier.revoke("token-ana")
	hub.Dispatch(usersession.AuthEvent{Type: usersession.EventSignedOut, UserID: "u-1"})

	second := readEvent(t, reader)
	assert.Equal(t, "state", second.name)
	require.NoError(t, json.Unmarshal([]byte(second.data), &st))
	assert.False(t, st.IsAuthenticated())
	assert.Equal(t, usersession.ErrNotAuthenticated.Error(), st.Error)

	cancel()
	require.Eventually(t, func() bool { return hub.Len() == 0 }, 2*time.Second, 10*time.Millisecond)
}
