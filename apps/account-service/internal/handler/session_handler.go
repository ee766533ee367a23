package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/nat-prohmpiriya/fipe-garage/apps/account-service/internal/auth"
	"github.com/nat-prohmpiriya/fipe-garage/apps/account-service/internal/events"
	"github.com/nat-prohmpiriya/fipe-garage/pkg/logger"
	"github.com/nat-prohmpiriya/fipe-garage/pkg/response"
	"github.com/nat-prohmpiriya/fipe-garage/pkg/usersession"
	"go.uber.org/zap"
)

// DefaultKeepAlive is the interval of ping events on an idle session stream
const DefaultKeepAlive = 25 * time.Second

// TokenVerifier turns an access token into the session's authenticator
type TokenVerifier interface {
	ForToken(token string) usersession.Authenticator
	Subject(token string) (string, error)
}

// SessionHandlerConfig wires a SessionHandler
type SessionHandlerConfig struct {
	Verifier TokenVerifier
	Profiles usersession.ProfileStore
	// Events feeds the stream endpoint. Without it streams only carry the first state.
	Events    usersession.AuthEventSource
	Options   usersession.Options
	KeepAlive time.Duration
	Logger    *logger.Logger
}

// SessionHandler exposes the user session loader over HTTP
type SessionHandler struct {
	cfg SessionHandlerConfig
	log *logger.Logger
}

// NewSessionHandler creates a new SessionHandler
func NewSessionHandler(cfg SessionHandlerConfig) *SessionHandler {
	if cfg.KeepAlive <= 0 {
		cfg.KeepAlive = DefaultKeepAlive
	}
	if cfg.Logger == nil {
		cfg.Logger = logger.Get()
	}
	return &SessionHandler{cfg: cfg, log: cfg.Logger}
}

// RegisterRoutes mounts the session endpoints
func (h *SessionHandler) RegisterRoutes(r gin.IRouter) {
	session := r.Group("/api/v1/session")
	{
		session.GET("", h.GetSession)
		session.GET("/stream", h.StreamSession)
	}
}

// GetSession handles GET /api/v1/session
// Runs one load cycle. With ?redirect=true an unauthenticated caller is
// sent to the login page instead of getting an error state.
func (h *SessionHandler) GetSession(c *gin.Context) {
	opts := h.cfg.Options
	if c.Query("redirect") == "true" {
		opts.RedirectOnError = true
	}

	var location string
	loader, err := usersession.NewLoader(usersession.Config{
		Authenticator: h.cfg.Verifier.ForToken(requestToken(c)),
		Profiles:      h.cfg.Profiles,
		Navigator: usersession.NavigatorFunc(func(_ context.Context, to string) {
			location = to
		}),
		Options: opts,
		Logger:  h.log,
	})
	if err != nil {
		h.log.Error("Failed to create session loader", zap.Error(err))
		response.InternalError(c)
		return
	}
	defer loader.Close()

	st := loader.Refresh(c.Request.Context())

	switch {
	case location != "":
		c.Redirect(http.StatusFound, location)
	case st.Errored():
		c.AbortWithStatusJSON(http.StatusUnauthorized, response.Response{
			Success: false,
			Data:    st,
			Error:   &response.ErrorData{Code: "UNAUTHORIZED", Message: st.Error},
		})
	default:
		response.Success(c, st)
	}
}

// StreamSession handles GET /api/v1/session/stream
// Sends the session state as server-sent events, first on connect and
// again after every sign-in or sign-out of the token's user.
func (h *SessionHandler) StreamSession(c *gin.Context) {
	token := requestToken(c)
	if token == "" {
		response.Unauthorized(c, auth.ErrMissingToken.Error())
		return
	}
	userID, err := h.cfg.Verifier.Subject(token)
	if err != nil {
		response.Unauthorized(c, err.Error())
		return
	}

	cfg := usersession.Config{
		Authenticator: h.cfg.Verifier.ForToken(token),
		Profiles:      h.cfg.Profiles,
		Options:       h.cfg.Options,
		Logger:        h.log.With(zap.String("user_id", userID)),
	}
	if h.cfg.Events != nil {
		cfg.Events = events.ForUser(h.cfg.Events, userID)
	}
	cfg.Options.RedirectOnError = false

	loader, err := usersession.NewLoader(cfg)
	if err != nil {
		h.log.Error("Failed to create session loader", zap.Error(err))
		response.InternalError(c)
		return
	}
	defer loader.Close()

	ctx := c.Request.Context()
	updates := loader.Watch()
	if _, err := loader.Start(ctx); err != nil {
		h.log.Warn("Session stream without live updates", zap.String("user_id", userID), zap.Error(err))
	}

	// the server write timeout would cut long-lived streams
	_ = http.NewResponseController(c.Writer).SetWriteDeadline(time.Time{})

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")
	c.Status(http.StatusOK)
	c.Writer.Flush()

	ticker := time.NewTicker(h.cfg.KeepAlive)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.SSEvent("ping", time.Now().Unix())
			c.Writer.Flush()
		case st, ok := <-updates:
			if !ok {
				return
			}
			// loading snapshots are noise for a stream consumer
			if st.Loading {
				continue
			}
			c.SSEvent("state", st)
			c.Writer.Flush()
		}
	}
}

// requestToken reads the bearer token, falling back to ?access_token= for
// EventSource clients that cannot set headers.
func requestToken(c *gin.Context) string {
	if token := auth.BearerToken(c.GetHeader("Authorization")); token != "" {
		return token
	}
	return c.Query("access_token")
}
