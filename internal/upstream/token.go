package upstream

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"polluted/internal/models"

	"golang.org/x/sync/singleflight"
)

// TokenCacheKey is where the pollution API bearer token is shared between instances.
const TokenCacheKey = "auth:polluted_api:token"

// TokenSource hands out bearer tokens for the pollution API.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
	Refresh(ctx context.Context) (string, error)
}

// TokenManager obtains pollution API tokens via the login endpoint and keeps
// them in the shared cache for a fixed TTL. Concurrent logins within one
// process are collapsed into a single request.
type TokenManager struct {
	client   *http.Client
	baseURL  string
	username string
	password string
	ttl      time.Duration
	cache    Cache
	group    singleflight.Group
}

// NewTokenManager creates a token manager for the pollution API described by cfg.
func NewTokenManager(cfg models.PollutionConfig, c Cache, client *http.Client) *TokenManager {
	return &TokenManager{
		client:   client,
		baseURL:  strings.TrimRight(cfg.BaseURL, "/"),
		username: cfg.Username,
		password: cfg.Password,
		ttl:      cfg.TokenTTL,
		cache:    c,
	}
}

// Token returns the cached token, logging in when there is none.
func (m *TokenManager) Token(ctx context.Context) (string, error) {
	var token string
	found, err := m.cache.Get(ctx, TokenCacheKey, &token)
	if err != nil {
		return "", err
	}
	if found && token != "" {
		return token, nil
	}
	return m.Refresh(ctx)
}

// Refresh logs in unconditionally and replaces the cached token.
//
// Concurrent callers share one login. The login ignores caller cancellation
// and is bounded by the HTTP client timeout; each caller stops waiting when
// its own ctx is done.
func (m *TokenManager) Refresh(ctx context.Context) (string, error) {
	loginCtx := context.WithoutCancel(ctx)
	ch := m.group.DoChan("login", func() (any, error) {
		return m.login(loginCtx)
	})

	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return "", res.Err
		}
		if res.Shared {
			slog.Debug("Reused in-flight token acquisition")
		}
		return res.Val.(string), nil
	}
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type loginResponse struct {
	Token string `json:"token"`
}

func (m *TokenManager) login(ctx context.Context) (token string, err error) {
	ctx, span := startSpan(ctx, "pollution.login")
	defer func() { endSpan(span, err) }()

	req, err := newJSONRequest(ctx, http.MethodPost, m.baseURL+"/auth/login", loginRequest{
		Username: m.username,
		Password: m.password,
	})
	if err != nil {
		return "", &AuthError{Err: err}
	}

	var resp loginResponse
	if err := doJSON(m.client, req, "pollution auth", &resp); err != nil {
		return "", &AuthError{Err: err}
	}
	if resp.Token == "" {
		return "", &AuthError{Err: errors.New("login response carried no token")}
	}

	if err := m.cache.Set(ctx, TokenCacheKey, resp.Token, m.ttl); err != nil {
		// The token is still good for this request.
		slog.Warn("Failed to cache pollution API token", "error", err)
	}

	slog.Info("Acquired pollution API token", "ttl", m.ttl)
	return resp.Token, nil
}
