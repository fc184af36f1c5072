package baidu

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/ent0n29/mbtivoice/internal/reliability"
)

const (
	defaultTokenTTL    = 24 * time.Hour
	tokenExpiryMargin  = 5 * time.Minute
	tokenFetchAttempts = 3
)

// TokenSourceConfig configures the client-credentials exchange.
type TokenSourceConfig struct {
	APIKey    string
	SecretKey string
	URL       string
	Timeout   time.Duration
	Cache     TokenCache
}

// TokenSource exchanges the API key and secret for a bearer access token.
type TokenSource struct {
	apiKey    string
	secretKey string
	url       string
	client    *http.Client
	cache     TokenCache
	cacheKey  string

	mu sync.Mutex
}

type tokenResponse struct {
	AccessToken      string `json:"access_token"`
	ExpiresIn        int64  `json:"expires_in"`
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description"`
}

func NewTokenSource(cfg TokenSourceConfig) *TokenSource {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	cache := cfg.Cache
	if cache == nil {
		cache = NewMemoryTokenCache()
	}
	sum := sha256.Sum256([]byte(strings.TrimSpace(cfg.APIKey)))
	return &TokenSource{
		apiKey:    strings.TrimSpace(cfg.APIKey),
		secretKey: strings.TrimSpace(cfg.SecretKey),
		url:       strings.TrimSpace(cfg.URL),
		client:    &http.Client{Timeout: timeout},
		cache:     cache,
		cacheKey:  hex.EncodeToString(sum[:8]),
	}
}

// Token returns a cached token or fetches a fresh one.
func (s *TokenSource) Token(ctx context.Context) (string, error) {
	if s.apiKey == "" || s.secretKey == "" {
		return "", ErrNoCredentials
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if tok, ok, err := s.cache.Get(ctx, s.cacheKey); err != nil {
		slog.Warn("baidu token cache read failed", "error", err)
	} else if ok {
		return tok, nil
	}

	var resp tokenResponse
	err := reliability.Retry(ctx, tokenFetchAttempts, 200*time.Millisecond, 2*time.Second, func(ctx context.Context) error {
		var err error
		resp, err = s.fetch(ctx)
		return err
	})
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrTokenUnavailable, err)
	}

	ttl := defaultTokenTTL
	if resp.ExpiresIn > 0 {
		ttl = time.Duration(resp.ExpiresIn) * time.Second
	}
	ttl -= tokenExpiryMargin
	if err := s.cache.Set(ctx, s.cacheKey, resp.AccessToken, ttl); err != nil {
		slog.Warn("baidu token cache write failed", "error", err)
	}
	return resp.AccessToken, nil
}

func (s *TokenSource) fetch(ctx context.Context) (tokenResponse, error) {
	q := url.Values{}
	q.Set("grant_type", "client_credentials")
	q.Set("client_id", s.apiKey)
	q.Set("client_secret", s.secretKey)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url+"?"+q.Encode(), nil)
	if err != nil {
		return tokenResponse{}, fmt.Errorf("create token request: %w", err)
	}
	res, err := s.client.Do(req)
	if err != nil {
		return tokenResponse{}, reliability.MarkRetryable(fmt.Errorf("send token request: %w", err))
	}
	defer res.Body.Close()

	body, err := io.ReadAll(io.LimitReader(res.Body, 64<<10))
	if err != nil {
		return tokenResponse{}, fmt.Errorf("read token response: %w", err)
	}
	if res.StatusCode < 200 || res.StatusCode >= 300 {
		httpErr := &HTTPError{Endpoint: "token", Status: res.StatusCode, Body: bodyExcerpt(body)}
		if reliability.IsRetryableHTTPStatus(res.StatusCode) {
			return tokenResponse{}, reliability.MarkRetryable(httpErr)
		}
		return tokenResponse{}, httpErr
	}

	var out tokenResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return tokenResponse{}, fmt.Errorf("decode token response: %w", err)
	}
	if strings.TrimSpace(out.AccessToken) == "" {
		msg := out.ErrorDescription
		if msg == "" {
			msg = out.Error
		}
		if msg == "" {
			msg = "response carried no access_token"
		}
		return tokenResponse{}, fmt.Errorf("token exchange rejected: %s", msg)
	}
	return out, nil
}
