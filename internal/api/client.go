package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/net/publicsuffix"

	"github.com/FACorreiaa/citizen-portal/internal/types"
)

const (
	apiPrefix = "/api"

	// SessionCookie is the name of the backend's session cookie.
	SessionCookie = "token"

	defaultTimeout = 15 * time.Second
	maxErrorBody   = 64 << 10
)

// ClientConfig holds configuration for creating a Client.
type ClientConfig struct {
	// BaseURL is the backend origin, e.g. "http://localhost:5000". The client
	// appends /api.
	BaseURL string
	// HTTPClient is used for all requests. If nil, a client with a traced
	// transport is created. A cookie jar is attached when the client has none.
	HTTPClient *http.Client
	// Timeout bounds each request when HTTPClient is nil.
	Timeout time.Duration
	// Logger is used for structured logging. If nil, slog.Default() is used.
	Logger *slog.Logger
}

// Client is the single credentialed transport to the backend. The session
// cookie set on login is kept in its jar and sent on every request.
type Client struct {
	baseURL    string
	origin     *url.URL
	httpClient *http.Client
	logger     *slog.Logger
}

// NewClient creates a client for the backend at config.BaseURL.
func NewClient(config ClientConfig) (*Client, error) {
	if config.BaseURL == "" {
		return nil, errors.New("api: BaseURL is required")
	}
	origin, err := url.Parse(strings.TrimRight(config.BaseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("api: invalid BaseURL %q: %w", config.BaseURL, err)
	}
	if origin.Scheme == "" || origin.Host == "" {
		return nil, fmt.Errorf("api: BaseURL %q must be absolute", config.BaseURL)
	}

	jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	if err != nil {
		return nil, fmt.Errorf("api: cookie jar: %w", err)
	}

	var httpClient *http.Client
	if config.HTTPClient != nil {
		clone := *config.HTTPClient
		if clone.Jar == nil {
			clone.Jar = jar
		}
		httpClient = &clone
	} else {
		timeout := config.Timeout
		if timeout <= 0 {
			timeout = defaultTimeout
		}
		httpClient = &http.Client{
			Transport: otelhttp.NewTransport(http.DefaultTransport),
			Jar:       jar,
			Timeout:   timeout,
		}
	}

	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Client{
		baseURL:    origin.String() + apiPrefix,
		origin:     origin,
		httpClient: httpClient,
		logger:     logger.With(slog.String("component", "api.client")),
	}, nil
}

// BaseURL returns the API root the client talks to.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Get decodes the response of GET path?query into out.
func (c *Client) Get(ctx context.Context, path string, query url.Values, out any) error {
	return c.do(ctx, http.MethodGet, path, query, nil, out)
}

// Post sends body as JSON and decodes the response into out.
func (c *Client) Post(ctx context.Context, path string, body, out any) error {
	return c.do(ctx, http.MethodPost, path, nil, body, out)
}

// Patch sends body as JSON and decodes the response into out.
func (c *Client) Patch(ctx context.Context, path string, body, out any) error {
	return c.do(ctx, http.MethodPatch, path, nil, body, out)
}

// Delete decodes the response of DELETE path into out.
func (c *Client) Delete(ctx context.Context, path string, out any) error {
	return c.do(ctx, http.MethodDelete, path, nil, nil, out)
}

// do performs one request. Non-2xx responses become *types.APIError and
// requests that got no response become *types.NetworkError. A nil out or an
// empty body skips decoding.
func (c *Client) do(ctx context.Context, method, path string, query url.Values, body, out any) error {
	target := c.baseURL + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}

	var reader io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("api: encode %s %s body: %w", method, path, err)
		}
		reader = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return fmt.Errorf("api: build %s %s: %w", method, path, err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.WarnContext(ctx, "request failed",
			slog.String("method", method), slog.String("path", path), slog.Any("error", err))
		return &types.NetworkError{Method: method, Path: path, Err: err}
	}
	defer resp.Body.Close()

	c.logger.DebugContext(ctx, "request completed",
		slog.String("method", method),
		slog.String("path", path),
		slog.Int("status", resp.StatusCode),
		slog.Duration("latency", time.Since(start)))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return decodeAPIError(resp, method, path)
	}

	if out == nil || resp.StatusCode == http.StatusNoContent {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return &types.NetworkError{Method: method, Path: path, Err: err}
	}
	if len(bytes.TrimSpace(raw)) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("api: decode %s %s response: %w", method, path, err)
	}
	return nil
}

// errorEnvelope is {status: false, message, data}. The backend is not
// consistent about data: it is usually a field list but may be anything.
type errorEnvelope struct {
	Status  bool            `json:"status"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

func decodeAPIError(resp *http.Response, method, path string) error {
	apiErr := &types.APIError{StatusCode: resp.StatusCode, Method: method, Path: path}

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	if err != nil || len(raw) == 0 {
		return apiErr
	}
	var env errorEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return apiErr
	}
	apiErr.Message = env.Message

	var fields []types.FieldError
	if len(env.Data) > 0 && json.Unmarshal(env.Data, &fields) == nil {
		for _, f := range fields {
			if f.Message != "" {
				apiErr.Fields = append(apiErr.Fields, f)
			}
		}
	}
	return apiErr
}

// TokenPayload is the advisory content of the session cookie. The client
// never verifies it; the server stays authoritative.
type TokenPayload struct {
	ID   string     `json:"id"`
	Role types.Role `json:"role"`
	jwt.RegisteredClaims
}

// SessionClaims reads the session cookie from the jar without verifying
// its signature. It reports false when there is no readable session cookie.
func (c *Client) SessionClaims() (*TokenPayload, bool) {
	if c.httpClient.Jar == nil {
		return nil, false
	}
	for _, ck := range c.httpClient.Jar.Cookies(c.origin) {
		if ck.Name != SessionCookie || ck.Value == "" {
			continue
		}
		claims := &TokenPayload{}
		if _, _, err := jwt.NewParser().ParseUnverified(ck.Value, claims); err != nil {
			c.logger.Debug("unreadable session cookie", slog.Any("error", err))
			return nil, false
		}
		return claims, true
	}
	return nil, false
}
