// Package backend is the HTTP client for the commerce REST API that owns
// orders, shipping rates and Wompi payment tokenization.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	pkgerrors "github.com/PixelDroid19/puntokoreano-app/pkg/errors"
	"github.com/PixelDroid19/puntokoreano-app/pkg/metrics"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

const (
	defaultTimeout        = 15 * time.Second
	responseReadLimit     = 1 << 20
	errorBodyReadLimit    = 1024
	genericFailureMessage = "the request could not be completed"
)

// LoginRedirect is where the UI sends the shopper after the backend rejects
// the session credentials.
const LoginRedirect = "/login"

var errBaseURLRequired = errors.New("backend base url is required")

// Client wraps the commerce backend endpoints used by checkout.
type Client struct {
	httpClient *http.Client
	baseURL    string
	metrics    *metrics.CheckoutMetrics
}

// Option configures optional client behavior.
type Option func(*Client)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// WithTimeout sets the per-request timeout of the default HTTP client.
func WithTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		if timeout > 0 && c.httpClient != nil {
			c.httpClient.Timeout = timeout
		}
	}
}

// WithMetrics records request latency per endpoint.
func WithMetrics(m *metrics.CheckoutMetrics) Option {
	return func(c *Client) {
		c.metrics = m
	}
}

// NewClient builds the backend client for the given versioned base URL.
func NewClient(baseURL string, opts ...Option) (*Client, error) {
	trimmed := strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if trimmed == "" {
		return nil, errBaseURLRequired
	}

	client := &Client{
		baseURL: trimmed,
		httpClient: &http.Client{
			Timeout:   defaultTimeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(client)
		}
	}
	return client, nil
}

type tokenKey struct{}

// WithToken returns a context whose backend calls carry the bearer token.
func WithToken(ctx context.Context, token string) context.Context {
	return context.WithValue(ctx, tokenKey{}, strings.TrimSpace(token))
}

// TokenFromContext returns the bearer token attached by WithToken.
func TokenFromContext(ctx context.Context) string {
	token, _ := ctx.Value(tokenKey{}).(string)
	return token
}

type idempotencyKey struct{}

// WithIdempotencyKey returns a context whose backend calls carry the key in
// the Idempotency-Key header.
func WithIdempotencyKey(ctx context.Context, key string) context.Context {
	return context.WithValue(ctx, idempotencyKey{}, strings.TrimSpace(key))
}

type envelope struct {
	Success *bool           `json:"success"`
	Data    json.RawMessage `json:"data"`
	Message string          `json:"message"`
	Error   string          `json:"error"`
}

func (e envelope) backendMessage() string {
	if msg := strings.TrimSpace(e.Message); msg != "" {
		return msg
	}
	return strings.TrimSpace(e.Error)
}

func (c *Client) do(ctx context.Context, endpoint, method, path string, body, out any) error {
	if c == nil {
		return pkgerrors.New(pkgerrors.CodeDependency, "backend client not configured")
	}

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "marshal "+endpoint+" request")
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.buildURL(path), reader)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "build "+endpoint+" request")
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token := TokenFromContext(ctx); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if key, _ := ctx.Value(idempotencyKey{}).(string); key != "" {
		req.Header.Set("Idempotency-Key", key)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.metrics.ObserveBackendCall(endpoint, "transport_error", time.Since(start))
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "execute "+endpoint+" request")
	}
	defer func() { _ = resp.Body.Close() }()
	c.metrics.ObserveBackendCall(endpoint, strconv.Itoa(resp.StatusCode), time.Since(start))

	raw, err := io.ReadAll(io.LimitReader(resp.Body, responseReadLimit))
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "read "+endpoint+" response")
	}

	var env envelope
	decodeErr := json.Unmarshal(raw, &env)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return statusError(endpoint, resp.StatusCode, env, raw)
	}
	if decodeErr != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, decodeErr, "decode "+endpoint+" response")
	}
	if env.Success != nil && !*env.Success {
		msg := env.backendMessage()
		if msg == "" {
			msg = genericFailureMessage
		}
		return pkgerrors.New(pkgerrors.CodeValidation, msg).WithDetails(map[string]any{"endpoint": endpoint})
	}
	if out == nil || len(env.Data) == 0 || string(env.Data) == "null" {
		return nil
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "decode "+endpoint+" data")
	}
	return nil
}

func statusError(endpoint string, status int, env envelope, raw []byte) error {
	msg := env.backendMessage()
	if msg == "" {
		snippet := raw
		if len(snippet) > errorBodyReadLimit {
			snippet = snippet[:errorBodyReadLimit]
		}
		msg = strings.TrimSpace(string(snippet))
	}
	cause := fmt.Errorf("status %d: %s", status, msg)
	details := map[string]any{"endpoint": endpoint, "status": status}

	public := env.backendMessage()
	if public == "" {
		public = genericFailureMessage
	}

	switch {
	case status == http.StatusUnauthorized:
		return pkgerrors.Wrap(pkgerrors.CodeUnauthorized, cause, "session expired, please sign in again").
			WithDetails(map[string]any{"endpoint": endpoint, "redirect": LoginRedirect})
	case status == http.StatusNotFound:
		return pkgerrors.Wrap(pkgerrors.CodeNotFound, cause, public).WithDetails(details)
	case status == http.StatusConflict:
		return pkgerrors.Wrap(pkgerrors.CodeConflict, cause, public).WithDetails(details)
	case status >= 400 && status < 500:
		return pkgerrors.Wrap(pkgerrors.CodeValidation, cause, public).WithDetails(details)
	default:
		return pkgerrors.Wrap(pkgerrors.CodeDependency, cause, public).WithDetails(details)
	}
}

func (c *Client) buildURL(path string) string {
	return fmt.Sprintf("%s/%s", c.baseURL, strings.TrimLeft(path, "/"))
}
