package tripo

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/mberenty7/tripo-tools/internal/tlsutil"
)

// DefaultBaseURL is the fixed service endpoint, versioned path included.
const DefaultBaseURL = "https://api.tripo3d.ai/v2/openapi"

// EnvAPIKey is the environment variable consulted when no key is passed.
const EnvAPIKey = "TRIPO_API_KEY"

const errBodyLimit = 1000 // bytes of response body kept in transport errors

var tracer = otel.Tracer("tripo-client")

// Config holds the configuration for a Client.
type Config struct {
	// APIKey is the bearer token. Falls back to the TRIPO_API_KEY env var.
	APIKey string

	// BaseURL overrides the service endpoint. Defaults to DefaultBaseURL.
	BaseURL string

	// Timeout is the per-request HTTP timeout. Defaults to 30s.
	Timeout time.Duration

	// PollInterval is the fixed sleep between status polls. Defaults to 3s.
	PollInterval time.Duration

	// WallTimeout bounds a whole poll loop. Defaults to 10min.
	WallTimeout time.Duration

	// RequestsPerSecond, when > 0, rate-limits outgoing requests. Useful
	// when many workers share one credential.
	RequestsPerSecond float64
}

// Client is the job-lifecycle client for the Tripo 3D generation API.
// It is safe for use by a single pipeline at a time; concurrent pipelines
// should each hold their own Client (the HTTP connection pool inside is
// shared safely).
type Client struct {
	cfg     Config
	client  *http.Client
	logger  *zap.Logger
	limiter *rate.Limiter
}

// NewClient creates a Client. A missing API key is a hard precondition
// failure; no network call is ever attempted without one. A nil logger is
// replaced with a no-op logger — the client never installs global logging
// state.
func NewClient(cfg Config, logger *zap.Logger) (*Client, error) {
	if cfg.APIKey == "" {
		cfg.APIKey = os.Getenv(EnvAPIKey)
	}
	if cfg.APIKey == "" {
		return nil, Errorf(ErrTransport, "API key required: pass Config.APIKey or set %s", EnvAPIKey)
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.PollInterval == 0 {
		cfg.PollInterval = 3 * time.Second
	}
	if cfg.WallTimeout == 0 {
		cfg.WallTimeout = 10 * time.Minute
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	c := &Client{
		cfg:    cfg,
		client: tlsutil.SecureHTTPClient(cfg.Timeout),
		logger: logger,
	}
	if cfg.RequestsPerSecond > 0 {
		c.limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), 1)
	}
	return c, nil
}

// endpoint builds the full URL for a given path.
func (c *Client) endpoint(path string) string {
	return strings.TrimRight(c.cfg.BaseURL, "/") + path
}

// newRequest creates an authenticated request against the service.
func (c *Client) newRequest(ctx context.Context, method, path string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.endpoint(path), body)
	if err != nil {
		return nil, NewError(ErrTransport, "failed to create request").WithCause(err)
	}
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	return req, nil
}

// do sends an authenticated request and unwraps the service envelope.
// A network failure or non-2xx response is a transport error carrying the
// HTTP status and a truncated body; code != 0 is a service rejection
// carrying the remote message. Neither is retried.
func (c *Client) do(ctx context.Context, method, path string, body any) (json.RawMessage, error) {
	ctx, span := tracer.Start(ctx, "tripo."+method+" "+path)
	defer span.End()
	span.SetAttributes(attribute.String("http.method", method), attribute.String("url.path", path))

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return nil, NewError(ErrTransport, "failed to marshal request").WithCause(err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := c.newRequest(ctx, method, path, reader)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	return c.send(req)
}

// send executes a prepared request and decodes the envelope. Shared by do
// and the multipart upload path.
func (c *Client) send(req *http.Request) (json.RawMessage, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(req.Context()); err != nil {
			return nil, NewError(ErrTransport, "rate limiter wait cancelled").WithCause(err)
		}
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, Errorf(ErrTransport, "%s %s failed", req.Method, req.URL.Path).WithCause(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, errBodyLimit))
		c.logger.Error("tripo API error",
			zap.String("method", req.Method),
			zap.String("path", req.URL.Path),
			zap.Int("status", resp.StatusCode),
			zap.ByteString("body", raw),
		)
		return nil, Errorf(ErrTransport, "HTTP %d: %s", resp.StatusCode, string(raw)).
			WithHTTPStatus(resp.StatusCode)
	}

	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return nil, NewError(ErrMalformedResponse, "failed to decode response envelope").WithCause(err)
	}
	if env.Code != 0 {
		msg := env.Message
		if msg == "" {
			msg = fmt.Sprintf("service returned code %d", env.Code)
		}
		return nil, NewError(ErrServiceRejection, msg).WithHTTPStatus(resp.StatusCode)
	}
	return env.Data, nil
}

// Balance returns the account's remaining API credits.
func (c *Client) Balance(ctx context.Context) (*BalanceData, error) {
	raw, err := c.do(ctx, http.MethodGet, "/user/balance", nil)
	if err != nil {
		return nil, err
	}
	var data BalanceData
	if err := json.Unmarshal(raw, &data); err != nil {
		return nil, NewError(ErrMalformedResponse, "failed to decode balance data").WithCause(err)
	}
	return &data, nil
}
