package hub

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/nerrad567/gray-logic-dirigera/internal/infrastructure/config"
)

const (
	defaultTimeout = 30 * time.Second

	// maxErrorBody caps how much of an error response is kept for messages.
	maxErrorBody = 512
)

// Logger is the logging interface used by the hub package.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// ClientOptions configures a Client.
type ClientOptions struct {
	// Config is the hub section of the bridge configuration.
	Config config.HubConfig

	// BaseURL overrides the https://host:port/version URL derived from Config.
	BaseURL string

	// HTTPClient overrides the client built from Config.
	HTTPClient *http.Client

	Logger Logger
}

// Client talks to the hub's REST API.
//
// Thread Safety:
//   - All methods are safe for concurrent use.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
	tls     *tls.Config
	logger  Logger
}

// NewClient builds a hub client. No request is made.
func NewClient(opts ClientOptions) (*Client, error) {
	cfg := opts.Config
	if cfg.Token == "" {
		return nil, fmt.Errorf("%w: token is required", ErrInvalidConfig)
	}

	baseURL := opts.BaseURL
	if baseURL == "" {
		if cfg.Host == "" {
			return nil, fmt.Errorf("%w: host is required", ErrInvalidConfig)
		}
		baseURL = fmt.Sprintf("https://%s:%d/%s", cfg.Host, cfg.Port, cfg.APIVersion)
	}

	// #nosec G402 -- the hub ships a self-signed certificate
	tlsCfg := &tls.Config{MinVersion: tls.VersionTLS12, InsecureSkipVerify: !cfg.VerifyTLS}

	httpClient := opts.HTTPClient
	if httpClient == nil {
		timeout := time.Duration(cfg.RequestTimeout) * time.Second
		if timeout <= 0 {
			timeout = defaultTimeout
		}
		httpClient = &http.Client{
			Timeout:   timeout,
			Transport: &http.Transport{TLSClientConfig: tlsCfg},
		}
	}

	logger := opts.Logger
	if logger == nil {
		logger = noopLogger{}
	}

	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   cfg.Token,
		http:    httpClient,
		tls:     tlsCfg,
		logger:  logger,
	}, nil
}

// BaseURL returns the REST base URL.
func (c *Client) BaseURL() string { return c.baseURL }

// EventURL returns the websocket URL of the event stream.
func (c *Client) EventURL() string {
	u, err := url.Parse(c.baseURL)
	if err != nil {
		return ""
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	case "http":
		u.Scheme = "ws"
	}
	return u.String()
}

// Ping checks that the hub answers and accepts the token.
func (c *Client) Ping(ctx context.Context) error {
	return c.do(ctx, http.MethodGet, "/hub/status", nil, nil)
}

func (c *Client) get(ctx context.Context, path string, out any) error {
	return c.do(ctx, http.MethodGet, path, nil, out)
}

// do performs a request. body and out are JSON-encoded when non-nil.
func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encoding %s %s body: %w", method, path, err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("%w: building %s %s: %w", ErrRequestFailed, method, path, err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %s %s: %w", ErrRequestFailed, method, path, err)
	}
	defer resp.Body.Close()

	c.logger.Debug("hub request", "method", method, "path", path, "status", resp.StatusCode, "duration", time.Since(start))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody)) //nolint:errcheck // best-effort error detail
		return statusError(method, path, resp.StatusCode, msg)
	}

	if out == nil {
		io.Copy(io.Discard, resp.Body) //nolint:errcheck // drain for connection reuse
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: decoding %s %s: %w", ErrRequestFailed, method, path, err)
	}
	return nil
}

func statusError(method, path string, code int, body []byte) error {
	var sentinel error
	switch code {
	case http.StatusUnauthorized, http.StatusForbidden:
		sentinel = ErrUnauthorized
	case http.StatusNotFound:
		sentinel = ErrNotFound
	default:
		sentinel = ErrRequestFailed
	}
	detail := strings.TrimSpace(string(body))
	if detail == "" {
		return fmt.Errorf("%w: %s %s: status %d", sentinel, method, path, code)
	}
	return fmt.Errorf("%w: %s %s: status %d: %s", sentinel, method, path, code, detail)
}
