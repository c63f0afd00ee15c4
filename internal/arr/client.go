// Package arr is a client for the backup endpoints of the *arr media servers
// (Sonarr, Radarr, Lidarr, Prowlarr) API v3.
package arr

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"

	"github.com/imedwei/arr-backup/internal/metrics"
)

const (
	backupPath  = "/api/v3/system/backup"
	commandPath = "/api/v3/command"

	apiKeyHeader = "X-Api-Key"

	// maxErrorBody bounds how much of an error response ends up in ServerError.
	maxErrorBody = 512
)

// Version is reported in the User-Agent header.
var Version = "0.1.0"

// Config holds client configuration.
type Config struct {
	BaseURL string
	APIKey  string

	// Timeout applies to each request. Zero means DefaultTimeout.
	Timeout time.Duration

	// HTTPClient overrides the default client, mostly for tests.
	HTTPClient *http.Client
}

// DefaultTimeout is the per-request timeout when Config.Timeout is zero.
const DefaultTimeout = 30 * time.Second

// Client talks to a single server instance.
type Client struct {
	baseURL   string
	apiKey    string
	userAgent string
	http      *http.Client
	logger    *slog.Logger
}

// NewClient validates the configuration and creates a client.
func NewClient(cfg Config, logger *slog.Logger) (*Client, error) {
	u, err := url.Parse(cfg.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid base URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("invalid base URL %q: scheme must be http or https", cfg.BaseURL)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("invalid base URL %q: missing host", cfg.BaseURL)
	}
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("API key is required")
	}
	if strings.ContainsAny(cfg.APIKey, "\r\n\x00") {
		// Do not echo the key.
		return nil, fmt.Errorf("API key contains invalid characters")
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = DefaultTimeout
		}
		httpClient = &http.Client{Timeout: timeout}
	}

	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	if logger == nil {
		logger = slog.Default()
	}

	return &Client{
		baseURL:   baseURL,
		apiKey:    cfg.APIKey,
		userAgent: "arr-backup/" + Version,
		http:      httpClient,
		logger:    logger.With("component", "arr-client", "url", baseURL),
	}, nil
}

// ListBackups returns every backup the server knows about.
func (c *Client) ListBackups(ctx context.Context) ([]Backup, error) {
	const op = "list backups"
	c.logger.Debug("Getting backups")

	body, err := c.do(ctx, op, http.MethodGet, backupPath, nil)
	if err != nil {
		return nil, err
	}

	var backups []Backup
	if err := json.Unmarshal(body, &backups); err != nil {
		metrics.RecordAPIRequest(op, "decode_error")
		return nil, &DecodeError{Op: op, Err: err}
	}
	if backups == nil {
		// A JSON null is not a list.
		if !bytes.Equal(bytes.TrimSpace(body), []byte("[]")) {
			metrics.RecordAPIRequest(op, "decode_error")
			return nil, &DecodeError{Op: op, Err: fmt.Errorf("expected a JSON array")}
		}
		backups = []Backup{}
	}

	metrics.RecordAPIRequest(op, "success")
	c.logger.Debug("Got backups", "count", len(backups))
	return backups, nil
}

// TriggerBackup asks the server to start a manual backup. It returns as soon
// as the command is accepted; the backup itself completes asynchronously.
func (c *Client) TriggerBackup(ctx context.Context) error {
	const op = "trigger backup"
	c.logger.Debug("Triggering backup")

	if _, err := c.do(ctx, op, http.MethodPost, commandPath, []byte(`{"name": "Backup"}`)); err != nil {
		return err
	}
	metrics.RecordAPIRequest(op, "success")
	return nil
}

// DeleteBackup permanently removes a backup from the server.
func (c *Client) DeleteBackup(ctx context.Context, id int64) error {
	const op = "delete backup"
	c.logger.Debug("Deleting backup", "id", id)

	if _, err := c.do(ctx, op, http.MethodDelete, backupPath+"/"+strconv.FormatInt(id, 10), nil); err != nil {
		return err
	}
	metrics.RecordAPIRequest(op, "success")
	return nil
}

// do sends one request and returns the full response body of a 2xx response.
func (c *Client) do(ctx context.Context, op, method, path string, payload []byte) ([]byte, error) {
	var reqBody io.Reader = http.NoBody
	if payload != nil {
		reqBody = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		metrics.RecordAPIRequest(op, "transport_error")
		return nil, &TransportError{Op: op, Err: err}
	}
	req.Header.Set(apiKeyHeader, c.apiKey)
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		metrics.RecordAPIRequest(op, "transport_error")
		return nil, &TransportError{Op: op, Err: err}
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			c.logger.Warn("Failed to close response body", "error", err)
		}
	}()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		excerpt, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		metrics.RecordAPIRequest(op, "server_error")
		return nil, &ServerError{
			Op:         op,
			StatusCode: resp.StatusCode,
			Body:       c.redact(strings.TrimSpace(string(excerpt))),
		}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		metrics.RecordAPIRequest(op, "transport_error")
		return nil, &TransportError{Op: op, Err: fmt.Errorf("failed to read response body: %w", err)}
	}
	return body, nil
}

// redact strips the API key from text that came back from the server.
func (c *Client) redact(s string) string {
	return strings.ReplaceAll(s, c.apiKey, "[REDACTED]")
}
