// Package cloudflare provides a client for Cloudflare Workers AI.
//
// FILES:
//   - client.go:   API client, discovery and inference calls
//   - response.go: Response body parsing
//   - pending.go:  Lazily resolved rewrite results
//   - errors.go:   Error kinds
//   - types.go:    Request/result types
package cloudflare

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/tidwall/sjson"

	"github.com/yanpl/grasser/internal/config"
)

// Client calls the Workers AI REST API. The account id is unknown until
// Discover succeeds (or one is supplied with WithAccountID).
type Client struct {
	baseURL    string
	apiKey     string
	modelID    string
	httpClient *http.Client

	accountMu sync.RWMutex
	accountID string
}

// ClientOption configures the Client.
type ClientOption func(*Client)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(c *http.Client) ClientOption {
	return func(client *Client) {
		client.httpClient = c
	}
}

// WithTimeout sets the HTTP client timeout. Zero keeps transport defaults.
func WithTimeout(timeout time.Duration) ClientOption {
	return func(client *Client) {
		client.httpClient.Timeout = timeout
	}
}

// WithBaseURL overrides the API root (used by tests).
func WithBaseURL(baseURL string) ClientOption {
	return func(client *Client) {
		client.baseURL = baseURL
	}
}

// WithAccountID presets the account id so discovery is not needed.
func WithAccountID(id string) ClientOption {
	return func(client *Client) {
		client.accountID = id
	}
}

// NewClient creates a Workers AI client for one model.
func NewClient(apiKey, modelID string, opts ...ClientOption) *Client {
	c := &Client{
		baseURL:    config.DefaultCloudflareBaseURL,
		apiKey:     apiKey,
		modelID:    modelID,
		httpClient: &http.Client{},
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// NewClientFromConfig builds a Client from the cloudflare config section.
func NewClientFromConfig(cfg config.CloudflareConfig, opts ...ClientOption) *Client {
	base := []ClientOption{WithBaseURL(cfg.BaseURL), WithTimeout(cfg.RequestTimeout)}
	if cfg.AccountID != "" {
		base = append(base, WithAccountID(cfg.AccountID))
	}
	return NewClient(cfg.APIKey, cfg.ModelID, append(base, opts...)...)
}

// AccountID returns the resolved account id.
func (c *Client) AccountID() (string, bool) {
	c.accountMu.RLock()
	defer c.accountMu.RUnlock()
	return c.accountID, c.accountID != ""
}

// ModelID returns the configured model.
func (c *Client) ModelID() string {
	return c.modelID
}

// =============================================================================
// ACCOUNT DISCOVERY
// =============================================================================

// Discover lists the accounts visible to the API key and keeps the first
// one. It is a no-op if an account id is already known.
func (c *Client) Discover(ctx context.Context) (string, error) {
	if id, ok := c.AccountID(); ok {
		return id, nil
	}

	body, err := c.do(ctx, http.MethodGet, c.baseURL+"/accounts", nil)
	if err != nil {
		log.Error().Err(err).Msg("cloudflare account discovery failed")
		return "", err
	}

	id, err := parseAccountID(body)
	if err != nil {
		log.Error().Err(err).Str("body", truncate(string(body))).Msg("cloudflare account discovery returned unexpected body")
		return "", err
	}

	c.accountMu.Lock()
	c.accountID = id
	c.accountMu.Unlock()

	log.Info().Str("account_id", id).Msg("cloudflare account resolved")
	return id, nil
}

// DiscoverAsync runs Discover in the background. The channel receives the
// discovery error (nil on success) and is then closed.
func (c *Client) DiscoverAsync(ctx context.Context) <-chan error {
	errCh := make(chan error, 1)
	go func() {
		defer close(errCh)
		_, err := c.Discover(ctx)
		errCh <- err
	}()
	return errCh
}

// =============================================================================
// INFERENCE
// =============================================================================

// Rewrite sends one rewrite request without blocking the caller. If the
// account id is still unresolved the returned Pending is already failed
// with ErrAccountUnavailable and no request is made.
func (c *Client) Rewrite(ctx context.Context, req RewriteRequest) *Pending {
	accountID, ok := c.AccountID()
	if !ok {
		log.Error().Err(ErrAccountUnavailable).Msg("cloudflare rewrite skipped")
		return Resolved(Result{Err: ErrAccountUnavailable})
	}

	p := NewPending()
	go func() {
		p.Resolve(c.rewrite(ctx, accountID, req))
	}()
	return p
}

func (c *Client) rewrite(ctx context.Context, accountID string, req RewriteRequest) Result {
	requestID := uuid.New().String()
	start := time.Now()

	payload, err := c.buildInferenceBody(req)
	if err != nil {
		log.Error().Err(err).Str("request_id", requestID).Msg("cloudflare rewrite: building request failed")
		return Result{Err: fmt.Errorf("building request: %w", err)}
	}

	url := fmt.Sprintf("%s/accounts/%s/ai/run/%s", c.baseURL, accountID, c.modelID)
	body, err := c.do(ctx, http.MethodPost, url, payload)
	if err != nil {
		ev := log.Error().Err(err).Str("request_id", requestID).Str("model", c.modelID)
		var pe *ProviderError
		if errors.As(err, &pe) {
			ev = ev.Int("status", pe.StatusCode).Str("body", truncate(pe.Body))
		}
		ev.Msg("cloudflare rewrite failed")
		return Result{Err: err}
	}

	text, err := parseOutputText(body)
	if err != nil {
		log.Error().Err(err).
			Str("request_id", requestID).
			Str("model", c.modelID).
			Str("body", truncate(string(body))).
			Msg("cloudflare rewrite returned unexpected body")
		return Result{Err: err}
	}

	log.Debug().
		Str("request_id", requestID).
		Dur("latency", time.Since(start)).
		Int("output_len", len(text)).
		Msg("cloudflare rewrite completed")
	return Result{Text: text}
}

// buildInferenceBody produces {model, input:[{role:"user", content}]}.
func (c *Client) buildInferenceBody(req RewriteRequest) ([]byte, error) {
	body, err := sjson.SetBytes([]byte(`{}`), "model", c.modelID)
	if err != nil {
		return nil, err
	}
	return sjson.SetBytes(body, "input", []inputMessage{{Role: "user", Content: req.Prompt()}})
}

// =============================================================================
// HTTP Helpers
// =============================================================================

// do performs an authenticated request and returns the full body of a 2xx
// answer. Non-2xx answers become *ProviderError, everything that fails
// before a status is read becomes *TransportError.
func (c *Client) do(ctx context.Context, method, url string, payload []byte) ([]byte, error) {
	var reqBody io.Reader
	if payload != nil {
		reqBody = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reqBody)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}

	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &TransportError{Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &TransportError{Err: fmt.Errorf("reading response: %w", err)}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &ProviderError{StatusCode: resp.StatusCode, Body: string(body)}
	}

	return body, nil
}

func truncate(s string) string {
	if len(s) <= config.MaxErrorBodyLogLen {
		return s
	}
	cut := config.MaxErrorBodyLogLen
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "...(truncated)"
}
