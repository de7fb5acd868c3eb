// Package api is the transport to the remote batch-translate endpoint.
//
// Calls are validated, rate-limited locally per credential, bounded by a
// timeout, and cancellable by an optional caller-supplied request key.
// Non-success responses are classified into the typed errors of this
// package; successful translations pass through the response cleaner.
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
	"regexp"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/rustledotdev/rustle.dev-sub001/internal/clean"
	"github.com/rustledotdev/rustle.dev-sub001/internal/ratelimit"
)

// MaxBatchEntries is the server's hard limit per call. Larger batches are
// rejected, never truncated.
const MaxBatchEntries = 100

// DefaultTimeout bounds one round trip.
const DefaultTimeout = 30 * time.Second

var localeRe = regexp.MustCompile(`^[a-z]{2}(-[A-Z]{2})?$`)

// ValidLocale reports whether locale matches the accepted format
// ("es", "pt-BR").
func ValidLocale(locale string) bool {
	return localeRe.MatchString(locale)
}

// Entry is one unit of a batch request.
type Entry struct {
	ID      string `json:"id"`
	Text    string `json:"text"`
	Context string `json:"context,omitempty"`
}

// BatchResult is a successful batch response.
type BatchResult struct {
	Success      bool
	Translations map[string]string
	RequestID    string
	Latency      time.Duration
}

// Config configures a Client.
type Config struct {
	BaseURL   string        `mapstructure:"base_url" json:"base_url"`
	APIKey    string        `mapstructure:"api_key" json:"api_key"`
	Model     string        `mapstructure:"model" json:"model"`
	Timeout   time.Duration `mapstructure:"timeout" json:"timeout"`
	RateLimit ratelimit.Config
}

// Client talks to the batch-translate endpoint. Safe for concurrent use.
type Client struct {
	cfg        Config
	httpClient *http.Client
	limiter    *ratelimit.FixedWindow
	logger     *slog.Logger

	mu       sync.Mutex
	inflight map[string]*inflightCall
}

type inflightCall struct {
	cancel context.CancelFunc
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithHTTPClient overrides the underlying HTTP client. Tests point it at an
// httptest server.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) ClientOption {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithLimiter overrides the client-side rate limiter.
func WithLimiter(fw *ratelimit.FixedWindow) ClientOption {
	return func(c *Client) {
		if fw != nil {
			c.limiter = fw
		}
	}
}

// NewClient creates a Client for cfg.
func NewClient(cfg Config, opts ...ClientOption) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	c := &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		limiter:    ratelimit.New(cfg.RateLimit),
		logger:     slog.New(slog.NewTextHandler(io.Discard, nil)),
		inflight:   make(map[string]*inflightCall),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// CallOption configures a single TranslateBatch call.
type CallOption func(*callOptions)

type callOptions struct {
	requestKey string
}

// WithRequestKey associates the call with a cancellation key: a new call
// carrying the same key cancels the prior one, and Cancel aborts it
// explicitly.
func WithRequestKey(key string) CallOption {
	return func(o *callOptions) { o.requestKey = key }
}

// wire types

type batchRequest struct {
	Entries        []Entry `json:"entries"`
	SourceLanguage string  `json:"sourceLanguage"`
	TargetLanguage string  `json:"targetLanguage"`
	Model          string  `json:"model"`
}

type batchResponse struct {
	Success      bool              `json:"success"`
	Translations map[string]string `json:"translations"`
	Error        *responseError    `json:"error"`
}

type responseError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Limit   int    `json:"limit"`
	Used    int    `json:"used"`
}

// quota error codes the endpoint is known to return.
var quotaCodes = map[string]bool{
	"quota_exceeded":  true,
	"QUOTA_EXCEEDED":  true,
	"usage_limit_hit": true,
}

// TranslateBatch translates 1–100 entries from srcLocale to tgtLocale in a
// single round trip. Each successful translation is cleaned before return.
func (c *Client) TranslateBatch(ctx context.Context, entries []Entry, srcLocale, tgtLocale string, opts ...CallOption) (*BatchResult, error) {
	var co callOptions
	for _, opt := range opts {
		opt(&co)
	}

	if err := validateBatch(entries, srcLocale, tgtLocale); err != nil {
		return nil, err
	}

	if res := c.limiter.Allow(c.credentialKey()); !res.Allowed {
		c.logger.Debug("rate limited locally", "retry_after", res.RetryAfter)
		return nil, &RateLimitError{RetryAfter: res.RetryAfter}
	}

	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	if co.requestKey != "" {
		call := &inflightCall{cancel: cancel}
		c.register(co.requestKey, call)
		defer c.unregister(co.requestKey, call)
	}

	requestID := uuid.NewString()
	start := time.Now()

	body, err := json.Marshal(batchRequest{
		Entries:        entries,
		SourceLanguage: srcLocale,
		TargetLanguage: tgtLocale,
		Model:          c.cfg.Model,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.cfg.BaseURL+"/translate/batch", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	httpReq.Header.Set("X-Request-Id", requestID)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return nil, context.Canceled
		}
		return nil, &NetworkError{Err: err, Timeout: errors.Is(err, context.DeadlineExceeded)}
	}
	defer resp.Body.Close()

	var parsed batchResponse
	decodeErr := json.NewDecoder(resp.Body).Decode(&parsed)

	if apiErr := classify(resp.StatusCode, &parsed, decodeErr); apiErr != nil {
		c.logger.Debug("batch translate failed",
			"request_id", requestID, "status", resp.StatusCode, "err", apiErr)
		return nil, apiErr
	}

	translations := make(map[string]string, len(parsed.Translations))
	for id, text := range parsed.Translations {
		translations[id] = clean.Clean(text)
	}

	latency := time.Since(start)
	c.logger.Debug("batch translate ok",
		"request_id", requestID, "entries", len(entries), "latency", latency)

	return &BatchResult{
		Success:      true,
		Translations: translations,
		RequestID:    requestID,
		Latency:      latency,
	}, nil
}

// Cancel aborts the in-flight call registered under key, if any.
func (c *Client) Cancel(key string) {
	c.mu.Lock()
	call, ok := c.inflight[key]
	if ok {
		delete(c.inflight, key)
	}
	c.mu.Unlock()
	if ok {
		call.cancel()
	}
}

func (c *Client) register(key string, call *inflightCall) {
	c.mu.Lock()
	prev := c.inflight[key]
	c.inflight[key] = call
	c.mu.Unlock()
	if prev != nil {
		prev.cancel()
	}
}

func (c *Client) unregister(key string, call *inflightCall) {
	c.mu.Lock()
	if c.inflight[key] == call {
		delete(c.inflight, key)
	}
	c.mu.Unlock()
}

// credentialKey identifies the credential for rate limiting without
// spreading the raw key through limiter state.
func (c *Client) credentialKey() string {
	if len(c.cfg.APIKey) > 8 {
		return c.cfg.APIKey[:8]
	}
	return c.cfg.APIKey
}

func validateBatch(entries []Entry, srcLocale, tgtLocale string) error {
	if !ValidLocale(srcLocale) {
		return &ValidationError{Field: "sourceLanguage", Message: fmt.Sprintf("invalid locale %q", srcLocale)}
	}
	if !ValidLocale(tgtLocale) {
		return &ValidationError{Field: "targetLanguage", Message: fmt.Sprintf("invalid locale %q", tgtLocale)}
	}
	if len(entries) == 0 {
		return &ValidationError{Field: "entries", Message: "batch is empty"}
	}
	if len(entries) > MaxBatchEntries {
		return &ValidationError{Field: "entries",
			Message: fmt.Sprintf("batch has %d entries, limit is %d", len(entries), MaxBatchEntries)}
	}
	return nil
}

func classify(status int, parsed *batchResponse, decodeErr error) error {
	quotaCode := parsed.Error != nil && quotaCodes[parsed.Error.Code]

	if status == http.StatusTooManyRequests || quotaCode {
		qe := &QuotaError{APIError: APIError{StatusCode: status, Message: "translation quota exceeded"}}
		if parsed.Error != nil {
			qe.Code = parsed.Error.Code
			if parsed.Error.Message != "" {
				qe.Message = parsed.Error.Message
			}
			qe.Limit = parsed.Error.Limit
			qe.Used = parsed.Error.Used
		}
		return qe
	}

	if status != http.StatusOK {
		ae := &APIError{StatusCode: status, Message: http.StatusText(status)}
		if parsed.Error != nil {
			ae.Code = parsed.Error.Code
			if parsed.Error.Message != "" {
				ae.Message = parsed.Error.Message
			}
		}
		return ae
	}

	if decodeErr != nil {
		return &APIError{StatusCode: status, Message: fmt.Sprintf("malformed response: %v", decodeErr)}
	}

	if !parsed.Success {
		ae := &APIError{StatusCode: status, Message: "request unsuccessful"}
		if parsed.Error != nil {
			ae.Code = parsed.Error.Code
			if parsed.Error.Message != "" {
				ae.Message = parsed.Error.Message
			}
		}
		return ae
	}

	return nil
}
