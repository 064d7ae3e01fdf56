package signal

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/avast/retry-go/v4"

	"github.com/jackzampolin/collate/internal/fault"
)

// HTTPCallbackConfig holds configuration for the HTTP callback client.
type HTTPCallbackConfig struct {
	BaseURL    string
	Timeout    time.Duration
	MaxRetries uint
	RetryDelay time.Duration
	HTTPClient *http.Client // Optional (tests)
}

// HTTPCallback delivers signals to a remote orchestrator over HTTP.
// Transient transport failures and 5xx responses are retried; 409/410
// means the token was already consumed and is never retried.
type HTTPCallback struct {
	baseURL    string
	client     *http.Client
	maxRetries uint
	retryDelay time.Duration
}

// NewHTTPCallback creates a new HTTP callback client.
func NewHTTPCallback(cfg HTTPCallbackConfig) *HTTPCallback {
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = 3
	}
	if cfg.RetryDelay == 0 {
		cfg.RetryDelay = time.Second
	}
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: cfg.Timeout}
	}
	return &HTTPCallback{
		baseURL:    cfg.BaseURL,
		client:     client,
		maxRetries: cfg.MaxRetries,
		retryDelay: cfg.RetryDelay,
	}
}

type successBody struct {
	Token  string  `json:"token"`
	Output Success `json:"output"`
}

type failureBody struct {
	Token string `json:"token"`
	Code  string `json:"code"`
	Cause string `json:"cause"`
}

// SignalSuccess posts the merged-result reference to the orchestrator.
func (c *HTTPCallback) SignalSuccess(ctx context.Context, token string, payload Success) error {
	return c.post(ctx, "/signal/success", successBody{Token: token, Output: payload})
}

// SignalFailure posts a terminal failure to the orchestrator.
func (c *HTTPCallback) SignalFailure(ctx context.Context, token, code, cause string) error {
	return c.post(ctx, "/signal/failure", failureBody{Token: token, Code: code, Cause: cause})
}

func (c *HTTPCallback) post(ctx context.Context, path string, body any) error {
	data, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to encode signal body: %w", err)
	}

	return retry.Do(
		func() error {
			req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(data))
			if err != nil {
				return retry.Unrecoverable(err)
			}
			req.Header.Set("Content-Type", "application/json")

			resp, err := c.client.Do(req)
			if err != nil {
				return fault.Wrap(fault.ExternalService, "CallbackTransport", err, "callback request failed")
			}
			defer resp.Body.Close()
			io.Copy(io.Discard, resp.Body)

			switch {
			case resp.StatusCode < 300:
				return nil
			case resp.StatusCode == http.StatusConflict || resp.StatusCode == http.StatusGone:
				return retry.Unrecoverable(fmt.Errorf("callback %s: %w", path, ErrTokenConsumed))
			case resp.StatusCode < 500:
				return retry.Unrecoverable(fault.New(fault.ExternalService, "CallbackRejected",
					"callback %s rejected with status %d", path, resp.StatusCode))
			default:
				return fault.New(fault.ExternalService, "CallbackUnavailable",
					"callback %s returned status %d", path, resp.StatusCode)
			}
		},
		retry.Context(ctx),
		retry.Attempts(c.maxRetries),
		retry.Delay(c.retryDelay),
		retry.LastErrorOnly(true),
	)
}
