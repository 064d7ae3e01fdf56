package launch

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

// HTTPAnalyzerConfig holds configuration for the HTTP analyzer client.
type HTTPAnalyzerConfig struct {
	BaseURL    string
	APIKey     string
	Timeout    time.Duration
	MaxRetries uint
	RetryDelay time.Duration
	HTTPClient *http.Client // Optional (tests)
}

// HTTPAnalyzer starts analysis jobs on a remote document-analysis service.
// Transient transport failures and 5xx responses are retried; other 4xx
// responses are not.
type HTTPAnalyzer struct {
	baseURL    string
	apiKey     string
	client     *http.Client
	maxRetries uint
	retryDelay time.Duration
}

// NewHTTPAnalyzer creates a new HTTP analyzer client.
func NewHTTPAnalyzer(cfg HTTPAnalyzerConfig) *HTTPAnalyzer {
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
	return &HTTPAnalyzer{
		baseURL:    cfg.BaseURL,
		apiKey:     cfg.APIKey,
		client:     client,
		maxRetries: cfg.MaxRetries,
		retryDelay: cfg.RetryDelay,
	}
}

type analyzeBody struct {
	JobID          string `json:"job_id"`
	CallbackToken  string `json:"callback_token"`
	SourceLocation string `json:"source_location"`
	FileType       string `json:"file_type"`
}

// StartAnalysis posts the job to the analysis service.
func (c *HTTPAnalyzer) StartAnalysis(ctx context.Context, req Request) error {
	data, err := json.Marshal(analyzeBody{
		JobID:          req.JobID,
		CallbackToken:  req.CallbackToken,
		SourceLocation: req.SourceLocation,
		FileType:       req.FileType,
	})
	if err != nil {
		return fmt.Errorf("failed to encode analysis request: %w", err)
	}

	return retry.Do(
		func() error {
			httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/analyze", bytes.NewReader(data))
			if err != nil {
				return retry.Unrecoverable(err)
			}
			httpReq.Header.Set("Content-Type", "application/json")
			if c.apiKey != "" {
				httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
			}

			resp, err := c.client.Do(httpReq)
			if err != nil {
				return fault.Wrap(fault.ExternalService, "AnalyzerTransport", err, "analysis request failed")
			}
			defer resp.Body.Close()
			io.Copy(io.Discard, resp.Body)

			switch {
			case resp.StatusCode < 300:
				return nil
			case resp.StatusCode < 500:
				return retry.Unrecoverable(fault.New(fault.ExternalService, "AnalyzerRejected",
					"analysis request rejected with status %d", resp.StatusCode))
			default:
				return fault.New(fault.ExternalService, "AnalyzerUnavailable",
					"analysis service returned status %d", resp.StatusCode)
			}
		},
		retry.Context(ctx),
		retry.Attempts(c.maxRetries),
		retry.Delay(c.retryDelay),
		retry.LastErrorOnly(true),
	)
}
