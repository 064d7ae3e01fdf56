package transform

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/jackzampolin/collate/internal/fault"
	"github.com/jackzampolin/collate/internal/secrets"
)

const (
	// GatewayName identifies the hosted-API backend.
	GatewayName = "gateway"

	gatewayDefaultBaseURL = "https://openrouter.ai/api/v1"
	gatewayDefaultModel   = "anthropic/claude-3.5-sonnet"
)

// GatewayConfig holds configuration for the hosted chat-completions
// backend. Supply APIKey directly, or SecretID+Secrets for lazy fetch.
type GatewayConfig struct {
	APIKey          string
	SecretID        string
	Secrets         secrets.Source
	BaseURL         string
	Model           string
	MaxOutputTokens int
	Timeout         time.Duration
	HTTPClient      *http.Client // Optional (tests)
}

// GatewayProvider implements Provider against a hosted OpenAI-compatible
// chat-completions API.
type GatewayProvider struct {
	cred      *credential
	baseURL   string
	model     string
	maxOutput int
	client    *http.Client
}

// NewGatewayProvider creates a new hosted-API provider.
func NewGatewayProvider(cfg GatewayConfig) *GatewayProvider {
	if cfg.BaseURL == "" {
		cfg.BaseURL = gatewayDefaultBaseURL
	}
	if cfg.Model == "" {
		cfg.Model = gatewayDefaultModel
	}
	if cfg.MaxOutputTokens == 0 {
		cfg.MaxOutputTokens = defaultMaxOutputTokens
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 120 * time.Second
	}
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: cfg.Timeout}
	}

	cred := staticCredential(cfg.APIKey)
	if cfg.APIKey == "" && cfg.Secrets != nil {
		cred = lazyCredential(cfg.Secrets, cfg.SecretID)
	}

	return &GatewayProvider{
		cred:      cred,
		baseURL:   cfg.BaseURL,
		model:     cfg.Model,
		maxOutput: cfg.MaxOutputTokens,
		client:    client,
	}
}

// Name returns the backend identifier.
func (p *GatewayProvider) Name() string {
	return GatewayName
}

// FormatText cleans up raw extracted text.
func (p *GatewayProvider) FormatText(ctx context.Context, text string) (string, error) {
	return formatText(ctx, p, text)
}

// TranslateText renders text in targetLanguage.
func (p *GatewayProvider) TranslateText(ctx context.Context, text, targetLanguage string) (string, error) {
	return translateText(ctx, p, text, targetLanguage)
}

func (p *GatewayProvider) maxOutputTokens() int {
	return p.maxOutput
}

type gatewayMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type gatewayRequest struct {
	Model     string           `json:"model"`
	Messages  []gatewayMessage `json:"messages"`
	MaxTokens int              `json:"max_tokens,omitempty"`
}

type gatewayResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

func (p *GatewayProvider) complete(ctx context.Context, system, user string, maxTokens int) (string, error) {
	key, err := p.cred.resolve(ctx)
	if err != nil {
		return "", fault.Wrap(fault.ExternalService, "CredentialFetch", err,
			"%s: failed to resolve API key", GatewayName)
	}

	body, err := json.Marshal(gatewayRequest{
		Model: p.model,
		Messages: []gatewayMessage{
			{Role: "system", Content: system},
			{Role: "user", Content: user},
		},
		MaxTokens: maxTokens,
	})
	if err != nil {
		return "", fmt.Errorf("failed to encode gateway request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		p.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to build gateway request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+key)

	resp, err := p.client.Do(req)
	if err != nil {
		return "", fault.Wrap(fault.ExternalService, "TransformTransport", err,
			"%s: request failed", GatewayName)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fault.Wrap(fault.ExternalService, "TransformTransport", err,
			"%s: failed to read response", GatewayName)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fault.New(fault.ExternalService, "TransformFailed",
			"%s: status %d: %s", GatewayName, resp.StatusCode, truncateForError(data))
	}

	var gr gatewayResponse
	if err := json.Unmarshal(data, &gr); err != nil {
		return "", fault.Wrap(fault.ExternalService, "TransformFailed", err,
			"%s: unparseable response", GatewayName)
	}
	if gr.Error != nil {
		return "", fault.New(fault.ExternalService, "TransformFailed",
			"%s: %s", GatewayName, gr.Error.Message)
	}
	if len(gr.Choices) == 0 || strings.TrimSpace(gr.Choices[0].Message.Content) == "" {
		// No usable content is not a transport failure.
		return "", fault.New(fault.ExternalService, "EmptyResponse",
			"%s: response contained no usable content", GatewayName)
	}
	return gr.Choices[0].Message.Content, nil
}

func truncateForError(data []byte) string {
	const limit = 200
	s := string(data)
	if len(s) > limit {
		return s[:limit] + "..."
	}
	return s
}
