package transform

import (
	"context"
	"net/http"
	"strings"
	"sync"
	"time"

	openai "github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"

	"github.com/jackzampolin/collate/internal/fault"
	"github.com/jackzampolin/collate/internal/secrets"
)

const (
	// InferenceName identifies the managed-inference backend.
	InferenceName = "inference"

	inferenceDefaultModel = "gpt-4o-mini"
)

// InferenceConfig holds configuration for the managed-inference backend.
// Supply APIKey directly, or SecretID+Secrets for lazy fetch.
type InferenceConfig struct {
	APIKey          string
	SecretID        string
	Secrets         secrets.Source
	Model           string
	BaseURL         string // Optional (tests)
	MaxOutputTokens int
	MaxRetries      int
	Timeout         time.Duration
	HTTPClient      *http.Client // Optional (tests)
}

// InferenceProvider implements Provider using the OpenAI SDK. The SDK
// client is built on first use so the lazy credential path never fetches
// at construction time.
type InferenceProvider struct {
	cred       *credential
	model      string
	baseURL    string
	maxOutput  int
	maxRetries int
	httpClient *http.Client

	clientOnce sync.Once
	client     openai.Client
	clientErr  error
}

// NewInferenceProvider creates a new managed-inference provider.
func NewInferenceProvider(cfg InferenceConfig) *InferenceProvider {
	if cfg.Model == "" {
		cfg.Model = inferenceDefaultModel
	}
	if cfg.MaxOutputTokens == 0 {
		cfg.MaxOutputTokens = defaultMaxOutputTokens
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 2
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 120 * time.Second
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}

	cred := staticCredential(cfg.APIKey)
	if cfg.APIKey == "" && cfg.Secrets != nil {
		cred = lazyCredential(cfg.Secrets, cfg.SecretID)
	}

	return &InferenceProvider{
		cred:       cred,
		model:      cfg.Model,
		baseURL:    cfg.BaseURL,
		maxOutput:  cfg.MaxOutputTokens,
		maxRetries: cfg.MaxRetries,
		httpClient: httpClient,
	}
}

// Name returns the backend identifier.
func (p *InferenceProvider) Name() string {
	return InferenceName
}

// FormatText cleans up raw extracted text.
func (p *InferenceProvider) FormatText(ctx context.Context, text string) (string, error) {
	return formatText(ctx, p, text)
}

// TranslateText renders text in targetLanguage.
func (p *InferenceProvider) TranslateText(ctx context.Context, text, targetLanguage string) (string, error) {
	return translateText(ctx, p, text, targetLanguage)
}

func (p *InferenceProvider) maxOutputTokens() int {
	return p.maxOutput
}

func (p *InferenceProvider) getClient(ctx context.Context) (openai.Client, error) {
	p.clientOnce.Do(func() {
		key, err := p.cred.resolve(ctx)
		if err != nil {
			p.clientErr = fault.Wrap(fault.ExternalService, "CredentialFetch", err,
				"%s: failed to resolve API key", InferenceName)
			return
		}
		opts := []option.RequestOption{
			option.WithAPIKey(key),
			option.WithHTTPClient(p.httpClient),
			option.WithMaxRetries(p.maxRetries),
		}
		if p.baseURL != "" {
			opts = append(opts, option.WithBaseURL(p.baseURL))
		}
		p.client = openai.NewClient(opts...)
	})
	return p.client, p.clientErr
}

func (p *InferenceProvider) complete(ctx context.Context, system, user string, maxTokens int) (string, error) {
	client, err := p.getClient(ctx)
	if err != nil {
		return "", err
	}

	resp, err := client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: openai.ChatModel(p.model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(system),
			openai.UserMessage(user),
		},
		MaxCompletionTokens: openai.Int(int64(maxTokens)),
	})
	if err != nil {
		return "", fault.Wrap(fault.ExternalService, "TransformTransport", err,
			"%s: chat completion failed", InferenceName)
	}
	if len(resp.Choices) == 0 || strings.TrimSpace(resp.Choices[0].Message.Content) == "" {
		return "", fault.New(fault.ExternalService, "EmptyResponse",
			"%s: response contained no usable content", InferenceName)
	}
	return resp.Choices[0].Message.Content, nil
}
