package transform

import (
	"net/http"
	"time"

	"github.com/jackzampolin/collate/internal/fault"
	"github.com/jackzampolin/collate/internal/secrets"
)

// Backend selects a provider implementation.
type Backend string

const (
	BackendInference Backend = "inference"
	BackendGateway   Backend = "gateway"
)

// Config selects and configures a transform backend.
type Config struct {
	Backend         Backend
	Model           string
	APIKey          string         // Eager credential
	SecretID        string         // Lazy credential id, resolved via Secrets
	Secrets         secrets.Source // Required when APIKey is empty
	BaseURL         string
	MaxOutputTokens int
	Timeout         time.Duration
	HTTPClient      *http.Client // Optional (tests)
}

// New constructs the configured provider.
func New(cfg Config) (Provider, error) {
	if cfg.APIKey == "" && (cfg.Secrets == nil || cfg.SecretID == "") {
		return nil, fault.New(fault.Validation, "MissingCredential",
			"transform backend %q needs an API key or a secret source", cfg.Backend)
	}

	switch cfg.Backend {
	case BackendInference:
		return NewInferenceProvider(InferenceConfig{
			APIKey:          cfg.APIKey,
			SecretID:        cfg.SecretID,
			Secrets:         cfg.Secrets,
			Model:           cfg.Model,
			BaseURL:         cfg.BaseURL,
			MaxOutputTokens: cfg.MaxOutputTokens,
			Timeout:         cfg.Timeout,
			HTTPClient:      cfg.HTTPClient,
		}), nil
	case BackendGateway:
		return NewGatewayProvider(GatewayConfig{
			APIKey:          cfg.APIKey,
			SecretID:        cfg.SecretID,
			Secrets:         cfg.Secrets,
			Model:           cfg.Model,
			BaseURL:         cfg.BaseURL,
			MaxOutputTokens: cfg.MaxOutputTokens,
			Timeout:         cfg.Timeout,
			HTTPClient:      cfg.HTTPClient,
		}), nil
	default:
		return nil, fault.New(fault.Validation, "UnknownBackend",
			"unknown transform backend %q", cfg.Backend)
	}
}
