// Package secrets abstracts the credential store used for lazily
// constructed transform providers. The collaborator caches values upstream,
// so implementations fetch on every call.
package secrets

import (
	"context"
	"os"

	"github.com/jackzampolin/collate/internal/fault"
)

// Source resolves a secret id to its value.
type Source interface {
	GetSecret(ctx context.Context, id string) (string, error)
}

// EnvSource resolves secrets from environment variables.
type EnvSource struct{}

// GetSecret returns the value of the environment variable named id.
func (EnvSource) GetSecret(_ context.Context, id string) (string, error) {
	v := os.Getenv(id)
	if v == "" {
		return "", fault.New(fault.Validation, "SecretNotFound", "secret %q not set", id)
	}
	return v, nil
}

// Static is a fixed-value source for tests and eager configuration.
type Static map[string]string

func (s Static) GetSecret(_ context.Context, id string) (string, error) {
	v, ok := s[id]
	if !ok {
		return "", fault.New(fault.Validation, "SecretNotFound", "secret %q not set", id)
	}
	return v, nil
}
