package transform

import (
	"testing"

	"github.com/jackzampolin/collate/internal/fault"
	"github.com/jackzampolin/collate/internal/secrets"
)

func TestNew(t *testing.T) {
	t.Run("gateway backend", func(t *testing.T) {
		p, err := New(Config{Backend: BackendGateway, APIKey: "k"})
		if err != nil {
			t.Fatalf("New() error = %v", err)
		}
		if _, ok := p.(*GatewayProvider); !ok {
			t.Errorf("New() = %T, want *GatewayProvider", p)
		}
	})

	t.Run("inference backend", func(t *testing.T) {
		p, err := New(Config{Backend: BackendInference, APIKey: "k"})
		if err != nil {
			t.Fatalf("New() error = %v", err)
		}
		if _, ok := p.(*InferenceProvider); !ok {
			t.Errorf("New() = %T, want *InferenceProvider", p)
		}
	})

	t.Run("lazy credential accepted", func(t *testing.T) {
		_, err := New(Config{
			Backend:  BackendGateway,
			Secrets:  secrets.Static{"id": "key"},
			SecretID: "id",
		})
		if err != nil {
			t.Fatalf("New() error = %v", err)
		}
	})

	t.Run("missing credential rejected", func(t *testing.T) {
		_, err := New(Config{Backend: BackendGateway})
		if fault.KindOf(err) != fault.Validation {
			t.Errorf("New() error kind = %q, want Validation", fault.KindOf(err))
		}
	})

	t.Run("unknown backend rejected", func(t *testing.T) {
		_, err := New(Config{Backend: "mainframe", APIKey: "k"})
		if fault.KindOf(err) != fault.Validation {
			t.Errorf("New() error kind = %q, want Validation", fault.KindOf(err))
		}
	})
}
