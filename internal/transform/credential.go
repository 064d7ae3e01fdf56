package transform

import (
	"context"
	"sync"

	"github.com/jackzampolin/collate/internal/secrets"
)

// credential resolves an API key either eagerly (supplied directly) or
// lazily via a one-shot secret fetch on first use. The fetch is memoized
// for the instance's lifetime: concurrent first calls share a single
// fetch, and a failed fetch is sticky — construct a fresh provider to
// retry.
type credential struct {
	key   string
	fetch func(context.Context) (string, error)

	once sync.Once
	err  error
}

func staticCredential(key string) *credential {
	return &credential{key: key}
}

func lazyCredential(src secrets.Source, id string) *credential {
	return &credential{
		fetch: func(ctx context.Context) (string, error) {
			return src.GetSecret(ctx, id)
		},
	}
}

func (c *credential) resolve(ctx context.Context) (string, error) {
	if c.fetch == nil {
		return c.key, nil
	}
	c.once.Do(func() {
		c.key, c.err = c.fetch(ctx)
	})
	return c.key, c.err
}
