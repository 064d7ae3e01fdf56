// Package transform provides the pluggable text-transform backends the
// pipeline's content stages call: formatting and translation via a hosted
// language model. Two interchangeable backends exist (managed inference
// via the OpenAI SDK, and a hosted chat-completions gateway); both share
// the same truncation, output-budget, and language-normalization policies.
package transform

import (
	"context"
	"strings"

	"github.com/jackzampolin/collate/internal/fault"
)

// Provider is the capability set the content stages depend on.
type Provider interface {
	// FormatText cleans up raw extracted text into readable prose.
	FormatText(ctx context.Context, text string) (string, error)

	// TranslateText renders text in targetLanguage. Unrecognized language
	// strings are passed to the model verbatim, never rejected.
	TranslateText(ctx context.Context, text, targetLanguage string) (string, error)

	// Name returns the backend identifier (e.g. "inference", "gateway").
	Name() string
}

// completer is the transport seam each backend implements; the Format and
// Translate flows above it are identical across backends.
type completer interface {
	Name() string
	maxOutputTokens() int
	complete(ctx context.Context, system, user string, maxTokens int) (string, error)
}

func formatText(ctx context.Context, c completer, text string) (string, error) {
	body, budget, err := prepare(c, text)
	if err != nil {
		return "", err
	}
	system, user := formatPrompt(body.text, body.truncated)
	return c.complete(ctx, system, user, budget)
}

func translateText(ctx context.Context, c completer, text, targetLanguage string) (string, error) {
	body, budget, err := prepare(c, text)
	if err != nil {
		return "", err
	}
	system, user := translatePrompt(body.text, NormalizeLanguage(targetLanguage), body.truncated)
	return c.complete(ctx, system, user, budget)
}

type input struct {
	text      string
	truncated bool
}

// prepare validates, truncates, and budgets before any network call.
func prepare(c completer, text string) (input, int, error) {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return input{}, 0, fault.New(fault.Validation, "EmptyInput", "%s: input text is blank", c.Name())
	}
	body, truncated := truncateInput(trimmed)
	return input{text: body, truncated: truncated}, outputBudget(len(body), c.maxOutputTokens()), nil
}
