// Package signal delivers the terminal outcome of a coordination job to
// the waiting orchestrator, at most once per callback token.
package signal

import (
	"context"
	"errors"
)

var (
	// ErrTokenConsumed marks a callback token that was already used. The
	// callback API rejects reuse by contract; the in-process waiter
	// enforces it directly.
	ErrTokenConsumed = errors.New("callback token already consumed")
	// ErrUnknownToken marks a token no execution is waiting on.
	ErrUnknownToken = errors.New("unknown callback token")
)

// Success is the payload delivered on a successful completion.
type Success struct {
	JobID          string `json:"jobId"`
	ResultLocation string `json:"resultLocation"`
}

// Callback is the orchestrator's single-use resume API.
type Callback interface {
	SignalSuccess(ctx context.Context, token string, payload Success) error
	SignalFailure(ctx context.Context, token, code, cause string) error
}
