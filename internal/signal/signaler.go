package signal

import (
	"context"
	"log/slog"

	"github.com/jackzampolin/collate/internal/fault"
	"github.com/jackzampolin/collate/internal/tokens"
)

// Signaler invokes the orchestrator callback at most once per job token.
// The token is claimed (conditionally deleted) before the signal attempt:
// of two concurrent completions only one wins the claim, the loser is a
// silent no-op. A failed success-signal falls back to one failure-signal
// so the orchestrator is never left waiting; failure of both attempts is
// logged. Claiming first accepts a possible zero-signal outcome if the
// process dies between claim and signal; the orchestrator's own wait
// timeout covers that.
type Signaler struct {
	tokens *tokens.Store
	cb     Callback
	log    *slog.Logger
}

// NewSignaler creates a signaler over the token store and callback API.
func NewSignaler(store *tokens.Store, cb Callback, logger *slog.Logger) *Signaler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Signaler{tokens: store, cb: cb, log: logger}
}

// Success signals a successful completion carrying the merged-result
// reference. The claim gate makes a second Success for the same token a
// no-op.
func (s *Signaler) Success(ctx context.Context, tok tokens.JobToken, resultLocation string) error {
	claimed, err := s.claim(ctx, tok.JobID)
	if err != nil || !claimed {
		return err
	}

	payload := Success{JobID: tok.JobID, ResultLocation: resultLocation}
	if err := s.cb.SignalSuccess(ctx, tok.CallbackToken, payload); err != nil {
		s.log.Warn("success signal failed, sending failure fallback",
			"job_id", tok.JobID, "error", err)
		if fbErr := s.cb.SignalFailure(ctx, tok.CallbackToken,
			fault.CodeOf(err, "CallbackFailed"), err.Error()); fbErr != nil {
			s.log.Error("both signal attempts failed",
				"job_id", tok.JobID, "success_error", err, "failure_error", fbErr)
		}
	}
	return nil
}

// Failure signals a terminal failure. Gated by the same claim as Success.
func (s *Signaler) Failure(ctx context.Context, tok tokens.JobToken, code string, cause error) error {
	claimed, err := s.claim(ctx, tok.JobID)
	if err != nil || !claimed {
		return err
	}

	causeMsg := ""
	if cause != nil {
		causeMsg = cause.Error()
	}
	if err := s.cb.SignalFailure(ctx, tok.CallbackToken, code, causeMsg); err != nil {
		s.log.Error("failure signal failed", "job_id", tok.JobID, "code", code, "error", err)
	}
	return nil
}

func (s *Signaler) claim(ctx context.Context, jobID string) (bool, error) {
	claimed, err := s.tokens.Claim(ctx, jobID)
	if err != nil {
		return false, fault.Wrap(fault.State, "TokenClaim", err,
			"failed to claim token for job %s", jobID)
	}
	if !claimed {
		// A concurrent completion got there first.
		s.log.Debug("token already claimed, skipping signal", "job_id", jobID)
	}
	return claimed, nil
}
