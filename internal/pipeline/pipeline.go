// Package pipeline runs the orchestrator flow: one asynchronous extract
// wait followed by the content stages. Instead of hand-expanded branch
// subtrees per translate/speech combination, the stages form an ordered
// list of optional steps selected from the execution state, and every
// path converges on a single Completed terminal parameterized by which
// stages ran.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/jackzampolin/collate/internal/fault"
	"github.com/jackzampolin/collate/internal/merge"
	"github.com/jackzampolin/collate/internal/signal"
	"github.com/jackzampolin/collate/internal/speech"
	"github.com/jackzampolin/collate/internal/storage"
	"github.com/jackzampolin/collate/internal/transform"
)

// Stage names, in execution order.
const (
	StageExtract   = "extract"
	StageFormat    = "format"
	StageTranslate = "translate"
	StageSpeech    = "speech"
)

// State is the execution state flowing through the stages. Both sides of
// the translate choice leave the same shape behind, so the speech stage
// behaves identically regardless of path.
type State struct {
	JobID          string
	DoTranslate    bool
	DoSpeech       bool
	TargetLanguage string
	SourceLocation string

	// Populated by the extract wait.
	ResultLocation string
	ExtractedText  string

	// Populated by the content stages.
	FormattedText  string
	TranslatedText string
	AudioLocation  string
}

// contentText is the current best rendition of the document: translated
// when the translate stage ran, formatted otherwise.
func (st *State) contentText() string {
	if st.TranslatedText != "" {
		return st.TranslatedText
	}
	return st.FormattedText
}

// Status is a terminal pipeline state.
type Status string

const (
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// Result is the single terminal of every execution.
type Result struct {
	Status       Status
	StagesRun    []string
	FailureCode  string
	FailureCause string
	State        State
}

// Stage is one optional step of the pipeline.
type Stage struct {
	Name    string
	Enabled func(*State) bool
	Run     func(ctx context.Context, st *State) error
}

// Runner executes pipelines. The extract wait suspends the execution on
// the waiter until ingestion signals, or the wait timeout fires (the
// orchestrator-level authoritative failure path for jobs that never
// complete).
type Runner struct {
	waiter      *signal.Waiter
	store       storage.Store
	transformer transform.Provider
	synth       speech.Synthesizer
	waitTimeout time.Duration
	log         *slog.Logger
}

// RunnerConfig wires a Runner.
type RunnerConfig struct {
	Waiter      *signal.Waiter
	Store       storage.Store
	Transformer transform.Provider
	Synthesizer speech.Synthesizer // Required only when speech is requested
	WaitTimeout time.Duration
	Logger      *slog.Logger
}

// NewRunner creates a pipeline runner.
func NewRunner(cfg RunnerConfig) *Runner {
	if cfg.WaitTimeout == 0 {
		cfg.WaitTimeout = 30 * time.Minute
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Runner{
		waiter:      cfg.Waiter,
		store:       cfg.Store,
		transformer: cfg.Transformer,
		synth:       cfg.Synthesizer,
		waitTimeout: cfg.WaitTimeout,
		log:         cfg.Logger,
	}
}

// Execute runs one pipeline: it registers a fresh callback token, invokes
// launch to start the external analysis against that token, suspends
// until the outcome arrives, then runs the enabled content stages.
func (r *Runner) Execute(ctx context.Context, st State, launch func(ctx context.Context, callbackToken string) error) Result {
	token := uuid.New().String()
	ch, err := r.waiter.Register(token)
	if err != nil {
		return r.failed(st, nil, "TokenRegister", err)
	}

	if err := launch(ctx, token); err != nil {
		r.waiter.Cancel(token)
		return r.failed(st, nil, fault.CodeOf(err, "LaunchFailed"), err)
	}

	outcome, err := r.await(ctx, token, ch)
	if err != nil {
		return r.failed(st, []string{StageExtract}, fault.CodeOf(err, "ExtractTimeout"), err)
	}
	if !outcome.Success {
		return r.failed(st, []string{StageExtract}, outcome.Code, fmt.Errorf("%s", outcome.Cause))
	}

	st.ResultLocation = outcome.Result.ResultLocation
	if err := r.loadExtracted(ctx, &st); err != nil {
		return r.failed(st, []string{StageExtract}, fault.CodeOf(err, "ResultLoad"), err)
	}

	ran := []string{StageExtract}
	for _, stage := range r.stages() {
		if !stage.Enabled(&st) {
			continue
		}
		r.log.Debug("running stage", "job_id", st.JobID, "stage", stage.Name)
		if err := stage.Run(ctx, &st); err != nil {
			r.log.Error("stage failed", "job_id", st.JobID, "stage", stage.Name, "error", err)
			return r.failed(st, append(ran, stage.Name), fault.CodeOf(err, "StageFailed"), err)
		}
		ran = append(ran, stage.Name)
	}

	r.log.Info("pipeline complete", "job_id", st.JobID, "stages", ran)
	return Result{Status: StatusCompleted, StagesRun: ran, State: st}
}

func (r *Runner) await(ctx context.Context, token string, ch <-chan signal.Outcome) (signal.Outcome, error) {
	timer := time.NewTimer(r.waitTimeout)
	defer timer.Stop()
	select {
	case out := <-ch:
		return out, nil
	case <-timer.C:
		r.waiter.Cancel(token)
		return signal.Outcome{}, fault.New(fault.State, "ExtractTimeout",
			"no completion signal within %s", r.waitTimeout)
	case <-ctx.Done():
		r.waiter.Cancel(token)
		return signal.Outcome{}, ctx.Err()
	}
}

func (r *Runner) loadExtracted(ctx context.Context, st *State) error {
	result, err := merge.Load(ctx, r.store, st.ResultLocation)
	if err != nil {
		return err
	}
	st.ExtractedText = result.Text()
	return nil
}

func (r *Runner) stages() []Stage {
	return []Stage{
		{
			Name:    StageFormat,
			Enabled: func(*State) bool { return true },
			Run:     r.runFormat,
		},
		{
			Name:    StageTranslate,
			Enabled: func(st *State) bool { return st.DoTranslate },
			Run:     r.runTranslate,
		},
		{
			Name:    StageSpeech,
			Enabled: func(st *State) bool { return st.DoSpeech },
			Run:     r.runSpeech,
		},
	}
}

func (r *Runner) runFormat(ctx context.Context, st *State) error {
	out, err := r.transformer.FormatText(ctx, st.ExtractedText)
	if err != nil {
		return err
	}
	st.FormattedText = out
	return nil
}

func (r *Runner) runTranslate(ctx context.Context, st *State) error {
	out, err := r.transformer.TranslateText(ctx, st.FormattedText, st.TargetLanguage)
	if err != nil {
		return err
	}
	st.TranslatedText = out
	return nil
}

func (r *Runner) runSpeech(ctx context.Context, st *State) error {
	if r.synth == nil {
		return fault.New(fault.Validation, "SpeechUnconfigured",
			"speech stage requested but no synthesizer configured")
	}
	audio, err := r.synth.Synthesize(ctx, st.contentText())
	if err != nil {
		return err
	}
	location := fmt.Sprintf("audio/%s/%s.mp3", st.JobID, uuid.New().String())
	if err := r.store.Put(ctx, location, audio, "audio/mpeg"); err != nil {
		return fmt.Errorf("failed to write audio: %w", err)
	}
	st.AudioLocation = location
	return nil
}

func (r *Runner) failed(st State, ran []string, code string, cause error) Result {
	causeMsg := ""
	if cause != nil {
		causeMsg = cause.Error()
	}
	r.log.Warn("pipeline failed", "job_id", st.JobID, "code", code, "cause", causeMsg)
	return Result{
		Status:       StatusFailed,
		StagesRun:    ran,
		FailureCode:  code,
		FailureCause: causeMsg,
		State:        st,
	}
}
