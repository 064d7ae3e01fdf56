package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/jackzampolin/collate/internal/config"
	"github.com/jackzampolin/collate/internal/launch"
	"github.com/jackzampolin/collate/internal/pipeline"
	"github.com/jackzampolin/collate/internal/secrets"
	"github.com/jackzampolin/collate/internal/signal"
	"github.com/jackzampolin/collate/internal/speech"
	"github.com/jackzampolin/collate/internal/storage"
	"github.com/jackzampolin/collate/internal/transform"
)

var (
	runTranslate bool
	runSpeech    bool
	runLanguage  string
	runFileType  string
)

// runOutput is the printable terminal state of one pipeline execution.
type runOutput struct {
	JobID          string   `json:"job_id" yaml:"job_id"`
	Status         string   `json:"status" yaml:"status"`
	StagesRun      []string `json:"stages_run" yaml:"stages_run"`
	ResultLocation string   `json:"result_location,omitempty" yaml:"result_location,omitempty"`
	AudioLocation  string   `json:"audio_location,omitempty" yaml:"audio_location,omitempty"`
	FailureCode    string   `json:"failure_code,omitempty" yaml:"failure_code,omitempty"`
	FailureCause   string   `json:"failure_cause,omitempty" yaml:"failure_cause,omitempty"`
}

var runCmd = &cobra.Command{
	Use:   "run <source-key>",
	Short: "Run the full pipeline for one document",
	Long: `Launch an analysis job for the given source object and carry it
through the pipeline: wait for the merged extraction, format the text,
then optionally translate it and synthesize speech.

The shard-coordination loop runs in process: completion is signaled
straight to the waiting pipeline instead of through an HTTP callback.

Examples:
  collate run sources/report.pdf
  collate run sources/report.pdf --translate --language es
  collate run sources/report.pdf --speech`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		logger := newLogger()
		sourceKey := args[0]

		mgr, err := config.NewManager(cfgFile)
		if err != nil {
			return err
		}
		cfg := mgr.Get()

		waiter := signal.NewWaiter()
		svcs, err := buildServices(mgr, waiter, logger)
		if err != nil {
			return err
		}
		defer svcs.Tokens.Close()
		svcs.Waiter = waiter

		if cfg.Analyzer.URL == "" {
			return fmt.Errorf("analyzer.url is required")
		}
		launcher := launch.NewLauncher(launch.LauncherConfig{
			Tokens: svcs.Tokens,
			Store:  svcs.Store,
			Analyzer: launch.NewHTTPAnalyzer(launch.HTTPAnalyzerConfig{
				BaseURL: cfg.Analyzer.URL,
				APIKey:  config.ResolveEnvVars(cfg.Analyzer.APIKey),
				Timeout: cfg.Analyzer.Timeout,
			}),
			TokenTTL: cfg.Tokens.TTL,
			Logger:   logger,
		})
		svcs.Launcher = launcher

		transformer, err := transform.New(transform.Config{
			Backend:         transform.Backend(cfg.Transform.Backend),
			Model:           cfg.Transform.Model,
			APIKey:          config.ResolveEnvVars(cfg.Transform.APIKey),
			SecretID:        cfg.Transform.KeyRef,
			Secrets:         secrets.EnvSource{},
			BaseURL:         cfg.Transform.BaseURL,
			MaxOutputTokens: cfg.Transform.MaxTokens,
		})
		if err != nil {
			return err
		}

		var synth speech.Synthesizer
		if runSpeech {
			synth = speech.NewOpenAISynthesizer(speech.OpenAIConfig{
				APIKey: config.ResolveEnvVars(cfg.Speech.APIKey),
				Model:  cfg.Speech.Model,
				Voice:  cfg.Speech.Voice,
				Speed:  cfg.Speech.Speed,
			})
		}

		watcher, err := storage.NewWatcher(cfg.Storage.Root, logger)
		if err != nil {
			return err
		}
		go func() {
			if err := watcher.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("watcher stopped", "error", err)
			}
		}()
		go func() {
			for ev := range watcher.Events() {
				if _, err := svcs.Handler.HandleEvent(ctx, ev); err != nil {
					logger.Error("event handling failed", "key", ev.Key, "error", err)
				}
			}
		}()

		runner := pipeline.NewRunner(pipeline.RunnerConfig{
			Waiter:      waiter,
			Store:       svcs.Store,
			Transformer: transformer,
			Synthesizer: synth,
			WaitTimeout: cfg.Pipeline.WaitTimeout,
			Logger:      logger,
		})
		svcs.Runner = runner

		st := pipeline.State{
			DoTranslate:    runTranslate,
			DoSpeech:       runSpeech,
			TargetLanguage: runLanguage,
			SourceLocation: sourceKey,
		}
		var jobID string
		res := svcs.Runner.Execute(ctx, st, func(ctx context.Context, token string) error {
			id, err := svcs.Launcher.Launch(ctx, token, sourceKey, launch.Options{FileType: runFileType})
			if err != nil {
				return err
			}
			jobID = id
			return nil
		})

		out := runOutput{
			JobID:          jobID,
			Status:         string(res.Status),
			StagesRun:      res.StagesRun,
			ResultLocation: res.State.ResultLocation,
			AudioLocation:  res.State.AudioLocation,
			FailureCode:    res.FailureCode,
			FailureCause:   res.FailureCause,
		}
		if err := printOutput(out); err != nil {
			return err
		}
		if res.Status != pipeline.StatusCompleted {
			return fmt.Errorf("pipeline failed: %s", res.FailureCode)
		}
		return nil
	},
}

func printOutput(v any) error {
	switch outputFormat {
	case "json":
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	default:
		data, err := yaml.Marshal(v)
		if err != nil {
			return err
		}
		_, err = os.Stdout.Write(data)
		return err
	}
}

func init() {
	runCmd.Flags().BoolVar(&runTranslate, "translate", false, "Translate the formatted text")
	runCmd.Flags().StringVar(&runLanguage, "language", "en", "Target language for translation")
	runCmd.Flags().BoolVar(&runSpeech, "speech", false, "Synthesize speech from the final text")
	runCmd.Flags().StringVar(&runFileType, "file-type", "pdf", "Source document type")

	rootCmd.AddCommand(runCmd)
}
