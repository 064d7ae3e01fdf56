package config

import "time"

// Config holds collate configuration.
// Stored at: {storage_root}/config.yaml
type Config struct {
	Storage   StorageCfg   `mapstructure:"storage" yaml:"storage"`
	Tokens    TokensCfg    `mapstructure:"tokens" yaml:"tokens"`
	Callback  CallbackCfg  `mapstructure:"callback" yaml:"callback"`
	Analyzer  AnalyzerCfg  `mapstructure:"analyzer" yaml:"analyzer"`
	Transform TransformCfg `mapstructure:"transform" yaml:"transform"`
	Speech    SpeechCfg    `mapstructure:"speech" yaml:"speech"`
	Pipeline  PipelineCfg  `mapstructure:"pipeline" yaml:"pipeline"`
}

// StorageCfg configures the shard/result object store.
type StorageCfg struct {
	Root string `mapstructure:"root" yaml:"root"` // Filesystem root watched for shard writes
}

// TokensCfg configures the durable job-token store.
type TokensCfg struct {
	Path          string        `mapstructure:"path" yaml:"path"`                     // SQLite database path
	TTL           time.Duration `mapstructure:"ttl" yaml:"ttl"`                       // Token lifetime
	PurgeInterval time.Duration `mapstructure:"purge_interval" yaml:"purge_interval"` // Expired-token sweep cadence
}

// CallbackCfg configures delivery of completion signals to a remote
// orchestrator. Leave URL empty to deliver in process.
type CallbackCfg struct {
	URL        string        `mapstructure:"url" yaml:"url"`
	Timeout    time.Duration `mapstructure:"timeout" yaml:"timeout"`
	MaxRetries uint          `mapstructure:"max_retries" yaml:"max_retries"`
}

// AnalyzerCfg configures the external document-analysis service.
type AnalyzerCfg struct {
	URL     string        `mapstructure:"url" yaml:"url"`
	APIKey  string        `mapstructure:"api_key" yaml:"api_key"` // Supports ${ENV_VAR} syntax
	Timeout time.Duration `mapstructure:"timeout" yaml:"timeout"`
}

// TransformCfg configures the text-transform provider.
type TransformCfg struct {
	Backend   string `mapstructure:"backend" yaml:"backend"` // "inference" or "gateway"
	Model     string `mapstructure:"model" yaml:"model"`
	APIKey    string `mapstructure:"api_key" yaml:"api_key"` // Supports ${ENV_VAR} syntax
	KeyRef    string `mapstructure:"key_ref" yaml:"key_ref"` // Secret-source id, resolved lazily
	BaseURL   string `mapstructure:"base_url" yaml:"base_url"`
	MaxTokens int    `mapstructure:"max_tokens" yaml:"max_tokens"`
}

// SpeechCfg configures the TTS synthesizer.
type SpeechCfg struct {
	Model  string  `mapstructure:"model" yaml:"model"`
	Voice  string  `mapstructure:"voice" yaml:"voice"`
	Speed  float64 `mapstructure:"speed" yaml:"speed"`
	APIKey string  `mapstructure:"api_key" yaml:"api_key"` // Supports ${ENV_VAR} syntax
}

// PipelineCfg configures pipeline execution.
type PipelineCfg struct {
	WaitTimeout time.Duration `mapstructure:"wait_timeout" yaml:"wait_timeout"` // Max extract wait
}

// DefaultConfig returns configuration with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Storage: StorageCfg{
			Root: "./data/objects",
		},
		Tokens: TokensCfg{
			Path:          "./data/tokens.db",
			TTL:           time.Hour,
			PurgeInterval: 5 * time.Minute,
		},
		Callback: CallbackCfg{
			Timeout:    30 * time.Second,
			MaxRetries: 3,
		},
		Analyzer: AnalyzerCfg{
			APIKey:  "${ANALYZER_API_KEY}",
			Timeout: 30 * time.Second,
		},
		Transform: TransformCfg{
			Backend: "inference",
			APIKey:  "${OPENAI_API_KEY}",
		},
		Speech: SpeechCfg{
			Model:  "tts-1",
			Voice:  "onyx",
			Speed:  1.0,
			APIKey: "${OPENAI_API_KEY}",
		},
		Pipeline: PipelineCfg{
			WaitTimeout: 30 * time.Minute,
		},
	}
}
