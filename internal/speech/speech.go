// Package speech synthesizes audio for the pipeline's optional speech
// stage.
package speech

import (
	"context"
	"io"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	openai "github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"

	"github.com/jackzampolin/collate/internal/fault"
)

// Synthesizer converts text to audio bytes.
type Synthesizer interface {
	Synthesize(ctx context.Context, text string) ([]byte, error)
	Name() string
}

const (
	// OpenAIName identifies the OpenAI TTS synthesizer.
	OpenAIName = "openai-tts"

	openAIDefaultModel = "tts-1"
	openAIDefaultVoice = "onyx"

	// Speech input has a hard provider-side character limit.
	maxSpeechChars = 4096
)

// OpenAIConfig holds configuration for the OpenAI TTS synthesizer.
type OpenAIConfig struct {
	APIKey     string
	Model      string
	Voice      string
	Speed      float64
	MaxRetries int
	Timeout    time.Duration
	BaseURL    string       // Optional (tests)
	HTTPClient *http.Client // Optional (tests)
}

// OpenAISynthesizer implements Synthesizer using the OpenAI SDK.
type OpenAISynthesizer struct {
	model  string
	voice  string
	speed  float64
	client openai.Client
}

// NewOpenAISynthesizer creates a new OpenAI TTS synthesizer.
func NewOpenAISynthesizer(cfg OpenAIConfig) *OpenAISynthesizer {
	if cfg.Model == "" {
		cfg.Model = openAIDefaultModel
	}
	if cfg.Voice == "" {
		cfg.Voice = openAIDefaultVoice
	}
	if cfg.Speed <= 0 {
		cfg.Speed = 1.0
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 300 * time.Second
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}

	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithHTTPClient(httpClient),
		option.WithMaxRetries(cfg.MaxRetries),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}

	return &OpenAISynthesizer{
		model:  cfg.Model,
		voice:  cfg.Voice,
		speed:  cfg.Speed,
		client: openai.NewClient(opts...),
	}
}

// Name returns the synthesizer identifier.
func (s *OpenAISynthesizer) Name() string {
	return OpenAIName
}

// Synthesize converts text to MP3 audio. Input beyond the provider limit
// is cut at the limit rather than rejected.
func (s *OpenAISynthesizer) Synthesize(ctx context.Context, text string) ([]byte, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, fault.New(fault.Validation, "EmptyInput", "%s: input text is blank", OpenAIName)
	}
	if len(text) > maxSpeechChars {
		// Back off to a rune boundary so the cut never splits a rune.
		cut := maxSpeechChars
		for cut > 0 && !utf8.RuneStart(text[cut]) {
			cut--
		}
		text = text[:cut]
	}

	resp, err := s.client.Audio.Speech.New(ctx, openai.AudioSpeechNewParams{
		Input: text,
		Model: openai.SpeechModel(s.model),
		Voice: openai.AudioSpeechNewParamsVoice(s.voice),
		Speed: openai.Float(s.speed),
	})
	if err != nil {
		return nil, fault.Wrap(fault.ExternalService, "SpeechFailed", err,
			"%s: speech request failed", OpenAIName)
	}
	defer resp.Body.Close()

	audio, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fault.Wrap(fault.ExternalService, "SpeechFailed", err,
			"%s: failed to read audio", OpenAIName)
	}
	if len(audio) == 0 {
		return nil, fault.New(fault.ExternalService, "EmptyResponse",
			"%s: response contained no audio", OpenAIName)
	}
	return audio, nil
}
