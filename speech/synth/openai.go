// Package synth provides Synthesizer implementations for the speech engine.
package synth

import (
	"context"
	"fmt"
	"io"

	"github.com/charmbracelet/log"
	openai "github.com/sashabaranov/go-openai"

	"github.com/dgnsrekt/talkback/speech"
)

// Default synthesis parameters when VoiceSettings leaves them empty.
const (
	DefaultModel = string(openai.TTSModel1)
	DefaultVoice = string(openai.VoiceAlloy)
)

// OpenAI synthesizes segment text through the OpenAI speech endpoint,
// requesting raw PCM so no decode step is needed before playback.
type OpenAI struct {
	client *openai.Client
	logger *log.Logger
}

// NewOpenAI creates a synthesizer using the given API key.
func NewOpenAI(apiKey string, logger *log.Logger) *OpenAI {
	if logger == nil {
		logger = log.Default()
	}
	return &OpenAI{
		client: openai.NewClient(apiKey),
		logger: logger.With("component", "synth"),
	}
}

// NewOpenAIWithClient creates a synthesizer around an existing client,
// useful for custom base URLs.
func NewOpenAIWithClient(client *openai.Client, logger *log.Logger) *OpenAI {
	if logger == nil {
		logger = log.Default()
	}
	return &OpenAI{client: client, logger: logger.With("component", "synth")}
}

// Synthesize converts text to a PCM buffer. Cancellation propagates through
// ctx into the HTTP request.
func (o *OpenAI) Synthesize(ctx context.Context, text string, voice speech.VoiceSettings) ([]byte, error) {
	model := voice.Model
	if model == "" {
		model = DefaultModel
	}
	v := voice.Voice
	if v == "" {
		v = DefaultVoice
	}

	o.logger.Debug("synthesizing segment", "model", model, "voice", v, "chars", len(text))

	resp, err := o.client.CreateSpeech(ctx, openai.CreateSpeechRequest{
		Model:          openai.SpeechModel(model),
		Input:          text,
		Voice:          openai.SpeechVoice(v),
		ResponseFormat: openai.SpeechResponseFormatPcm,
	})
	if err != nil {
		return nil, fmt.Errorf("speech request: %w", err)
	}
	defer resp.Close()

	buf, err := io.ReadAll(resp)
	if err != nil {
		return nil, fmt.Errorf("reading speech response: %w", err)
	}
	if len(buf) == 0 {
		return nil, fmt.Errorf("speech response was empty")
	}
	return buf, nil
}
