package llm

import (
	"context"
	"fmt"
	"strings"
)

type Message struct {
	Role    string
	Content string
}

// Client is a provider-neutral completion client. Complete blocks for the
// full response; Stream invokes fn for each text chunk as it arrives from
// the backend, before the next chunk is awaited. A non-nil error from fn
// aborts the stream.
type Client interface {
	Complete(ctx context.Context, messages []Message) (string, error)
	Stream(ctx context.Context, messages []Message, fn func(text string) error) error
}

// AudioTranscriber turns an audio blob into streamed text chunks. Only
// backends with native audio understanding implement it.
type AudioTranscriber interface {
	TranscribeAudio(ctx context.Context, mimeType string, audio []byte, instruction string, fn func(text string) error) error
}

type Option func(*clientOptions)

type clientOptions struct {
	baseURL string
}

func WithBaseURL(url string) Option {
	return func(o *clientOptions) {
		o.baseURL = url
	}
}

func ParseModel(model string) (provider, modelName string, err error) {
	parts := strings.SplitN(model, "/", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("invalid model format %q: expected provider/model_name", model)
	}
	return parts[0], parts[1], nil
}

func NewClient(provider, apiKey, model string, opts ...Option) (Client, error) {
	o := &clientOptions{}
	for _, opt := range opts {
		opt(o)
	}

	switch provider {
	case "openai":
		return newOpenAIClient(apiKey, model, o)
	case "anthropic":
		return newAnthropicClient(apiKey, model, o)
	case "gemini":
		return newGeminiClient(apiKey, model, o)
	default:
		return nil, fmt.Errorf("unknown LLM provider %q: supported providers are openai, anthropic, gemini", provider)
	}
}

// NewTranscriber builds an audio transcription client. Only the gemini
// provider accepts inline audio content.
func NewTranscriber(provider, apiKey, model string, opts ...Option) (AudioTranscriber, error) {
	o := &clientOptions{}
	for _, opt := range opts {
		opt(o)
	}

	if provider != "gemini" {
		return nil, fmt.Errorf("provider %q cannot transcribe audio: only gemini accepts inline audio", provider)
	}
	return newGeminiClient(apiKey, model, o)
}
