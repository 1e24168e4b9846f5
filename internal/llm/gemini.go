package llm

import (
	"context"
	"fmt"
	"strings"

	"google.golang.org/genai"
)

type geminiClient struct {
	client *genai.Client
	model  string
}

func newGeminiClient(apiKey, model string, opts *clientOptions) (*geminiClient, error) {
	ctx := context.Background()
	config := &genai.ClientConfig{APIKey: apiKey, Backend: genai.BackendGeminiAPI}
	if opts.baseURL != "" {
		config.HTTPOptions.BaseURL = opts.baseURL
	}

	client, err := genai.NewClient(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("create gemini client: %w", err)
	}

	return &geminiClient{client: client, model: model}, nil
}

func convertGeminiMessages(messages []Message) (*genai.Content, []*genai.Content) {
	var systemInstruction *genai.Content
	var contents []*genai.Content

	for _, m := range messages {
		switch m.Role {
		case "system":
			systemInstruction = &genai.Content{Parts: []*genai.Part{{Text: m.Content}}}
		case "user":
			contents = append(contents, &genai.Content{Role: "user", Parts: []*genai.Part{{Text: m.Content}}})
		case "assistant":
			contents = append(contents, &genai.Content{Role: "model", Parts: []*genai.Part{{Text: m.Content}}})
		}
	}

	return systemInstruction, contents
}

func hasUserMessage(messages []Message) bool {
	for _, m := range messages {
		if m.Role == "user" {
			return true
		}
	}
	return false
}

func (c *geminiClient) Complete(ctx context.Context, messages []Message) (string, error) {
	if !hasUserMessage(messages) {
		return "", fmt.Errorf("gemini: no user message provided")
	}

	systemInstruction, contents := convertGeminiMessages(messages)

	config := &genai.GenerateContentConfig{SystemInstruction: systemInstruction}
	result, err := c.client.Models.GenerateContent(ctx, c.model, contents, config)
	if err != nil {
		return "", fmt.Errorf("gemini completion: %w", err)
	}

	text := strings.TrimSpace(result.Text())
	if text == "" {
		return "", fmt.Errorf("gemini: empty response text")
	}
	return text, nil
}

func (c *geminiClient) Stream(ctx context.Context, messages []Message, fn func(text string) error) error {
	if !hasUserMessage(messages) {
		return fmt.Errorf("gemini: no user message provided")
	}

	systemInstruction, contents := convertGeminiMessages(messages)
	config := &genai.GenerateContentConfig{SystemInstruction: systemInstruction}

	return c.streamContents(ctx, contents, config, fn)
}

// TranscribeAudio sends the audio blob inline alongside the transcription
// instruction and streams the recognized text back chunk by chunk.
func (c *geminiClient) TranscribeAudio(ctx context.Context, mimeType string, audio []byte, instruction string, fn func(text string) error) error {
	if mimeType == "" {
		mimeType = "audio/webm"
	}

	contents := []*genai.Content{{
		Role: "user",
		Parts: []*genai.Part{
			{InlineData: &genai.Blob{MIMEType: mimeType, Data: audio}},
			{Text: instruction},
		},
	}}

	return c.streamContents(ctx, contents, nil, fn)
}

func (c *geminiClient) streamContents(ctx context.Context, contents []*genai.Content, config *genai.GenerateContentConfig, fn func(text string) error) error {
	for result, err := range c.client.Models.GenerateContentStream(ctx, c.model, contents, config) {
		if err != nil {
			return fmt.Errorf("gemini stream: %w", err)
		}
		text := result.Text()
		if text == "" {
			continue
		}
		if err := fn(text); err != nil {
			return err
		}
	}
	return nil
}
