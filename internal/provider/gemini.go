package provider

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"google.golang.org/genai"
)

// DefaultGeminiModels is the supported-model set used when the
// configuration does not override it.
var DefaultGeminiModels = []string{"gemini-2.0-flash", "gemini-1.5-pro", "gemini-1.5-flash"}

// GeminiConfig holds the credential and model settings for the Gemini
// provider.
type GeminiConfig struct {
	APIKey string
	Models []string
}

// Gemini invokes Google Gemini models through the genai SDK.
type Gemini struct {
	cfg    GeminiConfig
	client *genai.Client
	logger *slog.Logger
}

// NewGemini creates the Gemini provider and its API client.
func NewGemini(ctx context.Context, cfg GeminiConfig, logger *slog.Logger) (*Gemini, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("gemini API key not configured")
	}
	if len(cfg.Models) == 0 {
		cfg.Models = DefaultGeminiModels
	}
	if logger == nil {
		return nil, errors.New("logger cannot be nil")
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, err
	}

	return &Gemini{
		cfg:    cfg,
		client: client,
		logger: logger.With(slog.String("provider", "gemini")),
	}, nil
}

// Name returns the provider's registry name.
func (g *Gemini) Name() string { return "gemini" }

// SupportedModels returns the configured model names.
func (g *Gemini) SupportedModels() []string { return g.cfg.Models }

// Invoke calls the Gemini API and normalizes the reply.
func (g *Gemini) Invoke(ctx context.Context, model string, params map[string]any) (*Response, error) {
	msgs, err := chatMessages(params)
	if err != nil {
		return nil, err
	}

	contents := make([]*genai.Content, 0, len(msgs))
	for _, m := range msgs {
		role := m.Role
		// Gemini knows only "user" and "model" turns.
		if role == "assistant" {
			role = "model"
		} else if role != "model" {
			role = "user"
		}
		contents = append(contents, &genai.Content{
			Role:  role,
			Parts: []*genai.Part{{Text: m.Content}},
		})
	}

	genCfg := &genai.GenerateContentConfig{
		MaxOutputTokens: int32(clampInt(intParam(params, "max_tokens", 2048), 1, 8192)),
		Temperature:     genai.Ptr(float32(clampFloat(floatParam(params, "temperature", 0.7), 0.0, 2.0))),
		TopP:            genai.Ptr(float32(clampFloat(floatParam(params, "top_p", 0.9), 0.0, 1.0))),
	}

	g.logger.Debug("calling gemini model", slog.String("model", model))

	resp, err := g.client.Models.GenerateContent(ctx, model, contents, genCfg)
	if err != nil {
		return nil, g.classify(err)
	}
	if resp == nil || len(resp.Candidates) == 0 {
		return nil, NewError("gemini", CategoryUpstream, "no content generated", nil)
	}

	return g.normalize(resp, model), nil
}

// classify maps a genai SDK error to a categorized provider error.
func (g *Gemini) classify(err error) *Error {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return NewError("gemini", categorizeStatus(apiErr.Code), apiErr.Message, err)
	}
	return NewError("gemini", categorizeTransport(err), "request failed", err)
}

// normalize maps a Gemini reply into the unified schema.
func (g *Gemini) normalize(resp *genai.GenerateContentResponse, model string) *Response {
	out := &Response{
		ID:      uuid.New().String(),
		Model:   model,
		Created: time.Now().Unix(),
	}

	for i, cand := range resp.Candidates {
		text := ""
		if cand.Content != nil {
			for _, part := range cand.Content.Parts {
				text += part.Text
			}
		}
		finish := string(cand.FinishReason)
		if finish == "" {
			finish = "stop"
		}
		out.Choices = append(out.Choices, Choice{
			Index:        i,
			Message:      Message{Role: "assistant", Content: text},
			FinishReason: finish,
		})
	}

	if resp.UsageMetadata != nil {
		out.Usage = Usage{
			PromptTokens:     int(resp.UsageMetadata.PromptTokenCount),
			CompletionTokens: int(resp.UsageMetadata.CandidatesTokenCount),
			TotalTokens:      int(resp.UsageMetadata.TotalTokenCount),
		}
	}
	return out
}
