package provider

import (
	"context"
	"errors"
	"log/slog"
	"time"

	openai "github.com/sashabaranov/go-openai"
)

// DefaultDeepSeekBaseURL is the DeepSeek API endpoint. DeepSeek speaks the
// OpenAI chat-completions wire protocol, so the OpenAI client is pointed at
// it directly.
const DefaultDeepSeekBaseURL = "https://api.deepseek.com"

// DefaultDeepSeekModels is the supported-model set used when the
// configuration does not override it.
var DefaultDeepSeekModels = []string{"deepseek-chat", "deepseek-reasoner"}

// deepseekReasonerModel rejects sampling parameters; they are dropped
// rather than forwarded.
const deepseekReasonerModel = "deepseek-reasoner"

// DeepSeekConfig holds the endpoint and credential settings for the
// DeepSeek provider.
type DeepSeekConfig struct {
	APIKey  string
	BaseURL string
	Models  []string
}

// DeepSeek invokes DeepSeek models through their OpenAI-compatible API.
type DeepSeek struct {
	cfg    DeepSeekConfig
	client *openai.Client
	logger *slog.Logger
}

// NewDeepSeek creates the DeepSeek provider. The API key is required; base
// URL and model list fall back to the DeepSeek defaults.
func NewDeepSeek(cfg DeepSeekConfig, logger *slog.Logger) (*DeepSeek, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("deepseek API key not configured")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultDeepSeekBaseURL
	}
	if len(cfg.Models) == 0 {
		cfg.Models = DefaultDeepSeekModels
	}
	if logger == nil {
		return nil, errors.New("logger cannot be nil")
	}

	clientCfg := openai.DefaultConfig(cfg.APIKey)
	clientCfg.BaseURL = cfg.BaseURL

	return &DeepSeek{
		cfg:    cfg,
		client: openai.NewClientWithConfig(clientCfg),
		logger: logger.With(slog.String("provider", "deepseek")),
	}, nil
}

// Name returns the provider's registry name.
func (d *DeepSeek) Name() string { return "deepseek" }

// SupportedModels returns the configured model names.
func (d *DeepSeek) SupportedModels() []string { return d.cfg.Models }

// Invoke calls the DeepSeek chat-completions API and normalizes the reply.
func (d *DeepSeek) Invoke(ctx context.Context, model string, params map[string]any) (*Response, error) {
	msgs, err := chatMessages(params)
	if err != nil {
		return nil, err
	}

	req := openai.ChatCompletionRequest{
		Model:     model,
		Messages:  make([]openai.ChatCompletionMessage, len(msgs)),
		MaxTokens: clampInt(intParam(params, "max_tokens", 4096), 1, 32768),
	}
	for i, m := range msgs {
		req.Messages[i] = openai.ChatCompletionMessage{Role: m.Role, Content: m.Content}
	}

	// deepseek-reasoner ignores sampling parameters and rejects some of
	// them outright, so only forward them for the chat models.
	if model != deepseekReasonerModel {
		req.Temperature = float32(clampFloat(floatParam(params, "temperature", 0.7), 0.0, 2.0))
		req.TopP = float32(clampFloat(floatParam(params, "top_p", 0.9), 0.0, 1.0))
	}

	d.logger.Debug("calling deepseek model", slog.String("model", model))

	resp, err := d.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return nil, d.classify(err)
	}

	return d.normalize(&resp), nil
}

// classify maps a go-openai client error to a categorized provider error.
func (d *DeepSeek) classify(err error) *Error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return NewError("deepseek", categorizeStatus(apiErr.HTTPStatusCode), apiErr.Message, err)
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return NewError("deepseek", categorizeStatus(reqErr.HTTPStatusCode), "request rejected", err)
	}
	return NewError("deepseek", categorizeTransport(err), "request failed", err)
}

// normalize maps an OpenAI-protocol reply into the unified schema,
// carrying through reasoning content when the model returned it.
func (d *DeepSeek) normalize(resp *openai.ChatCompletionResponse) *Response {
	out := &Response{
		ID:      resp.ID,
		Model:   resp.Model,
		Created: resp.Created,
	}
	if out.Created == 0 {
		out.Created = time.Now().Unix()
	}

	for _, c := range resp.Choices {
		out.Choices = append(out.Choices, Choice{
			Index: c.Index,
			Message: Message{
				Role:             c.Message.Role,
				Content:          c.Message.Content,
				ReasoningContent: c.Message.ReasoningContent,
			},
			FinishReason: string(c.FinishReason),
		})
	}

	out.Usage = Usage{
		PromptTokens:     resp.Usage.PromptTokens,
		CompletionTokens: resp.Usage.CompletionTokens,
		TotalTokens:      resp.Usage.TotalTokens,
	}
	return out
}
