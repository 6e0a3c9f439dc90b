package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
)

// DefaultAliyunBaseURL is the DashScope text-generation endpoint used when
// no base URL is configured.
const DefaultAliyunBaseURL = "https://dashscope.aliyuncs.com/api/v1/services/aigc/text-generation/generation"

// DefaultAliyunModels is the supported-model set used when the
// configuration does not override it.
var DefaultAliyunModels = []string{
	"qwen-turbo", "qwen-plus", "qwen-max",
	"qwen3-235b-a22b", "qwen3-30b-a3b", "qwen-plus-latest",
	"qwen-turbo-latest", "qwen-vl-max", "qwen-vl-plus",
}

// AliyunConfig holds the endpoint and credential settings for the Aliyun
// DashScope provider.
type AliyunConfig struct {
	APIKey  string
	BaseURL string
	Models  []string
}

// Aliyun invokes Qwen-family models through the DashScope HTTP API.
type Aliyun struct {
	cfg    AliyunConfig
	client *http.Client
	logger *slog.Logger
}

// NewAliyun creates the Aliyun provider. The API key is required; base URL
// and model list fall back to the DashScope defaults.
func NewAliyun(cfg AliyunConfig, logger *slog.Logger) (*Aliyun, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("aliyun API key not configured")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultAliyunBaseURL
	}
	if len(cfg.Models) == 0 {
		cfg.Models = DefaultAliyunModels
	}
	if logger == nil {
		return nil, errors.New("logger cannot be nil")
	}
	return &Aliyun{
		cfg:    cfg,
		client: &http.Client{},
		logger: logger.With(slog.String("provider", "aliyun")),
	}, nil
}

// Name returns the provider's registry name.
func (a *Aliyun) Name() string { return "aliyun" }

// SupportedModels returns the configured model names.
func (a *Aliyun) SupportedModels() []string { return a.cfg.Models }

type aliyunRequest struct {
	Model string `json:"model"`
	Input struct {
		Messages []aliyunMessage `json:"messages"`
	} `json:"input"`
	Parameters map[string]any `json:"parameters"`
}

type aliyunMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type aliyunResponse struct {
	RequestID string `json:"request_id"`
	Code      string `json:"code"`
	Message   string `json:"message"`
	Output    struct {
		Text         string `json:"text"`
		FinishReason string `json:"finish_reason"`
		Choices      []struct {
			FinishReason string `json:"finish_reason"`
			Message      struct {
				Role      string          `json:"role"`
				Content   string          `json:"content"`
				ToolCalls json.RawMessage `json:"tool_calls"`
			} `json:"message"`
		} `json:"choices"`
	} `json:"output"`
	Usage struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
		TotalTokens  int `json:"total_tokens"`
	} `json:"usage"`
}

// Invoke calls the DashScope generation API and normalizes the reply.
func (a *Aliyun) Invoke(ctx context.Context, model string, params map[string]any) (*Response, error) {
	msgs, err := chatMessages(params)
	if err != nil {
		return nil, err
	}

	req := aliyunRequest{
		Model:      model,
		Parameters: a.shapeParameters(params),
	}
	req.Input.Messages = make([]aliyunMessage, len(msgs))
	for i, m := range msgs {
		req.Input.Messages[i] = aliyunMessage{Role: m.Role, Content: m.Content}
	}

	body, err := json.Marshal(req)
	if err != nil {
		return nil, NewError("aliyun", CategoryBadRequest, "failed to encode request", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, a.cfg.BaseURL, bytes.NewReader(body))
	if err != nil {
		return nil, NewError("aliyun", CategoryBadRequest, "failed to build request", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+a.cfg.APIKey)
	httpReq.Header.Set("X-DashScope-SSE", "disable")
	httpReq.Header.Set("X-DashScope-DataInspection", "disable")

	a.logger.Debug("calling aliyun model", slog.String("model", model))

	resp, err := a.client.Do(httpReq)
	if err != nil {
		return nil, NewError("aliyun", categorizeTransport(err), "request failed", err)
	}
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, NewError("aliyun", CategoryNetwork, "failed to read response", err)
	}

	var apiResp aliyunResponse
	if err := json.Unmarshal(raw, &apiResp); err != nil {
		return nil, NewError("aliyun", CategoryUpstream, "malformed response from DashScope", err)
	}

	if resp.StatusCode != http.StatusOK {
		msg := apiResp.Message
		if msg == "" {
			msg = fmt.Sprintf("HTTP %d", resp.StatusCode)
		}
		return nil, NewError("aliyun", categorizeStatus(resp.StatusCode), msg, nil)
	}

	return a.normalize(&apiResp, model), nil
}

// shapeParameters clamps and defaults the DashScope generation parameters,
// keeping caller-supplied custom keys intact. Bounds follow the DashScope
// API limits.
func (a *Aliyun) shapeParameters(params map[string]any) map[string]any {
	shaped := make(map[string]any)
	for k, v := range params {
		switch k {
		case "prompt", "messages", "model":
			// Carried in the request body, not the parameters block.
		default:
			shaped[k] = v
		}
	}

	shaped["max_tokens"] = clampInt(intParam(params, "max_tokens", 2048), 1, 6000)
	shaped["temperature"] = clampFloat(floatParam(params, "temperature", 0.7), 0.0, 1.0)
	shaped["top_p"] = clampFloat(floatParam(params, "top_p", 0.9), 0.0, 1.0)
	if hasParam(params, "top_k") {
		shaped["top_k"] = clampInt(intParam(params, "top_k", 1), 1, 100)
	}
	if hasParam(params, "seed") {
		shaped["seed"] = intParam(params, "seed", 0)
	}
	if !hasParam(params, "enable_thinking") {
		shaped["enable_thinking"] = false
	}
	shaped["stream"] = false

	return shaped
}

// normalize maps a DashScope reply into the unified schema. The API returns
// either a bare output.text or an output.choices list depending on the
// result format requested.
func (a *Aliyun) normalize(apiResp *aliyunResponse, model string) *Response {
	out := &Response{
		ID:      apiResp.RequestID,
		Model:   model,
		Created: time.Now().Unix(),
	}
	if out.ID == "" {
		out.ID = uuid.New().String()
	}

	if apiResp.Output.Text != "" {
		finish := apiResp.Output.FinishReason
		if finish == "" {
			finish = "stop"
		}
		out.Choices = append(out.Choices, Choice{
			Index:        0,
			Message:      Message{Role: "assistant", Content: apiResp.Output.Text},
			FinishReason: finish,
		})
	} else {
		for i, c := range apiResp.Output.Choices {
			finish := c.FinishReason
			if finish == "" {
				finish = "stop"
			}
			out.Choices = append(out.Choices, Choice{
				Index: i,
				Message: Message{
					Role:      "assistant",
					Content:   c.Message.Content,
					ToolCalls: c.Message.ToolCalls,
				},
				FinishReason: finish,
			})
		}
	}

	out.Usage = Usage{
		PromptTokens:     apiResp.Usage.InputTokens,
		CompletionTokens: apiResp.Usage.OutputTokens,
		TotalTokens:      apiResp.Usage.TotalTokens,
	}
	return out
}
