package analyze

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/responses"
)

const instructions = `你是一位资深的电商客服质量分析专家，专门分析用户与客服的对话。
你的任务是深入理解用户在对话中的真实、具体的核心诉求，并结合上下文进行分析。
请返回一个JSON对象：
- label: 用户整体情绪，取值 positive、neutral 或 negative；
- core_demand: 一个精炼的短语，如"验货标准太低"或"退款进度太慢"；
- free_text: 一段详细的、包含上下文的综合分析。`

// maxInputRunes bounds the transcript sent to the model.
const maxInputRunes = 8000

var analysisSchema = Schema()

// OpenAIConfig configures NewOpenAI.
type OpenAIConfig struct {
	APIKey     string
	BaseURL    string
	Model      string
	MaxRetries int
	// Backoff is the wait before each retry. Defaults grow from 2s.
	Backoff []time.Duration
	// HTTPClient overrides the transport, e.g. in tests.
	HTTPClient *http.Client
}

// OpenAIAnalyzer calls the Responses API with a strict JSON schema.
type OpenAIAnalyzer struct {
	client     *openai.Client
	model      string
	maxRetries int
	backoff    []time.Duration
}

// NewOpenAI returns an analyzer backed by the OpenAI Responses API.
func NewOpenAI(cfg OpenAIConfig) (*OpenAIAnalyzer, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, errors.New("analyze: api key is empty")
	}
	if strings.TrimSpace(cfg.Model) == "" {
		return nil, errors.New("analyze: model is empty")
	}
	// Retries are handled here so that waits honour the caller's context.
	opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey), option.WithMaxRetries(0)}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	if cfg.HTTPClient != nil {
		opts = append(opts, option.WithHTTPClient(cfg.HTTPClient))
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if len(cfg.Backoff) == 0 {
		cfg.Backoff = []time.Duration{2 * time.Second, 10 * time.Second, 30 * time.Second}
	}
	client := openai.NewClient(opts...)
	return &OpenAIAnalyzer{
		client:     &client,
		model:      cfg.Model,
		maxRetries: cfg.MaxRetries,
		backoff:    cfg.Backoff,
	}, nil
}

// Analyze sends the transcript and decodes the structured reply.
func (a *OpenAIAnalyzer) Analyze(ctx context.Context, text string) (Analysis, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return Analysis{}, ErrEmptyText
	}
	if r := []rune(text); len(r) > maxInputRunes {
		text = string(r[:maxInputRunes])
	}

	params := responses.ResponseNewParams{
		Model:           a.model,
		MaxOutputTokens: openai.Int(800),
		Instructions:    openai.String(instructions),
		Input: responses.ResponseNewParamsInputUnion{
			OfInputItemList: []responses.ResponseInputItemUnionParam{
				responses.ResponseInputItemParamOfMessage("--- 对话记录 ---\n"+text, responses.EasyInputMessageRoleUser),
			},
		},
		Text: responses.ResponseTextConfigParam{
			Format: responses.ResponseFormatTextConfigUnionParam{
				OfJSONSchema: &responses.ResponseFormatTextJSONSchemaConfigParam{
					Name:        "ConversationAnalysis",
					Schema:      analysisSchema,
					Strict:      openai.Bool(true),
					Description: openai.String("Conversation analysis JSON"),
					Type:        "json_schema",
				},
			},
		},
	}

	resp, err := a.callWithRetry(ctx, params)
	if err != nil {
		return Analysis{}, err
	}

	var out Analysis
	if err := decodeModelJSON(resp.OutputText(), &out); err != nil {
		return Analysis{}, fmt.Errorf("unmarshal analysis: %w", err)
	}
	out.Label = strings.ToLower(strings.TrimSpace(out.Label))
	out.CoreDemand = strings.TrimSpace(out.CoreDemand)
	out.FreeText = strings.TrimSpace(out.FreeText)
	return out, nil
}

func (a *OpenAIAnalyzer) callWithRetry(ctx context.Context, params responses.ResponseNewParams) (*responses.Response, error) {
	for attempt := 0; ; attempt++ {
		resp, err := a.client.Responses.New(ctx, params)
		if err == nil {
			return resp, nil
		}
		if attempt >= a.maxRetries || !retryable(err) {
			return nil, fmt.Errorf("calling responses API (attempt %d): %w", attempt+1, err)
		}
		wait := a.backoff[min(attempt, len(a.backoff)-1)]
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(wait):
		}
	}
}

// retryable reports rate limits and server errors.
func retryable(err error) bool {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode == http.StatusTooManyRequests || apiErr.StatusCode >= 500
	}
	s := strings.ToLower(err.Error())
	return strings.Contains(s, "429") ||
		strings.Contains(s, "rate limit") ||
		strings.Contains(s, "too many requests") ||
		strings.Contains(s, "internal server error") ||
		strings.Contains(s, "server_error")
}
