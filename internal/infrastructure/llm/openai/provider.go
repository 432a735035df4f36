package openai

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	sdk "github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"

	"github.com/Nyukimin/patchgate/internal/domain/llm"
)

const defaultBaseURL = "http://127.0.0.1:18789"

// Options はOpenAI互換ゲートウェイへの接続設定
type Options struct {
	BaseURL              string
	APIKey               string
	Model                string
	AgentID              string
	SessionKey           string
	CFAccessClientID     string
	CFAccessClientSecret string
	Timeout              time.Duration
	HTTPClient           *http.Client
}

// OpenAIProvider はOpenAI互換 Chat Completions APIプロバイダーの実装
type OpenAIProvider struct {
	client sdk.Client
	model  string
}

// NewOpenAIProvider は新しいOpenAIProviderを作成
func NewOpenAIProvider(opts Options) *OpenAIProvider {
	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	timeout := opts.Timeout
	if timeout == 0 {
		timeout = 120 * time.Second
	}
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: timeout}
	}

	reqOpts := []option.RequestOption{
		option.WithAPIKey(opts.APIKey),
		option.WithBaseURL(baseURL + "/v1/"),
		option.WithHTTPClient(httpClient),
		// 失敗はそのまま呼び出し元へ返す
		option.WithMaxRetries(0),
	}
	if opts.AgentID != "" {
		reqOpts = append(reqOpts, option.WithHeader("x-openclaw-agent-id", opts.AgentID))
	}
	if opts.SessionKey != "" {
		reqOpts = append(reqOpts, option.WithHeader("x-openclaw-session-key", opts.SessionKey))
	}
	if opts.CFAccessClientID != "" && opts.CFAccessClientSecret != "" {
		reqOpts = append(reqOpts,
			option.WithHeader("CF-Access-Client-Id", opts.CFAccessClientID),
			option.WithHeader("CF-Access-Client-Secret", opts.CFAccessClientSecret),
		)
	}

	return &OpenAIProvider{
		client: sdk.NewClient(reqOpts...),
		model:  opts.Model,
	}
}

// Generate はLLM生成を実行
func (p *OpenAIProvider) Generate(ctx context.Context, req llm.GenerateRequest) (llm.GenerateResponse, error) {
	params := sdk.ChatCompletionNewParams{
		Model:    sdk.ChatModel(p.model),
		Messages: convertMessages(req),
	}
	if req.MaxTokens > 0 {
		params.MaxTokens = sdk.Int(int64(req.MaxTokens))
	}
	if req.Temperature > 0 {
		params.Temperature = sdk.Float(req.Temperature)
	}

	completion, err := p.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return llm.GenerateResponse{}, fmt.Errorf("openai API error: %w", err)
	}

	var content, finishReason string
	if len(completion.Choices) > 0 {
		content = completion.Choices[0].Message.Content
		finishReason = completion.Choices[0].FinishReason
	}
	if strings.TrimSpace(content) == "" {
		return llm.GenerateResponse{}, llm.ErrEmptyResponse
	}

	return llm.GenerateResponse{
		Content:      content,
		TokensUsed:   int(completion.Usage.TotalTokens),
		FinishReason: finishReason,
	}, nil
}

// Name はプロバイダー名を返す
func (p *OpenAIProvider) Name() string {
	return fmt.Sprintf("openai-%s", p.model)
}

// convertMessages はドメインメッセージをChat Completions形式に変換
func convertMessages(req llm.GenerateRequest) []sdk.ChatCompletionMessageParamUnion {
	messages := make([]sdk.ChatCompletionMessageParamUnion, 0, len(req.Messages)+1)

	// システムプロンプトを最初に追加
	if req.SystemPrompt != "" {
		messages = append(messages, sdk.SystemMessage(req.SystemPrompt))
	}

	for _, msg := range req.Messages {
		switch msg.Role {
		case "assistant":
			messages = append(messages, sdk.AssistantMessage(msg.Content))
		case "system":
			messages = append(messages, sdk.SystemMessage(msg.Content))
		default:
			messages = append(messages, sdk.UserMessage(msg.Content))
		}
	}

	return messages
}
