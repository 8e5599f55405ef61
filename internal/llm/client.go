package llm

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/fachebot/vesuvius-study/internal/config"
	"github.com/sashabaranov/go-openai"
)

// openAIClientInterface 定义 OpenAI 客户端接口，便于测试
type openAIClientInterface interface {
	CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

type Client struct {
	config       *config.LLM
	openaiClient openAIClientInterface
	timeout      time.Duration
}

// NewClient 创建模型客户端；httpClient 为 nil 时使用默认客户端
func NewClient(cfg *config.LLM, httpClient *http.Client) *Client {
	openaiConfig := openai.DefaultConfig(cfg.APIKey)
	openaiConfig.BaseURL = cfg.BaseURL
	if httpClient != nil {
		openaiConfig.HTTPClient = httpClient
	}

	return &Client{
		config:       cfg,
		openaiClient: openai.NewClientWithConfig(openaiConfig),
		timeout:      cfg.CallTimeout(),
	}
}

// estimateTokens 估算文本的 token 数量
func estimateTokens(text string) int {
	// 英文约 1.3 token/词，以字符数的 1/4 作为下限
	words := len(strings.Fields(text))
	tokens := int(float64(words) * 1.3)
	if tokens < len(text)/4 {
		tokens = len(text) / 4
	}
	return tokens
}

// Generate 把 prompt 作为用户消息发送给模型，返回生成的文本
// 超时、网络错误、空结果都作为调用失败返回
func (c *Client) Generate(ctx context.Context, prompt string, maxTokens int) (string, error) {
	if c.config.MaxTokens > 0 {
		if tokens := estimateTokens(prompt) + maxTokens; tokens > c.config.MaxTokens {
			return "", fmt.Errorf("prompt 过长 (约 %d tokens)，超过上下文窗口 %d", tokens, c.config.MaxTokens)
		}
	}

	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	req := openai.ChatCompletionRequest{
		Model: c.config.Model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
		Temperature: c.config.Temperature,
		MaxTokens:   maxTokens,
	}

	resp, err := c.openaiClient.CreateChatCompletion(ctx, req)
	if err != nil {
		return "", fmt.Errorf("调用 LLM API 失败: %w", err)
	}

	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("LLM API 返回空结果")
	}

	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}
