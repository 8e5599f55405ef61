package llm

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/fachebot/vesuvius-study/internal/config"
	"github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
)

// mockOpenAIClient 模拟 OpenAI 客户端
type mockOpenAIClient struct {
	mock.Mock
}

func (m *mockOpenAIClient) CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error) {
	args := m.Called(ctx, req)
	return args.Get(0).(openai.ChatCompletionResponse), args.Error(1)
}

// newTestClient 创建用于测试的客户端，注入 mock
func newTestClient(cfg *config.LLM, mockClient openAIClientInterface) *Client {
	return &Client{
		config:       cfg,
		openaiClient: mockClient,
		timeout:      cfg.CallTimeout(),
	}
}

func textResponse(content string) openai.ChatCompletionResponse {
	return openai.ChatCompletionResponse{
		Choices: []openai.ChatCompletionChoice{
			{Message: openai.ChatCompletionMessage{Content: content}},
		},
	}
}

func TestEstimateTokens(t *testing.T) {
	tests := []struct {
		name    string
		text    string
		wantMin int
		wantMax int
	}{
		{"空文本", "", 0, 0},
		{"短句", "Thanks for your help!", 4, 10},
		{"长单词下限", strings.Repeat("a", 400), 100, 100},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := estimateTokens(tt.text)
			assert.GreaterOrEqual(t, got, tt.wantMin)
			assert.LessOrEqual(t, got, tt.wantMax)
		})
	}
}

func TestGenerate_Success(t *testing.T) {
	mockAPI := new(mockOpenAIClient)
	mockAPI.On("CreateChatCompletion", mock.Anything, mock.MatchedBy(func(req openai.ChatCompletionRequest) bool {
		return req.Model == "llama" &&
			req.MaxTokens == 50 &&
			len(req.Messages) == 1 &&
			req.Messages[0].Role == openai.ChatMessageRoleUser &&
			req.Messages[0].Content == "Message: \"Thanks!\"\nEmotion:"
	})).Return(textResponse("  Emotion: Gratitude \n"), nil)

	client := newTestClient(&config.LLM{Model: "llama", MaxTokens: 8192}, mockAPI)
	out, err := client.Generate(context.Background(), "Message: \"Thanks!\"\nEmotion:", 50)
	assert.NoError(t, err)
	assert.Equal(t, "Emotion: Gratitude", out)
	mockAPI.AssertExpectations(t)
}

func TestGenerate_APIError(t *testing.T) {
	mockAPI := new(mockOpenAIClient)
	mockAPI.On("CreateChatCompletion", mock.Anything, mock.Anything).
		Return(openai.ChatCompletionResponse{}, errors.New("api error"))

	client := newTestClient(&config.LLM{Model: "llama", MaxTokens: 8192}, mockAPI)
	_, err := client.Generate(context.Background(), "hi", 50)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "调用 LLM API 失败")
}

func TestGenerate_EmptyResponse(t *testing.T) {
	mockAPI := new(mockOpenAIClient)
	mockAPI.On("CreateChatCompletion", mock.Anything, mock.Anything).
		Return(openai.ChatCompletionResponse{Choices: nil}, nil)

	client := newTestClient(&config.LLM{Model: "llama", MaxTokens: 8192}, mockAPI)
	_, err := client.Generate(context.Background(), "hi", 50)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "返回空结果")
}

func TestGenerate_PromptTooLong(t *testing.T) {
	mockAPI := new(mockOpenAIClient)
	client := newTestClient(&config.LLM{Model: "llama", MaxTokens: 100}, mockAPI)

	_, err := client.Generate(context.Background(), strings.Repeat("word ", 200), 50)
	assert.ErrorContains(t, err, "prompt 过长")
	mockAPI.AssertNotCalled(t, "CreateChatCompletion", mock.Anything, mock.Anything)
}

func TestGenerate_AppliesCallTimeout(t *testing.T) {
	mockAPI := new(mockOpenAIClient)
	mockAPI.On("CreateChatCompletion", mock.MatchedBy(func(ctx context.Context) bool {
		deadline, ok := ctx.Deadline()
		return ok && time.Until(deadline) <= 5*time.Second
	}), mock.Anything).Return(textResponse("Sentiment: Positive"), nil)

	client := newTestClient(&config.LLM{Model: "llama", MaxTokens: 8192, TimeoutSeconds: 5}, mockAPI)
	out, err := client.Generate(context.Background(), "hi", 50)
	assert.NoError(t, err)
	assert.Equal(t, "Sentiment: Positive", out)
	mockAPI.AssertExpectations(t)
}
