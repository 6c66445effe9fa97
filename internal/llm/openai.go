package llm

import (
	"context"
	"fmt"
	"sort"

	"github.com/sashabaranov/go-openai"
)

// OpenAIClient implements Client for OpenAI and OpenAI-compatible endpoints
type OpenAIClient struct {
	client *openai.Client
	config *Config
}

// NewOpenAIClient creates a new OpenAI client
func NewOpenAIClient(config *Config, apiKey string) (*OpenAIClient, error) {
	if apiKey == "" {
		return nil, ErrNoAPIKey
	}
	if config == nil {
		config = DefaultOpenAIConfig()
	}

	clientConfig := openai.DefaultConfig(apiKey)
	if config.BaseURL != "" {
		clientConfig.BaseURL = config.BaseURL
	}

	return &OpenAIClient{
		client: openai.NewClientWithConfig(clientConfig),
		config: config,
	}, nil
}

// GenerateContent generates text content using the specified model tier
func (c *OpenAIClient) GenerateContent(ctx context.Context, prompt string, tier ModelTier) (string, error) {
	modelName := c.config.GetModel(tier)
	if modelName == "" {
		return "", fmt.Errorf("no model configured for tier %s", tier)
	}

	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: modelName,
		Messages: []openai.ChatCompletionMessage{
			{
				Role:    openai.ChatMessageRoleUser,
				Content: prompt,
			},
		},
		Temperature: 0.7,
	})
	if err != nil {
		return "", fmt.Errorf("failed to generate content: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("no choices in response")
	}

	return resp.Choices[0].Message.Content, nil
}

// Embed embeds texts in a single request
func (c *OpenAIClient) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	if c.config.EmbeddingModel == "" {
		return nil, fmt.Errorf("no embedding model configured")
	}

	resp, err := c.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Input: texts,
		Model: openai.EmbeddingModel(c.config.EmbeddingModel),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to embed content: %w", err)
	}
	if len(resp.Data) != len(texts) {
		return nil, fmt.Errorf("expected %d embeddings, got %d", len(texts), len(resp.Data))
	}

	data := resp.Data
	sort.SliceStable(data, func(i, j int) bool { return data[i].Index < data[j].Index })

	out := make([][]float32, len(data))
	for i, e := range data {
		out[i] = e.Embedding
	}
	return out, nil
}

// Close is a no-op; the HTTP client holds no resources.
func (c *OpenAIClient) Close() error {
	return nil
}
