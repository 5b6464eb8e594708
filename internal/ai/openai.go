package ai

import (
	"context"
	"fmt"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/shared"
)

type openAIConfig struct {
	APIKey     string            `json:"api_key"`
	BaseURL    string            `json:"base_url"`
	Dimensions int64             `json:"dimensions"`
	Headers    map[string]string `json:"headers"`
}

// openAIProvider serves chat and embeddings for any OpenAI compatible
// endpoint. The SDK's own retries are turned off: a failed call surfaces
// straight to the caller.
type openAIProvider struct {
	name       string
	apiKey     string
	client     openai.Client
	dimensions int64
}

func newOpenAIProvider(name string, cfg *openAIConfig) *openAIProvider {
	apiKey := strings.TrimSpace(cfg.APIKey)
	opts := []option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithMaxRetries(0),
	}
	if base := strings.TrimSpace(cfg.BaseURL); base != "" {
		opts = append(opts, option.WithBaseURL(base))
	}
	for k, v := range cfg.Headers {
		opts = append(opts, option.WithHeader(k, v))
	}
	return &openAIProvider{
		name:       name,
		apiKey:     apiKey,
		client:     openai.NewClient(opts...),
		dimensions: cfg.Dimensions,
	}
}

func (p *openAIProvider) Name() string {
	return p.name
}

func (p *openAIProvider) Chat(ctx context.Context, model string, req *ChatRequest) (string, error) {
	if p.apiKey == "" {
		return "", ErrUnavailable
	}
	messages := make([]openai.ChatCompletionMessageParamUnion, 0, len(req.Messages))
	for _, m := range req.Messages {
		switch m.Role {
		case RoleSystem:
			messages = append(messages, openai.SystemMessage(m.Content))
		case RoleAssistant:
			messages = append(messages, openai.AssistantMessage(m.Content))
		default:
			messages = append(messages, openai.UserMessage(m.Content))
		}
	}
	params := openai.ChatCompletionNewParams{
		Model:    shared.ChatModel(model),
		Messages: messages,
	}
	if req.Temperature != nil {
		params.Temperature = openai.Float(*req.Temperature)
	}
	if req.JSONMode {
		params.ResponseFormat = openai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONObject: &shared.ResponseFormatJSONObjectParam{},
		}
	}
	resp, err := p.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return "", upstreamErr(p.name, err)
	}
	if len(resp.Choices) == 0 {
		return "", upstreamErr(p.name, fmt.Errorf("response has no choices"))
	}
	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}

func (p *openAIProvider) Embed(ctx context.Context, model string, text string, _ string) ([]float32, error) {
	if p.apiKey == "" {
		return nil, ErrUnavailable
	}
	params := openai.EmbeddingNewParams{
		Model: model,
		Input: openai.EmbeddingNewParamsInputUnion{OfString: openai.String(text)},
	}
	if p.dimensions > 0 {
		params.Dimensions = openai.Int(p.dimensions)
	}
	resp, err := p.client.Embeddings.New(ctx, params)
	if err != nil {
		return nil, upstreamErr(p.name, err)
	}
	if len(resp.Data) == 0 {
		return nil, upstreamErr(p.name, fmt.Errorf("response has no embeddings"))
	}
	values := resp.Data[0].Embedding
	out := make([]float32, len(values))
	for i, v := range values {
		out[i] = float32(v)
	}
	return out, nil
}

func createOpenAIFactory(args interface{}) (IAIProvider, error) {
	cfg := &openAIConfig{}
	if err := decodeConfig(args, cfg); err != nil {
		return nil, err
	}
	return newOpenAIProvider("openai", cfg), nil
}

func createOpenAIEmbedFactory(args interface{}) (IEmbedProvider, error) {
	cfg := &openAIConfig{}
	if err := decodeConfig(args, cfg); err != nil {
		return nil, err
	}
	return newOpenAIProvider("openai", cfg), nil
}

func init() {
	Register("openai", createOpenAIFactory)
	RegisterEmbed("openai", createOpenAIEmbedFactory)
}
