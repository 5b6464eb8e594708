package ai

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"google.golang.org/genai"
)

type geminiConfig struct {
	APIKey     string `json:"api_key"`
	Dimensions int32  `json:"dimensions"`
}

// geminiProvider creates its client on first use so a provider with no key
// can still be declared in config.
type geminiProvider struct {
	apiKey     string
	dimensions int32

	mu     sync.Mutex
	client *genai.Client
}

func (p *geminiProvider) Name() string {
	return "gemini"
}

func (p *geminiProvider) getClient(ctx context.Context) (*genai.Client, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.client != nil {
		return p.client, nil
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  p.apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, err
	}
	p.client = client
	return client, nil
}

func (p *geminiProvider) Chat(ctx context.Context, model string, req *ChatRequest) (string, error) {
	if p.apiKey == "" {
		return "", ErrUnavailable
	}
	client, err := p.getClient(ctx)
	if err != nil {
		return "", upstreamErr(p.Name(), err)
	}
	config := &genai.GenerateContentConfig{}
	var systemParts []string
	contents := make([]*genai.Content, 0, len(req.Messages))
	for _, m := range req.Messages {
		switch m.Role {
		case RoleSystem:
			systemParts = append(systemParts, m.Content)
		case RoleAssistant:
			contents = append(contents, genai.NewContentFromText(m.Content, genai.RoleModel))
		default:
			contents = append(contents, genai.NewContentFromText(m.Content, genai.RoleUser))
		}
	}
	if len(systemParts) > 0 {
		config.SystemInstruction = genai.NewContentFromText(strings.Join(systemParts, "\n\n"), genai.RoleUser)
	}
	if req.Temperature != nil {
		config.Temperature = genai.Ptr(float32(*req.Temperature))
	}
	if req.JSONMode {
		config.ResponseMIMEType = "application/json"
	}
	resp, err := client.Models.GenerateContent(ctx, model, contents, config)
	if err != nil {
		return "", upstreamErr(p.Name(), err)
	}
	return strings.TrimSpace(resp.Text()), nil
}

func (p *geminiProvider) Embed(ctx context.Context, model string, text string, taskType string) ([]float32, error) {
	if p.apiKey == "" {
		return nil, ErrUnavailable
	}
	client, err := p.getClient(ctx)
	if err != nil {
		return nil, upstreamErr(p.Name(), err)
	}
	var config *genai.EmbedContentConfig
	if taskType != "" || p.dimensions > 0 {
		config = &genai.EmbedContentConfig{TaskType: taskType}
		if p.dimensions > 0 {
			config.OutputDimensionality = genai.Ptr(p.dimensions)
		}
	}
	resp, err := client.Models.EmbedContent(ctx, model, []*genai.Content{genai.NewContentFromText(text, genai.RoleUser)}, config)
	if err != nil {
		return nil, upstreamErr(p.Name(), err)
	}
	if len(resp.Embeddings) == 0 {
		return nil, upstreamErr(p.Name(), fmt.Errorf("no embedding values returned"))
	}
	return resp.Embeddings[0].Values, nil
}

func newGeminiProvider(args interface{}) (*geminiProvider, error) {
	cfg := &geminiConfig{}
	if err := decodeConfig(args, cfg); err != nil {
		return nil, err
	}
	return &geminiProvider{
		apiKey:     strings.TrimSpace(cfg.APIKey),
		dimensions: cfg.Dimensions,
	}, nil
}

func createGeminiFactory(args interface{}) (IAIProvider, error) {
	return newGeminiProvider(args)
}

func createGeminiEmbedFactory(args interface{}) (IEmbedProvider, error) {
	return newGeminiProvider(args)
}

func init() {
	Register("gemini", createGeminiFactory)
	RegisterEmbed("gemini", createGeminiEmbedFactory)
}
