package providers

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
)

// GeminiProvider talks to Gemini through its OpenAI-compatible endpoint.
type GeminiProvider struct {
	client    openai.Client
	model     string
	maxTokens int
}

func NewGeminiProvider(apiKey, apiBase, model string, maxTokens int, opts ...option.RequestOption) *GeminiProvider {
	reqOpts := []option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithBaseURL(apiBase),
		option.WithMaxRetries(0),
	}
	return &GeminiProvider{
		client:    openai.NewClient(append(reqOpts, opts...)...),
		model:     model,
		maxTokens: maxTokens,
	}
}

func (p *GeminiProvider) GetDefaultModel() string {
	return p.model
}

func (p *GeminiProvider) Stream(ctx context.Context, req Request, onFragment FragmentFunc) error {
	stream := p.client.Chat.Completions.NewStreaming(ctx, p.params(req))
	defer stream.Close()

	emitted := false
	for stream.Next() {
		chunk := stream.Current()
		if len(chunk.Choices) == 0 {
			continue
		}
		fragment := chunk.Choices[0].Delta.Content
		if fragment == "" {
			continue
		}
		emitted = true
		if err := onFragment(fragment); err != nil {
			return err
		}
	}
	if err := stream.Err(); err != nil {
		return p.classify(err)
	}
	if !emitted {
		return ErrEmptyResponse
	}
	return nil
}

func (p *GeminiProvider) Complete(ctx context.Context, req Request) (*Response, error) {
	completion, err := p.client.Chat.Completions.New(ctx, p.params(req))
	if err != nil {
		return nil, p.classify(err)
	}
	// a safety-blocked reply comes back as a choice with no text
	if len(completion.Choices) == 0 || strings.TrimSpace(completion.Choices[0].Message.Content) == "" {
		return nil, ErrEmptyResponse
	}
	return &Response{
		Content: completion.Choices[0].Message.Content,
		Model:   completion.Model,
	}, nil
}

func (p *GeminiProvider) params(req Request) openai.ChatCompletionNewParams {
	model := req.Model
	if model == "" {
		model = p.model
	}
	params := openai.ChatCompletionNewParams{
		Model:    openai.ChatModel(model),
		Messages: toOpenAIMessages(req.Messages),
	}
	maxTokens := req.MaxTokens
	if maxTokens == 0 {
		maxTokens = p.maxTokens
	}
	if maxTokens > 0 {
		params.MaxTokens = openai.Int(int64(maxTokens))
	}
	return params
}

func toOpenAIMessages(messages []Message) []openai.ChatCompletionMessageParamUnion {
	out := make([]openai.ChatCompletionMessageParamUnion, 0, len(messages))
	for _, m := range messages {
		switch m.Role {
		case RoleSystem:
			out = append(out, openai.SystemMessage(m.Content))
		case RoleAssistant:
			out = append(out, openai.AssistantMessage(m.Content))
		default:
			if len(m.Images) == 0 {
				out = append(out, openai.UserMessage(m.Content))
				continue
			}
			parts := []openai.ChatCompletionContentPartUnionParam{openai.TextContentPart(m.Content)}
			for _, img := range m.Images {
				parts = append(parts, openai.ImageContentPart(openai.ChatCompletionContentPartImageImageURLParam{
					URL: img.DataURI(),
				}))
			}
			out = append(out, openai.UserMessage(parts))
		}
	}
	return out
}

func (p *GeminiProvider) classify(err error) error {
	if err == nil {
		return nil
	}
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		msg := apiErr.Message
		if msg == "" {
			msg = http.StatusText(apiErr.StatusCode)
		}
		return &APIError{Provider: "gemini", StatusCode: apiErr.StatusCode, Message: msg}
	}
	return classifyTransport("gemini", err)
}
