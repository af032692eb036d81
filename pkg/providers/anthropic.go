package providers

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	anthropicoption "github.com/anthropics/anthropic-sdk-go/option"
)

type AnthropicProvider struct {
	client    anthropic.Client
	model     string
	maxTokens int
}

func NewAnthropicProvider(apiKey, apiBase, model string, maxTokens int, opts ...anthropicoption.RequestOption) *AnthropicProvider {
	reqOpts := []anthropicoption.RequestOption{
		anthropicoption.WithAPIKey(apiKey),
		anthropicoption.WithBaseURL(apiBase),
		anthropicoption.WithMaxRetries(0),
	}
	if maxTokens <= 0 {
		maxTokens = 1024
	}
	return &AnthropicProvider{
		client:    anthropic.NewClient(append(reqOpts, opts...)...),
		model:     model,
		maxTokens: maxTokens,
	}
}

func (p *AnthropicProvider) GetDefaultModel() string {
	return p.model
}

func (p *AnthropicProvider) Stream(ctx context.Context, req Request, onFragment FragmentFunc) error {
	stream := p.client.Messages.NewStreaming(ctx, p.params(req))
	defer stream.Close()

	emitted := false
	for stream.Next() {
		event := stream.Current()
		ev, ok := event.AsAny().(anthropic.ContentBlockDeltaEvent)
		if !ok {
			continue
		}
		delta, ok := ev.Delta.AsAny().(anthropic.TextDelta)
		if !ok || delta.Text == "" {
			continue
		}
		emitted = true
		if err := onFragment(delta.Text); err != nil {
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

func (p *AnthropicProvider) Complete(ctx context.Context, req Request) (*Response, error) {
	msg, err := p.client.Messages.New(ctx, p.params(req))
	if err != nil {
		return nil, p.classify(err)
	}
	var sb strings.Builder
	for _, block := range msg.Content {
		if block.Type == "text" {
			sb.WriteString(block.Text)
		}
	}
	if strings.TrimSpace(sb.String()) == "" {
		return nil, ErrEmptyResponse
	}
	return &Response{Content: sb.String(), Model: string(msg.Model)}, nil
}

func (p *AnthropicProvider) params(req Request) anthropic.MessageNewParams {
	model := req.Model
	if model == "" {
		model = p.model
	}
	maxTokens := req.MaxTokens
	if maxTokens == 0 {
		maxTokens = p.maxTokens
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(model),
		MaxTokens: int64(maxTokens),
	}
	for _, m := range req.Messages {
		switch m.Role {
		case RoleSystem:
			params.System = append(params.System, anthropic.TextBlockParam{Text: m.Content})
		case RoleAssistant:
			params.Messages = append(params.Messages, anthropic.NewAssistantMessage(anthropic.NewTextBlock(m.Content)))
		default:
			blocks := make([]anthropic.ContentBlockParamUnion, 0, len(m.Images)+1)
			for _, img := range m.Images {
				blocks = append(blocks, anthropic.NewImageBlockBase64(img.MIME, img.Base64()))
			}
			blocks = append(blocks, anthropic.NewTextBlock(m.Content))
			params.Messages = append(params.Messages, anthropic.NewUserMessage(blocks...))
		}
	}
	return params
}

func (p *AnthropicProvider) classify(err error) error {
	if err == nil {
		return nil
	}
	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		msg := strings.TrimSpace(apiErr.Error())
		if msg == "" {
			msg = http.StatusText(apiErr.StatusCode)
		}
		return &APIError{Provider: "anthropic", StatusCode: apiErr.StatusCode, Message: msg}
	}
	return classifyTransport("anthropic", err)
}
