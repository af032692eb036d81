package providers

import (
	"context"

	"github.com/sipeed/visionchat/pkg/media"
)

type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one prompt entry. Images are only honoured on user messages.
type Message struct {
	Role    Role
	Content string
	Images  []*media.Image
}

type Request struct {
	Model     string
	Messages  []Message
	MaxTokens int
}

type Response struct {
	Content string
	Model   string
}

// FragmentFunc receives streamed text in arrival order. A non-nil return
// aborts the stream and is returned unchanged from Stream.
type FragmentFunc func(fragment string) error

type LLMProvider interface {
	Stream(ctx context.Context, req Request, onFragment FragmentFunc) error
	Complete(ctx context.Context, req Request) (*Response, error)
	GetDefaultModel() string
}
