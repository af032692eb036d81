package chat

import (
	"github.com/sipeed/visionchat/pkg/history"
	"github.com/sipeed/visionchat/pkg/providers"
)

// BuildPrompt lays out the system instruction, the prior turns in order and
// the current question.
func BuildPrompt(system string, prior []history.Message, question string) []providers.Message {
	msgs := make([]providers.Message, 0, len(prior)+2)
	msgs = append(msgs, providers.Message{Role: providers.RoleSystem, Content: system})
	for _, m := range prior {
		role := providers.RoleUser
		if m.Role == history.RoleAssistant {
			role = providers.RoleAssistant
		}
		msgs = append(msgs, providers.Message{Role: role, Content: m.Content})
	}
	return append(msgs, providers.Message{Role: providers.RoleUser, Content: question})
}
