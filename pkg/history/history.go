// Package history keeps the ordered turns of each chat session.
package history

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sipeed/visionchat/pkg/config"
)

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

var (
	ErrInvalidSessionID = errors.New("history: session id is required")
	ErrInvalidMessage   = errors.New("history: invalid message")
	ErrClosed           = errors.New("history: store closed")
)

type Message struct {
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

// Store is safe for concurrent use.
type Store interface {
	Messages(ctx context.Context, sessionID string) ([]Message, error)
	Append(ctx context.Context, sessionID string, msgs ...Message) error
	Clear(ctx context.Context, sessionID string) error
	Close() error
}

// Open returns the store selected by cfg.History.Driver.
func Open(cfg *config.Config) (Store, error) {
	switch cfg.History.Driver {
	case config.HistoryDriverSQLite:
		return OpenSQLite(cfg.HistoryPath())
	case config.HistoryDriverMemory, "":
		return NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("history: unknown driver %q", cfg.History.Driver)
	}
}

func validate(sessionID string, msgs []Message) error {
	if strings.TrimSpace(sessionID) == "" {
		return ErrInvalidSessionID
	}
	for _, m := range msgs {
		if m.Role != RoleUser && m.Role != RoleAssistant {
			return fmt.Errorf("%w: role %q", ErrInvalidMessage, m.Role)
		}
	}
	return nil
}
