package chat

import (
	"sync"

	"github.com/sipeed/visionchat/pkg/view"
)

// Transcript is a Display that records every redraw.
type Transcript struct {
	mu        sync.Mutex
	hero      view.Hero
	warning   view.Bubble
	user      *view.Bubble
	responses []view.Bubble
}

func (t *Transcript) Hero(h view.Hero) error {
	t.mu.Lock()
	t.hero = h
	t.mu.Unlock()
	return nil
}

func (t *Transcript) Warning(b view.Bubble) error {
	t.mu.Lock()
	t.warning = b
	t.mu.Unlock()
	return nil
}

func (t *Transcript) UserTurn(b view.Bubble) error {
	t.mu.Lock()
	t.user = &b
	t.mu.Unlock()
	return nil
}

func (t *Transcript) Response(b view.Bubble) error {
	t.mu.Lock()
	t.responses = append(t.responses, b)
	t.mu.Unlock()
	return nil
}

func (t *Transcript) HeroView() view.Hero {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.hero
}

func (t *Transcript) WarningView() view.Bubble {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.warning
}

// UserView reports the echoed user turn, if one was rendered.
func (t *Transcript) UserView() (view.Bubble, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.user == nil {
		return view.Bubble{}, false
	}
	return *t.user, true
}

// Responses returns every redraw of the response slot in order.
func (t *Transcript) Responses() []view.Bubble {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]view.Bubble, len(t.responses))
	copy(out, t.responses)
	return out
}

// Final is the last state of the response slot.
func (t *Transcript) Final() (view.Bubble, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if len(t.responses) == 0 {
		return view.Bubble{}, false
	}
	return t.responses[len(t.responses)-1], true
}
