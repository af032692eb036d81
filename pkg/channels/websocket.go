package channels

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/sipeed/visionchat/pkg/chat"
	"github.com/sipeed/visionchat/pkg/logger"
	"github.com/sipeed/visionchat/pkg/view"
)

const (
	wsWriteWait = 10 * time.Second
	wsPongWait  = 60 * time.Second
)

const (
	SlotHero     = "hero"
	SlotWarning  = "warning"
	SlotUser     = "user"
	SlotResponse = "response"
	SlotError    = "error"
	SlotDone     = "done"
)

// Frame is one redraw pushed to the browser. HTML replaces the slot's
// contents; Final marks the last response redraw of a submission.
type Frame struct {
	Slot  string `json:"slot"`
	HTML  string `json:"html,omitempty"`
	Text  string `json:"text,omitempty"`
	Final bool   `json:"final,omitempty"`
}

// wsDisplay writes every redraw to a websocket connection.
type wsDisplay struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func (d *wsDisplay) write(f Frame) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
	return d.conn.WriteJSON(f)
}

func (d *wsDisplay) Hero(h view.Hero) error {
	return d.write(Frame{Slot: SlotHero, HTML: string(h.HTML())})
}

func (d *wsDisplay) Warning(b view.Bubble) error {
	return d.write(Frame{Slot: SlotWarning, HTML: string(b.HTML()), Text: b.Text})
}

func (d *wsDisplay) UserTurn(b view.Bubble) error {
	return d.write(Frame{Slot: SlotUser, HTML: string(b.HTML()), Text: b.Text})
}

func (d *wsDisplay) Response(b view.Bubble) error {
	f := Frame{Slot: SlotResponse, HTML: string(b.HTML()), Text: b.Display()}
	switch {
	case b.Kind == view.KindError:
		f.Slot = SlotError
		f.Final = true
	case b.Kind == view.KindAssistant && !b.Streaming:
		f.Final = true
	}
	return d.write(f)
}

func (d *wsDisplay) fail(err error) error {
	b := view.ErrorBubble(chat.UserMessage(err))
	return d.write(Frame{Slot: SlotError, HTML: string(b.HTML()), Text: b.Text, Final: true})
}

func (c *WebChatChannel) handleWS(w http.ResponseWriter, r *http.Request) {
	sessionID, cookie := c.sessionID(r)
	header := http.Header{}
	if cookie != nil {
		header.Add("Set-Cookie", cookie.String())
	}

	conn, err := c.upgrader.Upgrade(w, r, header)
	if err != nil {
		// Upgrade has already written the error response
		logger.DebugCF("channels", "WebSocket upgrade failed", map[string]interface{}{"error": err.Error()})
		return
	}
	defer conn.Close()

	conn.SetReadLimit(c.config.MaxUploadBytes*4/3 + 64<<10)
	conn.SetReadDeadline(time.Now().Add(c.pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(c.pongWait))
	})

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()
	go keepAlive(ctx, conn, c.pongWait*9/10)

	logger.DebugCF("channels", "WebSocket connected", map[string]interface{}{
		"remote":  r.RemoteAddr,
		"session": sessionID,
	})

	d := &wsDisplay{conn: conn}
	for {
		var req submitRequest
		if err := conn.ReadJSON(&req); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logger.WarnCF("channels", "WebSocket read failed", map[string]interface{}{"error": err.Error()})
			}
			return
		}
		if err := c.serveFrame(ctx, sessionID, req, d); err != nil {
			logger.DebugCF("channels", "WebSocket write failed", map[string]interface{}{"error": err.Error()})
			return
		}
		// pongs are only read inside ReadJSON, so a long turn can outlive
		// the deadline set by the last one
		conn.SetReadDeadline(time.Now().Add(c.pongWait))
	}
}

func (c *WebChatChannel) serveFrame(ctx context.Context, sessionID string, req submitRequest, d *wsDisplay) error {
	sub, err := c.toSubmission(req)
	if err != nil {
		if err := d.fail(err); err != nil {
			return err
		}
		return d.write(Frame{Slot: SlotDone})
	}

	switch req.Action {
	case "preview":
		return c.chat.Preview(sub, d)
	case "submit", "":
		out, err := c.chat.Handle(ctx, sessionID, sub, d)
		if err != nil {
			return err
		}
		if out.Err != nil && !errors.Is(out.Err, context.Canceled) {
			logger.InfoCF("channels", "Submission failed", map[string]interface{}{
				"path":  out.Path.String(),
				"error": out.Err.Error(),
			})
		}
		return d.write(Frame{Slot: SlotDone})
	default:
		if err := d.fail(errors.New("unknown action " + req.Action)); err != nil {
			return err
		}
		return d.write(Frame{Slot: SlotDone})
	}
}

func keepAlive(ctx context.Context, conn *websocket.Conn, period time.Duration) {
	ticker := time.NewTicker(period)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(wsWriteWait)); err != nil {
				return
			}
		}
	}
}
