package channels

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"mime/multipart"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/sipeed/visionchat/pkg/chat"
	"github.com/sipeed/visionchat/pkg/config"
	"github.com/sipeed/visionchat/pkg/logger"
	"github.com/sipeed/visionchat/pkg/media"
	"github.com/sipeed/visionchat/pkg/view"
)

const (
	authCookie    = "visionchat_session"
	browserCookie = "visionchat_browser"
	authTTL       = 24 * time.Hour
)

type WebChatChannel struct {
	config   config.WebChatConfig
	scope    string
	chat     *chat.Service
	server   *http.Server
	upgrader websocket.Upgrader
	sessions map[string]time.Time // token -> expiry
	pongWait time.Duration
	running  bool
	stopped  bool
	mu       sync.RWMutex
}

// submitRequest is the body of a websocket message or a JSON POST to
// /chat/send.
type submitRequest struct {
	Action string        `json:"action,omitempty"`
	APIKey string        `json:"api_key"`
	Model  string        `json:"model"`
	Text   string        `json:"text"`
	Image  *imagePayload `json:"image,omitempty"`
}

type imagePayload struct {
	Data string `json:"data"`
	MIME string `json:"mime"`
}

type sendResponse struct {
	Path     chat.Path `json:"path"`
	Hero     string    `json:"hero"`
	Warning  string    `json:"warning,omitempty"`
	User     string    `json:"user,omitempty"`
	Response string    `json:"response,omitempty"`
	Error    string    `json:"error,omitempty"`
}

func NewWebChatChannel(cfg *config.Config, svc *chat.Service) (*WebChatChannel, error) {
	if svc == nil {
		return nil, fmt.Errorf("webchat: chat service is required")
	}
	c := &WebChatChannel{
		config:   cfg.Channels.WebChat,
		scope:    cfg.Chat.SessionScope,
		chat:     svc,
		sessions: make(map[string]time.Time),
		pongWait: wsPongWait,
	}
	c.upgrader = websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin:     c.checkOrigin,
	}
	if cfg.Chat.SessionScope == config.SessionScopeBrowser && cfg.History.Driver != config.HistoryDriverSQLite {
		logger.WarnCF("channels", "Per-browser sessions kept in memory until restart", map[string]interface{}{
			"history_driver": cfg.History.Driver,
		})
	}
	return c, nil
}

func (c *WebChatChannel) Name() string { return "webchat" }

func (c *WebChatChannel) IsRunning() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.running
}

func (c *WebChatChannel) setRunning(v bool) {
	c.mu.Lock()
	c.running = v
	c.mu.Unlock()
}

// authEnabled returns true when both username and password are configured.
func (c *WebChatChannel) authEnabled() bool {
	return c.config.Username != "" && c.config.Password != ""
}

// createSession generates a random session token and stores it.
func (c *WebChatChannel) createSession() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	token := hex.EncodeToString(b)
	now := time.Now()
	c.mu.Lock()
	for t, expiry := range c.sessions {
		if now.After(expiry) {
			delete(c.sessions, t)
		}
	}
	c.sessions[token] = now.Add(authTTL)
	c.mu.Unlock()
	return token, nil
}

// validSession checks if the request carries a valid session cookie.
func (c *WebChatChannel) validSession(r *http.Request) bool {
	cookie, err := r.Cookie(authCookie)
	if err != nil {
		return false
	}
	c.mu.RLock()
	expiry, ok := c.sessions[cookie.Value]
	c.mu.RUnlock()
	return ok && time.Now().Before(expiry)
}

// requireAuth wraps a handler with authentication. If auth is not configured, it passes through.
func (c *WebChatChannel) requireAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !c.authEnabled() || c.validSession(r) {
			next(w, r)
			return
		}
		http.Redirect(w, r, "/login", http.StatusSeeOther)
	}
}

// requireAuthAPI is like requireAuth but returns 401 JSON for API endpoints.
func (c *WebChatChannel) requireAuthAPI(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !c.authEnabled() || c.validSession(r) {
			next(w, r)
			return
		}
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
	}
}

// sessionID resolves the conversation a request belongs to. In browser scope
// a new id is issued through the returned cookie.
func (c *WebChatChannel) sessionID(r *http.Request) (string, *http.Cookie) {
	if c.scope != config.SessionScopeBrowser {
		return chat.DefaultSessionID, nil
	}
	if cookie, err := r.Cookie(browserCookie); err == nil {
		if _, err := uuid.Parse(cookie.Value); err == nil {
			return cookie.Value, nil
		}
	}
	id := uuid.NewString()
	return id, &http.Cookie{
		Name:     browserCookie,
		Value:    id,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   365 * 86400,
	}
}

func (c *WebChatChannel) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	for _, allowed := range c.config.AllowedOrigins {
		if allowed == "*" || strings.EqualFold(allowed, origin) {
			return true
		}
	}
	host := origin
	if i := strings.Index(host, "://"); i >= 0 {
		host = host[i+3:]
	}
	return strings.EqualFold(host, r.Host)
}

// Handler returns the full route table.
func (c *WebChatChannel) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/", c.requireAuth(c.handleUI))
	mux.HandleFunc("/chat/ws", c.requireAuthAPI(c.handleWS))
	mux.HandleFunc("/chat/send", c.requireAuthAPI(c.handleSend))
	mux.HandleFunc("/chat/history", c.requireAuthAPI(c.handleHistory))
	mux.HandleFunc("/chat/reset", c.requireAuthAPI(c.handleReset))
	mux.HandleFunc("/login", c.handleLogin)
	mux.HandleFunc("/logout", c.handleLogout)
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	return mux
}

// Listen binds the configured address.
func (c *WebChatChannel) Listen() (net.Listener, error) {
	addr := fmt.Sprintf("%s:%d", c.config.Host, c.config.Port)
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("webchat: listen %s: %w", addr, err)
	}
	return ln, nil
}

// Serve blocks until the server fails or Stop is called. A clean shutdown
// returns nil. Serve after Stop closes ln and returns nil.
func (c *WebChatChannel) Serve(ctx context.Context, ln net.Listener) error {
	c.mu.Lock()
	if c.stopped {
		c.mu.Unlock()
		ln.Close()
		return nil
	}
	srv := &http.Server{
		Handler:           c.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}
	c.server = srv
	c.running = true
	c.mu.Unlock()
	defer c.setRunning(false)

	fields := map[string]interface{}{"addr": ln.Addr().String()}
	if c.authEnabled() {
		logger.InfoCF("channels", "WebChat started (auth enabled)", fields)
	} else {
		logger.InfoCF("channels", "WebChat started (no auth)", fields)
	}

	if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.ErrorCF("channels", "WebChat server error", map[string]interface{}{"error": err.Error()})
		return fmt.Errorf("webchat: serve: %w", err)
	}
	return nil
}

func (c *WebChatChannel) Stop(ctx context.Context) error {
	c.mu.Lock()
	c.stopped = true
	srv := c.server
	c.mu.Unlock()
	if srv != nil {
		return srv.Shutdown(ctx)
	}
	return nil
}

func (c *WebChatChannel) handleLogin(w http.ResponseWriter, r *http.Request) {
	// If auth not configured, redirect to chat
	if !c.authEnabled() || c.validSession(r) {
		http.Redirect(w, r, "/", http.StatusSeeOther)
		return
	}

	if r.Method == http.MethodGet {
		c.renderLogin(w, http.StatusOK, "")
		return
	}

	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var body struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}

	isJSON := strings.HasPrefix(r.Header.Get("Content-Type"), "application/json")
	if isJSON {
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "bad request"})
			return
		}
	} else {
		body.Username = r.FormValue("username")
		body.Password = r.FormValue("password")
	}

	usernameMatch := subtle.ConstantTimeCompare([]byte(body.Username), []byte(c.config.Username)) == 1
	passwordMatch := subtle.ConstantTimeCompare([]byte(body.Password), []byte(c.config.Password)) == 1

	if !usernameMatch || !passwordMatch {
		logger.WarnCF("channels", "WebChat login failed", map[string]interface{}{
			"remote": r.RemoteAddr,
		})
		if isJSON {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "invalid credentials"})
			return
		}
		c.renderLogin(w, http.StatusUnauthorized, "Invalid username or password")
		return
	}

	token, err := c.createSession()
	if err != nil {
		http.Error(w, "could not create session", http.StatusInternalServerError)
		return
	}
	http.SetCookie(w, &http.Cookie{
		Name:     authCookie,
		Value:    token,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteStrictMode,
		MaxAge:   int(authTTL / time.Second),
	})

	if isJSON {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
		return
	}
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

func (c *WebChatChannel) handleLogout(w http.ResponseWriter, r *http.Request) {
	if cookie, err := r.Cookie(authCookie); err == nil {
		c.mu.Lock()
		delete(c.sessions, cookie.Value)
		c.mu.Unlock()
	}
	http.SetCookie(w, &http.Cookie{
		Name:     authCookie,
		Value:    "",
		Path:     "/",
		HttpOnly: true,
		MaxAge:   -1,
	})
	http.Redirect(w, r, "/login", http.StatusSeeOther)
}

func (c *WebChatChannel) renderLogin(w http.ResponseWriter, status int, errMsg string) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	if err := view.RenderLogin(w, errMsg); err != nil {
		logger.ErrorCF("channels", "Rendering login failed", map[string]interface{}{"error": err.Error()})
	}
}

func (c *WebChatChannel) handleUI(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	if _, cookie := c.sessionID(r); cookie != nil {
		http.SetCookie(w, cookie)
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	err := view.RenderPage(w, view.PageData{
		Models:        c.chat.Models(),
		SelectedModel: c.chat.DefaultModel(),
		Hero:          c.chat.FallbackHero(),
		Warning:       view.Warning(chat.MissingKeyWarning),
		AuthEnabled:   c.authEnabled(),
	})
	if err != nil {
		logger.ErrorCF("channels", "Rendering page failed", map[string]interface{}{"error": err.Error()})
	}
}

func (c *WebChatChannel) handleSend(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	// base64 inflates the image by a third; leave room for the other fields
	r.Body = http.MaxBytesReader(w, r.Body, c.config.MaxUploadBytes*4/3+64<<10)
	sub, err := c.readSubmission(r)
	if err != nil {
		c.writeSubmissionError(w, err)
		return
	}

	sessionID, cookie := c.sessionID(r)
	if cookie != nil {
		http.SetCookie(w, cookie)
	}

	var tr chat.Transcript
	out, err := c.chat.Handle(r.Context(), sessionID, sub, &tr)
	if err != nil {
		logger.ErrorCF("channels", "Rendering submission failed", map[string]interface{}{"error": err.Error()})
	}

	resp := sendResponse{
		Path:    out.Path,
		Hero:    tr.HeroView().ImageSrc,
		Warning: tr.WarningView().Text,
	}
	if user, ok := tr.UserView(); ok {
		resp.User = user.Text
	}
	if final, ok := tr.Final(); ok {
		if final.Kind == view.KindError {
			resp.Error = final.Text
		} else {
			resp.Response = final.Text
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

// readSubmission accepts either a multipart form with an "image" file part or
// a JSON submitRequest.
func (c *WebChatChannel) readSubmission(r *http.Request) (chat.Submission, error) {
	if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
		if err := r.ParseMultipartForm(c.config.MaxUploadBytes); err != nil {
			return chat.Submission{}, fmt.Errorf("%w: %v", errBadRequest, err)
		}
		sub := chat.Submission{
			APIKey: r.FormValue("api_key"),
			Model:  r.FormValue("model"),
			Text:   strings.TrimSpace(r.FormValue("text")),
		}
		file, header, err := r.FormFile("image")
		switch {
		case errors.Is(err, http.ErrMissingFile):
			return sub, nil
		case err != nil:
			return chat.Submission{}, fmt.Errorf("%w: %v", errBadRequest, err)
		}
		defer file.Close()
		img, err := media.ReadUpload(file, partType(header), c.config.MaxUploadBytes)
		if err != nil {
			return chat.Submission{}, err
		}
		sub.Image = img
		return sub, nil
	}

	var req submitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return chat.Submission{}, fmt.Errorf("%w: %v", errBadRequest, err)
	}
	return c.toSubmission(req)
}

func (c *WebChatChannel) toSubmission(req submitRequest) (chat.Submission, error) {
	sub := chat.Submission{
		APIKey: req.APIKey,
		Model:  req.Model,
		Text:   strings.TrimSpace(req.Text),
	}
	if req.Image == nil || req.Image.Data == "" {
		return sub, nil
	}
	img, err := media.DecodeBase64(req.Image.Data, req.Image.MIME)
	if err != nil {
		return chat.Submission{}, err
	}
	if int64(len(img.Data)) > c.config.MaxUploadBytes {
		return chat.Submission{}, media.ErrTooLarge
	}
	sub.Image = img
	return sub, nil
}

var errBadRequest = errors.New("bad request")

func (c *WebChatChannel) writeSubmissionError(w http.ResponseWriter, err error) {
	var maxErr *http.MaxBytesError
	status := http.StatusBadRequest
	switch {
	case errors.Is(err, media.ErrUnsupportedType):
		status = http.StatusUnsupportedMediaType
	case errors.Is(err, media.ErrTooLarge), errors.As(err, &maxErr):
		status = http.StatusRequestEntityTooLarge
	}
	writeJSON(w, status, map[string]string{"error": chat.UserMessage(err)})
}

func (c *WebChatChannel) handleHistory(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	sessionID, _ := c.sessionID(r)
	msgs, err := c.chat.History(r.Context(), sessionID)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, msgs)
}

func (c *WebChatChannel) handleReset(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	sessionID, _ := c.sessionID(r)
	if err := c.chat.Reset(r.Context(), sessionID); err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	logger.InfoCF("channels", "Conversation reset", map[string]interface{}{"session": sessionID})
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func partType(h *multipart.FileHeader) string {
	if h == nil {
		return ""
	}
	return h.Header.Get("Content-Type")
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.DebugCF("channels", "Writing response failed", map[string]interface{}{"error": err.Error()})
	}
}
