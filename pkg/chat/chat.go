// Package chat runs one submission end to end: header, credential check,
// dispatch to the streaming text pipeline or the single-shot image pipeline,
// and the error surface. Rendering goes through a Display so the same flow
// serves the websocket, JSON, lambda and terminal front ends.
package chat

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/sipeed/visionchat/pkg/config"
	"github.com/sipeed/visionchat/pkg/history"
	"github.com/sipeed/visionchat/pkg/logger"
	"github.com/sipeed/visionchat/pkg/media"
	"github.com/sipeed/visionchat/pkg/providers"
	"github.com/sipeed/visionchat/pkg/view"
)

const (
	// DefaultSessionID is the single conversation every client shares unless
	// the server runs with per-browser sessions.
	DefaultSessionID  = "any"
	ImageAttachedEcho = "(Image attached)"
	MissingKeyWarning = "Please enter your Google API key in the sidebar."
)

// Display receives every redraw of a submission. The response slot is
// overwritten on each Response call.
type Display interface {
	Hero(h view.Hero) error
	Warning(b view.Bubble) error
	UserTurn(b view.Bubble) error
	Response(b view.Bubble) error
}

type Submission struct {
	APIKey string
	Model  string
	Text   string
	Image  *media.Image
}

func (s Submission) Empty() bool {
	return strings.TrimSpace(s.Text) == "" && s.Image == nil
}

type Path int

const (
	PathNone Path = iota
	PathText
	PathImage
)

func (p Path) String() string {
	switch p {
	case PathText:
		return "text"
	case PathImage:
		return "image"
	default:
		return "none"
	}
}

func (p Path) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

func (p *Path) UnmarshalText(b []byte) error {
	switch string(b) {
	case "text":
		*p = PathText
	case "image":
		*p = PathImage
	case "none", "":
		*p = PathNone
	default:
		return fmt.Errorf("chat: unknown path %q", b)
	}
	return nil
}

// Outcome is the result of one submission. Err is the pipeline failure that
// was rendered to the user, if any.
type Outcome struct {
	Path Path
	Text string
	Err  error
}

// ProviderFactory builds a provider for one submission's key.
type ProviderFactory func(name, apiKey string) (providers.LLMProvider, error)

type Service struct {
	cfg     config.ChatConfig
	models  []string
	history history.Store
	factory ProviderFactory
	limiter *Limiter
	timeout time.Duration
}

// NewService wires the pipelines. A nil factory uses providers.CreateProvider.
func NewService(cfg *config.Config, store history.Store, factory ProviderFactory) *Service {
	if factory == nil {
		factory = func(name, apiKey string) (providers.LLMProvider, error) {
			return providers.CreateProvider(cfg, name, apiKey)
		}
	}
	return &Service{
		cfg:     cfg.Chat,
		models:  cfg.ModelOptions(),
		history: store,
		factory: factory,
		limiter: NewLimiter(cfg.Chat.SubmissionsPerMinute, cfg.Chat.SubmissionBurst),
		timeout: time.Duration(cfg.Chat.RequestTimeoutSeconds) * time.Second,
	}
}

// Preview re-renders the header and the credential warning without running
// a pipeline, as happens whenever an input changes.
func (s *Service) Preview(sub Submission, d Display) error {
	if err := d.Hero(view.NewHero(sub.Image, s.cfg.FallbackHeroURL)); err != nil {
		return err
	}
	warning := ""
	if strings.TrimSpace(sub.APIKey) == "" {
		warning = MissingKeyWarning
	}
	return d.Warning(view.Warning(warning))
}

// Handle runs one submission. The returned error is reserved for Display
// failures; pipeline failures are rendered and reported in Outcome.Err.
func (s *Service) Handle(ctx context.Context, sessionID string, sub Submission, d Display) (Outcome, error) {
	if err := s.Preview(sub, d); err != nil {
		return Outcome{}, err
	}
	if strings.TrimSpace(sub.APIKey) == "" {
		return Outcome{Path: PathNone, Err: providers.ErrMissingCredential}, nil
	}
	if sub.Empty() {
		return Outcome{Path: PathNone}, nil
	}
	if !s.limiter.Allow(sessionID) {
		return Outcome{Path: PathNone, Err: ErrRateLimited}, d.Warning(view.Warning(UserMessage(ErrRateLimited)))
	}

	path := PathText
	if sub.Image != nil {
		path = PathImage
	}
	sub.Model = s.resolveModel(sub.Model)

	echo := sub.Text
	if strings.TrimSpace(echo) == "" {
		echo = ImageAttachedEcho
	}
	if err := d.UserTurn(view.UserBubble(echo)); err != nil {
		return Outcome{Path: path}, err
	}
	if err := d.Response(view.Pending()); err != nil {
		return Outcome{Path: path}, err
	}

	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	logger.InfoCF("chat", "Running pipeline", map[string]interface{}{
		"path":    path.String(),
		"session": sessionID,
		"model":   sub.Model,
	})

	provider, err := s.factory(s.cfg.Provider, sub.APIKey)
	if err != nil {
		return s.fail(d, path, err)
	}
	if path == PathImage {
		return s.runImage(ctx, sub, provider, d)
	}
	return s.runText(ctx, sessionID, sub, provider, d)
}

func (s *Service) runText(ctx context.Context, sessionID string, sub Submission, provider providers.LLMProvider, d Display) (Outcome, error) {
	prior, err := s.history.Messages(ctx, sessionID)
	if err != nil {
		return s.fail(d, PathText, err)
	}
	req := providers.Request{
		Model:    sub.Model,
		Messages: BuildPrompt(s.cfg.SystemPrompt, prior, sub.Text),
	}

	var full strings.Builder
	var displayErr error
	err = provider.Stream(ctx, req, func(fragment string) error {
		full.WriteString(fragment)
		if err := d.Response(view.Streaming(full.String())); err != nil {
			displayErr = err
			return err
		}
		return nil
	})
	if displayErr != nil {
		return Outcome{Path: PathText}, displayErr
	}
	if err != nil {
		return s.fail(d, PathText, err)
	}

	text := full.String()
	if err := s.history.Append(ctx, sessionID,
		history.Message{Role: history.RoleUser, Content: sub.Text},
		history.Message{Role: history.RoleAssistant, Content: text},
	); err != nil {
		logger.WarnCF("chat", "Failed to record turn", map[string]interface{}{
			"session": sessionID,
			"error":   err.Error(),
		})
	}
	return Outcome{Path: PathText, Text: text}, d.Response(view.Final(text))
}

func (s *Service) runImage(ctx context.Context, sub Submission, provider providers.LLMProvider, d Display) (Outcome, error) {
	instruction := sub.Text
	if strings.TrimSpace(instruction) == "" {
		instruction = s.cfg.DefaultImageInstruction
	}
	label := media.VisionLabel
	if s.cfg.PreserveUploadMIME {
		label = sub.Image.MIME
	}

	resp, err := provider.Complete(ctx, providers.Request{
		Model: sub.Model,
		Messages: []providers.Message{{
			Role:    providers.RoleUser,
			Content: instruction,
			Images:  []*media.Image{{Data: sub.Image.Data, MIME: label}},
		}},
	})
	if err != nil {
		return s.fail(d, PathImage, err)
	}
	return Outcome{Path: PathImage, Text: resp.Content}, d.Response(view.Final(resp.Content))
}

func (s *Service) fail(d Display, path Path, err error) (Outcome, error) {
	logger.WarnCF("chat", "Pipeline failed", map[string]interface{}{
		"path":  path.String(),
		"error": err.Error(),
	})
	return Outcome{Path: path, Err: err}, d.Response(view.ErrorBubble(UserMessage(err)))
}

func (s *Service) resolveModel(model string) string {
	if model != "" && slices.Contains(s.models, model) {
		return model
	}
	return s.cfg.Model
}

// Models lists the selectable model names.
func (s *Service) Models() []string {
	return slices.Clone(s.models)
}

func (s *Service) DefaultModel() string {
	return s.cfg.Model
}

func (s *Service) FallbackHero() view.Hero {
	return view.NewHero(nil, s.cfg.FallbackHeroURL)
}

func (s *Service) History(ctx context.Context, sessionID string) ([]history.Message, error) {
	return s.history.Messages(ctx, sessionID)
}

func (s *Service) Reset(ctx context.Context, sessionID string) error {
	return s.history.Clear(ctx, sessionID)
}
