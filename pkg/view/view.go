// Package view turns chat state into HTML fragments. All user and model text
// passes through html/template or the markdown renderer; nothing is spliced
// into markup by hand.
package view

import (
	"bytes"
	"html/template"
	"io"
	"strings"

	"github.com/gomarkdown/markdown"
	mdhtml "github.com/gomarkdown/markdown/html"
	"github.com/gomarkdown/markdown/parser"

	"github.com/sipeed/visionchat/pkg/media"
)

const (
	// Cursor trails the assistant text while fragments are still arriving.
	Cursor      = "▌"
	PendingText = "⏳ Generating response..."
	HeroTitle   = "AI Chat & Image Assistant"
	HeroLead    = "Ask questions, upload images, and get instant insights."
)

type Kind string

const (
	KindUser      Kind = "user"
	KindAssistant Kind = "assistant"
	KindPending   Kind = "pending"
	KindError     Kind = "error"
	KindWarning   Kind = "warning"
)

type Bubble struct {
	Kind      Kind
	Text      string
	Streaming bool
}

func UserBubble(text string) Bubble { return Bubble{Kind: KindUser, Text: text} }
func Pending() Bubble               { return Bubble{Kind: KindPending, Text: PendingText} }
func Final(text string) Bubble      { return Bubble{Kind: KindAssistant, Text: text} }
func ErrorBubble(msg string) Bubble { return Bubble{Kind: KindError, Text: msg} }
func Warning(msg string) Bubble     { return Bubble{Kind: KindWarning, Text: msg} }

// Streaming is an in-progress assistant bubble.
func Streaming(text string) Bubble {
	return Bubble{Kind: KindAssistant, Text: text, Streaming: true}
}

// Display is the text as shown, including the cursor while streaming.
func (b Bubble) Display() string {
	if b.Streaming {
		return b.Text + Cursor
	}
	return b.Text
}

func (b Bubble) HTML() template.HTML {
	if b.Kind == KindWarning && b.Text == "" {
		return ""
	}
	var buf bytes.Buffer
	if err := templates.ExecuteTemplate(&buf, "bubble", b); err != nil {
		return template.HTML(template.HTMLEscapeString(b.Display()))
	}
	return template.HTML(buf.String())
}

// Body is the inner markup of the bubble. Assistant text is Markdown with raw
// HTML dropped; every other kind is plain escaped text.
func (b Bubble) Body() template.HTML {
	if b.Kind == KindAssistant {
		return RenderMarkdown(b.Display())
	}
	return template.HTML(template.HTMLEscapeString(b.Display()))
}

func (b Bubble) Class() string {
	switch b.Kind {
	case KindUser:
		return "user-bubble"
	case KindWarning:
		return "warning-box"
	case KindError:
		return "ai-bubble error"
	default:
		return "ai-bubble"
	}
}

func RenderMarkdown(src string) template.HTML {
	p := parser.NewWithExtensions(parser.CommonExtensions)
	r := mdhtml.NewRenderer(mdhtml.RendererOptions{
		Flags: mdhtml.CommonFlags | mdhtml.SkipHTML | mdhtml.Safelink,
	})
	out := markdown.ToHTML([]byte(src), p, r)
	return template.HTML(strings.TrimSpace(string(out)))
}

type Hero struct {
	ImageSrc string
	Uploaded bool
	Title    string
	Lead     string
}

// NewHero uses the uploaded image, inlined as a data URI under its own MIME
// type, or the fallback URL when nothing was uploaded.
func NewHero(img *media.Image, fallbackURL string) Hero {
	h := Hero{ImageSrc: fallbackURL, Title: HeroTitle, Lead: HeroLead}
	if img != nil && len(img.Data) > 0 {
		h.ImageSrc = img.DataURI()
		h.Uploaded = true
	}
	return h
}

// Src marks data URIs built from a sniffed upload as safe; html/template
// would otherwise replace them.
func (h Hero) Src() any {
	if h.Uploaded {
		return template.URL(h.ImageSrc)
	}
	return h.ImageSrc
}

func (h Hero) HTML() template.HTML {
	var buf bytes.Buffer
	if err := templates.ExecuteTemplate(&buf, "hero", h); err != nil {
		return ""
	}
	return template.HTML(buf.String())
}

type PageData struct {
	Models        []string
	SelectedModel string
	Hero          Hero
	Warning       Bubble
	Accept        string
	AuthEnabled   bool
}

func RenderPage(w io.Writer, data PageData) error {
	if data.Accept == "" {
		data.Accept = media.AcceptAttr
	}
	return templates.ExecuteTemplate(w, "page", data)
}

func RenderLogin(w io.Writer, errMsg string) error {
	return templates.ExecuteTemplate(w, "login", struct{ Error string }{errMsg})
}
