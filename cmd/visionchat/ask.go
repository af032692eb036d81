package main

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/sipeed/visionchat/pkg/chat"
	"github.com/sipeed/visionchat/pkg/history"
	"github.com/sipeed/visionchat/pkg/media"
	"github.com/sipeed/visionchat/pkg/view"
)

func newAskCommand(opts *rootOptions) *cobra.Command {
	var (
		apiKey    string
		model     string
		imagePath string
		sessionID string
	)

	cmd := &cobra.Command{
		Use:   "ask [question]",
		Short: "Ask a question, optionally about an image, from the terminal",
		Args:  cobra.ArbitraryArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := opts.cfg
			question := strings.TrimSpace(strings.Join(args, " "))

			key, err := resolveAPIKey(apiKey, cmd.InOrStdin(), cmd.ErrOrStderr())
			if err != nil {
				return err
			}

			sub := chat.Submission{APIKey: key, Model: model, Text: question}
			if imagePath != "" {
				f, err := os.Open(imagePath)
				if err != nil {
					return err
				}
				img, err := media.ReadUpload(f, "", cfg.Channels.WebChat.MaxUploadBytes)
				f.Close()
				if err != nil {
					return fmt.Errorf("%s: %w", imagePath, err)
				}
				sub.Image = img
			}
			if sub.Empty() {
				return fmt.Errorf("nothing to ask: pass a question or --image")
			}

			store, err := history.Open(cfg)
			if err != nil {
				return err
			}
			defer store.Close()

			svc := chat.NewService(cfg, store, nil)
			out, err := svc.Handle(cmd.Context(), sessionID, sub, newTerminalDisplay(cmd.OutOrStdout(), cmd.ErrOrStderr()))
			if err != nil {
				return err
			}
			return out.Err
		},
	}

	cmd.Flags().StringVarP(&apiKey, "api-key", "k", "", "Google API key (default $VISIONCHAT_API_KEY, else prompt)")
	cmd.Flags().StringVarP(&model, "model", "m", "", "model name (default from config)")
	cmd.Flags().StringVarP(&imagePath, "image", "i", "", "png, jpeg or webp image to ask about")
	cmd.Flags().StringVarP(&sessionID, "session", "s", chat.DefaultSessionID, "conversation id")
	return cmd
}

// resolveAPIKey prefers the flag, then the environment, then a masked prompt
// when stdin is a terminal.
func resolveAPIKey(flag string, in io.Reader, prompt io.Writer) (string, error) {
	if key := strings.TrimSpace(flag); key != "" {
		return key, nil
	}
	if key := strings.TrimSpace(os.Getenv("VISIONCHAT_API_KEY")); key != "" {
		return key, nil
	}
	f, ok := in.(*os.File)
	if !ok || !term.IsTerminal(int(f.Fd())) {
		return "", nil
	}
	fmt.Fprint(prompt, "Enter your Google API Key: ")
	b, err := term.ReadPassword(int(f.Fd()))
	fmt.Fprintln(prompt)
	if err != nil {
		return "", fmt.Errorf("reading API key: %w", err)
	}
	return strings.TrimSpace(string(b)), nil
}

// terminalDisplay prints only the text each redraw adds, so a streamed answer
// appears incrementally.
type terminalDisplay struct {
	mu      sync.Mutex
	out     *bufio.Writer
	errOut  io.Writer
	printed string
}

func newTerminalDisplay(out, errOut io.Writer) *terminalDisplay {
	return &terminalDisplay{out: bufio.NewWriter(out), errOut: errOut}
}

func (d *terminalDisplay) Hero(view.Hero) error { return nil }

func (d *terminalDisplay) Warning(b view.Bubble) error {
	if b.Text == "" {
		return nil
	}
	_, err := fmt.Fprintln(d.errOut, b.Text)
	return err
}

func (d *terminalDisplay) UserTurn(view.Bubble) error { return nil }

func (d *terminalDisplay) Response(b view.Bubble) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	switch b.Kind {
	case view.KindPending:
		return nil
	case view.KindError:
		if d.printed != "" {
			d.out.WriteString("\n")
			d.out.Flush()
		}
		_, err := fmt.Fprintln(d.errOut, b.Text)
		return err
	}

	if strings.HasPrefix(b.Text, d.printed) {
		d.out.WriteString(b.Text[len(d.printed):])
	} else {
		d.out.WriteString("\n" + b.Text)
	}
	d.printed = b.Text
	if !b.Streaming {
		d.out.WriteString("\n")
	}
	return d.out.Flush()
}
