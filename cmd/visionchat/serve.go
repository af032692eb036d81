package main

import (
	"context"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/sipeed/visionchat/pkg/channels"
	"github.com/sipeed/visionchat/pkg/chat"
	"github.com/sipeed/visionchat/pkg/history"
	"github.com/sipeed/visionchat/pkg/logger"
)

const shutdownTimeout = 10 * time.Second

func newServeCommand(opts *rootOptions) *cobra.Command {
	var host string
	var port int

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the web chat UI",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := opts.cfg
			if cmd.Flags().Changed("host") {
				cfg.Channels.WebChat.Host = host
			}
			if cmd.Flags().Changed("port") {
				cfg.Channels.WebChat.Port = port
			}

			store, err := history.Open(cfg)
			if err != nil {
				return err
			}
			defer store.Close()

			svc := chat.NewService(cfg, store, nil)
			webchat, err := channels.NewWebChatChannel(cfg, svc)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			ln, err := webchat.Listen()
			if err != nil {
				return err
			}
			if err := runWebChat(ctx, webchat, ln); err != nil {
				return err
			}
			logger.Info("Stopped")
			return nil
		},
	}

	cmd.Flags().StringVar(&host, "host", "", "listen host (overrides config)")
	cmd.Flags().IntVarP(&port, "port", "p", 0, "listen port (overrides config)")
	return cmd
}

// runWebChat serves on ln until ctx ends or the server fails. Either way the
// server is shut down before it returns.
func runWebChat(ctx context.Context, webchat *channels.WebChatChannel, ln net.Listener) error {
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return webchat.Serve(gctx, ln)
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("Shutting down...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return webchat.Stop(shutdownCtx)
	})
	return g.Wait()
}
