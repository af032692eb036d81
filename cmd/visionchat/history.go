package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/sipeed/visionchat/pkg/chat"
	"github.com/sipeed/visionchat/pkg/history"
)

func newHistoryCommand(opts *rootOptions) *cobra.Command {
	var (
		sessionID    string
		clearSession bool
	)

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show or clear a stored conversation",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := history.Open(opts.cfg)
			if err != nil {
				return err
			}
			defer store.Close()

			if clearSession {
				if err := store.Clear(cmd.Context(), sessionID); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Cleared session %q\n", sessionID)
				return nil
			}

			msgs, err := store.Messages(cmd.Context(), sessionID)
			if err != nil {
				return err
			}
			if len(msgs) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No messages.")
				return nil
			}
			for _, m := range msgs {
				fmt.Fprintf(cmd.OutOrStdout(), "[%s] %s: %s\n", m.CreatedAt.Local().Format("2006-01-02 15:04"), m.Role, m.Content)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&sessionID, "session", "s", chat.DefaultSessionID, "conversation id")
	cmd.Flags().BoolVar(&clearSession, "clear", false, "delete the conversation")
	return cmd
}
