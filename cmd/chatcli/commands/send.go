package commands

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

func newSendCommand(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "send <message>",
		Short: "Send one text message",
		Long: `Send one text message and print the assistant's reply.

Example:
  chatcli send "What services do you offer?"
  chatcli send -l ta "வணக்கம்"`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := newSession(opts)
			if err != nil {
				return err
			}
			defer s.close()

			reply, err := s.sendText(cmd.Context(), strings.Join(args, " "))
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), reply.Content)
			return nil
		},
	}
}
