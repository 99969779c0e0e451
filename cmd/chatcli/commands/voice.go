package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newVoiceCommand(opts *options) *cobra.Command {
	var play bool

	cmd := &cobra.Command{
		Use:   "voice <file>",
		Short: "Send an audio file as a voice message",
		Long: `Send a recorded audio file as a voice message.

The file is replayed as if it were captured from a microphone, so it goes
through the same capture and upload path as the widget. The encoding is
taken from --mime.

Example:
  chatcli voice question.webm
  chatcli voice --mime audio/webm --play -o ./replies question.webm`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := newSession(opts)
			if err != nil {
				return err
			}
			defer s.close()

			transcript, reply, err := s.sendVoice(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "You: %s\n", transcript.Content)
			fmt.Fprintf(out, "Assistant: %s\n", reply.Content)

			if play && reply.AudioReplyRef != "" {
				fmt.Fprintf(out, "Playing %s\n", reply.AudioReplyRef)
				return s.play(cmd.Context(), reply.AudioReplyRef)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&play, "play", false, "fetch the audio reply")
	return cmd
}
