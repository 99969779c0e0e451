package commands

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/vmkdxailabs/chatwidget/domain/entities"
)

const chatHelp = `Commands:
  /voice <file>   send an audio file as a voice message
  /play           fetch the last audio reply
  /lang <code>    switch language (auto, ta, en, hi)
  /clear          start a new conversation
  /quit           leave`

func newChatCommand(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "chat",
		Short: "Interactive conversation",
		Long: `Start an interactive conversation. Every line is sent as a text
message; lines starting with / are commands.

` + chatHelp,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := newSession(opts)
			if err != nil {
				return err
			}
			defer s.close()

			return runChat(cmd, s)
		},
	}
}

func runChat(cmd *cobra.Command, s *session) error {
	ctx := cmd.Context()
	out := cmd.OutOrStdout()
	scanner := bufio.NewScanner(cmd.InOrStdin())

	fmt.Fprintln(out, "Type a message, or /help for commands.")
	for {
		fmt.Fprint(out, "> ")
		if !scanner.Scan() {
			fmt.Fprintln(out)
			return scanner.Err()
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		if !strings.HasPrefix(line, "/") {
			reply, err := s.sendText(ctx, line)
			if err != nil {
				fmt.Fprintf(out, "! %v\n", err)
				continue
			}
			printReply(out, reply)
			continue
		}

		command, arg, _ := strings.Cut(line, " ")
		arg = strings.TrimSpace(arg)
		switch command {
		case "/quit", "/exit":
			return nil
		case "/help":
			fmt.Fprintln(out, chatHelp)
		case "/clear":
			s.widget.Clear()
			fmt.Fprintln(out, "Conversation cleared.")
		case "/lang":
			if err := s.widget.SetLanguage(arg); err != nil {
				fmt.Fprintf(out, "! %s: %v\n", arg, err)
				continue
			}
			lang, _ := entities.ParseLanguage(arg)
			fmt.Fprintf(out, "Language set to %s.\n", lang.Label())
		case "/voice":
			if arg == "" {
				fmt.Fprintln(out, "! usage: /voice <file>")
				continue
			}
			transcript, reply, err := s.sendVoice(ctx, arg)
			if err != nil {
				fmt.Fprintf(out, "! %v\n", voiceError(s, err))
				continue
			}
			fmt.Fprintf(out, "(you said) %s\n", transcript.Content)
			printReply(out, reply)
		case "/play":
			ref := s.lastAudioReply()
			if ref == "" {
				fmt.Fprintln(out, "! no audio reply yet")
				continue
			}
			if err := s.play(ctx, ref); err != nil {
				return err
			}
		default:
			fmt.Fprintf(out, "! unknown command %s\n", command)
		}
	}
}

// voiceError prefers the message already shown in the conversation
func voiceError(s *session, err error) error {
	if last, ok := s.widget.Snapshot().Conversation.LastMessage(); ok && last.Role == entities.MessageRoleAssistant {
		return errors.New(last.Content)
	}
	return err
}

func printReply(out io.Writer, reply entities.ChatMessage) {
	fmt.Fprintln(out, reply.Content)
	if reply.AudioReplyRef != "" {
		fmt.Fprintf(out, "  [audio reply: %s, /play to fetch]\n", reply.AudioReplyRef)
	}
}
