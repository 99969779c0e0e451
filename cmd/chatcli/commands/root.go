package commands

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/vmkdxailabs/chatwidget/usecase"
)

// options holds the flags shared by every command
type options struct {
	apiURL   string
	language string
	audioOut string
	mimeType string
	timeout  time.Duration
	verbose  bool
}

// NewRootCommand builds the chatcli command tree
func NewRootCommand() *cobra.Command {
	opts := &options{}

	rootCmd := &cobra.Command{
		Use:   "chatcli",
		Short: "Terminal client for the chat assistant",
		Long: `chatcli talks to the chat assistant the way the website widget does.

Text and voice turns go through the same conversation flow: history is sent
with every turn, voice messages are transcribed, and captured leads are
relayed through EmailJS when it is configured.

Audio replies are downloaded into --audio-out when set.`,
		SilenceUsage: true,
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&opts.apiURL, "api", "", "assistant API base URL (default $ASSISTANT_API_BASE_URL)")
	flags.StringVarP(&opts.language, "language", "l", "", "language: auto, ta, en or hi")
	flags.StringVarP(&opts.audioOut, "audio-out", "o", "", "directory to save audio replies into")
	flags.StringVar(&opts.mimeType, "mime", usecase.PreferredMimeType, "encoding of voice input files")
	flags.DurationVar(&opts.timeout, "timeout", 60*time.Second, "HTTP timeout for assistant calls")
	flags.BoolVarP(&opts.verbose, "verbose", "v", false, "enable development logging")

	rootCmd.AddCommand(newSendCommand(opts))
	rootCmd.AddCommand(newVoiceCommand(opts))
	rootCmd.AddCommand(newChatCommand(opts))
	return rootCmd
}

// Execute runs the root command with os.Args until it finishes or the
// process is interrupted.
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return NewRootCommand().ExecuteContext(ctx)
}
