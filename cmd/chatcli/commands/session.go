package commands

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/vmkdxailabs/chatwidget/adapters/assistant"
	"github.com/vmkdxailabs/chatwidget/adapters/emailjs"
	"github.com/vmkdxailabs/chatwidget/adapters/microphone"
	"github.com/vmkdxailabs/chatwidget/adapters/player"
	"github.com/vmkdxailabs/chatwidget/domain/entities"
	"github.com/vmkdxailabs/chatwidget/internal/config"
	"github.com/vmkdxailabs/chatwidget/usecase"
)

// session is one terminal conversation backed by a widget
type session struct {
	widget  *usecase.Widget
	mic     *microphone.FileMicrophone
	changes chan struct{}
	logger  *zap.Logger
}

func newSession(opts *options) (*session, error) {
	logger := zap.NewNop()
	if opts.verbose {
		dev, err := zap.NewDevelopment()
		if err != nil {
			return nil, fmt.Errorf("failed to create logger: %w", err)
		}
		logger = dev
	}
	config.LoadDotEnv(logger)

	assistantConfig := assistant.NewConfigFromEnv()
	if opts.apiURL != "" {
		assistantConfig.BaseURL = opts.apiURL
	}
	if opts.timeout > 0 {
		assistantConfig.Timeout = opts.timeout
	}
	client, err := assistant.NewClient(assistantConfig, logger)
	if err != nil {
		return nil, err
	}

	source, err := player.NewHTTPSource(client.BaseURL(), opts.timeout, audioSink(opts.audioOut), logger)
	if err != nil {
		return nil, err
	}

	mic := microphone.NewFileMicrophone("", opts.mimeType, 0, logger)
	widget := usecase.NewWidget(
		usecase.NewCaptureController(mic, usecase.DefaultCaptureOptions(), nil, logger),
		usecase.NewPlaybackController(source, nil, logger),
		usecase.NewConversationService(client, emailjs.NewNotifier(emailjs.NewConfigFromEnv(), logger), usecase.ConversationOptions{}, nil, logger),
		logger,
	)

	s := &session{
		widget:  widget,
		mic:     mic,
		changes: make(chan struct{}, 1),
		logger:  logger,
	}
	widget.SetChangeHook(func(entities.WidgetSnapshot) {
		select {
		case s.changes <- struct{}{}:
		default:
		}
	})

	if opts.language != "" {
		if err := widget.SetLanguage(opts.language); err != nil {
			widget.Close()
			return nil, fmt.Errorf("%s: %w", opts.language, err)
		}
	}
	return s, nil
}

// audioSink saves replies under dir, or discards them when dir is empty
func audioSink(dir string) player.SinkFactory {
	return func(ref string) (io.WriteCloser, error) {
		if dir == "" {
			return nopWriteCloser{io.Discard}, nil
		}
		name := path.Base(ref)
		if name == "." || name == "/" {
			name = "reply.mp3"
		}
		return os.Create(filepath.Join(dir, name))
	}
}

type nopWriteCloser struct {
	io.Writer
}

func (nopWriteCloser) Close() error { return nil }

// sendText runs a text turn and returns the assistant's answer
func (s *session) sendText(ctx context.Context, text string) (entities.ChatMessage, error) {
	if err := s.widget.SendText(ctx, text); err != nil {
		return entities.ChatMessage{}, err
	}
	return s.lastReply()
}

// sendVoice replays file as a recording and returns the transcript and the
// answer.
func (s *session) sendVoice(ctx context.Context, file string) (entities.ChatMessage, entities.ChatMessage, error) {
	s.mic.SetPath(file)
	if err := s.widget.StartRecording(ctx); err != nil {
		return entities.ChatMessage{}, entities.ChatMessage{}, err
	}
	if err := s.widget.StopRecording(ctx); err != nil {
		return entities.ChatMessage{}, entities.ChatMessage{}, err
	}

	messages := s.widget.Snapshot().Conversation.Messages
	if len(messages) < 2 {
		return entities.ChatMessage{}, entities.ChatMessage{}, errors.New("no audio captured from file")
	}
	return messages[len(messages)-2], messages[len(messages)-1], nil
}

// play plays ref and blocks until it ends or fails
func (s *session) play(ctx context.Context, ref string) error {
	s.widget.PlayAudio(ctx, ref)
	for {
		if s.widget.Snapshot().Playback.ResourceRef == "" {
			return nil
		}
		select {
		case <-s.changes:
		case <-ctx.Done():
			s.widget.StopAudio()
			return ctx.Err()
		}
	}
}

// lastAudioReply returns the most recent audio reply reference
func (s *session) lastAudioReply() string {
	messages := s.widget.Snapshot().Conversation.Messages
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].AudioReplyRef != "" {
			return messages[i].AudioReplyRef
		}
	}
	return ""
}

func (s *session) lastReply() (entities.ChatMessage, error) {
	last, ok := s.widget.Snapshot().Conversation.LastMessage()
	if !ok || last.Role != entities.MessageRoleAssistant {
		return entities.ChatMessage{}, errors.New("no reply received")
	}
	return last, nil
}

// close releases devices and waits for lead notifications
func (s *session) close() {
	s.widget.Close()
	s.widget.Wait()
	s.logger.Sync()
}
