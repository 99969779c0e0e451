package usecase

import (
	"context"
	"errors"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/vmkdxailabs/chatwidget/domain"
	"github.com/vmkdxailabs/chatwidget/domain/entities"
)

// Widget composes capture, playback and conversation for one render layer
type Widget struct {
	capture      *CaptureController
	playback     *PlaybackController
	conversation *ConversationService
	logger       *zap.Logger

	ctx    context.Context
	cancel context.CancelFunc
	tasks  sync.WaitGroup

	mu       sync.Mutex
	onChange func(entities.WidgetSnapshot)
	closed   bool
}

// NewWidget wires the controllers together. The widget owns them from here
// on and releases them in Close.
func NewWidget(
	capture *CaptureController,
	playback *PlaybackController,
	conversation *ConversationService,
	logger *zap.Logger,
) *Widget {
	ctx, cancel := context.WithCancel(context.Background())
	w := &Widget{
		capture:      capture,
		playback:     playback,
		conversation: conversation,
		logger:       logger,
		ctx:          ctx,
		cancel:       cancel,
	}

	capture.SetChangeHook(func(entities.RecordingSnapshot) { w.publish() })
	capture.SetAutoStopHook(w.onAutoStop)
	capture.SetErrorHook(conversation.ReportFailure)
	playback.SetChangeHook(func(entities.PlaybackSnapshot) { w.publish() })
	conversation.SetChangeHook(func(entities.ConversationSnapshot) { w.publish() })

	return w
}

// SetChangeHook registers fn to receive the full widget state after any change
func (w *Widget) SetChangeHook(fn func(entities.WidgetSnapshot)) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.onChange = fn
}

// StartRecording begins a voice capture. It is refused while a reply is
// pending, since the recording could not be sent. Device failures are also
// reported in the conversation.
func (w *Widget) StartRecording(ctx context.Context) error {
	if w.conversation.Snapshot().IsAwaitingReply {
		return domain.ErrTurnInFlight
	}
	err := w.capture.Start(ctx)
	if err == nil {
		return nil
	}
	if errors.Is(err, domain.ErrAlreadyRecording) || errors.Is(err, ErrCaptureCancelled) {
		return err
	}
	w.conversation.ReportFailure(err)
	return err
}

// StopRecording finishes the capture and sends it as a voice turn
func (w *Widget) StopRecording(ctx context.Context) error {
	rec := w.capture.Stop(ctx)
	if rec == nil {
		w.logger.Debug("No audio captured, nothing to send")
		return nil
	}
	w.playback.Stop()
	return w.conversation.SendVoice(ctx, rec.Upload())
}

// CancelRecording discards the capture in progress
func (w *Widget) CancelRecording() {
	w.capture.Cancel()
}

// SendText sends a text turn, stopping any audio reply first
func (w *Widget) SendText(ctx context.Context, text string) error {
	if strings.TrimSpace(text) == "" {
		return domain.ErrEmptyMessage
	}
	if w.conversation.Snapshot().IsAwaitingReply {
		return domain.ErrTurnInFlight
	}
	w.playback.Stop()
	return w.conversation.SendText(ctx, text)
}

// PlayAudio plays an audio reply from the start
func (w *Widget) PlayAudio(ctx context.Context, ref string) {
	w.playback.Play(ctx, ref)
}

// ToggleAudio pauses ref when playing, otherwise plays it from the start
func (w *Widget) ToggleAudio(ctx context.Context, ref string) {
	w.playback.Toggle(ctx, ref)
}

func (w *Widget) PauseAudio() {
	w.playback.Pause()
}

func (w *Widget) StopAudio() {
	w.playback.Stop()
}

// SetLanguage changes the language of the next turn
func (w *Widget) SetLanguage(lang string) error {
	return w.conversation.SetLanguage(lang)
}

// Clear starts a fresh conversation
func (w *Widget) Clear() {
	w.conversation.ClearConversation()
}

// Snapshot aggregates the state of every component
func (w *Widget) Snapshot() entities.WidgetSnapshot {
	return entities.WidgetSnapshot{
		Conversation: w.conversation.Snapshot(),
		Recording:    w.capture.Snapshot(),
		Playback:     w.playback.Snapshot(),
	}
}

// onAutoStop sends a recording that hit the maximum duration
func (w *Widget) onAutoStop() {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return
	}
	w.tasks.Add(1)
	w.mu.Unlock()

	go func() {
		defer w.tasks.Done()
		err := w.StopRecording(w.ctx)
		if err == nil || w.ctx.Err() != nil {
			return
		}
		w.logger.Warn("Failed to send auto-stopped recording", zap.Error(err))
		w.conversation.ReportFailure(domain.NewError(domain.KindRequestFailed, domain.MessageVoiceFailed, err))
	}()
}

// Close cancels capture, stops playback and waits for background sends
func (w *Widget) Close() {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return
	}
	w.closed = true
	w.onChange = nil
	w.mu.Unlock()

	w.cancel()
	w.capture.Cancel()
	w.playback.Close()
	w.tasks.Wait()
}

// Wait blocks until detached lead notifications finish
func (w *Widget) Wait() {
	w.conversation.Wait()
}

func (w *Widget) publish() {
	w.mu.Lock()
	fn := w.onChange
	w.mu.Unlock()
	if fn != nil {
		fn(w.Snapshot())
	}
}
