package usecase

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"

	"github.com/vmkdxailabs/chatwidget/domain"
	"github.com/vmkdxailabs/chatwidget/domain/entities"
)

type widgetFixture struct {
	widget    *Widget
	mic       *fakeMicrophone
	source    *fakeSource
	assistant *fakeAssistant
}

func newWidgetFixture(t *testing.T, mic *fakeMicrophone, opts CaptureOptions) *widgetFixture {
	t.Helper()
	logger := zaptest.NewLogger(t)
	assistant := &fakeAssistant{}
	source := &fakeSource{}

	w := NewWidget(
		NewCaptureController(mic, opts, nil, logger),
		NewPlaybackController(source, nil, logger),
		NewConversationService(assistant, nil, ConversationOptions{}, nil, logger),
		logger,
	)
	t.Cleanup(w.Close)
	return &widgetFixture{widget: w, mic: mic, source: source, assistant: assistant}
}

func TestWidgetCaptureFailureBecomesMessage(t *testing.T) {
	mic := &fakeMicrophone{openErr: domain.NewError(domain.KindPermissionDenied, "", nil)}
	f := newWidgetFixture(t, mic, testCaptureOptions())

	err := f.widget.StartRecording(context.Background())
	if !errors.Is(err, domain.ErrPermissionDenied) {
		t.Fatalf("Expected permission denied, got %v", err)
	}

	snap := f.widget.Snapshot()
	if len(snap.Conversation.Messages) != 1 {
		t.Fatalf("Expected 1 message, got %d", len(snap.Conversation.Messages))
	}
	if got := snap.Conversation.Messages[0].Content; got != domain.MessagePermissionDenied {
		t.Errorf("Expected permission text, got %q", got)
	}
	if snap.Recording.IsRecording {
		t.Error("Denied capture should not be recording")
	}
}

func TestWidgetRecordAndSendVoice(t *testing.T) {
	rec := newFakeRecorder(true)
	f := newWidgetFixture(t, &fakeMicrophone{supportsOpus: true, recorder: rec}, testCaptureOptions())
	ctx := context.Background()

	f.widget.PlayAudio(ctx, "/audio/old.mp3")
	waitFor(t, time.Second, func() bool { return f.widget.Snapshot().Playback.IsPlaying("/audio/old.mp3") })

	if err := f.widget.StartRecording(ctx); err != nil {
		t.Fatalf("StartRecording failed: %v", err)
	}
	rec.data <- []byte("voice")

	if err := f.widget.StopRecording(ctx); err != nil {
		t.Fatalf("StopRecording failed: %v", err)
	}

	calls := f.assistant.voiceRequests()
	if len(calls) != 1 {
		t.Fatalf("Expected one voice upload, got %d", len(calls))
	}
	if string(calls[0].audio.Data) != "voice" || calls[0].audio.MimeType != PreferredMimeType {
		t.Errorf("Unexpected upload %+v", calls[0].audio)
	}
	if f.widget.Snapshot().Playback.ResourceRef != "" {
		t.Error("Playback should be stopped before a voice turn")
	}
}

func TestWidgetStopWithoutAudioSendsNothing(t *testing.T) {
	f := newWidgetFixture(t, &fakeMicrophone{recorder: newFakeRecorder(true)}, testCaptureOptions())
	ctx := context.Background()

	if err := f.widget.StartRecording(ctx); err != nil {
		t.Fatalf("StartRecording failed: %v", err)
	}
	if err := f.widget.StopRecording(ctx); err != nil {
		t.Fatalf("StopRecording failed: %v", err)
	}
	if n := len(f.assistant.voiceRequests()); n != 0 {
		t.Errorf("Expected no upload, got %d", n)
	}
}

func TestWidgetSendTextStopsPlayback(t *testing.T) {
	f := newWidgetFixture(t, &fakeMicrophone{}, testCaptureOptions())
	ctx := context.Background()

	f.widget.PlayAudio(ctx, "a")
	waitFor(t, time.Second, func() bool { return f.widget.Snapshot().Playback.IsPlaying("a") })

	if err := f.widget.SendText(ctx, "   "); !errors.Is(err, domain.ErrEmptyMessage) {
		t.Errorf("Expected ErrEmptyMessage, got %v", err)
	}
	if !f.widget.Snapshot().Playback.IsPlaying("a") {
		t.Error("Rejected input should not stop playback")
	}

	if err := f.widget.SendText(ctx, "hello"); err != nil {
		t.Fatalf("SendText failed: %v", err)
	}
	if f.widget.Snapshot().Playback.ResourceRef != "" {
		t.Error("Playback should be stopped before a text turn")
	}
	if n := len(f.widget.Snapshot().Conversation.Messages); n != 2 {
		t.Errorf("Expected 2 messages, got %d", n)
	}
}

func TestWidgetAutoStopDispatchesVoiceTurn(t *testing.T) {
	rec := newFakeRecorder(true)
	opts := testCaptureOptions()
	opts.MaxDuration = 50 * time.Millisecond
	f := newWidgetFixture(t, &fakeMicrophone{recorder: rec}, opts)

	if err := f.widget.StartRecording(context.Background()); err != nil {
		t.Fatalf("StartRecording failed: %v", err)
	}
	rec.data <- []byte("thirty seconds")

	waitFor(t, 2*time.Second, func() bool { return len(f.assistant.voiceRequests()) == 1 })
	waitFor(t, time.Second, func() bool { return len(f.widget.Snapshot().Conversation.Messages) == 2 })
}

func TestWidgetPublishesSnapshots(t *testing.T) {
	f := newWidgetFixture(t, &fakeMicrophone{}, testCaptureOptions())

	var count atomic.Int32
	var last atomic.Value
	f.widget.SetChangeHook(func(s entities.WidgetSnapshot) {
		count.Add(1)
		last.Store(s)
	})

	if err := f.widget.SetLanguage("en"); err != nil {
		t.Fatalf("SetLanguage failed: %v", err)
	}
	f.widget.Clear()

	if count.Load() < 2 {
		t.Errorf("Expected at least 2 published snapshots, got %d", count.Load())
	}
	snap := last.Load().(entities.WidgetSnapshot)
	if snap.Conversation.Language != entities.LanguageEnglish {
		t.Errorf("Expected en in published snapshot, got %s", snap.Conversation.Language)
	}
}

func TestWidgetCloseTearsDown(t *testing.T) {
	rec := newFakeRecorder(false)
	f := newWidgetFixture(t, &fakeMicrophone{recorder: rec}, testCaptureOptions())
	ctx := context.Background()

	if err := f.widget.StartRecording(ctx); err != nil {
		t.Fatalf("StartRecording failed: %v", err)
	}
	f.widget.PlayAudio(ctx, "a")
	waitFor(t, time.Second, func() bool { return f.widget.Snapshot().Playback.IsPlaying("a") })

	f.widget.Close()
	f.widget.Close()

	snap := f.widget.Snapshot()
	if snap.Recording.IsRecording || snap.Playback.ResourceRef != "" {
		t.Errorf("Expected everything released, got %+v", snap)
	}
	if _, closed := rec.counts(); closed != 1 {
		t.Errorf("Expected microphone released once, got %d", closed)
	}
	if _, _, _, closed := f.source.element(0).stats(); closed != 1 {
		t.Errorf("Expected audio element released once, got %d", closed)
	}
}

func TestWidgetRefusesRecordingWhileAwaitingReply(t *testing.T) {
	mic := &fakeMicrophone{recorder: newFakeRecorder(true)}
	f := newWidgetFixture(t, mic, testCaptureOptions())
	f.assistant.gate = make(chan struct{})
	f.assistant.entered = make(chan struct{}, 1)

	done := make(chan error, 1)
	go func() { done <- f.widget.SendText(context.Background(), "pending") }()
	<-f.assistant.entered

	if err := f.widget.StartRecording(context.Background()); !errors.Is(err, domain.ErrTurnInFlight) {
		t.Errorf("Expected ErrTurnInFlight, got %v", err)
	}
	if f.widget.Snapshot().Recording.IsRecording {
		t.Error("Recording should not start while a reply is pending")
	}

	close(f.assistant.gate)
	if err := <-done; err != nil {
		t.Fatalf("SendText failed: %v", err)
	}
}

func TestWidgetAutoStopDuringTurnIsReported(t *testing.T) {
	rec := newFakeRecorder(true)
	opts := testCaptureOptions()
	opts.MaxDuration = 200 * time.Millisecond
	f := newWidgetFixture(t, &fakeMicrophone{recorder: rec}, opts)
	f.assistant.gate = make(chan struct{})
	f.assistant.entered = make(chan struct{}, 1)

	if err := f.widget.StartRecording(context.Background()); err != nil {
		t.Fatalf("StartRecording failed: %v", err)
	}
	rec.data <- []byte("too long")

	done := make(chan error, 1)
	go func() { done <- f.widget.SendText(context.Background(), "typed meanwhile") }()
	<-f.assistant.entered

	waitFor(t, 2*time.Second, func() bool {
		for _, m := range f.widget.Snapshot().Conversation.Messages {
			if m.Content == domain.MessageVoiceFailed {
				return true
			}
		}
		return false
	})
	if n := len(f.assistant.voiceRequests()); n != 0 {
		t.Errorf("Expected no voice request during the text turn, got %d", n)
	}

	close(f.assistant.gate)
	if err := <-done; err != nil {
		t.Fatalf("SendText failed: %v", err)
	}
}
