package usecase

import (
	"context"
	"sync"

	"github.com/vmkdxailabs/chatwidget/domain"
	"github.com/vmkdxailabs/chatwidget/domain/entities"
	"github.com/vmkdxailabs/chatwidget/domain/repositories"
)

// fakeRecorder emits whatever the test feeds it. When confirmStop is set,
// Stop closes the data channel like a well-behaved device.
type fakeRecorder struct {
	data        chan []byte
	errs        chan error
	confirmStop bool

	mu      sync.Mutex
	stopped int
	closed  int
	once    sync.Once
}

func newFakeRecorder(confirmStop bool) *fakeRecorder {
	return &fakeRecorder{
		data:        make(chan []byte, 64),
		errs:        make(chan error, 1),
		confirmStop: confirmStop,
	}
}

func (r *fakeRecorder) Data() <-chan []byte { return r.data }
func (r *fakeRecorder) Errors() <-chan error { return r.errs }

func (r *fakeRecorder) Stop() {
	r.mu.Lock()
	r.stopped++
	r.mu.Unlock()
	if r.confirmStop {
		r.once.Do(func() { close(r.data) })
	}
}

func (r *fakeRecorder) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed++
	return nil
}

func (r *fakeRecorder) counts() (stopped, closed int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.stopped, r.closed
}

type fakeMicrophone struct {
	supportsOpus bool
	openErr      error
	recorder     *fakeRecorder
	block        chan struct{}

	mu   sync.Mutex
	opts []repositories.RecorderOptions
}

func (m *fakeMicrophone) IsTypeSupported(mimeType string) bool {
	if mimeType == PreferredMimeType {
		return m.supportsOpus
	}
	return mimeType == FallbackMimeType
}

func (m *fakeMicrophone) Open(ctx context.Context, opts repositories.RecorderOptions) (repositories.Recorder, error) {
	m.mu.Lock()
	m.opts = append(m.opts, opts)
	m.mu.Unlock()
	if m.block != nil {
		select {
		case <-m.block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if m.openErr != nil {
		return nil, m.openErr
	}
	return m.recorder, nil
}

func (m *fakeMicrophone) lastOptions() repositories.RecorderOptions {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.opts[len(m.opts)-1]
}

type chatResult struct {
	resp *domain.ChatResponse
	err  error
}

type voiceResult struct {
	resp *domain.VoiceResponse
	err  error
}

// fakeAssistant answers each call from a queue. A nil gate lets calls
// return immediately; otherwise each call waits for one value on gate.
type fakeAssistant struct {
	mu        sync.Mutex
	chats     []chatResult
	voices    []voiceResult
	chatReqs  []domain.ChatRequest
	voiceReqs []voiceCall
	gate      chan struct{}
	entered   chan struct{}
	panicWith string
}

type voiceCall struct {
	audio     domain.AudioUpload
	language  entities.Language
	sessionID string
}

func (a *fakeAssistant) wait(ctx context.Context) error {
	if a.panicWith != "" {
		panic(a.panicWith)
	}
	if a.entered != nil {
		a.entered <- struct{}{}
	}
	if a.gate == nil {
		return nil
	}
	select {
	case <-a.gate:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (a *fakeAssistant) SendChat(ctx context.Context, req domain.ChatRequest) (*domain.ChatResponse, error) {
	a.mu.Lock()
	a.chatReqs = append(a.chatReqs, req)
	var res chatResult
	if len(a.chats) > 0 {
		res = a.chats[0]
		a.chats = a.chats[1:]
	} else {
		res = chatResult{resp: &domain.ChatResponse{Reply: "ok"}}
	}
	a.mu.Unlock()

	if err := a.wait(ctx); err != nil {
		return nil, err
	}
	return res.resp, res.err
}

func (a *fakeAssistant) SendVoice(ctx context.Context, audio domain.AudioUpload, language entities.Language, sessionID string) (*domain.VoiceResponse, error) {
	a.mu.Lock()
	a.voiceReqs = append(a.voiceReqs, voiceCall{audio: audio, language: language, sessionID: sessionID})
	var res voiceResult
	if len(a.voices) > 0 {
		res = a.voices[0]
		a.voices = a.voices[1:]
	} else {
		res = voiceResult{resp: &domain.VoiceResponse{Transcript: "hello", Reply: "ok"}}
	}
	a.mu.Unlock()

	if err := a.wait(ctx); err != nil {
		return nil, err
	}
	return res.resp, res.err
}

func (a *fakeAssistant) chatRequests() []domain.ChatRequest {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]domain.ChatRequest(nil), a.chatReqs...)
}

func (a *fakeAssistant) voiceRequests() []voiceCall {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]voiceCall(nil), a.voiceReqs...)
}

type leadCall struct {
	lead   entities.LeadData
	source domain.LeadSource
}

type fakeNotifier struct {
	mu    sync.Mutex
	calls []leadCall
	err   error
}

func (n *fakeNotifier) NotifyLead(ctx context.Context, lead entities.LeadData, source domain.LeadSource) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.calls = append(n.calls, leadCall{lead: lead, source: source})
	return n.err
}

func (n *fakeNotifier) leads() []leadCall {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]leadCall(nil), n.calls...)
}

// fakeElement records playback commands and lets tests push events
type fakeElement struct {
	ref    string
	events chan repositories.AudioEvent
	auto   bool

	mu      sync.Mutex
	plays   int
	pauses  int
	rewinds int
	closed  int
	playErr error

	onRewind func()
}

func (e *fakeElement) Play() error {
	e.mu.Lock()
	e.plays++
	err := e.playErr
	e.mu.Unlock()
	if err != nil {
		return err
	}
	if e.auto {
		e.events <- repositories.AudioEventPlaying
	}
	return nil
}

func (e *fakeElement) Pause() {
	e.mu.Lock()
	e.pauses++
	e.mu.Unlock()
	if e.auto {
		e.events <- repositories.AudioEventPaused
	}
}

func (e *fakeElement) Rewind() {
	e.mu.Lock()
	e.rewinds++
	fn := e.onRewind
	e.mu.Unlock()
	if fn != nil {
		fn()
	}
}

func (e *fakeElement) Events() <-chan repositories.AudioEvent { return e.events }

func (e *fakeElement) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.closed++
	return nil
}

func (e *fakeElement) stats() (plays, pauses, rewinds, closed int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.plays, e.pauses, e.rewinds, e.closed
}

type fakeSource struct {
	mu       sync.Mutex
	elements []*fakeElement
	loadErr  error
	playErr  error
	onRewind func()
}

func (s *fakeSource) Load(ctx context.Context, ref string) (repositories.AudioElement, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.loadErr != nil {
		return nil, s.loadErr
	}
	el := &fakeElement{ref: ref, events: make(chan repositories.AudioEvent, 16), auto: true, playErr: s.playErr, onRewind: s.onRewind}
	s.elements = append(s.elements, el)
	return el, nil
}

func (s *fakeSource) element(i int) *fakeElement {
	s.mu.Lock()
	defer s.mu.Unlock()
	if i >= len(s.elements) {
		return nil
	}
	return s.elements[i]
}
