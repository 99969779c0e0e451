package microphone

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/vmkdxailabs/chatwidget/domain"
	"github.com/vmkdxailabs/chatwidget/domain/entities"
	"github.com/vmkdxailabs/chatwidget/domain/repositories"
)

const (
	defaultStartTimeout = 10 * time.Second
	fragmentBuffer      = 256
	baseMimeType        = "audio/webm"
)

// Commander delivers capture commands to the remote device. Every command
// carries the capture id the peer must echo in its acknowledgements.
type Commander interface {
	StartCapture(captureID, mimeType string, timeslice time.Duration) error
	StopCapture(captureID string) error
}

type startResult struct {
	recorder *streamRecorder
	err      error
}

// StreamMicrophone is a Microphone whose physical device lives on a remote
// peer. The peer acknowledges commands and streams fragments back through
// Started, Denied, Failed, Feed and Stopped. Acknowledgements naming a
// capture other than the current one are ignored.
type StreamMicrophone struct {
	commander    Commander
	startTimeout time.Duration
	logger       *zap.Logger

	mu        sync.Mutex
	supported map[string]bool
	pending   chan startResult
	pendingID string
	active    *streamRecorder
}

// Ensure StreamMicrophone implements the Microphone interface
var _ repositories.Microphone = (*StreamMicrophone)(nil)

// NewStreamMicrophone creates a microphone driven through commander.
// startTimeout bounds the wait for the peer to acknowledge a start.
func NewStreamMicrophone(commander Commander, startTimeout time.Duration, logger *zap.Logger) *StreamMicrophone {
	if startTimeout <= 0 {
		startTimeout = defaultStartTimeout
	}
	return &StreamMicrophone{
		commander:    commander,
		startTimeout: startTimeout,
		logger:       logger,
		supported:    map[string]bool{baseMimeType: true},
	}
}

// SetSupportedTypes records the encodings the peer announced
func (m *StreamMicrophone) SetSupportedTypes(mimeTypes []string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.supported = make(map[string]bool, len(mimeTypes))
	for _, t := range mimeTypes {
		m.supported[t] = true
	}
}

func (m *StreamMicrophone) IsTypeSupported(mimeType string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.supported[mimeType]
}

// Open asks the peer to start capturing and waits for its acknowledgement
func (m *StreamMicrophone) Open(ctx context.Context, opts repositories.RecorderOptions) (repositories.Recorder, error) {
	m.mu.Lock()
	if m.pending != nil || m.active != nil {
		m.mu.Unlock()
		return nil, domain.NewError(domain.KindDeviceUnavailable, "", errors.New("microphone is busy"))
	}
	pending := make(chan startResult, 1)
	captureID := entities.NewID()
	m.pending = pending
	m.pendingID = captureID
	m.mu.Unlock()

	if err := m.commander.StartCapture(captureID, opts.MimeType, opts.Timeslice); err != nil {
		m.clearPending(pending)
		return nil, domain.NewError(domain.KindDeviceUnavailable, "", fmt.Errorf("failed to send capture command: %w", err))
	}

	timer := time.NewTimer(m.startTimeout)
	defer timer.Stop()

	select {
	case res := <-pending:
		if res.err != nil {
			return nil, res.err
		}
		return res.recorder, nil
	case <-timer.C:
		m.abandonStart(pending, captureID)
		return nil, domain.NewError(domain.KindDeviceUnavailable, "", errors.New("microphone did not acknowledge start"))
	case <-ctx.Done():
		m.abandonStart(pending, captureID)
		return nil, fmt.Errorf("capture start interrupted: %w", ctx.Err())
	}
}

func (m *StreamMicrophone) clearPending(pending chan startResult) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.pending == pending {
		m.pending = nil
		m.pendingID = ""
	}
}

// abandonStart gives up on a start and tells the peer to release the device
// in case it acquires it late.
func (m *StreamMicrophone) abandonStart(pending chan startResult, captureID string) {
	m.mu.Lock()
	var late *streamRecorder
	if m.pending == pending {
		m.pending = nil
		m.pendingID = ""
	} else {
		select {
		case res := <-pending:
			if res.recorder != nil {
				late = res.recorder
				if m.active == late {
					m.active = nil
				}
			}
		default:
		}
	}
	m.mu.Unlock()

	if late != nil {
		late.closeData()
	}
	if err := m.commander.StopCapture(captureID); err != nil {
		m.logger.Warn("Failed to send capture stop", zap.Error(err))
	}
}

// resolve completes a pending Open. It reports false when nothing waited.
func (m *StreamMicrophone) resolve(res startResult) bool {
	if m.pending == nil {
		return false
	}
	m.pending <- res
	m.pending = nil
	m.pendingID = ""
	return true
}

// pendingMatches reports whether captureID names the start being waited for.
// An empty id matches, for peers that only report failures generically.
func (m *StreamMicrophone) pendingMatches(captureID string) bool {
	return m.pending != nil && (captureID == "" || captureID == m.pendingID)
}

// Started acknowledges the device is capturing for captureID
func (m *StreamMicrophone) Started(captureID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.pending == nil || captureID != m.pendingID {
		m.logger.Warn("Ignoring capture start acknowledgement without pending start",
			zap.String("captureID", captureID))
		return
	}
	m.active = &streamRecorder{
		id:   captureID,
		mic:  m,
		data: make(chan []byte, fragmentBuffer),
		errs: make(chan error, 1),
	}
	m.resolve(startResult{recorder: m.active})
}

// Denied reports the visitor refused microphone access
func (m *StreamMicrophone) Denied(captureID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.pendingMatches(captureID) {
		return
	}
	m.resolve(startResult{err: domain.NewError(domain.KindPermissionDenied, "", errors.New("microphone permission denied"))})
}

// Failed reports a device failure, during start or while recording
func (m *StreamMicrophone) Failed(captureID, message string) {
	err := domain.NewError(domain.KindDeviceUnavailable, "", errors.New(message))

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.pendingMatches(captureID) {
		m.resolve(startResult{err: err})
		return
	}
	if m.active == nil || (captureID != "" && captureID != m.active.id) {
		return
	}
	select {
	case m.active.errs <- err:
	default:
	}
}

// Feed delivers one captured fragment
func (m *StreamMicrophone) Feed(fragment []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.active == nil || m.active.dataClosed {
		return
	}
	chunk := make([]byte, len(fragment))
	copy(chunk, fragment)
	select {
	case m.active.data <- chunk:
	default:
		m.logger.Warn("Dropping capture fragment, consumer is behind", zap.Int("bytes", len(chunk)))
	}
}

// Stopped confirms the device released the microphone for captureID.
// Confirmations for an earlier capture arriving late are dropped.
func (m *StreamMicrophone) Stopped(captureID string) {
	m.mu.Lock()
	active := m.active
	if active == nil || active.id != captureID {
		m.mu.Unlock()
		m.logger.Debug("Ignoring stop confirmation for inactive capture", zap.String("captureID", captureID))
		return
	}
	m.active = nil
	m.mu.Unlock()

	active.closeData()
}

type streamRecorder struct {
	id   string
	mic  *StreamMicrophone
	data chan []byte
	errs chan error

	dataClosed bool // guarded by mic.mu
	stopOnce   sync.Once
}

func (r *streamRecorder) Data() <-chan []byte { return r.data }
func (r *streamRecorder) Errors() <-chan error { return r.errs }

func (r *streamRecorder) closeData() {
	r.mic.mu.Lock()
	defer r.mic.mu.Unlock()
	if !r.dataClosed {
		r.dataClosed = true
		close(r.data)
	}
}

// Stop asks the peer to flush and stop. Confirmation arrives via Stopped.
func (r *streamRecorder) Stop() {
	r.stopOnce.Do(func() {
		if err := r.mic.commander.StopCapture(r.id); err != nil {
			r.mic.logger.Warn("Failed to send capture stop", zap.Error(err))
		}
	})
}

// Close detaches the recorder so late fragments are ignored
func (r *streamRecorder) Close() error {
	r.Stop()
	r.mic.mu.Lock()
	if r.mic.active == r {
		r.mic.active = nil
	}
	r.mic.mu.Unlock()
	r.closeData()
	return nil
}
