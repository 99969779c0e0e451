package usecase

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/vmkdxailabs/chatwidget/domain"
	"github.com/vmkdxailabs/chatwidget/domain/entities"
	"github.com/vmkdxailabs/chatwidget/domain/repositories"
	"github.com/vmkdxailabs/chatwidget/internal/observability"
)

type playbackHandle struct {
	ref     string
	element repositories.AudioElement
	status  entities.PlaybackStatus
	done    chan struct{}
	once    sync.Once
}

func (h *playbackHandle) released() bool {
	select {
	case <-h.done:
		return true
	default:
		return false
	}
}

// PlaybackController plays one audio reply at a time
type PlaybackController struct {
	source  repositories.AudioSource
	metrics *observability.Metrics
	logger  *zap.Logger

	mu       sync.Mutex
	handle   *playbackHandle
	onChange func(entities.PlaybackSnapshot)
}

// NewPlaybackController creates a playback controller loading audio from source
func NewPlaybackController(source repositories.AudioSource, metrics *observability.Metrics, logger *zap.Logger) *PlaybackController {
	return &PlaybackController{
		source:  source,
		metrics: metrics,
		logger:  logger,
	}
}

// SetChangeHook registers fn to receive the playback state after each change
func (p *PlaybackController) SetChangeHook(fn func(entities.PlaybackSnapshot)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.onChange = fn
}

// Play stops whatever is playing and starts ref from the beginning. Failures
// are logged and leave the controller idle.
func (p *PlaybackController) Play(ctx context.Context, ref string) {
	p.mu.Lock()
	prev := p.handle
	p.handle = nil
	p.mu.Unlock()
	p.release(prev)

	element, err := p.source.Load(ctx, ref)
	if err != nil {
		p.fail(ref, err)
		p.notify()
		return
	}

	h := &playbackHandle{
		ref:     ref,
		element: element,
		status:  entities.PlaybackStatusEnded,
		done:    make(chan struct{}),
	}

	p.mu.Lock()
	if p.handle != nil {
		// a concurrent Play won the slot
		p.mu.Unlock()
		p.release(h)
		return
	}
	p.handle = h
	p.mu.Unlock()

	go p.watch(h)

	// A Stop may release h at any point from here on; never start a
	// released element.
	element.Rewind()
	if h.released() {
		return
	}
	if err := element.Play(); err != nil {
		if h.released() {
			return
		}
		p.clear(h)
		p.fail(ref, err)
		p.notify()
		return
	}

	p.mu.Lock()
	owned := p.handle == h
	p.mu.Unlock()
	if !owned {
		p.release(h)
		return
	}

	p.logger.Debug("Playback requested", zap.String("ref", ref))
	p.notify()
}

func (p *PlaybackController) fail(ref string, err error) {
	p.logger.Warn("Audio reply could not be played",
		zap.String("ref", ref),
		zap.Error(domain.NewError(domain.KindPlaybackFailed, "", err)))
	p.metrics.ObserveError(string(domain.KindPlaybackFailed))
}

// watch applies element events to h until h is released
func (p *PlaybackController) watch(h *playbackHandle) {
	events := h.element.Events()
	for {
		select {
		case <-h.done:
			return
		case ev, ok := <-events:
			if !ok {
				p.clear(h)
				p.notify()
				return
			}
			switch ev {
			case repositories.AudioEventPlaying:
				p.setStatus(h, entities.PlaybackStatusPlaying)
			case repositories.AudioEventPaused:
				p.setStatus(h, entities.PlaybackStatusPaused)
			case repositories.AudioEventEnded:
				p.logger.Debug("Playback ended", zap.String("ref", h.ref))
				p.clear(h)
				p.notify()
				return
			case repositories.AudioEventError:
				p.fail(h.ref, nil)
				p.clear(h)
				p.notify()
				return
			}
		}
	}
}

func (p *PlaybackController) setStatus(h *playbackHandle, status entities.PlaybackStatus) {
	p.mu.Lock()
	if p.handle != h || h.status == status {
		p.mu.Unlock()
		return
	}
	h.status = status
	p.mu.Unlock()
	p.notify()
}

// clear drops h if it still owns the slot
func (p *PlaybackController) clear(h *playbackHandle) {
	p.mu.Lock()
	if p.handle == h {
		p.handle = nil
	}
	p.mu.Unlock()
	p.release(h)
}

// release pauses, rewinds and frees h. Safe on nil and on repeated calls.
func (p *PlaybackController) release(h *playbackHandle) {
	if h == nil {
		return
	}
	h.once.Do(func() {
		close(h.done)
		h.element.Pause()
		h.element.Rewind()
		if err := h.element.Close(); err != nil {
			p.logger.Warn("Failed to release audio element", zap.String("ref", h.ref), zap.Error(err))
		}
	})
}

// Pause pauses the active reply, if any
func (p *PlaybackController) Pause() {
	p.mu.Lock()
	h := p.handle
	if h == nil || h.status == entities.PlaybackStatusPaused {
		p.mu.Unlock()
		return
	}
	h.status = entities.PlaybackStatusPaused
	p.mu.Unlock()

	h.element.Pause()
	p.notify()
}

// Stop ends playback and discards the active reply
func (p *PlaybackController) Stop() {
	p.mu.Lock()
	h := p.handle
	p.handle = nil
	p.mu.Unlock()

	if h == nil {
		return
	}
	p.release(h)
	p.notify()
}

// Toggle pauses ref when it is playing and plays it from the start otherwise
func (p *PlaybackController) Toggle(ctx context.Context, ref string) {
	if p.Snapshot().IsPlaying(ref) {
		p.Pause()
		return
	}
	p.Play(ctx, ref)
}

// Close releases the active element
func (p *PlaybackController) Close() {
	p.Stop()
}

// Snapshot returns the playback state
func (p *PlaybackController) Snapshot() entities.PlaybackSnapshot {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.snapshotLocked()
}

func (p *PlaybackController) snapshotLocked() entities.PlaybackSnapshot {
	if p.handle == nil {
		return entities.PlaybackSnapshot{Status: entities.PlaybackStatusEnded}
	}
	return entities.PlaybackSnapshot{Status: p.handle.status, ResourceRef: p.handle.ref}
}

func (p *PlaybackController) notify() {
	p.mu.Lock()
	fn := p.onChange
	snap := p.snapshotLocked()
	p.mu.Unlock()
	if fn != nil {
		fn(snap)
	}
}
