package player

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"

	"github.com/vmkdxailabs/chatwidget/domain/entities"
	"github.com/vmkdxailabs/chatwidget/domain/repositories"
)

const eventBuffer = 16

var errElementClosed = errors.New("audio element is closed")

// AudioCommander delivers audio element commands to the remote peer
type AudioCommander interface {
	PlayAudio(elementID, url string) error
	PauseAudio(elementID string) error
	StopAudio(elementID string) error
}

// RemoteSource creates audio elements that live on a remote peer. The peer
// reports progress through Deliver.
type RemoteSource struct {
	commander AudioCommander
	logger    *zap.Logger

	mu       sync.Mutex
	elements map[string]*remoteElement
}

// Ensure RemoteSource implements the AudioSource interface
var _ repositories.AudioSource = (*RemoteSource)(nil)

// NewRemoteSource creates a source driven through commander
func NewRemoteSource(commander AudioCommander, logger *zap.Logger) *RemoteSource {
	return &RemoteSource{
		commander: commander,
		logger:    logger,
		elements:  make(map[string]*remoteElement),
	}
}

func (s *RemoteSource) Load(ctx context.Context, ref string) (repositories.AudioElement, error) {
	el := &remoteElement{
		id:     entities.NewID(),
		url:    ref,
		source: s,
		events: make(chan repositories.AudioEvent, eventBuffer),
	}
	s.mu.Lock()
	s.elements[el.id] = el
	s.mu.Unlock()
	return el, nil
}

// Deliver routes an event reported by the peer to its element. Events for
// released elements are dropped.
func (s *RemoteSource) Deliver(elementID string, event repositories.AudioEvent) {
	s.mu.Lock()
	el, ok := s.elements[elementID]
	s.mu.Unlock()
	if !ok {
		s.logger.Debug("Dropping event for unknown audio element",
			zap.String("elementID", elementID),
			zap.String("event", string(event)))
		return
	}
	el.emit(event)
}

func (s *RemoteSource) remove(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.elements, id)
}

type remoteElement struct {
	id     string
	url    string
	source *RemoteSource
	events chan repositories.AudioEvent

	mu     sync.Mutex
	closed bool
}

func (e *remoteElement) Events() <-chan repositories.AudioEvent { return e.events }

func (e *remoteElement) emit(event repositories.AudioEvent) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return
	}
	select {
	case e.events <- event:
	default:
		e.source.logger.Warn("Dropping audio event, consumer is behind", zap.String("elementID", e.id))
	}
}

// Play is refused once the element is closed, so a play command never
// follows its stop.
func (e *remoteElement) Play() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return errElementClosed
	}
	return e.source.commander.PlayAudio(e.id, e.url)
}

func (e *remoteElement) Pause() {
	if err := e.source.commander.PauseAudio(e.id); err != nil {
		e.source.logger.Warn("Failed to send audio pause", zap.String("elementID", e.id), zap.Error(err))
	}
}

// Rewind is a no-op: the peer creates a fresh element per ID, which always
// starts at zero, and StopAudio resets it.
func (e *remoteElement) Rewind() {}

func (e *remoteElement) Close() error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil
	}
	e.closed = true
	e.mu.Unlock()

	e.source.remove(e.id)
	return e.source.commander.StopAudio(e.id)
}
