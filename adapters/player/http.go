package player

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/vmkdxailabs/chatwidget/domain/repositories"
)

const copyChunkSize = 4096

// SinkFactory opens the destination an audio resource is played into
type SinkFactory func(ref string) (io.WriteCloser, error)

// HTTPSource fetches audio replies over HTTP and streams them into a sink.
// Relative references are resolved against baseURL.
type HTTPSource struct {
	baseURL    *url.URL
	httpClient *http.Client
	sink       SinkFactory
	logger     *zap.Logger
}

// Ensure HTTPSource implements the AudioSource interface
var _ repositories.AudioSource = (*HTTPSource)(nil)

// NewHTTPSource creates a source. baseURL may be empty when every reference
// is absolute.
func NewHTTPSource(baseURL string, timeout time.Duration, sink SinkFactory, logger *zap.Logger) (*HTTPSource, error) {
	var base *url.URL
	if baseURL != "" {
		parsed, err := url.Parse(baseURL)
		if err != nil {
			return nil, fmt.Errorf("failed to parse base URL: %w", err)
		}
		base = parsed
	}
	if sink == nil {
		return nil, errors.New("sink factory is required")
	}
	return &HTTPSource{
		baseURL:    base,
		httpClient: &http.Client{Timeout: timeout},
		sink:       sink,
		logger:     logger,
	}, nil
}

// Resolve turns ref into an absolute URL
func (s *HTTPSource) Resolve(ref string) (string, error) {
	u, err := url.Parse(ref)
	if err != nil {
		return "", fmt.Errorf("failed to parse audio reference: %w", err)
	}
	if u.IsAbs() {
		return u.String(), nil
	}
	if s.baseURL == nil {
		return "", fmt.Errorf("relative audio reference %q without base URL", ref)
	}
	return s.baseURL.ResolveReference(u).String(), nil
}

func (s *HTTPSource) Load(ctx context.Context, ref string) (repositories.AudioElement, error) {
	resolved, err := s.Resolve(ref)
	if err != nil {
		return nil, err
	}
	return &httpElement{
		source: s,
		ref:    ref,
		url:    resolved,
		events: make(chan repositories.AudioEvent, eventBuffer),
	}, nil
}

type httpElement struct {
	source *HTTPSource
	ref    string
	url    string
	events chan repositories.AudioEvent

	mu         sync.Mutex
	generation int
	running    bool
	paused     bool
	restart    bool
	closed     bool
	resume     chan struct{}
	cancel     context.CancelFunc
}

func (e *httpElement) Events() <-chan repositories.AudioEvent { return e.events }

// Play starts the stream, resumes a paused one, or restarts it after Rewind
func (e *httpElement) Play() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return errElementClosed
	}
	if e.running && !e.restart {
		if e.paused {
			e.paused = false
			close(e.resume)
			e.emitLocked(e.generation, repositories.AudioEventPlaying)
		}
		return nil
	}
	if e.cancel != nil {
		e.cancel()
	}

	ctx, cancel := context.WithCancel(context.Background())
	e.cancel = cancel
	e.generation++
	e.running = true
	e.restart = false
	e.paused = false
	go e.stream(ctx, e.generation)
	return nil
}

func (e *httpElement) Pause() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.running || e.paused || e.closed {
		return
	}
	e.paused = true
	e.resume = make(chan struct{})
	e.emitLocked(e.generation, repositories.AudioEventPaused)
}

// Rewind makes the next Play fetch the resource again from the start
func (e *httpElement) Rewind() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.running {
		e.restart = true
	}
}

func (e *httpElement) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return nil
	}
	e.closed = true
	if e.cancel != nil {
		e.cancel()
	}
	if e.paused {
		e.paused = false
		close(e.resume)
	}
	return nil
}

func (e *httpElement) emit(gen int, event repositories.AudioEvent) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.emitLocked(gen, event)
}

func (e *httpElement) emitLocked(gen int, event repositories.AudioEvent) {
	if e.closed || gen != e.generation {
		return
	}
	if event == repositories.AudioEventEnded || event == repositories.AudioEventError {
		e.running = false
	}
	select {
	case e.events <- event:
	default:
		e.source.logger.Warn("Dropping audio event, consumer is behind", zap.String("ref", e.ref))
	}
}

// waitIfPaused blocks while the element is paused
func (e *httpElement) waitIfPaused(ctx context.Context) error {
	e.mu.Lock()
	if !e.paused {
		e.mu.Unlock()
		return nil
	}
	resume := e.resume
	e.mu.Unlock()

	select {
	case <-resume:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (e *httpElement) stream(ctx context.Context, gen int) {
	logger := e.source.logger.With(zap.String("url", e.url))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, e.url, nil)
	if err != nil {
		logger.Error("Failed to create HTTP request", zap.Error(err))
		e.emit(gen, repositories.AudioEventError)
		return
	}
	resp, err := e.source.httpClient.Do(req)
	if err != nil {
		if ctx.Err() == nil {
			logger.Error("Failed to fetch audio", zap.Error(err))
			e.emit(gen, repositories.AudioEventError)
		}
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		logger.Error("Audio fetch returned error", zap.Int("statusCode", resp.StatusCode))
		e.emit(gen, repositories.AudioEventError)
		return
	}

	sink, err := e.source.sink(e.ref)
	if err != nil {
		logger.Error("Failed to open audio sink", zap.Error(err))
		e.emit(gen, repositories.AudioEventError)
		return
	}
	defer sink.Close()

	e.emit(gen, repositories.AudioEventPlaying)

	buf := make([]byte, copyChunkSize)
	total := 0
	for {
		if err := e.waitIfPaused(ctx); err != nil {
			return
		}
		n, readErr := resp.Body.Read(buf)
		if n > 0 {
			if _, err := sink.Write(buf[:n]); err != nil {
				logger.Error("Failed to write audio to sink", zap.Error(err))
				e.emit(gen, repositories.AudioEventError)
				return
			}
			total += n
		}
		if readErr == io.EOF {
			logger.Debug("Finished playing audio", zap.Int("bytes", total))
			e.emit(gen, repositories.AudioEventEnded)
			return
		}
		if readErr != nil {
			if ctx.Err() == nil {
				logger.Error("Error reading audio stream", zap.Error(readErr))
				e.emit(gen, repositories.AudioEventError)
			}
			return
		}
	}
}
