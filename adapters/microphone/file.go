package microphone

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/vmkdxailabs/chatwidget/domain"
	"github.com/vmkdxailabs/chatwidget/domain/repositories"
)

const defaultFragmentSize = 4096

// FileMicrophone replays a recorded audio file as if it were captured live.
// Each timeslice emits one fragment; Stop flushes the remainder.
type FileMicrophone struct {
	mimeType     string
	fragmentSize int
	logger       *zap.Logger

	mu   sync.Mutex
	path string
}

// Ensure FileMicrophone implements the Microphone interface
var _ repositories.Microphone = (*FileMicrophone)(nil)

// NewFileMicrophone creates a microphone reading path, encoded as mimeType
func NewFileMicrophone(path, mimeType string, fragmentSize int, logger *zap.Logger) *FileMicrophone {
	if fragmentSize <= 0 {
		fragmentSize = defaultFragmentSize
	}
	return &FileMicrophone{
		path:         path,
		mimeType:     mimeType,
		fragmentSize: fragmentSize,
		logger:       logger,
	}
}

// IsTypeSupported accepts the file's exact type and its base container type
func (f *FileMicrophone) IsTypeSupported(mimeType string) bool {
	if mimeType == f.mimeType {
		return true
	}
	base, _, _ := strings.Cut(f.mimeType, ";")
	return mimeType == strings.TrimSpace(base)
}

// SetPath points the next recording at another file
func (f *FileMicrophone) SetPath(path string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.path = path
}

func (f *FileMicrophone) Open(ctx context.Context, opts repositories.RecorderOptions) (repositories.Recorder, error) {
	f.mu.Lock()
	path := f.path
	f.mu.Unlock()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsPermission(err) {
			return nil, domain.NewError(domain.KindPermissionDenied, "", fmt.Errorf("failed to read audio file: %w", err))
		}
		return nil, domain.NewError(domain.KindDeviceUnavailable, "", fmt.Errorf("failed to read audio file: %w", err))
	}

	f.logger.Info("Replaying audio file as microphone",
		zap.String("path", path),
		zap.String("mimeType", opts.MimeType),
		zap.Int("bytes", len(data)))

	r := &fileRecorder{
		remaining: data,
		size:      f.fragmentSize,
		data:      make(chan []byte, 1),
		errs:      make(chan error),
		stop:      make(chan struct{}),
		done:      make(chan struct{}),
	}
	go r.run(opts.Timeslice)
	return r, nil
}

type fileRecorder struct {
	mu        sync.Mutex
	remaining []byte
	size      int

	data chan []byte
	errs chan error
	stop chan struct{}
	done chan struct{}

	stopOnce sync.Once
}

func (r *fileRecorder) Data() <-chan []byte { return r.data }
func (r *fileRecorder) Errors() <-chan error { return r.errs }

func (r *fileRecorder) next(all bool) []byte {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := r.size
	if all || n > len(r.remaining) {
		n = len(r.remaining)
	}
	chunk := r.remaining[:n]
	r.remaining = r.remaining[n:]
	return chunk
}

func (r *fileRecorder) run(timeslice time.Duration) {
	defer close(r.done)
	defer close(r.data)

	if timeslice <= 0 {
		timeslice = 250 * time.Millisecond
	}
	ticker := time.NewTicker(timeslice)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if chunk := r.next(false); len(chunk) > 0 {
				select {
				case r.data <- chunk:
				case <-r.stop:
					r.data <- chunk
					r.flush()
					return
				}
			}
		case <-r.stop:
			r.flush()
			return
		}
	}
}

func (r *fileRecorder) flush() {
	if chunk := r.next(true); len(chunk) > 0 {
		r.data <- chunk
	}
}

// Stop flushes unread audio and closes the fragment stream
func (r *fileRecorder) Stop() {
	r.stopOnce.Do(func() { close(r.stop) })
}

// Close stops the replay and drops anything not yet delivered
func (r *fileRecorder) Close() error {
	r.mu.Lock()
	r.remaining = nil
	r.mu.Unlock()
	r.Stop()
	go func() {
		for range r.data {
		}
	}()
	<-r.done
	return nil
}
