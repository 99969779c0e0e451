package repositories

import (
	"context"
	"time"
)

// Microphone abstracts the physical capture device
type Microphone interface {
	// IsTypeSupported reports whether the device can encode mimeType
	IsTypeSupported(mimeType string) bool
	// Open acquires the device and starts recording. Implementations return
	// domain.ErrPermissionDenied or domain.ErrDeviceUnavailable kinds.
	Open(ctx context.Context, opts RecorderOptions) (Recorder, error)
}

// RecorderOptions configures a capture
type RecorderOptions struct {
	MimeType  string
	Timeslice time.Duration
}

// Recorder is an active capture on an acquired device
type Recorder interface {
	// Data delivers fragments in capture order. The channel is closed when
	// the device confirms it stopped; that confirmation is not guaranteed.
	Data() <-chan []byte
	// Errors delivers device failures raised while recording
	Errors() <-chan error
	// Stop asks the device to flush pending fragments and stop
	Stop()
	// Close releases the device track. Safe to call more than once.
	Close() error
}
