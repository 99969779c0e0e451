package repositories

import "context"

// AudioEvent is reported by an audio element as playback progresses
type AudioEvent string

const (
	AudioEventPlaying AudioEvent = "playing"
	AudioEventPaused  AudioEvent = "paused"
	AudioEventEnded   AudioEvent = "ended"
	AudioEventError   AudioEvent = "error"
)

// AudioSource creates playable elements for audio resources
type AudioSource interface {
	Load(ctx context.Context, resourceRef string) (AudioElement, error)
}

// AudioElement is a single playable audio resource
type AudioElement interface {
	// Play starts or resumes playback. The element reports AudioEventPlaying
	// once audio actually starts.
	Play() error
	Pause()
	// Rewind resets the playback position to the start
	Rewind()
	Events() <-chan AudioEvent
	// Close releases the element. Safe to call more than once.
	Close() error
}
