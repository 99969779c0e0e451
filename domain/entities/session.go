package entities

// PlaybackStatus represents the state of the audio reply slot
type PlaybackStatus string

const (
	PlaybackStatusPlaying PlaybackStatus = "playing"
	PlaybackStatusPaused  PlaybackStatus = "paused"
	PlaybackStatusEnded   PlaybackStatus = "ended"
)

// ConversationSnapshot is a read-only copy of the conversation state
type ConversationSnapshot struct {
	SessionID       string        `json:"session_id"`
	Language        Language      `json:"language"`
	IsAwaitingReply bool          `json:"is_awaiting_reply"`
	Messages        []ChatMessage `json:"messages"`
}

// LastMessage returns the most recent message, if any
func (s ConversationSnapshot) LastMessage() (ChatMessage, bool) {
	if len(s.Messages) == 0 {
		return ChatMessage{}, false
	}
	return s.Messages[len(s.Messages)-1], true
}

// RecordingSnapshot describes the microphone capture state
type RecordingSnapshot struct {
	IsRecording    bool   `json:"is_recording"`
	ElapsedSeconds int    `json:"elapsed_seconds"`
	MimeType       string `json:"mime_type,omitempty"`
}

// PlaybackSnapshot describes the audio reply slot
type PlaybackSnapshot struct {
	Status      PlaybackStatus `json:"status"`
	ResourceRef string         `json:"resource_ref,omitempty"`
}

// IsPlaying reports whether ref is the resource currently playing
func (s PlaybackSnapshot) IsPlaying(ref string) bool {
	return s.Status == PlaybackStatusPlaying && s.ResourceRef == ref
}

// WidgetSnapshot aggregates everything the render layer observes
type WidgetSnapshot struct {
	Conversation ConversationSnapshot `json:"conversation"`
	Recording    RecordingSnapshot    `json:"recording"`
	Playback     PlaybackSnapshot     `json:"playback"`
}
