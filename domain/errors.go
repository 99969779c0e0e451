package domain

import "errors"

// ErrorKind classifies failures the widget knows how to explain to a visitor
type ErrorKind string

const (
	KindPermissionDenied  ErrorKind = "permission_denied"
	KindDeviceUnavailable ErrorKind = "device_unavailable"
	KindRateLimited       ErrorKind = "rate_limited"
	KindRequestFailed     ErrorKind = "request_failed"
	KindPlaybackFailed    ErrorKind = "playback_failed"
)

// Default user-facing texts per kind
const (
	MessagePermissionDenied  = "Microphone access denied. Please allow microphone access."
	MessageDeviceUnavailable = "Microphone is not available. Please check your audio device and try again."
	MessageRateLimited       = "Too many requests. Please wait a moment."
	MessageChatFailed        = "Failed to get response. Please try again."
	MessageVoiceFailed       = "Failed to process voice. Please try again."
	MessagePlaybackFailed    = "Audio reply could not be played."

	MessageGenericText  = "Sorry, something went wrong. Please try again."
	MessageGenericVoice = "Sorry, I couldn't process your voice message. Please try again."
)

// Rejections returned to the caller without touching the conversation log
var (
	ErrEmptyMessage        = errors.New("message is empty")
	ErrEmptyRecording      = errors.New("recording is empty")
	ErrTurnInFlight        = errors.New("a reply is already pending")
	ErrUnsupportedLanguage = errors.New("unsupported language")
	ErrAlreadyRecording    = errors.New("a recording is already in progress")
)

// Error is a classified failure carrying a message safe to show to visitors
type Error struct {
	Kind    ErrorKind
	Message string
	Err     error
}

// NewError creates a classified error. An empty message falls back to the
// default text of the kind.
func NewError(kind ErrorKind, message string, err error) *Error {
	if message == "" {
		message = defaultMessage(kind)
	}
	return &Error{Kind: kind, Message: message, Err: err}
}

func (e *Error) Error() string {
	if e.Err != nil {
		return string(e.Kind) + ": " + e.Message + ": " + e.Err.Error()
	}
	return string(e.Kind) + ": " + e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches any *Error of the same kind, so errors.Is(err, ErrRateLimited)
// works regardless of message or cause.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

// Kind sentinels for errors.Is
var (
	ErrPermissionDenied  = &Error{Kind: KindPermissionDenied}
	ErrDeviceUnavailable = &Error{Kind: KindDeviceUnavailable}
	ErrRateLimited       = &Error{Kind: KindRateLimited}
	ErrRequestFailed     = &Error{Kind: KindRequestFailed}
	ErrPlaybackFailed    = &Error{Kind: KindPlaybackFailed}
)

// KindOf returns the kind of a classified error, or "" when err is not one
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// UserMessage returns the visitor-safe text for err, or fallback when err
// carries none.
func UserMessage(err error, fallback string) string {
	var e *Error
	if errors.As(err, &e) && e.Message != "" {
		return e.Message
	}
	return fallback
}

func defaultMessage(kind ErrorKind) string {
	switch kind {
	case KindPermissionDenied:
		return MessagePermissionDenied
	case KindDeviceUnavailable:
		return MessageDeviceUnavailable
	case KindRateLimited:
		return MessageRateLimited
	case KindPlaybackFailed:
		return MessagePlaybackFailed
	default:
		return MessageGenericText
	}
}
