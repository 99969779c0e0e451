package websocket

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/vmkdxailabs/chatwidget/domain/entities"
	"github.com/vmkdxailabs/chatwidget/domain/repositories"
)

// MessageType defines the type of WebSocket message
type MessageType string

// Messages sent by the widget page
const (
	MessageTypeHello             MessageType = "hello"
	MessageTypeSendText          MessageType = "send_text"
	MessageTypeStartRecording    MessageType = "start_recording"
	MessageTypeStopRecording     MessageType = "stop_recording"
	MessageTypeCancelRecording   MessageType = "cancel_recording"
	MessageTypePlayAudio         MessageType = "play_audio"
	MessageTypePauseAudio        MessageType = "pause_audio"
	MessageTypeStopAudio         MessageType = "stop_audio"
	MessageTypeSetLanguage       MessageType = "set_language"
	MessageTypeClearConversation MessageType = "clear_conversation"
	MessageTypeCaptureStarted    MessageType = "capture_started"
	MessageTypeCaptureDenied     MessageType = "capture_denied"
	MessageTypeCaptureError      MessageType = "capture_error"
	MessageTypeCaptureStopped    MessageType = "capture_stopped"
	MessageTypeAudioEvent        MessageType = "audio_event"
	MessageTypePing              MessageType = "ping"
)

// Messages sent to the widget page
const (
	MessageTypeState        MessageType = "state"
	MessageTypeCaptureStart MessageType = "capture_start"
	MessageTypeCaptureStop  MessageType = "capture_stop"
	MessageTypeAudioPlay    MessageType = "audio_play"
	MessageTypeAudioPause   MessageType = "audio_pause"
	MessageTypeAudioStop    MessageType = "audio_stop"
	MessageTypeError        MessageType = "error"
	MessageTypePong         MessageType = "pong"
)

// BaseMessage defines the common structure for all WebSocket messages
type BaseMessage struct {
	Type      MessageType `json:"type"`
	Timestamp string      `json:"timestamp,omitempty"`
	MessageID string      `json:"message_id,omitempty"`
}

// CommandMessage is a message that carries nothing but its type
type CommandMessage struct {
	BaseMessage
}

// HelloMessage announces what the page's recorder can produce
type HelloMessage struct {
	BaseMessage
	SupportedMimeTypes []string `json:"supported_mime_types"`
}

// SendTextMessage carries a typed visitor message
type SendTextMessage struct {
	BaseMessage
	Text string `json:"text"`
}

// PlayAudioMessage asks to play an audio reply
type PlayAudioMessage struct {
	BaseMessage
	URL string `json:"url"`
}

// SetLanguageMessage changes the language preference
type SetLanguageMessage struct {
	BaseMessage
	Language string `json:"language"`
}

// CaptureErrorMessage reports a recorder failure on the page
type CaptureErrorMessage struct {
	BaseMessage
	CaptureID string `json:"capture_id,omitempty"`
	Message   string `json:"message"`
}

// CaptureAckMessage acknowledges a capture command. capture_started and
// capture_stopped must echo the id from capture_start.
type CaptureAckMessage struct {
	BaseMessage
	CaptureID string `json:"capture_id"`
}

// AudioEventMessage reports progress of an audio element on the page
type AudioEventMessage struct {
	BaseMessage
	ElementID string `json:"element_id"`
	Event     string `json:"event"`
}

// PingMessage represents a ping message for connection health check
type PingMessage struct {
	BaseMessage
	Data string `json:"data,omitempty"`
}

// PongMessage represents a pong response to ping
type PongMessage struct {
	BaseMessage
	Data string `json:"data,omitempty"`
}

// StateMessage carries the full widget state for rendering
type StateMessage struct {
	BaseMessage
	entities.WidgetSnapshot
}

// CaptureStartMessage asks the page to start its recorder
type CaptureStartMessage struct {
	BaseMessage
	CaptureID   string `json:"capture_id"`
	MimeType    string `json:"mime_type"`
	TimesliceMs int64  `json:"timeslice_ms"`
}

// CaptureStopMessage asks the page to stop the recorder for one capture
type CaptureStopMessage struct {
	BaseMessage
	CaptureID string `json:"capture_id"`
}

// AudioCommandMessage drives an audio element on the page
type AudioCommandMessage struct {
	BaseMessage
	ElementID string `json:"element_id"`
	URL       string `json:"url,omitempty"`
}

// ErrorMessage represents an error response
type ErrorMessage struct {
	BaseMessage
	Code    string `json:"error_code"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
}

var audioEvents = map[string]bool{
	string(repositories.AudioEventPlaying): true,
	string(repositories.AudioEventPaused):  true,
	string(repositories.AudioEventEnded):   true,
	string(repositories.AudioEventError):   true,
}

// MessageValidator validates and parses messages from the widget page
type MessageValidator struct{}

// NewMessageValidator creates a new message validator
func NewMessageValidator() *MessageValidator {
	return &MessageValidator{}
}

// ValidateMessage parses and validates a text frame, returning the typed
// message.
func (v *MessageValidator) ValidateMessage(messageBytes []byte) (interface{}, error) {
	var base BaseMessage
	if err := json.Unmarshal(messageBytes, &base); err != nil {
		return nil, fmt.Errorf("invalid message format: %w", err)
	}
	if base.Type == "" {
		return nil, fmt.Errorf("type is required")
	}

	switch base.Type {
	case MessageTypeHello:
		var msg HelloMessage
		if err := json.Unmarshal(messageBytes, &msg); err != nil {
			return nil, fmt.Errorf("invalid hello message: %w", err)
		}
		return &msg, nil

	case MessageTypeSendText:
		var msg SendTextMessage
		if err := json.Unmarshal(messageBytes, &msg); err != nil {
			return nil, fmt.Errorf("invalid send_text message: %w", err)
		}
		return &msg, nil

	case MessageTypePlayAudio:
		var msg PlayAudioMessage
		if err := json.Unmarshal(messageBytes, &msg); err != nil {
			return nil, fmt.Errorf("invalid play_audio message: %w", err)
		}
		if strings.TrimSpace(msg.URL) == "" {
			return nil, fmt.Errorf("url is required")
		}
		return &msg, nil

	case MessageTypeSetLanguage:
		var msg SetLanguageMessage
		if err := json.Unmarshal(messageBytes, &msg); err != nil {
			return nil, fmt.Errorf("invalid set_language message: %w", err)
		}
		if msg.Language == "" {
			return nil, fmt.Errorf("language is required")
		}
		return &msg, nil

	case MessageTypeCaptureError:
		var msg CaptureErrorMessage
		if err := json.Unmarshal(messageBytes, &msg); err != nil {
			return nil, fmt.Errorf("invalid capture_error message: %w", err)
		}
		return &msg, nil

	case MessageTypeAudioEvent:
		var msg AudioEventMessage
		if err := json.Unmarshal(messageBytes, &msg); err != nil {
			return nil, fmt.Errorf("invalid audio_event message: %w", err)
		}
		if err := v.validateAudioEvent(&msg); err != nil {
			return nil, err
		}
		return &msg, nil

	case MessageTypeCaptureStarted, MessageTypeCaptureStopped, MessageTypeCaptureDenied:
		var msg CaptureAckMessage
		if err := json.Unmarshal(messageBytes, &msg); err != nil {
			return nil, fmt.Errorf("invalid %s message: %w", base.Type, err)
		}
		if msg.CaptureID == "" && base.Type != MessageTypeCaptureDenied {
			return nil, fmt.Errorf("capture_id is required")
		}
		return &msg, nil

	case MessageTypePing:
		var msg PingMessage
		if err := json.Unmarshal(messageBytes, &msg); err != nil {
			return nil, fmt.Errorf("invalid ping message: %w", err)
		}
		return &msg, nil

	case MessageTypeStartRecording, MessageTypeStopRecording, MessageTypeCancelRecording,
		MessageTypePauseAudio, MessageTypeStopAudio, MessageTypeClearConversation:
		return &CommandMessage{BaseMessage: base}, nil

	default:
		return nil, fmt.Errorf("unsupported message type: %s", base.Type)
	}
}

func (v *MessageValidator) validateAudioEvent(msg *AudioEventMessage) error {
	if msg.ElementID == "" {
		return fmt.Errorf("element_id is required")
	}
	if !audioEvents[msg.Event] {
		return fmt.Errorf("event must be one of: playing, paused, ended, error")
	}
	return nil
}

func newBase(t MessageType) BaseMessage {
	return BaseMessage{
		Type:      t,
		Timestamp: time.Now().Format(time.RFC3339),
	}
}

// CreateErrorMessage creates a standardized error message
func CreateErrorMessage(code, message, details string) *ErrorMessage {
	return &ErrorMessage{
		BaseMessage: newBase(MessageTypeError),
		Code:        code,
		Message:     message,
		Details:     details,
	}
}

// CreatePongMessage creates a pong response message
func CreatePongMessage(data string) *PongMessage {
	return &PongMessage{
		BaseMessage: newBase(MessageTypePong),
		Data:        data,
	}
}

// CreateStateMessage wraps a widget snapshot for the page
func CreateStateMessage(snap entities.WidgetSnapshot) *StateMessage {
	return &StateMessage{
		BaseMessage:    newBase(MessageTypeState),
		WidgetSnapshot: snap,
	}
}

// CreateCaptureStartMessage asks the page to record captureID with mimeType
func CreateCaptureStartMessage(captureID, mimeType string, timeslice time.Duration) *CaptureStartMessage {
	return &CaptureStartMessage{
		BaseMessage: newBase(MessageTypeCaptureStart),
		CaptureID:   captureID,
		MimeType:    mimeType,
		TimesliceMs: timeslice.Milliseconds(),
	}
}

// CreateCaptureStopMessage asks the page to stop capture captureID
func CreateCaptureStopMessage(captureID string) *CaptureStopMessage {
	return &CaptureStopMessage{
		BaseMessage: newBase(MessageTypeCaptureStop),
		CaptureID:   captureID,
	}
}

// CreateAudioCommandMessage drives the audio element elementID
func CreateAudioCommandMessage(t MessageType, elementID, url string) *AudioCommandMessage {
	return &AudioCommandMessage{
		BaseMessage: newBase(t),
		ElementID:   elementID,
		URL:         url,
	}
}
