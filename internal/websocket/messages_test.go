package websocket

import (
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/vmkdxailabs/chatwidget/domain/entities"
)

func TestMessageValidator_ValidateMessage(t *testing.T) {
	validator := NewMessageValidator()

	tests := []struct {
		name    string
		message string
		want    interface{}
		wantErr bool
	}{
		{
			name:    "hello",
			message: `{"type": "hello", "supported_mime_types": ["audio/webm;codecs=opus", "audio/webm"]}`,
			want:    &HelloMessage{},
		},
		{
			name:    "send text",
			message: `{"type": "send_text", "text": "hi there"}`,
			want:    &SendTextMessage{},
		},
		{
			name:    "send text may be blank",
			message: `{"type": "send_text", "text": "  "}`,
			want:    &SendTextMessage{},
		},
		{
			name:    "play audio",
			message: `{"type": "play_audio", "url": "/audio/reply.mp3"}`,
			want:    &PlayAudioMessage{},
		},
		{
			name:    "play audio without url",
			message: `{"type": "play_audio", "url": " "}`,
			wantErr: true,
		},
		{
			name:    "set language",
			message: `{"type": "set_language", "language": "ta"}`,
			want:    &SetLanguageMessage{},
		},
		{
			name:    "set language without value",
			message: `{"type": "set_language"}`,
			wantErr: true,
		},
		{
			name:    "capture error",
			message: `{"type": "capture_error", "message": "NotReadableError"}`,
			want:    &CaptureErrorMessage{},
		},
		{
			name:    "audio event",
			message: `{"type": "audio_event", "element_id": "el-1", "event": "ended"}`,
			want:    &AudioEventMessage{},
		},
		{
			name:    "audio event without element",
			message: `{"type": "audio_event", "event": "ended"}`,
			wantErr: true,
		},
		{
			name:    "audio event with unknown event",
			message: `{"type": "audio_event", "element_id": "el-1", "event": "seeking"}`,
			wantErr: true,
		},
		{
			name:    "ping",
			message: `{"type": "ping", "data": "x"}`,
			want:    &PingMessage{},
		},
		{
			name:    "bare command",
			message: `{"type": "stop_recording"}`,
			want:    &CommandMessage{},
		},
		{
			name:    "capture started",
			message: `{"type": "capture_started", "capture_id": "cap-1"}`,
			want:    &CaptureAckMessage{},
		},
		{
			name:    "capture stopped without capture id",
			message: `{"type": "capture_stopped"}`,
			wantErr: true,
		},
		{
			name:    "capture denied without capture id",
			message: `{"type": "capture_denied"}`,
			want:    &CaptureAckMessage{},
		},
		{
			name:    "outbound type is not accepted",
			message: `{"type": "state"}`,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := validator.ValidateMessage([]byte(tt.message))
			if (err != nil) != tt.wantErr {
				t.Fatalf("ValidateMessage() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				return
			}
			if fmt.Sprintf("%T", got) != fmt.Sprintf("%T", tt.want) {
				t.Errorf("Expected %T, got %T", tt.want, got)
			}
		})
	}
}

func TestMessageValidator_ParsesFields(t *testing.T) {
	validator := NewMessageValidator()

	got, err := validator.ValidateMessage([]byte(`{"type": "hello", "supported_mime_types": ["audio/webm"]}`))
	if err != nil {
		t.Fatalf("ValidateMessage() error = %v", err)
	}
	hello := got.(*HelloMessage)
	if len(hello.SupportedMimeTypes) != 1 || hello.SupportedMimeTypes[0] != "audio/webm" {
		t.Errorf("Expected [audio/webm], got %v", hello.SupportedMimeTypes)
	}

	got, err = validator.ValidateMessage([]byte(`{"type": "clear_conversation"}`))
	if err != nil {
		t.Fatalf("ValidateMessage() error = %v", err)
	}
	if cmd := got.(*CommandMessage); cmd.Type != MessageTypeClearConversation {
		t.Errorf("Expected %s, got %s", MessageTypeClearConversation, cmd.Type)
	}
}

func TestCreateErrorMessage(t *testing.T) {
	code := "rate_limited"
	message := "Too many requests. Please wait a moment."
	details := "429"

	errorMsg := CreateErrorMessage(code, message, details)

	if errorMsg.Type != MessageTypeError {
		t.Errorf("Expected type %s, got %s", MessageTypeError, errorMsg.Type)
	}
	if errorMsg.Code != code {
		t.Errorf("Expected code %s, got %s", code, errorMsg.Code)
	}
	if errorMsg.Message != message {
		t.Errorf("Expected message %s, got %s", message, errorMsg.Message)
	}
	if errorMsg.Details != details {
		t.Errorf("Expected details %s, got %s", details, errorMsg.Details)
	}

	// Verify timestamp is recent
	timestamp, err := time.Parse(time.RFC3339, errorMsg.Timestamp)
	if err != nil {
		t.Errorf("Invalid timestamp format: %v", err)
	}
	if time.Since(timestamp) > 2*time.Second {
		t.Errorf("Timestamp is not recent: %s", errorMsg.Timestamp)
	}
}

func TestCreatePongMessage(t *testing.T) {
	pongMsg := CreatePongMessage("test-pong-data")

	if pongMsg.Type != MessageTypePong {
		t.Errorf("Expected type %s, got %s", MessageTypePong, pongMsg.Type)
	}
	if pongMsg.Data != "test-pong-data" {
		t.Errorf("Expected data test-pong-data, got %s", pongMsg.Data)
	}
}

func TestOutboundMessageShape(t *testing.T) {
	tests := []struct {
		name   string
		msg    interface{}
		fields []string
	}{
		{
			name: "state",
			msg: CreateStateMessage(entities.WidgetSnapshot{
				Playback: entities.PlaybackSnapshot{Status: entities.PlaybackStatusEnded},
			}),
			fields: []string{"type", "conversation", "recording", "playback"},
		},
		{
			name:   "capture start",
			msg:    CreateCaptureStartMessage("cap-1", "audio/webm", 250*time.Millisecond),
			fields: []string{"type", "capture_id", "mime_type", "timeslice_ms"},
		},
		{
			name:   "capture stop",
			msg:    CreateCaptureStopMessage("cap-1"),
			fields: []string{"type", "capture_id"},
		},
		{
			name:   "audio play",
			msg:    CreateAudioCommandMessage(MessageTypeAudioPlay, "el-1", "/audio/a.mp3"),
			fields: []string{"type", "element_id", "url"},
		},
		{
			name:   "error",
			msg:    CreateErrorMessage("empty_message", "message is empty", ""),
			fields: []string{"type", "error_code", "message"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, err := json.Marshal(tt.msg)
			if err != nil {
				t.Fatalf("Failed to marshal message: %v", err)
			}
			var result map[string]interface{}
			if err := json.Unmarshal(data, &result); err != nil {
				t.Fatalf("Failed to unmarshal message: %v", err)
			}
			for _, field := range tt.fields {
				if _, exists := result[field]; !exists {
					t.Errorf("Message missing %q field: %s", field, data)
				}
			}
		})
	}

	data, _ := json.Marshal(CreateCaptureStartMessage("cap-1", "audio/webm", 250*time.Millisecond))
	var start CaptureStartMessage
	if err := json.Unmarshal(data, &start); err != nil {
		t.Fatalf("Failed to unmarshal capture start: %v", err)
	}
	if start.CaptureID != "cap-1" {
		t.Errorf("Expected capture id cap-1, got %s", start.CaptureID)
	}
	if start.TimesliceMs != 250 {
		t.Errorf("Expected timeslice 250ms, got %d", start.TimesliceMs)
	}
}

func TestMessageValidator_InvalidJSON(t *testing.T) {
	validator := NewMessageValidator()

	invalidMessages := []string{
		`{invalid json}`,
		`{"type": "send_text", "text":}`,
		``,
		`null`,
		`{"type": }`,
		`{"text": "no type"}`,
	}

	for i, msg := range invalidMessages {
		t.Run(fmt.Sprintf("invalid_json_%d", i), func(t *testing.T) {
			_, err := validator.ValidateMessage([]byte(msg))
			if err == nil {
				t.Errorf("Expected error for invalid JSON, got nil")
			}
		})
	}
}

func TestMessageValidator_UnsupportedMessageType(t *testing.T) {
	validator := NewMessageValidator()

	_, err := validator.ValidateMessage([]byte(`{"type": "listening_start"}`))
	if err == nil {
		t.Error("Expected error for unsupported message type, got nil")
	}
}
