package domain

import "github.com/vmkdxailabs/chatwidget/domain/entities"

// HistoryEntry is one prior turn sent as chat context
type HistoryEntry struct {
	Role    entities.MessageRole `json:"role"`
	Content string               `json:"content"`
}

// ChatRequest is the payload of the remote chat endpoint
type ChatRequest struct {
	Message   string            `json:"message"`
	Language  entities.Language `json:"language"`
	SessionID string            `json:"session_id"`
	History   []HistoryEntry    `json:"history"`
}

// ChatResponse is the validated reply of the remote chat endpoint
type ChatResponse struct {
	Reply    string             `json:"reply"`
	Language string             `json:"language"`
	Lead     *entities.LeadData `json:"lead,omitempty"`
}

// VoiceResponse is the validated reply of the remote voice endpoint
type VoiceResponse struct {
	Transcript       string             `json:"transcript"`
	Reply            string             `json:"reply"`
	AudioURL         string             `json:"audio_url"`
	DetectedLanguage string             `json:"detected_language"`
	Lead             *entities.LeadData `json:"lead,omitempty"`
}

// AudioUpload is an assembled recording ready to be sent
type AudioUpload struct {
	Data     []byte
	MimeType string
}

// LeadSource identifies which turn type captured a lead
type LeadSource string

const (
	LeadSourceText  LeadSource = "text"
	LeadSourceVoice LeadSource = "voice"
)
