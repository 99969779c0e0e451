package repositories

import (
	"context"

	"github.com/vmkdxailabs/chatwidget/domain"
	"github.com/vmkdxailabs/chatwidget/domain/entities"
)

// Assistant abstracts the remote assistant service
type Assistant interface {
	// SendChat sends a text turn
	SendChat(ctx context.Context, req domain.ChatRequest) (*domain.ChatResponse, error)
	// SendVoice uploads a recorded turn for transcription and reply
	SendVoice(ctx context.Context, audio domain.AudioUpload, language entities.Language, sessionID string) (*domain.VoiceResponse, error)
}

// LeadNotifier forwards captured leads to the sales inbox
type LeadNotifier interface {
	NotifyLead(ctx context.Context, lead entities.LeadData, source domain.LeadSource) error
}
