package entities

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// MessageRole represents the role of a message sender
type MessageRole string

const (
	MessageRoleUser      MessageRole = "user"
	MessageRoleAssistant MessageRole = "assistant"
)

// Language is the language preference sent with every turn
type Language string

const (
	LanguageAuto    Language = "auto"
	LanguageTamil   Language = "ta"
	LanguageEnglish Language = "en"
	LanguageHindi   Language = "hi"
)

var languageLabels = map[Language]string{
	LanguageAuto:    "Auto",
	LanguageTamil:   "Tamil",
	LanguageEnglish: "English",
	LanguageHindi:   "Hindi",
}

// SupportedLanguages lists the selectable languages in display order
func SupportedLanguages() []Language {
	return []Language{LanguageAuto, LanguageTamil, LanguageEnglish, LanguageHindi}
}

// ParseLanguage normalizes a language tag and reports whether it is supported
func ParseLanguage(v string) (Language, bool) {
	lang := Language(strings.ToLower(strings.TrimSpace(v)))
	_, ok := languageLabels[lang]
	return lang, ok
}

// Label returns the human readable name of the language
func (l Language) Label() string {
	if label, ok := languageLabels[l]; ok {
		return label
	}
	return string(l)
}

// ChatMessage represents one turn entry in the conversation log.
// ID, Role and CreatedAt never change after creation; Content, Language and
// AudioReplyRef are only rewritten when a transcript or failure marker is
// backfilled onto the originating message.
type ChatMessage struct {
	ID            string      `json:"id"`
	Role          MessageRole `json:"role"`
	Content       string      `json:"content"`
	Language      string      `json:"language,omitempty"`
	AudioReplyRef string      `json:"audio_url,omitempty"`
	CreatedAt     time.Time   `json:"created_at"`
}

// NewChatMessage creates a message with a fresh identifier
func NewChatMessage(role MessageRole, content string, createdAt time.Time) ChatMessage {
	return ChatMessage{
		ID:        NewID(),
		Role:      role,
		Content:   content,
		CreatedAt: createdAt,
	}
}

// LeadData is the contact information captured by the assistant
type LeadData struct {
	Name        string `json:"name"`
	Mobile      string `json:"mobile"`
	Email       string `json:"email"`
	Requirement string `json:"requirement"`
}

// Complete reports whether every lead field is filled in
func (l LeadData) Complete() bool {
	return strings.TrimSpace(l.Name) != "" &&
		strings.TrimSpace(l.Mobile) != "" &&
		strings.TrimSpace(l.Email) != "" &&
		strings.TrimSpace(l.Requirement) != ""
}

// NewID returns a collision resistant identifier. UUIDv7 carries a
// millisecond timestamp followed by random bits.
func NewID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}
