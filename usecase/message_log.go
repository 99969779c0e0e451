package usecase

import (
	"time"

	"github.com/vmkdxailabs/chatwidget/domain"
	"github.com/vmkdxailabs/chatwidget/domain/entities"
)

// messageLog stores messages in insertion order with an index by ID so a
// backfill can find its target without matching on content. Callers hold
// the owning service's lock.
type messageLog struct {
	order []string
	byID  map[string]*entities.ChatMessage
	last  time.Time
}

func newMessageLog() *messageLog {
	return &messageLog{byID: make(map[string]*entities.ChatMessage)}
}

// append adds a message with a fresh ID, clamping its timestamp so that
// CreatedAt never decreases within the log.
func (l *messageLog) append(role entities.MessageRole, content string, now time.Time) *entities.ChatMessage {
	if now.Before(l.last) {
		now = l.last
	}
	l.last = now

	msg := entities.NewChatMessage(role, content, now)
	l.order = append(l.order, msg.ID)
	l.byID[msg.ID] = &msg
	return &msg
}

// get returns the live message for id
func (l *messageLog) get(id string) (*entities.ChatMessage, bool) {
	msg, ok := l.byID[id]
	return msg, ok
}

func (l *messageLog) len() int {
	return len(l.order)
}

// snapshot copies the messages in display order
func (l *messageLog) snapshot() []entities.ChatMessage {
	out := make([]entities.ChatMessage, 0, len(l.order))
	for _, id := range l.order {
		out = append(out, *l.byID[id])
	}
	return out
}

// history returns role and content of the most recent limit messages
func (l *messageLog) history(limit int) []domain.HistoryEntry {
	start := 0
	if limit > 0 && len(l.order) > limit {
		start = len(l.order) - limit
	}
	out := make([]domain.HistoryEntry, 0, len(l.order)-start)
	for _, id := range l.order[start:] {
		msg := l.byID[id]
		out = append(out, domain.HistoryEntry{Role: msg.Role, Content: msg.Content})
	}
	return out
}

// reset drops every message. The timestamp floor is kept so a new session
// never starts before the previous one ended.
func (l *messageLog) reset() {
	l.order = nil
	l.byID = make(map[string]*entities.ChatMessage)
}
