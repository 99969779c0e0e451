package usecase

import (
	"context"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/vmkdxailabs/chatwidget/domain"
	"github.com/vmkdxailabs/chatwidget/domain/entities"
	"github.com/vmkdxailabs/chatwidget/domain/repositories"
	"github.com/vmkdxailabs/chatwidget/internal/observability"
)

const (
	VoicePlaceholder    = "🎤 Voice message..."
	VoiceFailedMarker   = "🎤 (failed to process)"
	DefaultHistoryLimit = 10
	DefaultLeadTimeout  = 10 * time.Second
)

// ConversationOptions tunes the conversation flow
type ConversationOptions struct {
	HistoryLimit int
	LeadTimeout  time.Duration
}

// ConversationService orchestrates text and voice turns against the
// assistant and keeps the conversation log.
type ConversationService struct {
	assistant repositories.Assistant
	notifier  repositories.LeadNotifier
	opts      ConversationOptions
	metrics   *observability.Metrics
	logger    *zap.Logger

	mu        sync.Mutex
	log       *messageLog
	sessionID string
	language  entities.Language
	awaiting  bool
	turn      uint64
	onChange  func(entities.ConversationSnapshot)

	leads sync.WaitGroup
}

// NewConversationService creates a new conversation service. notifier may be
// nil, in which case captured leads are only logged.
func NewConversationService(
	assistant repositories.Assistant,
	notifier repositories.LeadNotifier,
	opts ConversationOptions,
	metrics *observability.Metrics,
	logger *zap.Logger,
) *ConversationService {
	if opts.HistoryLimit <= 0 {
		opts.HistoryLimit = DefaultHistoryLimit
	}
	if opts.LeadTimeout <= 0 {
		opts.LeadTimeout = DefaultLeadTimeout
	}
	return &ConversationService{
		assistant: assistant,
		notifier:  notifier,
		opts:      opts,
		metrics:   metrics,
		logger:    logger,
		log:       newMessageLog(),
		sessionID: entities.NewID(),
		language:  entities.LanguageAuto,
	}
}

// SetChangeHook registers fn to receive the conversation after each change
func (s *ConversationService) SetChangeHook(fn func(entities.ConversationSnapshot)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onChange = fn
}

// SendText runs a text turn. Blank input and overlapping turns are rejected
// without touching the log; transport failures are recorded as an assistant
// message and not returned.
func (s *ConversationService) SendText(ctx context.Context, text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return domain.ErrEmptyMessage
	}

	s.mu.Lock()
	if s.awaiting {
		s.mu.Unlock()
		return domain.ErrTurnInFlight
	}
	s.log.append(entities.MessageRoleUser, text, time.Now())
	turn := s.beginTurnLocked()
	req := domain.ChatRequest{
		Message:   text,
		Language:  s.language,
		SessionID: s.sessionID,
		History:   s.log.history(s.opts.HistoryLimit),
	}
	s.mu.Unlock()
	defer s.endTurn(turn)
	s.notify()

	s.logger.Info("Sending text turn",
		zap.String("sessionID", req.SessionID),
		zap.String("language", string(req.Language)),
		zap.Int("history", len(req.History)))

	started := time.Now()
	resp, err := s.assistant.SendChat(ctx, req)

	s.mu.Lock()
	stale := req.SessionID != s.sessionID
	switch {
	case stale:
	case err != nil:
		s.log.append(entities.MessageRoleAssistant, domain.UserMessage(err, domain.MessageGenericText), time.Now())
	default:
		reply := s.log.append(entities.MessageRoleAssistant, resp.Reply, time.Now())
		reply.Language = resp.Language
	}
	s.awaiting = false
	s.mu.Unlock()
	s.notify()

	s.settle("text", req.SessionID, stale, started, err)
	if err == nil && resp.Lead != nil {
		s.dispatchLead(*resp.Lead, domain.LeadSourceText)
	}
	return nil
}

// SendVoice runs a voice turn. The user message starts as a placeholder and
// is backfilled with the transcript, or with a failure marker.
func (s *ConversationService) SendVoice(ctx context.Context, audio domain.AudioUpload) error {
	if len(audio.Data) == 0 {
		return domain.ErrEmptyRecording
	}

	s.mu.Lock()
	if s.awaiting {
		s.mu.Unlock()
		return domain.ErrTurnInFlight
	}
	placeholder := s.log.append(entities.MessageRoleUser, VoicePlaceholder, time.Now())
	placeholderID := placeholder.ID
	turn := s.beginTurnLocked()
	sessionID := s.sessionID
	language := s.language
	s.mu.Unlock()
	defer s.endTurn(turn)
	s.notify()

	s.logger.Info("Sending voice turn",
		zap.String("sessionID", sessionID),
		zap.String("language", string(language)),
		zap.String("mimeType", audio.MimeType),
		zap.Int("bytes", len(audio.Data)))

	started := time.Now()
	resp, err := s.assistant.SendVoice(ctx, audio, language, sessionID)

	s.mu.Lock()
	stale := sessionID != s.sessionID
	if !stale {
		origin, ok := s.log.get(placeholderID)
		if err != nil {
			if ok {
				origin.Content = VoiceFailedMarker
			}
			s.log.append(entities.MessageRoleAssistant, domain.UserMessage(err, domain.MessageGenericVoice), time.Now())
		} else {
			if ok {
				origin.Content = resp.Transcript
				origin.Language = resp.DetectedLanguage
			}
			reply := s.log.append(entities.MessageRoleAssistant, resp.Reply, time.Now())
			reply.Language = resp.DetectedLanguage
			reply.AudioReplyRef = resp.AudioURL
		}
	}
	s.awaiting = false
	s.mu.Unlock()
	s.notify()

	s.settle("voice", sessionID, stale, started, err)
	if err == nil && resp.Lead != nil {
		s.dispatchLead(*resp.Lead, domain.LeadSourceVoice)
	}
	return nil
}

func (s *ConversationService) beginTurnLocked() uint64 {
	s.awaiting = true
	s.turn++
	return s.turn
}

// endTurn clears the awaiting flag if turn still holds it, so a turn that
// exits abnormally never leaves the widget loading.
func (s *ConversationService) endTurn(turn uint64) {
	s.mu.Lock()
	cleared := s.awaiting && s.turn == turn
	if cleared {
		s.awaiting = false
	}
	s.mu.Unlock()
	if cleared {
		s.notify()
	}
}

func (s *ConversationService) settle(kind, sessionID string, stale bool, started time.Time, err error) {
	outcome := "ok"
	switch {
	case err != nil:
		outcome = "error"
		s.logger.Error("Turn failed",
			zap.String("kind", kind),
			zap.String("sessionID", sessionID),
			zap.Error(err))
		s.metrics.ObserveError(string(domain.KindOf(err)))
	default:
		s.logger.Info("Turn completed",
			zap.String("kind", kind),
			zap.String("sessionID", sessionID),
			zap.Duration("latency", time.Since(started)))
	}
	if stale {
		outcome = "stale"
		s.logger.Info("Dropping reply for cleared conversation",
			zap.String("kind", kind),
			zap.String("sessionID", sessionID))
	}
	s.metrics.ObserveTurn(kind, outcome, time.Since(started))
}

// dispatchLead forwards a captured lead without blocking the turn. Failures
// are only logged.
func (s *ConversationService) dispatchLead(lead entities.LeadData, source domain.LeadSource) {
	if !lead.Complete() {
		return
	}
	s.logger.Info("Lead captured",
		zap.String("source", string(source)),
		zap.String("email", lead.Email))
	if s.notifier == nil {
		return
	}

	s.leads.Add(1)
	go func() {
		defer s.leads.Done()
		ctx, cancel := context.WithTimeout(context.Background(), s.opts.LeadTimeout)
		defer cancel()

		if err := s.notifier.NotifyLead(ctx, lead, source); err != nil {
			s.logger.Error("Failed to send lead notification",
				zap.String("source", string(source)),
				zap.Error(err))
			s.metrics.ObserveLead(string(source), "failed")
			return
		}
		s.metrics.ObserveLead(string(source), "sent")
	}()
}

// ReportFailure records a failure that happened outside a turn, such as a
// capture error, as one assistant message.
func (s *ConversationService) ReportFailure(err error) {
	if err == nil {
		return
	}
	s.mu.Lock()
	s.log.append(entities.MessageRoleAssistant, domain.UserMessage(err, domain.MessageGenericText), time.Now())
	s.mu.Unlock()

	s.logger.Warn("Reported failure to visitor", zap.Error(err))
	s.notify()
}

// SetLanguage changes the language sent with the next turn
func (s *ConversationService) SetLanguage(value string) error {
	lang, ok := entities.ParseLanguage(value)
	if !ok {
		return domain.ErrUnsupportedLanguage
	}
	s.mu.Lock()
	s.language = lang
	s.mu.Unlock()

	s.logger.Info("Language changed", zap.String("language", string(lang)))
	s.notify()
	return nil
}

// ClearConversation empties the log and starts a new session. A turn in
// flight is not cancelled; its reply is dropped when it settles.
func (s *ConversationService) ClearConversation() {
	s.mu.Lock()
	old := s.sessionID
	discarded := s.log.len()
	s.log.reset()
	s.sessionID = entities.NewID()
	next := s.sessionID
	s.mu.Unlock()

	s.logger.Info("Conversation cleared",
		zap.String("previousSessionID", old),
		zap.String("sessionID", next),
		zap.Int("discarded", discarded))
	s.notify()
}

// Snapshot returns a copy of the conversation state
func (s *ConversationService) Snapshot() entities.ConversationSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

func (s *ConversationService) snapshotLocked() entities.ConversationSnapshot {
	return entities.ConversationSnapshot{
		SessionID:       s.sessionID,
		Language:        s.language,
		IsAwaitingReply: s.awaiting,
		Messages:        s.log.snapshot(),
	}
}

// Wait blocks until every lead notification has finished
func (s *ConversationService) Wait() {
	s.leads.Wait()
}

func (s *ConversationService) notify() {
	s.mu.Lock()
	fn := s.onChange
	snap := s.snapshotLocked()
	s.mu.Unlock()
	if fn != nil {
		fn(snap)
	}
}
