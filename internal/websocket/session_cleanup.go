package websocket

import (
	"sync"
	"time"

	"go.uber.org/zap"
)

// SessionCleanupService closes widget connections that have been idle for
// longer than the idle timeout.
type SessionCleanupService struct {
	hub         *Hub
	idleTimeout time.Duration
	interval    time.Duration
	logger      *zap.Logger

	stopChan chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewSessionCleanupService creates a new session cleanup service. The idle
// check runs every tenth of idleTimeout, at most once a minute.
func NewSessionCleanupService(hub *Hub, idleTimeout time.Duration, logger *zap.Logger) *SessionCleanupService {
	interval := idleTimeout / 10
	if interval > time.Minute {
		interval = time.Minute
	}
	if interval <= 0 {
		interval = time.Second
	}
	return &SessionCleanupService{
		hub:         hub,
		idleTimeout: idleTimeout,
		interval:    interval,
		logger:      logger,
		stopChan:    make(chan struct{}),
	}
}

// Start begins the background cleanup process
func (s *SessionCleanupService) Start() {
	if s.idleTimeout <= 0 {
		s.logger.Info("Session cleanup disabled")
		return
	}
	s.wg.Add(1)
	go s.cleanupLoop()
	s.logger.Info("Session cleanup service started", zap.Duration("idleTimeout", s.idleTimeout))
}

// Stop gracefully stops the cleanup service
func (s *SessionCleanupService) Stop() {
	s.stopOnce.Do(func() { close(s.stopChan) })
	s.wg.Wait()
	s.logger.Info("Session cleanup service stopped")
}

// cleanupLoop runs the cleanup process periodically
func (s *SessionCleanupService) cleanupLoop() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopChan:
			return
		case <-ticker.C:
			s.runCleanup()
		}
	}
}

// runCleanup closes every connection idle past the timeout
func (s *SessionCleanupService) runCleanup() {
	if n := s.hub.closeIdle(time.Now().Add(-s.idleTimeout)); n > 0 {
		s.logger.Info("Closed idle connections", zap.Int("count", n))
	}
}
