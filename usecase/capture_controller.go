package usecase

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/vmkdxailabs/chatwidget/domain"
	"github.com/vmkdxailabs/chatwidget/domain/entities"
	"github.com/vmkdxailabs/chatwidget/domain/repositories"
	"github.com/vmkdxailabs/chatwidget/internal/observability"
)

const (
	PreferredMimeType = "audio/webm;codecs=opus"
	FallbackMimeType  = "audio/webm"
)

// ErrCaptureCancelled is returned by Start when Cancel ran while the device
// was still being acquired.
var ErrCaptureCancelled = errors.New("capture cancelled during start")

// CaptureOptions holds the capture timing parameters
type CaptureOptions struct {
	MaxDuration  time.Duration
	StopGrace    time.Duration
	Timeslice    time.Duration
	TickInterval time.Duration
}

// DefaultCaptureOptions returns the production capture timings
func DefaultCaptureOptions() CaptureOptions {
	return CaptureOptions{
		MaxDuration:  30 * time.Second,
		StopGrace:    2 * time.Second,
		Timeslice:    250 * time.Millisecond,
		TickInterval: 500 * time.Millisecond,
	}
}

func (o CaptureOptions) withDefaults() CaptureOptions {
	def := DefaultCaptureOptions()
	if o.MaxDuration <= 0 {
		o.MaxDuration = def.MaxDuration
	}
	if o.StopGrace <= 0 {
		o.StopGrace = def.StopGrace
	}
	if o.Timeslice <= 0 {
		o.Timeslice = def.Timeslice
	}
	if o.TickInterval <= 0 {
		o.TickInterval = def.TickInterval
	}
	return o
}

// Recording is an assembled capture ready for upload
type Recording struct {
	Data     []byte
	MimeType string
	Duration time.Duration
}

// Upload converts the recording to its transport form
func (r *Recording) Upload() domain.AudioUpload {
	return domain.AudioUpload{Data: r.Data, MimeType: r.MimeType}
}

type recordingSession struct {
	recorder  repositories.Recorder
	mimeType  string
	startedAt time.Time
	chunks    [][]byte
	elapsed   int
	stopping  bool
	auto      bool

	confirmed chan struct{} // closed when the device confirms it stopped
	dead      chan struct{} // closed on cancel, failure or teardown
	done      chan struct{} // closed once result is final
	result    *Recording

	killOnce sync.Once
	stopOnce sync.Once
}

func (s *recordingSession) kill() {
	s.killOnce.Do(func() { close(s.dead) })
}

func (s *recordingSession) stopDevice() {
	s.stopOnce.Do(s.recorder.Stop)
}

// CaptureController owns the microphone and the lifecycle of one recording
// at a time.
type CaptureController struct {
	mic     repositories.Microphone
	opts    CaptureOptions
	metrics *observability.Metrics
	logger  *zap.Logger

	mu         sync.Mutex
	session    *recordingSession
	completed  *Recording
	starting   bool
	generation uint64

	onChange   func(entities.RecordingSnapshot)
	onAutoStop func()
	onError    func(error)
}

// NewCaptureController creates a capture controller for mic
func NewCaptureController(
	mic repositories.Microphone,
	opts CaptureOptions,
	metrics *observability.Metrics,
	logger *zap.Logger,
) *CaptureController {
	return &CaptureController{
		mic:     mic,
		opts:    opts.withDefaults(),
		metrics: metrics,
		logger:  logger,
	}
}

// SetChangeHook registers fn to receive the recording state after each change
func (c *CaptureController) SetChangeHook(fn func(entities.RecordingSnapshot)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onChange = fn
}

// SetAutoStopHook registers fn to run once a recording reaching the maximum
// duration has been assembled. The recording is claimed with Stop.
func (c *CaptureController) SetAutoStopHook(fn func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onAutoStop = fn
}

// SetErrorHook registers fn to receive device failures that abort a recording
func (c *CaptureController) SetErrorHook(fn func(error)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onError = fn
}

// Start acquires the microphone and begins recording. On failure no state
// is changed.
func (c *CaptureController) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.session != nil || c.starting {
		c.mu.Unlock()
		return domain.ErrAlreadyRecording
	}
	c.starting = true
	gen := c.generation
	c.mu.Unlock()

	mimeType := FallbackMimeType
	if c.mic.IsTypeSupported(PreferredMimeType) {
		mimeType = PreferredMimeType
	}

	recorder, err := c.mic.Open(ctx, repositories.RecorderOptions{
		MimeType:  mimeType,
		Timeslice: c.opts.Timeslice,
	})
	if err != nil {
		c.mu.Lock()
		c.starting = false
		c.mu.Unlock()
		return c.classifyStartError(err)
	}

	c.mu.Lock()
	c.starting = false
	if gen != c.generation {
		c.mu.Unlock()
		recorder.Stop()
		if closeErr := recorder.Close(); closeErr != nil {
			c.logger.Warn("Failed to release microphone", zap.Error(closeErr))
		}
		return ErrCaptureCancelled
	}
	if c.completed != nil {
		c.logger.Warn("Discarding unclaimed auto-stopped recording",
			zap.Int("bytes", len(c.completed.Data)))
		c.completed = nil
	}
	s := &recordingSession{
		recorder:  recorder,
		mimeType:  mimeType,
		startedAt: time.Now(),
		confirmed: make(chan struct{}),
		dead:      make(chan struct{}),
		done:      make(chan struct{}),
	}
	c.session = s
	c.mu.Unlock()

	c.logger.Info("Recording started", zap.String("mimeType", mimeType))
	go c.collect(s)
	c.notify()
	return nil
}

func (c *CaptureController) classifyStartError(err error) error {
	switch domain.KindOf(err) {
	case domain.KindPermissionDenied:
		c.logger.Warn("Microphone permission denied", zap.Error(err))
		c.metrics.ObserveError(string(domain.KindPermissionDenied))
		return err
	case domain.KindDeviceUnavailable:
		c.logger.Warn("Microphone unavailable", zap.Error(err))
		c.metrics.ObserveError(string(domain.KindDeviceUnavailable))
		return err
	}
	c.logger.Error("Failed to start recording", zap.Error(err))
	c.metrics.ObserveError(string(domain.KindDeviceUnavailable))
	return domain.NewError(domain.KindDeviceUnavailable, "", fmt.Errorf("failed to open microphone: %w", err))
}

// collect gathers fragments, ticks elapsed time and enforces the maximum
// duration until the session ends.
func (c *CaptureController) collect(s *recordingSession) {
	ticker := time.NewTicker(c.opts.TickInterval)
	defer ticker.Stop()
	maxTimer := time.NewTimer(c.opts.MaxDuration)
	defer maxTimer.Stop()

	data := s.recorder.Data()
	errs := s.recorder.Errors()

	for {
		select {
		case chunk, ok := <-data:
			if !ok {
				c.deviceEnded(s)
				return
			}
			if len(chunk) == 0 {
				continue
			}
			c.mu.Lock()
			s.chunks = append(s.chunks, chunk)
			c.mu.Unlock()
		case err, ok := <-errs:
			if !ok {
				errs = nil
				continue
			}
			c.abort(s, err)
			return
		case <-ticker.C:
			c.tick(s)
		case <-maxTimer.C:
			c.autoStop(s)
		case <-s.dead:
			return
		}
	}
}

// deviceEnded handles the device closing its stream. During a stop this is
// the confirmation; otherwise the device ended on its own and the recording
// is finished like an auto-stop so the collected audio is still delivered.
func (c *CaptureController) deviceEnded(s *recordingSession) {
	c.mu.Lock()
	unexpected := c.session == s && !s.stopping
	if unexpected {
		s.auto = true
		s.stopping = true
	}
	c.mu.Unlock()

	close(s.confirmed)
	if unexpected {
		c.logger.Warn("Microphone ended the recording, finishing with collected fragments")
		go c.drain(s)
	}
}

func (c *CaptureController) tick(s *recordingSession) {
	c.mu.Lock()
	if c.session != s || s.stopping {
		c.mu.Unlock()
		return
	}
	elapsed := int(time.Since(s.startedAt) / time.Second)
	changed := elapsed > s.elapsed
	if changed {
		s.elapsed = elapsed
	}
	c.mu.Unlock()

	if changed {
		c.notify()
	}
}

func (c *CaptureController) autoStop(s *recordingSession) {
	c.mu.Lock()
	if c.session != s || s.stopping {
		c.mu.Unlock()
		return
	}
	s.auto = true
	s.stopping = true
	c.mu.Unlock()

	c.logger.Info("Recording reached maximum duration, stopping",
		zap.Duration("maxDuration", c.opts.MaxDuration))
	go c.drain(s)
}

// Stop ends the recording and returns the assembled audio, or nil when there
// is nothing to return.
func (c *CaptureController) Stop(ctx context.Context) *Recording {
	c.mu.Lock()
	s := c.session
	if s == nil {
		rec := c.completed
		c.completed = nil
		c.mu.Unlock()
		return rec
	}
	if !s.stopping {
		s.stopping = true
		go c.drain(s)
	}
	c.mu.Unlock()

	select {
	case <-s.done:
	case <-ctx.Done():
		return nil
	}

	if !s.auto {
		return s.result
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	rec := c.completed
	c.completed = nil
	return rec
}

// drain asks the device to stop and waits for its confirmation, bounded by
// the stop grace period, then assembles what was collected.
func (c *CaptureController) drain(s *recordingSession) {
	s.stopDevice()

	grace := time.NewTimer(c.opts.StopGrace)
	defer grace.Stop()

	outcome := "completed"
	select {
	case <-s.confirmed:
	case <-grace.C:
		c.logger.Warn("Microphone did not confirm stop, assembling collected fragments",
			zap.Duration("grace", c.opts.StopGrace))
		outcome = "grace_expired"
	case <-s.dead:
		close(s.done)
		return
	}

	c.mu.Lock()
	if c.session != s {
		c.mu.Unlock()
		close(s.done)
		return
	}
	rec := assemble(s)
	c.session = nil
	if s.auto {
		c.completed = rec
	}
	hook := c.onAutoStop
	c.mu.Unlock()

	s.kill()
	if err := s.recorder.Close(); err != nil {
		c.logger.Warn("Failed to release microphone", zap.Error(err))
	}

	s.result = rec
	close(s.done)

	if rec == nil {
		outcome = "empty"
		c.logger.Info("Recording stopped without audio")
	} else {
		c.logger.Info("Recording stopped",
			zap.Int("bytes", len(rec.Data)),
			zap.Duration("duration", rec.Duration),
			zap.Bool("autoStopped", s.auto))
	}
	c.metrics.ObserveRecording(outcome)
	c.notify()

	if s.auto && hook != nil {
		hook()
	}
}

func assemble(s *recordingSession) *Recording {
	size := 0
	for _, chunk := range s.chunks {
		size += len(chunk)
	}
	if size == 0 {
		return nil
	}
	buf := bytes.NewBuffer(make([]byte, 0, size))
	for _, chunk := range s.chunks {
		buf.Write(chunk)
	}
	return &Recording{
		Data:     buf.Bytes(),
		MimeType: s.mimeType,
		Duration: time.Since(s.startedAt),
	}
}

// Cancel discards the current recording, if any. A pending Stop returns nil.
func (c *CaptureController) Cancel() {
	c.mu.Lock()
	c.generation++
	s := c.session
	c.session = nil
	c.completed = nil
	c.mu.Unlock()

	if s == nil {
		return
	}

	s.kill()
	s.stopDevice()
	if err := s.recorder.Close(); err != nil {
		c.logger.Warn("Failed to release microphone", zap.Error(err))
	}

	c.logger.Info("Recording cancelled")
	c.metrics.ObserveRecording("cancelled")
	c.notify()
}

func (c *CaptureController) abort(s *recordingSession, err error) {
	c.mu.Lock()
	if c.session != s {
		c.mu.Unlock()
		return
	}
	c.session = nil
	hook := c.onError
	c.mu.Unlock()

	s.kill()
	s.stopDevice()
	if closeErr := s.recorder.Close(); closeErr != nil {
		c.logger.Warn("Failed to release microphone", zap.Error(closeErr))
	}

	c.logger.Error("Recording aborted by device error", zap.Error(err))
	c.metrics.ObserveRecording("failed")
	c.metrics.ObserveError(string(domain.KindDeviceUnavailable))
	c.notify()

	if hook != nil {
		if domain.KindOf(err) == "" {
			err = domain.NewError(domain.KindDeviceUnavailable, "", err)
		}
		hook(err)
	}
}

// Snapshot returns the current recording state
func (c *CaptureController) Snapshot() entities.RecordingSnapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked()
}

func (c *CaptureController) snapshotLocked() entities.RecordingSnapshot {
	if c.session == nil {
		return entities.RecordingSnapshot{}
	}
	return entities.RecordingSnapshot{
		IsRecording:    true,
		ElapsedSeconds: c.session.elapsed,
		MimeType:       c.session.mimeType,
	}
}

func (c *CaptureController) notify() {
	c.mu.Lock()
	fn := c.onChange
	snap := c.snapshotLocked()
	c.mu.Unlock()
	if fn != nil {
		fn(snap)
	}
}
