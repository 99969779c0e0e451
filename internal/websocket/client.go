package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/vmkdxailabs/chatwidget/adapters/microphone"
	"github.com/vmkdxailabs/chatwidget/adapters/player"
	"github.com/vmkdxailabs/chatwidget/domain"
	"github.com/vmkdxailabs/chatwidget/domain/entities"
	"github.com/vmkdxailabs/chatwidget/domain/repositories"
	"github.com/vmkdxailabs/chatwidget/usecase"
)

var errConnectionClosed = errors.New("connection closed")

type WriteData struct {
	// MessageType is the type of the websocket message.
	// Expect websocket.TextMessage or websocket.BinaryMessage
	Type    int
	Payload []byte
}

// Client is a middleman between the websocket connection and one widget.
// The page on the other end is both the render layer and the device driver
// for the microphone and the audio element.
type Client struct {
	hub *Hub

	// The websocket connection.
	conn *websocket.Conn

	// Buffered channel of outbound messages.
	send chan WriteData

	id     string
	logger *zap.Logger

	widget    *usecase.Widget
	mic       *microphone.StreamMicrophone
	audio     *player.RemoteSource
	validator *MessageValidator

	ctx       context.Context
	cancel    context.CancelFunc
	tasks     sync.WaitGroup
	closeOnce sync.Once

	mutex    sync.Mutex
	activeAt time.Time
}

// Ensure Client can drive the page's devices
var (
	_ microphone.Commander  = (*Client)(nil)
	_ player.AudioCommander = (*Client)(nil)
)

func newClient(hub *Hub, conn *websocket.Conn, logger *zap.Logger) *Client {
	ctx, cancel := context.WithCancel(context.Background())
	id := entities.NewID()
	c := &Client{
		hub:       hub,
		conn:      conn,
		send:      make(chan WriteData, sendBuffer),
		id:        id,
		logger:    logger.With(zap.String("connectionID", id)),
		validator: NewMessageValidator(),
		ctx:       ctx,
		cancel:    cancel,
		activeAt:  time.Now(),
	}

	cfg := hub.config
	c.mic = microphone.NewStreamMicrophone(c, cfg.CaptureStartTimeout, c.logger)
	c.audio = player.NewRemoteSource(c, c.logger)
	c.widget = usecase.NewWidget(
		usecase.NewCaptureController(c.mic, cfg.Capture, hub.metrics, c.logger),
		usecase.NewPlaybackController(c.audio, hub.metrics, c.logger),
		usecase.NewConversationService(cfg.Assistant, cfg.Notifier, cfg.Conversation, hub.metrics, c.logger),
		c.logger,
	)
	c.widget.SetChangeHook(func(snap entities.WidgetSnapshot) {
		if err := c.write(CreateStateMessage(snap)); err != nil {
			c.logger.Debug("Dropping state update", zap.Error(err))
		}
	})
	return c
}

// readPump pumps messages from the websocket connection to the widget.
func (c *Client) readPump() {
	defer c.teardown()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		messageType, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.logger.Error("WebSocket error", zap.Error(err))
			}
			break
		}
		c.touch()

		switch messageType {
		case websocket.TextMessage:
			c.processMessage(message)
		case websocket.BinaryMessage:
			// Binary frames are capture fragments, in recording order
			c.mic.Feed(message)
		default:
			c.logger.Warn("Received unknown message type", zap.Int("type", messageType))
		}
	}
}

// writePump pumps messages from the widget to the websocket connection.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.cancel()
		c.conn.Close()
	}()

	for {
		select {
		case message := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(message.Type, message.Payload); err != nil {
				c.logger.Error("Failed to write message", zap.Error(err))
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}

		case <-c.ctx.Done():
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			c.conn.WriteMessage(websocket.CloseMessage, []byte{})
			return
		}
	}
}

// teardown releases the widget once the connection is gone
func (c *Client) teardown() {
	c.closeOnce.Do(func() {
		c.hub.unregisterClient(c)
		c.cancel()
		c.conn.Close()

		c.widget.Close()
		c.tasks.Wait()

		go func() {
			defer c.hub.sessions.Done()
			c.widget.Wait()
			c.logger.Debug("Widget session finished")
		}()
	})
}

// processMessage dispatches one text frame from the page
func (c *Client) processMessage(message []byte) {
	parsed, err := c.validator.ValidateMessage(message)
	if err != nil {
		c.logger.Warn("Rejected invalid message", zap.Error(err))
		c.write(CreateErrorMessage("invalid_message", "Invalid message", err.Error()))
		return
	}

	switch msg := parsed.(type) {
	case *HelloMessage:
		c.mic.SetSupportedTypes(msg.SupportedMimeTypes)
		c.logger.Info("Widget connected", zap.Strings("supportedMimeTypes", msg.SupportedMimeTypes))
		c.publish()

	case *SendTextMessage:
		c.observe(msg.Type)
		c.run(func(ctx context.Context) error { return c.widget.SendText(ctx, msg.Text) })

	case *PlayAudioMessage:
		c.observe(msg.Type)
		c.widget.PlayAudio(c.ctx, msg.URL)

	case *SetLanguageMessage:
		c.observe(msg.Type)
		if err := c.widget.SetLanguage(msg.Language); err != nil {
			c.sendError(err)
		}

	case *CaptureErrorMessage:
		c.mic.Failed(msg.CaptureID, msg.Message)

	case *CaptureAckMessage:
		c.processCaptureAck(msg)

	case *AudioEventMessage:
		c.audio.Deliver(msg.ElementID, repositories.AudioEvent(msg.Event))

	case *PingMessage:
		c.write(CreatePongMessage(msg.Data))

	case *CommandMessage:
		c.observe(msg.Type)
		c.processCommand(msg.Type)
	}
}

func (c *Client) processCommand(t MessageType) {
	switch t {
	case MessageTypeStartRecording:
		c.run(c.widget.StartRecording)
	case MessageTypeStopRecording:
		c.run(c.widget.StopRecording)
	case MessageTypeCancelRecording:
		c.widget.CancelRecording()
	case MessageTypePauseAudio:
		c.widget.PauseAudio()
	case MessageTypeStopAudio:
		c.widget.StopAudio()
	case MessageTypeClearConversation:
		c.widget.Clear()
	}
}

func (c *Client) processCaptureAck(msg *CaptureAckMessage) {
	switch msg.Type {
	case MessageTypeCaptureStarted:
		c.mic.Started(msg.CaptureID)
	case MessageTypeCaptureDenied:
		c.mic.Denied(msg.CaptureID)
	case MessageTypeCaptureStopped:
		c.mic.Stopped(msg.CaptureID)
	}
}

// run executes a blocking widget operation off the read pump, so device
// acknowledgements keep flowing while it waits.
func (c *Client) run(op func(ctx context.Context) error) {
	if c.ctx.Err() != nil {
		return
	}
	c.tasks.Add(1)
	go func() {
		defer c.tasks.Done()
		if err := op(c.ctx); err != nil && c.ctx.Err() == nil {
			c.sendError(err)
		}
	}()
}

func (c *Client) sendError(err error) {
	code := errorCode(err)
	if code == "" {
		return
	}
	c.write(CreateErrorMessage(code, domain.UserMessage(err, err.Error()), ""))
}

// errorCode maps widget errors to protocol codes. Failures already shown in
// the conversation return "".
func errorCode(err error) string {
	switch {
	case errors.Is(err, domain.ErrEmptyMessage):
		return "empty_message"
	case errors.Is(err, domain.ErrTurnInFlight):
		return "turn_in_flight"
	case errors.Is(err, domain.ErrEmptyRecording):
		return "empty_recording"
	case errors.Is(err, domain.ErrUnsupportedLanguage):
		return "unsupported_language"
	case errors.Is(err, domain.ErrAlreadyRecording):
		return "already_recording"
	case errors.Is(err, usecase.ErrCaptureCancelled):
		return ""
	}
	if kind := domain.KindOf(err); kind != "" {
		return string(kind)
	}
	return "internal_error"
}

func (c *Client) observe(t MessageType) {
	c.hub.metrics.ObserveMessage("in", string(t))
}

// write queues a JSON message for the page
func (c *Client) write(msg interface{}) error {
	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}
	select {
	case c.send <- WriteData{Type: websocket.TextMessage, Payload: payload}:
		return nil
	case <-c.ctx.Done():
		return errConnectionClosed
	}
}

func (c *Client) publish() {
	if err := c.write(CreateStateMessage(c.widget.Snapshot())); err != nil {
		c.logger.Debug("Dropping state update", zap.Error(err))
	}
}

func (c *Client) touch() {
	c.mutex.Lock()
	c.activeAt = time.Now()
	c.mutex.Unlock()
}

func (c *Client) lastActivity() time.Time {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	return c.activeAt
}

// StartCapture asks the page to start its recorder
func (c *Client) StartCapture(captureID, mimeType string, timeslice time.Duration) error {
	c.hub.metrics.ObserveMessage("out", string(MessageTypeCaptureStart))
	return c.write(CreateCaptureStartMessage(captureID, mimeType, timeslice))
}

// StopCapture asks the page to stop its recorder and flush the last fragment
func (c *Client) StopCapture(captureID string) error {
	c.hub.metrics.ObserveMessage("out", string(MessageTypeCaptureStop))
	return c.write(CreateCaptureStopMessage(captureID))
}

func (c *Client) PlayAudio(elementID, url string) error {
	c.hub.metrics.ObserveMessage("out", string(MessageTypeAudioPlay))
	return c.write(CreateAudioCommandMessage(MessageTypeAudioPlay, elementID, url))
}

func (c *Client) PauseAudio(elementID string) error {
	c.hub.metrics.ObserveMessage("out", string(MessageTypeAudioPause))
	return c.write(CreateAudioCommandMessage(MessageTypeAudioPause, elementID, ""))
}

func (c *Client) StopAudio(elementID string) error {
	c.hub.metrics.ObserveMessage("out", string(MessageTypeAudioStop))
	return c.write(CreateAudioCommandMessage(MessageTypeAudioStop, elementID, ""))
}
