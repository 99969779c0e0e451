package assistant

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/vmkdxailabs/chatwidget/domain"
	"github.com/vmkdxailabs/chatwidget/domain/entities"
	"github.com/vmkdxailabs/chatwidget/domain/repositories"
)

const (
	chatPath          = "/chat"
	voicePath         = "/voice"
	voiceFileName     = "recording.webm"
	defaultVoiceMime  = "audio/webm"
	maxErrorBodyBytes = 4096
)

// Config holds configuration for the assistant client
// Required fields:
// - BaseURL: the assistant API root, e.g. "https://example.com/api"
// Optional fields:
// - Timeout: per-request timeout (default: none, the caller's context decides)
// - HTTPClient: custom client, mainly for tests
type Config struct {
	BaseURL    string
	Timeout    time.Duration
	HTTPClient *http.Client
}

// Client implements the Assistant interface over the assistant HTTP API
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *zap.Logger
}

// Ensure Client implements the Assistant interface
var _ repositories.Assistant = (*Client)(nil)

// ValidateConfig validates the Config
func ValidateConfig(config Config) error {
	if strings.TrimSpace(config.BaseURL) == "" {
		return fmt.Errorf("assistant API base URL is required")
	}
	if !strings.HasPrefix(config.BaseURL, "http://") && !strings.HasPrefix(config.BaseURL, "https://") {
		return fmt.Errorf("assistant API base URL must be http or https, got %q", config.BaseURL)
	}
	if config.Timeout < 0 {
		return fmt.Errorf("timeout must not be negative, got %s", config.Timeout)
	}
	return nil
}

// NewClient creates a new assistant client
func NewClient(config Config, logger *zap.Logger) (*Client, error) {
	if err := ValidateConfig(config); err != nil {
		return nil, err
	}

	httpClient := config.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: config.Timeout}
		if config.Timeout == 0 {
			logger.Info("Using no request timeout for assistant API")
		}
	}

	return &Client{
		baseURL:    strings.TrimRight(config.BaseURL, "/"),
		httpClient: httpClient,
		logger:     logger,
	}, nil
}

// NewConfigFromEnv creates a new Config from environment variables
func NewConfigFromEnv() Config {
	config := Config{
		BaseURL: os.Getenv("ASSISTANT_API_BASE_URL"),
	}
	if timeoutStr := os.Getenv("ASSISTANT_HTTP_TIMEOUT"); timeoutStr != "" {
		if timeout, err := time.ParseDuration(timeoutStr); err == nil && timeout > 0 {
			config.Timeout = timeout
		}
	}
	return config
}

// BaseURL returns the API root used to resolve relative audio references
func (c *Client) BaseURL() string {
	return c.baseURL
}

// SendChat sends a text turn to the chat endpoint
func (c *Client) SendChat(ctx context.Context, req domain.ChatRequest) (*domain.ChatResponse, error) {
	if req.History == nil {
		req.History = []domain.HistoryEntry{}
	}
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+chatPath, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create HTTP request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")

	c.logger.Debug("Sending chat request",
		zap.String("sessionID", req.SessionID),
		zap.Int("history", len(req.History)))

	var resp domain.ChatResponse
	if err := c.do(httpReq, domain.MessageChatFailed, &resp); err != nil {
		return nil, err
	}

	if strings.TrimSpace(resp.Reply) == "" {
		return nil, domain.NewError(domain.KindRequestFailed, domain.MessageChatFailed,
			fmt.Errorf("chat response has no reply"))
	}
	resp.Lead = c.completeLead(resp.Lead)
	return &resp, nil
}

// SendVoice uploads a recording to the voice endpoint
func (c *Client) SendVoice(ctx context.Context, audio domain.AudioUpload, language entities.Language, sessionID string) (*domain.VoiceResponse, error) {
	body, contentType, err := encodeVoiceForm(audio, language, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to encode voice form: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+voicePath, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create HTTP request: %w", err)
	}
	httpReq.Header.Set("Content-Type", contentType)
	httpReq.Header.Set("Accept", "application/json")

	c.logger.Debug("Sending voice request",
		zap.String("sessionID", sessionID),
		zap.String("language", string(language)),
		zap.Int("bytes", len(audio.Data)))

	var resp domain.VoiceResponse
	if err := c.do(httpReq, domain.MessageVoiceFailed, &resp); err != nil {
		return nil, err
	}

	if strings.TrimSpace(resp.Reply) == "" || strings.TrimSpace(resp.Transcript) == "" {
		return nil, domain.NewError(domain.KindRequestFailed, domain.MessageVoiceFailed,
			fmt.Errorf("voice response is missing reply or transcript"))
	}
	resp.Lead = c.completeLead(resp.Lead)
	return &resp, nil
}

func encodeVoiceForm(audio domain.AudioUpload, language entities.Language, sessionID string) (*bytes.Buffer, string, error) {
	mimeType := audio.MimeType
	if mimeType == "" {
		mimeType = defaultVoiceMime
	}

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", fmt.Sprintf(`form-data; name="audio"; filename="%s"`, voiceFileName))
	header.Set("Content-Type", mimeType)
	part, err := w.CreatePart(header)
	if err != nil {
		return nil, "", err
	}
	if _, err := part.Write(audio.Data); err != nil {
		return nil, "", err
	}
	if err := w.WriteField("language", string(language)); err != nil {
		return nil, "", err
	}
	if err := w.WriteField("session_id", sessionID); err != nil {
		return nil, "", err
	}
	if err := w.Close(); err != nil {
		return nil, "", err
	}
	return &buf, w.FormDataContentType(), nil
}

// do executes req and decodes a successful JSON body into out. Failures are
// classified so the visitor sees failureText or the rate limit notice.
func (c *Client) do(req *http.Request, failureText string, out interface{}) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Error("Failed to execute HTTP request",
			zap.String("url", req.URL.String()),
			zap.Error(err))
		return domain.NewError(domain.KindRequestFailed, failureText,
			fmt.Errorf("failed to execute HTTP request: %w", err))
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		c.logger.Warn("Assistant API rate limited the request", zap.String("url", req.URL.String()))
		return domain.NewError(domain.KindRateLimited, "",
			fmt.Errorf("assistant API returned %d", resp.StatusCode))
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		errorBody, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyBytes))
		c.logger.Error("Assistant API returned error",
			zap.String("url", req.URL.String()),
			zap.Int("statusCode", resp.StatusCode),
			zap.String("response", string(errorBody)))
		return domain.NewError(domain.KindRequestFailed, failureText,
			fmt.Errorf("assistant API returned %d", resp.StatusCode))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return domain.NewError(domain.KindRequestFailed, failureText,
			fmt.Errorf("failed to decode response: %w", err))
	}
	return nil
}

// completeLead drops partially filled leads
func (c *Client) completeLead(lead *entities.LeadData) *entities.LeadData {
	if lead == nil {
		return nil
	}
	if !lead.Complete() {
		c.logger.Debug("Ignoring incomplete lead in response")
		return nil
	}
	return lead
}
