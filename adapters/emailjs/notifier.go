package emailjs

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/vmkdxailabs/chatwidget/domain"
	"github.com/vmkdxailabs/chatwidget/domain/entities"
	"github.com/vmkdxailabs/chatwidget/domain/repositories"
)

const (
	defaultAPIURL  = "https://api.emailjs.com/api/v1.0/email/send"
	defaultTimeout = 10 * time.Second
)

// Config holds configuration for the EmailJS lead notifier.
// ServiceID, TemplateID and PublicKey are all needed to send; when any of
// them is missing the notifier only logs the lead.
type Config struct {
	APIURL     string
	ServiceID  string
	TemplateID string
	PublicKey  string
	PrivateKey string // Optional: sent as accessToken
	Timeout    time.Duration
}

// Configured reports whether every required field is present
func (c Config) Configured() bool {
	return c.ServiceID != "" && c.TemplateID != "" && c.PublicKey != ""
}

// Notifier sends captured leads through the EmailJS REST API
type Notifier struct {
	config     Config
	httpClient *http.Client
	logger     *zap.Logger
}

// Ensure Notifier implements the LeadNotifier interface
var _ repositories.LeadNotifier = (*Notifier)(nil)

type templateParams struct {
	Name        string `json:"name"`
	Email       string `json:"email"`
	Company     string `json:"company"`
	Phone       string `json:"phone"`
	Subject     string `json:"subject"`
	Requirement string `json:"requirement"`
}

type sendRequest struct {
	ServiceID      string         `json:"service_id"`
	TemplateID     string         `json:"template_id"`
	UserID         string         `json:"user_id"`
	AccessToken    string         `json:"accessToken,omitempty"`
	TemplateParams templateParams `json:"template_params"`
}

// NewNotifier creates a new EmailJS notifier
func NewNotifier(config Config, logger *zap.Logger) *Notifier {
	if config.APIURL == "" {
		config.APIURL = defaultAPIURL
	}
	if config.Timeout == 0 {
		config.Timeout = defaultTimeout
	}
	if !config.Configured() {
		logger.Warn("EmailJS is not configured, lead emails will not be sent")
	}
	return &Notifier{
		config:     config,
		httpClient: &http.Client{Timeout: config.Timeout},
		logger:     logger,
	}
}

// NewConfigFromEnv creates a new Config from environment variables
func NewConfigFromEnv() Config {
	config := Config{
		APIURL:     os.Getenv("EMAILJS_API_URL"),
		ServiceID:  os.Getenv("EMAILJS_SERVICE_ID"),
		TemplateID: os.Getenv("EMAILJS_TEMPLATE_ID"),
		PublicKey:  os.Getenv("EMAILJS_PUBLIC_KEY"),
		PrivateKey: os.Getenv("EMAILJS_PRIVATE_KEY"),
	}
	if timeoutStr := os.Getenv("LEAD_NOTIFY_TIMEOUT"); timeoutStr != "" {
		if timeout, err := time.ParseDuration(timeoutStr); err == nil && timeout > 0 {
			config.Timeout = timeout
		}
	}
	return config
}

// Subject builds the email subject for a lead source
func Subject(source domain.LeadSource) string {
	return fmt.Sprintf("AI Chatbot Lead (%s)", strings.ToUpper(string(source)))
}

// NotifyLead emails the lead to the sales inbox. Without configuration it
// logs the lead and returns nil.
func (n *Notifier) NotifyLead(ctx context.Context, lead entities.LeadData, source domain.LeadSource) error {
	if !n.config.Configured() {
		n.logger.Warn("EmailJS not configured, lead email not sent",
			zap.String("source", string(source)),
			zap.String("name", lead.Name),
			zap.String("email", lead.Email))
		return nil
	}

	payload := sendRequest{
		ServiceID:   n.config.ServiceID,
		TemplateID:  n.config.TemplateID,
		UserID:      n.config.PublicKey,
		AccessToken: n.config.PrivateKey,
		TemplateParams: templateParams{
			Name:        lead.Name,
			Email:       lead.Email,
			Company:     "",
			Phone:       lead.Mobile,
			Subject:     Subject(source),
			Requirement: lead.Requirement,
		},
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.config.APIURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create HTTP request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to execute HTTP request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		errorBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("EmailJS returned error %d: %s", resp.StatusCode, string(errorBody))
	}

	n.logger.Info("Lead email sent successfully via EmailJS", zap.String("source", string(source)))
	return nil
}
