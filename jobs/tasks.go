// Package jobs holds the background task definitions and the asynq worker
// wiring shared by the console and worker binaries.
package jobs

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskTypeDiscordWebhook posts a message to the configured Discord webhook.
	TaskTypeDiscordWebhook = "discord:webhook"
	// TaskTypeSendEmail sends a transactional email.
	TaskTypeSendEmail = "mail:send"
	// TaskTypeSessionCleanup prunes expired operator session rows.
	TaskTypeSessionCleanup = "sessions:cleanup"
)

// DiscordWebhookPayload is the message body posted to the webhook.
type DiscordWebhookPayload struct {
	Content string `json:"content"`
}

// NewDiscordWebhookTask constructs an Asynq task carrying a webhook message.
func NewDiscordWebhookTask(payload DiscordWebhookPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskTypeDiscordWebhook, data, asynq.MaxRetry(3), asynq.Timeout(15*time.Second)), nil
}

// DiscordSender posts webhook payloads. The worker wires the real HTTP
// client; tests substitute their own.
type DiscordSender struct {
	WebhookURL string
	HTTPClient *http.Client
	Logger     *slog.Logger
}

// Handle processes TaskTypeDiscordWebhook tasks. A missing webhook URL
// drops the message without retrying; delivery is best effort.
func (s *DiscordSender) Handle(ctx context.Context, t *asynq.Task) error {
	var payload DiscordWebhookPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}
	if s.WebhookURL == "" {
		if s.Logger != nil {
			s.Logger.Debug("discord webhook not configured, dropping message")
		}
		return nil
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return asynq.SkipRetry
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.WebhookURL, bytes.NewReader(body))
	if err != nil {
		return asynq.SkipRetry
	}
	req.Header.Set("Content-Type", "application/json")
	client := s.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("post discord webhook: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	if resp.StatusCode >= 300 {
		return fmt.Errorf("discord webhook status %d", resp.StatusCode)
	}
	return nil
}

// SendEmailPayload describes the information required to send an email.
type SendEmailPayload struct {
	To      string `json:"to"`
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

// NewSendEmailTask constructs an Asynq task.
func NewSendEmailTask(payload SendEmailPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskTypeSendEmail, data), nil
}

// HandleSendEmailTask processes TaskTypeSendEmail tasks.
func HandleSendEmailTask(ctx context.Context, t *asynq.Task) error {
	var payload SendEmailPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}
	// Placeholder until the SMTP relay is provisioned.
	fmt.Printf("[jobs] send email to %s subject=%s\n", payload.To, payload.Subject)
	return nil
}

// NewSessionCleanupTask constructs a cron-driven cleanup task.
func NewSessionCleanupTask() *asynq.Task {
	return asynq.NewTask(TaskTypeSessionCleanup, nil)
}

// SessionPruner deletes expired operator session rows.
type SessionPruner interface {
	DeleteExpiredSessions(ctx context.Context) (int64, error)
}

// NewSessionCleanupHandler builds the handler for TaskTypeSessionCleanup.
func NewSessionCleanupHandler(pruner SessionPruner, logger *slog.Logger) asynq.HandlerFunc {
	return func(ctx context.Context, t *asynq.Task) error {
		n, err := pruner.DeleteExpiredSessions(ctx)
		if err != nil {
			return err
		}
		if logger != nil && n > 0 {
			logger.Info("pruned expired sessions", slog.Int64("count", n))
		}
		return nil
	}
}
