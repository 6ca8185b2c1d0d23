package alerts

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/rs/zerolog"
)

// LogSender writes publications through the structured logger, the default
// channel when a publication names none explicitly.
type LogSender struct{ Log zerolog.Logger }

func (s LogSender) Channel() Channel { return ChannelLog }

func (s LogSender) Send(ctx context.Context, pub Publication) error {
	event := s.Log.Info()
	switch pub.Severity {
	case SeverityWarning:
		event = s.Log.Warn()
	case SeverityError, SeverityCritical:
		event = s.Log.Error()
	}
	event.Str("topic", pub.Topic).Str("subject", pub.Subject).Interface("context", pub.Context).Msg(pub.Message)
	return nil
}

// WebhookSender POSTs the publication as JSON to a fixed URL.
type WebhookSender struct {
	URL    string
	Client *http.Client
}

func NewWebhookSender(url string, client *http.Client) *WebhookSender {
	if client == nil {
		client = http.DefaultClient
	}
	return &WebhookSender{URL: url, Client: client}
}

func (s *WebhookSender) Channel() Channel { return ChannelWebhook }

func (s *WebhookSender) Send(ctx context.Context, pub Publication) error {
	payload, err := json.Marshal(pub)
	if err != nil {
		return fmt.Errorf("marshal publication: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.URL, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := s.Client.Do(req)
	if err != nil {
		return fmt.Errorf("webhook delivery: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}
	return nil
}

// SlackPayload is the minimal incoming-webhook body Slack accepts.
type SlackPayload struct {
	Text string `json:"text"`
}

// SlackSender posts to a Slack incoming webhook URL.
type SlackSender struct {
	WebhookURL string
	Client     *http.Client
}

func NewSlackSender(webhookURL string, client *http.Client) *SlackSender {
	if client == nil {
		client = http.DefaultClient
	}
	return &SlackSender{WebhookURL: webhookURL, Client: client}
}

func (s *SlackSender) Channel() Channel { return ChannelSlack }

func (s *SlackSender) Send(ctx context.Context, pub Publication) error {
	text := fmt.Sprintf("*%s*\n%s", pub.Subject, pub.Message)
	if pub.Body != "" {
		text += "\n" + pub.Body
	}
	payload, err := json.Marshal(SlackPayload{Text: text})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.WebhookURL, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := s.Client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("slack webhook returned status %d", resp.StatusCode)
	}
	return nil
}

// MailSender is the minimal collaborator an SMTP mailer must implement.
type MailSender interface {
	SendMail(to []string, subject, body string) error
}

// EmailSender adapts a MailSender into the alerts.Sender interface.
type EmailSender struct {
	Mailer      MailSender
	Recipients  []string
}

func (s EmailSender) Channel() Channel { return ChannelEmail }

func (s EmailSender) Send(ctx context.Context, pub Publication) error {
	body := pub.Body
	if body == "" {
		body = pub.Message
	}
	return s.Mailer.SendMail(s.Recipients, pub.Subject, body)
}
