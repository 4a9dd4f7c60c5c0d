package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Webhook POSTs events as JSON to a URL.
type Webhook struct {
	client   *http.Client
	url      string
	template string
}

// NewWebhook creates a Webhook notifier. template is "generic" or "slack".
func NewWebhook(url, template string) *Webhook {
	return &Webhook{
		client:   &http.Client{Timeout: 30 * time.Second},
		url:      url,
		template: template,
	}
}

// GenericWebhookPayload is the default JSON payload for webhooks.
type GenericWebhookPayload struct {
	Event string `json:"event"`
	Data  Event  `json:"data"`
}

func (w *Webhook) Notify(ctx context.Context, ev Event) error {
	var body []byte
	var err error

	switch w.template {
	case "slack":
		body, err = buildSlackPayload(ev)
	default:
		body, err = json.Marshal(GenericWebhookPayload{Event: ev.Kind, Data: ev})
	}
	if err != nil {
		return fmt.Errorf("build webhook payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.client.Do(req)
	if err != nil {
		return fmt.Errorf("webhook POST to %s: %w", w.url, err)
	}
	defer func() { io.Copy(io.Discard, resp.Body); resp.Body.Close() }()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	return fmt.Errorf("webhook returned %d", resp.StatusCode)
}

// buildSlackPayload creates a Slack Block Kit message.
func buildSlackPayload(ev Event) ([]byte, error) {
	emoji := ":warning:"
	if ev.Kind == KindBackupFailed || ev.Kind == KindRestoreFailed {
		emoji = ":rotating_light:"
	}

	fields := []map[string]interface{}{
		{
			"type": "mrkdwn",
			"text": fmt.Sprintf("*Project:* %s", ev.ProjectID),
		},
	}
	if ev.BackupName != "" {
		fields = append(fields, map[string]interface{}{
			"type": "mrkdwn",
			"text": fmt.Sprintf("*Backup:* %s", ev.BackupName),
		})
	}
	if ev.Status != "" {
		fields = append(fields, map[string]interface{}{
			"type": "mrkdwn",
			"text": fmt.Sprintf("*Status:* %s", ev.Status),
		})
	}
	if ev.Quarter != "" {
		fields = append(fields, map[string]interface{}{
			"type": "mrkdwn",
			"text": fmt.Sprintf("*Quarter:* %s", ev.Quarter),
		})
	}

	blocks := []map[string]interface{}{
		{
			"type": "header",
			"text": map[string]string{
				"type": "plain_text",
				"text": ev.Kind,
			},
		},
		{
			"type":   "section",
			"fields": fields,
		},
	}

	if ev.Message != "" {
		blocks = append(blocks, map[string]interface{}{
			"type": "section",
			"text": map[string]string{
				"type": "mrkdwn",
				"text": fmt.Sprintf("%s ```%s```", emoji, ev.Message),
			},
		})
	}

	return json.Marshal(map[string]interface{}{
		"blocks": blocks,
	})
}
