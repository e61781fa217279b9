package notify

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/voicepage/kwsbench/internal/types"
	"github.com/voicepage/kwsbench/internal/util"
)

// WebhookPayload represents the data sent to webhook endpoints.
type WebhookPayload struct {
	Event      string `json:"event"`
	JobID      string `json:"job_id,omitempty"`
	Keyword    string `json:"keyword,omitempty"`
	Stage      string `json:"stage,omitempty"`
	DurationMs int64  `json:"duration_ms,omitempty"`
	Error      string `json:"error,omitempty"`
	Message    string `json:"message,omitempty"`
	Timestamp  string `json:"timestamp"`
}

// SendJobWebhook notifies the configured webhook of a job outcome. The event
// is "job_completed" or "job_failed".
func SendJobWebhook(webhookURL, event string, job types.Job) error {
	payload := &WebhookPayload{
		Event:     event,
		JobID:     job.ID,
		Keyword:   job.Config.Keyword,
		Timestamp: timestampUTC(),
	}
	if job.StartedAt > 0 && job.CompletedAt > job.StartedAt {
		payload.DurationMs = job.CompletedAt - job.StartedAt
	}
	if job.Error != "" {
		payload.Stage = job.CurrentStep
		payload.Error = job.Error
	}
	return sendWebhook(webhookURL, payload)
}

// SendTestWebhook sends a test webhook notification.
func SendTestWebhook(webhookURL string) error {
	if webhookURL == "" {
		return fmt.Errorf("webhook URL not configured")
	}

	return sendWebhook(webhookURL, &WebhookPayload{
		Event:     "test",
		Message:   "This is a test notification from " + AppName,
		Timestamp: timestampUTC(),
	})
}

// sendWebhook delivers a notification to the configured webhook endpoint.
func sendWebhook(webhookURL string, payload *WebhookPayload) error {
	if !util.IsConfigured(webhookURL) {
		return nil // Silently skip if not configured
	}

	jsonData, err := json.Marshal(payload)
	if err != nil {
		return util.WrapError("marshal payload", err)
	}

	client := &http.Client{Timeout: 10000 * time.Millisecond}
	resp, err := client.Post(webhookURL, "application/json", bytes.NewBuffer(jsonData))
	if err != nil {
		return util.WrapError("send webhook request", err)
	}
	defer util.SafeCloseFunc(resp.Body, "webhook response body")()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}

	return nil
}
