// Package notify delivers job alerts over the configured channels: webhook,
// Microsoft Graph email and a local log file.
package notify

import (
	"fmt"
	"sync"

	"github.com/voicepage/kwsbench/internal/config"
	"github.com/voicepage/kwsbench/internal/types"
	"github.com/voicepage/kwsbench/internal/util"
)

// BenchNotifier sends notifications for training job outcomes. It satisfies
// the jobs.Notifier interface.
type BenchNotifier struct {
	cfg *config.Config

	// mu protects the cached Graph client
	mu          sync.Mutex
	graphClient *GraphClient
}

// NewBenchNotifier returns a BenchNotifier reading channel settings from cfg.
func NewBenchNotifier(cfg *config.Config) *BenchNotifier {
	return &BenchNotifier{cfg: cfg}
}

// InvalidateGraphClient clears the cached Graph client.
// Call this when Graph configuration changes.
func (n *BenchNotifier) InvalidateGraphClient() {
	n.mu.Lock()
	n.graphClient = nil
	n.mu.Unlock()
}

// getOrCreateGraphClient returns the cached Graph client, creating it if needed.
func (n *BenchNotifier) getOrCreateGraphClient(cfg *GraphConfig) (*GraphClient, error) {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.graphClient != nil {
		return n.graphClient, nil
	}

	client, err := NewGraphClient(cfg)
	if err != nil {
		return nil, err
	}
	n.graphClient = client
	return client, nil
}

// NotifyJobCompleted announces a successfully finished training job.
func (n *BenchNotifier) NotifyJobCompleted(job types.Job) {
	cfg := n.cfg.Snapshot()

	if cfg.HasWebhook() {
		go util.LogNotifyResult(
			func() error { return SendJobWebhook(cfg.WebhookURL, "job_completed", job) },
			"Job completed webhook",
		)
	}
	if cfg.HasGraph() {
		go util.LogNotifyResult(
			func() error { return n.sendJobEmail(BuildGraphConfig(cfg), job, false) },
			"Job completed email",
		)
	}
	if cfg.HasLogPath() {
		go util.LogNotifyResult(
			func() error { return LogJobEvent(cfg.LogPath, "job_completed", job) },
			"Job completed log",
		)
	}
}

// NotifyJobFailed announces a failed training job.
func (n *BenchNotifier) NotifyJobFailed(job types.Job) {
	cfg := n.cfg.Snapshot()

	if cfg.HasWebhook() {
		go util.LogNotifyResult(
			func() error { return SendJobWebhook(cfg.WebhookURL, "job_failed", job) },
			"Job failed webhook",
		)
	}
	if cfg.HasGraph() {
		go util.LogNotifyResult(
			func() error { return n.sendJobEmail(BuildGraphConfig(cfg), job, true) },
			"Job failed email",
		)
	}
	if cfg.HasLogPath() {
		go util.LogNotifyResult(
			func() error { return LogJobEvent(cfg.LogPath, "job_failed", job) },
			"Job failed log",
		)
	}
}

// NotifyEvalFailed announces an evaluation run that failed outright. Webhook
// and log only; per-run failures are too frequent for email alerting.
func (n *BenchNotifier) NotifyEvalFailed(corpus string, evalErr error) {
	cfg := n.cfg.Snapshot()

	if cfg.HasWebhook() {
		go util.LogNotifyResult(
			func() error {
				return sendWebhook(cfg.WebhookURL, &WebhookPayload{
					Event:     "eval_failed",
					Message:   corpus,
					Error:     evalErr.Error(),
					Timestamp: timestampUTC(),
				})
			},
			"Evaluation failed webhook",
		)
	}
	if cfg.HasLogPath() {
		go util.LogNotifyResult(
			func() error {
				return appendLogEntry(cfg.LogPath, &LogEntry{
					Timestamp: timestampUTC(),
					Event:     "eval_failed",
					Error:     evalErr.Error(),
				})
			},
			"Evaluation failed log",
		)
	}
}

// BuildGraphConfig creates a GraphConfig from the config snapshot.
//
//nolint:gocritic // hugeParam: copy is acceptable for infrequent notification events
func BuildGraphConfig(cfg config.Snapshot) *GraphConfig {
	return &GraphConfig{
		TenantID:     cfg.GraphTenantID,
		ClientID:     cfg.GraphClientID,
		ClientSecret: cfg.GraphClientSecret,
		FromAddress:  cfg.GraphFromAddress,
		Recipients:   cfg.GraphRecipients,
	}
}

// sendEmail handles the common email sending infrastructure.
func (n *BenchNotifier) sendEmail(cfg *GraphConfig, subject, body string) error {
	if !IsConfigured(cfg) {
		return nil
	}

	client, err := n.getOrCreateGraphClient(cfg)
	if err != nil {
		return util.WrapError("create Graph client", err)
	}

	recipients := ParseRecipients(cfg.Recipients)
	if len(recipients) == 0 {
		return fmt.Errorf("no valid recipients")
	}

	if err := client.SendMail(recipients, subject, body); err != nil {
		return util.WrapError("send email via Graph", err)
	}

	return nil
}

// sendJobEmail sends a job outcome email using the cached Graph client.
func (n *BenchNotifier) sendJobEmail(cfg *GraphConfig, job types.Job, failed bool) error {
	durationMs := job.CompletedAt - job.StartedAt

	if failed {
		subject := "[ALERT] Training Failed - " + AppName
		body := fmt.Sprintf(
			"A training job failed.\n\n"+
				"Job:     %s\n"+
				"Keyword: %s\n"+
				"Stage:   %s\n"+
				"Error:   %s\n"+
				"Time:    %s",
			job.ID, job.Config.Keyword, job.CurrentStep, job.Error, util.HumanTime(),
		)
		return n.sendEmail(cfg, subject, body)
	}

	subject := "[OK] Training Completed - " + AppName
	body := fmt.Sprintf(
		"A training job finished successfully.\n\n"+
			"Job:      %s\n"+
			"Keyword:  %s\n"+
			"Duration: %s\n"+
			"Time:     %s",
		job.ID, job.Config.Keyword, util.FormatDuration(durationMs), util.HumanTime(),
	)
	return n.sendEmail(cfg, subject, body)
}
