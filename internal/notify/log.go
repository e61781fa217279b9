package notify

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/voicepage/kwsbench/internal/types"
	"github.com/voicepage/kwsbench/internal/util"
)

// LogEntry is one notification record in the JSON lines log file.
type LogEntry struct {
	Timestamp  string `json:"timestamp"`
	Event      string `json:"event"`
	JobID      string `json:"job_id,omitempty"`
	Keyword    string `json:"keyword,omitempty"`
	Stage      string `json:"stage,omitempty"`
	DurationMs int64  `json:"duration_ms,omitempty"`
	Error      string `json:"error,omitempty"`
}

// LogJobEvent records a job outcome in the notification log file.
func LogJobEvent(logPath, event string, job types.Job) error {
	entry := &LogEntry{
		Timestamp: timestampUTC(),
		Event:     event,
		JobID:     job.ID,
		Keyword:   job.Config.Keyword,
	}
	if job.StartedAt > 0 && job.CompletedAt > job.StartedAt {
		entry.DurationMs = job.CompletedAt - job.StartedAt
	}
	if job.Error != "" {
		entry.Stage = job.CurrentStep
		entry.Error = job.Error
	}
	return appendLogEntry(logPath, entry)
}

// WriteTestLog writes a test log entry.
func WriteTestLog(logPath string) error {
	if logPath == "" {
		return fmt.Errorf("log file path not configured")
	}

	return appendLogEntry(logPath, &LogEntry{
		Timestamp: timestampUTC(),
		Event:     "test",
	})
}

// appendLogEntry appends a log entry to the file.
func appendLogEntry(logPath string, entry *LogEntry) error {
	if !util.IsConfigured(logPath) {
		return nil
	}

	jsonData, err := json.Marshal(entry)
	if err != nil {
		return util.WrapError("marshal log entry", err)
	}

	f, err := os.OpenFile(logPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return util.WrapError("open log file", err)
	}
	defer util.SafeCloseFunc(f, "log file")()

	if _, err := f.Write(jsonData); err != nil {
		return util.WrapError("write log entry", err)
	}
	if _, err := f.WriteString("\n"); err != nil {
		return util.WrapError("write newline", err)
	}

	return nil
}
