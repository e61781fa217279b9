// Package events writes bench events (job transitions, evaluation runs) to
// a JSON lines file.
package events

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// EventType represents the type of bench event.
type EventType string

const (
	EventJobQueued      EventType = "job_queued"
	EventJobStage       EventType = "job_stage"
	EventJobDone        EventType = "job_done"
	EventJobFailed      EventType = "job_failed"
	EventEvalStarted    EventType = "eval_started"
	EventEvalFinished   EventType = "eval_finished"
	EventEvalClipFailed EventType = "eval_clip_failed"
	EventSweepFinished  EventType = "sweep_finished"
)

// BenchEvent represents a single bench event.
type BenchEvent struct {
	Timestamp time.Time `json:"ts"`
	Event     EventType `json:"event"`
	JobID     string    `json:"job_id,omitempty"`
	Keyword   string    `json:"keyword,omitempty"`
	ClipID    string    `json:"clip_id,omitempty"`
	Message   string    `json:"msg,omitempty"`
	Error     string    `json:"error,omitempty"`
}

// Logger writes bench events to a JSON lines file.
type Logger struct {
	mu       sync.Mutex
	filePath string
	file     *os.File
	encoder  *json.Encoder
}

// NewLogger creates a new event logger.
func NewLogger(filePath string) (*Logger, error) {
	// Ensure directory exists
	dir := filepath.Dir(filePath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}

	// Open file for appending
	file, err := os.OpenFile(filePath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, err
	}

	return &Logger{
		filePath: filePath,
		file:     file,
		encoder:  json.NewEncoder(file),
	}, nil
}

// Log writes an event to the log file.
func (l *Logger) Log(event *BenchEvent) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	return l.encoder.Encode(event)
}

// Close closes the log file.
func (l *Logger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.file != nil {
		return l.file.Close()
	}
	return nil
}

// Path returns the path to the log file.
func (l *Logger) Path() string {
	return l.filePath
}

// ReadLast reads the last n events from the log file, newest first.
func ReadLast(filePath string, n int) ([]BenchEvent, error) {
	file, err := os.Open(filePath)
	if err != nil {
		if os.IsNotExist(err) {
			return []BenchEvent{}, nil
		}
		return nil, err
	}
	defer file.Close() //nolint:errcheck // Read-only operation, close error not critical

	var lines []string
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}

	start := 0
	if len(lines) > n {
		start = len(lines) - n
	}
	lines = lines[start:]

	// Parse events (newest first)
	events := make([]BenchEvent, 0, len(lines))
	for i := len(lines) - 1; i >= 0; i-- {
		var event BenchEvent
		if err := json.Unmarshal([]byte(lines[i]), &event); err != nil {
			continue // Skip malformed lines
		}
		events = append(events, event)
	}

	return events, nil
}
