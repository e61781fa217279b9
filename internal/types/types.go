// Package types provides shared type definitions used across the bench server.
package types

// Audio pipeline constants. The acoustic models are trained on 16 kHz mono
// audio consumed in 80 ms hops, so every stage downstream of the WAV loader
// works in these units.
const (
	// SampleRate is the audio sample rate in Hz.
	SampleRate = 16000
	// FrameSamples is the number of samples per streaming frame (80 ms).
	FrameSamples = 1280
	// FrameDurationMs is the duration of one frame in milliseconds.
	FrameDurationMs = 80
	// MelWindowFrames is the number of mel rows the embedding model consumes.
	MelWindowFrames = 76
	// MelFeatureWidth is the number of mel bins per row.
	MelFeatureWidth = 32
	// EmbeddingSize is the length of the speech embedding vector.
	EmbeddingSize = 96
)

const (
	// DefaultThreshold is the detection score threshold when none is given.
	DefaultThreshold = 0.5
	// DefaultToleranceMs is the matching tolerance around ground-truth spans.
	DefaultToleranceMs = 500.0
)

// AudioClip is a decoded mono clip at SampleRate.
type AudioClip struct {
	ID      string    `json:"id"`             // Clip identifier (usually the filename)
	Path    string    `json:"path,omitempty"` // Source file, empty for synthetic clips
	Samples []float32 `json:"-"`              // Mono PCM at SampleRate
}

// DurationSeconds returns the clip length in seconds.
func (c AudioClip) DurationSeconds() float64 {
	return float64(len(c.Samples)) / SampleRate
}

// Detection is a single above-threshold keyword hit emitted by the detector.
type Detection struct {
	TimestampMs float64 `json:"timestamp_ms"` // Start of the frame that fired
	Keyword     string  `json:"keyword"`      // Keyword model that fired
	Score       float64 `json:"score"`        // Classifier score in [0,1]
	LatencyMs   float64 `json:"latency_ms"`   // Wall-clock inference time for the frame
}

// GroundTruth is an annotated keyword occurrence in a clip.
type GroundTruth struct {
	StartMs float64 `json:"start_ms"`
	EndMs   float64 `json:"end_ms"`
	Keyword string  `json:"keyword"`
}

// MatchCounts holds matching outcomes for one keyword within one clip.
type MatchCounts struct {
	TruePositives  int       `json:"true_positives"`
	FalsePositives int       `json:"false_positives"`
	FalseNegatives int       `json:"false_negatives"`
	LatenciesMs    []float64 `json:"-"`
}

// ClipResult is the outcome of evaluating a single clip at one threshold.
// PerKeyword keeps the counts separated so aggregation over a corpus that
// mixes keywords cannot attribute one keyword's hits to another.
type ClipResult struct {
	ClipID          string                 `json:"clip_id"`
	DurationSeconds float64                `json:"duration_seconds"`
	Detections      []Detection            `json:"detections"`
	TruePositives   int                    `json:"true_positives"`
	FalsePositives  int                    `json:"false_positives"`
	FalseNegatives  int                    `json:"false_negatives"`
	PerKeyword      map[string]MatchCounts `json:"per_keyword,omitempty"`
}

// ClipError records a clip that failed to evaluate and was skipped.
type ClipError struct {
	ClipID string `json:"clip_id"`
	Stage  string `json:"stage"` // load, annotate or detect
	Error  string `json:"error"`
}

// KeywordMetrics is the aggregate quality summary for one keyword at one
// threshold. Rates use clamped denominators so empty inputs degrade to zero
// instead of NaN.
type KeywordMetrics struct {
	Keyword            string  `json:"keyword"`
	Threshold          float64 `json:"threshold"`
	TruePositives      int     `json:"true_positives"`
	FalsePositives     int     `json:"false_positives"`
	FalseNegatives     int     `json:"false_negatives"`
	TrueNegatives      int     `json:"true_negatives"` // Always 0, undefined for streaming detection
	FalseRejectRate    float64 `json:"false_reject_rate"`
	FalseAcceptRate    float64 `json:"false_accept_rate"`
	FalsePositivesHour float64 `json:"false_positives_per_hour"`
	Precision          float64 `json:"precision"`
	Recall             float64 `json:"recall"`
	F1                 float64 `json:"f1"`
	AvgLatencyMs       float64 `json:"avg_latency_ms"`
	P95LatencyMs       float64 `json:"p95_latency_ms"`
	TotalClips         int     `json:"total_clips"`
	TotalHours         float64 `json:"total_duration_hours"`
}

// CurvePoint is one threshold sample on a sweep curve.
type CurvePoint struct {
	Threshold       float64 `json:"threshold"`
	FalseRejectRate float64 `json:"false_reject_rate"`
	FalseAcceptRate float64 `json:"false_accept_rate"`
	TruePositives   int     `json:"true_positives"`
	FalsePositives  int     `json:"false_positives"`
	FalseNegatives  int     `json:"false_negatives"`
	Precision       float64 `json:"precision"`
	Recall          float64 `json:"recall"`
	F1              float64 `json:"f1"`
}

// JobStatus represents the lifecycle state of a training job.
type JobStatus string

// Job lifecycle states. The five working states map one-to-one onto the
// trainer pipeline stages.
const (
	JobQueued     JobStatus = "queued"
	JobGenerating JobStatus = "generating"
	JobAugmenting JobStatus = "augmenting"
	JobTraining   JobStatus = "training"
	JobExporting  JobStatus = "exporting"
	JobEvaluating JobStatus = "evaluating"
	JobDone       JobStatus = "done"
	JobFailed     JobStatus = "failed"
)

// Terminal reports whether the status is a final state.
func (s JobStatus) Terminal() bool {
	return s == JobDone || s == JobFailed
}

// Config template names accepted for training jobs.
const (
	TemplateFull    = "full"
	TemplateMinimal = "minimal"
	TemplateCustom  = "custom"
)

// JobConfig is the user-supplied part of a training job.
type JobConfig struct {
	Keyword        string         `json:"keyword"`
	ConfigTemplate string         `json:"config_template"` // full, minimal or custom
	Overrides      map[string]any `json:"overrides,omitempty"`
}

// Job is a training pipeline run.
type Job struct {
	ID          string    `json:"id"`
	Config      JobConfig `json:"config"`
	Status      JobStatus `json:"status"`
	CurrentStep string    `json:"current_step,omitempty"`
	Progress    int       `json:"progress"` // 0-100, derived from completed stages
	Log         []string  `json:"log,omitempty"`
	Error       string    `json:"error,omitempty"`
	CreatedAt   int64     `json:"created_at"`             // Unix milliseconds
	StartedAt   int64     `json:"started_at,omitempty"`   // Unix milliseconds
	CompletedAt int64     `json:"completed_at,omitempty"` // Unix milliseconds
}

// GraphConfig contains Microsoft Graph API settings for email notifications.
type GraphConfig struct {
	TenantID     string `json:"tenant_id,omitempty"`     // Azure AD tenant ID
	ClientID     string `json:"client_id,omitempty"`     // App registration client ID
	ClientSecret string `json:"client_secret,omitempty"` // App registration client secret
	FromAddress  string `json:"from_address,omitempty"`  // Shared mailbox address (sender)
	Recipients   string `json:"recipients,omitempty"`    // Comma-separated recipients
}

// VersionInfo contains version comparison data.
type VersionInfo struct {
	Current     string `json:"current"`              // Current version
	Latest      string `json:"latest,omitempty"`     // Latest available version
	UpdateAvail bool   `json:"update_available"`     // Update is available
	Commit      string `json:"commit,omitempty"`     // Git commit hash
	BuildTime   string `json:"build_time,omitempty"` // Build timestamp
}
