package server

// Request types for the HTTP API with validation tags. These define the
// expected input for each endpoint and use go-playground/validator struct
// tags for automatic validation.

// --- Evaluation ---

// EvaluateRequest is the request body for POST /api/evaluate.
type EvaluateRequest struct {
	Dir         string   `json:"dir" validate:"required,max=4096"`
	Keywords    []string `json:"keywords" validate:"omitempty,dive,required,max=64"`
	Threshold   *float64 `json:"threshold" validate:"omitempty,gte=0,lte=1"`
	ToleranceMs *float64 `json:"tolerance_ms" validate:"omitempty,gte=0"`
}

// QuickEvaluateRequest is the request body for POST /api/evaluate/quick.
type QuickEvaluateRequest struct {
	Keyword   string   `json:"keyword" validate:"required,max=64"`
	Threshold *float64 `json:"threshold" validate:"omitempty,gte=0,lte=1"`
}

// SweepRequest is the request body for POST /api/evaluate/sweep.
type SweepRequest struct {
	Dir        string    `json:"dir" validate:"required,max=4096"`
	Keyword    string    `json:"keyword" validate:"required,max=64"`
	Thresholds []float64 `json:"thresholds" validate:"omitempty,min=1,dive,gte=0,lte=1"`
}

// --- Training jobs ---

// JobRequest is the request body for POST /api/jobs.
type JobRequest struct {
	Keyword        string         `json:"keyword" validate:"required,max=64"`
	ConfigTemplate string         `json:"config_template" validate:"omitempty,oneof=full minimal custom"`
	Overrides      map[string]any `json:"overrides" validate:"omitempty,max=64"`
}

// --- Notification settings ---

// WebhookUpdateRequest is the request body for PUT /api/settings/notifications/webhook.
type WebhookUpdateRequest struct {
	URL string `json:"url" validate:"omitempty,max=2048"`
}

// LogUpdateRequest is the request body for PUT /api/settings/notifications/log.
type LogUpdateRequest struct {
	Path string `json:"path" validate:"omitempty,max=4096"`
}

// EmailUpdateRequest is the request body for PUT /api/settings/notifications/email.
type EmailUpdateRequest struct {
	TenantID     string `json:"tenant_id" validate:"omitempty,max=100"`
	ClientID     string `json:"client_id" validate:"omitempty,max=100"`
	ClientSecret string `json:"client_secret" validate:"omitempty,max=500"`
	FromAddress  string `json:"from_address" validate:"omitempty,max=254"`
	Recipients   string `json:"recipients" validate:"omitempty,max=1000"`
}

// --- Report export ---

// ReportSettingsRequest is the request body for PUT /api/settings/report.
type ReportSettingsRequest struct {
	S3Endpoint        string `json:"s3_endpoint" validate:"omitempty,max=2048"`
	S3Bucket          string `json:"s3_bucket" validate:"omitempty,max=63"`
	S3AccessKeyID     string `json:"s3_access_key_id" validate:"omitempty,max=128"`
	S3SecretAccessKey string `json:"s3_secret_access_key" validate:"omitempty,max=256"`
	S3Prefix          string `json:"s3_prefix" validate:"omitempty,max=1024"`
}

// S3TestRequest is the request body for POST /api/reports/test-s3.
type S3TestRequest struct {
	Endpoint  string `json:"s3_endpoint" validate:"omitempty,max=2048"`
	Bucket    string `json:"s3_bucket" validate:"required,max=63"`
	AccessKey string `json:"s3_access_key_id" validate:"required,max=128"`
	SecretKey string `json:"s3_secret_access_key" validate:"required,max=256"`
	Prefix    string `json:"s3_prefix" validate:"omitempty,max=1024"`
}
