package report

import (
	"encoding/json"
	"regexp"
	"testing"

	"github.com/voicepage/kwsbench/internal/types"
)

func TestReportJSONRoundTrip(t *testing.T) {
	rep := New("corpus/test", 0.5, 500, []string{"hey_computer"})
	rep.Metrics["hey_computer"] = types.KeywordMetrics{
		Keyword:       "hey_computer",
		Threshold:     0.5,
		TruePositives: 8,
	}

	data, err := rep.JSON()
	if err != nil {
		t.Fatalf("JSON: %v", err)
	}

	var parsed Report
	if err := json.Unmarshal(data, &parsed); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if parsed.Tool != "kwsbench" || parsed.Corpus != "corpus/test" {
		t.Fatalf("parsed = %+v", parsed)
	}
	if parsed.Metrics["hey_computer"].TruePositives != 8 {
		t.Fatalf("metrics lost: %+v", parsed.Metrics)
	}
	if parsed.GeneratedAt == "" {
		t.Fatal("generated_at missing")
	}
}

func TestReportFilename(t *testing.T) {
	rep := New("", 0.5, 500, nil)
	rep.GeneratedAt = "2026-08-25T10:30:00Z"
	if got := rep.Filename(); got != "kws-report-20260825-103000.json" {
		t.Fatalf("filename = %q", got)
	}

	// Unparseable timestamp still yields a valid filename.
	rep.GeneratedAt = "garbage"
	pattern := regexp.MustCompile(`^kws-report-\d{8}-\d{6}\.json$`)
	if got := rep.Filename(); !pattern.MatchString(got) {
		t.Fatalf("fallback filename = %q", got)
	}
}

func TestObjectKeyPrefix(t *testing.T) {
	cfg := &S3Config{Prefix: "reports/kws"}
	if got := cfg.ObjectKey("a.json"); got != "reports/kws/a.json" {
		t.Fatalf("key = %q", got)
	}
	cfg.Prefix = ""
	if got := cfg.ObjectKey("a.json"); got != "a.json" {
		t.Fatalf("key = %q", got)
	}
}

func TestS3ConfigIsConfigured(t *testing.T) {
	cfg := &S3Config{Bucket: "b", AccessKeyID: "k", SecretAccessKey: "s"}
	if !cfg.IsConfigured() {
		t.Fatal("complete config reported unconfigured")
	}
	if (&S3Config{Bucket: "b"}).IsConfigured() {
		t.Fatal("missing credentials reported configured")
	}
}
