// Package report builds evaluation reports and exports them to S3
// compatible storage.
package report

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/voicepage/kwsbench/internal/types"
	"github.com/voicepage/kwsbench/internal/util"
)

// Report is a self-contained evaluation result document.
type Report struct {
	GeneratedAt string                          `json:"generated_at"`
	Tool        string                          `json:"tool"`
	Corpus      string                          `json:"corpus,omitempty"`
	Threshold   float64                         `json:"threshold"`
	ToleranceMs float64                         `json:"tolerance_ms"`
	Keywords    []string                        `json:"keywords"`
	Metrics     map[string]types.KeywordMetrics `json:"metrics"`
	Curves      map[string][]types.CurvePoint   `json:"curves,omitempty"`
	Clips       []types.ClipResult              `json:"clips,omitempty"`
	Errors      []types.ClipError               `json:"errors,omitempty"`
}

// New creates a report stamped with the current UTC time.
func New(corpus string, threshold, toleranceMs float64, keywords []string) *Report {
	return &Report{
		GeneratedAt: time.Now().UTC().Format(time.RFC3339),
		Tool:        "kwsbench",
		Corpus:      corpus,
		Threshold:   threshold,
		ToleranceMs: toleranceMs,
		Keywords:    keywords,
		Metrics:     make(map[string]types.KeywordMetrics),
	}
}

// Filename returns a timestamped report filename.
func (r *Report) Filename() string {
	t, err := time.Parse(time.RFC3339, r.GeneratedAt)
	if err != nil {
		t = time.Now().UTC()
	}
	return fmt.Sprintf("kws-report-%s.json", t.Format("20060102-150405"))
}

// JSON returns the report as indented JSON.
func (r *Report) JSON() ([]byte, error) {
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return nil, util.WrapError("marshal report", err)
	}
	return data, nil
}
