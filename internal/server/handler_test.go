package server

import (
	"errors"
	"testing"

	"github.com/voicepage/kwsbench/internal/types"
)

func TestValidateStructPassesValidRequest(t *testing.T) {
	req := EvaluateRequest{Dir: "corpus/test"}
	if err := ValidateStruct(&req); err != nil {
		t.Fatalf("valid request rejected: %v", err)
	}
}

func TestValidateStructReportsFieldNames(t *testing.T) {
	threshold := 1.5
	req := EvaluateRequest{Threshold: &threshold}
	err := ValidateStruct(&req)
	if err == nil {
		t.Fatal("invalid request accepted")
	}

	var verr *types.ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("error type = %T", err)
	}
	fields := make(map[string]bool)
	for _, fe := range verr.Errors {
		fields[fe.Field] = true
	}
	// JSON tag names, not Go field names.
	if !fields["dir"] || !fields["threshold"] {
		t.Fatalf("fields = %v", verr.Errors)
	}
}

func TestValidateStructSweepThresholdBounds(t *testing.T) {
	req := SweepRequest{Dir: "corpus", Keyword: "kw", Thresholds: []float64{0.2, 1.2}}
	if err := ValidateStruct(&req); err == nil {
		t.Fatal("out-of-range threshold accepted")
	}
	req.Thresholds = []float64{0.2, 0.8}
	if err := ValidateStruct(&req); err != nil {
		t.Fatalf("valid sweep rejected: %v", err)
	}
}

func TestValidateStructJobTemplate(t *testing.T) {
	req := JobRequest{Keyword: "kw", ConfigTemplate: "bogus"}
	if err := ValidateStruct(&req); err == nil {
		t.Fatal("unknown template accepted")
	}
	req.ConfigTemplate = "minimal"
	if err := ValidateStruct(&req); err != nil {
		t.Fatalf("valid job rejected: %v", err)
	}
}
