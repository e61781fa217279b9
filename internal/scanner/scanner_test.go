package scanner

import (
	"os"
	"path/filepath"
	"testing"
)

func mustWrite(t *testing.T, path string, content []byte) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, content, 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestModels(t *testing.T) {
	dir := t.TempDir()
	mustWrite(t, filepath.Join(dir, "melspectrogram.onnx"), []byte("mel"))
	mustWrite(t, filepath.Join(dir, "embedding_model.onnx"), []byte("embed"))
	mustWrite(t, filepath.Join(dir, "porcupine.onnx"), []byte("head"))
	mustWrite(t, filepath.Join(dir, "notes.txt"), []byte("ignored"))

	models, err := Models(dir)
	if err != nil {
		t.Fatalf("Models: %v", err)
	}
	if len(models) != 3 {
		t.Fatalf("got %d models, want 3", len(models))
	}
	// Shared backbones sort first.
	if !models[0].Shared || !models[1].Shared || models[2].Shared {
		t.Fatalf("shared flags wrong: %+v", models)
	}
	if models[2].Name != "porcupine" || models[2].File != "porcupine.onnx" {
		t.Fatalf("head entry = %+v", models[2])
	}
	if models[2].SizeBytes != 4 {
		t.Fatalf("size = %d, want 4", models[2].SizeBytes)
	}
}

func TestModelsMissingDir(t *testing.T) {
	models, err := Models(filepath.Join(t.TempDir(), "nope"))
	if err != nil || models != nil {
		t.Fatalf("missing dir should be empty, got %v, %v", models, err)
	}
}

func TestConfigs(t *testing.T) {
	dir := t.TempDir()
	mustWrite(t, filepath.Join(dir, "oww_porcupine.yml"), []byte(
		"model_name: porcupine\nmodel_type: dnn\nsteps: 25000\nn_samples: 5000\nlayer_size: 32\ntarget_false_positives_per_hour: 0.2\n"))
	mustWrite(t, filepath.Join(dir, "broken.yml"), []byte(":\n:::not yaml"))

	configs, err := Configs(dir)
	if err != nil {
		t.Fatalf("Configs: %v", err)
	}
	if len(configs) != 2 {
		t.Fatalf("got %d configs, want 2", len(configs))
	}
	good := configs[1]
	if good.ModelName != "porcupine" || good.Steps != 25000 || good.NSamples != 5000 {
		t.Fatalf("parsed config = %+v", good)
	}
	if good.TargetFPPerHour != 0.2 || good.LayerSize != 32 {
		t.Fatalf("parsed config = %+v", good)
	}
	// The broken file is listed without parsed fields.
	if configs[0].File != "broken.yml" || configs[0].ModelName != "" {
		t.Fatalf("broken config entry = %+v", configs[0])
	}
}

func TestDatasets(t *testing.T) {
	tools := t.TempDir()
	output := filepath.Join(tools, "output")
	data := filepath.Join(tools, "data")

	mustWrite(t, filepath.Join(output, "porcupine", "positive", "a.wav"), []byte("aa"))
	mustWrite(t, filepath.Join(output, "porcupine", "positive", "b.wav"), []byte("bb"))
	mustWrite(t, filepath.Join(output, "porcupine", "augmented", "c.wav"), []byte("cccc"))
	mustWrite(t, filepath.Join(output, "porcupine_minimal", "clips", "d.wav"), []byte("d"))
	mustWrite(t, filepath.Join(data, "mit_rirs", "rir1.wav"), []byte("r"))
	mustWrite(t, filepath.Join(data, "background_clips", "bg1.wav"), []byte("b"))
	mustWrite(t, filepath.Join(data, "background_clips", "bg2.wav"), []byte("b"))
	mustWrite(t, filepath.Join(data, "features.npy"), []byte("n"))

	datasets, shared, err := Datasets(output, data)
	if err != nil {
		t.Fatalf("Datasets: %v", err)
	}
	if len(datasets) != 2 {
		t.Fatalf("got %d datasets, want 2: %+v", len(datasets), datasets)
	}
	full := datasets[0]
	if full.Keyword != "porcupine" || full.Variant != "full" {
		t.Fatalf("first dataset = %+v", full)
	}
	if full.PositiveClips != 2 || full.PositiveBytes != 4 || full.AugmentedClips != 1 || full.AugmentedBytes != 4 {
		t.Fatalf("full counts = %+v", full)
	}
	minimal := datasets[1]
	if minimal.Variant != "minimal" || minimal.PositiveClips != 1 {
		t.Fatalf("minimal dataset = %+v", minimal)
	}
	if shared.RIRClips != 1 || shared.BackgroundClips != 2 || len(shared.FeatureFiles) != 1 {
		t.Fatalf("shared data = %+v", shared)
	}
}

func TestPositiveClipsLimit(t *testing.T) {
	output := t.TempDir()
	for _, name := range []string{"a.wav", "b.wav", "c.wav"} {
		mustWrite(t, filepath.Join(output, "kw", "positive", name), []byte("x"))
	}

	clips := PositiveClips(output, "kw", 2)
	if len(clips) != 2 {
		t.Fatalf("got %d clips, want 2", len(clips))
	}
	if clips := PositiveClips(output, "other", 5); len(clips) != 0 {
		t.Fatalf("unknown keyword returned clips: %v", clips)
	}
}

func TestLogs(t *testing.T) {
	dir := t.TempDir()
	var lines string
	for i := 0; i < 15; i++ {
		lines += "line\n"
	}
	mustWrite(t, filepath.Join(dir, "train.log"), []byte(lines))

	logs, err := Logs(dir)
	if err != nil {
		t.Fatalf("Logs: %v", err)
	}
	if len(logs) != 1 {
		t.Fatalf("got %d logs, want 1", len(logs))
	}
	if len(logs[0].Tail) != 10 {
		t.Fatalf("tail has %d lines, want 10", len(logs[0].Tail))
	}
}

func TestClipsAndAnnotations(t *testing.T) {
	dir := t.TempDir()
	mustWrite(t, filepath.Join(dir, "one.wav"), []byte("w"))
	mustWrite(t, filepath.Join(dir, "one.json"), []byte(
		`[{"start_ms":1000,"end_ms":1500,"keyword":"kw"},
		  {"start_ms":2000,"keyword":"kw"},
		  {"start_ms":5000,"end_ms":4000,"keyword":"kw"},
		  {"start_ms":3000,"end_ms":3400,"keyword":""}]`))
	mustWrite(t, filepath.Join(dir, "two.wav"), []byte("w"))

	clips, err := Clips(dir)
	if err != nil {
		t.Fatalf("Clips: %v", err)
	}
	if len(clips) != 2 {
		t.Fatalf("got %d clips, want 2", len(clips))
	}
	if clips[0].AnnotationPath == "" {
		t.Fatal("one.wav should have an annotation sidecar")
	}
	if clips[1].AnnotationPath != "" {
		t.Fatal("two.wav should have no sidecar")
	}

	truths, err := LoadGroundTruth(clips[0].AnnotationPath)
	if err != nil {
		t.Fatalf("LoadGroundTruth: %v", err)
	}
	// Only the fully-formed entry survives.
	if len(truths) != 1 || truths[0].StartMs != 1000 || truths[0].EndMs != 1500 {
		t.Fatalf("truths = %+v", truths)
	}
}

func TestLoadGroundTruthMissingFile(t *testing.T) {
	truths, err := LoadGroundTruth(filepath.Join(t.TempDir(), "none.json"))
	if err != nil || truths != nil {
		t.Fatalf("missing sidecar should be empty, got %v, %v", truths, err)
	}
}

func TestLoadGroundTruthInvalidJSON(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bad.json")
	mustWrite(t, path, []byte("{not json"))
	if _, err := LoadGroundTruth(path); err == nil {
		t.Fatal("expected parse error")
	}
}
