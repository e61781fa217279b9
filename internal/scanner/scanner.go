// Package scanner inspects the training workspace on disk: exported models,
// training configs, per-keyword datasets and trainer logs.
package scanner

import (
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/goccy/go-yaml"

	"github.com/voicepage/kwsbench/internal/model"
	"github.com/voicepage/kwsbench/internal/util"
)

// Directory names inside a keyword's output directory that hold positive
// and augmented clips. Trainer versions have used several spellings.
var (
	positiveDirNames  = []string{"positive", "positive_clips", "clips", "generated_clips"}
	augmentedDirNames = []string{"augmented", "augmented_clips", "augmented_data"}
)

// ModelInfo describes one exported ONNX model file.
type ModelInfo struct {
	Name       string `json:"name"` // File stem; the keyword for head models
	File       string `json:"file"`
	SizeBytes  int64  `json:"size_bytes"`
	ModifiedAt string `json:"modified_at"` // RFC3339
	Shared     bool   `json:"shared"`      // Mel or embedding backbone
}

// ConfigInfo summarizes one training config file.
type ConfigInfo struct {
	File            string  `json:"file"`
	ModelName       string  `json:"model_name,omitempty"`
	ModelType       string  `json:"model_type,omitempty"`
	Steps           int     `json:"steps,omitempty"`
	NSamples        int     `json:"n_samples,omitempty"`
	LayerSize       int     `json:"layer_size,omitempty"`
	TargetFPPerHour float64 `json:"target_false_positives_per_hour,omitempty"`
	SizeBytes       int64   `json:"size_bytes"`
}

// DatasetInfo summarizes the generated clips for one keyword variant.
type DatasetInfo struct {
	Keyword        string `json:"keyword"`
	Variant        string `json:"variant"` // full or minimal
	Path           string `json:"path"`
	PositiveClips  int    `json:"positive_clips"`
	PositiveBytes  int64  `json:"positive_bytes"`
	AugmentedClips int    `json:"augmented_clips"`
	AugmentedBytes int64  `json:"augmented_bytes"`
}

// SharedData summarizes the augmentation data shared across keywords.
type SharedData struct {
	RIRClips        int      `json:"rir_clips"`
	BackgroundClips int      `json:"background_clips"`
	FeatureFiles    []string `json:"feature_files"`
}

// LogInfo describes one trainer log file with its last lines.
type LogInfo struct {
	File       string   `json:"file"`
	SizeBytes  int64    `json:"size_bytes"`
	ModifiedAt string   `json:"modified_at"` // RFC3339
	Tail       []string `json:"tail,omitempty"`
}

// logTailLines is how many trailing lines each log listing carries.
const logTailLines = 10

// Models lists ONNX files in the models directory, shared backbones first.
func Models(dir string) ([]ModelInfo, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, util.WrapError("read models directory", err)
	}

	var models []ModelInfo
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, ".onnx") {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		models = append(models, ModelInfo{
			Name:       strings.TrimSuffix(name, ".onnx"),
			File:       name,
			SizeBytes:  info.Size(),
			ModifiedAt: info.ModTime().UTC().Format(time.RFC3339),
			Shared:     name == model.MelModelFile || name == model.EmbeddingModelFile,
		})
	}
	sort.Slice(models, func(i, j int) bool {
		if models[i].Shared != models[j].Shared {
			return models[i].Shared
		}
		return models[i].Name < models[j].Name
	})
	return models, nil
}

// trainingConfig is the subset of trainer YAML fields the API reports.
type trainingConfig struct {
	ModelName       string  `yaml:"model_name"`
	ModelType       string  `yaml:"model_type"`
	Steps           int     `yaml:"steps"`
	NSamples        int     `yaml:"n_samples"`
	LayerSize       int     `yaml:"layer_size"`
	TargetFPPerHour float64 `yaml:"target_false_positives_per_hour"`
}

// Configs lists and parses the training configs in a directory. A config
// that fails to parse is still listed, with only file metadata.
func Configs(dir string) ([]ConfigInfo, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, util.WrapError("read configs directory", err)
	}

	var configs []ConfigInfo
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || (!strings.HasSuffix(name, ".yml") && !strings.HasSuffix(name, ".yaml")) {
			continue
		}
		ci := ConfigInfo{File: name}
		if info, err := entry.Info(); err == nil {
			ci.SizeBytes = info.Size()
		}
		if raw, err := os.ReadFile(filepath.Join(dir, name)); err == nil {
			var tc trainingConfig
			if yaml.Unmarshal(raw, &tc) == nil {
				ci.ModelName = tc.ModelName
				ci.ModelType = tc.ModelType
				ci.Steps = tc.Steps
				ci.NSamples = tc.NSamples
				ci.LayerSize = tc.LayerSize
				ci.TargetFPPerHour = tc.TargetFPPerHour
			}
		}
		configs = append(configs, ci)
	}
	sort.Slice(configs, func(i, j int) bool { return configs[i].File < configs[j].File })
	return configs, nil
}

// Datasets scans the trainer output directory for per-keyword datasets and
// the shared augmentation data directory.
func Datasets(outputDir, dataDir string) ([]DatasetInfo, SharedData, error) {
	shared := SharedData{
		RIRClips:        countFiles(filepath.Join(dataDir, "mit_rirs"), ".wav"),
		BackgroundClips: countFiles(filepath.Join(dataDir, "background_clips"), ".wav"),
		FeatureFiles:    listFiles(dataDir, ".npy"),
	}

	entries, err := os.ReadDir(outputDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, shared, nil
		}
		return nil, shared, util.WrapError("read output directory", err)
	}

	var datasets []DatasetInfo
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		name := entry.Name()
		keyword, variant := name, "full"
		if strings.HasSuffix(name, "_minimal") {
			keyword, variant = strings.TrimSuffix(name, "_minimal"), "minimal"
		}

		ds := DatasetInfo{
			Keyword: keyword,
			Variant: variant,
			Path:    filepath.Join(outputDir, name),
		}
		for _, sub := range positiveDirNames {
			n, bytes := countWithBytes(filepath.Join(ds.Path, sub), ".wav")
			ds.PositiveClips += n
			ds.PositiveBytes += bytes
		}
		for _, sub := range augmentedDirNames {
			n, bytes := countWithBytes(filepath.Join(ds.Path, sub), ".wav")
			ds.AugmentedClips += n
			ds.AugmentedBytes += bytes
		}
		datasets = append(datasets, ds)
	}
	sort.Slice(datasets, func(i, j int) bool {
		if datasets[i].Keyword != datasets[j].Keyword {
			return datasets[i].Keyword < datasets[j].Keyword
		}
		return datasets[i].Variant < datasets[j].Variant
	})
	return datasets, shared, nil
}

// Logs lists trainer log files, newest first, each with a short tail.
func Logs(dir string) ([]LogInfo, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, util.WrapError("read logs directory", err)
	}

	var logs []LogInfo
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, ".log") {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		logs = append(logs, LogInfo{
			File:       name,
			SizeBytes:  info.Size(),
			ModifiedAt: info.ModTime().UTC().Format(time.RFC3339),
			Tail:       tailLines(filepath.Join(dir, name), logTailLines),
		})
	}
	// Trainer logs carry their run date in the filename; prefer that over
	// mtime, which rsync and backup restores clobber.
	sort.Slice(logs, func(i, j int) bool {
		di, iok := util.ExtractDateFromFilename(logs[i].File)
		dj, jok := util.ExtractDateFromFilename(logs[j].File)
		if iok && jok && !di.Equal(dj) {
			return di.After(dj)
		}
		return logs[i].ModifiedAt > logs[j].ModifiedAt
	})
	return logs, nil
}

// PositiveClips returns up to limit positive clip paths for a keyword,
// preferring the full dataset over the minimal one.
func PositiveClips(outputDir, keyword string, limit int) []string {
	var clips []string
	for _, variant := range []string{keyword, keyword + "_minimal"} {
		for _, sub := range positiveDirNames {
			dir := filepath.Join(outputDir, variant, sub)
			entries, err := os.ReadDir(dir)
			if err != nil {
				continue
			}
			for _, entry := range entries {
				if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".wav") {
					continue
				}
				clips = append(clips, filepath.Join(dir, entry.Name()))
				if len(clips) >= limit {
					return clips
				}
			}
		}
	}
	return clips
}

func countFiles(dir, ext string) int {
	n, _ := countWithBytes(dir, ext)
	return n
}

func countWithBytes(dir, ext string) (int, int64) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return 0, 0
	}
	var n int
	var bytes int64
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ext) {
			continue
		}
		n++
		if info, err := entry.Info(); err == nil {
			bytes += info.Size()
		}
	}
	return n, bytes
}

func listFiles(dir, ext string) []string {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil
	}
	var files []string
	for _, entry := range entries {
		if !entry.IsDir() && strings.HasSuffix(entry.Name(), ext) {
			files = append(files, entry.Name())
		}
	}
	sort.Strings(files)
	return files
}

func tailLines(path string, n int) []string {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil
	}
	lines := strings.Split(strings.TrimRight(string(raw), "\n"), "\n")
	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	if len(lines) == 1 && lines[0] == "" {
		return nil
	}
	return lines
}
