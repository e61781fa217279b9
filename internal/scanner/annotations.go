package scanner

import (
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/voicepage/kwsbench/internal/types"
	"github.com/voicepage/kwsbench/internal/util"
)

// ClipEntry pairs an audio file with its annotation sidecar, if present.
type ClipEntry struct {
	Path           string
	AnnotationPath string // empty when no sidecar exists
}

// AnnotationPath returns the ground-truth sidecar path for a clip:
// clip.wav -> clip.json.
func AnnotationPath(clipPath string) string {
	return strings.TrimSuffix(clipPath, filepath.Ext(clipPath)) + ".json"
}

// Clips lists the WAV files in a directory, sorted by name, with their
// annotation sidecars.
func Clips(dir string) ([]ClipEntry, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, util.WrapError("read audio directory", err)
	}

	var clips []ClipEntry
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(strings.ToLower(name), ".wav") {
			continue
		}
		clip := ClipEntry{Path: filepath.Join(dir, name)}
		sidecar := AnnotationPath(clip.Path)
		if _, err := os.Stat(sidecar); err == nil {
			clip.AnnotationPath = sidecar
		}
		clips = append(clips, clip)
	}
	sort.Slice(clips, func(i, j int) bool { return clips[i].Path < clips[j].Path })
	return clips, nil
}

// rawGroundTruth uses pointers so missing fields are distinguishable from
// zero values.
type rawGroundTruth struct {
	StartMs *float64 `json:"start_ms"`
	EndMs   *float64 `json:"end_ms"`
	Keyword *string  `json:"keyword"`
}

// LoadGroundTruth reads a clip's annotation sidecar: a JSON array of
// {start_ms, end_ms, keyword}. A missing file means an unannotated clip and
// returns no occurrences. Entries missing required fields or with inverted
// spans are skipped with a warning; a file that is not valid JSON is an
// error.
func LoadGroundTruth(path string) ([]types.GroundTruth, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, util.WrapError("read annotations", err)
	}

	var entries []rawGroundTruth
	if err := json.Unmarshal(raw, &entries); err != nil {
		return nil, util.WrapError("parse annotations "+filepath.Base(path), err)
	}

	var truths []types.GroundTruth
	for i, e := range entries {
		if e.StartMs == nil || e.EndMs == nil || e.Keyword == nil || *e.Keyword == "" || *e.EndMs < *e.StartMs {
			slog.Warn("Skipping malformed annotation", "file", filepath.Base(path), "index", i)
			continue
		}
		truths = append(truths, types.GroundTruth{
			StartMs: *e.StartMs,
			EndMs:   *e.EndMs,
			Keyword: *e.Keyword,
		})
	}
	return truths, nil
}
