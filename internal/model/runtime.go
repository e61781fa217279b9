// Package model loads the ONNX acoustic models and exposes them as the
// detector's model chain. The models directory holds a shared mel
// spectrogram model, a shared speech embedding model and one classifier
// head per keyword (file stem = keyword).
package model

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	ort "github.com/yalue/onnxruntime_go"

	"github.com/voicepage/kwsbench/internal/types"
	"github.com/voicepage/kwsbench/internal/util"
)

// Shared model filenames inside the models directory.
const (
	MelModelFile       = "melspectrogram.onnx"
	EmbeddingModelFile = "embedding_model.onnx"
)

// SharedLibraryEnv optionally points at the onnxruntime shared library when
// it is not on the default search path.
const SharedLibraryEnv = "ONNXRUNTIME_SHARED_LIBRARY"

var (
	ortInitOnce sync.Once
	ortInitErr  error
)

// initEnvironment initializes the process-wide ONNX runtime environment.
func initEnvironment() error {
	ortInitOnce.Do(func() {
		if path := os.Getenv(SharedLibraryEnv); path != "" {
			ort.SetSharedLibraryPath(path)
		}
		ortInitErr = ort.InitializeEnvironment()
	})
	return ortInitErr
}

// Runtime implements the detector's model chain over ONNX sessions.
// Sessions are created once by Load and may be run concurrently.
type Runtime struct {
	mu        sync.RWMutex
	dir       string
	mel       *ort.DynamicAdvancedSession
	embedding *ort.DynamicAdvancedSession
	heads     map[string]*ort.DynamicAdvancedSession
	keywords  []string
	loaded    bool
}

// NewRuntime creates an unloaded runtime over a models directory.
func NewRuntime(dir string) *Runtime {
	return &Runtime{
		dir:   dir,
		heads: make(map[string]*ort.DynamicAdvancedSession),
	}
}

// Dir returns the models directory.
func (r *Runtime) Dir() string { return r.dir }

// Load opens the shared models and every keyword head in the models
// directory. Calling Load on a loaded runtime reloads it, picking up heads
// added since the previous load. A keyword head that fails to open is
// skipped with a warning; missing shared models fail the whole load.
func (r *Runtime) Load() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := initEnvironment(); err != nil {
		return util.WrapError("initialize onnx runtime", err)
	}
	r.closeLocked()

	melPath := filepath.Join(r.dir, MelModelFile)
	embeddingPath := filepath.Join(r.dir, EmbeddingModelFile)
	for _, path := range []string{melPath, embeddingPath} {
		if _, err := os.Stat(path); err != nil {
			return fmt.Errorf("shared model %s not found in %s", filepath.Base(path), r.dir)
		}
	}

	var err error
	if r.mel, err = openSession(melPath); err != nil {
		return err
	}
	if r.embedding, err = openSession(embeddingPath); err != nil {
		r.closeLocked()
		return err
	}

	entries, err := os.ReadDir(r.dir)
	if err != nil {
		r.closeLocked()
		return util.WrapError("read models directory", err)
	}
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, ".onnx") {
			continue
		}
		if name == MelModelFile || name == EmbeddingModelFile {
			continue
		}
		keyword := strings.TrimSuffix(name, ".onnx")
		head, err := openSession(filepath.Join(r.dir, name))
		if err != nil {
			slog.Warn("Skipping unloadable keyword model", "model", name, "error", err)
			continue
		}
		r.heads[keyword] = head
		r.keywords = append(r.keywords, keyword)
	}
	sort.Strings(r.keywords)

	r.loaded = true
	slog.Info("Acoustic models loaded", "dir", r.dir, "keywords", r.keywords)
	return nil
}

// Close releases all sessions. The runtime can be loaded again afterwards.
func (r *Runtime) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closeLocked()
}

func (r *Runtime) closeLocked() {
	if r.mel != nil {
		r.mel.Destroy()
		r.mel = nil
	}
	if r.embedding != nil {
		r.embedding.Destroy()
		r.embedding = nil
	}
	for _, head := range r.heads {
		head.Destroy()
	}
	r.heads = make(map[string]*ort.DynamicAdvancedSession)
	r.keywords = nil
	r.loaded = false
}

// Ready reports whether the shared models are loaded.
func (r *Runtime) Ready() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.loaded
}

// AvailableKeywords lists loaded keyword heads, sorted.
func (r *Runtime) AvailableKeywords() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	keywords := make([]string, len(r.keywords))
	copy(keywords, r.keywords)
	return keywords
}

// MelTransform converts one 1280-sample frame into mel rows. The model
// emits [1,1,N,32]; the flattened rows are returned.
func (r *Runtime) MelTransform(frame []float32) ([]float32, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if !r.loaded {
		return nil, types.ErrNotReady
	}
	if len(frame) != types.FrameSamples {
		return nil, &types.ShapeError{Stage: "mel", Got: []int{len(frame)}, Want: []int{types.FrameSamples}}
	}

	data, dims, err := runSession(r.mel, []int64{1, int64(len(frame))}, frame)
	if err != nil {
		return nil, util.WrapError("run mel model", err)
	}
	if len(dims) < 2 {
		return nil, &types.ShapeError{Stage: "mel", Got: toInts(dims), Want: []int{1, 1, -1, types.MelFeatureWidth}}
	}
	width := int(dims[len(dims)-1])
	if width != types.MelFeatureWidth {
		return nil, &types.ShapeError{Stage: "mel", Got: toInts(dims), Want: []int{1, 1, -1, types.MelFeatureWidth}}
	}
	if rows := len(data) / width; rows > types.MelWindowFrames {
		return nil, &types.ShapeError{Stage: "mel", Got: []int{rows, width}, Want: []int{types.MelWindowFrames, types.MelFeatureWidth}}
	}
	return data, nil
}

// Embed converts a 76x32 mel window into a 96-dim speech embedding.
func (r *Runtime) Embed(window []float32) ([]float32, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if !r.loaded {
		return nil, types.ErrNotReady
	}
	want := types.MelWindowFrames * types.MelFeatureWidth
	if len(window) != want {
		return nil, &types.ShapeError{Stage: "embedding", Got: []int{len(window)}, Want: []int{want}}
	}

	shape := []int64{1, types.MelWindowFrames, types.MelFeatureWidth, 1}
	data, _, err := runSession(r.embedding, shape, window)
	if err != nil {
		return nil, util.WrapError("run embedding model", err)
	}
	if len(data) != types.EmbeddingSize {
		return nil, &types.ShapeError{Stage: "embedding", Got: []int{len(data)}, Want: []int{types.EmbeddingSize}}
	}
	return data, nil
}

// Classify scores an embedding against one keyword head. The head emits a
// probability vector; the final element is the keyword score.
func (r *Runtime) Classify(keyword string, embedding []float32) (float64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if !r.loaded {
		return 0, types.ErrNotReady
	}
	head, ok := r.heads[keyword]
	if !ok {
		return 0, fmt.Errorf("%w: %s", types.ErrMissingModel, keyword)
	}
	if len(embedding) != types.EmbeddingSize {
		return 0, &types.ShapeError{Stage: "classifier", Got: []int{len(embedding)}, Want: []int{types.EmbeddingSize}}
	}

	data, _, err := runSession(head, []int64{1, types.EmbeddingSize}, embedding)
	if err != nil {
		return 0, util.WrapError("run keyword model "+keyword, err)
	}
	if len(data) == 0 {
		return 0, &types.ShapeError{Stage: "classifier", Got: []int{0}, Want: []int{1}}
	}
	return float64(data[len(data)-1]), nil
}

// openSession creates a single-threaded session bound to the model's first
// input and output.
func openSession(path string) (*ort.DynamicAdvancedSession, error) {
	name := filepath.Base(path)
	inputs, outputs, err := ort.GetInputOutputInfo(path)
	if err != nil {
		return nil, util.WrapError("inspect model "+name, err)
	}
	if len(inputs) == 0 || len(outputs) == 0 {
		return nil, fmt.Errorf("model %s declares no inputs or outputs", name)
	}

	options, err := ort.NewSessionOptions()
	if err != nil {
		return nil, util.WrapError("create session options", err)
	}
	defer options.Destroy()
	if err := options.SetIntraOpNumThreads(1); err != nil {
		return nil, util.WrapError("configure session threads", err)
	}
	if err := options.SetInterOpNumThreads(1); err != nil {
		return nil, util.WrapError("configure session threads", err)
	}

	session, err := ort.NewDynamicAdvancedSession(path,
		[]string{inputs[0].Name}, []string{outputs[0].Name}, options)
	if err != nil {
		return nil, util.WrapError("open model "+name, err)
	}
	return session, nil
}

// runSession runs one float32 tensor through a session and returns the
// flattened output with its shape.
func runSession(session *ort.DynamicAdvancedSession, shape []int64, input []float32) ([]float32, []int64, error) {
	tensor, err := ort.NewTensor(ort.NewShape(shape...), input)
	if err != nil {
		return nil, nil, util.WrapError("create input tensor", err)
	}
	defer tensor.Destroy()

	outputs := []ort.Value{nil}
	if err := session.Run([]ort.Value{tensor}, outputs); err != nil {
		return nil, nil, err
	}
	defer outputs[0].Destroy()

	out, ok := outputs[0].(*ort.Tensor[float32])
	if !ok {
		return nil, nil, fmt.Errorf("model produced a non-float32 output")
	}
	data := make([]float32, len(out.GetData()))
	copy(data, out.GetData())
	return data, out.GetShape(), nil
}

func toInts(dims []int64) []int {
	out := make([]int, len(dims))
	for i, d := range dims {
		out[i] = int(d)
	}
	return out
}
