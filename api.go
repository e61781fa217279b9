package main

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/voicepage/kwsbench/internal/audio"
	"github.com/voicepage/kwsbench/internal/config"
	"github.com/voicepage/kwsbench/internal/events"
	"github.com/voicepage/kwsbench/internal/jobs"
	"github.com/voicepage/kwsbench/internal/kws"
	"github.com/voicepage/kwsbench/internal/notify"
	"github.com/voicepage/kwsbench/internal/report"
	"github.com/voicepage/kwsbench/internal/scanner"
	"github.com/voicepage/kwsbench/internal/server"
	"github.com/voicepage/kwsbench/internal/trainer"
	"github.com/voicepage/kwsbench/internal/types"
	"github.com/voicepage/kwsbench/internal/util"
)

// quickEvalSeconds is the length of the synthetic negative clips used by the
// quick evaluation.
const quickEvalSeconds = 60

// API response helpers

func (s *Server) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("failed to encode JSON response", "error", err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, map[string]string{"error": message})
}

// parseRequest decodes and validates a JSON request body. On failure an error
// response has already been written and ok is false.
func parseRequest[T any](s *Server, w http.ResponseWriter, r *http.Request) (T, bool) {
	var v T
	if err := json.NewDecoder(r.Body).Decode(&v); err != nil {
		s.writeError(w, http.StatusBadRequest, "Invalid JSON: "+err.Error())
		return v, false
	}
	if err := server.ValidateStruct(&v); err != nil {
		var verr *types.ValidationError
		if errors.As(err, &verr) {
			s.writeJSON(w, http.StatusUnprocessableEntity, verr)
		} else {
			s.writeError(w, http.StatusUnprocessableEntity, err.Error())
		}
		return v, false
	}
	return v, true
}

// coalesce returns the request override when present, falling back to def.
func coalesce[T any](override *T, def T) T {
	if override != nil {
		return *override
	}
	return def
}

// --- Status and workspace ---

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	cfg := s.config.Snapshot()
	status := map[string]any{
		"models_ready": s.runtime.Ready(),
		"models_dir":   s.runtime.Dir(),
		"keywords":     s.runtime.AvailableKeywords(),
		"threshold":    cfg.Threshold,
		"tolerance_ms": cfg.ToleranceMs,
		"workers":      cfg.Workers,
		"version":      s.version.Info(),
	}
	if job, ok := s.jobs.Active(); ok {
		status["active_job"] = job
	}
	s.writeJSON(w, http.StatusOK, status)
}

func (s *Server) handleModels(w http.ResponseWriter, r *http.Request) {
	models, err := scanner.Models(s.config.Snapshot().ModelsDir)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"models": models})
}

func (s *Server) handleReloadModels(w http.ResponseWriter, r *http.Request) {
	if err := s.runtime.Load(); err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{
		"models_ready": s.runtime.Ready(),
		"keywords":     s.runtime.AvailableKeywords(),
	})
}

func (s *Server) handleConfigs(w http.ResponseWriter, r *http.Request) {
	configs, err := scanner.Configs(s.config.Snapshot().ConfigsDir)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"configs": configs})
}

func (s *Server) handleDatasets(w http.ResponseWriter, r *http.Request) {
	cfg := s.config.Snapshot()
	datasets, shared, err := scanner.Datasets(cfg.OutputDir, cfg.DataDir)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"datasets": datasets, "shared": shared})
}

func (s *Server) handleDeleteDataset(w http.ResponseWriter, r *http.Request) {
	keyword := r.PathValue("keyword")
	if !config.ValidKeyword(keyword) {
		s.writeError(w, http.StatusBadRequest, "invalid keyword")
		return
	}
	if job, ok := s.jobs.Active(); ok && job.Config.Keyword == keyword {
		s.writeError(w, http.StatusConflict, "a training job for this keyword is running")
		return
	}

	outputDir := s.config.Snapshot().OutputDir
	removed := 0
	for _, name := range []string{keyword, keyword + "_minimal"} {
		dir := filepath.Join(outputDir, name)
		if _, err := os.Stat(dir); err != nil {
			continue
		}
		if err := os.RemoveAll(dir); err != nil {
			s.writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		removed++
	}
	if removed == 0 {
		s.writeError(w, http.StatusNotFound, "no dataset for keyword "+keyword)
		return
	}
	slog.Info("Dataset deleted", "keyword", keyword)
	s.writeJSON(w, http.StatusOK, map[string]any{"deleted": keyword})
}

func (s *Server) handleLogs(w http.ResponseWriter, r *http.Request) {
	logs, err := scanner.Logs(s.config.Snapshot().LogsDir)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"logs": logs})
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > 1000 {
			s.writeError(w, http.StatusBadRequest, "limit must be 1-1000")
			return
		}
		limit = n
	}
	if s.events == nil {
		s.writeJSON(w, http.StatusOK, map[string]any{"events": []events.BenchEvent{}})
		return
	}
	list, err := events.ReadLast(s.events.Path(), limit)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"events": list})
}

// --- Evaluation ---

// loadCorpus decodes the WAV files in dir along with their annotation
// sidecars. Clips that fail to load or annotate are reported and skipped.
func loadCorpus(dir string) ([]kws.AnnotatedClip, []types.ClipError, error) {
	entries, err := scanner.Clips(dir)
	if err != nil {
		return nil, nil, err
	}

	var clips []kws.AnnotatedClip
	var failures []types.ClipError
	for _, entry := range entries {
		clip, err := audio.LoadWAV(entry.Path)
		if err != nil {
			failures = append(failures, types.ClipError{
				ClipID: filepath.Base(entry.Path), Stage: "load", Error: err.Error(),
			})
			continue
		}
		truth, err := scanner.LoadGroundTruth(scanner.AnnotationPath(entry.Path))
		if err != nil {
			failures = append(failures, types.ClipError{
				ClipID: clip.ID, Stage: "annotate", Error: err.Error(),
			})
			continue
		}
		clips = append(clips, kws.AnnotatedClip{Clip: clip, GroundTruth: truth})
	}
	return clips, failures, nil
}

// evaluationKeywords resolves the keyword list for a run: the request's
// keywords, or every loaded head model.
func (s *Server) evaluationKeywords(requested []string) []string {
	if len(requested) > 0 {
		return requested
	}
	return s.runtime.AvailableKeywords()
}

// runEvaluation evaluates clips and assembles the report.
func (s *Server) runEvaluation(ctx context.Context, corpus string, clips []kws.AnnotatedClip, loadFailures []types.ClipError, keywords []string, threshold, toleranceMs float64) (*report.Report, error) {
	evaluator := *s.evaluator
	evaluator.ToleranceMs = toleranceMs

	s.logEvent(&events.BenchEvent{Event: events.EventEvalStarted, Message: corpus})
	results, failures, err := evaluator.EvaluateClips(ctx, clips, keywords, threshold)
	if err != nil {
		if s.notifier != nil && !errors.Is(err, context.Canceled) {
			s.notifier.NotifyEvalFailed(corpus, err)
		}
		return nil, err
	}
	failures = append(loadFailures, failures...)
	for _, f := range failures {
		s.logEvent(&events.BenchEvent{Event: events.EventEvalClipFailed, ClipID: f.ClipID, Error: f.Error})
	}

	rep := report.New(corpus, threshold, toleranceMs, keywords)
	for _, keyword := range keywords {
		rep.Metrics[keyword] = kws.Aggregate(results, keyword, threshold)
	}
	rep.Clips = results
	rep.Errors = failures

	s.logEvent(&events.BenchEvent{Event: events.EventEvalFinished, Message: corpus})
	return rep, nil
}

func (s *Server) handleEvaluate(w http.ResponseWriter, r *http.Request) {
	req, ok := parseRequest[server.EvaluateRequest](s, w, r)
	if !ok {
		return
	}
	cfg := s.config.Snapshot()

	clips, loadFailures, err := loadCorpus(req.Dir)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if len(clips) == 0 {
		s.writeError(w, http.StatusBadRequest, "no loadable WAV files in "+req.Dir)
		return
	}

	keywords := s.evaluationKeywords(req.Keywords)
	threshold := coalesce(req.Threshold, cfg.Threshold)
	tolerance := coalesce(req.ToleranceMs, cfg.ToleranceMs)

	rep, err := s.runEvaluation(r.Context(), req.Dir, clips, loadFailures, keywords, threshold, tolerance)
	if err != nil {
		s.writeEvaluationError(w, err)
		return
	}
	s.storeReport(rep)
	s.writeJSON(w, http.StatusOK, rep)
}

func (s *Server) handleQuickEvaluate(w http.ResponseWriter, r *http.Request) {
	req, ok := parseRequest[server.QuickEvaluateRequest](s, w, r)
	if !ok {
		return
	}
	if !config.ValidKeyword(req.Keyword) {
		s.writeError(w, http.StatusBadRequest, "invalid keyword")
		return
	}
	cfg := s.config.Snapshot()
	threshold := coalesce(req.Threshold, cfg.Threshold)

	// Synthetic negatives: a minute of silence and a minute of noise. Any
	// detection in them is a false accept.
	clips := []kws.AnnotatedClip{
		{Clip: audio.Silence("silence-60s", quickEvalSeconds)},
		{Clip: audio.Noise("noise-60s", quickEvalSeconds, 1)},
	}

	// Positives from the keyword's generated dataset, annotated across the
	// whole clip since each contains exactly one utterance.
	var loadFailures []types.ClipError
	for _, path := range scanner.PositiveClips(cfg.OutputDir, req.Keyword, cfg.MaxPositiveClips) {
		clip, err := audio.LoadWAV(path)
		if err != nil {
			loadFailures = append(loadFailures, types.ClipError{
				ClipID: filepath.Base(path), Stage: "load", Error: err.Error(),
			})
			continue
		}
		clips = append(clips, kws.AnnotatedClip{
			Clip: clip,
			GroundTruth: []types.GroundTruth{{
				StartMs: 0,
				EndMs:   clip.DurationSeconds() * 1000,
				Keyword: req.Keyword,
			}},
		})
	}

	rep, err := s.runEvaluation(r.Context(), "quick:"+req.Keyword, clips, loadFailures, []string{req.Keyword}, threshold, cfg.ToleranceMs)
	if err != nil {
		s.writeEvaluationError(w, err)
		return
	}
	s.storeReport(rep)
	s.writeJSON(w, http.StatusOK, rep)
}

func (s *Server) handleSweep(w http.ResponseWriter, r *http.Request) {
	req, ok := parseRequest[server.SweepRequest](s, w, r)
	if !ok {
		return
	}
	cfg := s.config.Snapshot()

	clips, loadFailures, err := loadCorpus(req.Dir)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if len(clips) == 0 {
		s.writeError(w, http.StatusBadRequest, "no loadable WAV files in "+req.Dir)
		return
	}

	thresholds := req.Thresholds
	if len(thresholds) == 0 {
		thresholds = kws.DefaultThresholds()
	}

	evaluator := *s.evaluator
	evaluator.ToleranceMs = cfg.ToleranceMs
	points, clipFailures, err := kws.Sweep(r.Context(), &evaluator, clips, req.Keyword, thresholds)
	if err != nil {
		if s.notifier != nil && !errors.Is(err, context.Canceled) {
			s.notifier.NotifyEvalFailed("sweep:"+req.Keyword, err)
		}
		s.writeEvaluationError(w, err)
		return
	}
	failures := append(loadFailures, clipFailures...)
	for _, f := range failures {
		s.logEvent(&events.BenchEvent{Event: events.EventEvalClipFailed, ClipID: f.ClipID, Error: f.Error})
	}

	s.logEvent(&events.BenchEvent{Event: events.EventSweepFinished, Keyword: req.Keyword, Message: req.Dir})
	s.writeJSON(w, http.StatusOK, map[string]any{
		"keyword": req.Keyword,
		"curve":   points,
		"errors":  failures,
	})
}

// writeEvaluationError maps evaluation failures onto HTTP statuses.
func (s *Server) writeEvaluationError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, types.ErrNotReady):
		s.writeError(w, http.StatusServiceUnavailable, err.Error())
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		s.writeError(w, http.StatusRequestTimeout, "evaluation canceled")
	default:
		s.writeError(w, http.StatusInternalServerError, err.Error())
	}
}

// --- Training jobs ---

func (s *Server) handleCreateJob(w http.ResponseWriter, r *http.Request) {
	req, ok := parseRequest[server.JobRequest](s, w, r)
	if !ok {
		return
	}
	if !config.ValidKeyword(req.Keyword) {
		s.writeError(w, http.StatusBadRequest, "keyword must match [a-z0-9_]+")
		return
	}
	cfg := s.config.Snapshot()

	jobCfg := types.JobConfig{
		Keyword:        req.Keyword,
		ConfigTemplate: req.ConfigTemplate,
		Overrides:      req.Overrides,
	}
	configPath, err := jobs.PrepareConfig(cfg.ConfigsDir, jobCfg)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	runner := &trainer.Runner{
		Python: trainer.ResolvePython(cfg.ToolsDir, cfg.Python),
		Script: cfg.TrainScriptPath(),
		Dir:    cfg.ToolsDir,
	}
	job, err := s.jobs.Launch(jobs.LaunchSpec{
		Runner:     runner,
		ConfigPath: configPath,
		Config:     jobCfg,
	})
	if err != nil {
		s.writeError(w, http.StatusConflict, err.Error())
		return
	}
	s.writeJSON(w, http.StatusAccepted, job)
}

func (s *Server) handleListJobs(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]any{"jobs": s.jobs.Jobs()})
}

func (s *Server) handleGetJob(w http.ResponseWriter, r *http.Request) {
	job, ok := s.jobs.Job(r.PathValue("id"))
	if !ok {
		s.writeError(w, http.StatusNotFound, "no such job")
		return
	}
	s.writeJSON(w, http.StatusOK, job)
}

// --- Reports ---

// storeReport keeps the most recent evaluation report for export.
func (s *Server) storeReport(rep *report.Report) {
	s.reportMu.Lock()
	s.lastReport = rep
	s.reportMu.Unlock()
}

func (s *Server) handleReportUpload(w http.ResponseWriter, r *http.Request) {
	s.reportMu.Lock()
	rep := s.lastReport
	s.reportMu.Unlock()
	if rep == nil {
		s.writeError(w, http.StatusNotFound, "no evaluation report to upload")
		return
	}

	s3cfg := report.S3ConfigFromSnapshot(s.config.Snapshot())
	key, err := report.Upload(r.Context(), s3cfg, rep)
	if err != nil {
		s.writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{
		"bucket": s3cfg.Bucket,
		"key":    key,
	})
}

func (s *Server) handleTestS3(w http.ResponseWriter, r *http.Request) {
	req, ok := parseRequest[server.S3TestRequest](s, w, r)
	if !ok {
		return
	}
	cfg := &report.S3Config{
		Endpoint:        req.Endpoint,
		Bucket:          req.Bucket,
		AccessKeyID:     req.AccessKey,
		SecretAccessKey: req.SecretKey,
		Prefix:          req.Prefix,
	}
	if err := report.TestS3Connection(cfg); err != nil {
		s.writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// --- Notifications and settings ---

func (s *Server) handleNotifyTest(w http.ResponseWriter, r *http.Request) {
	cfg := s.config.Snapshot()

	var err error
	switch channel := r.PathValue("channel"); channel {
	case "webhook":
		err = notify.SendTestWebhook(cfg.WebhookURL)
	case "log":
		err = notify.WriteTestLog(cfg.LogPath)
	case "email":
		graphCfg := s.config.GraphConfig()
		err = notify.SendTestEmail(&graphCfg)
	default:
		s.writeError(w, http.StatusNotFound, "unknown channel "+channel)
		return
	}
	if err != nil {
		s.writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "sent"})
}

func (s *Server) handleWebhookSettings(w http.ResponseWriter, r *http.Request) {
	req, ok := parseRequest[server.WebhookUpdateRequest](s, w, r)
	if !ok {
		return
	}
	if err := s.config.SetWebhookURL(req.URL); err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "saved"})
}

func (s *Server) handleLogSettings(w http.ResponseWriter, r *http.Request) {
	req, ok := parseRequest[server.LogUpdateRequest](s, w, r)
	if !ok {
		return
	}
	// An empty path disables the channel; a set path must be safe and land
	// in a writable directory.
	if req.Path != "" {
		if err := util.ValidatePath("path", req.Path); err != nil {
			s.writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		if err := util.CheckPathWritable(filepath.Dir(req.Path)); err != nil {
			s.writeError(w, http.StatusBadRequest, err.Error())
			return
		}
	}
	if err := s.config.SetLogPath(req.Path); err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "saved"})
}

func (s *Server) handleEmailSettings(w http.ResponseWriter, r *http.Request) {
	req, ok := parseRequest[server.EmailUpdateRequest](s, w, r)
	if !ok {
		return
	}
	err := s.config.SetGraphConfig(req.TenantID, req.ClientID, req.ClientSecret, req.FromAddress, req.Recipients)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.notifier.InvalidateGraphClient()
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "saved"})
}

func (s *Server) handleReportSettings(w http.ResponseWriter, r *http.Request) {
	req, ok := parseRequest[server.ReportSettingsRequest](s, w, r)
	if !ok {
		return
	}
	err := s.config.SetReportConfig(config.ReportConfig{
		S3Endpoint:        req.S3Endpoint,
		S3Bucket:          req.S3Bucket,
		S3AccessKeyID:     req.S3AccessKeyID,
		S3SecretAccessKey: req.S3SecretAccessKey,
		S3Prefix:          req.S3Prefix,
	})
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "saved"})
}

func (s *Server) handleRegenerateKey(w http.ResponseWriter, r *http.Request) {
	key, err := config.GenerateAPIKey()
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if err := s.config.SetAPIKey(key); err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	slog.Info("API key regenerated")
	s.writeJSON(w, http.StatusOK, map[string]string{"api_key": key})
}

// logEvent records a bench event, tolerating a nil logger in tests.
func (s *Server) logEvent(event *events.BenchEvent) {
	if s.events == nil {
		return
	}
	event.Timestamp = time.Now()
	if err := s.events.Log(event); err != nil {
		slog.Warn("Failed to log event", "error", err)
	}
}
