package jobs

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/goccy/go-yaml"

	"github.com/voicepage/kwsbench/internal/types"
	"github.com/voicepage/kwsbench/internal/util"
)

// PrepareConfig resolves the trainer config file for a job. The full and
// minimal templates must already exist in the configs dir. A custom job
// merges its overrides over the full template (or an empty config when no
// template exists) and writes a derived config file.
func PrepareConfig(configsDir string, cfg types.JobConfig) (string, error) {
	base := filepath.Join(configsDir, "oww_"+cfg.Keyword+".yml")
	switch cfg.ConfigTemplate {
	case types.TemplateMinimal:
		base = filepath.Join(configsDir, "oww_"+cfg.Keyword+"_minimal.yml")
		fallthrough
	case types.TemplateFull, "":
		if _, err := os.Stat(base); err != nil {
			return "", fmt.Errorf("training config %s not found", filepath.Base(base))
		}
		return base, nil
	case types.TemplateCustom:
		return writeCustomConfig(configsDir, base, cfg)
	default:
		return "", fmt.Errorf("unknown config template %q", cfg.ConfigTemplate)
	}
}

// writeCustomConfig merges job overrides over the base template and writes
// the result next to it.
func writeCustomConfig(configsDir, basePath string, cfg types.JobConfig) (string, error) {
	merged := make(map[string]any)
	if raw, err := os.ReadFile(basePath); err == nil {
		if err := yaml.Unmarshal(raw, &merged); err != nil {
			return "", util.WrapError("parse base training config", err)
		}
	}
	if _, ok := merged["model_name"]; !ok {
		merged["model_name"] = cfg.Keyword
	}
	for key, value := range cfg.Overrides {
		merged[key] = value
	}

	out, err := yaml.Marshal(merged)
	if err != nil {
		return "", util.WrapError("marshal training config", err)
	}
	path := filepath.Join(configsDir, "oww_"+cfg.Keyword+"_custom.yml")
	if err := os.WriteFile(path, out, 0o644); err != nil {
		return "", util.WrapError("write training config", err)
	}
	return path, nil
}
