package commands

import (
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/voicepage/kwsbench/internal/config"
	"github.com/voicepage/kwsbench/internal/scanner"
)

var scanTools string

// workspaceSummary is the scan command's JSON output.
type workspaceSummary struct {
	ToolsDir string                `json:"tools_dir"`
	Models   []scanner.ModelInfo   `json:"models"`
	Configs  []scanner.ConfigInfo  `json:"configs"`
	Datasets []scanner.DatasetInfo `json:"datasets"`
	Shared   scanner.SharedData    `json:"shared"`
	Logs     []scanner.LogInfo     `json:"logs"`
}

var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Inspect the training workspace",
	Long: `Scan summarizes the training workspace on disk: exported models, trainer
configs, per-keyword datasets, shared augmentation data and trainer logs.
The workspace follows the conventional layout under the tools dir
(models/, configs/, output/, data/, logs/).`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		summary := workspaceSummary{ToolsDir: scanTools}

		var err error
		if summary.Models, err = scanner.Models(filepath.Join(scanTools, "models")); err != nil {
			return err
		}
		if summary.Configs, err = scanner.Configs(filepath.Join(scanTools, "configs")); err != nil {
			return err
		}
		summary.Datasets, summary.Shared, err = scanner.Datasets(
			filepath.Join(scanTools, "output"), filepath.Join(scanTools, "data"))
		if err != nil {
			return err
		}
		if summary.Logs, err = scanner.Logs(filepath.Join(scanTools, "logs")); err != nil {
			return err
		}
		return printJSON(summary)
	},
}

func init() {
	scanCmd.Flags().StringVar(&scanTools, "tools", config.DefaultToolsDir, "training workspace root")
}
