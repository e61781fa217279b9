package commands

import (
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/voicepage/kwsbench/internal/types"
)

var (
	// Global flags
	modelsDir   string
	toleranceMs float64
	workers     int
	verbose     bool
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "benchctl",
	Short: "Keyword spotting benchmark CLI",
	Long: `benchctl evaluates exported keyword detection models against annotated
audio corpora, without running the benchmark server.

Corpora are directories of 16 kHz WAV files; a clip's ground truth lives in
a JSON sidecar next to it (clip.wav -> clip.json) holding an array of
{start_ms, end_ms, keyword} spans.

Examples:
  # Evaluate every available keyword at the default threshold
  benchctl --models tools/kws/models eval corpus/

  # Sweep thresholds for one keyword and plot the curve elsewhere
  benchctl --models tools/kws/models sweep corpus/ --keyword hey_computer

  # Summarize the training workspace
  benchctl scan --tools tools/kws
`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initLogging)

	rootCmd.PersistentFlags().StringVar(&modelsDir, "models", "tools/kws/models", "directory holding the exported ONNX models")
	rootCmd.PersistentFlags().Float64Var(&toleranceMs, "tolerance", types.DefaultToleranceMs, "matching tolerance around ground-truth spans in ms")
	rootCmd.PersistentFlags().IntVar(&workers, "workers", 4, "parallel clips per evaluation")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")

	rootCmd.AddCommand(evalCmd)
	rootCmd.AddCommand(sweepCmd)
	rootCmd.AddCommand(scanCmd)
}

func initLogging() {
	logLevel := slog.LevelWarn
	if verbose {
		logLevel = slog.LevelDebug
	}
	// Logs go to stderr so stdout stays parseable JSON.
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: logLevel,
	})))
}
