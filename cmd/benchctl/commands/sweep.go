package commands

import (
	"github.com/spf13/cobra"

	"github.com/voicepage/kwsbench/internal/kws"
	"github.com/voicepage/kwsbench/internal/report"
	"github.com/voicepage/kwsbench/internal/types"
)

var (
	sweepKeyword    string
	sweepThresholds []float64
)

var sweepCmd = &cobra.Command{
	Use:   "sweep <dir>",
	Short: "Sweep detection thresholds for one keyword",
	Long: `Sweep evaluates one keyword over the corpus at each threshold and prints
a report with the resulting FRR/FAR curve as JSON on stdout. Without
--thresholds the standard grid of 0.05 to 0.95 in steps of 0.025 is used.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		dir := args[0]

		rt, err := openRuntime()
		if err != nil {
			return err
		}
		defer rt.Close()

		clips, loadFailures, err := loadCorpus(dir)
		if err != nil {
			return err
		}

		thresholds := sweepThresholds
		if len(thresholds) == 0 {
			thresholds = kws.DefaultThresholds()
		}

		evaluator := newEvaluator(rt)
		curve, clipFailures, err := kws.Sweep(cmd.Context(), evaluator, clips, sweepKeyword, thresholds)
		if err != nil {
			return err
		}

		rep := report.New(dir, 0, toleranceMs, []string{sweepKeyword})
		rep.Curves = map[string][]types.CurvePoint{sweepKeyword: curve}
		rep.Errors = append(loadFailures, clipFailures...)
		return printJSON(rep)
	},
}

func init() {
	sweepCmd.Flags().StringVarP(&sweepKeyword, "keyword", "k", "", "keyword to sweep")
	sweepCmd.Flags().Float64SliceVar(&sweepThresholds, "thresholds", nil, "thresholds to evaluate (default: standard grid)")
	_ = sweepCmd.MarkFlagRequired("keyword")
}
