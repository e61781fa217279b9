package commands

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/voicepage/kwsbench/internal/kws"
	"github.com/voicepage/kwsbench/internal/report"
	"github.com/voicepage/kwsbench/internal/types"
)

var (
	evalKeywords  []string
	evalThreshold float64
	evalClips     bool
)

var evalCmd = &cobra.Command{
	Use:   "eval <dir>",
	Short: "Evaluate keyword models over an annotated corpus",
	Long: `Eval runs every clip in the corpus directory through the detector and
matches the hits against the annotation sidecars. The resulting report,
with per-keyword metrics, is printed as JSON on stdout.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		dir := args[0]

		rt, err := openRuntime()
		if err != nil {
			return err
		}
		defer rt.Close()

		keywords := evalKeywords
		if len(keywords) == 0 {
			keywords = rt.AvailableKeywords()
		}
		if len(keywords) == 0 {
			return types.ErrMissingModel
		}

		clips, loadFailures, err := loadCorpus(dir)
		if err != nil {
			return err
		}

		evaluator := newEvaluator(rt)
		results, evalFailures, err := evaluator.EvaluateClips(cmd.Context(), clips, keywords, evalThreshold)
		if err != nil {
			return err
		}

		rep := report.New(dir, evalThreshold, toleranceMs, keywords)
		for _, keyword := range keywords {
			rep.Metrics[keyword] = kws.Aggregate(results, keyword, evalThreshold)
		}
		rep.Errors = append(loadFailures, evalFailures...)
		if evalClips {
			rep.Clips = results
		}

		if len(rep.Errors) > 0 {
			fmt.Fprintf(os.Stderr, "%d of %d clips failed\n", len(rep.Errors), len(clips)+len(loadFailures))
		}
		return printJSON(rep)
	},
}

func init() {
	evalCmd.Flags().StringSliceVarP(&evalKeywords, "keyword", "k", nil, "keyword to evaluate (repeatable, default: all available)")
	evalCmd.Flags().Float64VarP(&evalThreshold, "threshold", "t", types.DefaultThreshold, "detection score threshold")
	evalCmd.Flags().BoolVar(&evalClips, "clips", false, "include per-clip results in the report")
}
