package commandline

import (
	"fmt"
	"sort"

	"github.com/jrjdr/neuralmonkey/experiment"
)

// ReportResult prints the final state of an experiment run: the evaluation
// scores of the last validation pass and the best score observed.
func ReportResult(result *experiment.Result) {
	fmt.Printf("Training finished after %s steps.\n", humanizeInt(result.GlobalStep))
	if len(result.Scores) > 0 {
		fmt.Println("Final validation:")
		names := make([]string, 0, len(result.Scores))
		for name := range result.Scores {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			fmt.Printf("\t%s: %.4f\n", name, result.Scores[name])
		}
	}
	if result.HasBest {
		fmt.Printf("Best score: %.4f at step %s.\n", result.Best.Value, humanizeInt(result.Best.Step))
	}
}
