// neuralmonkey trains a sequence model from a declarative experiment
// configuration file:
//
//	neuralmonkey [flags] experiment.ini
//
// The configuration describes the whole experiment -- datasets, model
// components, trainer, runners, evaluation -- as a graph of named sections;
// see the config package for the syntax. Individual values can be
// overridden from the command line with repeated -s flags:
//
//	neuralmonkey -s main.epochs=3 -s trainer.learning_rate=0.5 experiment.ini
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"

	"github.com/janpfeifer/must"
	"k8s.io/klog/v2"

	"github.com/jrjdr/neuralmonkey/experiment"
	"github.com/jrjdr/neuralmonkey/train"
	"github.com/jrjdr/neuralmonkey/ui/commandline"
)

var (
	flagOverwrite = flag.Bool("f", false,
		"Continue even if the output directory already holds results from a previous run, overwriting them.")
	flagProgressBar = flag.Bool("progressbar", true,
		"Display a progress bar with live training stats.")
)

func main() {
	klog.InitFlags(nil)
	flagOverrides := commandline.CreateOverridesFlag("s")
	flag.Parse()

	args := flag.Args()
	if len(args) == 0 {
		klog.Errorf("Missing experiment configuration file. See 'neuralmonkey -help'.")
		os.Exit(1)
	}
	if len(args) > 1 {
		klog.Errorf("Too many arguments. See 'neuralmonkey -help'.")
		os.Exit(1)
	}

	options := experiment.Options{
		Overrides: flagOverrides.Overrides(),
		Overwrite: *flagOverwrite,
	}
	if *flagProgressBar {
		options.ConfigureLoop = func(loop *train.Loop) {
			commandline.AttachProgressBar(loop)
		}
	}
	exp := must.M1(experiment.New(args[0], options))

	// Ctrl+C stops the run cooperatively at the next batch boundary.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	result, err := exp.Train(ctx)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			fmt.Println("Training interrupted by user.")
			var execErr *train.ExecutionError
			if errors.As(err, &execErr) && execErr.HasBest {
				fmt.Printf("Best score: %.4f at step %d.\n", execErr.Best.Value, execErr.Best.Step)
			}
			os.Exit(1)
		}
		klog.Exitf("Training failed: %+v", err)
	}
	commandline.ReportResult(result)
}
