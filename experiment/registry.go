package experiment

import (
	"github.com/jrjdr/neuralmonkey/config"
	"github.com/jrjdr/neuralmonkey/dataset"
	"github.com/jrjdr/neuralmonkey/decoders"
	"github.com/jrjdr/neuralmonkey/evaluators"
	"github.com/jrjdr/neuralmonkey/exec"
	"github.com/jrjdr/neuralmonkey/postprocess"
	"github.com/jrjdr/neuralmonkey/runners"
	"github.com/jrjdr/neuralmonkey/trainers"
	"github.com/jrjdr/neuralmonkey/train"
)

// BuiltinRegistry returns the registry of all components shipped with the
// engine, keyed by their `class` type tags. External components can be
// added to the returned registry before running an experiment.
func BuiltinRegistry() *config.Registry {
	r := config.NewRegistry()

	r.Register("dataset", func(name string, kwargs map[string]any) (any, error) {
		return dataset.Build(name, kwargs)
	})

	r.Register("vocabulary", func(name string, kwargs map[string]any) (any, error) {
		var cfg struct {
			Datasets []dataset.Provider
			Series   string
			MaxSize  int
		}
		if err := config.Decode(kwargs, &cfg); err != nil {
			return nil, err
		}
		return decoders.VocabularyFromSeries(cfg.Datasets, cfg.Series, cfg.MaxSize)
	})

	r.Register("embeddings.word2vec", func(name string, kwargs map[string]any) (any, error) {
		var cfg struct {
			Path string
		}
		if err := config.Decode(kwargs, &cfg); err != nil {
			return nil, err
		}
		return decoders.LoadWordEmbeddings(cfg.Path)
	})

	r.Register("decoders.unigram", func(name string, kwargs map[string]any) (any, error) {
		var cfg struct {
			Vocabulary *decoders.Vocabulary
			DataSeries string
		}
		if err := config.Decode(kwargs, &cfg); err != nil {
			return nil, err
		}
		return decoders.NewUnigram(name, cfg.Vocabulary, cfg.DataSeries), nil
	})

	r.Register("trainers.sgd", func(name string, kwargs map[string]any) (any, error) {
		var cfg struct {
			Decoders     []trainers.Trainable
			LearningRate float64
			Manager      *exec.Manager
		}
		if err := config.Decode(kwargs, &cfg); err != nil {
			return nil, err
		}
		return trainers.NewSGD(cfg.Decoders, cfg.LearningRate, cfg.Manager)
	})

	r.Register("runners.greedy", func(name string, kwargs map[string]any) (any, error) {
		var cfg struct {
			Decoder      train.Decoder
			OutputSeries string
			Manager      *exec.Manager
		}
		if err := config.Decode(kwargs, &cfg); err != nil {
			return nil, err
		}
		return runners.NewGreedy(name, cfg.Decoder, cfg.OutputSeries, cfg.Manager)
	})

	r.Register("evaluators.accuracy", func(name string, kwargs map[string]any) (any, error) {
		if err := config.Decode(kwargs, &struct{}{}); err != nil {
			return nil, err
		}
		return evaluators.Accuracy{}, nil
	})

	r.Register("evaluators.wer", func(name string, kwargs map[string]any) (any, error) {
		if err := config.Decode(kwargs, &struct{}{}); err != nil {
			return nil, err
		}
		return evaluators.WER{}, nil
	})

	r.Register("evaluators.bleu", func(name string, kwargs map[string]any) (any, error) {
		var cfg struct {
			MaxOrder int
		}
		if err := config.Decode(kwargs, &cfg); err != nil {
			return nil, err
		}
		return evaluators.BLEU{MaxOrder: cfg.MaxOrder}, nil
	})

	r.Register("postprocess.lowercase", func(name string, kwargs map[string]any) (any, error) {
		if err := config.Decode(kwargs, &struct{}{}); err != nil {
			return nil, err
		}
		return postprocess.Lowercase{}, nil
	})

	r.Register("postprocess.detokenize", func(name string, kwargs map[string]any) (any, error) {
		if err := config.Decode(kwargs, &struct{}{}); err != nil {
			return nil, err
		}
		return postprocess.Detokenize{}, nil
	})

	r.Register("exec.manager", func(name string, kwargs map[string]any) (any, error) {
		var cfg struct {
			NumWorkers int
		}
		if err := config.Decode(kwargs, &cfg); err != nil {
			return nil, err
		}
		return exec.NewManager(cfg.NumWorkers), nil
	})

	return r
}
