// Package trainer drives the train/validate/test loop over the
// flying-objects splits.
package trainer

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/cheggaaa/pb/v3"
	"github.com/edaniels/golog"
	"github.com/pkg/errors"
	"gorgonia.org/tensor"

	"aeroclass/internal/config"
	"aeroclass/internal/dataset"
	"aeroclass/internal/metrics"
	"aeroclass/internal/model"
)

// Phase is the loop's position in its run lifecycle.
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseTraining
	PhaseValidating
	PhaseTesting
	PhaseDone
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseTraining:
		return "training"
	case PhaseValidating:
		return "validating"
	case PhaseTesting:
		return "testing"
	case PhaseDone:
		return "done"
	}
	return "unknown"
}

// Pipeline bundles the configuration, model, optimizer, datasets and loop
// state of one classification run. It is the run's single context object;
// nothing about a run lives outside it.
type Pipeline struct {
	cfg    *config.Config
	logger golog.Logger

	net   *model.Classifier
	opt   *model.Adam
	vocab *dataset.Vocabulary

	train *dataset.Loader
	val   *dataset.Loader
	test  *dataset.Loader

	phase  Phase
	window metrics.Window

	// Progress enables a per-epoch batch progress bar on stderr.
	Progress bool
}

// NewPipeline wires the device check, the three splits (the training
// split's vocabulary is canonical for all of them), the model and the
// optimizer. Any failure here is fatal to the run.
func NewPipeline(cfg *config.Config, logger golog.Logger) (*Pipeline, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if err := SelectDevice(cfg.Device); err != nil {
		return nil, err
	}

	trainDS, err := dataset.New(cfg.DataRoot, dataset.SplitTraining, cfg.FineGrained, cfg.InputDim, nil)
	if err != nil {
		return nil, err
	}
	vocab := trainDS.Vocab()
	if vocab.Len() != cfg.NumClasses {
		return nil, fmt.Errorf("%w: training split has %d classes %v, config says n_classes=%d",
			config.ErrInvalid, vocab.Len(), vocab.Names(), cfg.NumClasses)
	}

	valDS, err := dataset.New(cfg.DataRoot, dataset.SplitValidation, cfg.FineGrained, cfg.InputDim, vocab)
	if err != nil {
		return nil, err
	}
	testDS, err := dataset.New(cfg.DataRoot, dataset.SplitTesting, cfg.FineGrained, cfg.InputDim, vocab)
	if err != nil {
		return nil, err
	}

	net, err := model.New(model.Config{
		Height:     cfg.InputDim[0],
		Width:      cfg.InputDim[1],
		Channels:   cfg.InputDim[2],
		HiddenDim:  cfg.HiddenDim,
		LinearDim:  cfg.LinearDim,
		NumClasses: cfg.NumClasses,
		Seed:       cfg.Seed,
	})
	if err != nil {
		return nil, err
	}

	logger.Infow("pipeline wired",
		"classes", vocab.Names(),
		"train_samples", trainDS.Size(),
		"val_samples", valDS.Size(),
		"test_samples", testDS.Size(),
	)

	return &Pipeline{
		cfg:    cfg,
		logger: logger,
		net:    net,
		opt:    model.NewAdam(cfg.LR),
		vocab:  vocab,
		train:  dataset.NewLoader(trainDS, cfg.BatchSize, cfg.NumWorkers, true, cfg.Seed),
		val:    dataset.NewLoader(valDS, cfg.BatchSize, cfg.NumWorkers, false, cfg.Seed),
		test:   dataset.NewLoader(testDS, cfg.BatchSize, cfg.NumWorkers, false, cfg.Seed),
		phase:  PhaseIdle,
	}, nil
}

// CurrentPhase reports where the loop currently is.
func (p *Pipeline) CurrentPhase() Phase { return p.phase }

// Run executes all configured epochs, validating after each, then a
// single pass over the testing split. The first error aborts the run;
// there is no retry and no checkpointing.
func (p *Pipeline) Run(ctx context.Context) error {
	for epoch := 1; epoch <= p.cfg.Epochs; epoch++ {
		p.setPhase(PhaseTraining)
		if err := p.trainEpoch(ctx, epoch); err != nil {
			return err
		}

		p.setPhase(PhaseValidating)
		acc, err := p.evaluate(ctx, p.val)
		if err != nil {
			return err
		}
		fmt.Printf("Validation accuracy %.2f\n", acc)
	}

	p.setPhase(PhaseTesting)
	acc, err := p.evaluate(ctx, p.test)
	if err != nil {
		return err
	}
	fmt.Printf("Test accuracy %.2f\n", acc)

	p.setPhase(PhaseDone)
	return nil
}

func (p *Pipeline) setPhase(next Phase) {
	p.logger.Debugw("phase transition", "from", p.phase.String(), "to", next.String())
	p.phase = next
}

func (p *Pipeline) trainEpoch(ctx context.Context, epoch int) error {
	p.train.Reset()

	var bar *pb.ProgressBar
	if p.Progress {
		bar = pb.StartNew(p.train.NumBatches())
	}

	for {
		startData := time.Now()
		batch, err := p.train.Next(ctx)
		if err == io.EOF {
			break
		}
		if err != nil {
			return err
		}
		dataTime := time.Since(startData)

		startCompute := time.Now()
		probs, err := p.net.Forward(batch.Inputs, true)
		if err != nil {
			return err
		}
		loss, err := p.net.Loss(batch.Labels)
		if err != nil {
			return err
		}
		if err := p.net.Backward(batch.Labels); err != nil {
			return err
		}
		p.opt.Step(p.net.Params())
		computeTime := time.Since(startCompute)

		p.window.Record(len(batch.Labels), countCorrect(probs, batch.Labels), dataTime, computeTime, loss)
		if bar != nil {
			bar.Increment()
		}
	}
	if bar != nil {
		bar.Finish()
	}

	snap := p.window.Snapshot()
	p.logger.Infow("epoch complete",
		"epoch", epoch,
		"loss", snap.MeanLoss,
		"train_accuracy", snap.Accuracy,
		"images_per_sec", snap.ImagesPerSec,
		"data_ms", snap.AvgDataMS,
		"compute_ms", snap.AvgComputeMS,
	)
	return nil
}

// evaluate runs the model in eval mode over a split and returns the
// argmax accuracy across its full batches.
func (p *Pipeline) evaluate(ctx context.Context, loader *dataset.Loader) (float64, error) {
	loader.Reset()
	correct, total := 0, 0
	for {
		batch, err := loader.Next(ctx)
		if err == io.EOF {
			break
		}
		if err != nil {
			return 0, err
		}
		probs, err := p.net.Forward(batch.Inputs, false)
		if err != nil {
			return 0, err
		}
		correct += countCorrect(probs, batch.Labels)
		total += len(batch.Labels)
	}
	if total == 0 {
		return 0, errors.New("evaluation split is smaller than one batch")
	}
	return float64(correct) / float64(total), nil
}

func countCorrect(probs *tensor.Dense, labels []int) int {
	k := probs.Shape()[1]
	data := probs.Data().([]float32)
	correct := 0
	for b, label := range labels {
		row := data[b*k : (b+1)*k]
		best := 0
		for j := 1; j < k; j++ {
			if row[j] > row[best] {
				best = j
			}
		}
		if best == label {
			correct++
		}
	}
	return correct
}
