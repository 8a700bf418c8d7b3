package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/edaniels/golog"

	"aeroclass/internal/config"
	"aeroclass/internal/trainer"
)

func main() {
	cfgPath := flag.String("config", "configs/demo.yaml", "Path to YAML config")
	dataRoot := flag.String("data-root", "", "Override dataset root")
	device := flag.String("device", "", "Override compute device")
	epochs := flag.Int("epochs", 0, "Override number of epochs")
	batchSize := flag.Int("batch-size", 0, "Override batch size")
	numWorkers := flag.Int("num-workers", 0, "Override number of data loader workers")
	seed := flag.Int64("seed", 0, "Override PRNG seed")
	lr := flag.Float64("lr", 0, "Override learning rate")
	fine := flag.Bool("fine", false, "Use fine-grained categories")
	debug := flag.Bool("debug", false, "Enable debug logging")

	flag.Parse()

	logger := golog.NewDevelopmentLogger("aeroclass")
	if *debug {
		logger = golog.NewDebugLogger("aeroclass")
	}

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		logger.Fatalw("failed to load config", "error", err)
	}

	cfg.ApplyOverrides(config.Overrides{
		DataRoot:    *dataRoot,
		Device:      *device,
		Epochs:      *epochs,
		BatchSize:   *batchSize,
		NumWorkers:  *numWorkers,
		Seed:        *seed,
		LR:          *lr,
		FineGrained: *fine,
	})
	if err := cfg.Validate(); err != nil {
		logger.Fatalw("invalid config", "error", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pipeline, err := trainer.NewPipeline(cfg, logger)
	if err != nil {
		logger.Fatalw("failed to build pipeline", "error", err)
	}
	pipeline.Progress = true

	if err := pipeline.Run(ctx); err != nil {
		logger.Fatalw("run failed", "error", err)
	}
}
