package trainer

import (
	"context"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/edaniels/golog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"aeroclass/internal/config"
	"aeroclass/internal/dataset"
)

var testClasses = []string{"bird", "drone", "plane"}

// writeSplit writes n synthetic 8x8 PNGs cycling through testClasses,
// each class with a distinct dominant color.
func writeSplit(t *testing.T, root, split string, n int) {
	t.Helper()
	dir := filepath.Join(root, split, "image")
	require.NoError(t, os.MkdirAll(dir, 0o755))
	for i := 0; i < n; i++ {
		class := i % len(testClasses)
		img := image.NewNRGBA(image.Rect(0, 0, 8, 8))
		for y := 0; y < 8; y++ {
			for x := 0; x < 8; x++ {
				c := color.NRGBA{A: 255}
				switch class {
				case 0:
					c.R = 200
				case 1:
					c.G = 200
				case 2:
					c.B = 200
				}
				c.R += uint8((x * y) % 40)
				img.SetNRGBA(x, y, c)
			}
		}
		name := fmt.Sprintf("img_%04d_%s_v_%s.png", i, testClasses[class], split)
		f, err := os.Create(filepath.Join(dir, name))
		require.NoError(t, err)
		require.NoError(t, png.Encode(f, img))
		require.NoError(t, f.Close())
	}
}

func testRunConfig(root string) *config.Config {
	return &config.Config{
		InputDim:   [3]int{8, 8, 3},
		HiddenDim:  2,
		LinearDim:  4,
		NumClasses: 3,
		Device:     "cpu",
		LR:         0.01,
		Epochs:     1,
		BatchSize:  32,
		NumWorkers: 2,
		Seed:       1,
		DataRoot:   root,
	}
}

func TestSelectDevice(t *testing.T) {
	require.NoError(t, SelectDevice("cpu"))
	require.NoError(t, SelectDevice(""))
	require.NoError(t, SelectDevice("CPU"))

	err := SelectDevice("cuda")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrDevice)
}

func TestPipelineEndToEnd(t *testing.T) {
	root := t.TempDir()
	// 64 training images split evenly-ish across 3 classes, one full
	// batch each of unseen validation and testing images.
	writeSplit(t, root, dataset.SplitTraining, 64)
	writeSplit(t, root, dataset.SplitValidation, 32)
	writeSplit(t, root, dataset.SplitTesting, 32)

	p, err := NewPipeline(testRunConfig(root), golog.NewTestLogger(t))
	require.NoError(t, err)
	require.Equal(t, PhaseIdle, p.CurrentPhase())

	ctx := context.Background()
	require.NoError(t, p.Run(ctx))
	assert.Equal(t, PhaseDone, p.CurrentPhase())

	acc, err := p.evaluate(ctx, p.val)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, acc, 0.0)
	assert.LessOrEqual(t, acc, 1.0)
}

func TestPipelineClassCountMismatch(t *testing.T) {
	root := t.TempDir()
	writeSplit(t, root, dataset.SplitTraining, 6)
	writeSplit(t, root, dataset.SplitValidation, 3)
	writeSplit(t, root, dataset.SplitTesting, 3)

	cfg := testRunConfig(root)
	cfg.NumClasses = 5

	_, err := NewPipeline(cfg, golog.NewTestLogger(t))
	require.Error(t, err)
	assert.ErrorIs(t, err, config.ErrInvalid)
}

func TestPipelineMissingSplit(t *testing.T) {
	root := t.TempDir()
	writeSplit(t, root, dataset.SplitTraining, 6)

	_, err := NewPipeline(testRunConfig(root), golog.NewTestLogger(t))
	require.Error(t, err)
	assert.ErrorIs(t, err, dataset.ErrDataAccess)
}

func TestPipelineBadDevice(t *testing.T) {
	root := t.TempDir()
	cfg := testRunConfig(root)
	cfg.Device = "tpu"

	_, err := NewPipeline(cfg, golog.NewTestLogger(t))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrDevice)
}

func TestPipelineRejectsIndivisibleInput(t *testing.T) {
	root := t.TempDir()
	cfg := testRunConfig(root)
	cfg.InputDim = [3]int{30, 30, 3}

	_, err := NewPipeline(cfg, golog.NewTestLogger(t))
	require.Error(t, err)
	assert.ErrorIs(t, err, config.ErrInvalid)
}
