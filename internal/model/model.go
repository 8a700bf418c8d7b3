// Package model implements the flying-objects classifier network: two
// convolution/batchnorm/ReLU/maxpool blocks, a flatten, a dense block
// with per-feature normalization, and a softmax output head. The math
// runs on flat float32 slices; gorgonia tensors form the seam to the
// dataset and the caller.
package model

import (
	"fmt"
	"math"
	"math/rand/v2"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/stat/distuv"
	"gorgonia.org/tensor"
)

// ErrShapeMismatch is wrapped by every structural shape failure, at
// construction or at the forward boundary.
var ErrShapeMismatch = errors.New("shape mismatch")

// Config fixes the network structure. Parameters are mutable during
// training; the structure never is.
type Config struct {
	Height     int
	Width      int
	Channels   int
	HiddenDim  int
	LinearDim  int
	NumClasses int
	Seed       int64
}

type layer interface {
	forward(x []float32, n int, train bool) []float32
	backward(grad []float32, n int) []float32
	params() []*Param
}

// Classifier maps an NCHW image batch to per-class probabilities.
type Classifier struct {
	cfg Config

	layers []layer
	parms  []*Param

	probs []float32 // cached output of the last forward
	lastN int
}

// New validates the structure arithmetic and builds the network. The two
// pooling stages floor-divide each spatial dim by 2, so height and width
// must be divisible by 4 or the flatten size would disagree with the
// first dense layer.
func New(cfg Config) (*Classifier, error) {
	if cfg.Height <= 0 || cfg.Width <= 0 {
		return nil, fmt.Errorf("%w: input dims must be positive, got %dx%d", ErrShapeMismatch, cfg.Height, cfg.Width)
	}
	if cfg.Height%4 != 0 || cfg.Width%4 != 0 {
		return nil, fmt.Errorf("%w: input dims %dx%d not divisible by 4", ErrShapeMismatch, cfg.Height, cfg.Width)
	}
	if cfg.Channels != 1 && cfg.Channels != 3 {
		return nil, fmt.Errorf("%w: channels must be 1 or 3, got %d", ErrShapeMismatch, cfg.Channels)
	}
	if cfg.HiddenDim < 1 || cfg.LinearDim < 1 || cfg.NumClasses < 1 {
		return nil, fmt.Errorf("%w: hidden=%d linear=%d classes=%d must all be >= 1",
			ErrShapeMismatch, cfg.HiddenDim, cfg.LinearDim, cfg.NumClasses)
	}

	src := rand.NewPCG(uint64(cfg.Seed), uint64(cfg.Seed))
	h, w := cfg.Height, cfg.Width
	h2, w2 := h/2, w/2
	h4, w4 := h/4, w/4
	hidden2 := cfg.HiddenDim * 2
	flat := hidden2 * h4 * w4

	c := &Classifier{cfg: cfg}
	c.layers = []layer{
		newConv2d("conv1", cfg.Channels, cfg.HiddenDim, h, w, heNormal(cfg.Channels*convKernel*convKernel, src)),
		newBatchNorm("bn1", cfg.HiddenDim, h*w),
		newReLU(),
		newMaxPool(cfg.HiddenDim, h, w),
		newConv2d("conv2", cfg.HiddenDim, hidden2, h2, w2, heNormal(cfg.HiddenDim*convKernel*convKernel, src)),
		newBatchNorm("bn2", hidden2, h2*w2),
		newReLU(),
		newMaxPool(hidden2, h2, w2),
		// pooled output flattens to hidden2*h4*w4 per sample
		newDense("fc1", flat, cfg.LinearDim, heNormal(flat, src)),
		newBatchNorm("bn3", cfg.LinearDim, 1),
		newReLU(),
		newDense("fc2", cfg.LinearDim, cfg.NumClasses, heNormal(cfg.LinearDim, src)),
	}
	for _, l := range c.layers {
		c.parms = append(c.parms, l.params()...)
	}
	return c, nil
}

// NumClasses returns the size of the output distribution.
func (c *Classifier) NumClasses() int { return c.cfg.NumClasses }

// Params returns every trainable parameter, in layer order.
func (c *Classifier) Params() []*Param { return c.parms }

// Forward maps an (N, C, H, W) batch to an (N, classes) tensor of
// probabilities. Each row is non-negative and sums to one. In train mode
// the normalization layers use batch statistics and update their running
// estimates; in eval mode they read the running estimates only.
func (c *Classifier) Forward(batch *tensor.Dense, train bool) (*tensor.Dense, error) {
	shape := batch.Shape()
	if len(shape) != 4 || shape[1] != c.cfg.Channels || shape[2] != c.cfg.Height || shape[3] != c.cfg.Width {
		return nil, fmt.Errorf("%w: batch shape %v, want (N, %d, %d, %d)",
			ErrShapeMismatch, shape, c.cfg.Channels, c.cfg.Height, c.cfg.Width)
	}
	n := shape[0]

	x := batch.Data().([]float32)
	for _, l := range c.layers {
		x = l.forward(x, n, train)
	}

	if cap(c.probs) < n*c.cfg.NumClasses {
		c.probs = make([]float32, n*c.cfg.NumClasses)
	}
	c.probs = c.probs[:n*c.cfg.NumClasses]
	copy(c.probs, x)
	softmaxRows(c.probs, n, c.cfg.NumClasses)
	c.lastN = n

	out := make([]float32, len(c.probs))
	copy(out, c.probs)
	return tensor.New(
		tensor.Of(tensor.Float32),
		tensor.WithShape(n, c.cfg.NumClasses),
		tensor.WithBacking(out),
	), nil
}

// Loss returns the mean cross-entropy of the last forward pass against
// the integer labels.
func (c *Classifier) Loss(labels []int) (float64, error) {
	if len(labels) != c.lastN {
		return 0, fmt.Errorf("%w: %d labels for a batch of %d", ErrShapeMismatch, len(labels), c.lastN)
	}
	var total float64
	k := c.cfg.NumClasses
	for b, label := range labels {
		p := float64(c.probs[b*k+label])
		if p < 1e-9 {
			p = 1e-9
		}
		total -= math.Log(p)
	}
	return total / float64(len(labels)), nil
}

// Backward computes parameter gradients for the last forward pass using
// the combined softmax/cross-entropy gradient. Gradients are overwritten,
// never accumulated across calls.
func (c *Classifier) Backward(labels []int) error {
	if len(labels) != c.lastN {
		return fmt.Errorf("%w: %d labels for a batch of %d", ErrShapeMismatch, len(labels), c.lastN)
	}
	n := c.lastN
	k := c.cfg.NumClasses

	// d(loss)/d(logits) = (probs - onehot) / N
	grad := make([]float32, n*k)
	invN := 1 / float32(n)
	for b, label := range labels {
		if label < 0 || label >= k {
			return fmt.Errorf("%w: label %d outside [0,%d)", ErrShapeMismatch, label, k)
		}
		for j := 0; j < k; j++ {
			g := c.probs[b*k+j]
			if j == label {
				g--
			}
			grad[b*k+j] = g * invN
		}
	}

	for i := len(c.layers) - 1; i >= 0; i-- {
		grad = c.layers[i].backward(grad, n)
	}
	return nil
}

func heNormal(fanIn int, src rand.Source) func() float32 {
	dist := distuv.Normal{Mu: 0, Sigma: math.Sqrt(2 / float64(fanIn)), Src: src}
	return func() float32 { return float32(dist.Rand()) }
}
