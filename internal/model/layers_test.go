package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConvIdentityKernel(t *testing.T) {
	conv := newConv2d("c", 1, 1, 4, 4, func() float32 { return 0 })
	// Center tap of the 3x3 kernel set to 1 makes the layer an identity.
	conv.weight.Data[1*convKernel+1] = 1

	x := make([]float32, 16)
	for i := range x {
		x[i] = float32(i) * 0.5
	}
	out := conv.forward(x, 1, true)
	assert.Equal(t, x, out)

	// The identity kernel routes gradients straight through as well.
	grad := make([]float32, 16)
	for i := range grad {
		grad[i] = float32(i)
	}
	dx := conv.backward(grad, 1)
	assert.Equal(t, grad, dx)
}

func TestMaxPoolForwardBackward(t *testing.T) {
	pool := newMaxPool(1, 4, 4)
	x := []float32{
		1, 2, 0, 0,
		3, 4, 0, 9,
		0, 0, 5, 6,
		0, 0, 7, 8,
	}
	out := pool.forward(x, 1, true)
	assert.Equal(t, []float32{4, 9, 0, 8}, out)

	dx := pool.backward([]float32{1, 1, 1, 1}, 1)
	// Gradient lands only on each window's argmax.
	want := make([]float32, 16)
	want[5] = 1  // 4
	want[7] = 1  // 9
	want[8] = 1  // upper-left of the all-zero window
	want[15] = 1 // 8
	assert.Equal(t, want, dx)
}

func TestBatchNormTrainStatistics(t *testing.T) {
	bn := newBatchNorm("bn", 1, 2)
	// One feature, spatial 2, batch 2: values 1..4.
	x := []float32{1, 2, 3, 4}
	out := bn.forward(x, 2, true)

	var mean, variance float64
	for _, v := range out {
		mean += float64(v)
	}
	mean /= 4
	for _, v := range out {
		d := float64(v) - mean
		variance += d * d
	}
	variance /= 4

	assert.InDelta(t, 0, mean, 1e-5)
	assert.InDelta(t, 1, variance, 1e-3)
}

func TestBatchNormEvalUsesRunningStats(t *testing.T) {
	bn := newBatchNorm("bn", 2, 1)
	// Fresh layer: running mean 0, running var 1, gamma 1, beta 0, so
	// eval mode is (numerically almost) the identity.
	x := []float32{0.5, -0.25}
	out := bn.forward(x, 1, false)
	assert.InDelta(t, 0.5, float64(out[0]), 1e-4)
	assert.InDelta(t, -0.25, float64(out[1]), 1e-4)
}

func TestDenseForwardBackward(t *testing.T) {
	d := newDense("fc", 2, 2, func() float32 { return 0 })
	copy(d.weight.Data, []float32{1, 2, 3, 4})

	out := d.forward([]float32{1, 1}, 1, true)
	assert.Equal(t, []float32{3, 7}, out)

	dx := d.backward([]float32{1, 0}, 1)
	assert.Equal(t, []float32{1, 2}, dx)
	assert.Equal(t, []float32{1, 1, 0, 0}, d.weight.Grad)
}

func TestReLU(t *testing.T) {
	r := newReLU()
	out := r.forward([]float32{-1, 0, 2}, 1, true)
	assert.Equal(t, []float32{0, 0, 2}, out)

	dx := r.backward([]float32{5, 5, 5}, 1)
	assert.Equal(t, []float32{0, 0, 5}, dx)
}

func TestSoftmaxRows(t *testing.T) {
	x := []float32{1, 1, 1, 0, 100, 0}
	softmaxRows(x, 2, 3)

	assert.InDelta(t, 1.0/3, float64(x[0]), 1e-6)
	assert.InDelta(t, 1.0/3, float64(x[1]), 1e-6)
	assert.InDelta(t, 1, float64(x[4]), 1e-6)

	var sum float64
	for _, v := range x[3:] {
		sum += float64(v)
	}
	assert.InDelta(t, 1, sum, 1e-6)
}

func TestAdamStep(t *testing.T) {
	p := &Param{Name: "w", Data: []float32{1, -1}, Grad: []float32{0.5, -0.5}}
	opt := NewAdam(0.1)
	opt.Step([]*Param{p})

	assert.Less(t, p.Data[0], float32(1), "positive gradient must push the weight down")
	assert.Greater(t, p.Data[1], float32(-1), "negative gradient must push the weight up")
	assert.Equal(t, []float32{0, 0}, p.Grad, "gradients are discarded after the step")

	require.Equal(t, 1, opt.step)
}
