package model

import "math"

const (
	bnEps      = 1e-5
	bnMomentum = 0.1
)

// batchNorm normalizes each of `features` channels over the batch and any
// spatial extent. spatial == H*W gives the per-channel 2D form; spatial ==
// 1 gives the per-feature 1D form used after the dense layer. Training
// uses batch statistics and folds them into running estimates; evaluation
// uses the running estimates.
type batchNorm struct {
	features int
	spatial  int

	gamma *Param
	beta  *Param

	runMean []float32
	runVar  []float32

	xhat   []float32 // normalized input from the last training forward
	invStd []float32
	out    []float32
}

func newBatchNorm(name string, features, spatial int) *batchNorm {
	gamma := make([]float32, features)
	for i := range gamma {
		gamma[i] = 1
	}
	runVar := make([]float32, features)
	for i := range runVar {
		runVar[i] = 1
	}
	return &batchNorm{
		features: features,
		spatial:  spatial,
		gamma:    &Param{Name: name + ".gamma", Data: gamma, Grad: make([]float32, features)},
		beta:     &Param{Name: name + ".beta", Data: make([]float32, features), Grad: make([]float32, features)},
		runMean:  make([]float32, features),
		runVar:   runVar,
	}
}

func (bn *batchNorm) params() []*Param { return []*Param{bn.gamma, bn.beta} }

func (bn *batchNorm) at(b, f, s int) int {
	return (b*bn.features+f)*bn.spatial + s
}

func (bn *batchNorm) forward(x []float32, n int, train bool) []float32 {
	size := n * bn.features * bn.spatial
	if cap(bn.out) < size {
		bn.out = make([]float32, size)
	}
	bn.out = bn.out[:size]

	if !train {
		for b := 0; b < n; b++ {
			for f := 0; f < bn.features; f++ {
				invStd := float32(1 / math.Sqrt(float64(bn.runVar[f])+bnEps))
				for s := 0; s < bn.spatial; s++ {
					i := bn.at(b, f, s)
					bn.out[i] = bn.gamma.Data[f]*(x[i]-bn.runMean[f])*invStd + bn.beta.Data[f]
				}
			}
		}
		return bn.out
	}

	if cap(bn.xhat) < size {
		bn.xhat = make([]float32, size)
	}
	bn.xhat = bn.xhat[:size]
	if bn.invStd == nil {
		bn.invStd = make([]float32, bn.features)
	}

	m := float64(n * bn.spatial)
	for f := 0; f < bn.features; f++ {
		var sum float64
		for b := 0; b < n; b++ {
			for s := 0; s < bn.spatial; s++ {
				sum += float64(x[bn.at(b, f, s)])
			}
		}
		mean := sum / m

		var sq float64
		for b := 0; b < n; b++ {
			for s := 0; s < bn.spatial; s++ {
				d := float64(x[bn.at(b, f, s)]) - mean
				sq += d * d
			}
		}
		variance := sq / m
		invStd := 1 / math.Sqrt(variance+bnEps)
		bn.invStd[f] = float32(invStd)

		for b := 0; b < n; b++ {
			for s := 0; s < bn.spatial; s++ {
				i := bn.at(b, f, s)
				xh := float32((float64(x[i]) - mean) * invStd)
				bn.xhat[i] = xh
				bn.out[i] = bn.gamma.Data[f]*xh + bn.beta.Data[f]
			}
		}

		bn.runMean[f] = (1-bnMomentum)*bn.runMean[f] + bnMomentum*float32(mean)
		bn.runVar[f] = (1-bnMomentum)*bn.runVar[f] + bnMomentum*float32(variance)
	}
	return bn.out
}

func (bn *batchNorm) backward(grad []float32, n int) []float32 {
	size := n * bn.features * bn.spatial
	dx := make([]float32, size)
	m := float32(n * bn.spatial)

	for f := 0; f < bn.features; f++ {
		var sumDy, sumDyXhat float32
		for b := 0; b < n; b++ {
			for s := 0; s < bn.spatial; s++ {
				i := bn.at(b, f, s)
				sumDy += grad[i]
				sumDyXhat += grad[i] * bn.xhat[i]
			}
		}
		bn.gamma.Grad[f] = sumDyXhat
		bn.beta.Grad[f] = sumDy

		scale := bn.gamma.Data[f] * bn.invStd[f] / m
		for b := 0; b < n; b++ {
			for s := 0; s < bn.spatial; s++ {
				i := bn.at(b, f, s)
				dx[i] = scale * (m*grad[i] - sumDy - bn.xhat[i]*sumDyXhat)
			}
		}
	}
	return dx
}
