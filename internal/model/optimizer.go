package model

import "math"

// Param is one trainable tensor with its gradient accumulator. Gradients
// are overwritten by each Backward and zeroed by each optimizer step, so
// nothing accumulates across batches.
type Param struct {
	Name string
	Data []float32
	Grad []float32
}

// Adam implements the Adam optimizer with a fixed learning rate.
type Adam struct {
	lr    float64
	beta1 float64
	beta2 float64
	eps   float64

	step int
	m    [][]float64
	v    [][]float64
}

// NewAdam returns an Adam optimizer with the usual moment defaults.
func NewAdam(lr float64) *Adam {
	return &Adam{lr: lr, beta1: 0.9, beta2: 0.999, eps: 1e-8}
}

// Step applies one bias-corrected Adam update to every parameter and
// discards the gradients.
func (a *Adam) Step(params []*Param) {
	if a.m == nil {
		a.m = make([][]float64, len(params))
		a.v = make([][]float64, len(params))
		for i, p := range params {
			a.m[i] = make([]float64, len(p.Data))
			a.v[i] = make([]float64, len(p.Data))
		}
	}
	a.step++
	c1 := 1 - math.Pow(a.beta1, float64(a.step))
	c2 := 1 - math.Pow(a.beta2, float64(a.step))

	for i, p := range params {
		m, v := a.m[i], a.v[i]
		for j := range p.Data {
			g := float64(p.Grad[j])
			m[j] = a.beta1*m[j] + (1-a.beta1)*g
			v[j] = a.beta2*v[j] + (1-a.beta2)*g*g
			mHat := m[j] / c1
			vHat := v[j] / c2
			p.Data[j] -= float32(a.lr * mHat / (math.Sqrt(vHat) + a.eps))
			p.Grad[j] = 0
		}
	}
}
