package model

import "math"

// relu is a rectifying non-linearity with a saved mask for backward.
type relu struct {
	mask []bool
	out  []float32
}

func newReLU() *relu { return &relu{} }

func (r *relu) params() []*Param { return nil }

func (r *relu) forward(x []float32, _ int, _ bool) []float32 {
	if cap(r.out) < len(x) {
		r.out = make([]float32, len(x))
		r.mask = make([]bool, len(x))
	}
	r.out = r.out[:len(x)]
	r.mask = r.mask[:len(x)]
	for i, v := range x {
		if v > 0 {
			r.out[i] = v
			r.mask[i] = true
		} else {
			r.out[i] = 0
			r.mask[i] = false
		}
	}
	return r.out
}

func (r *relu) backward(grad []float32, _ int) []float32 {
	dx := make([]float32, len(grad))
	for i, g := range grad {
		if r.mask[i] {
			dx[i] = g
		}
	}
	return dx
}

// softmaxRows applies a max-shifted softmax to each row of an (n, k)
// matrix in place.
func softmaxRows(x []float32, n, k int) {
	for b := 0; b < n; b++ {
		row := x[b*k : (b+1)*k]
		maxv := row[0]
		for _, v := range row[1:] {
			if v > maxv {
				maxv = v
			}
		}
		var sum float32
		for i, v := range row {
			e := float32(math.Exp(float64(v - maxv)))
			row[i] = e
			sum += e
		}
		inv := 1 / sum
		for i := range row {
			row[i] *= inv
		}
	}
}
