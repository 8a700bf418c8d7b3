package model

// dense is a fully connected layer without bias. Weight layout is
// [out, in] flattened.
type dense struct {
	in, out int

	weight *Param

	saved []float32
	buf   []float32
}

func newDense(name string, in, out int, init func() float32) *dense {
	weights := make([]float32, out*in)
	for i := range weights {
		weights[i] = init()
	}
	return &dense{
		in: in, out: out,
		weight: &Param{
			Name: name + ".weight",
			Data: weights,
			Grad: make([]float32, len(weights)),
		},
	}
}

func (d *dense) params() []*Param { return []*Param{d.weight} }

func (d *dense) forward(x []float32, n int, _ bool) []float32 {
	if cap(d.saved) < n*d.in {
		d.saved = make([]float32, n*d.in)
	}
	d.saved = d.saved[:n*d.in]
	copy(d.saved, x)

	if cap(d.buf) < n*d.out {
		d.buf = make([]float32, n*d.out)
	}
	d.buf = d.buf[:n*d.out]

	for b := 0; b < n; b++ {
		in := x[b*d.in : (b+1)*d.in]
		for o := 0; o < d.out; o++ {
			var sum float32
			row := d.weight.Data[o*d.in : (o+1)*d.in]
			for i, v := range in {
				sum += row[i] * v
			}
			d.buf[b*d.out+o] = sum
		}
	}
	return d.buf
}

func (d *dense) backward(grad []float32, n int) []float32 {
	for i := range d.weight.Grad {
		d.weight.Grad[i] = 0
	}
	dx := make([]float32, n*d.in)
	for b := 0; b < n; b++ {
		in := d.saved[b*d.in : (b+1)*d.in]
		din := dx[b*d.in : (b+1)*d.in]
		for o := 0; o < d.out; o++ {
			g := grad[b*d.out+o]
			if g == 0 {
				continue
			}
			wrow := d.weight.Data[o*d.in : (o+1)*d.in]
			grow := d.weight.Grad[o*d.in : (o+1)*d.in]
			for i := 0; i < d.in; i++ {
				grow[i] += g * in[i]
				din[i] += g * wrow[i]
			}
		}
	}
	return dx
}
