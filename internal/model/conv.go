package model

// conv2d is a 3x3 same-padding convolution without bias. Weight layout is
// [outC, inC, k, k] flattened, inputs and outputs are [C, H, W] flattened
// per sample; same padding keeps the spatial dims.
type conv2d struct {
	inC, outC int
	h, w      int

	weight *Param

	saved []float32 // input from the last forward, for backward
	out   []float32
}

const convKernel = 3
const convPad = 1

func newConv2d(name string, inC, outC, h, w int, init func() float32) *conv2d {
	weights := make([]float32, outC*inC*convKernel*convKernel)
	for i := range weights {
		weights[i] = init()
	}
	return &conv2d{
		inC: inC, outC: outC, h: h, w: w,
		weight: &Param{
			Name: name + ".weight",
			Data: weights,
			Grad: make([]float32, len(weights)),
		},
	}
}

func (c *conv2d) params() []*Param { return []*Param{c.weight} }

func (c *conv2d) forward(x []float32, n int, _ bool) []float32 {
	inPlane := c.h * c.w
	inSize := c.inC * inPlane
	outSize := c.outC * inPlane

	if cap(c.saved) < n*inSize {
		c.saved = make([]float32, n*inSize)
	}
	c.saved = c.saved[:n*inSize]
	copy(c.saved, x)

	if cap(c.out) < n*outSize {
		c.out = make([]float32, n*outSize)
	}
	c.out = c.out[:n*outSize]

	for b := 0; b < n; b++ {
		in := x[b*inSize : (b+1)*inSize]
		out := c.out[b*outSize : (b+1)*outSize]
		for oc := 0; oc < c.outC; oc++ {
			for oh := 0; oh < c.h; oh++ {
				for ow := 0; ow < c.w; ow++ {
					var sum float32
					for ic := 0; ic < c.inC; ic++ {
						for kh := 0; kh < convKernel; kh++ {
							ih := oh + kh - convPad
							if ih < 0 || ih >= c.h {
								continue
							}
							for kw := 0; kw < convKernel; kw++ {
								iw := ow + kw - convPad
								if iw < 0 || iw >= c.w {
									continue
								}
								wIdx := ((oc*c.inC+ic)*convKernel+kh)*convKernel + kw
								sum += in[ic*inPlane+ih*c.w+iw] * c.weight.Data[wIdx]
							}
						}
					}
					out[oc*inPlane+oh*c.w+ow] = sum
				}
			}
		}
	}
	return c.out
}

func (c *conv2d) backward(grad []float32, n int) []float32 {
	inPlane := c.h * c.w
	inSize := c.inC * inPlane
	outSize := c.outC * inPlane

	for i := range c.weight.Grad {
		c.weight.Grad[i] = 0
	}
	dx := make([]float32, n*inSize)

	for b := 0; b < n; b++ {
		in := c.saved[b*inSize : (b+1)*inSize]
		g := grad[b*outSize : (b+1)*outSize]
		din := dx[b*inSize : (b+1)*inSize]
		for oc := 0; oc < c.outC; oc++ {
			for oh := 0; oh < c.h; oh++ {
				for ow := 0; ow < c.w; ow++ {
					gout := g[oc*inPlane+oh*c.w+ow]
					if gout == 0 {
						continue
					}
					for ic := 0; ic < c.inC; ic++ {
						for kh := 0; kh < convKernel; kh++ {
							ih := oh + kh - convPad
							if ih < 0 || ih >= c.h {
								continue
							}
							for kw := 0; kw < convKernel; kw++ {
								iw := ow + kw - convPad
								if iw < 0 || iw >= c.w {
									continue
								}
								wIdx := ((oc*c.inC+ic)*convKernel+kh)*convKernel + kw
								inIdx := ic*inPlane + ih*c.w + iw
								c.weight.Grad[wIdx] += gout * in[inIdx]
								din[inIdx] += gout * c.weight.Data[wIdx]
							}
						}
					}
				}
			}
		}
	}
	return dx
}
