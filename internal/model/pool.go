package model

// maxPool is a 2x2 stride-2 max pooling layer over [C, H, W] samples.
// It records the argmax of each window so backward can route gradients.
type maxPool struct {
	chans int
	h, w  int // input spatial dims; output is h/2 x w/2

	argmax []int
	out    []float32
}

func newMaxPool(chans, h, w int) *maxPool {
	return &maxPool{chans: chans, h: h, w: w}
}

func (p *maxPool) params() []*Param { return nil }

func (p *maxPool) forward(x []float32, n int, _ bool) []float32 {
	oh, ow := p.h/2, p.w/2
	inPlane := p.h * p.w
	outPlane := oh * ow
	inSize := p.chans * inPlane
	outSize := p.chans * outPlane

	if cap(p.out) < n*outSize {
		p.out = make([]float32, n*outSize)
		p.argmax = make([]int, n*outSize)
	}
	p.out = p.out[:n*outSize]
	p.argmax = p.argmax[:n*outSize]

	for b := 0; b < n; b++ {
		in := x[b*inSize : (b+1)*inSize]
		for c := 0; c < p.chans; c++ {
			for y := 0; y < oh; y++ {
				for xo := 0; xo < ow; xo++ {
					base := c*inPlane + 2*y*p.w + 2*xo
					best := base
					for _, cand := range [3]int{base + 1, base + p.w, base + p.w + 1} {
						if in[cand] > in[best] {
							best = cand
						}
					}
					o := b*outSize + c*outPlane + y*ow + xo
					p.out[o] = in[best]
					p.argmax[o] = b*inSize + best
				}
			}
		}
	}
	return p.out
}

func (p *maxPool) backward(grad []float32, n int) []float32 {
	dx := make([]float32, n*p.chans*p.h*p.w)
	for o, src := range p.argmax {
		dx[src] += grad[o]
	}
	return dx
}
