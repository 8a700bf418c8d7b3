package dataset

import (
	"context"
	"io"
	"math/rand"
	"sync"

	"gorgonia.org/tensor"
)

// Batch is a fixed-size group of samples stacked into one NCHW tensor.
type Batch struct {
	Inputs *tensor.Dense
	Labels []int
}

// Loader iterates a Dataset in fixed-size batches. Training loaders
// shuffle the sample order each epoch; evaluation loaders keep file order.
// A trailing partial batch is always dropped. Image decoding for a batch
// is spread across a bounded worker pool, preserving in-batch order.
type Loader struct {
	ds        *Dataset
	batchSize int
	workers   int
	shuffle   bool
	rng       *rand.Rand

	order []int
	pos   int
}

// NewLoader builds a Loader over ds. The seed only matters when shuffle
// is set; successive Resets draw fresh permutations from the same stream.
func NewLoader(ds *Dataset, batchSize, workers int, shuffle bool, seed int64) *Loader {
	if workers < 1 {
		workers = 1
	}
	order := make([]int, ds.Size())
	for i := range order {
		order[i] = i
	}
	return &Loader{
		ds:        ds,
		batchSize: batchSize,
		workers:   workers,
		shuffle:   shuffle,
		rng:       rand.New(rand.NewSource(seed)),
		order:     order,
	}
}

// NumBatches returns the number of full batches per epoch.
func (l *Loader) NumBatches() int { return l.ds.Size() / l.batchSize }

// Reset rewinds the loader and, for shuffling loaders, draws a new
// permutation of the sample order.
func (l *Loader) Reset() {
	l.pos = 0
	if l.shuffle {
		l.rng.Shuffle(len(l.order), func(i, j int) {
			l.order[i], l.order[j] = l.order[j], l.order[i]
		})
	}
}

// Next loads the next batch. It returns io.EOF once fewer than a full
// batch of samples remains.
func (l *Loader) Next(ctx context.Context) (Batch, error) {
	if l.pos+l.batchSize > len(l.order) {
		return Batch{}, io.EOF
	}
	indices := l.order[l.pos : l.pos+l.batchSize]
	l.pos += l.batchSize

	c, h, w := l.ds.chans, l.ds.height, l.ds.width
	sample := c * h * w
	backing := make([]float32, l.batchSize*sample)
	labels := make([]int, l.batchSize)

	jobs := make(chan int)
	var wg sync.WaitGroup
	var mu sync.Mutex
	var firstErr error

	for i := 0; i < min(l.workers, l.batchSize); i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			// Keep draining jobs after a failure so the feeder never blocks.
			for slot := range jobs {
				if ctx.Err() != nil {
					continue
				}
				mu.Lock()
				failed := firstErr != nil
				mu.Unlock()
				if failed {
					continue
				}
				img, label, err := l.ds.Get(indices[slot])
				if err != nil {
					mu.Lock()
					if firstErr == nil {
						firstErr = err
					}
					mu.Unlock()
					continue
				}
				copy(backing[slot*sample:(slot+1)*sample], img.Data().([]float32))
				labels[slot] = label
			}
		}()
	}

	for slot := 0; slot < l.batchSize; slot++ {
		jobs <- slot
	}
	close(jobs)
	wg.Wait()

	if err := ctx.Err(); err != nil {
		return Batch{}, err
	}
	if firstErr != nil {
		return Batch{}, firstErr
	}

	inputs := tensor.New(
		tensor.Of(tensor.Float32),
		tensor.WithShape(l.batchSize, c, h, w),
		tensor.WithBacking(backing),
	)
	return Batch{Inputs: inputs, Labels: labels}, nil
}
