// Package dataset presents fixed, ordered, read-only views over the
// labeled flying-objects image splits on disk, and batches them for
// training and evaluation.
//
// The on-disk layout is <root>/<split>/image/*.png (or .jpg), with the
// category encoded in the filename. Class indices come from a Vocabulary;
// the training split's vocabulary is canonical and is reused to label the
// validation and testing splits, so indices agree across splits even when
// a class is missing from one of them.
package dataset

import (
	"fmt"
	"image"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/disintegration/imaging"
	"github.com/pkg/errors"
	"gorgonia.org/tensor"
)

// ErrDataAccess is wrapped by every dataset construction or access failure.
var ErrDataAccess = errors.New("data access error")

// Split names under the dataset root.
const (
	SplitTraining   = "training"
	SplitValidation = "validation"
	SplitTesting    = "testing"
)

var imageExts = map[string]bool{".png": true, ".jpg": true, ".jpeg": true}

// Dataset is an ordered, read-only view over one split. Pixel data is not
// cached: every Get re-reads and re-decodes the file.
type Dataset struct {
	split  string
	fine   bool
	height int
	width  int
	chans  int

	paths  []string
	labels []int
	vocab  *Vocabulary
}

// New scans <root>/<split>/image and builds the split's sample list.
//
// A nil vocab derives the vocabulary from this split's own files; passing
// the training split's vocabulary labels this split against the canonical
// class set, and a category unseen in training is an error.
func New(root, split string, fine bool, inputDim [3]int, vocab *Vocabulary) (*Dataset, error) {
	dir := filepath.Join(root, split, "image")
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("%w: read split directory %s: %v", ErrDataAccess, dir, err)
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if imageExts[strings.ToLower(filepath.Ext(e.Name()))] {
			names = append(names, e.Name())
		}
	}
	if len(names) == 0 {
		return nil, fmt.Errorf("%w: no image files under %s", ErrDataAccess, dir)
	}
	sort.Strings(names)

	categories := make([]string, len(names))
	for i, name := range names {
		cat, err := DeriveLabel(name, fine)
		if err != nil {
			return nil, err
		}
		categories[i] = cat
	}

	if vocab == nil {
		vocab = BuildVocabulary(categories)
	}

	paths := make([]string, len(names))
	labels := make([]int, len(names))
	for i, name := range names {
		idx, ok := vocab.Index(categories[i])
		if !ok {
			return nil, fmt.Errorf("%w: category %q in split %s is not in the vocabulary", ErrDataAccess, categories[i], split)
		}
		paths[i] = filepath.Join(dir, name)
		labels[i] = idx
	}

	return &Dataset{
		split:  split,
		fine:   fine,
		height: inputDim[0],
		width:  inputDim[1],
		chans:  inputDim[2],
		paths:  paths,
		labels: labels,
		vocab:  vocab,
	}, nil
}

// Size returns the number of samples. Constant after construction.
func (d *Dataset) Size() int { return len(d.paths) }

// Split returns the split name this dataset was built over.
func (d *Dataset) Split() string { return d.split }

// Vocab returns the vocabulary the split was labeled with.
func (d *Dataset) Vocab() *Vocabulary { return d.vocab }

// Get reads and decodes sample i, returning a CHW float32 tensor with
// pixel values in [0, 1] and the integer class index.
func (d *Dataset) Get(i int) (*tensor.Dense, int, error) {
	if i < 0 || i >= len(d.paths) {
		return nil, 0, fmt.Errorf("%w: index %d out of range [0,%d)", ErrDataAccess, i, len(d.paths))
	}
	img, err := imaging.Open(d.paths[i])
	if err != nil {
		return nil, 0, fmt.Errorf("%w: decode %s: %v", ErrDataAccess, d.paths[i], err)
	}
	return d.toTensor(img), d.labels[i], nil
}

func (d *Dataset) toTensor(img image.Image) *tensor.Dense {
	if d.chans == 1 {
		img = imaging.Grayscale(img)
	}
	resized := imaging.Resize(img, d.width, d.height, imaging.Lanczos)

	backing := make([]float32, d.chans*d.height*d.width)
	plane := d.height * d.width
	for y := 0; y < d.height; y++ {
		for x := 0; x < d.width; x++ {
			px := resized.NRGBAAt(x, y)
			if d.chans == 1 {
				backing[y*d.width+x] = float32(px.R) / 255.0
				continue
			}
			backing[0*plane+y*d.width+x] = float32(px.R) / 255.0
			backing[1*plane+y*d.width+x] = float32(px.G) / 255.0
			backing[2*plane+y*d.width+x] = float32(px.B) / 255.0
		}
	}
	return tensor.New(
		tensor.Of(tensor.Float32),
		tensor.WithShape(d.chans, d.height, d.width),
		tensor.WithBacking(backing),
	)
}
