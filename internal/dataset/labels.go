package dataset

import (
	"fmt"
	"path/filepath"
	"sort"
	"strings"
)

// Filenames encode the category as underscore-delimited tokens, e.g.
// "img_0042_drone_quadcopter_a.png". The coarse category is token 2,
// the fine-grained category joins tokens 2 and 3.
const (
	coarseToken = 2
	fineToken   = 3
)

// DeriveLabel extracts the category name from an image filename.
func DeriveLabel(filename string, fine bool) (string, error) {
	base := strings.TrimSuffix(filepath.Base(filename), filepath.Ext(filename))
	tokens := strings.Split(base, "_")
	need := coarseToken + 1
	if fine {
		need = fineToken + 1
	}
	if len(tokens) < need {
		return "", fmt.Errorf("%w: filename %q has %d tokens, need %d", ErrDataAccess, filename, len(tokens), need)
	}
	if fine {
		return tokens[coarseToken] + "_" + tokens[fineToken], nil
	}
	return tokens[coarseToken], nil
}

// Vocabulary is a dense, stably-ordered mapping between category names and
// class indices. Names are ordered lexicographically so that any two
// vocabularies built over the same set of categories agree index-for-index.
type Vocabulary struct {
	names   []string
	indexOf map[string]int
}

// BuildVocabulary constructs a Vocabulary from the given category names,
// deduplicated and sorted.
func BuildVocabulary(names []string) *Vocabulary {
	seen := make(map[string]struct{}, len(names))
	uniq := make([]string, 0, len(names))
	for _, n := range names {
		if _, ok := seen[n]; ok {
			continue
		}
		seen[n] = struct{}{}
		uniq = append(uniq, n)
	}
	sort.Strings(uniq)

	indexOf := make(map[string]int, len(uniq))
	for i, n := range uniq {
		indexOf[n] = i
	}
	return &Vocabulary{names: uniq, indexOf: indexOf}
}

// Len returns the number of classes.
func (v *Vocabulary) Len() int { return len(v.names) }

// Index returns the class index for a category name.
func (v *Vocabulary) Index(name string) (int, bool) {
	i, ok := v.indexOf[name]
	return i, ok
}

// Name returns the category name for a class index.
func (v *Vocabulary) Name(i int) string { return v.names[i] }

// Names returns the ordered category names.
func (v *Vocabulary) Names() []string {
	return append([]string(nil), v.names...)
}
