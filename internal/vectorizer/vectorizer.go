// Package vectorizer maps token sequences onto a fixed TF-IDF feature space.
package vectorizer

import (
	"errors"
	"fmt"
	"math"
	"sort"
)

// ErrInvalidVocabulary is returned by New when the vocabulary and IDF table do not describe a valid feature space.
var ErrInvalidVocabulary = errors.New("invalid vocabulary")

// Vector is a sparse feature vector. Indices are strictly ascending and
// Values[i] belongs to Indices[i]. A vector without indices is the zero vector.
type Vector struct {
	Dim     int
	Indices []int
	Values  []float64
}

// IsZero reports whether no feature is set.
func (v Vector) IsZero() bool {
	return len(v.Indices) == 0
}

// Norm returns the Euclidean length of v.
func (v Vector) Norm() float64 {
	var sum float64
	for _, x := range v.Values {
		sum += x * x
	}
	return math.Sqrt(sum)
}

// Vectorizer holds the vocabulary and IDF weights. It is never mutated after New
// and can be shared between goroutines.
type Vectorizer struct {
	vocab map[string]int
	idf   []float64
}

// New validates vocab and idf and builds a Vectorizer. The feature space is
// len(idf) wide and every vocabulary index must address a distinct slot.
func New(vocab map[string]int, idf []float64) (*Vectorizer, error) {
	if len(idf) == 0 {
		return nil, fmt.Errorf("%w: empty idf table", ErrInvalidVocabulary)
	}
	if len(vocab) != len(idf) {
		return nil, fmt.Errorf("%w: %d terms but %d idf weights", ErrInvalidVocabulary, len(vocab), len(idf))
	}
	for i, w := range idf {
		if math.IsNaN(w) || math.IsInf(w, 0) || w <= 0 {
			return nil, fmt.Errorf("%w: idf[%d] = %v", ErrInvalidVocabulary, i, w)
		}
	}

	owner := make([]string, len(idf))
	copied := make(map[string]int, len(vocab))
	for term, idx := range vocab {
		if term == "" {
			return nil, fmt.Errorf("%w: empty term", ErrInvalidVocabulary)
		}
		if idx < 0 || idx >= len(idf) {
			return nil, fmt.Errorf("%w: term %q has index %d outside [0,%d)", ErrInvalidVocabulary, term, idx, len(idf))
		}
		if owner[idx] != "" {
			return nil, fmt.Errorf("%w: terms %q and %q share index %d", ErrInvalidVocabulary, owner[idx], term, idx)
		}
		owner[idx] = term
		copied[term] = idx
	}

	weights := make([]float64, len(idf))
	copy(weights, idf)
	return &Vectorizer{vocab: copied, idf: weights}, nil
}

// Dim is the fixed dimensionality of every vector this Vectorizer produces.
func (v *Vectorizer) Dim() int {
	return len(v.idf)
}

// Index returns the feature index of term.
func (v *Vectorizer) Index(term string) (int, bool) {
	idx, ok := v.vocab[term]
	return idx, ok
}

// IDF returns the weight of the feature at idx.
func (v *Vectorizer) IDF(idx int) float64 {
	return v.idf[idx]
}

// Vectorize counts in-vocabulary tokens, weights the counts by IDF and scales
// the result to unit length. Unknown tokens are ignored.
func (v *Vectorizer) Vectorize(tokens []string) Vector {
	counts := make(map[int]int)
	for _, tok := range tokens {
		if idx, ok := v.vocab[tok]; ok {
			counts[idx]++
		}
	}

	out := Vector{Dim: len(v.idf)}
	if len(counts) == 0 {
		return out
	}

	out.Indices = make([]int, 0, len(counts))
	for idx := range counts {
		out.Indices = append(out.Indices, idx)
	}
	sort.Ints(out.Indices)

	out.Values = make([]float64, len(out.Indices))
	var sum float64
	for i, idx := range out.Indices {
		w := float64(counts[idx]) * v.idf[idx]
		out.Values[i] = w
		sum += w * w
	}

	norm := math.Sqrt(sum)
	for i := range out.Values {
		out.Values[i] /= norm
	}
	return out
}
