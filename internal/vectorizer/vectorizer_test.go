package vectorizer_test

import (
	"math"
	"testing"

	"github.com/DeafMist/news-credibility/internal/processing"
	"github.com/DeafMist/news-credibility/internal/vectorizer"
	"github.com/stretchr/testify/require"
)

func newTestVectorizer(t *testing.T) *vectorizer.Vectorizer {
	t.Helper()
	v, err := vectorizer.New(
		map[string]int{"breaking": 0, "senate": 1, "hoax": 2, "vaccine": 3},
		[]float64{1.5, 2.0, 3.0, 1.0},
	)
	require.NoError(t, err)
	return v
}

func TestVectorizeWeightsAndNormalizes(t *testing.T) {
	v := newTestVectorizer(t)

	got := v.Vectorize([]string{"hoax", "senate", "hoax", "unknown"})
	require.Equal(t, 4, got.Dim)
	require.Equal(t, []int{1, 2}, got.Indices)

	// tf*idf: senate 1*2 = 2, hoax 2*3 = 6, norm sqrt(40)
	norm := math.Sqrt(40)
	require.InDelta(t, 2/norm, got.Values[0], 1e-12)
	require.InDelta(t, 6/norm, got.Values[1], 1e-12)
	require.InDelta(t, 1.0, got.Norm(), 1e-12)
}

func TestVectorizeSingleTermConcentrates(t *testing.T) {
	v := newTestVectorizer(t)

	tokens := make([]string, 50)
	for i := range tokens {
		tokens[i] = "breaking"
	}
	got := v.Vectorize(tokens)
	require.Equal(t, []int{0}, got.Indices)
	require.InDelta(t, 1.0, got.Values[0], 1e-12)
}

func TestVectorizeOutOfVocabulary(t *testing.T) {
	v := newTestVectorizer(t)

	got := v.Vectorize([]string{"zebra", "quantum"})
	require.True(t, got.IsZero())
	require.Equal(t, 4, got.Dim)
	require.Zero(t, got.Norm())

	require.True(t, v.Vectorize(nil).IsZero())
}

func TestVectorizeIdempotent(t *testing.T) {
	v := newTestVectorizer(t)
	body := "Breaking: senate vaccine hoax, breaking again; senate hoax hoax."
	n := processing.DefaultNormalizer()

	first := v.Vectorize(n.Normalize(body))
	second := v.Vectorize(n.Normalize(body))
	require.Equal(t, first.Indices, second.Indices)
	require.Len(t, second.Values, len(first.Values))
	for i := range first.Values {
		require.Equal(t, math.Float64bits(first.Values[i]), math.Float64bits(second.Values[i]))
	}
}

func TestLookup(t *testing.T) {
	v := newTestVectorizer(t)
	require.Equal(t, 4, v.Dim())

	idx, ok := v.Index("hoax")
	require.True(t, ok)
	require.Equal(t, 2, idx)
	require.Equal(t, 3.0, v.IDF(idx))

	_, ok = v.Index("missing")
	require.False(t, ok)
}

func TestNewRejectsInvalidTables(t *testing.T) {
	tests := []struct {
		name  string
		vocab map[string]int
		idf   []float64
	}{
		{name: "empty", vocab: map[string]int{}, idf: nil},
		{name: "size mismatch", vocab: map[string]int{"a": 0}, idf: []float64{1, 1}},
		{name: "index out of range", vocab: map[string]int{"a": 0, "b": 2}, idf: []float64{1, 1}},
		{name: "duplicate index", vocab: map[string]int{"a": 0, "b": 0}, idf: []float64{1, 1}},
		{name: "negative idf", vocab: map[string]int{"a": 0}, idf: []float64{-1}},
		{name: "nan idf", vocab: map[string]int{"a": 0}, idf: []float64{math.NaN()}},
		{name: "empty term", vocab: map[string]int{"": 0}, idf: []float64{1}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := vectorizer.New(tt.vocab, tt.idf)
			require.ErrorIs(t, err, vectorizer.ErrInvalidVocabulary)
		})
	}
}

func TestNewCopiesInputs(t *testing.T) {
	vocab := map[string]int{"a": 0}
	idf := []float64{2}
	v, err := vectorizer.New(vocab, idf)
	require.NoError(t, err)

	vocab["b"] = 0
	idf[0] = 100
	_, ok := v.Index("b")
	require.False(t, ok)
	require.Equal(t, 2.0, v.IDF(0))
}
