package processing_test

import (
	"testing"
	"time"

	"github.com/DeafMist/news-credibility/internal/processing"
	"github.com/stretchr/testify/require"
)

func TestCleanText(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{name: "empty", input: "", want: ""},
		{name: "punctuation", input: "Hello!!!   World", want: "hello world"},
		{name: "collapse whitespace", input: "foo\n\nbar\t baz", want: "foo bar baz"},
		{name: "remove urls", input: "Check https://example.com for info", want: "check for info"},
		{name: "remove www urls", input: "Visit www.site.org now", want: "visit now"},
		{name: "remove tags", input: "<b>Bold</b> move", want: "bold move"},
		{name: "remove digits", input: "Top 10 stories of 2024", want: "top stories of"},
		{name: "non ascii letters", input: "café déjà vu", want: "caf d j vu"},
		{name: "nbsp ends url", input: "Source: http://x.com/a\u00a0Officials confirmed the senate report", want: "source officials confirmed the senate report"},
		{name: "vertical tab ends url", input: "read http://x.com/a\vsenate report now", want: "read senate report now"},
		{name: "line separator ends url", input: "see www.x.com\u2028officials said", want: "see officials said"},
		{name: "zero width space inside url", input: "http://x.com/a\u200bword kept", want: "kept"},
		{name: "unicode spaces squeezed", input: "senate\u3000\u2009report\u0085filed", want: "senate report filed"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := processing.CleanText(tt.input); got != tt.want {
				t.Fatalf("CleanText(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestNormalize(t *testing.T) {
	n := processing.DefaultNormalizer()

	tests := []struct {
		name  string
		input string
		want  processing.Tokens
	}{
		{
			name:  "stop words dropped",
			input: "The quick brown fox jumps over the lazy dog",
			want:  processing.Tokens{"quick", "brown", "fox", "jumps", "lazy", "dog"},
		},
		{
			name:  "order and duplicates kept",
			input: "Breaking breaking NEWS news",
			want:  processing.Tokens{"breaking", "breaking", "news", "news"},
		},
		{
			name:  "contractions split",
			input: "They don't know",
			want:  processing.Tokens{"know"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, n.Normalize(tt.input))
		})
	}

	require.Equal(t, processing.Tokens{"source", "officials", "confirmed", "senate", "report"},
		n.Normalize("Source: https://x.com/a\u00a0Officials confirmed the senate report"))
	require.Empty(t, n.Normalize(""))
	require.Empty(t, n.Normalize("123 456 !!!"))
}

func TestNormalizeMinTokenLength(t *testing.T) {
	n := processing.NewNormalizer(nil, 2)
	require.Equal(t, 2, n.MinTokenLength())
	require.Equal(t, processing.Tokens{"marks", "spot"}, n.Normalize("x marks a b spot"))
}

func TestNormalizeCustomStopWords(t *testing.T) {
	n := processing.NewNormalizer([]string{"Fox"}, 0)
	require.Equal(t, 1, n.MinTokenLength())
	require.True(t, n.IsStopWord("fox"))
	require.Equal(t, processing.Tokens{"the", "ran"}, n.Normalize("the fox ran"))
}

func TestNormalizeDeterministic(t *testing.T) {
	body := "Officials said on Tuesday that 3 new reports, published at https://example.com, were <em>false</em>."
	first := processing.DefaultNormalizer().Normalize(body)
	for i := 0; i < 5; i++ {
		require.Equal(t, first, processing.DefaultNormalizer().Normalize(body))
	}
	require.Equal(t, processing.Tokens{"officials", "said", "tuesday", "new", "reports", "published", "false"}, first)
}

func TestBuildDocumentID(t *testing.T) {
	ts := time.Date(2024, 2, 3, 4, 5, 6, 0, time.UTC)
	id1 := processing.BuildDocumentID("title", "text", ts)
	id2 := processing.BuildDocumentID("title", "text", ts)
	require.NotEmpty(t, id1)
	require.Equal(t, id1, id2)
	require.NotEqual(t, id1, processing.BuildDocumentID("title", "other", ts))
}

func TestCombineTitleBody(t *testing.T) {
	require.Equal(t, "Title body", processing.CombineTitleBody("  Title ", "body "))
	require.Equal(t, "body", processing.CombineTitleBody("", "body"))
	require.Equal(t, "", processing.CombineTitleBody(" ", " "))
}

func TestExtractURLs(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  []string
	}{
		{name: "empty", input: "", want: nil},
		{name: "no urls", input: "Hello world", want: nil},
		{name: "single url", input: "Check https://example.com for more", want: []string{"https://example.com"}},
		{name: "multiple urls", input: "Go to https://example.com or http://test.org now", want: []string{"https://example.com", "http://test.org"}},
		{name: "duplicate urls", input: "https://example.com and https://example.com again", want: []string{"https://example.com"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, processing.ExtractURLs(tt.input))
		})
	}
}

func TestRemoveURLs(t *testing.T) {
	require.Equal(t, "Check   for more", processing.RemoveURLs("Check https://example.com for more"))
	require.Equal(t, "Hello world", processing.RemoveURLs("Hello world"))
}

func TestGenerateTitleFromText(t *testing.T) {
	tests := []struct {
		name     string
		text     string
		maxWords int
		want     string
	}{
		{name: "empty", text: "", maxWords: 10, want: ""},
		{name: "single sentence", text: "Senate passes the bill. More later.", maxWords: 10, want: "Senate passes the bill"},
		{name: "long text truncated", text: "one two three four five six seven", maxWords: 5, want: "one two three four five..."},
		{name: "question mark", text: "Is this real? Read on", maxWords: 10, want: "Is this real"},
		{name: "url ignored", text: "See https://x.com/a.b now", maxWords: 10, want: "See now"},
		{name: "unlimited words", text: "Markets rally on earnings news", maxWords: 0, want: "Markets rally on earnings news"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, processing.GenerateTitleFromText(tt.text, tt.maxWords))
		})
	}
}
