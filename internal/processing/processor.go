package processing

import (
	"crypto/sha1"
	"encoding/hex"
	"regexp"
	"strings"
	"time"
)

// RulesVersion identifies the cleaning and tokenization rules implemented here.
// Vectorizer artifacts record the version they were fitted with and loading
// refuses any other value.
const RulesVersion = "v1"

var urlRegex = regexp.MustCompile(`https?://[^\s]+`)

// space is the full Unicode whitespace set. RE2's \s is ASCII-only and lacks \v.
const space = `\s\v\x{1c}-\x{1f}\x{85}\p{Z}`

var (
	looseURL   = regexp.MustCompile(`(?:http|www|https)[^` + space + `]+`)
	htmlTag    = regexp.MustCompile(`<.*?>`)
	nonLetter  = regexp.MustCompile(`[^a-z` + space + `]`)
	whitespace = regexp.MustCompile(`[` + space + `]+`)
)

// Tokens is an ordered token sequence. Duplicates are kept because term
// frequency matters to the vectorizer.
type Tokens []string

// Normalizer turns article text into tokens. A Normalizer is immutable and
// safe for concurrent use.
type Normalizer struct {
	stopWords      map[string]struct{}
	minTokenLength int
}

// NewNormalizer builds a Normalizer from a stop-word list and a minimum token
// length. An empty list selects the built-in English list; lengths below 1
// are treated as 1.
func NewNormalizer(stopWords []string, minTokenLength int) *Normalizer {
	if len(stopWords) == 0 {
		stopWords = EnglishStopWords
	}
	if minTokenLength < 1 {
		minTokenLength = 1
	}
	set := make(map[string]struct{}, len(stopWords))
	for _, w := range stopWords {
		set[strings.ToLower(w)] = struct{}{}
	}
	return &Normalizer{stopWords: set, minTokenLength: minTokenLength}
}

// DefaultNormalizer uses the English stop-word list and keeps every non-empty token.
func DefaultNormalizer() *Normalizer {
	return NewNormalizer(nil, 1)
}

// Normalize lowercases body, strips URLs, markup and anything that is not a
// letter, splits on whitespace and drops short tokens and stop words.
func (n *Normalizer) Normalize(body string) Tokens {
	fields := strings.Fields(CleanText(body))
	tokens := make(Tokens, 0, len(fields))
	for _, token := range fields {
		if len(token) < n.minTokenLength {
			continue
		}
		if n.IsStopWord(token) {
			continue
		}
		tokens = append(tokens, token)
	}
	return tokens
}

// IsStopWord reports whether token is discarded by Normalize.
func (n *Normalizer) IsStopWord(token string) bool {
	_, ok := n.stopWords[token]
	return ok
}

// MinTokenLength returns the shortest token Normalize keeps.
func (n *Normalizer) MinTokenLength() int {
	return n.minTokenLength
}

// ExtractURLs extracts all HTTP(S) URLs from the input text.
func ExtractURLs(input string) []string {
	if input == "" {
		return nil
	}
	matches := urlRegex.FindAllString(input, -1)
	if len(matches) == 0 {
		return nil
	}
	// Remove duplicates while preserving order
	seen := make(map[string]struct{})
	var urls []string
	for _, url := range matches {
		if _, ok := seen[url]; !ok {
			seen[url] = struct{}{}
			urls = append(urls, url)
		}
	}
	return urls
}

// RemoveURLs removes all URLs from the input text.
func RemoveURLs(input string) string {
	return urlRegex.ReplaceAllString(input, " ")
}

// CleanText lowercases input, replaces URLs, tags and non-letters with spaces
// and squeezes whitespace. It is the string form of the token stream.
func CleanText(input string) string {
	if input == "" {
		return ""
	}
	text := strings.ToLower(input)
	text = looseURL.ReplaceAllString(text, " ")
	text = htmlTag.ReplaceAllString(text, " ")
	text = nonLetter.ReplaceAllString(text, " ")
	text = whitespace.ReplaceAllString(text, " ")
	return strings.TrimSpace(text)
}

// CombineTitleBody joins a headline and its article text into classifier input.
func CombineTitleBody(title, body string) string {
	return strings.TrimSpace(strings.TrimSpace(title) + " " + strings.TrimSpace(body))
}

// BuildDocumentID hashes the most stable fields to form deterministic IDs.
func BuildDocumentID(title, text string, ts time.Time) string {
	s := sha1.Sum([]byte(title + "|" + text + "|" + ts.UTC().Format(time.RFC3339)))
	return hex.EncodeToString(s[:])
}

// GenerateTitleFromText creates a title from the first sentence or first N words of text.
// Returns empty string if text is empty.
func GenerateTitleFromText(text string, maxWords int) string {
	if text == "" {
		return ""
	}

	firstSentence := RemoveURLs(text)
	if end := strings.IndexAny(firstSentence, ".!?"); end > 0 {
		firstSentence = firstSentence[:end]
	}

	words := strings.Fields(firstSentence)
	if len(words) == 0 {
		return ""
	}

	if maxWords > 0 && len(words) > maxWords {
		return strings.Join(words[:maxWords], " ") + "..."
	}

	return strings.Join(words, " ")
}
