package models

import (
	"strings"
	"time"
)

// Source tells which kind of input a prediction was made from.
type Source string

const (
	SourceText Source = "text"
	SourceURL  Source = "url"
)

// Input is either a TextInput or a URLInput.
type Input interface {
	Source() Source
	Value() string
	isInput()
}

// TextInput is article text submitted directly.
type TextInput string

func (TextInput) Source() Source  { return SourceText }
func (t TextInput) Value() string { return string(t) }
func (TextInput) isInput()        {}

// URLInput is the address of an article to fetch.
type URLInput string

func (URLInput) Source() Source  { return SourceURL }
func (u URLInput) Value() string { return string(u) }
func (URLInput) isInput()        {}

// Article is the text the classifier sees for one input.
type Article struct {
	Title string
	Body  string
	// WordCount is the number of whitespace-delimited words in Body.
	WordCount int
}

// NewArticle fills WordCount from body.
func NewArticle(title, body string) *Article {
	return &Article{Title: title, Body: body, WordCount: WordCount(body)}
}

// WordCount counts whitespace-delimited words. The minimum-length check runs
// on this count.
func WordCount(text string) int {
	return len(strings.Fields(text))
}

// Verdict is the classification record stored in Elasticsearch.
type Verdict struct {
	ID           string    `json:"id"`
	Title        string    `json:"title"`
	Text         string    `json:"text"`
	URL          string    `json:"url,omitempty"`
	Source       string    `json:"source"`
	InputSource  Source    `json:"input_source"`
	Label        string    `json:"label"`
	Prediction   string    `json:"prediction"`
	Confidence   float64   `json:"confidence_score"`
	TextLength   int       `json:"text_length"`
	ModelVersion string    `json:"model_version"`
	Links        []string  `json:"links,omitempty"`
	PublishedAt  time.Time `json:"published_at"`
	Timestamp    time.Time `json:"timestamp"`
}
