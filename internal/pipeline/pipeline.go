// Package pipeline runs one prediction: extract, validate, normalize,
// vectorize, classify, assemble. It stops at the first failing stage and
// reports it as a *Error.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"strings"
	"sync/atomic"
	"time"
	"unicode/utf8"

	"github.com/DeafMist/news-credibility/internal/artifact"
	"github.com/DeafMist/news-credibility/internal/classifier"
	"github.com/DeafMist/news-credibility/internal/extract"
	"github.com/DeafMist/news-credibility/internal/models"
	"github.com/DeafMist/news-credibility/internal/processing"
	"github.com/DeafMist/news-credibility/internal/retry"
)

// MinWords is the smallest article the classifier accepts.
const MinWords = 10

const successMessage = "Credibility analysis completed successfully."

// Stage names a step of the prediction state machine.
type Stage string

const (
	StageReceived   Stage = "received"
	StageExtracted  Stage = "extracted"
	StageValidated  Stage = "validated"
	StageNormalized Stage = "normalized"
	StageVectorized Stage = "vectorized"
	StageClassified Stage = "classified"
	StageAssembled  Stage = "assembled"
)

// Extractor resolves an input to article text.
type Extractor interface {
	Extract(ctx context.Context, in models.Input) (*models.Article, error)
}

// Result is an immutable prediction.
type Result struct {
	Label        classifier.Label
	Prediction   string
	Confidence   float64
	Probability  float64
	Source       models.Source
	Title        string
	TextLength   int
	WordCount    int
	Message      string
	ModelVersion string
}

// Pipeline is safe for concurrent use. Artifacts are published once via Load.
type Pipeline struct {
	extractor Extractor
	minWords  int
	bundle    atomic.Pointer[artifact.Bundle]
	log       *slog.Logger
}

// New builds a pipeline that is not ready until Load succeeds. minWords <= 0 selects MinWords.
func New(extractor Extractor, minWords int, logger *slog.Logger) *Pipeline {
	if minWords <= 0 {
		minWords = MinWords
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Pipeline{extractor: extractor, minWords: minWords, log: logger}
}

// Load publishes the artifacts. It succeeds at most once.
func (p *Pipeline) Load(b *artifact.Bundle) error {
	if b == nil || b.Normalizer == nil || b.Vectorizer == nil || b.Model == nil {
		return fmt.Errorf("%w: incomplete bundle", artifact.ErrArtifactLoad)
	}
	if !p.bundle.CompareAndSwap(nil, b) {
		return errors.New("artifacts already loaded")
	}
	p.log.Info("artifacts loaded",
		slog.String("model", b.Name),
		slog.String("version", b.Version),
		slog.Int("features", b.Vectorizer.Dim()),
		slog.String("positive_label", string(b.Model.Positive())),
	)
	return nil
}

// LoadFile reads the artifact manifest at path, retrying under policy until
// the files appear and validate, then publishes them.
func (p *Pipeline) LoadFile(ctx context.Context, path string, expectedDim int, policy retry.Policy) error {
	var b *artifact.Bundle
	err := retry.Do(ctx, p.log, "load artifacts", policy, func(context.Context) error {
		var err error
		b, err = artifact.Load(path, expectedDim)
		return err
	})
	if err != nil {
		return err
	}
	return p.Load(b)
}

// Ready reports whether predictions can be served.
func (p *Pipeline) Ready() bool {
	return p.bundle.Load() != nil
}

// ModelVersion is "<name>@<version>" of the loaded artifacts, or "" before Load.
func (p *Pipeline) ModelVersion() string {
	b := p.bundle.Load()
	if b == nil {
		return ""
	}
	return b.Name + "@" + b.Version
}

// NewInput validates raw request fields. Exactly one of text and rawURL must
// be non-blank; a URL must be absolute http or https.
func NewInput(text, rawURL string) (models.Input, error) {
	text = strings.TrimSpace(text)
	rawURL = strings.TrimSpace(rawURL)

	switch {
	case text == "" && rawURL == "":
		return nil, invalid("Please provide either news text or a valid URL.")
	case text != "" && rawURL != "":
		return nil, invalid("Please provide either news text or a URL, not both.")
	case text != "":
		return models.TextInput(text), nil
	}

	u, err := url.Parse(rawURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, invalid("The URL must be an absolute http or https address.")
	}
	return models.URLInput(rawURL), nil
}

// Predict runs every stage for in. It never returns a partial result.
func (p *Pipeline) Predict(ctx context.Context, in models.Input) (*Result, error) {
	start := time.Now()
	if in == nil || strings.TrimSpace(in.Value()) == "" {
		return nil, invalid("Please provide either news text or a valid URL.")
	}

	b := p.bundle.Load()
	if b == nil {
		return nil, &Error{Kind: KindArtifactLoad, Stage: StageReceived, Message: "The model is not loaded yet; try again later."}
	}

	article, err := p.extractor.Extract(ctx, in)
	if err != nil {
		return nil, p.extractionError(err)
	}
	stage := StageExtracted

	if article.WordCount < p.minWords {
		return nil, &Error{
			Kind:    KindTooShort,
			Stage:   stage,
			Message: fmt.Sprintf("Input text is too short for analysis: got %d words, need at least %d.", article.WordCount, p.minWords),
		}
	}
	stage = StageValidated

	tokens := b.Normalizer.Normalize(processing.CombineTitleBody(article.Title, article.Body))
	stage = StageNormalized
	vec := b.Vectorizer.Vectorize(tokens)
	stage = StageVectorized

	pred, err := b.Model.Classify(vec)
	if err != nil {
		p.log.Error("classifier invariant violated",
			slog.String("model", b.Name+"@"+b.Version),
			slog.Int("vector_dim", vec.Dim),
			slog.Int("model_dim", b.Model.Dim()),
			slog.Any("err", err),
		)
		return nil, &Error{Kind: KindInternal, Stage: stage, Message: "Internal error while scoring the article.", Err: err}
	}
	stage = StageClassified

	res := &Result{
		Label:        pred.Label,
		Prediction:   pred.Label.DisplayName(),
		Confidence:   pred.Confidence,
		Probability:  pred.Probability,
		Source:       in.Source(),
		Title:        article.Title,
		TextLength:   utf8.RuneCountInString(article.Body),
		WordCount:    article.WordCount,
		Message:      successMessage,
		ModelVersion: b.Name + "@" + b.Version,
	}
	stage = StageAssembled

	p.log.Debug("prediction complete",
		slog.String("stage", string(stage)),
		slog.String("source", string(res.Source)),
		slog.String("label", string(res.Label)),
		slog.Float64("confidence", res.Confidence),
		slog.Int("tokens", len(tokens)),
		slog.Int("features", len(vec.Indices)),
		slog.Duration("took", time.Since(start)),
	)
	return res, nil
}

func (p *Pipeline) extractionError(err error) *Error {
	switch {
	case errors.Is(err, extract.ErrFetchFailed):
		return &Error{Kind: KindFetchFailed, Stage: StageReceived, Message: "Unable to fetch the provided URL.", Err: err}
	case errors.Is(err, extract.ErrParseFailed):
		return &Error{Kind: KindParseFailed, Stage: StageReceived, Message: "Unable to extract valid article content from the provided URL.", Err: err}
	default:
		p.log.Error("unexpected extraction error", slog.Any("err", err))
		return &Error{Kind: KindInternal, Stage: StageReceived, Message: "Internal error while reading the input.", Err: err}
	}
}

func invalid(msg string) *Error {
	return &Error{Kind: KindInvalidInput, Stage: StageReceived, Message: msg}
}
