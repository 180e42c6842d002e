// Package extract turns pipeline inputs into article text. Text input passes
// through untouched; URL input is fetched once and reduced to its main article.
package extract

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/temoto/robotstxt"
	"golang.org/x/net/html/charset"

	"github.com/DeafMist/news-credibility/internal/models"
)

var (
	// ErrFetchFailed covers transport errors, timeouts, non-200 responses and robots.txt refusals.
	ErrFetchFailed = errors.New("fetch failed")
	// ErrParseFailed means the page was fetched but held no article text.
	ErrParseFailed = errors.New("no article content found")
)

const (
	maxRedirects     = 10
	defaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64)"
)

// Options tune URL fetching.
type Options struct {
	Timeout       time.Duration
	MaxBytes      int64
	UserAgent     string
	RespectRobots bool
}

// Extractor resolves inputs to articles. It holds no per-request state.
type Extractor struct {
	client *http.Client
	opts   Options
	log    *slog.Logger
}

// New builds an Extractor with its own HTTP client bounded by opts.Timeout.
func New(opts Options, logger *slog.Logger) *Extractor {
	client := &http.Client{
		Timeout: opts.Timeout,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) >= maxRedirects {
				return fmt.Errorf("stopped after %d redirects", maxRedirects)
			}
			return nil
		},
	}
	return NewWithClient(client, opts, logger)
}

// NewWithClient builds an Extractor around an existing client.
func NewWithClient(client *http.Client, opts Options, logger *slog.Logger) *Extractor {
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}
	if opts.MaxBytes <= 0 {
		opts.MaxBytes = 5 << 20
	}
	if opts.UserAgent == "" {
		opts.UserAgent = defaultUserAgent
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Extractor{client: client, opts: opts, log: logger}
}

// Extract returns the article for in. Text is used verbatim with an empty title.
func (e *Extractor) Extract(ctx context.Context, in models.Input) (*models.Article, error) {
	switch v := in.(type) {
	case models.TextInput:
		return models.NewArticle("", string(v)), nil
	case models.URLInput:
		return e.fromURL(ctx, string(v))
	default:
		return nil, fmt.Errorf("unsupported input %T", in)
	}
}

func (e *Extractor) fromURL(ctx context.Context, raw string) (*models.Article, error) {
	pageURL, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: parse url: %w", ErrFetchFailed, err)
	}

	if e.opts.RespectRobots && !e.allowedByRobots(ctx, pageURL) {
		return nil, fmt.Errorf("%w: %s is disallowed by robots.txt", ErrFetchFailed, pageURL.Redacted())
	}

	start := time.Now()
	page, err := e.fetch(ctx, pageURL)
	if err != nil {
		e.log.Debug("fetch failed", slog.String("url", pageURL.Redacted()), slog.Any("err", err))
		return nil, err
	}
	e.log.Debug("page fetched",
		slog.String("url", pageURL.Redacted()),
		slog.Int("bytes", len(page)),
		slog.Duration("took", time.Since(start)),
	)

	title, body := parseArticle(page, pageURL)
	if body == "" {
		return nil, fmt.Errorf("%w at %s", ErrParseFailed, pageURL.Redacted())
	}
	return models.NewArticle(title, body), nil
}

func (e *Extractor) fetch(ctx context.Context, pageURL *url.URL) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, e.opts.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL.String(), nil)
	if err != nil {
		return "", fmt.Errorf("%w: build request: %w", ErrFetchFailed, err)
	}
	req.Header.Set("User-Agent", e.opts.UserAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml")

	resp, err := e.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrFetchFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("%w: HTTP %d", ErrFetchFailed, resp.StatusCode)
	}

	limited := io.LimitReader(resp.Body, e.opts.MaxBytes)
	utf8Reader, err := charset.NewReader(limited, resp.Header.Get("Content-Type"))
	if err != nil {
		utf8Reader = limited
	}

	body, err := io.ReadAll(utf8Reader)
	if err != nil {
		return "", fmt.Errorf("%w: read body: %w", ErrFetchFailed, err)
	}
	return string(body), nil
}

// allowedByRobots fails open: an unreachable or malformed robots.txt allows the fetch.
func (e *Extractor) allowedByRobots(ctx context.Context, pageURL *url.URL) bool {
	robotsURL := (&url.URL{Scheme: pageURL.Scheme, Host: pageURL.Host, Path: "/robots.txt"}).String()

	ctx, cancel := context.WithTimeout(ctx, e.opts.Timeout)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, robotsURL, nil)
	if err != nil {
		return true
	}
	req.Header.Set("User-Agent", e.opts.UserAgent)

	resp, err := e.client.Do(req)
	if err != nil {
		e.log.Debug("robots.txt unavailable", slog.String("url", robotsURL), slog.Any("err", err))
		return true
	}
	defer resp.Body.Close()

	data, err := robotstxt.FromResponse(resp)
	if err != nil {
		return true
	}

	path := pageURL.EscapedPath()
	if path == "" {
		path = "/"
	}
	return data.TestAgent(path, e.opts.UserAgent)
}

func normalizeText(text string) string {
	return strings.Join(strings.Fields(text), " ")
}
