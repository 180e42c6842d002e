package extract_test

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/DeafMist/news-credibility/internal/extract"
	"github.com/DeafMist/news-credibility/internal/models"
	"github.com/DeafMist/news-credibility/internal/processing"
)

const articlePage = `<!DOCTYPE html>
<html>
<head>
<title>Council Votes On Budget | City Paper</title>
<meta property="og:title" content="Council approves budget">
</head>
<body>
<nav><p>Home</p><p>World</p></nav>
<article>
<h1>Council approves budget</h1>
<p>The city council voted on Tuesday to approve the annual budget after a lengthy debate about spending on schools and roads.</p>
<p>Members of the public attended the meeting and several residents spoke in favour of additional funding for libraries.</p>
<p>The mayor said the budget balances the needs of residents with the long term financial health of the city.</p>
</article>
</body>
</html>`

func serve(t *testing.T, contentType, body string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", contentType)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func newExtractor(srv *httptest.Server, opts extract.Options) *extract.Extractor {
	return extract.NewWithClient(srv.Client(), opts, nil)
}

func TestExtractTextPassThrough(t *testing.T) {
	e := extract.New(extract.Options{}, nil)
	text := "  Breaking news: markets fell sharply today.  "

	got, err := e.Extract(context.Background(), models.TextInput(text))
	require.NoError(t, err)
	require.Equal(t, text, got.Body)
	require.Equal(t, "", got.Title)
	require.Equal(t, 6, got.WordCount)
}

func TestExtractURL(t *testing.T) {
	srv := serve(t, "text/html; charset=utf-8", articlePage)
	e := newExtractor(srv, extract.Options{Timeout: 5 * time.Second})

	got, err := e.Extract(context.Background(), models.URLInput(srv.URL+"/news/budget"))
	require.NoError(t, err)
	require.NotEmpty(t, got.Title)
	require.Contains(t, got.Body, "voted on Tuesday to approve")
	require.Contains(t, got.Body, "long term financial health")
	require.GreaterOrEqual(t, got.WordCount, 50)
	require.Equal(t, models.WordCount(got.Body), got.WordCount)
}

func TestExtractURLHTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	_, err := newExtractor(srv, extract.Options{}).Extract(context.Background(), models.URLInput(srv.URL))
	require.ErrorIs(t, err, extract.ErrFetchFailed)
}

func TestExtractURLUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	addr := srv.URL
	srv.Close()

	e := extract.New(extract.Options{Timeout: 2 * time.Second}, nil)
	_, err := e.Extract(context.Background(), models.URLInput(addr+"/story"))
	require.ErrorIs(t, err, extract.ErrFetchFailed)
}

func TestExtractURLTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-time.After(2 * time.Second):
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()

	e := newExtractor(srv, extract.Options{Timeout: 50 * time.Millisecond})
	_, err := e.Extract(context.Background(), models.URLInput(srv.URL))
	require.ErrorIs(t, err, extract.ErrFetchFailed)
}

func TestExtractURLCanceledContext(t *testing.T) {
	srv := serve(t, "text/html", articlePage)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := newExtractor(srv, extract.Options{}).Extract(ctx, models.URLInput(srv.URL))
	require.ErrorIs(t, err, extract.ErrFetchFailed)
}

func TestExtractURLNoArticle(t *testing.T) {
	srv := serve(t, "text/html", `<html><head><script>var x = 1;</script></head><body><script>track()</script></body></html>`)

	_, err := newExtractor(srv, extract.Options{}).Extract(context.Background(), models.URLInput(srv.URL))
	require.ErrorIs(t, err, extract.ErrParseFailed)
}

func TestExtractURLDecodesCharset(t *testing.T) {
	page := "<html><body><article><p>The caf\xe9 on Main Street reopened this week after renovation work lasting several months.</p></article></body></html>"
	srv := serve(t, "text/html; charset=windows-1252", page)

	got, err := newExtractor(srv, extract.Options{}).Extract(context.Background(), models.URLInput(srv.URL))
	require.NoError(t, err)
	require.Contains(t, got.Body, "café")
}

func TestExtractURLEntityEncodingIsTransparent(t *testing.T) {
	const tmpl = `<html><body><article>
<p>Smith %s Jones announced the merger on Monday, saying the combined company will employ four thousand people.</p>
<p>Analysts said the deal %s its timing surprised investors who expected a longer review by regulators.</p>
</article></body></html>`
	plain := serve(t, "text/html", fmt.Sprintf(tmpl, "&", "&"))
	encoded := serve(t, "text/html", fmt.Sprintf(tmpl, "&amp;", "&#38;"))

	a, err := newExtractor(plain, extract.Options{}).Extract(context.Background(), models.URLInput(plain.URL))
	require.NoError(t, err)
	b, err := newExtractor(encoded, extract.Options{}).Extract(context.Background(), models.URLInput(encoded.URL))
	require.NoError(t, err)

	n := processing.DefaultNormalizer()
	require.Equal(t, n.Normalize(a.Body), n.Normalize(b.Body))
	require.NotContains(t, n.Normalize(b.Body), "amp")
}

func TestExtractURLRespectsRobots(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/robots.txt", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("User-agent: *\nDisallow: /private\n"))
	})
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte(articlePage))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	e := newExtractor(srv, extract.Options{RespectRobots: true})

	_, err := e.Extract(context.Background(), models.URLInput(srv.URL+"/private/story"))
	require.ErrorIs(t, err, extract.ErrFetchFailed)

	got, err := e.Extract(context.Background(), models.URLInput(srv.URL+"/public/story"))
	require.NoError(t, err)
	require.NotEmpty(t, got.Body)
}
