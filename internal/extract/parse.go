package extract

import (
	"net/url"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/go-shiori/go-readability"
	"golang.org/x/net/html"
)

var blockTag = regexp.MustCompile(`(?i)<(/?)(div|p|br|li|td|tr|h[1-6]|blockquote|section|article)([^>]*)>`)

const boilerplate = "script, style, noscript, template, nav, header, footer, aside, form, iframe"

// parseArticle picks whichever of readability and the paragraph-density
// heuristic recovers more words. Entities are decoded by the HTML parser.
func parseArticle(page string, pageURL *url.URL) (title, body string) {
	title, body = readabilityArticle(page, pageURL)

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(page))
	if err != nil {
		return title, body
	}
	if title == "" {
		title = pageTitle(doc)
	}
	if fallback := densestParagraphs(doc); len(strings.Fields(fallback)) > len(strings.Fields(body)) {
		body = fallback
	}
	return title, body
}

func readabilityArticle(page string, pageURL *url.URL) (string, string) {
	article, err := readability.FromReader(strings.NewReader(page), pageURL)
	if err != nil {
		return "", ""
	}
	title := normalizeText(article.Title)

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(addBlockSpacing(article.Content)))
	if err != nil {
		return title, ""
	}
	return title, normalizeText(doc.Text())
}

// pageTitle prefers og:title, then the first h1, then <title>.
func pageTitle(doc *goquery.Document) string {
	if og, ok := doc.Find(`meta[property="og:title"]`).Attr("content"); ok {
		if og = normalizeText(og); og != "" {
			return og
		}
	}
	if h1 := normalizeText(doc.Find("h1").First().Text()); h1 != "" {
		return h1
	}
	return normalizeText(doc.Find("title").First().Text())
}

// densestParagraphs returns the paragraphs of the element whose direct <p>
// children hold the most text. Boilerplate containers are dropped first.
func densestParagraphs(doc *goquery.Document) string {
	doc.Find(boilerplate).Remove()

	type block struct {
		texts []string
		size  int
	}
	var order []*html.Node
	blocks := make(map[*html.Node]*block)

	doc.Find("p").Each(func(_ int, p *goquery.Selection) {
		text := normalizeText(p.Text())
		if text == "" {
			return
		}
		parent := p.Parent()
		if parent.Length() == 0 {
			return
		}
		node := parent.Get(0)
		b, ok := blocks[node]
		if !ok {
			b = &block{}
			blocks[node] = b
			order = append(order, node)
		}
		b.texts = append(b.texts, text)
		b.size += len(text)
	})

	var best *block
	for _, node := range order {
		if b := blocks[node]; best == nil || b.size > best.size {
			best = b
		}
	}
	if best == nil {
		return ""
	}
	return strings.Join(best.texts, " ")
}

// addBlockSpacing pads block-level tags so adjacent blocks never glue words together.
func addBlockSpacing(doc string) string {
	return blockTag.ReplaceAllString(doc, " <$1$2$3> ")
}
