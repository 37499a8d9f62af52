package source

import (
	"bytes"
	"context"
	"fmt"
	"net/url"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/xxxsen/insightai/internal/config"
	"github.com/xxxsen/insightai/internal/model"
)

type pageConfig struct {
	URL         string `json:"url"`
	AnchorClass string `json:"anchor_class"`
}

// pageSource turns one web page into documents. Without an anchor class the
// visible text of the page is a single document; with one, every matching
// link becomes a document of its text and target.
type pageSource struct {
	name        string
	url         string
	anchorClass string
	fetcher     *httpFetcher
}

func init() {
	Register("page", createPageSource)
}

func createPageSource(name string, args interface{}, fetch config.FetchConfig) (Source, error) {
	cfg := &pageConfig{}
	if err := decodeConfig(args, cfg); err != nil {
		return nil, err
	}
	return NewPage(name, cfg.URL, cfg.AnchorClass, fetch)
}

func NewPage(name, pageURL, anchorClass string, fetch config.FetchConfig) (Source, error) {
	pageURL = strings.TrimSpace(pageURL)
	u, err := url.Parse(pageURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, fmt.Errorf("invalid page url: %q", pageURL)
	}
	if name == "" {
		name = pageURL
	}
	return &pageSource{
		name:        name,
		url:         pageURL,
		anchorClass: strings.TrimSpace(anchorClass),
		fetcher:     newHTTPFetcher(fetch),
	}, nil
}

func (s *pageSource) Name() string {
	return s.name
}

func (s *pageSource) Fetch(ctx context.Context) ([]model.Document, error) {
	body, err := s.fetcher.get(ctx, s.url)
	if err != nil {
		return nil, fetchError(s.name, err)
	}
	doc, err := html.Parse(bytes.NewReader(body))
	if err != nil {
		return nil, fetchError(s.name, fmt.Errorf("parse html: %w", err))
	}
	if s.anchorClass != "" {
		return s.anchors(doc), nil
	}
	text := visibleText(doc)
	if text == "" {
		return nil, nil
	}
	return []model.Document{{Content: text, Source: s.url}}, nil
}

func (s *pageSource) anchors(root *html.Node) []model.Document {
	base, _ := url.Parse(s.url)
	var docs []model.Document
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && n.DataAtom == atom.A && hasClass(n, s.anchorClass) {
			text := visibleText(n)
			href := strings.TrimSpace(attr(n, "href"))
			if text != "" && href != "" {
				if ref, err := url.Parse(href); err == nil {
					href = base.ResolveReference(ref).String()
				}
				docs = append(docs, model.Document{Content: text, Source: href})
			}
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(root)
	return docs
}
