package source

import (
	"bytes"
	"context"
	"encoding/xml"
	"fmt"
	"strings"

	"golang.org/x/net/html/charset"

	"github.com/xxxsen/insightai/internal/config"
	"github.com/xxxsen/insightai/internal/model"
)

type rssConfig struct {
	URL   string `json:"url"`
	Limit int    `json:"limit"`
}

type rssSource struct {
	name    string
	url     string
	limit   int
	fetcher *httpFetcher
}

func init() {
	Register("rss", createRSSSource)
}

func createRSSSource(name string, args interface{}, fetch config.FetchConfig) (Source, error) {
	cfg := &rssConfig{}
	if err := decodeConfig(args, cfg); err != nil {
		return nil, err
	}
	cfg.URL = strings.TrimSpace(cfg.URL)
	if cfg.URL == "" {
		return nil, fmt.Errorf("rss url is required")
	}
	if name == "" {
		name = cfg.URL
	}
	return &rssSource{
		name:    name,
		url:     cfg.URL,
		limit:   cfg.Limit,
		fetcher: newHTTPFetcher(fetch),
	}, nil
}

func (s *rssSource) Name() string {
	return s.name
}

func (s *rssSource) Fetch(ctx context.Context) ([]model.Document, error) {
	body, err := s.fetcher.get(ctx, s.url)
	if err != nil {
		return nil, fetchError(s.name, err)
	}
	docs, err := parseFeed(body, s.url)
	if err != nil {
		return nil, fetchError(s.name, err)
	}
	if s.limit > 0 && len(docs) > s.limit {
		docs = docs[:s.limit]
	}
	return docs, nil
}

// feed covers RSS 2.0 (channel/item), RSS 1.0 (rdf:RDF/item) and Atom
// (feed/entry) in one pass.
type feed struct {
	Channel struct {
		Items []feedItem `xml:"item"`
	} `xml:"channel"`
	Items   []feedItem  `xml:"item"`
	Entries []feedEntry `xml:"entry"`
}

type feedItem struct {
	Title       string `xml:"title"`
	Link        string `xml:"link"`
	GUID        string `xml:"guid"`
	Description string `xml:"description"`
	Encoded     string `xml:"http://purl.org/rss/1.0/modules/content/ encoded"`
}

type feedEntry struct {
	Title   string     `xml:"title"`
	ID      string     `xml:"id"`
	Links   []feedLink `xml:"link"`
	Summary string     `xml:"summary"`
	Content string     `xml:"content"`
}

type feedLink struct {
	Href string `xml:"href,attr"`
	Rel  string `xml:"rel,attr"`
}

func (e feedEntry) link() string {
	for _, l := range e.Links {
		if l.Rel == "" || l.Rel == "alternate" {
			return l.Href
		}
	}
	if len(e.Links) > 0 {
		return e.Links[0].Href
	}
	return ""
}

func parseFeed(body []byte, feedURL string) ([]model.Document, error) {
	dec := xml.NewDecoder(bytes.NewReader(body))
	dec.Strict = false
	dec.AutoClose = xml.HTMLAutoClose
	dec.Entity = xml.HTMLEntity
	dec.CharsetReader = charset.NewReaderLabel
	var f feed
	if err := dec.Decode(&f); err != nil {
		return nil, fmt.Errorf("parse feed: %w", err)
	}
	docs := make([]model.Document, 0, len(f.Channel.Items)+len(f.Items)+len(f.Entries))
	add := func(title, summary, body, link, id string) {
		content := htmlToText(summary)
		if content == "" {
			content = htmlToText(body)
		}
		if content == "" {
			content = htmlToText(title)
		}
		if content == "" {
			return
		}
		docs = append(docs, model.Document{
			Content: content,
			Source:  firstNonEmpty(link, id, feedURL),
		})
	}
	for _, items := range [][]feedItem{f.Channel.Items, f.Items} {
		for _, it := range items {
			add(it.Title, it.Description, it.Encoded, strings.TrimSpace(it.Link), strings.TrimSpace(it.GUID))
		}
	}
	for _, e := range f.Entries {
		add(e.Title, e.Summary, e.Content, strings.TrimSpace(e.link()), strings.TrimSpace(e.ID))
	}
	return docs, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
