package ingest

import (
	"context"
	"fmt"
	"net/http"
	"time"

	md "github.com/JohannesKaufmann/html-to-markdown"
	"github.com/mmcdole/gofeed"

	"github.com/DragonSun329/briefAI-sub001/pkg/item"
)

// RSSFeed is a named RSS/Atom feed URL.
type RSSFeed struct {
	Name string
	URL  string
}

// RSS collects candidate items from RSS/Atom feeds.
type RSS struct {
	client    *http.Client
	parser    *gofeed.Parser
	converter *md.Converter
	feeds     []RSSFeed
	lookback  time.Duration
}

// NewRSS creates an RSS collector that ignores entries older than
// lookback.
func NewRSS(feeds []RSSFeed, lookback time.Duration) *RSS {
	if lookback <= 0 {
		lookback = 7 * 24 * time.Hour
	}
	return &RSS{
		client:    &http.Client{Timeout: 30 * time.Second},
		parser:    gofeed.NewParser(),
		converter: md.NewConverter("", true, nil),
		feeds:     feeds,
		lookback:  lookback,
	}
}

func (r *RSS) Name() string { return "rss" }

// Collect fetches all configured feeds. Per-feed failures are skipped
// so one dead feed never loses the run.
func (r *RSS) Collect(ctx context.Context) ([]item.Item, error) {
	var all []item.Item
	var lastErr error

	for _, feed := range r.feeds {
		items, err := r.collectFeed(ctx, feed)
		if err != nil {
			lastErr = err
			continue
		}
		all = append(all, items...)
	}

	if len(all) == 0 && lastErr != nil {
		return nil, lastErr
	}
	return all, nil
}

func (r *RSS) collectFeed(ctx context.Context, feed RSSFeed) ([]item.Item, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, feed.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("create rss request %s: %w", feed.Name, err)
	}
	req.Header.Set("User-Agent", "briefai/1.0")

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch rss %s: %w", feed.Name, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("rss %s status %d", feed.Name, resp.StatusCode)
	}

	parsed, err := r.parser.Parse(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("parse rss %s: %w", feed.Name, err)
	}

	source := "rss:" + feed.Name
	cutoff := time.Now().Add(-r.lookback)

	var items []item.Item
	for _, entry := range parsed.Items {
		published := time.Now().UTC()
		if entry.PublishedParsed != nil {
			published = entry.PublishedParsed.UTC()
		} else if entry.UpdatedParsed != nil {
			published = entry.UpdatedParsed.UTC()
		}
		if published.Before(cutoff) {
			continue
		}

		externalID := entry.GUID
		if externalID == "" {
			externalID = entry.Link
		}

		link := entry.Link
		if link == "" && len(entry.Links) > 0 {
			link = entry.Links[0]
		}

		author := ""
		if entry.Author != nil {
			author = entry.Author.Name
		}

		items = append(items, item.Item{
			ID:          item.MakeID(source, externalID),
			Source:      source,
			ExternalID:  externalID,
			Title:       entry.Title,
			Body:        r.body(entry),
			URL:         link,
			Author:      author,
			PublishedAt: published,
			Status:      item.StatusCollected,
		})
	}

	return items, nil
}

// body converts the richest available HTML payload to plain markdown
// so downstream similarity comparison works on text, not markup.
func (r *RSS) body(entry *gofeed.Item) string {
	raw := entry.Content
	if raw == "" {
		raw = entry.Description
	}
	if raw == "" {
		return ""
	}
	text, err := r.converter.ConvertString(raw)
	if err != nil {
		return raw
	}
	return text
}
