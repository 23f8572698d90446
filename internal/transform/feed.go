package transform

import (
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/microcosm-cc/bluemonday"
	"github.com/mmcdole/gofeed"
	"golang.org/x/net/html"
)

// ParseFeed parses an RSS, Atom or JSON feed document into listing records.
func ParseFeed(text string) ([]RawItem, error) {
	feed, err := gofeed.NewParser().ParseString(text)
	if err != nil {
		return nil, fmt.Errorf("parse feed: %w", err)
	}
	return ItemsFromFeed(feed), nil
}

// ItemsFromFeed maps feed entries onto the listing record shape so they can
// be shaped by ParseCategoryItems like any other category.
func ItemsFromFeed(feed *gofeed.Feed) []RawItem {
	if feed == nil {
		return nil
	}
	strip := bluemonday.StrictPolicy()

	items := make([]RawItem, 0, len(feed.Items))
	for _, entry := range feed.Items {
		if entry == nil {
			continue
		}
		item := RawItem{
			ID:    FlexString(firstNonEmpty(entry.GUID, entry.Link)),
			Title: entry.Title,
			// Summaries are plain text; drop markup and collapse whitespace.
			Summary:       strings.Join(strings.Fields(html.UnescapeString(strip.Sanitize(entry.Description))), " "),
			ContentLength: float64(len(firstNonEmpty(entry.Content, entry.Description))),
		}
		if entry.Author != nil {
			item.Author = entry.Author.Name
		} else if len(entry.Authors) > 0 && entry.Authors[0] != nil {
			item.Author = entry.Authors[0].Name
		}
		if len(entry.Categories) > 0 {
			item.Category = entry.Categories[0]
		}
		if entry.PublishedParsed != nil {
			item.Time.Time = *entry.PublishedParsed
		} else if entry.UpdatedParsed != nil {
			item.Time.Time = *entry.UpdatedParsed
		}
		item.ImgSrc = feedImage(entry)
		items = append(items, item)
	}
	return items
}

func feedImage(entry *gofeed.Item) string {
	if entry.Image != nil && entry.Image.URL != "" {
		return entry.Image.URL
	}
	for _, enc := range entry.Enclosures {
		if enc != nil && strings.HasPrefix(enc.Type, "image/") && enc.URL != "" {
			return enc.URL
		}
	}
	return firstInlineImage(firstNonEmpty(entry.Content, entry.Description))
}

// firstInlineImage returns the first remote <img> source in an entry body.
// Embedded data: URIs are skipped.
func firstInlineImage(body string) string {
	if !strings.Contains(strings.ToLower(body), "<img") {
		return ""
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(body))
	if err != nil {
		return ""
	}
	var src string
	doc.Find("img").EachWithBreak(func(_ int, img *goquery.Selection) bool {
		// Some feeds use lazy-loading attrs.
		for _, attr := range []string{"src", "data-src", "data-original", "data-lazy-src"} {
			v := strings.TrimSpace(img.AttrOr(attr, ""))
			if v != "" && !strings.HasPrefix(strings.ToLower(v), "data:") {
				src = v
				return false
			}
		}
		return true
	})
	return src
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
