package transform

import (
	"fmt"
	"math"
	"net/url"
	"strings"
	"time"

	"github.com/bakkerme/newsreader/internal/core"
)

const summaryMaxLength = 100

// ParseCategoryItems shapes raw listing records for the named category.
func (t *Transformer) ParseCategoryItems(raw []RawItem, categoryName string) []core.CategoryItem {
	now := t.now()
	decoder := t.decoder()

	items := make([]core.CategoryItem, 0, len(raw))
	for _, item := range raw {
		items = append(items, core.CategoryItem{
			Headline:    decoder.DecodeText(item.Title),
			Href:        ItemHref(string(item.ID), categoryName),
			ID:          string(item.ID),
			ImageURL:    ItemImage(item.ImgSrc),
			Placeholder: item.Placeholder,
			Category:    item.Category,
			TimeAgo:     TimeAgo(now, item.Time.Time),
			Author:      item.Author,
			Summary:     TrimRight(item.Summary, summaryMaxLength),
			ReadTime:    ReadTime(item.ContentLength),
		})
	}
	return items
}

// ItemHref returns the article route, or nil for items without an id.
func ItemHref(id, categoryName string) *string {
	if id == "" {
		return nil
	}
	href := "/article/" + categoryName + "/" + EncodeURIComponent(id)
	return &href
}

// ItemImage resolves an item image against the data directory. Absolute
// http(s) sources, as found in feeds, are kept as is.
func ItemImage(imgSrc string) string {
	if imgSrc == "" {
		return ""
	}
	if strings.HasPrefix(imgSrc, "http://") || strings.HasPrefix(imgSrc, "https://") {
		return imgSrc
	}
	return "data/" + imgSrc
}

// TimeAgo renders the distance between now and ts in coarse buckets.
func TimeAgo(now, ts time.Time) string {
	if ts.IsZero() {
		return ""
	}

	minutes := now.Sub(ts).Minutes()
	if minutes < 2 {
		return "1 min ago"
	}
	if minutes < 60 {
		return fmt.Sprintf("%d mins ago", int(math.Floor(minutes)))
	}
	if minutes < 120 {
		return "1 hour ago"
	}

	hours := minutes / 60
	if hours < 24 {
		return fmt.Sprintf("%d hours ago", int(math.Floor(hours)))
	}
	if hours < 48 {
		return "1 day ago"
	}
	return fmt.Sprintf("%d days ago", int(math.Floor(hours/24)))
}

// TrimRight cuts text at the first space at or after maxLength characters and
// appends "...". Text without such a space is returned unchanged.
func TrimRight(text string, maxLength int) string {
	if maxLength < 0 {
		maxLength = 0
	}
	runes := []rune(text)
	if maxLength >= len(runes) {
		return text
	}
	for i := maxLength; i < len(runes); i++ {
		if runes[i] == ' ' {
			return string(runes[:i]) + "..."
		}
	}
	return text
}

// ReadTime estimates minutes of reading at 3000 characters a minute, never
// less than two.
func ReadTime(contentLength float64) string {
	minutes := math.Max(2, math.Round(contentLength/3000))
	return fmt.Sprintf("%d min read", int(minutes))
}

// EncodeURIComponent escapes s the way browsers escape a URI component:
// everything except A-Z a-z 0-9 - _ . ! ~ * ' ( ).
func EncodeURIComponent(s string) string {
	escaped := url.QueryEscape(s)
	return uriComponentFixups.Replace(escaped)
}

var uriComponentFixups = strings.NewReplacer(
	"+", "%20",
	"%21", "!",
	"%27", "'",
	"%28", "(",
	"%29", ")",
	"%2A", "*",
)
