package transform

import (
	"bytes"
	"encoding/json"
	"math"
	"strconv"
	"strings"
	"time"
)

// RawItem is one article summary as served in data/{category}.json.
type RawItem struct {
	ID            FlexString `json:"id"`
	Title         string     `json:"title"`
	ImgSrc        string     `json:"imgSrc"`
	Placeholder   string     `json:"placeholder"`
	Category      string     `json:"category"`
	Time          Timestamp  `json:"time"`
	Author        string     `json:"author"`
	Summary       string     `json:"summary"`
	ContentLength float64    `json:"contentLength"`
}

// Listing is a data/{category}.json document. Entries end at the first null,
// the way the page that served these files walked them.
type Listing []RawItem

func (l *Listing) UnmarshalJSON(data []byte) error {
	var entries []*RawItem
	if err := json.Unmarshal(data, &entries); err != nil {
		return err
	}
	out := make(Listing, 0, len(entries))
	for _, entry := range entries {
		if entry == nil {
			break
		}
		out = append(out, *entry)
	}
	*l = out
	return nil
}

// FlexString accepts a JSON string or number.
type FlexString string

func (s *FlexString) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*s = ""
		return nil
	}
	if data[0] == '"' {
		var v string
		if err := json.Unmarshal(data, &v); err != nil {
			return err
		}
		*s = FlexString(v)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	*s = FlexString(n.String())
	return nil
}

// Timestamp accepts epoch milliseconds or a date string. Missing, zero,
// out-of-range and unparseable values decode to the zero time.
type Timestamp struct {
	time.Time
}

// maxEpochMillis is the largest distance from the epoch a date may have
// (100,000,000 days).
const maxEpochMillis = 8.64e15

var timestampLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	time.RFC1123Z,
	time.RFC1123,
	time.UnixDate,
	"Mon Jan 02 2006 15:04:05 GMT-0700",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

func (ts *Timestamp) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	ts.Time = time.Time{}
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return nil
	}
	if data[0] != '"' {
		ms, err := strconv.ParseFloat(string(data), 64)
		if err != nil {
			return err
		}
		if ms != 0 && math.Abs(ms) <= maxEpochMillis {
			ts.Time = time.UnixMilli(int64(ms)).UTC()
		}
		return nil
	}
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	ts.Time = ParseTimestamp(raw)
	return nil
}

// ParseTimestamp tries the date formats seen in article feeds.
func ParseTimestamp(raw string) time.Time {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}
	}
	// Browsers append a zone name, e.g. "GMT-0700 (Pacific Daylight Time)".
	if idx := strings.Index(raw, " ("); idx > 0 {
		raw = raw[:idx]
	}
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return t
		}
	}
	return time.Time{}
}
