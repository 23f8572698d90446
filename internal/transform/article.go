package transform

import (
	"errors"
	"fmt"
	"strings"
)

// ErrMissingContent is returned when an article document has no .content element.
var ErrMissingContent = errors.New("article html has no .content element")

// FormatHTML drops fixed image dimensions and returns the inner HTML of the
// document's .content element.
func (t *Transformer) FormatHTML(raw string) (string, error) {
	doc, err := t.parser().ParseHTML(strings.NewReader(raw))
	if err != nil {
		return "", fmt.Errorf("parse article html: %w", err)
	}

	doc.Find("img").RemoveAttr("width").RemoveAttr("height")

	content := doc.Find(".content").First()
	if content.Length() == 0 {
		return "", ErrMissingContent
	}
	out, err := content.Html()
	if err != nil {
		return "", fmt.Errorf("render article content: %w", err)
	}
	if t != nil && t.Sanitizer != nil {
		out = t.Sanitizer.Sanitize(out)
	}
	return out, nil
}
