// Package transform shapes raw category listings and article documents into
// the view models the front end renders.
package transform

import (
	"io"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/microcosm-cc/bluemonday"
	"golang.org/x/net/html"
)

// TextDecoder turns markup-escaped text into plain text.
type TextDecoder interface {
	DecodeText(s string) string
}

// TextDecoderFunc adapts a function to TextDecoder.
type TextDecoderFunc func(string) string

func (f TextDecoderFunc) DecodeText(s string) string { return f(s) }

// HTMLParser builds a queryable document from markup.
type HTMLParser interface {
	ParseHTML(r io.Reader) (*goquery.Document, error)
}

// HTMLParserFunc adapts a function to HTMLParser.
type HTMLParserFunc func(io.Reader) (*goquery.Document, error)

func (f HTMLParserFunc) ParseHTML(r io.Reader) (*goquery.Document, error) { return f(r) }

// Transformer carries the text and document capabilities used to shape
// responses. Fields left nil fall back to the defaults used by New.
type Transformer struct {
	Decoder TextDecoder
	Parser  HTMLParser
	// Sanitizer, when set, is applied to extracted article content.
	Sanitizer *bluemonday.Policy
	Now       func() time.Time
}

func New() *Transformer {
	return &Transformer{
		Decoder: TextDecoderFunc(html.UnescapeString),
		Parser:  HTMLParserFunc(goquery.NewDocumentFromReader),
		Now:     time.Now,
	}
}

// NewSanitizing returns a Transformer that also runs article content through
// bluemonday's user-generated-content policy.
func NewSanitizing() *Transformer {
	t := New()
	t.Sanitizer = bluemonday.UGCPolicy()
	return t
}

func (t *Transformer) decoder() TextDecoder {
	if t == nil || t.Decoder == nil {
		return TextDecoderFunc(html.UnescapeString)
	}
	return t.Decoder
}

func (t *Transformer) parser() HTMLParser {
	if t == nil || t.Parser == nil {
		return HTMLParserFunc(goquery.NewDocumentFromReader)
	}
	return t.Parser
}

func (t *Transformer) now() time.Time {
	if t == nil || t.Now == nil {
		return time.Now()
	}
	return t.Now()
}
