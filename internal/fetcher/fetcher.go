package fetcher

import (
	"context"
	"encoding/json"

	"github.com/bakkerme/newsreader/internal/core"
)

// Mode selects how a response body is handed to the success callback.
type Mode int

const (
	// ModeJSON validates and decodes the body as JSON.
	ModeJSON Mode = iota
	// ModeRaw passes the body through as text.
	ModeRaw
)

func (m Mode) String() string {
	switch m {
	case ModeJSON:
		return "json"
	case ModeRaw:
		return "raw"
	default:
		return "unknown"
	}
}

// Request describes one logical fetch. Attempts is the total number of tries
// including the first, so 1 means no retries.
type Request struct {
	URL      string
	Attempts int
	Mode     Mode
	// Key identifies the logical request for retry coalescing. Defaults to URL.
	Key string
}

// Body is a successfully received response.
type Body struct {
	Text string
	// Value holds the decoded JSON document in ModeJSON and is nil in ModeRaw.
	Value any
}

// Decode unmarshals the body text into v.
func (b Body) Decode(v any) error {
	return json.Unmarshal([]byte(b.Text), v)
}

// SuccessFunc consumes a fetched body. A returned error is reported to the
// fetcher's error handler and is never retried.
type SuccessFunc func(ctx context.Context, body Body) error

// ErrorHandler is told about every terminal failure of a request.
type ErrorHandler func(ctx context.Context, req Request, err error)

// Fetcher issues GET requests and reports progress as actions.
type Fetcher interface {
	// Fetch emits LoadingChanged(true) and FailureChanged(false) before
	// returning, then completes asynchronously. It only returns an error for
	// requests that can never be issued.
	Fetch(ctx context.Context, dispatch core.Dispatcher, req Request, onSuccess SuccessFunc) error
	// Wait blocks until every in-flight attempt and pending retry has settled.
	Wait()
}
