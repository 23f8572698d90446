package fetcher

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

var (
	ErrInvalidURL      = errors.New("fetch: url must be absolute http(s)")
	ErrInvalidAttempts = errors.New("fetch: attempts must be at least 1")
	ErrBodyTooLarge    = errors.New("fetch: response body too large")
)

// CheckURL reports ErrInvalidURL for anything but an absolute http(s) URL.
func CheckURL(raw string) error {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return ErrInvalidURL
	}
	return nil
}

// RequestError is a failure another attempt would repeat, such as a request
// that cannot be built or a body over the size limit. It is not retried.
type RequestError struct {
	URL string
	Err error
}

func (e *RequestError) Error() string {
	return fmt.Sprintf("fetch %s: %v", e.URL, e.Err)
}

func (e *RequestError) Unwrap() error { return e.Err }

// TransportError is a network-level failure. It is retried while the attempt
// budget allows.
type TransportError struct {
	URL     string
	Attempt int
	Err     error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("fetch %s: attempt %d: %v", e.URL, e.Attempt, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// StatusError is a response outside the 2xx range. It is not retried.
type StatusError struct {
	URL        string
	StatusCode int
	Status     string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("fetch %s: unexpected status %s", e.URL, e.Status)
}

// ParseError is a body that could not be decoded. It is not retried.
type ParseError struct {
	URL string
	Err error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse %s: %v", e.URL, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }
