package mock

import (
	"context"
	"sync"

	"github.com/bakkerme/newsreader/internal/core"
	"github.com/bakkerme/newsreader/internal/fetcher"
)

// Fetcher answers synchronously from canned bodies keyed by URL.
type Fetcher struct {
	BodyByURL map[string]string
	// ErrByURL simulates a request that exhausted its attempts.
	ErrByURL map[string]error

	mu       sync.Mutex
	Requests []fetcher.Request
	Errors   []error
}

func (f *Fetcher) Fetch(ctx context.Context, dispatch core.Dispatcher, req fetcher.Request, onSuccess fetcher.SuccessFunc) error {
	f.mu.Lock()
	f.Requests = append(f.Requests, req)
	f.mu.Unlock()

	if err := fetcher.CheckURL(req.URL); err != nil {
		return f.reject(dispatch, err)
	}
	if req.Attempts <= 0 {
		return f.reject(dispatch, fetcher.ErrInvalidAttempts)
	}

	dispatch.Dispatch(core.LoadingChanged(true))
	dispatch.Dispatch(core.FailureChanged(false))

	if f.ErrByURL != nil {
		if err, ok := f.ErrByURL[req.URL]; ok {
			f.record(err)
			dispatch.Dispatch(core.LoadingChanged(false))
			dispatch.Dispatch(core.FailureChanged(true))
			return nil
		}
	}

	dispatch.Dispatch(core.LoadingChanged(false))
	body := fetcher.Body{Text: f.BodyByURL[req.URL]}
	if req.Mode == fetcher.ModeJSON {
		if err := body.Decode(&body.Value); err != nil {
			f.record(&fetcher.ParseError{URL: req.URL, Err: err})
			return nil
		}
	}
	if onSuccess != nil {
		if err := onSuccess(ctx, body); err != nil {
			f.record(err)
		}
	}
	return nil
}

func (f *Fetcher) Wait() {}

func (f *Fetcher) reject(dispatch core.Dispatcher, err error) error {
	dispatch.Dispatch(core.LoadingChanged(false))
	dispatch.Dispatch(core.FailureChanged(true))
	return err
}

func (f *Fetcher) record(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Errors = append(f.Errors, err)
}
