package impl

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/bakkerme/newsreader/internal/core"
	"github.com/bakkerme/newsreader/internal/fetcher"
	"github.com/bakkerme/newsreader/internal/retry"
)

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(r *http.Request) (*http.Response, error) { return f(r) }

type recorder struct {
	mu      sync.Mutex
	actions []core.Action
}

func (r *recorder) Dispatch(action core.Action) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.actions = append(r.actions, action)
}

func (r *recorder) snapshot() []core.Action {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]core.Action(nil), r.actions...)
}

type fakeTimer struct {
	delay   time.Duration
	fn      func()
	stopped atomic.Bool
}

func (t *fakeTimer) Stop() bool { return !t.stopped.Swap(true) }

type fakeClock struct {
	scheduled chan *fakeTimer
}

func newFakeClock() *fakeClock {
	return &fakeClock{scheduled: make(chan *fakeTimer, 16)}
}

func (c *fakeClock) AfterFunc(d time.Duration, f func()) retry.Timer {
	t := &fakeTimer{delay: d, fn: f}
	c.scheduled <- t
	return t
}

func (c *fakeClock) next(t *testing.T) *fakeTimer {
	t.Helper()
	select {
	case timer := <-c.scheduled:
		return timer
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for a retry to be scheduled")
		return nil
	}
}

func okResponse(r *http.Request, status int, body string) *http.Response {
	return &http.Response{
		StatusCode: status,
		Status:     fmt.Sprintf("%d %s", status, http.StatusText(status)),
		Header:     make(http.Header),
		Body:       io.NopCloser(strings.NewReader(body)),
		Request:    r,
	}
}

func expectActions(t *testing.T, got []core.Action, want ...core.Action) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("expected %d actions, got %d: %+v", len(want), len(got), got)
	}
	for i := range want {
		if got[i].Type != want[i].Type || got[i].Loading != want[i].Loading || got[i].Failure != want[i].Failure {
			t.Fatalf("action %d = %+v, want %+v", i, got[i], want[i])
		}
	}
}

func TestFetcher_JSONSuccess(t *testing.T) {
	t.Parallel()

	f := NewFetcher(Options{UserAgent: "newsreader-test"})
	f.client = &http.Client{Transport: roundTripFunc(func(r *http.Request) (*http.Response, error) {
		if r.Method != http.MethodGet {
			return nil, fmt.Errorf("method = %s, want GET", r.Method)
		}
		if got := r.Header.Get("User-Agent"); got != "newsreader-test" {
			return nil, fmt.Errorf("User-Agent = %q", got)
		}
		return okResponse(r, http.StatusOK, `[{"title":"hello"}]`), nil
	})}

	rec := &recorder{}
	var got fetcher.Body
	calls := 0
	err := f.Fetch(context.Background(), rec, fetcher.Request{URL: "http://news.test/data/tech.json", Attempts: 1, Mode: fetcher.ModeJSON},
		func(ctx context.Context, body fetcher.Body) error {
			calls++
			got = body
			if core.RequestIDFromContext(ctx) == "" {
				return errors.New("missing request id")
			}
			return nil
		})
	if err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}
	f.Wait()

	if calls != 1 {
		t.Fatalf("expected onSuccess once, got %d", calls)
	}
	items, ok := got.Value.([]any)
	if !ok || len(items) != 1 {
		t.Fatalf("expected decoded array with one item, got %#v", got.Value)
	}
	expectActions(t, rec.snapshot(),
		core.LoadingChanged(true),
		core.FailureChanged(false),
		core.LoadingChanged(false),
	)
}

func TestFetcher_RawPassThrough(t *testing.T) {
	t.Parallel()

	f := NewFetcher(Options{})
	f.client = &http.Client{Transport: roundTripFunc(func(r *http.Request) (*http.Response, error) {
		return okResponse(r, http.StatusOK, `<div class="content">not json</div>`), nil
	})}

	var text string
	var value any = "unset"
	err := f.Fetch(context.Background(), &recorder{}, fetcher.Request{URL: "http://news.test/a.html", Attempts: 1, Mode: fetcher.ModeRaw},
		func(ctx context.Context, body fetcher.Body) error {
			text = body.Text
			value = body.Value
			return nil
		})
	if err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}
	f.Wait()
	if text != `<div class="content">not json</div>` {
		t.Fatalf("unexpected body %q", text)
	}
	if value != nil {
		t.Fatalf("expected nil Value in raw mode, got %#v", value)
	}
}

func TestFetcher_RetriesThenGivesUp(t *testing.T) {
	t.Parallel()

	clock := newFakeClock()
	var reported []error
	var reportMu sync.Mutex
	f := NewFetcher(Options{
		AfterFunc: clock.AfterFunc,
		OnError: func(ctx context.Context, req fetcher.Request, err error) {
			reportMu.Lock()
			defer reportMu.Unlock()
			reported = append(reported, err)
		},
	})
	var hits atomic.Int32
	f.client = &http.Client{Transport: roundTripFunc(func(r *http.Request) (*http.Response, error) {
		hits.Add(1)
		return nil, errors.New("connection reset")
	})}

	rec := &recorder{}
	succeeded := false
	err := f.Fetch(context.Background(), rec, fetcher.Request{URL: "http://news.test/data/tech.json", Attempts: 3, Mode: fetcher.ModeJSON},
		func(ctx context.Context, body fetcher.Body) error {
			succeeded = true
			return nil
		})
	if err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}

	first := clock.next(t)
	if first.delay != 200*time.Millisecond {
		t.Fatalf("expected 200ms retry delay, got %v", first.delay)
	}
	first.fn()
	second := clock.next(t)
	if second.delay != 200*time.Millisecond {
		t.Fatalf("expected 200ms retry delay, got %v", second.delay)
	}
	second.fn()
	f.Wait()

	select {
	case extra := <-clock.scheduled:
		t.Fatalf("unexpected third retry scheduled after %v", extra.delay)
	default:
	}
	if hits.Load() != 3 {
		t.Fatalf("expected 3 attempts, got %d", hits.Load())
	}
	if succeeded {
		t.Fatalf("onSuccess must not be called after exhausting attempts")
	}
	expectActions(t, rec.snapshot(),
		core.LoadingChanged(true),
		core.FailureChanged(false),
		core.LoadingChanged(false),
		core.FailureChanged(true),
	)

	reportMu.Lock()
	defer reportMu.Unlock()
	if len(reported) != 1 {
		t.Fatalf("expected one reported error, got %v", reported)
	}
	var terr *fetcher.TransportError
	if !errors.As(reported[0], &terr) || terr.Attempt != 3 {
		t.Fatalf("expected TransportError on attempt 3, got %v", reported[0])
	}
}

func TestFetcher_CoalescesPendingRetries(t *testing.T) {
	t.Parallel()

	clock := newFakeClock()
	f := NewFetcher(Options{AfterFunc: clock.AfterFunc})
	var hits atomic.Int32
	f.client = &http.Client{Transport: roundTripFunc(func(r *http.Request) (*http.Response, error) {
		if hits.Add(1) <= 2 {
			return nil, errors.New("network down")
		}
		return okResponse(r, http.StatusOK, "ok"), nil
	})}

	var successes atomic.Int32
	onSuccess := func(ctx context.Context, body fetcher.Body) error {
		successes.Add(1)
		return nil
	}
	req := fetcher.Request{URL: "http://news.test/a.html", Attempts: 2, Mode: fetcher.ModeRaw}

	if err := f.Fetch(context.Background(), &recorder{}, req, onSuccess); err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}
	first := clock.next(t)

	if err := f.Fetch(context.Background(), &recorder{}, req, onSuccess); err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}
	second := clock.next(t)

	if !first.stopped.Load() {
		t.Fatalf("expected the first pending retry to be cancelled")
	}

	first.fn()
	second.fn()
	f.Wait()

	if hits.Load() != 3 {
		t.Fatalf("expected exactly one retry to execute (3 requests), got %d", hits.Load())
	}
	if successes.Load() != 1 {
		t.Fatalf("expected one success, got %d", successes.Load())
	}
}

func TestFetcher_StatusErrorIsNotRetried(t *testing.T) {
	t.Parallel()

	clock := newFakeClock()
	var reported error
	f := NewFetcher(Options{
		AfterFunc: clock.AfterFunc,
		OnError:   func(ctx context.Context, req fetcher.Request, err error) { reported = err },
	})
	f.client = &http.Client{Transport: roundTripFunc(func(r *http.Request) (*http.Response, error) {
		return okResponse(r, http.StatusNotFound, "missing"), nil
	})}

	rec := &recorder{}
	_ = f.Fetch(context.Background(), rec, fetcher.Request{URL: "http://news.test/data/none.json", Attempts: 3}, func(ctx context.Context, body fetcher.Body) error {
		t.Errorf("onSuccess called for 404")
		return nil
	})
	f.Wait()

	if len(clock.scheduled) != 0 {
		t.Fatalf("expected no retry for a status error")
	}
	var serr *fetcher.StatusError
	if !errors.As(reported, &serr) || serr.StatusCode != http.StatusNotFound {
		t.Fatalf("expected StatusError 404, got %v", reported)
	}
	expectActions(t, rec.snapshot(),
		core.LoadingChanged(true),
		core.FailureChanged(false),
		core.LoadingChanged(false),
		core.FailureChanged(true),
	)
}

func TestFetcher_ParseErrorIsReported(t *testing.T) {
	t.Parallel()

	var reported error
	f := NewFetcher(Options{
		OnError: func(ctx context.Context, req fetcher.Request, err error) { reported = err },
	})
	f.client = &http.Client{Transport: roundTripFunc(func(r *http.Request) (*http.Response, error) {
		return okResponse(r, http.StatusOK, `{"broken"`), nil
	})}

	_ = f.Fetch(context.Background(), &recorder{}, fetcher.Request{URL: "http://news.test/data/tech.json", Attempts: 2, Mode: fetcher.ModeJSON}, func(ctx context.Context, body fetcher.Body) error {
		t.Errorf("onSuccess called for malformed JSON")
		return nil
	})
	f.Wait()

	var perr *fetcher.ParseError
	if !errors.As(reported, &perr) {
		t.Fatalf("expected ParseError, got %v", reported)
	}
}

func TestFetcher_CallbackErrorIsReported(t *testing.T) {
	t.Parallel()

	sentinel := errors.New("no content")
	var reported error
	f := NewFetcher(Options{
		OnError: func(ctx context.Context, req fetcher.Request, err error) { reported = err },
	})
	f.client = &http.Client{Transport: roundTripFunc(func(r *http.Request) (*http.Response, error) {
		return okResponse(r, http.StatusOK, "<p>hi</p>"), nil
	})}

	_ = f.Fetch(context.Background(), &recorder{}, fetcher.Request{URL: "http://news.test/a.html", Attempts: 1, Mode: fetcher.ModeRaw}, func(ctx context.Context, body fetcher.Body) error {
		return sentinel
	})
	f.Wait()

	if !errors.Is(reported, sentinel) {
		t.Fatalf("expected callback error to be reported, got %v", reported)
	}
}

func TestFetcher_InvalidRequests(t *testing.T) {
	t.Parallel()

	f := NewFetcher(Options{})
	f.client = &http.Client{Transport: roundTripFunc(func(r *http.Request) (*http.Response, error) {
		t.Errorf("unexpected request to %s", r.URL)
		return nil, errors.New("unexpected")
	})}

	rec := &recorder{}
	err := f.Fetch(context.Background(), rec, fetcher.Request{URL: "http://news.test/a.html", Attempts: 0}, nil)
	if !errors.Is(err, fetcher.ErrInvalidAttempts) {
		t.Fatalf("expected ErrInvalidAttempts, got %v", err)
	}
	expectActions(t, rec.snapshot(), core.LoadingChanged(false), core.FailureChanged(true))

	for _, raw := range []string{"  ", "data/tech.json", "/data/tech.json", "ftp://news.test/a"} {
		rec := &recorder{}
		if err := f.Fetch(context.Background(), rec, fetcher.Request{URL: raw, Attempts: 3}, nil); !errors.Is(err, fetcher.ErrInvalidURL) {
			t.Fatalf("Fetch(%q): expected ErrInvalidURL, got %v", raw, err)
		}
		expectActions(t, rec.snapshot(), core.LoadingChanged(false), core.FailureChanged(true))
	}
	f.Wait()
}

func TestFetcher_OversizedBodyIsNotRetried(t *testing.T) {
	t.Parallel()

	var hits atomic.Int32
	clock := newFakeClock()
	var reported error
	f := NewFetcher(Options{
		MaxBodySize: 4,
		AfterFunc:   clock.AfterFunc,
		OnError:     func(ctx context.Context, req fetcher.Request, err error) { reported = err },
	})
	f.client = &http.Client{Transport: roundTripFunc(func(r *http.Request) (*http.Response, error) {
		hits.Add(1)
		return okResponse(r, http.StatusOK, "0123456789"), nil
	})}

	rec := &recorder{}
	called := false
	err := f.Fetch(context.Background(), rec, fetcher.Request{URL: "http://news.test/big.html", Attempts: 3, Mode: fetcher.ModeRaw},
		func(ctx context.Context, body fetcher.Body) error {
			called = true
			return nil
		})
	if err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}
	f.Wait()

	if hits.Load() != 1 {
		t.Fatalf("expected a single request, got %d", hits.Load())
	}
	if len(clock.scheduled) != 0 {
		t.Fatalf("expected no retry to be scheduled")
	}
	if called {
		t.Fatalf("onSuccess must not run for an oversized body")
	}
	var rerr *fetcher.RequestError
	if !errors.As(reported, &rerr) || !errors.Is(reported, fetcher.ErrBodyTooLarge) {
		t.Fatalf("expected RequestError wrapping ErrBodyTooLarge, got %v", reported)
	}
	expectActions(t, rec.snapshot(),
		core.LoadingChanged(true),
		core.FailureChanged(false),
		core.LoadingChanged(false),
		core.FailureChanged(true),
	)
}

func TestFetcher_RecoversFromDroppedConnection(t *testing.T) {
	t.Parallel()

	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits.Add(1) == 1 {
			hj, ok := w.(http.Hijacker)
			if !ok {
				t.Errorf("response writer does not support hijacking")
				return
			}
			conn, _, err := hj.Hijack()
			if err == nil {
				_ = conn.Close()
			}
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"ok":true}`)
	}))
	defer srv.Close()

	f := NewFetcher(Options{RetryDelay: 5 * time.Millisecond})
	rec := &recorder{}
	var value any
	err := f.Fetch(context.Background(), rec, fetcher.Request{URL: srv.URL + "/data/tech.json", Attempts: 2, Mode: fetcher.ModeJSON},
		func(ctx context.Context, body fetcher.Body) error {
			value = body.Value
			return nil
		})
	if err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}
	f.Wait()

	if hits.Load() != 2 {
		t.Fatalf("expected 2 requests, got %d", hits.Load())
	}
	m, ok := value.(map[string]any)
	if !ok || m["ok"] != true {
		t.Fatalf("unexpected decoded value %#v", value)
	}
	expectActions(t, rec.snapshot(),
		core.LoadingChanged(true),
		core.FailureChanged(false),
		core.LoadingChanged(false),
	)
}
