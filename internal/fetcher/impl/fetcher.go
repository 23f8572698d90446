package impl

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/bakkerme/newsreader/internal/core"
	"github.com/bakkerme/newsreader/internal/fetcher"
	"github.com/bakkerme/newsreader/internal/observability/metrics"
	"github.com/bakkerme/newsreader/internal/retry"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/bakkerme/newsreader/internal/fetcher"

// Options configures a Fetcher. The zero value is usable.
type Options struct {
	// Timeout bounds a single attempt. Zero means no timeout.
	Timeout     time.Duration
	UserAgent   string
	RetryDelay  time.Duration
	MaxBodySize int64
	// AfterFunc schedules retries; tests substitute a fake clock.
	AfterFunc retry.AfterFunc
	OnError   fetcher.ErrorHandler
}

type Fetcher struct {
	client      *http.Client
	userAgent   string
	delay       time.Duration
	maxBodySize int64
	after       retry.AfterFunc
	onError     fetcher.ErrorHandler
	tracer      trace.Tracer

	mu         sync.Mutex
	debouncers map[string]*retry.Debouncer
	inflight   sync.WaitGroup
}

func NewFetcher(options Options) *Fetcher {
	userAgent := strings.TrimSpace(options.UserAgent)
	if userAgent == "" {
		userAgent = "newsreader/0.1"
	}
	delay := options.RetryDelay
	if delay <= 0 {
		delay = retry.DefaultDelay
	}
	maxBodySize := options.MaxBodySize
	if maxBodySize <= 0 {
		maxBodySize = 10 << 20 // 10 MiB
	}
	after := options.AfterFunc
	if after == nil {
		after = retry.SystemAfterFunc
	}
	return &Fetcher{
		client:      &http.Client{Timeout: options.Timeout},
		userAgent:   userAgent,
		delay:       delay,
		maxBodySize: maxBodySize,
		after:       after,
		onError:     options.OnError,
		tracer:      otel.Tracer(tracerName),
		debouncers:  map[string]*retry.Debouncer{},
	}
}

func (f *Fetcher) Fetch(ctx context.Context, dispatch core.Dispatcher, req fetcher.Request, onSuccess fetcher.SuccessFunc) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if dispatch == nil {
		dispatch = core.DispatchFunc(nil)
	}
	// Requests cannot be aborted by the caller once issued.
	ctx = context.WithoutCancel(ctx)

	req.URL = strings.TrimSpace(req.URL)
	if err := fetcher.CheckURL(req.URL); err != nil {
		f.fail(ctx, dispatch, req, "invalid", err)
		return err
	}
	if req.Attempts <= 0 {
		f.fail(ctx, dispatch, req, "invalid", fetcher.ErrInvalidAttempts)
		return fetcher.ErrInvalidAttempts
	}
	if req.Key == "" {
		req.Key = req.URL
	}

	requestID := uuid.NewString()
	logger := core.LoggerFromContext(ctx).With("request_id", requestID, "url", req.URL, "mode", req.Mode.String())
	ctx = core.WithLogger(core.WithRequestID(ctx, requestID), logger)

	dispatch.Dispatch(core.LoadingChanged(true))
	dispatch.Dispatch(core.FailureChanged(false))

	f.inflight.Add(1)
	go func() {
		defer f.inflight.Done()
		f.attempt(ctx, dispatch, req, onSuccess, 1)
	}()
	return nil
}

func (f *Fetcher) Wait() {
	f.inflight.Wait()
}

func (f *Fetcher) attempt(ctx context.Context, dispatch core.Dispatcher, req fetcher.Request, onSuccess fetcher.SuccessFunc, n int) {
	logger := core.LoggerFromContext(ctx)
	mode := req.Mode.String()

	ctx, span := f.tracer.Start(ctx, "fetch.attempt", trace.WithAttributes(
		attribute.String("http.url", req.URL),
		attribute.String("fetch.mode", mode),
		attribute.Int("fetch.attempt", n),
		attribute.Int("fetch.attempts_remaining", req.Attempts),
	))
	defer span.End()

	metrics.FetchAttempts.WithLabelValues(mode).Inc()
	started := time.Now()
	text, statusCode, status, err := f.get(ctx, req.URL)
	metrics.FetchLatency.WithLabelValues(mode).Observe(time.Since(started).Seconds())

	var rerr *fetcher.RequestError
	if errors.As(err, &rerr) {
		span.RecordError(rerr)
		span.SetStatus(codes.Error, rerr.Error())
		f.fail(ctx, dispatch, req, "request", rerr)
		return
	}
	if err != nil {
		terr := &fetcher.TransportError{URL: req.URL, Attempt: n, Err: err}
		span.RecordError(terr)
		if req.Attempts > 1 {
			next := req
			next.Attempts--
			logger.Warn("fetch failed, retrying", "attempt", n, "attempts_remaining", next.Attempts, "delay", f.delay, "error", err)
			f.scheduleRetry(ctx, dispatch, next, onSuccess, n+1)
			return
		}
		span.SetStatus(codes.Error, "attempts exhausted")
		f.fail(ctx, dispatch, req, "transport", terr)
		return
	}

	span.SetAttributes(attribute.Int("http.status_code", statusCode))
	dispatch.Dispatch(core.LoadingChanged(false))

	if statusCode < 200 || statusCode >= 300 {
		serr := &fetcher.StatusError{URL: req.URL, StatusCode: statusCode, Status: status}
		span.SetStatus(codes.Error, serr.Error())
		dispatch.Dispatch(core.FailureChanged(true))
		metrics.FetchFailures.WithLabelValues(mode, "status").Inc()
		f.report(ctx, req, serr)
		return
	}

	body := fetcher.Body{Text: text}
	if req.Mode == fetcher.ModeJSON {
		if err := body.Decode(&body.Value); err != nil {
			perr := &fetcher.ParseError{URL: req.URL, Err: err}
			span.SetStatus(codes.Error, perr.Error())
			metrics.FetchFailures.WithLabelValues(mode, "parse").Inc()
			f.report(ctx, req, perr)
			return
		}
	}

	logger.Debug("fetch succeeded", "attempt", n, "status", statusCode, "bytes", len(text))
	if onSuccess == nil {
		return
	}
	if err := onSuccess(ctx, body); err != nil {
		span.SetStatus(codes.Error, err.Error())
		metrics.FetchFailures.WithLabelValues(mode, "callback").Inc()
		f.report(ctx, req, err)
	}
}

// scheduleRetry coalesces retries per logical request: a retry scheduled while
// another is pending for the same key replaces it.
func (f *Fetcher) scheduleRetry(ctx context.Context, dispatch core.Dispatcher, req fetcher.Request, onSuccess fetcher.SuccessFunc, n int) {
	f.mu.Lock()
	defer f.mu.Unlock()

	d, ok := f.debouncers[req.Key]
	if !ok {
		d = retry.NewDebouncer(f.after)
		f.debouncers[req.Key] = d
	}

	f.inflight.Add(1)
	replaced := d.Debounce(f.delay, func() {
		defer f.inflight.Done()
		f.attempt(ctx, dispatch, req, onSuccess, n)
		f.release(req.Key, d)
	})
	if replaced {
		// The superseded retry will never run.
		f.inflight.Done()
		core.LoggerFromContext(ctx).Debug("pending retry superseded", "key", req.Key)
	}
	metrics.FetchRetries.WithLabelValues(req.Mode.String(), fmt.Sprint(replaced)).Inc()
}

func (f *Fetcher) release(key string, d *retry.Debouncer) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.debouncers[key] == d && !d.Pending() {
		delete(f.debouncers, key)
	}
}

func (f *Fetcher) fail(ctx context.Context, dispatch core.Dispatcher, req fetcher.Request, errorType string, err error) {
	dispatch.Dispatch(core.LoadingChanged(false))
	dispatch.Dispatch(core.FailureChanged(true))
	metrics.FetchFailures.WithLabelValues(req.Mode.String(), errorType).Inc()
	f.report(ctx, req, err)
}

func (f *Fetcher) report(ctx context.Context, req fetcher.Request, err error) {
	core.LoggerFromContext(ctx).Error("fetch failed", "error", err)
	if f.onError != nil {
		f.onError(ctx, req, err)
	}
}

// get returns a *fetcher.RequestError for failures a retry would repeat; any
// other error is a transport failure.
func (f *Fetcher) get(ctx context.Context, url string) (string, int, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", 0, "", &fetcher.RequestError{URL: url, Err: err}
	}
	req.Header.Set("User-Agent", f.userAgent)

	resp, err := f.client.Do(req)
	if err != nil {
		return "", 0, "", err
	}
	defer resp.Body.Close()

	limited := io.LimitReader(resp.Body, f.maxBodySize+1)
	body, err := io.ReadAll(limited)
	if err != nil {
		return "", 0, "", err
	}
	if int64(len(body)) > f.maxBodySize {
		return "", 0, "", &fetcher.RequestError{URL: url, Err: fmt.Errorf("%w: limit %d bytes", fetcher.ErrBodyTooLarge, f.maxBodySize)}
	}
	return string(body), resp.StatusCode, resp.Status, nil
}
