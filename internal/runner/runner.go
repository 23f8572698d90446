package runner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/bakkerme/newsreader/internal/actions"
	"github.com/bakkerme/newsreader/internal/core"
	"github.com/bakkerme/newsreader/internal/fetcher"
	"github.com/bakkerme/newsreader/internal/store"
)

var ErrFetchFailed = errors.New("fetch failed")

// Errors collects terminal fetch errors. Its Report method is a
// fetcher.ErrorHandler.
type Errors struct {
	mu   sync.Mutex
	errs []error
}

func (e *Errors) Report(ctx context.Context, req fetcher.Request, err error) {
	if e == nil || err == nil {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.errs = append(e.errs, err)
}

// Drain returns the collected errors joined into one, and resets the collector.
func (e *Errors) Drain() error {
	if e == nil {
		return nil
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	err := errors.Join(e.errs...)
	e.errs = nil
	return err
}

// Trigger produces refresh ticks until its context is done.
type Trigger interface {
	Start(ctx context.Context) (<-chan time.Time, error)
}

// Runner drives the data actions against a store, one selection at a time.
type Runner struct {
	logger  *slog.Logger
	actions *actions.Actions
	store   *store.Store
	errs    *Errors
}

// New builds a Runner. errs should be the collector wired into the fetcher
// behind a; it may be nil when errors only need to be logged.
func New(logger *slog.Logger, a *actions.Actions, s *store.Store, errs *Errors) *Runner {
	if logger == nil {
		logger = slog.Default()
	}
	if s == nil {
		s = store.New(store.State{})
	}
	return &Runner{logger: logger, actions: a, store: s, errs: errs}
}

func (r *Runner) Store() *store.Store {
	return r.store
}

// RefreshCategory selects category and blocks until its listing has settled.
// An offline run reuses cached items when the category carries them.
func (r *Runner) RefreshCategory(ctx context.Context, category *core.Category, offline bool) (store.State, error) {
	if category == nil {
		return r.store.State(), fmt.Errorf("category is required")
	}
	ctx = core.WithLogger(ctx, r.logger)
	if err := r.actions.CategoryUpdated(ctx, r.store, category, offline, r.store.State().Loading); err != nil {
		return r.store.State(), err
	}
	r.actions.Wait()
	return r.settled()
}

// ShowArticle selects article and blocks until its body has settled.
func (r *Runner) ShowArticle(ctx context.Context, article *core.Article, offline bool) (store.State, error) {
	if article == nil {
		return r.store.State(), fmt.Errorf("article is required")
	}
	ctx = core.WithLogger(ctx, r.logger)
	if err := r.actions.ArticleUpdated(ctx, r.store, article, offline, r.store.State().Loading); err != nil {
		return r.store.State(), err
	}
	r.actions.Wait()
	return r.settled()
}

// Watch refreshes category on every trigger tick until ctx is done.
func (r *Runner) Watch(ctx context.Context, trigger Trigger, category *core.Category, onRefresh func(store.State, error)) error {
	if trigger == nil {
		return fmt.Errorf("trigger is required")
	}
	ticks, err := trigger.Start(ctx)
	if err != nil {
		return err
	}
	go r.listen(ctx, ticks, category, onRefresh)
	return nil
}

func (r *Runner) listen(ctx context.Context, ticks <-chan time.Time, category *core.Category, onRefresh func(store.State, error)) {
	for {
		select {
		case <-ctx.Done():
			return
		case tick, ok := <-ticks:
			if !ok {
				return
			}
			r.logger.Info("refresh tick", "category", category.Name, "time", tick)
			// A fresh copy without items forces a fetch.
			selection := &core.Category{Name: category.Name, Title: category.Title, Feed: category.Feed}
			state, err := r.RefreshCategory(ctx, selection, false)
			if err != nil {
				r.logger.Error("refresh failed", "category", category.Name, "error", err)
			}
			if onRefresh != nil {
				onRefresh(state, err)
			}
		}
	}
}

func (r *Runner) settled() (store.State, error) {
	state := r.store.State()
	if err := r.errs.Drain(); err != nil {
		return state, err
	}
	if state.Failure {
		return state, ErrFetchFailed
	}
	return state, nil
}
