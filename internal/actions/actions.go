package actions

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/bakkerme/newsreader/internal/core"
	"github.com/bakkerme/newsreader/internal/fetcher"
	"github.com/bakkerme/newsreader/internal/transform"
)

const (
	categoryKey = "category"
	articleKey  = "article"
)

type Config struct {
	// BaseURL is the site root the data/ paths are resolved against.
	BaseURL string
	// Attempts is the total number of tries per fetch. Defaults to 1.
	Attempts int
}

// Actions turns category and article selections into fetches and the actions
// that describe them.
type Actions struct {
	fetcher     fetcher.Fetcher
	transformer *transform.Transformer
	baseURL     *url.URL
	attempts    int
}

func New(f fetcher.Fetcher, t *transform.Transformer, cfg Config) (*Actions, error) {
	if f == nil {
		return nil, fmt.Errorf("fetcher is required")
	}
	if t == nil {
		t = transform.New()
	}
	base, err := parseBaseURL(cfg.BaseURL)
	if err != nil {
		return nil, err
	}
	attempts := cfg.Attempts
	if attempts <= 0 {
		attempts = 1
	}
	return &Actions{fetcher: f, transformer: t, baseURL: base, attempts: attempts}, nil
}

// CategoryUpdated selects category and fetches its listing unless a cached
// copy can be used offline, there is nothing to fetch, or a fetch is already
// running.
func (a *Actions) CategoryUpdated(ctx context.Context, dispatch core.Dispatcher, category *core.Category, offline, loading bool) error {
	dispatch.Dispatch(core.CategoryUpdated(category))

	if (offline && category != nil && category.Items != nil) || category == nil || loading {
		dispatch.Dispatch(core.FailureChanged(false))
		return nil
	}

	ctx = core.WithLogger(ctx, core.LoggerFromContext(ctx).With("category", category.Name))
	name := category.Name

	if feed := strings.TrimSpace(category.Feed); feed != "" {
		req := fetcher.Request{URL: a.resolve(feed), Attempts: a.attempts, Mode: fetcher.ModeRaw, Key: categoryKey}
		return a.fetcher.Fetch(ctx, dispatch, req, func(ctx context.Context, body fetcher.Body) error {
			raw, err := transform.ParseFeed(body.Text)
			if err != nil {
				return &fetcher.ParseError{URL: req.URL, Err: err}
			}
			dispatch.Dispatch(core.CategoryFetched(a.transformer.ParseCategoryItems(raw, name)))
			return nil
		})
	}

	req := fetcher.Request{URL: a.CategoryURL(name), Attempts: a.attempts, Mode: fetcher.ModeJSON, Key: categoryKey}
	return a.fetcher.Fetch(ctx, dispatch, req, func(ctx context.Context, body fetcher.Body) error {
		var raw transform.Listing
		if err := body.Decode(&raw); err != nil {
			return &fetcher.ParseError{URL: req.URL, Err: err}
		}
		dispatch.Dispatch(core.CategoryFetched(a.transformer.ParseCategoryItems(raw, name)))
		return nil
	})
}

// ArticleUpdated selects article and fetches its body under the same rules as
// CategoryUpdated.
func (a *Actions) ArticleUpdated(ctx context.Context, dispatch core.Dispatcher, article *core.Article, offline, loading bool) error {
	dispatch.Dispatch(core.ArticleUpdated(article))

	if (offline && article != nil && article.HTML != "") || article == nil || loading {
		dispatch.Dispatch(core.FailureChanged(false))
		return nil
	}

	ctx = core.WithLogger(ctx, core.LoggerFromContext(ctx).With("article_id", article.ID))

	req := fetcher.Request{URL: a.ArticleURL(article.ID), Attempts: a.attempts, Mode: fetcher.ModeRaw, Key: articleKey}
	return a.fetcher.Fetch(ctx, dispatch, req, func(ctx context.Context, body fetcher.Body) error {
		html, err := a.transformer.FormatHTML(body.Text)
		if err != nil {
			return fmt.Errorf("format article %s: %w", article.ID, err)
		}
		dispatch.Dispatch(core.ArticleFetched(html))
		return nil
	})
}

func FailureChanged(dispatch core.Dispatcher, failure bool) {
	dispatch.Dispatch(core.FailureChanged(failure))
}

func LoadingChanged(dispatch core.Dispatcher, loading bool) {
	dispatch.Dispatch(core.LoadingChanged(loading))
}

// Wait blocks until the fetches started by this Actions have settled.
func (a *Actions) Wait() {
	a.fetcher.Wait()
}

func (a *Actions) CategoryURL(name string) string {
	return a.resolveRef(&url.URL{Path: "data/" + name + ".json"})
}

func (a *Actions) ArticleURL(id string) string {
	return a.resolveRef(&url.URL{Path: "data/articles/" + id + ".html"})
}

func (a *Actions) resolve(ref string) string {
	u, err := url.Parse(ref)
	if err != nil {
		u = &url.URL{Path: ref}
	}
	return a.resolveRef(u)
}

func (a *Actions) resolveRef(u *url.URL) string {
	return a.baseURL.ResolveReference(u).String()
}

func parseBaseURL(raw string) (*url.URL, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, fmt.Errorf("base url is required")
	}
	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("base url %q must be absolute", raw)
	}
	// Resolve data/ paths below the base, not beside it.
	if !strings.HasSuffix(u.Path, "/") {
		u.Path += "/"
	}
	return u, nil
}
