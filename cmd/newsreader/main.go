package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/bakkerme/newsreader/internal/actions"
	"github.com/bakkerme/newsreader/internal/config"
	"github.com/bakkerme/newsreader/internal/core"
	"github.com/bakkerme/newsreader/internal/fetcher/impl"
	"github.com/bakkerme/newsreader/internal/observability/otelx"
	"github.com/bakkerme/newsreader/internal/runner"
	"github.com/bakkerme/newsreader/internal/store"
	"github.com/bakkerme/newsreader/internal/transform"
	"github.com/bakkerme/newsreader/internal/trigger"
	"github.com/joho/godotenv"
	"github.com/lmittmann/tint"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func main() {
	_ = godotenv.Load()
	env := config.LoadEnv()

	categoriesPath := flag.String("config", env.CategoriesPath, "path to categories document")
	baseURL := flag.String("base-url", env.BaseURL, "site root serving data/")
	categoryName := flag.String("category", "", "category to list")
	articleID := flag.String("article", "", "article id to show")
	attempts := flag.Int("attempts", env.Fetch.Attempts, "total attempts per request, including the first")
	format := flag.String("format", "text", "output format: text, json or markdown")
	watch := flag.String("watch", "", "cron schedule to refresh the category on; defaults to the categories file's refresh")
	timezone := flag.String("timezone", "", "timezone for -watch")
	flag.Parse()

	logger := slog.New(tint.NewHandler(os.Stderr, &tint.Options{
		Level:      env.LogLevel,
		TimeFormat: time.RFC3339,
	}))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, logger, env, options{
		categoriesPath: *categoriesPath,
		baseURL:        *baseURL,
		categoryName:   *categoryName,
		articleID:      *articleID,
		attempts:       *attempts,
		format:         *format,
		watch:          *watch,
		timezone:       *timezone,
	}); err != nil {
		logger.Error("newsreader failed", "error", err)
		os.Exit(1)
	}
}

type options struct {
	categoriesPath string
	baseURL        string
	categoryName   string
	articleID      string
	attempts       int
	format         string
	watch          string
	timezone       string
}

func run(ctx context.Context, logger *slog.Logger, env config.EnvConfig, opts options) error {
	shutdown, err := otelx.Init(ctx, logger, env.OTel)
	if err != nil {
		return fmt.Errorf("init tracing: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdown(shutdownCtx); err != nil {
			logger.Warn("tracing shutdown failed", "error", err)
		}
	}()

	if env.MetricsAddr != "" {
		go serveMetrics(logger, env.MetricsAddr)
	}

	doc, err := loadCategories(opts.categoriesPath)
	if err != nil {
		return err
	}

	errs := &runner.Errors{}
	f := impl.NewFetcher(impl.Options{
		Timeout:     env.Fetch.HTTPTimeout,
		UserAgent:   env.Fetch.UserAgent,
		RetryDelay:  env.Fetch.RetryDelay,
		MaxBodySize: env.Fetch.MaxBodyBytes,
		OnError:     errs.Report,
	})
	tr := transform.New()
	if env.SanitizeArticles {
		tr = transform.NewSanitizing()
	}
	a, err := actions.New(f, tr, actions.Config{BaseURL: opts.baseURL, Attempts: opts.attempts})
	if err != nil {
		return err
	}
	r := runner.New(logger, a, store.New(store.State{}), errs)

	switch {
	case opts.articleID != "":
		state, err := r.ShowArticle(ctx, &core.Article{ID: opts.articleID, Category: opts.categoryName}, false)
		if err != nil {
			return err
		}
		return writeArticle(os.Stdout, opts.format, state)
	case opts.categoryName != "":
		category := doc.Find(opts.categoryName)
		if category == nil {
			category = &core.Category{Name: opts.categoryName}
		}
		schedule := watchSchedule(opts.watch, doc)
		if schedule == "" {
			return refreshOnce(ctx, r, category, opts.format)
		}
		return watchCategory(ctx, logger, r, category, schedule, opts.timezone, opts.format)
	default:
		return fmt.Errorf("one of -category or -article is required")
	}
}

func refreshOnce(ctx context.Context, r *runner.Runner, category *core.Category, format string) error {
	state, err := r.RefreshCategory(ctx, category, false)
	if err != nil {
		return err
	}
	return writeCategory(os.Stdout, format, state)
}

func watchCategory(ctx context.Context, logger *slog.Logger, r *runner.Runner, category *core.Category, schedule, timezone, format string) error {
	if _, err := r.RefreshCategory(ctx, category, false); err != nil {
		logger.Warn("initial refresh failed", "error", err)
	} else if err := writeCategory(os.Stdout, format, r.Store().State()); err != nil {
		return err
	}

	cron := trigger.NewCron(schedule, timezone)
	err := r.Watch(ctx, cron, category, func(state store.State, err error) {
		if err != nil {
			return
		}
		if werr := writeCategory(os.Stdout, format, state); werr != nil {
			logger.Error("write category failed", "error", werr)
		}
	})
	if err != nil {
		return err
	}
	logger.Info("watching category", "category", category.Name, "schedule", schedule)
	<-ctx.Done()
	return nil
}

// watchSchedule prefers the -watch flag over the categories document.
func watchSchedule(flagValue string, doc *config.CategoriesDocument) string {
	if s := strings.TrimSpace(flagValue); s != "" {
		return s
	}
	if doc == nil {
		return ""
	}
	return strings.TrimSpace(doc.Refresh)
}

func loadCategories(path string) (*config.CategoriesDocument, error) {
	if path == "" {
		return &config.CategoriesDocument{}, nil
	}
	doc, err := config.LoadCategories(path)
	if errors.Is(err, os.ErrNotExist) {
		return &config.CategoriesDocument{}, nil
	}
	return doc, err
}

func serveMetrics(logger *slog.Logger, addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	logger.Info("serving metrics", "addr", addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("metrics server stopped", "error", err)
	}
}

func writeCategory(w io.Writer, format string, state store.State) error {
	if state.Category == nil {
		return nil
	}
	switch format {
	case "json":
		return writeJSON(w, state.Category)
	case "markdown":
		for _, item := range state.Category.Items {
			link := ""
			if item.Href != nil {
				link = *item.Href
			}
			if _, err := fmt.Fprintf(w, "- [%s](%s) · %s · %s\n", item.Headline, link, item.TimeAgo, item.ReadTime); err != nil {
				return err
			}
		}
		return nil
	default:
		for _, item := range state.Category.Items {
			if _, err := fmt.Fprintf(w, "%s\n  %s | %s | %s\n  %s\n\n", item.Headline, item.Author, item.TimeAgo, item.ReadTime, item.Summary); err != nil {
				return err
			}
		}
		return nil
	}
}

func writeArticle(w io.Writer, format string, state store.State) error {
	if state.Article == nil {
		return nil
	}
	switch format {
	case "json":
		return writeJSON(w, state.Article)
	case "markdown", "text":
		md, err := transform.HTMLToMarkdown(state.Article.HTML)
		if err != nil {
			return fmt.Errorf("render article: %w", err)
		}
		_, err = fmt.Fprintln(w, md)
		return err
	default:
		_, err := fmt.Fprintln(w, state.Article.HTML)
		return err
	}
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
