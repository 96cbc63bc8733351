package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/lzhou1110/boardwatch/internal/config"
	"github.com/lzhou1110/boardwatch/internal/core"
	"github.com/lzhou1110/boardwatch/internal/extract"
	"github.com/lzhou1110/boardwatch/internal/httpx"
	"github.com/lzhou1110/boardwatch/internal/logx"
	"github.com/lzhou1110/boardwatch/internal/match"
	"github.com/lzhou1110/boardwatch/internal/notify"
	"github.com/lzhou1110/boardwatch/internal/ops"
	"github.com/lzhou1110/boardwatch/internal/seen"
)

func main() {
	configPath := flag.String("config", "config.toml", "path to the TOML config file")
	once := flag.Bool("once", false, "run one cycle per category and exit")
	categories := flag.String("categories", "", "comma-separated category names to run (default: all)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	logger, err := logx.New(cfg.LogDir, "boardwatch")
	if err != nil {
		fmt.Fprintf(os.Stderr, "logging: %v\n", err)
		os.Exit(1)
	}
	slog.SetDefault(logger)

	fetcher := httpx.New(httpx.Options{
		UserAgent:     cfg.Fetch.UserAgent,
		Timeout:       cfg.Fetch.Timeout(),
		Headers:       cfg.Fetch.Headers,
		RespectRobots: cfg.Fetch.RespectRobots,
		HostDelay:     cfg.Fetch.HostDelay(),
	})

	mailer, err := notify.NewMailer(notify.SMTPConfig{
		Server:   cfg.Mail.Server,
		Port:     cfg.Mail.Port,
		Sender:   cfg.Mail.Sender,
		Password: cfg.Mail.Password,
		Receiver: cfg.Mail.Receiver,
	}, logger)
	if err != nil {
		logger.Error("mail transport setup failed", "error", err)
		os.Exit(1)
	}

	registry := extract.NewRegistry()
	registry.Register(extract.NewDadi360(logger))

	selected := selection(*categories)
	sched := core.NewScheduler(logger)
	var stores []*seen.Store

	for name, cat := range cfg.Categories {
		if len(selected) > 0 {
			if _, ok := selected[name]; !ok {
				continue
			}
		}
		// One broken category must not keep the others from starting.
		if err := cat.Validate(name); err != nil {
			logger.Error("skipping invalid category", "category", name, "error", err)
			continue
		}

		extractor, ok := registry.Get(cat.Extractor)
		if !ok {
			logger.Error("skipping category with unknown extractor",
				"category", name, "extractor", cat.Extractor, "known", registry.Names())
			continue
		}

		pages := cat.URLs
		if len(pages) == 0 {
			pages, err = extractor.PageURLs(cat.ForumURL, cat.Pages)
			if err != nil {
				logger.Error("skipping category with bad forum url", "category", name, "error", err)
				continue
			}
		}

		matcher, err := match.New(cat.Keywords)
		if err != nil {
			logger.Error("skipping category", "category", name, "error", err)
			continue
		}

		store, err := seen.Open(cat.SeenFile, logger)
		if err != nil {
			logger.Error("skipping category, seen store unavailable", "category", name, "error", err)
			continue
		}
		stores = append(stores, store)

		scraper := core.NewCategoryScraper(
			name, cat.Subject, pages,
			fetcher, extractor, matcher, store, mailer,
			cat.FetchDescriptions, logger,
		)
		sched.Register(scraper, cat.Interval())
	}

	defer func() {
		for _, st := range stores {
			st.Close()
		}
	}()

	names := sched.Names()
	if len(names) == 0 {
		logger.Error("no runnable categories, exiting")
		os.Exit(1)
	}
	logger.Info("categories ready", "categories", names)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if *once {
		runOnce(ctx, sched, names, logger)
		return
	}

	sched.Start(ctx)

	var srv *ops.Server
	if cfg.Ops.Port > 0 {
		srv = ops.NewServer(ctx, sched, fmt.Sprintf(":%d", cfg.Ops.Port), logger)
		go func() {
			logger.Info("ops server listening", "port", cfg.Ops.Port)
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.Error("ops server failed", "error", err)
			}
		}()
	}

	<-ctx.Done()
	logger.Info("shutting down")

	if srv != nil {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("ops server shutdown failed", "error", err)
		}
	}

	sched.Wait()
	logger.Info("shutdown complete")
}

func runOnce(ctx context.Context, sched *core.Scheduler, names []string, logger *slog.Logger) {
	for _, name := range names {
		res, err := sched.RunOnce(ctx, name)
		if err != nil {
			logger.Error("cycle failed", "category", name, "error", err)
			continue
		}
		logger.Info("cycle complete", "category", name,
			"new", res.NewCount, "pages_fetched", res.PagesFetched, "pages_failed", res.PagesFailed)
	}
}

func selection(list string) map[string]struct{} {
	out := map[string]struct{}{}
	for _, name := range strings.Split(list, ",") {
		if name = strings.TrimSpace(name); name != "" {
			out[name] = struct{}{}
		}
	}
	return out
}
