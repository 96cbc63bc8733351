package core

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/lzhou1110/boardwatch/internal/extract"
	"github.com/lzhou1110/boardwatch/internal/match"
	"github.com/lzhou1110/boardwatch/internal/notify"
	"github.com/lzhou1110/boardwatch/internal/observability"
	"github.com/lzhou1110/boardwatch/internal/posting"
)

// SeenStore is the dedup capability a category scraper relies on. Diff
// filters out already-notified postings; Commit durably records a batch after
// its digest went out.
type SeenStore interface {
	Diff([]posting.Posting) []posting.Posting
	Commit(ids []string) error
	Len() int
}

// CycleResult summarizes one cycle for logging and the ops surface.
type CycleResult struct {
	NewCount     int `json:"new_count"`
	PagesFetched int `json:"pages_fetched"`
	PagesFailed  int `json:"pages_failed"`
}

// CategoryScraper runs the full cycle for one category: fetch pages, extract
// postings, match keywords, dedupe, notify, persist. It exclusively owns its
// seen store; the scheduler guarantees cycles never overlap.
type CategoryScraper struct {
	name              string
	subject           string
	pages             []string
	fetcher           extract.Fetcher
	extractor         extract.Extractor
	matcher           *match.Matcher
	store             SeenStore
	notifier          notify.Notifier
	fetchDescriptions bool
	logger            *slog.Logger
}

func NewCategoryScraper(
	name, subject string,
	pages []string,
	fetcher extract.Fetcher,
	extractor extract.Extractor,
	matcher *match.Matcher,
	store SeenStore,
	notifier notify.Notifier,
	fetchDescriptions bool,
	logger *slog.Logger,
) *CategoryScraper {
	return &CategoryScraper{
		name:              name,
		subject:           subject,
		pages:             pages,
		fetcher:           fetcher,
		extractor:         extractor,
		matcher:           matcher,
		store:             store,
		notifier:          notifier,
		fetchDescriptions: fetchDescriptions,
		logger:            logger.With("category", name),
	}
}

func (s *CategoryScraper) Name() string {
	return s.name
}

// RunCycle executes one complete pass. Transient page failures are skipped
// and counted; the seen store is updated iff the digest was dispatched (or
// the batch was empty).
func (s *CategoryScraper) RunCycle(ctx context.Context) (CycleResult, error) {
	start := time.Now()
	s.logger.Info("cycle start", "pages", len(s.pages), "seen", s.store.Len())

	var res CycleResult
	var matched []posting.Posting

	for i, pageURL := range s.pages {
		// Cancellation point between pages; in-flight calls finish naturally.
		if err := ctx.Err(); err != nil {
			return res, err
		}

		body, err := s.fetcher.Fetch(ctx, pageURL)
		if err != nil {
			res.PagesFailed++
			observability.IncPagesFailed(s.name)
			observability.IncError(observability.ClassifyFetchError(err), s.name)
			s.logger.Error("page fetch failed, skipping", "page", i+1, "url", pageURL, "error", err)
			continue
		}

		postings, err := s.extractor.Extract(body, pageURL)
		if err != nil {
			res.PagesFailed++
			observability.IncPagesFailed(s.name)
			observability.IncError(observability.ErrorParsing, s.name)
			s.logger.Error("page extraction failed, skipping", "page", i+1, "url", pageURL, "error", err)
			continue
		}

		res.PagesFetched++
		observability.IncPagesFetched(s.name)
		matched = append(matched, s.matcher.Filter(postings)...)
	}

	// A posting listed on two pages counts once, then drop everything
	// already notified.
	batch := posting.Dedupe(matched)
	fresh := s.store.Diff(batch)
	res.NewCount = len(fresh)
	observability.AddPostingsMatched(s.name, len(fresh))

	if len(fresh) == 0 {
		s.logger.Info("cycle end, nothing new",
			"pages_fetched", res.PagesFetched, "pages_failed", res.PagesFailed,
			"elapsed", time.Since(start).Round(time.Millisecond))
		observability.ObserveCycleDuration(s.name, time.Since(start).Seconds())
		return res, nil
	}

	if s.fetchDescriptions {
		s.enrich(ctx, fresh)
	}
	posting.SortNewestFirst(fresh)

	for _, p := range fresh {
		s.logger.Info("new posting", "id", p.ID, "title", p.Title, "date", p.Date)
	}

	if err := s.notifier.Notify(ctx, s.subject, fresh, s.matcher.Keywords()); err != nil {
		// Withhold the seen-id commit so the whole batch is retried next
		// cycle. Duplicate digests beat dropped postings.
		observability.IncError(observability.ErrorMail, s.name)
		s.logger.Error("digest dispatch failed, batch will be retried", "error", err)
		return res, fmt.Errorf("notify: %w", err)
	}
	observability.IncNotificationsSent(s.name)

	ids := make([]string, len(fresh))
	for i, p := range fresh {
		ids[i] = p.ID
	}
	if err := s.store.Commit(ids); err != nil {
		observability.IncError(observability.ErrorStore, s.name)
		s.logger.Error("seen store commit failed, postings may be re-notified", "error", err)
		return res, fmt.Errorf("commit seen ids: %w", err)
	}

	s.logger.Info("cycle end",
		"new", res.NewCount, "pages_fetched", res.PagesFetched, "pages_failed", res.PagesFailed,
		"elapsed", time.Since(start).Round(time.Millisecond))
	observability.ObserveCycleDuration(s.name, time.Since(start).Seconds())
	return res, nil
}

// enrich pulls each posting's detail page to attach the body text to the
// digest. Failures leave the description empty; they never fail the cycle.
func (s *CategoryScraper) enrich(ctx context.Context, postings []posting.Posting) {
	de, ok := s.extractor.(extract.DescriptionExtractor)
	if !ok {
		return
	}
	for i := range postings {
		if ctx.Err() != nil {
			return
		}
		body, err := s.fetcher.Fetch(ctx, postings[i].Link)
		if err != nil {
			s.logger.Warn("detail fetch failed", "link", postings[i].Link, "error", err)
			continue
		}
		postings[i].Description = de.ExtractDescription(body)
	}
}
