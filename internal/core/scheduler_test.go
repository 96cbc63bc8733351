package core

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/lzhou1110/boardwatch/internal/extract"
	"github.com/lzhou1110/boardwatch/internal/match"
	"github.com/lzhou1110/boardwatch/internal/notify"
	"github.com/lzhou1110/boardwatch/internal/posting"
)

func mustMatcher(t *testing.T) *match.Matcher {
	t.Helper()
	m, err := match.New([]string{"出租", "rental"})
	if err != nil {
		t.Fatal(err)
	}
	return m
}

func registeredScraper(t *testing.T, name string, fetcher extract.Fetcher, notifier notify.Notifier) *CategoryScraper {
	t.Helper()
	return NewCategoryScraper(name, "subject", []string{"p1"}, fetcher, &lineExtractor{}, mustMatcher(t), newStore(t), notifier, false, discard())
}

// blockingFetcher parks every fetch until released.
type blockingFetcher struct {
	started chan struct{}
	release chan struct{}
	once    sync.Once
}

func (f *blockingFetcher) Fetch(ctx context.Context, url string) ([]byte, error) {
	f.once.Do(func() { close(f.started) })
	select {
	case <-f.release:
	case <-ctx.Done():
	}
	return []byte("1|出租|7/4/2025"), nil
}

func TestScheduler_RunOnce(t *testing.T) {
	fetcher := &fakeFetcher{pages: map[string]string{"p1": "1|两房一厅出租|7/4/2025"}}
	notifier := &fakeNotifier{}
	sched := NewScheduler(discard())
	sched.Register(registeredScraper(t, "rental", fetcher, notifier), time.Hour)

	res, err := sched.RunOnce(context.Background(), "rental")
	if err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	if res.NewCount != 1 {
		t.Errorf("NewCount = %d", res.NewCount)
	}

	st := sched.Status()["rental"]
	if st.Running || st.LastRun.IsZero() || st.LastResult.NewCount != 1 || st.LastError != "" {
		t.Errorf("status = %+v", st)
	}
}

func TestScheduler_RunOnceUnknownCategory(t *testing.T) {
	sched := NewScheduler(discard())
	_, err := sched.RunOnce(context.Background(), "nope")
	if !errors.Is(err, ErrUnknownCategory) {
		t.Errorf("err = %v, want ErrUnknownCategory", err)
	}
}

func TestScheduler_RunOnceRefusesOverlap(t *testing.T) {
	fetcher := &blockingFetcher{started: make(chan struct{}), release: make(chan struct{})}
	s := registeredScraper(t, "rental", fetcher, &fakeNotifier{})

	sched := NewScheduler(discard())
	sched.Register(s, time.Hour)

	done := make(chan struct{})
	go func() {
		defer close(done)
		sched.RunOnce(context.Background(), "rental")
	}()
	<-fetcher.started

	if _, err := sched.RunOnce(context.Background(), "rental"); !errors.Is(err, ErrCycleInFlight) {
		t.Errorf("err = %v, want ErrCycleInFlight", err)
	}

	close(fetcher.release)
	<-done
}

func TestScheduler_StartRunsImmediatelyAndStopsOnCancel(t *testing.T) {
	fetcher := &fakeFetcher{pages: map[string]string{"p1": "1|两房一厅出租|7/4/2025"}}
	notifier := &fakeNotifier{}
	sched := NewScheduler(discard())
	sched.Register(registeredScraper(t, "rental", fetcher, notifier), time.Hour)

	ctx, cancel := context.WithCancel(context.Background())
	sched.Start(ctx)

	deadline := time.After(5 * time.Second)
	for sched.Status()["rental"].LastRun.IsZero() {
		select {
		case <-deadline:
			t.Fatal("first cycle never ran")
		case <-time.After(10 * time.Millisecond):
		}
	}

	cancel()
	waited := make(chan struct{})
	go func() {
		sched.Wait()
		close(waited)
	}()
	select {
	case <-waited:
	case <-time.After(5 * time.Second):
		t.Fatal("scheduler did not stop after cancel")
	}

	if len(notifier.calls) != 1 {
		t.Errorf("notifier called %d times, want one immediate cycle", len(notifier.calls))
	}
}

func TestScheduler_FailingCategoryDoesNotStopOthers(t *testing.T) {
	good := &fakeFetcher{pages: map[string]string{"p1": "1|两房一厅出租|7/4/2025"}}
	goodNotifier := &fakeNotifier{}
	badNotifier := &fakeNotifier{err: errors.New("smtp down")}

	sched := NewScheduler(discard())
	sched.Register(registeredScraper(t, "rental", good, goodNotifier), time.Hour)
	sched.Register(registeredScraper(t, "jobs", &fakeFetcher{pages: map[string]string{"p1": "2|招聘出租|7/4/2025"}}, badNotifier), time.Hour)

	ctx, cancel := context.WithCancel(context.Background())
	sched.Start(ctx)

	deadline := time.After(5 * time.Second)
	for {
		st := sched.Status()
		if !st["rental"].LastRun.IsZero() && !st["jobs"].LastRun.IsZero() {
			break
		}
		select {
		case <-deadline:
			t.Fatalf("categories never completed: %+v", st)
		case <-time.After(10 * time.Millisecond):
		}
	}
	cancel()
	sched.Wait()

	st := sched.Status()
	if st["jobs"].LastError == "" {
		t.Error("failing category reported no error")
	}
	if st["rental"].LastError != "" {
		t.Errorf("healthy category reported error %q", st["rental"].LastError)
	}
	if len(goodNotifier.calls) != 1 {
		t.Errorf("healthy category sent %d digests", len(goodNotifier.calls))
	}
}

func TestScheduler_PanicIsContained(t *testing.T) {
	fetcher := &fakeFetcher{pages: map[string]string{"p1": "whatever"}}
	s := NewCategoryScraper("boom", "subject", []string{"p1"}, fetcher, panicExtractor{}, mustMatcher(t), newStore(t), &fakeNotifier{}, false, discard())

	sched := NewScheduler(discard())
	sched.Register(s, time.Hour)

	_, err := sched.RunOnce(context.Background(), "boom")
	if err == nil || !strings.Contains(err.Error(), "cycle panic") {
		t.Fatalf("err = %v", err)
	}
	if got := sched.Status()["boom"].LastError; !strings.Contains(got, "cycle panic") {
		t.Errorf("status LastError = %q", got)
	}
}

type panicExtractor struct{}

func (panicExtractor) Name() string { return "panic" }

func (panicExtractor) PageURLs(base string, pages int) ([]string, error) {
	return []string{base}, nil
}

func (panicExtractor) Extract(content []byte, baseURL string) ([]posting.Posting, error) {
	panic("bad row layout")
}

func TestScheduler_Names(t *testing.T) {
	sched := NewScheduler(discard())
	sched.Register(registeredScraper(t, "rental", &fakeFetcher{}, &fakeNotifier{}), time.Hour)
	sched.Register(registeredScraper(t, "jobs", &fakeFetcher{}, &fakeNotifier{}), time.Hour)

	names := sched.Names()
	if len(names) != 2 || names[0] != "jobs" || names[1] != "rental" {
		t.Errorf("Names() = %v", names)
	}
}
