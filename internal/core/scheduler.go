package core

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"
)

var (
	ErrUnknownCategory = errors.New("unknown category")
	ErrCycleInFlight   = errors.New("a cycle is already running for this category")
)

// CycleStatus is the last known state of one category's schedule.
type CycleStatus struct {
	Interval   string      `json:"interval"`
	Running    bool        `json:"running"`
	LastRun    time.Time   `json:"last_run,omitzero"`
	LastResult CycleResult `json:"last_result"`
	LastError  string      `json:"last_error,omitempty"`
}

type slot struct {
	scraper  *CategoryScraper
	interval time.Duration

	runMu sync.Mutex // held for the duration of a cycle; forbids overlap

	statusMu sync.Mutex
	status   CycleStatus
}

// Scheduler drives the registered category scrapers on independent
// fixed-delay timers: the next cycle is armed only after the previous one
// completes, so a slow category can never overlap itself. A failure in one
// category never stops the others.
type Scheduler struct {
	logger *slog.Logger

	mu    sync.Mutex
	slots map[string]*slot
	wg    sync.WaitGroup
}

func NewScheduler(logger *slog.Logger) *Scheduler {
	return &Scheduler{
		logger: logger,
		slots:  map[string]*slot{},
	}
}

func (s *Scheduler) Register(scraper *CategoryScraper, interval time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.slots[scraper.Name()] = &slot{
		scraper:  scraper,
		interval: interval,
		status:   CycleStatus{Interval: interval.String()},
	}
}

func (s *Scheduler) Names() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	names := make([]string, 0, len(s.slots))
	for name := range s.slots {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Start launches one goroutine per registered category. Each runs a first
// cycle immediately, then reschedules interval after completion, until ctx is
// cancelled.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for name, sl := range s.slots {
		s.wg.Add(1)
		go func(name string, sl *slot) {
			defer s.wg.Done()
			s.loop(ctx, name, sl)
		}(name, sl)
	}
}

// Wait blocks until all category loops have exited.
func (s *Scheduler) Wait() {
	s.wg.Wait()
}

func (s *Scheduler) loop(ctx context.Context, name string, sl *slot) {
	s.logger.Info("category scheduled", "category", name, "interval", sl.interval)
	timer := time.NewTimer(0) // fire the first cycle immediately
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
		}
		s.runSlot(ctx, name, sl)
		timer.Reset(sl.interval) // fixed delay from completion, not from start
	}
}

// RunOnce triggers a single cycle for one category, for manual or debug
// invocation. It refuses to overlap a cycle already in flight.
func (s *Scheduler) RunOnce(ctx context.Context, name string) (CycleResult, error) {
	s.mu.Lock()
	sl, ok := s.slots[name]
	s.mu.Unlock()
	if !ok {
		return CycleResult{}, fmt.Errorf("%w: %s", ErrUnknownCategory, name)
	}
	if !sl.runMu.TryLock() {
		return CycleResult{}, ErrCycleInFlight
	}
	defer sl.runMu.Unlock()
	return s.runLocked(ctx, name, sl)
}

// Status reports the last cycle state of every category.
func (s *Scheduler) Status() map[string]CycleStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]CycleStatus, len(s.slots))
	for name, sl := range s.slots {
		sl.statusMu.Lock()
		out[name] = sl.status
		sl.statusMu.Unlock()
	}
	return out
}

func (s *Scheduler) runSlot(ctx context.Context, name string, sl *slot) {
	sl.runMu.Lock()
	defer sl.runMu.Unlock()
	s.runLocked(ctx, name, sl)
}

func (s *Scheduler) runLocked(ctx context.Context, name string, sl *slot) (res CycleResult, err error) {
	defer func() {
		// One category panicking must not take down the scheduler.
		if r := recover(); r != nil {
			err = fmt.Errorf("cycle panic: %v", r)
			s.logger.Error("category cycle panicked", "category", name, "panic", r)
		}
		sl.statusMu.Lock()
		sl.status.Running = false
		sl.status.LastRun = time.Now()
		sl.status.LastResult = res
		sl.status.LastError = ""
		if err != nil && !errors.Is(err, context.Canceled) {
			sl.status.LastError = err.Error()
		}
		sl.statusMu.Unlock()
	}()

	sl.statusMu.Lock()
	sl.status.Running = true
	sl.statusMu.Unlock()

	res, err = sl.scraper.RunCycle(ctx)
	return res, err
}
