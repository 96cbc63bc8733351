package observability

import (
	"sync"
	"sync/atomic"
)

type StatsSnapshot struct {
	PagesFetched      uint64            `json:"pages_fetched"`
	PagesFailed       uint64            `json:"pages_failed"`
	PostingsMatched   uint64            `json:"postings_matched"`
	NotificationsSent uint64            `json:"notifications_sent"`
	ErrorsTotal       uint64            `json:"errors_total"`
	CycleSecondsAvg   float64           `json:"cycle_seconds_avg"`
	ErrorsByType      map[string]uint64 `json:"errors_by_type,omitempty"`
	ErrorsByCategory  map[string]uint64 `json:"errors_by_category,omitempty"`
}

var (
	pagesFetched      uint64
	pagesFailed       uint64
	postingsMatched   uint64
	notificationsSent uint64
	errorsTotal       uint64

	cycleCount uint64
	cycleNanos uint64

	statsMu          sync.Mutex
	errorsByType     = map[string]uint64{}
	errorsByCategory = map[string]uint64{}
)

func IncPagesFetched(_ string) {
	atomic.AddUint64(&pagesFetched, 1)
}

func IncPagesFailed(_ string) {
	atomic.AddUint64(&pagesFailed, 1)
}

func AddPostingsMatched(_ string, n int) {
	if n > 0 {
		atomic.AddUint64(&postingsMatched, uint64(n))
	}
}

func IncNotificationsSent(_ string) {
	atomic.AddUint64(&notificationsSent, 1)
}

func ObserveCycleDuration(_ string, seconds float64) {
	if seconds <= 0 {
		return
	}
	atomic.AddUint64(&cycleCount, 1)
	atomic.AddUint64(&cycleNanos, uint64(seconds*1e9))
}

func IncError(errType, category string) {
	if errType == "" {
		errType = "unknown"
	}
	if category == "" {
		category = "unknown"
	}
	atomic.AddUint64(&errorsTotal, 1)
	statsMu.Lock()
	errorsByType[errType]++
	errorsByCategory[category]++
	statsMu.Unlock()
}

func Snapshot() StatsSnapshot {
	statsMu.Lock()
	errorsTypeCopy := copyMap(errorsByType)
	errorsCategoryCopy := copyMap(errorsByCategory)
	statsMu.Unlock()

	count := atomic.LoadUint64(&cycleCount)
	avg := 0.0
	if count > 0 {
		avg = float64(atomic.LoadUint64(&cycleNanos)) / float64(count) / 1e9
	}

	return StatsSnapshot{
		PagesFetched:      atomic.LoadUint64(&pagesFetched),
		PagesFailed:       atomic.LoadUint64(&pagesFailed),
		PostingsMatched:   atomic.LoadUint64(&postingsMatched),
		NotificationsSent: atomic.LoadUint64(&notificationsSent),
		ErrorsTotal:       atomic.LoadUint64(&errorsTotal),
		CycleSecondsAvg:   avg,
		ErrorsByType:      errorsTypeCopy,
		ErrorsByCategory:  errorsCategoryCopy,
	}
}

func copyMap(src map[string]uint64) map[string]uint64 {
	if len(src) == 0 {
		return map[string]uint64{}
	}
	out := make(map[string]uint64, len(src))
	for k, v := range src {
		out[k] = v
	}
	return out
}
