// Package seen persists the per-category set of posting identifiers that
// have already been notified. Growth is unbounded by design: re-notifying an
// old posting is worse than the disk cost of keeping every id.
package seen

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"syscall"

	"github.com/lzhou1110/boardwatch/internal/posting"
)

// ErrLocked means another process (or a second scheduler slot) holds the
// store. Cycles for one category must never run concurrently.
var ErrLocked = errors.New("seen store is locked by another process")

// Store is the durable seen-id set for one category. It is owned by exactly
// one category scraper; the lock file is a defensive guard against a manual
// run racing a scheduled one from another process.
type Store struct {
	path     string
	lockPath string
	logger   *slog.Logger

	mu  sync.Mutex
	ids map[string]struct{}
}

// Open loads the persisted id set at path, acquiring the lock file. A missing
// file is a first run and yields an empty set; a malformed file is logged and
// recovered as empty rather than crashing the process.
func Open(path string, logger *slog.Logger) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create seen store dir: %w", err)
	}

	s := &Store{
		path:     path,
		lockPath: path + ".lock",
		logger:   logger,
		ids:      map[string]struct{}{},
	}

	if err := s.acquireLock(); err != nil {
		return nil, err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return s, nil
		}
		os.Remove(s.lockPath)
		return nil, fmt.Errorf("read seen store: %w", err)
	}

	var ids []string
	if err := json.Unmarshal(data, &ids); err != nil {
		logger.Error("seen store is corrupt, starting from empty set",
			"path", path, "error", err)
		return s, nil
	}
	for _, id := range ids {
		if id != "" {
			s.ids[id] = struct{}{}
		}
	}
	return s, nil
}

// acquireLock creates the lock file with this process's pid. An existing lock
// whose holder is gone (crash, SIGKILL) is stale and gets broken; otherwise a
// crash would keep the category out of service until an operator deleted the
// file by hand.
func (s *Store) acquireLock() error {
	for attempt := 0; ; attempt++ {
		lock, err := os.OpenFile(s.lockPath, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
		if err == nil {
			fmt.Fprintf(lock, "%d\n", os.Getpid())
			return lock.Close()
		}
		if !os.IsExist(err) {
			return fmt.Errorf("acquire seen store lock: %w", err)
		}
		if attempt == 0 && s.lockHolderGone() {
			s.logger.Warn("breaking stale seen store lock", "path", s.lockPath)
			if err := os.Remove(s.lockPath); err != nil && !os.IsNotExist(err) {
				return fmt.Errorf("remove stale seen store lock: %w", err)
			}
			continue
		}
		return fmt.Errorf("%w (%s)", ErrLocked, s.lockPath)
	}
}

// lockHolderGone reports whether the pid recorded in the lock file no longer
// names a live process. Unreadable or garbled content counts as gone; a pid
// that cannot be signalled for permission reasons counts as live.
func (s *Store) lockHolderGone() bool {
	data, err := os.ReadFile(s.lockPath)
	if err != nil {
		// The holder may have just released it; let the retry find out.
		return os.IsNotExist(err)
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil || pid <= 0 {
		return true
	}
	if pid == os.Getpid() {
		return false
	}
	proc, err := os.FindProcess(pid)
	if err != nil {
		return true
	}
	err = proc.Signal(syscall.Signal(0))
	return err != nil && !errors.Is(err, syscall.EPERM)
}

// Close releases the lock file. The in-memory set is discarded; only
// persisted state survives.
func (s *Store) Close() error {
	return os.Remove(s.lockPath)
}

func (s *Store) Contains(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.ids[id]
	return ok
}

func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.ids)
}

// Diff returns the postings whose ids are not yet in the set, in order.
func (s *Store) Diff(postings []posting.Posting) []posting.Posting {
	s.mu.Lock()
	defer s.mu.Unlock()
	var fresh []posting.Posting
	for _, p := range postings {
		if _, ok := s.ids[p.ID]; !ok {
			fresh = append(fresh, p)
		}
	}
	return fresh
}

// Commit adds ids to the set and persists it. If persisting fails the ids are
// rolled back so memory always mirrors disk: the batch will be re-notified
// next cycle instead of being silently dropped after a restart.
func (s *Store) Commit(ids []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	added := make([]string, 0, len(ids))
	for _, id := range ids {
		if _, ok := s.ids[id]; !ok && id != "" {
			s.ids[id] = struct{}{}
			added = append(added, id)
		}
	}

	if err := s.persistLocked(); err != nil {
		for _, id := range added {
			delete(s.ids, id)
		}
		return err
	}
	return nil
}

// Persist writes the current set to disk without mutating it.
func (s *Store) Persist() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.persistLocked()
}

// persistLocked writes the full set to a temp file in the same directory and
// renames it over the store, so a crash mid-write never leaves a truncated
// file.
func (s *Store) persistLocked() error {
	ids := make([]string, 0, len(s.ids))
	for id := range s.ids {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	data, err := json.MarshalIndent(ids, "", "  ")
	if err != nil {
		return fmt.Errorf("encode seen store: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(s.path), filepath.Base(s.path)+".tmp*")
	if err != nil {
		return fmt.Errorf("create seen store temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write seen store: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("sync seen store: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close seen store temp file: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return fmt.Errorf("replace seen store: %w", err)
	}
	return nil
}
