// Package history implements the append-only audit journal of spec.md
// §4.10/§6: a single JSON array, read-on-demand and rewritten whole on
// every change, with advisory exclusive locking (spec.md §9's open
// question, resolved here in favor of safety since every component in the
// pipeline writes to this one file) via golang.org/x/sys/unix.Flock, and
// atomic replacement via github.com/google/renameio, matching the
// teacher's own renameio usage throughout cmd/distri.
package history

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/google/renameio"
	"golang.org/x/sys/unix"
	"golang.org/x/xerrors"

	"github.com/srcforge/srcpm/internal/errs"
)

// Entry is one audit record (spec.md §3).
type Entry struct {
	ID        int    `json:"id"`
	Timestamp string `json:"timestamp"`
	Action    string `json:"action"`
	Package   string `json:"package"`
	Details   string `json:"details"`
	Status    string `json:"status"`
}

// Log is the append-only journal at Path. The zero value is not usable;
// use Open.
type Log struct {
	Path string

	mu  sync.Mutex
	now func() time.Time
}

// Open returns a Log backed by path, creating its parent directory if
// necessary. The file itself is created lazily on first Record.
func Open(path string) (*Log, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, err
	}
	return &Log{Path: path, now: time.Now}, nil
}

func (l *Log) readLocked() ([]Entry, error) {
	data, err := os.ReadFile(l.Path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return nil, nil
	}
	var entries []Entry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, xerrors.Errorf("parsing history %s: %w: %v", l.Path, errs.Invalid, err)
	}
	return entries, nil
}

func (l *Log) writeLocked(entries []Entry) error {
	data, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return err
	}
	return renameio.WriteFile(l.Path, data, 0644)
}

// withLock runs fn while holding an exclusive advisory lock on a sidecar
// lockfile next to Path, serializing concurrent writers across processes.
func (l *Log) withLock(fn func() error) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	lockPath := l.Path + ".lock"
	fd, err := os.OpenFile(lockPath, os.O_CREATE|os.O_RDWR, 0644)
	if err != nil {
		// Advisory locking is best-effort; proceed without it rather than
		// failing the whole operation (this process still serializes via
		// l.mu).
		return fn()
	}
	defer fd.Close()
	if err := unix.Flock(int(fd.Fd()), unix.LOCK_EX); err == nil {
		defer unix.Flock(int(fd.Fd()), unix.LOCK_UN)
	}
	return fn()
}

// Record assigns a monotonically increasing id and appends a new entry.
func (l *Log) Record(action, pkg, details, status string) (Entry, error) {
	var e Entry
	err := l.withLock(func() error {
		entries, err := l.readLocked()
		if err != nil {
			return err
		}
		e = Entry{
			ID:        len(entries) + 1,
			Timestamp: l.now().UTC().Format(time.RFC3339),
			Action:    action,
			Package:   pkg,
			Details:   details,
			Status:    status,
		}
		entries = append(entries, e)
		return l.writeLocked(entries)
	})
	return e, err
}

// ListHistory returns entries filtered by package/action/status (empty
// string = no filter on that field), most-recent-first, truncated to
// limit entries (limit <= 0 means unlimited).
func (l *Log) ListHistory(limit int, pkg, action, status string) ([]Entry, error) {
	var out []Entry
	err := l.withLock(func() error {
		entries, err := l.readLocked()
		if err != nil {
			return err
		}
		filtered := make([]Entry, 0, len(entries))
		for _, e := range entries {
			if pkg != "" && e.Package != pkg {
				continue
			}
			if action != "" && e.Action != action {
				continue
			}
			if status != "" && e.Status != status {
				continue
			}
			filtered = append(filtered, e)
		}
		sort.SliceStable(filtered, func(i, j int) bool {
			return filtered[i].ID > filtered[j].ID
		})
		if limit > 0 && len(filtered) > limit {
			filtered = filtered[:limit]
		}
		out = filtered
		return nil
	})
	return out, err
}

// Restorer is implemented by callers of Rollback to restore one affected
// file, either from a cache hit (fromCache == true) or by deleting the
// sandbox counterpart (fromCache == false).
type Restorer interface {
	Restore(path string, fromCache bool) error
}

// Rollback looks up the history entry with the given id and, via restore,
// undoes its effect on each of files (supplied by the caller; the entry's
// Details are not parsed), then records a new "rolled_back" entry
// referencing the original id.
func (l *Log) Rollback(actionID int, files []string, restore Restorer, hasCache func(string) bool) (Entry, error) {
	var target *Entry
	entries, err := l.readLocked()
	if err != nil {
		return Entry{}, err
	}
	for i := range entries {
		if entries[i].ID == actionID {
			target = &entries[i]
			break
		}
	}
	if target == nil {
		return Entry{}, xerrors.Errorf("rollback: action %d: %w", actionID, errs.NotFound)
	}
	var lastErr error
	for _, f := range files {
		fromCache := hasCache != nil && hasCache(f)
		if err := restore.Restore(f, fromCache); err != nil {
			lastErr = err
		}
	}
	status := "ok"
	if lastErr != nil {
		status = "error: " + lastErr.Error()
	}
	return l.Record("rolled_back", target.Package, target.Action+" id="+strconv.Itoa(target.ID), status)
}
