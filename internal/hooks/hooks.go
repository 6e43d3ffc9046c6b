// Package hooks implements the Hook Dispatcher of spec.md §4.6: a
// priority-ordered registry of named-stage hooks, each either a native
// callback or a shell command sequence (spec.md §9's Design Notes: "a
// single polymorphic value with variants {NativeCallback, ShellCommands}
// and a uniform invoke"), executed on a single-threaded cooperative
// scheduler with DESTDIR-prefixed environment for shell commands.
package hooks

import (
	"bytes"
	"context"
	"os/exec"
	"sort"
	"sync"
	"time"

	"golang.org/x/xerrors"

	"github.com/srcforge/srcpm/internal/errs"
	"github.com/srcforge/srcpm/internal/logx"
)

// Kind distinguishes the two hook variants.
type Kind int

const (
	// NativeCallback invokes Callback directly (or awaits it, if it
	// represents a deferred computation — Go's goroutines make the two
	// indistinguishable at the call site, which is exactly the point of
	// unifying them here).
	NativeCallback Kind = iota
	// ShellCommands runs each of Commands as a subprocess, in order.
	ShellCommands
)

// Hook is one registered hook (spec.md §3).
type Hook struct {
	Stage     string
	Package   string // empty matches any package
	Kind      Kind
	Callback  func(ctx context.Context, pkg string) error
	Commands  []string
	Priority  int
	Rollback  func(ctx context.Context, pkg string) error
	Condition func(pkg string) bool
}

// matches reports whether h applies to the given stage/package.
func (h *Hook) matches(stage, pkg string) bool {
	if h.Stage != stage {
		return false
	}
	return h.Package == "" || h.Package == pkg
}

// Invoke runs the hook's variant uniformly: a native callback is called
// directly, shell commands are spawned one at a time with DESTDIR set to
// sandboxRoot (when non-empty) prefixed onto the subprocess environment.
// Output is the combined stdout+stderr of every shell command run.
func (h *Hook) Invoke(ctx context.Context, pkg, sandboxRoot string) (output string, err error) {
	switch h.Kind {
	case NativeCallback:
		if h.Callback == nil {
			return "", nil
		}
		return "", h.Callback(ctx, pkg)
	case ShellCommands:
		var buf bytes.Buffer
		for _, cmdline := range h.Commands {
			cmd := exec.CommandContext(ctx, "/bin/sh", "-c", cmdline)
			if sandboxRoot != "" {
				cmd.Env = append(cmd.Environ(), "DESTDIR="+sandboxRoot)
			}
			cmd.Stdout = &buf
			cmd.Stderr = &buf
			if runErr := cmd.Run(); runErr != nil {
				return buf.String(), xerrors.Errorf("hook %s/%s: command %q: %w: %v", h.Stage, pkg, cmdline, errs.External, runErr)
			}
		}
		return buf.String(), nil
	default:
		return "", xerrors.Errorf("hook %s/%s: %w: unknown hook kind", h.Stage, pkg, errs.Invalid)
	}
}

// HistoryEntry records the outcome of one RunHooks dispatch of one hook.
type HistoryEntry struct {
	Timestamp      time.Time
	Stage          string
	Package        string
	Status         string
	CommandsOutput string
}

// Dispatcher is the priority-ordered hook registry (spec.md §4.6). The
// zero value is ready to use.
type Dispatcher struct {
	Log logx.Logger

	mu      sync.Mutex
	hooks   []*Hook
	history []HistoryEntry
}

// RegisterHook appends h to the registry.
func (d *Dispatcher) RegisterHook(h *Hook) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.hooks = append(d.hooks, h)
}

// History returns the hook dispatch history, oldest first.
func (d *Dispatcher) History() []HistoryEntry {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]HistoryEntry, len(d.history))
	copy(out, d.history)
	return out
}

// RunHooks selects hooks matching stage and pkg, sorts them ascending by
// priority, and executes them one at a time — the single-threaded
// cooperative scheduler of spec.md §5: no two hooks for the same stage run
// concurrently, and each fully completes (all its commands) before the
// next begins. sandboxRoot, if non-empty, is passed through to shell
// commands as DESTDIR.
func (d *Dispatcher) RunHooks(stage, pkg, sandboxRoot string) error {
	d.mu.Lock()
	var matched []*Hook
	for _, h := range d.hooks {
		if h.matches(stage, pkg) {
			matched = append(matched, h)
		}
	}
	sort.SliceStable(matched, func(i, j int) bool { return matched[i].Priority < matched[j].Priority })
	d.mu.Unlock()

	log := d.Log
	if log == nil {
		log = logx.Nop{}
	}

	ctx := context.Background()
	for _, h := range matched {
		if h.Condition != nil && !h.Condition(pkg) {
			continue
		}
		output, err := h.Invoke(ctx, pkg, sandboxRoot)
		status := "ok"
		if err != nil {
			status = "error: " + err.Error()
			log.Errorf("hook %s/%s failed: %v", stage, pkg, err)
			if h.Rollback != nil {
				if rbErr := h.Rollback(ctx, pkg); rbErr != nil {
					log.Errorf("hook %s/%s rollback failed: %v", stage, pkg, rbErr)
				}
			}
		}
		d.mu.Lock()
		d.history = append(d.history, HistoryEntry{
			Timestamp:      time.Now(),
			Stage:          stage,
			Package:        pkg,
			Status:         status,
			CommandsOutput: output,
		})
		d.mu.Unlock()
		if err != nil {
			return err
		}
	}
	return nil
}
