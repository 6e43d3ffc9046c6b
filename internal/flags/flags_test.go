package flags

import (
	"path/filepath"
	"testing"

	"github.com/srcforge/srcpm/internal/errs"
)

func TestIsEnabledResolutionOrder(t *testing.T) {
	s, err := Open(filepath.Join(t.TempDir(), "use.json"))
	if err != nil {
		t.Fatal(err)
	}
	if s.IsEnabled("foo", "ssl") {
		t.Fatal("expected flag to default to off")
	}

	if err := s.SetGlobal("ssl", true); err != nil {
		t.Fatal(err)
	}
	if !s.IsEnabled("foo", "ssl") {
		t.Fatal("expected global flag to apply")
	}

	if err := s.SetPackageFlag("foo", "ssl", false); err != nil {
		t.Fatal(err)
	}
	if s.IsEnabled("foo", "ssl") {
		t.Fatal("expected per-package override to win over global")
	}
	if !s.IsEnabled("bar", "ssl") {
		t.Fatal("expected other packages to still see the global value")
	}
}

func TestGroupToggling(t *testing.T) {
	s, err := Open(filepath.Join(t.TempDir(), "use.json"))
	if err != nil {
		t.Fatal(err)
	}
	if err := s.DefineGroup("crypto", []string{"ssl", "tls"}); err != nil {
		t.Fatal(err)
	}
	if err := s.EnableGroup("crypto"); err != nil {
		t.Fatal(err)
	}
	if !s.IsEnabled("foo", "ssl") || !s.IsEnabled("foo", "tls") {
		t.Fatal("expected EnableGroup to enable every member flag")
	}
	if err := s.DisableGroup("crypto"); err != nil {
		t.Fatal(err)
	}
	if s.IsEnabled("foo", "ssl") {
		t.Fatal("expected DisableGroup to disable every member flag")
	}

	if err := s.EnableGroup("nonexistent"); !errs.Is(err, errs.NotFound) {
		t.Fatalf("EnableGroup(undefined) error = %v, want NotFound", err)
	}
}

func TestChangeLogRecordsEveryFlip(t *testing.T) {
	s, err := Open(filepath.Join(t.TempDir(), "use.json"))
	if err != nil {
		t.Fatal(err)
	}
	s.SetGlobal("ssl", true)
	s.SetPackageFlag("foo", "debug", true)

	log := s.ChangeLog()
	if len(log) != 2 {
		t.Fatalf("ChangeLog() has %d entries, want 2", len(log))
	}
	if log[0].Flag != "ssl" || log[1].Package != "foo" {
		t.Fatalf("ChangeLog() = %+v", log)
	}
}

func TestReopenPersistsState(t *testing.T) {
	path := filepath.Join(t.TempDir(), "use.json")
	s, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}
	if err := s.SetGlobal("ssl", true); err != nil {
		t.Fatal(err)
	}

	reopened, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}
	if !reopened.IsEnabled("anything", "ssl") {
		t.Fatal("expected persisted flag to survive reopen")
	}
}
