package history

import (
	"path/filepath"
	"testing"
)

func TestRecordIsMonotonic(t *testing.T) {
	l, err := Open(filepath.Join(t.TempDir(), "history.json"))
	if err != nil {
		t.Fatal(err)
	}
	var ids []int
	for i := 0; i < 5; i++ {
		e, err := l.Record("install", "foo", "", "ok")
		if err != nil {
			t.Fatal(err)
		}
		ids = append(ids, e.ID)
	}
	for i := 1; i < len(ids); i++ {
		if ids[i] != ids[i-1]+1 {
			t.Fatalf("ids not strictly increasing: %v", ids)
		}
	}
}

func TestListHistoryFilters(t *testing.T) {
	l, err := Open(filepath.Join(t.TempDir(), "history.json"))
	if err != nil {
		t.Fatal(err)
	}
	l.Record("install", "foo", "", "ok")
	l.Record("remove", "bar", "", "ok")
	l.Record("install", "bar", "", "error: boom")

	got, err := l.ListHistory(0, "bar", "", "")
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 {
		t.Fatalf("ListHistory(pkg=bar) = %d entries, want 2", len(got))
	}
	// most-recent-first
	if got[0].Action != "install" || got[1].Action != "remove" {
		t.Errorf("unexpected order: %+v", got)
	}
}

func TestListHistoryLimit(t *testing.T) {
	l, err := Open(filepath.Join(t.TempDir(), "history.json"))
	if err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 10; i++ {
		l.Record("install", "foo", "", "ok")
	}
	got, err := l.ListHistory(3, "", "", "")
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 3 {
		t.Fatalf("ListHistory(limit=3) = %d entries, want 3", len(got))
	}
	if got[0].ID != 10 {
		t.Errorf("ListHistory(limit=3)[0].ID = %d, want 10 (most recent)", got[0].ID)
	}
}
