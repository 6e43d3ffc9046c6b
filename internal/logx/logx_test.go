package logx

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
)

func TestWithRotatingFileWritesLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "srcpm.log")
	l := New(&bytes.Buffer{}, Info)
	if err := l.WithRotatingFile(path, 1024*1024, 3); err != nil {
		t.Fatal(err)
	}
	l.Infof("hello %s", "world")

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Contains(data, []byte("hello world")) {
		t.Fatalf("log file = %q, want it to contain %q", data, "hello world")
	}
}

func TestWithRotatingFileRotatesOnSize(t *testing.T) {
	path := filepath.Join(t.TempDir(), "srcpm.log")
	l := New(&bytes.Buffer{}, Info)
	if err := l.WithRotatingFile(path, 64, 2); err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 10; i++ {
		l.Infof("line number %d of filler text to force rotation", i)
	}

	if _, err := os.Stat(path + ".1"); err != nil {
		t.Fatalf("expected a rotated backup %s.1, got: %v", path, err)
	}
}
