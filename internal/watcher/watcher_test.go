package watcher

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/ggoodman/lsp-server-go/lsp"
)

func TestMatch(t *testing.T) {
	deleteOnly := lsp.WatchKindDelete
	watchers := []lsp.FileSystemWatcher{
		{GlobPattern: "**/*.go"},
		{GlobPattern: "config/*.yaml", Kind: &deleteOnly},
	}
	cases := []struct {
		path string
		typ  lsp.FileChangeType
		want bool
	}{
		{"/ws/main.go", lsp.FileChangeChanged, true},
		{"/ws/pkg/a/b.go", lsp.FileChangeCreated, true},
		{"/ws/README.md", lsp.FileChangeChanged, false},
		{"/ws/config/app.yaml", lsp.FileChangeDeleted, true},
		{"/ws/config/app.yaml", lsp.FileChangeChanged, false},
	}
	for _, tc := range cases {
		got, err := Match("/ws", watchers, lsp.FileEvent{URI: lsp.FileURI(tc.path), Type: tc.typ})
		if err != nil {
			t.Fatalf("%s: %v", tc.path, err)
		}
		if got != tc.want {
			t.Fatalf("%s (%d): got %v want %v", tc.path, tc.typ, got, tc.want)
		}
	}

	if _, err := Match("/ws", []lsp.FileSystemWatcher{{GlobPattern: "[a"}}, lsp.FileEvent{URI: "file:///ws/a", Type: lsp.FileChangeCreated}); err == nil {
		t.Fatalf("expected malformed pattern to fail")
	}
}

func TestWatcherReportsCreate(t *testing.T) {
	dir := t.TempDir()
	w, err := New(dir)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	defer w.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	events := make(chan lsp.FileEvent, 16)
	go func() { _ = w.Run(ctx, func(ev lsp.FileEvent) { events <- ev }) }()

	target := filepath.Join(dir, "new.txt")
	if err := os.WriteFile(target, []byte("x"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	want := lsp.FileURI(filepath.ToSlash(target))
	for {
		select {
		case ev := <-events:
			if ev.URI == want && ev.Type == lsp.FileChangeCreated {
				return
			}
		case <-ctx.Done():
			t.Fatalf("timed out waiting for create event for %s", want)
		}
	}
}
