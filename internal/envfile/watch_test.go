package envfile

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func TestWatchSignalsOnRewrite(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "deploy.env")
	if err := os.WriteFile(path, []byte("active_pool=blue\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	s := New(path)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	changes, err := s.Watch(ctx, zerolog.Nop())
	if err != nil {
		t.Fatalf("Watch: %v", err)
	}

	if err := s.Set("active_pool", "green"); err != nil {
		t.Fatal(err)
	}

	select {
	case <-changes:
	case <-time.After(5 * time.Second):
		t.Fatal("no change signal after rewrite")
	}

	cancel()
	select {
	case _, ok := <-changes:
		if ok {
			// A queued event may still be delivered before close.
			if _, stillOpen := <-changes; stillOpen {
				t.Fatal("channel not closed after cancel")
			}
		}
	case <-time.After(5 * time.Second):
		t.Fatal("channel not closed after cancel")
	}
}
