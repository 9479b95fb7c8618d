package nginx

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/ManuGH/bgctl/internal/envfile"
)

type fakeReloader struct {
	calls int
	err   error
}

func (f *fakeReloader) Reload(ctx context.Context) error {
	f.calls++
	return f.err
}

func storeWith(t *testing.T, content string) *envfile.Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "deploy.env")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return envfile.New(path)
}

const record = "active_pool=green\nnginx_port=8080\nblue_app_port=9001\ngreen_app_port=9002\n"

func TestReloadRendersActivePool(t *testing.T) {
	store := storeWith(t, record)
	confPath := filepath.Join(t.TempDir(), "upstream.conf")
	reloader := &fakeReloader{}

	c := NewController(store, reloader, confPath, "")
	if err := c.Reload(context.Background()); err != nil {
		t.Fatalf("Reload: %v", err)
	}

	conf, err := os.ReadFile(confPath)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(conf), "server 127.0.0.1:9002;") {
		t.Errorf("conf does not route to green app port:\n%s", conf)
	}
	if !strings.Contains(string(conf), "listen 8080;") {
		t.Errorf("conf does not listen on public port:\n%s", conf)
	}
	if reloader.calls != 1 {
		t.Errorf("reloader called %d times, want 1", reloader.calls)
	}
}

func TestReloadIsIdempotent(t *testing.T) {
	store := storeWith(t, record)
	confPath := filepath.Join(t.TempDir(), "upstream.conf")
	reloader := &fakeReloader{}
	c := NewController(store, reloader, confPath, "")

	if err := c.Reload(context.Background()); err != nil {
		t.Fatal(err)
	}
	first, _ := os.ReadFile(confPath)
	if err := c.Reload(context.Background()); err != nil {
		t.Fatal(err)
	}
	second, _ := os.ReadFile(confPath)

	if string(first) != string(second) {
		t.Error("unchanged inputs produced different artifacts")
	}
	if reloader.calls != 2 {
		t.Errorf("reloader called %d times, want 2", reloader.calls)
	}
}

func TestReloadCustomTemplate(t *testing.T) {
	store := storeWith(t, record)
	dir := t.TempDir()
	tmplPath := filepath.Join(dir, "custom.tmpl")
	if err := os.WriteFile(tmplPath, []byte("pool={{ .ActivePool }} port={{ .AppPort }}\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	confPath := filepath.Join(dir, "upstream.conf")

	c := NewController(store, &fakeReloader{}, confPath, tmplPath)
	if err := c.Reload(context.Background()); err != nil {
		t.Fatal(err)
	}
	conf, _ := os.ReadFile(confPath)
	if string(conf) != "pool=green port=9002\n" {
		t.Fatalf("rendered %q", conf)
	}
}

func TestReloadMalformedTemplate(t *testing.T) {
	store := storeWith(t, record)
	dir := t.TempDir()
	tmplPath := filepath.Join(dir, "broken.tmpl")
	if err := os.WriteFile(tmplPath, []byte("{{ .NoSuchField }}"), 0o644); err != nil {
		t.Fatal(err)
	}

	c := NewController(store, &fakeReloader{}, filepath.Join(dir, "upstream.conf"), tmplPath)
	err := c.Reload(context.Background())
	var terr *TemplateError
	if !errors.As(err, &terr) {
		t.Fatalf("err = %v, want *TemplateError", err)
	}
}

func TestReloadPropagatesReloaderFailure(t *testing.T) {
	store := storeWith(t, record)
	confPath := filepath.Join(t.TempDir(), "upstream.conf")
	reloader := &fakeReloader{err: ErrProxyUnreachable}

	c := NewController(store, reloader, confPath, "")
	err := c.Reload(context.Background())
	if !errors.Is(err, ErrProxyUnreachable) {
		t.Fatalf("err = %v, want ErrProxyUnreachable", err)
	}

	// The artifact is still regenerated; only the reload leg failed.
	if _, statErr := os.Stat(confPath); statErr != nil {
		t.Errorf("conf artifact missing after reloader failure: %v", statErr)
	}
}

func TestHTTPReloader(t *testing.T) {
	var hits int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		if r.Method != http.MethodPost {
			t.Errorf("method = %s", r.Method)
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	r := &HTTPReloader{URL: srv.URL + "/reload"}
	if err := r.Reload(context.Background()); err != nil {
		t.Fatalf("Reload: %v", err)
	}
	if hits != 1 {
		t.Fatalf("control endpoint hit %d times", hits)
	}

	srv.Close()
	if err := r.Reload(context.Background()); !errors.Is(err, ErrProxyUnreachable) {
		t.Fatalf("err after close = %v, want ErrProxyUnreachable", err)
	}
}
