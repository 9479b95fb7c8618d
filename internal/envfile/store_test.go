package envfile

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/ManuGH/bgctl/internal/pool"
)

const sampleRecord = `# deployment record
active_pool=blue
nginx_port=8080
blue_app_port=9001
green_app_port="9002"
greeting='hello world'
`

func writeRecord(t *testing.T, content string) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "deploy.env")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write record: %v", err)
	}
	return New(path)
}

func TestGet(t *testing.T) {
	s := writeRecord(t, sampleRecord)

	tests := []struct {
		name    string
		key     string
		want    string
		wantErr error
	}{
		{name: "plain value", key: "active_pool", want: "blue"},
		{name: "double quoted", key: "green_app_port", want: "9002"},
		{name: "single quoted", key: "greeting", want: "hello world"},
		{name: "missing key", key: "nope", wantErr: ErrKeyNotFound},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := s.Get(tc.key)
			if tc.wantErr != nil {
				if !errors.Is(err, tc.wantErr) {
					t.Fatalf("Get(%q) err = %v, want %v", tc.key, err, tc.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("Get(%q): %v", tc.key, err)
			}
			if got != tc.want {
				t.Fatalf("Get(%q) = %q, want %q", tc.key, got, tc.want)
			}
		})
	}
}

func TestFirstMatchingKeyWins(t *testing.T) {
	s := writeRecord(t, "k=first\nk=second\n")
	got, err := s.Get("k")
	if err != nil {
		t.Fatal(err)
	}
	if got != "first" {
		t.Fatalf("Get(k) = %q, want first match", got)
	}
}

func TestSetRoundTrip(t *testing.T) {
	s := writeRecord(t, sampleRecord)

	if err := s.Set("active_pool", "green"); err != nil {
		t.Fatalf("Set: %v", err)
	}
	got, err := s.Get("active_pool")
	if err != nil {
		t.Fatal(err)
	}
	if got != "green" {
		t.Fatalf("Get after Set = %q, want green", got)
	}

	// Other lines and their order are preserved.
	data, err := os.ReadFile(s.Path())
	if err != nil {
		t.Fatal(err)
	}
	want := `# deployment record
active_pool=green
nginx_port=8080
blue_app_port=9001
green_app_port="9002"
greeting='hello world'
`
	if string(data) != want {
		t.Fatalf("record after Set:\n%s\nwant:\n%s", data, want)
	}
}

func TestSetUnknownKey(t *testing.T) {
	s := writeRecord(t, sampleRecord)
	if err := s.Set("brand_new", "v"); !errors.Is(err, ErrKeyNotFound) {
		t.Fatalf("Set(unknown) err = %v, want ErrKeyNotFound", err)
	}
}

func TestSetUnwritableDir(t *testing.T) {
	if os.Geteuid() == 0 {
		t.Skip("permission checks do not apply to root")
	}
	dir := t.TempDir()
	path := filepath.Join(dir, "deploy.env")
	if err := os.WriteFile(path, []byte("k=v\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.Chmod(dir, 0o555); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = os.Chmod(dir, 0o755) })

	err := New(path).Set("k", "w")
	var perr *PersistError
	if !errors.As(err, &perr) {
		t.Fatalf("Set err = %v, want *PersistError", err)
	}
}

func TestCheck(t *testing.T) {
	s := writeRecord(t, sampleRecord)
	if err := s.Check(); err != nil {
		t.Fatalf("Check on existing record: %v", err)
	}

	missing := New(filepath.Join(t.TempDir(), "absent.env"))
	if err := missing.Check(); !errors.Is(err, ErrConfigMissing) {
		t.Fatalf("Check on missing record err = %v, want ErrConfigMissing", err)
	}
	if _, err := missing.Get("k"); !errors.Is(err, ErrConfigMissing) {
		t.Fatalf("Get on missing record err = %v, want ErrConfigMissing", err)
	}
}

func TestActivePool(t *testing.T) {
	s := writeRecord(t, sampleRecord)
	p, err := s.ActivePool()
	if err != nil {
		t.Fatal(err)
	}
	if p != pool.Blue {
		t.Fatalf("ActivePool = %q", p)
	}

	corrupt := writeRecord(t, "active_pool=yellow\n")
	if _, err := corrupt.ActivePool(); err == nil {
		t.Fatal("corrupt active_pool must error")
	}
}

func TestPorts(t *testing.T) {
	s := writeRecord(t, sampleRecord)

	if got, err := s.NginxPort(); err != nil || got != 8080 {
		t.Fatalf("NginxPort = %d, %v", got, err)
	}
	if got, err := s.AppPort(pool.Blue); err != nil || got != 9001 {
		t.Fatalf("AppPort(blue) = %d, %v", got, err)
	}
	if got, err := s.AppPort(pool.Green); err != nil || got != 9002 {
		t.Fatalf("AppPort(green) = %d, %v", got, err)
	}
	if _, err := s.AppPort(pool.Pool("yellow")); !errors.Is(err, pool.ErrInvalidPool) {
		t.Fatalf("AppPort(invalid) err = %v", err)
	}

	bad := writeRecord(t, "nginx_port=nope\n")
	if _, err := bad.NginxPort(); err == nil {
		t.Fatal("non-numeric port must error")
	}
}

func TestSnapshotDoesNotRefresh(t *testing.T) {
	s := writeRecord(t, sampleRecord)
	snap, err := s.Snapshot()
	if err != nil {
		t.Fatal(err)
	}

	if err := s.Set("active_pool", "green"); err != nil {
		t.Fatal(err)
	}

	got, err := snap.Get("active_pool")
	if err != nil {
		t.Fatal(err)
	}
	if got != "blue" {
		t.Fatalf("snapshot observed later write: %q", got)
	}

	fresh, err := s.Get("active_pool")
	if err != nil {
		t.Fatal(err)
	}
	if fresh != "green" {
		t.Fatalf("fresh read = %q, want green", fresh)
	}
}
