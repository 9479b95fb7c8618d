package status

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/ManuGH/bgctl/internal/envfile"
	"github.com/ManuGH/bgctl/internal/pool"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
)

type fakeProber struct {
	served string
	err    error
}

func (f *fakeProber) ServedBy(ctx context.Context, port int) (string, error) {
	return f.served, f.err
}

type fakeLifecycle struct {
	states []string
	err    error
}

func (f *fakeLifecycle) Status(ctx context.Context) ([]string, error) {
	return f.states, f.err
}

func newStore(t *testing.T, active string) *envfile.Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "deploy.env")
	content := "active_pool=" + active + "\nnginx_port=8080\nblue_app_port=9001\ngreen_app_port=9002\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return envfile.New(path)
}

func TestSnapshotHealthy(t *testing.T) {
	r := New(newStore(t, "blue"),
		&fakeProber{served: "blue"},
		&fakeLifecycle{states: []string{"app-blue\trunning", "app-green\trunning"}})

	view, err := r.Snapshot(context.Background())
	require.NoError(t, err)

	want := View{
		ActivePool:   pool.Blue,
		NginxPort:    8080,
		Containers:   []string{"app-blue\trunning", "app-green\trunning"},
		ObservedPool: "blue",
		Drift:        false,
	}
	if diff := cmp.Diff(want, view); diff != "" {
		t.Errorf("Snapshot mismatch (-want +got):\n%s", diff)
	}
}

func TestSnapshotSurfacesDrift(t *testing.T) {
	// Persisted green, but the proxy still serves blue: both values must
	// be visible, not silently resolved.
	r := New(newStore(t, "green"), &fakeProber{served: "blue"}, &fakeLifecycle{})

	view, err := r.Snapshot(context.Background())
	require.NoError(t, err)

	if view.ActivePool != pool.Green {
		t.Errorf("ActivePool = %q", view.ActivePool)
	}
	if view.ObservedPool != "blue" {
		t.Errorf("ObservedPool = %q", view.ObservedPool)
	}
	if !view.Drift {
		t.Error("drift not flagged")
	}
}

func TestSnapshotProbeFailureReportsUnknown(t *testing.T) {
	r := New(newStore(t, "blue"),
		&fakeProber{err: errors.New("connection refused")},
		&fakeLifecycle{states: []string{"nginx\trunning"}})

	view, err := r.Snapshot(context.Background())
	require.NoError(t, err, "probe failure must not abort the snapshot")

	if view.ObservedPool != Unknown {
		t.Errorf("ObservedPool = %q, want %q", view.ObservedPool, Unknown)
	}
	if view.Drift {
		t.Error("unknown observation must not count as drift")
	}
	if len(view.Containers) != 1 {
		t.Errorf("container listing lost: %v", view.Containers)
	}
}

func TestSnapshotLifecycleFailureDegrades(t *testing.T) {
	r := New(newStore(t, "blue"),
		&fakeProber{served: "blue"},
		&fakeLifecycle{err: errors.New("runtime down")})

	view, err := r.Snapshot(context.Background())
	require.NoError(t, err)
	if view.Containers != nil {
		t.Errorf("Containers = %v, want nil", view.Containers)
	}
	if view.ObservedPool != "blue" {
		t.Errorf("probe result lost: %q", view.ObservedPool)
	}
}

func TestSnapshotMissingConfigFails(t *testing.T) {
	r := New(envfile.New(filepath.Join(t.TempDir(), "absent.env")), &fakeProber{}, &fakeLifecycle{})
	_, err := r.Snapshot(context.Background())
	require.ErrorIs(t, err, envfile.ErrConfigMissing)
}
