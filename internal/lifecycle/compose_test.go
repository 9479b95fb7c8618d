package lifecycle

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
)

type fakeRunner struct {
	calls  [][]string
	output []byte
	err    error
}

func (f *fakeRunner) Run(ctx context.Context, dir, name string, args ...string) ([]byte, error) {
	f.calls = append(f.calls, append([]string{name}, args...))
	return f.output, f.err
}

func TestUp(t *testing.T) {
	runner := &fakeRunner{}
	c := NewCompose(runner, "docker", "/srv/app/docker-compose.yml", "/srv/app")

	if err := c.Up(context.Background()); err != nil {
		t.Fatalf("Up: %v", err)
	}

	want := [][]string{{"docker", "compose", "-f", "/srv/app/docker-compose.yml", "up", "-d"}}
	if diff := cmp.Diff(want, runner.calls); diff != "" {
		t.Errorf("compose invocation mismatch (-want +got):\n%s", diff)
	}
}

func TestDownFailure(t *testing.T) {
	runner := &fakeRunner{output: []byte("no such service"), err: errors.New("exit status 1")}
	c := NewCompose(runner, "podman", "compose.yml", ".")

	err := c.Down(context.Background())
	if err == nil {
		t.Fatal("Down must propagate runner failure")
	}
	if !strings.Contains(err.Error(), "no such service") {
		t.Errorf("error does not carry runtime output: %v", err)
	}
}

func TestStatus(t *testing.T) {
	runner := &fakeRunner{output: []byte("app-blue\trunning\napp-green\trunning\nnginx\trunning\n\n")}
	c := NewCompose(runner, "", "compose.yml", ".")

	got, err := c.Status(context.Background())
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	want := []string{"app-blue\trunning", "app-green\trunning", "nginx\trunning"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Status mismatch (-want +got):\n%s", diff)
	}

	// Default binary is docker.
	if runner.calls[0][0] != "docker" {
		t.Errorf("default binary = %q", runner.calls[0][0])
	}
}
