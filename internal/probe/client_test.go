package probe

import (
	"context"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"
)

// serverPort spins up a local HTTP server and returns the port it
// listens on.
func serverPort(t *testing.T, handler http.Handler) int {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	_, portStr, err := net.SplitHostPort(srv.Listener.Addr().(*net.TCPAddr).String())
	if err != nil {
		t.Fatal(err)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		t.Fatal(err)
	}
	return port
}

// freePort returns a port nothing is listening on.
func freePort(t *testing.T) int {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	port := l.Addr().(*net.TCPAddr).Port
	_ = l.Close()
	return port
}

func TestStartChaos(t *testing.T) {
	var gotPath, gotMethod string
	port := serverPort(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath, gotMethod = r.URL.Path, r.Method
		w.WriteHeader(http.StatusOK)
	}))

	c := New("127.0.0.1")
	if err := c.StartChaos(context.Background(), port); err != nil {
		t.Fatalf("StartChaos: %v", err)
	}
	if gotPath != "/chaos/start" || gotMethod != http.MethodPost {
		t.Fatalf("request was %s %s", gotMethod, gotPath)
	}
}

func TestStopChaosBadStatus(t *testing.T) {
	port := serverPort(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusInternalServerError)
	}))

	err := New("127.0.0.1").StopChaos(context.Background(), port)
	if !errors.Is(err, ErrBadStatus) {
		t.Fatalf("err = %v, want ErrBadStatus", err)
	}
	var perr *ProbeError
	if !errors.As(err, &perr) || perr.Status != http.StatusInternalServerError {
		t.Fatalf("err = %v, want *ProbeError with status 500", err)
	}
}

func TestStartChaosUnreachable(t *testing.T) {
	err := New("127.0.0.1").StartChaos(context.Background(), freePort(t))
	if !errors.Is(err, ErrUnreachable) {
		t.Fatalf("err = %v, want ErrUnreachable", err)
	}
}

func TestServedBy(t *testing.T) {
	port := serverPort(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set(ServedByHeader, "green")
		w.WriteHeader(http.StatusOK)
	}))

	got, err := New("127.0.0.1").ServedBy(context.Background(), port)
	if err != nil {
		t.Fatalf("ServedBy: %v", err)
	}
	if got != "green" {
		t.Fatalf("ServedBy = %q, want green", got)
	}
}

func TestServedByMissingHeader(t *testing.T) {
	port := serverPort(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	got, err := New("127.0.0.1").ServedBy(context.Background(), port)
	if err != nil {
		t.Fatalf("ServedBy: %v", err)
	}
	if got != "" {
		t.Fatalf("ServedBy = %q, want empty", got)
	}
}

func TestTimeout(t *testing.T) {
	port := serverPort(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(2 * time.Second)
	}))

	c := New("127.0.0.1", WithTimeout(50*time.Millisecond))
	err := c.StartChaos(context.Background(), port)
	if !errors.Is(err, ErrTimeout) && !errors.Is(err, ErrUnreachable) {
		t.Fatalf("err = %v, want timeout-classified probe error", err)
	}
}
