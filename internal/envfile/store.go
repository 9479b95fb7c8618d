// SPDX-License-Identifier: MIT

// Package envfile persists the deployment record as a newline-delimited
// KEY=VALUE file. It is the single source of truth for which pool is
// active and for the network parameters of the deployment.
//
// Access policy: single writer, atomic replace-on-write, always-fresh
// reads. Get re-reads the file on every call; callers that need a
// consistent view across several reads inside one operation opt into
// Snapshot explicitly.
package envfile

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/google/renameio/v2"
)

// Sentinel errors for errors.Is checks at the boundary.
var (
	// ErrKeyNotFound reports a lookup for a key the record does not hold.
	// Some callers treat a missing active_pool as a fatal misconfiguration.
	ErrKeyNotFound = errors.New("envfile: key not found")

	// ErrConfigMissing reports that the deployment record itself does not
	// exist. Commands check this before dispatch.
	ErrConfigMissing = errors.New("envfile: deployment config not found")
)

// PersistError wraps a failure to durably rewrite the record.
type PersistError struct {
	Path string
	Err  error
}

func (e *PersistError) Error() string {
	return fmt.Sprintf("envfile: persist %s: %v", e.Path, e.Err)
}

func (e *PersistError) Unwrap() error { return e.Err }

// Store reads and writes one KEY=VALUE record file.
type Store struct {
	path string
}

// New returns a Store backed by the record at path.
func New(path string) *Store {
	return &Store{path: path}
}

// Path returns the location of the persisted record.
func (s *Store) Path() string { return s.path }

// Check verifies the record exists and is a regular file.
func (s *Store) Check() error {
	info, err := os.Stat(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("%w: %s", ErrConfigMissing, s.path)
		}
		return fmt.Errorf("envfile: stat %s: %w", s.path, err)
	}
	if info.IsDir() {
		return fmt.Errorf("%w: %s is a directory", ErrConfigMissing, s.path)
	}
	return nil
}

// Get looks up the first matching KEY=VALUE entry, stripping one pair of
// surrounding single or double quotes from the value.
func (s *Store) Get(key string) (string, error) {
	lines, err := s.readLines()
	if err != nil {
		return "", err
	}
	for _, line := range lines {
		if v, ok := match(line, key); ok {
			return v, nil
		}
	}
	return "", fmt.Errorf("%w: %q in %s", ErrKeyNotFound, key, s.path)
}

// Set atomically rewrites the single matching line for key with the new
// value. The write goes to a temporary file which is fsynced and renamed
// into place, so a concurrent reader never observes a half-written
// record. Order of other lines is preserved.
func (s *Store) Set(key, value string) error {
	lines, err := s.readLines()
	if err != nil {
		return err
	}

	replaced := false
	for i, line := range lines {
		if _, ok := match(line, key); ok {
			lines[i] = key + "=" + value
			replaced = true
			break
		}
	}
	if !replaced {
		return fmt.Errorf("%w: %q in %s", ErrKeyNotFound, key, s.path)
	}

	// renameio handles temp file creation, fsync, atomic rename and
	// cleanup on error.
	pending, err := renameio.NewPendingFile(s.path, renameio.WithExistingPermissions())
	if err != nil {
		return &PersistError{Path: s.path, Err: err}
	}
	defer func() {
		_ = pending.Cleanup()
	}()

	if _, err := pending.WriteString(strings.Join(lines, "\n") + "\n"); err != nil {
		return &PersistError{Path: s.path, Err: err}
	}
	if err := pending.CloseAtomicallyReplace(); err != nil {
		return &PersistError{Path: s.path, Err: err}
	}
	return nil
}

func (s *Store) readLines() ([]string, error) {
	// #nosec G304 -- path comes from operator configuration
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrConfigMissing, s.path)
		}
		return nil, fmt.Errorf("envfile: read %s: %w", s.path, err)
	}
	return strings.Split(strings.TrimRight(string(data), "\n"), "\n"), nil
}

// match reports whether line assigns key, returning the unquoted value.
func match(line, key string) (string, bool) {
	trimmed := strings.TrimSpace(line)
	if trimmed == "" || strings.HasPrefix(trimmed, "#") {
		return "", false
	}
	k, v, ok := strings.Cut(trimmed, "=")
	if !ok || strings.TrimSpace(k) != key {
		return "", false
	}
	return unquote(strings.TrimSpace(v)), true
}

// keyOf extracts the key of an assignment line, if line is one.
func keyOf(line string) (string, bool) {
	trimmed := strings.TrimSpace(line)
	if trimmed == "" || strings.HasPrefix(trimmed, "#") {
		return "", false
	}
	k, _, ok := strings.Cut(trimmed, "=")
	if !ok {
		return "", false
	}
	return strings.TrimSpace(k), true
}

// unquote strips one pair of surrounding single or double quote
// characters, if present.
func unquote(v string) string {
	if len(v) >= 2 {
		if (v[0] == '"' && v[len(v)-1] == '"') || (v[0] == '\'' && v[len(v)-1] == '\'') {
			return v[1 : len(v)-1]
		}
	}
	return v
}
