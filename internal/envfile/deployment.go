// SPDX-License-Identifier: MIT

package envfile

import (
	"fmt"
	"strconv"

	"github.com/ManuGH/bgctl/internal/pool"
)

// Keys of the deployment record.
const (
	KeyActivePool   = "active_pool"
	KeyNginxPort    = "nginx_port"
	KeyBlueAppPort  = "blue_app_port"
	KeyGreenAppPort = "green_app_port"
)

// ActivePool returns the persisted active pool. An unknown value in the
// record is a corruption, not caller input, and is reported as such.
func (s *Store) ActivePool() (pool.Pool, error) {
	raw, err := s.Get(KeyActivePool)
	if err != nil {
		return "", err
	}
	p := pool.Pool(raw)
	if !p.Valid() {
		return "", fmt.Errorf("envfile: corrupt %s value %q in %s", KeyActivePool, raw, s.path)
	}
	return p, nil
}

// SetActivePool persists the active pool.
func (s *Store) SetActivePool(p pool.Pool) error {
	return s.Set(KeyActivePool, p.String())
}

// NginxPort returns the public-facing proxy port.
func (s *Store) NginxPort() (int, error) {
	return s.getPort(KeyNginxPort)
}

// AppPort returns the internal port of the given pool, used to address it
// directly, bypassing the proxy.
func (s *Store) AppPort(p pool.Pool) (int, error) {
	switch p {
	case pool.Blue:
		return s.getPort(KeyBlueAppPort)
	case pool.Green:
		return s.getPort(KeyGreenAppPort)
	default:
		return 0, fmt.Errorf("%w: %q", pool.ErrInvalidPool, p)
	}
}

func (s *Store) getPort(key string) (int, error) {
	raw, err := s.Get(key)
	if err != nil {
		return 0, err
	}
	port, err := strconv.Atoi(raw)
	if err != nil || port <= 0 || port > 65535 {
		return 0, fmt.Errorf("envfile: invalid %s value %q in %s", key, raw, s.path)
	}
	return port, nil
}

// Snapshot is a point-in-time read of the whole record for repeated use
// within a single operation. It never refreshes.
type Snapshot struct {
	values map[string]string
	path   string
}

// Snapshot reads the record once and returns a cached view.
func (s *Store) Snapshot() (*Snapshot, error) {
	lines, err := s.readLines()
	if err != nil {
		return nil, err
	}
	values := make(map[string]string, len(lines))
	for _, line := range lines {
		key, ok := keyOf(line)
		if !ok {
			continue
		}
		if _, seen := values[key]; seen {
			continue // first matching key wins
		}
		if v, matched := match(line, key); matched {
			values[key] = v
		}
	}
	return &Snapshot{values: values, path: s.path}, nil
}

// Get looks up a key in the cached view.
func (c *Snapshot) Get(key string) (string, error) {
	if v, ok := c.values[key]; ok {
		return v, nil
	}
	return "", fmt.Errorf("%w: %q in %s", ErrKeyNotFound, key, c.path)
}
