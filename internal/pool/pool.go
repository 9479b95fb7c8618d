// SPDX-License-Identifier: MIT

// Package pool defines the blue/green pool identity used by switch and
// chaos operations.
package pool

import (
	"errors"
	"fmt"
	"strings"
)

// Pool identifies one of the two interchangeable application pools.
type Pool string

const (
	Blue  Pool = "blue"
	Green Pool = "green"
)

// ErrInvalidPool classifies caller input that names neither pool. It is
// distinct from transport and config errors: it is reported immediately
// and has no side effects.
var ErrInvalidPool = errors.New("pool: invalid pool identity")

// Parse converts operator input into a Pool. Input is trimmed and
// case-insensitive.
func Parse(s string) (Pool, error) {
	switch Pool(strings.ToLower(strings.TrimSpace(s))) {
	case Blue:
		return Blue, nil
	case Green:
		return Green, nil
	default:
		return "", fmt.Errorf("%w: %q (want %q or %q)", ErrInvalidPool, s, Blue, Green)
	}
}

// Valid reports whether p is exactly one of the two known pools.
func (p Pool) Valid() bool {
	return p == Blue || p == Green
}

// Other returns the opposite pool. Calling Other on an invalid pool
// returns the zero value.
func (p Pool) Other() Pool {
	switch p {
	case Blue:
		return Green
	case Green:
		return Blue
	default:
		return ""
	}
}

func (p Pool) String() string {
	return string(p)
}
