// SPDX-License-Identifier: MIT

package probe

import (
	"errors"
	"fmt"
)

// Sentinel errors for errors.Is checks at the boundary.
var (
	ErrUnreachable = errors.New("probe: target unreachable or transport failure")
	ErrBadStatus   = errors.New("probe: unexpected HTTP status")
	ErrTimeout     = errors.New("probe: request timed out")
)

// ProbeError is a rich error type that wraps the sentinel errors with
// context about the failed probe.
type ProbeError struct {
	Sentinel  error
	Operation string
	Target    string
	Status    int
	Err       error // nested lower-level error (e.g. net.Error)
}

func (e *ProbeError) Error() string {
	msg := fmt.Sprintf("probe: %s %s: %v", e.Operation, e.Target, e.Sentinel)
	if e.Status > 0 {
		msg = fmt.Sprintf("%s (HTTP %d)", msg, e.Status)
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *ProbeError) Unwrap() error {
	return e.Sentinel
}
