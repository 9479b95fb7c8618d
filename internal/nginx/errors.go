// SPDX-License-Identifier: MIT

package nginx

import (
	"errors"
	"fmt"
)

// ErrProxyUnreachable reports that the proxy process could not be
// reached to apply the regenerated routing configuration.
var ErrProxyUnreachable = errors.New("nginx: proxy unreachable")

// TemplateError reports a failure to generate the routing configuration
// artifact: a malformed template or a missing parameter.
type TemplateError struct {
	Source string
	Err    error
}

func (e *TemplateError) Error() string {
	return fmt.Sprintf("nginx: render template %s: %v", e.Source, e.Err)
}

func (e *TemplateError) Unwrap() error { return e.Err }
