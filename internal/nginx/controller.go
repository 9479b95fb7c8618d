// SPDX-License-Identifier: MIT

// Package nginx regenerates the reverse proxy's routing configuration
// from the persisted deployment record and triggers a hot reload, so the
// proxy adopts new routing without dropping in-flight connections.
package nginx

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"text/template"

	"github.com/ManuGH/bgctl/internal/envfile"
	xlog "github.com/ManuGH/bgctl/internal/log"
	"github.com/google/renameio/v2"
)

// defaultTemplate routes all public traffic to the single active pool.
// The pool applications themselves set the X-Served-By header.
const defaultTemplate = `upstream active_pool {
    server 127.0.0.1:{{ .AppPort }};
}

server {
    listen {{ .PublicPort }};

    location / {
        proxy_pass http://active_pool;
        proxy_set_header Host $host;
        proxy_set_header X-Real-IP $remote_addr;
    }
}
`

// Params parameterize the routing template.
type Params struct {
	PublicPort int
	ActivePool string
	AppPort    int
}

// Reloader asks the live proxy process to adopt a regenerated
// configuration without terminating existing connections.
type Reloader interface {
	Reload(ctx context.Context) error
}

// Controller derives the proxy routing artifact from the deployment
// record. Reload is idempotent: re-rendering and reloading with
// unchanged inputs is a safe no-op at the proxy level.
type Controller struct {
	store        *envfile.Store
	reloader     Reloader
	confPath     string
	templatePath string // empty means the built-in template
}

// NewController returns a Controller writing the rendered artifact to
// confPath. templatePath may be empty to use the built-in template.
func NewController(store *envfile.Store, reloader Reloader, confPath, templatePath string) *Controller {
	return &Controller{
		store:        store,
		reloader:     reloader,
		confPath:     confPath,
		templatePath: templatePath,
	}
}

// Reload regenerates the routing configuration from the current record
// and triggers a hot reload of the proxy.
func (c *Controller) Reload(ctx context.Context) error {
	logger := xlog.WithComponentFromContext(ctx, "nginx")

	snap, err := c.store.Snapshot()
	if err != nil {
		return err
	}
	params, err := paramsFromSnapshot(snap)
	if err != nil {
		return err
	}

	rendered, err := c.render(params)
	if err != nil {
		return err
	}

	if err := writeAtomic(c.confPath, rendered); err != nil {
		return err
	}

	logger.Debug().
		Str("event", "nginx.conf_rendered").
		Str("active_pool", params.ActivePool).
		Int("app_port", params.AppPort).
		Int("public_port", params.PublicPort).
		Str("path", c.confPath).
		Msg("routing configuration regenerated")

	if err := c.reloader.Reload(ctx); err != nil {
		return err
	}

	logger.Info().
		Str("event", "nginx.reloaded").
		Str("active_pool", params.ActivePool).
		Msg("proxy reloaded")
	return nil
}

func paramsFromSnapshot(snap *envfile.Snapshot) (Params, error) {
	active, err := snap.Get(envfile.KeyActivePool)
	if err != nil {
		return Params{}, err
	}
	publicPort, err := snapPort(snap, envfile.KeyNginxPort)
	if err != nil {
		return Params{}, err
	}
	appKey := envfile.KeyBlueAppPort
	if active == "green" {
		appKey = envfile.KeyGreenAppPort
	}
	appPort, err := snapPort(snap, appKey)
	if err != nil {
		return Params{}, err
	}
	return Params{PublicPort: publicPort, ActivePool: active, AppPort: appPort}, nil
}

func snapPort(snap *envfile.Snapshot, key string) (int, error) {
	raw, err := snap.Get(key)
	if err != nil {
		return 0, err
	}
	var port int
	if _, err := fmt.Sscanf(raw, "%d", &port); err != nil || port <= 0 || port > 65535 {
		return 0, fmt.Errorf("nginx: invalid %s value %q", key, raw)
	}
	return port, nil
}

func (c *Controller) render(params Params) ([]byte, error) {
	source := "builtin"
	text := defaultTemplate
	if c.templatePath != "" {
		source = c.templatePath
		// #nosec G304 -- path comes from operator configuration
		raw, err := os.ReadFile(c.templatePath)
		if err != nil {
			return nil, &TemplateError{Source: source, Err: err}
		}
		text = string(raw)
	}

	tmpl, err := template.New("nginx").Option("missingkey=error").Parse(text)
	if err != nil {
		return nil, &TemplateError{Source: source, Err: err}
	}
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, params); err != nil {
		return nil, &TemplateError{Source: source, Err: err}
	}
	return buf.Bytes(), nil
}

// writeAtomic replaces the artifact via a temp file and rename so the
// proxy never reads a half-written configuration.
func writeAtomic(path string, data []byte) error {
	pending, err := renameio.NewPendingFile(path)
	if err != nil {
		return fmt.Errorf("nginx: create pending conf: %w", err)
	}
	defer func() {
		_ = pending.Cleanup()
	}()
	if _, err := pending.Write(data); err != nil {
		return fmt.Errorf("nginx: write conf: %w", err)
	}
	if err := pending.CloseAtomicallyReplace(); err != nil {
		return fmt.Errorf("nginx: atomically replace conf: %w", err)
	}
	return nil
}
