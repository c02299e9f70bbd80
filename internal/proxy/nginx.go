package proxy

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"text/template"
	"time"

	"github.com/OldStager01/service-autoscaler/internal/logger"
	"github.com/OldStager01/service-autoscaler/pkg/config"
)

// Each service gets its own include file so rewriting one service can
// never clobber another's upstreams, and a process restart inherits
// whatever the previous run left on disk.
var upstreamTmpl = template.Must(template.New("upstream").Parse(
	`# Generated by service-autoscaler; rewritten on every reconcile. Do not edit.
upstream {{ .Service }} {
    least_conn;
{{- if .Servers }}
{{- range .Servers }}
    server {{ . }} max_fails=3 fail_timeout=10s;
{{- end }}
{{- else }}
    # No healthy upstreams this round. The placeholder keeps the config
    # loadable while routing nothing.
    server 127.0.0.1:1 down;
{{- end }}
}
`))

// NginxRouter renders upstream include files under conf_dir and applies
// them with the configured reload command. It keeps no state of its own;
// the files on disk are the source of truth for change detection.
type NginxRouter struct {
	confDir       string
	reloadCommand string
	reloadTimeout time.Duration
}

func NewNginxRouter(cfg config.NginxConfig) *NginxRouter {
	return &NginxRouter{
		confDir:       cfg.ConfDir,
		reloadCommand: cfg.ReloadCommand,
		reloadTimeout: cfg.ReloadTimeout,
	}
}

func (n *NginxRouter) SetUpstreams(service string, addrs []string) (bool, error) {
	rendered, err := renderUpstream(service, addrs)
	if err != nil {
		return false, err
	}

	path := n.confFile(service)
	existing, err := os.ReadFile(path)
	if err == nil && bytes.Equal(existing, rendered) {
		return false, nil
	}
	if err != nil && !os.IsNotExist(err) {
		return false, fmt.Errorf("read %s: %w", path, err)
	}

	if err := os.WriteFile(path, rendered, 0o644); err != nil {
		return false, fmt.Errorf("write %s: %w", path, err)
	}

	logger.WithService(service).
		WithField("upstreams", len(addrs)).
		WithField("file", path).
		Info("Rewrote upstream config")
	return true, nil
}

func (n *NginxRouter) Reload(ctx context.Context) error {
	if n.reloadTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, n.reloadTimeout)
		defer cancel()
	}

	parts := strings.Fields(n.reloadCommand)
	if len(parts) == 0 {
		return errors.New("reload command is empty")
	}

	cmd := exec.CommandContext(ctx, parts[0], parts[1:]...)
	if out, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("reload command %q: %w: %s", n.reloadCommand, err, strings.TrimSpace(string(out)))
	}

	logger.WithComponent("proxy").Debug("Reloaded routing layer")
	return nil
}

func (n *NginxRouter) confFile(service string) string {
	return filepath.Join(n.confDir, "autoscaler-upstream-"+service+".conf")
}

func renderUpstream(service string, addrs []string) ([]byte, error) {
	var buf bytes.Buffer
	err := upstreamTmpl.Execute(&buf, struct {
		Service string
		Servers []string
	}{Service: service, Servers: addrs})
	if err != nil {
		return nil, fmt.Errorf("render upstream block for %s: %w", service, err)
	}
	return buf.Bytes(), nil
}
