package cli

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/charmbracelet/log"

	"widgetcore/internal/config"
	"widgetcore/internal/core"
	"widgetcore/pkg/domain"
)

// writeConfig points storage at a sqlite file and blobs at a directory, both
// under a fresh temp dir.
func writeConfig(t *testing.T) (path string, cfg config.Config) {
	t.Helper()
	dir := t.TempDir()
	path = filepath.Join(dir, "widgetcore.toml")
	body := fmt.Sprintf("[storage]\ndriver = \"sqlite\"\nsqlite_path = %q\n\n[blob]\ndriver = \"fs\"\nfs_root = %q\n",
		filepath.Join(dir, "widgets.db"), filepath.Join(dir, "snapshots"))
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	return path, cfg
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	c := New(io.Discard, LogInfo)
	root := c.RootCommand()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func seedStore(t *testing.T, cfg config.Config, n int) {
	t.Helper()
	store, err := core.OpenPersistentStore(context.Background(), cfg.Storage)
	if err != nil {
		t.Skipf("sqlite unavailable: %v", err)
	}
	svc := core.NewService(store)
	for i := 0; i < n; i++ {
		if _, err := svc.Create(context.Background(), domain.WidgetDraft{X: i, Y: i, Width: 2, Height: 3}); err != nil {
			t.Fatalf("create: %v", err)
		}
	}
	if err := store.(io.Closer).Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
}

func TestVerboseFlagSwitchesToDebug(t *testing.T) {
	c := New(io.Discard, LogInfo)
	root := c.RootCommand()
	root.SetOut(io.Discard)
	root.SetArgs([]string{"-v", "config", "init", "--path", filepath.Join(t.TempDir(), "widgetcore.toml")})
	if err := root.ExecuteContext(context.Background()); err != nil {
		t.Fatalf("execute: %v", err)
	}
	if c.Logger.GetLevel() != log.DebugLevel {
		t.Fatalf("expected debug level, got %v", c.Logger.GetLevel())
	}
}

func TestConfigInitAndShow(t *testing.T) {
	path := filepath.Join(t.TempDir(), "conf", "widgetcore.toml")
	out, err := run(t, "config", "init", "--path", path)
	if err != nil {
		t.Fatalf("config init: %v", err)
	}
	if !strings.Contains(out, path) {
		t.Fatalf("expected written path in output, got %q", out)
	}
	if _, err := run(t, "config", "init", "--path", path); err == nil {
		t.Fatalf("expected refusal to overwrite")
	}
	if _, err := run(t, "config", "init", "--path", path, "--force"); err != nil {
		t.Fatalf("forced init: %v", err)
	}

	t.Setenv("WIDGETCORE_PAGING_MAX_SIZE", "42")
	out, err = run(t, "--config", path, "config", "show")
	if err != nil {
		t.Fatalf("config show: %v", err)
	}
	if !strings.Contains(out, "max_size = 42") || !strings.Contains(out, `driver = "memory"`) {
		t.Fatalf("unexpected effective config:\n%s", out)
	}
}

func TestMissingExplicitConfigFails(t *testing.T) {
	if _, err := run(t, "--config", filepath.Join(t.TempDir(), "absent.toml"), "config", "show"); err == nil {
		t.Fatalf("expected missing config error")
	}
}

func TestWidgetsListPrintsTable(t *testing.T) {
	path, cfg := writeConfig(t)
	seedStore(t, cfg, 3)

	out, err := run(t, "--config", path, "widgets", "list", "--page", "0", "--size", "2")
	if err != nil {
		t.Fatalf("widgets list: %v", err)
	}
	for _, want := range []string{"Index", "2x3", "page 0 · size 2", "3 total", "more"} {
		if !strings.Contains(out, want) {
			t.Fatalf("expected %q in output:\n%s", want, out)
		}
	}

	out, err = run(t, "--config", path, "widgets", "list", "--area", "0,0,3,4")
	if err != nil {
		t.Fatalf("filtered list: %v", err)
	}
	if strings.Contains(out, "total") {
		t.Fatalf("filtered listing must not report a total:\n%s", out)
	}
	if _, err := run(t, "--config", path, "widgets", "list", "--area", "1,2"); err == nil {
		t.Fatalf("expected malformed area error")
	}
	if _, err := run(t, "--config", path, "widgets", "list", "--size", "0"); !domain.IsValidation(err) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestSnapshotExportAndImport(t *testing.T) {
	path, cfg := writeConfig(t)
	seedStore(t, cfg, 4)

	out, err := run(t, "--config", path, "snapshot", "export")
	if err != nil {
		t.Fatalf("export: %v", err)
	}
	if !strings.Contains(out, "Exported 4 widgets") || !strings.Contains(out, core.SnapshotPrefix) {
		t.Fatalf("unexpected export output %q", out)
	}

	store, err := core.OpenPersistentStore(context.Background(), cfg.Storage)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if err := core.NewService(store).Delete(context.Background(), 1); err != nil {
		t.Fatalf("delete: %v", err)
	}
	_ = store.(io.Closer).Close()

	out, err = run(t, "--config", path, "snapshot", "list")
	if err != nil || !strings.Contains(out, core.SnapshotPrefix) {
		t.Fatalf("snapshot list: %q %v", out, err)
	}

	out, err = run(t, "--config", path, "snapshot", "import")
	if err != nil {
		t.Fatalf("import: %v", err)
	}
	if !strings.Contains(out, "Imported 4 widgets") || !strings.Contains(out, "Next id: 5") {
		t.Fatalf("unexpected import output %q", out)
	}
	store, err = core.OpenPersistentStore(context.Background(), cfg.Storage)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer func() { _ = store.(io.Closer).Close() }()
	if n := len(store.ListWidgets()); n != 4 {
		t.Fatalf("expected 4 widgets after import, got %d", n)
	}
}

func TestServeHandlesRequestsUntilCancelled(t *testing.T) {
	cfg := config.Default()
	cfg.Metrics.Enabled = true
	trace := filepath.Join(t.TempDir(), "trace.jsonl")

	ctx, cancel := context.WithCancel(withLogger(context.Background(), newLogger(io.Discard, log.InfoLevel)))
	defer cancel()
	ready := make(chan net.Addr, 1)
	done := make(chan error, 1)
	c := New(io.Discard, LogInfo)
	go func() {
		done <- c.serve(ctx, cfg, serveOptions{
			addr:      "127.0.0.1:0",
			tracePath: trace,
			ready:     func(a net.Addr) { ready <- a },
		})
	}()

	var base string
	select {
	case a := <-ready:
		base = "http://" + a.String()
	case err := <-done:
		t.Fatalf("serve exited early: %v", err)
	case <-time.After(5 * time.Second):
		t.Fatalf("server did not start")
	}

	resp, err := http.Post(base+"/widget", "application/json", strings.NewReader(`{"x":1,"y":1,"width":1,"height":1}`))
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	_ = resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	for _, endpoint := range []struct{ path, want string }{
		{"/metrics", "widgetcore_service_operations_total"},
		{"/debug/vars", "widgetcore_ops_"},
	} {
		resp, err := http.Get(base + endpoint.path)
		if err != nil {
			t.Fatalf("get %s: %v", endpoint.path, err)
		}
		body, _ := io.ReadAll(resp.Body)
		_ = resp.Body.Close()
		if !strings.Contains(string(body), endpoint.want) {
			t.Fatalf("expected %s in %s", endpoint.want, endpoint.path)
		}
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("serve: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("server did not stop")
	}
	data, err := os.ReadFile(trace)
	if err != nil {
		t.Fatalf("read trace: %v", err)
	}
	if !strings.Contains(string(data), core.OpCreate) || !strings.Contains(string(data), `"request_id"`) {
		t.Fatalf("expected create span with request id in trace file, got %q", data)
	}
}
