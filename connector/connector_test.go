package connector_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/tinyrange/memscope/arch"
	"github.com/tinyrange/memscope/connector"
)

func writeTarget(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "target.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	return path
}

func TestLoadDummyBackendNoCache(t *testing.T) {
	path := writeTarget(t, `
backend:
  kind: dummy
  size_mb: 1
architecture: x86_64
dtb: 4096
`)
	target, err := connector.Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if target.Arch != arch.X64 {
		t.Errorf("Arch = %s, want x86_64", target.Arch)
	}
	if target.DTB != 4096 {
		t.Errorf("DTB = %d, want 4096", target.DTB)
	}
	if got := target.Mem.Metadata().Size; got != 1024*1024 {
		t.Errorf("Metadata().Size = %d, want 1 MiB", got)
	}
}

func TestLoadEnablesCacheWrapper(t *testing.T) {
	path := writeTarget(t, `
backend:
  kind: dummy
  size_mb: 1
architecture: x86_64
dtb: 0
cache:
  enabled: true
  size_mb: 1
`)
	target, err := connector.Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	// A cache-wrapped backend still reports the wrapped backend's
	// metadata, confirming the decorator chain was actually built.
	if got := target.Mem.Metadata().Size; got != 1024*1024 {
		t.Errorf("Metadata().Size = %d, want 1 MiB", got)
	}
}

func TestLoadRejectsUnknownBackend(t *testing.T) {
	path := writeTarget(t, `
backend:
  kind: nonsense
architecture: x86_64
`)
	_, err := connector.Load(path)
	if err == nil {
		t.Fatalf("expected Load to fail for an unknown backend kind")
	}
}

func TestLoadRejectsUnknownArchitecture(t *testing.T) {
	path := writeTarget(t, `
backend:
  kind: dummy
architecture: sparc
`)
	_, err := connector.Load(path)
	if err == nil {
		t.Fatalf("expected Load to fail for an unknown architecture name")
	}
}
