package config

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/orizon-lang/orizon-rc/internal/runtime/rc"
)

func TestDefault_IsValid(t *testing.T) {
	cfg := Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
	r := cfg.RC()
	if r.Threshold != rc.DefaultThreshold || r.VisitCap != rc.DefaultVisitCap || r.LeakPasses != rc.DefaultLeakPasses {
		t.Fatalf("unexpected rc config %+v", r)
	}
	if r.MaxHeapSize != 0 {
		t.Fatalf("default heap should be unlimited, got %d", r.MaxHeapSize)
	}
}

func TestParse_OverridesDefaults(t *testing.T) {
	cfg, err := Parse([]byte(`
schema = "1.2"

[heap]
gc_threshold = 500
max_heap_size = 1048576
auto_collect = false

[observe]
metrics_addr = "127.0.0.1:0"
`))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Heap.GCThreshold != 500 || cfg.Heap.MaxHeapSize != 1<<20 {
		t.Fatalf("heap = %+v", cfg.Heap)
	}
	if cfg.Heap.AutoCollect {
		t.Fatal("auto_collect should be false")
	}
	if cfg.Heap.VisitCap != rc.DefaultVisitCap {
		t.Fatalf("visit_cap default lost: %d", cfg.Heap.VisitCap)
	}
	if cfg.Observe.MetricsAddr != "127.0.0.1:0" {
		t.Fatalf("metrics_addr = %q", cfg.Observe.MetricsAddr)
	}
}

func TestParse_Rejects(t *testing.T) {
	cases := map[string]string{
		"future schema":   `schema = "2.0"`,
		"bad schema":      `schema = "banana"`,
		"negative cap":    "[heap]\nvisit_cap = -1",
		"unknown key":     "[heap]\ngc_treshold = 3",
		"half tls":        "[observe]\ncert_file = \"a.pem\"",
		"not toml":        "[heap",
		"negative passes": "[heap]\nleak_passes = -2",
	}
	for name, src := range cases {
		if _, err := Parse([]byte(src)); err == nil {
			t.Errorf("%s: expected error", name)
		}
	}
}

func TestLoadAndSave_RoundTrip(t *testing.T) {
	dir := t.TempDir()
	p := filepath.Join(dir, "heap.toml")

	cfg := Default()
	cfg.Heap.GCThreshold = 42
	cfg.Heap.TrackTypes = true
	if err := cfg.SaveFile(p); err != nil {
		t.Fatal(err)
	}
	got, err := Load(p)
	if err != nil {
		t.Fatal(err)
	}
	if got.Heap.GCThreshold != 42 || !got.Heap.TrackTypes {
		t.Fatalf("loaded %+v", got.Heap)
	}
	if got.Path != p {
		t.Fatalf("Path = %q", got.Path)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.toml"))
	if err == nil || !strings.Contains(err.Error(), "cannot read") {
		t.Fatalf("err = %v", err)
	}
}

func TestRC_LimitToSystemNeverRaisesLimit(t *testing.T) {
	cfg := Default()
	cfg.Heap.MaxHeapSize = 4096
	cfg.Heap.LimitToSystem = true
	if got := cfg.RC().MaxHeapSize; got > 4096 || got == 0 {
		t.Fatalf("clamped limit = %d", got)
	}
}

func TestWatcher_ReloadsOnWrite(t *testing.T) {
	dir := t.TempDir()
	p := filepath.Join(dir, "heap.toml")
	if err := os.WriteFile(p, []byte("schema = \"1.0\"\n[heap]\ngc_threshold = 1\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	w, err := NewWatcher(p)
	if err != nil {
		t.Skip("fsnotify unavailable:", err)
	}
	w.SetDebounce(20 * time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	got := make(chan Config, 4)
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx, func(c Config) { got <- c }) }()

	// give the watcher a moment to settle before writing
	time.Sleep(50 * time.Millisecond)
	if err := os.WriteFile(p, []byte("schema = \"1.0\"\n[heap]\ngc_threshold = 77\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	select {
	case c := <-got:
		if c.Heap.GCThreshold != 77 {
			t.Fatalf("reloaded threshold = %d", c.Heap.GCThreshold)
		}
	case <-ctx.Done():
		t.Fatal("no reload observed")
	}

	cancel()
	if err := <-done; err != nil {
		t.Fatalf("Run: %v", err)
	}
}
