package anyimage

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestProduceOrdersAvifBeforeWebp(t *testing.T) {
	root := t.TempDir()
	writeSourceImage(t, root, "img/photo.png")
	engine := newTestEngine(t, baseConfig(root),
		WithEncoder("webp", readyEncoder()),
		WithEncoder("avif", readyEncoder()),
	)

	res := engine.Produce(context.Background(), "img/photo.png", Options{})
	if len(res.Derivatives) != 2 {
		t.Fatalf("expected two derivatives, got %+v", res)
	}
	if res.Derivatives[0].Format != "avif" || res.Derivatives[1].Format != "webp" {
		t.Fatalf("avif should come first: %+v", res.Derivatives)
	}
	if res.Derivatives[0].Path != "img/photo.avif" || res.Derivatives[0].MIMEType != "image/avif" {
		t.Fatalf("unexpected avif derivative: %+v", res.Derivatives[0])
	}
	if p, ok := res.Lookup("webp"); !ok || p != "img/photo.webp" {
		t.Fatalf("lookup webp = %q %v", p, ok)
	}
	if paths := res.Paths(); len(paths) != 2 {
		t.Fatalf("paths = %v", paths)
	}
	for _, name := range []string{"photo.avif", "photo.webp"} {
		if _, err := os.Stat(filepath.Join(root, "img", name)); err != nil {
			t.Fatalf("%s should exist: %v", name, err)
		}
	}
}

func TestProduceFormatsAreIndependent(t *testing.T) {
	root := t.TempDir()
	writeSourceImage(t, root, "photo.jpg")
	unavailable := &stubEncoder{}
	webp := readyEncoder()
	engine := newTestEngine(t, baseConfig(root),
		WithEncoder("avif", unavailable),
		WithEncoder("webp", webp),
	)

	res := engine.Produce(context.Background(), "photo.jpg", Options{})
	if len(res.Derivatives) != 1 || res.Derivatives[0].Format != "webp" {
		t.Fatalf("only webp should be produced: %+v", res)
	}
	if unavailable.calls.Load() != 0 {
		t.Fatalf("unavailable encoder must not be called")
	}
}

func TestProduceOversizedYieldsNothing(t *testing.T) {
	root := t.TempDir()
	writeSourceImage(t, root, "photo.png")
	never := &stubEncoder{available: true, shrinkAt: 0, big: 1 << 20}
	engine := newTestEngine(t, baseConfig(root), WithEncoder("avif", never), WithEncoder("webp", never))

	res := engine.Produce(context.Background(), "photo.png", Options{})
	if len(res.Derivatives) != 0 {
		t.Fatalf("expected no derivatives, got %+v", res)
	}
	if got := never.calls.Load(); got != 14 {
		t.Fatalf("each format should try 7 qualities, calls=%d", got)
	}
}

func TestProduceHonoursDisableFlags(t *testing.T) {
	root := t.TempDir()
	writeSourceImage(t, root, "photo.png")
	cfg := baseConfig(root)
	cfg.Formats = []FormatConfig{{Name: "avif", Disabled: true}, {Name: "webp"}}
	avif := readyEncoder()
	webp := readyEncoder()
	engine := newTestEngine(t, cfg, WithEncoder("avif", avif), WithEncoder("webp", webp))

	if got := engine.Formats(); len(got) != 1 || got[0] != "webp" {
		t.Fatalf("formats = %v", got)
	}

	res := engine.Produce(context.Background(), "photo.png", Options{Disable: true})
	if len(res.Derivatives) != 0 {
		t.Fatalf("per-call disable should skip everything: %+v", res)
	}

	res = engine.Produce(context.Background(), "photo.png", Options{})
	if len(res.Derivatives) != 1 || res.Derivatives[0].Format != "webp" {
		t.Fatalf("globally disabled avif should be skipped: %+v", res)
	}
	if avif.calls.Load() != 0 {
		t.Fatalf("disabled avif encoder must not run")
	}
}

func TestProduceSkipsUnconfiguredFormats(t *testing.T) {
	root := t.TempDir()
	writeSourceImage(t, root, "photo.png")
	cfg := baseConfig(root)
	cfg.Formats = []FormatConfig{{Name: "webp"}}
	engine := newTestEngine(t, cfg, WithEncoder("webp", readyEncoder()), WithEncoder("avif", readyEncoder()))

	res := engine.Produce(context.Background(), "photo.png", Options{})
	if len(res.Derivatives) != 1 || res.Derivatives[0].Format != "webp" {
		t.Fatalf("only configured formats should run: %+v", res)
	}
}

func TestProduceCachesAndRecreates(t *testing.T) {
	root := t.TempDir()
	writeSourceImage(t, root, "photo.png")
	enc := readyEncoder()
	cfg := baseConfig(root)
	cfg.Formats = []FormatConfig{{Name: "webp"}}
	engine := newTestEngine(t, cfg, WithEncoder("webp", enc))

	engine.Produce(context.Background(), "photo.png", Options{})
	engine.Produce(context.Background(), "photo.png", Options{})
	if got := enc.calls.Load(); got != 1 {
		t.Fatalf("second call should hit the cache, calls=%d", got)
	}

	engine.Produce(context.Background(), "photo.png", Options{ForceRecreate: true})
	if got := enc.calls.Load(); got != 2 {
		t.Fatalf("force should re-encode, calls=%d", got)
	}
}

func TestProduceRecreateAll(t *testing.T) {
	root := t.TempDir()
	writeSourceImage(t, root, "photo.png")
	enc := readyEncoder()
	cfg := baseConfig(root)
	cfg.Global.RecreateAll = true
	cfg.Formats = []FormatConfig{{Name: "webp"}}
	engine := newTestEngine(t, cfg, WithEncoder("webp", enc))

	for i := 0; i < 3; i++ {
		if res := engine.Produce(context.Background(), "photo.png", Options{}); len(res.Derivatives) != 1 {
			t.Fatalf("expected derivative: %+v", res)
		}
	}
	if got := enc.calls.Load(); got != 3 {
		t.Fatalf("RecreateAll should force every call, calls=%d", got)
	}
}

func TestProduceMissingSource(t *testing.T) {
	root := t.TempDir()
	engine := newTestEngine(t, baseConfig(root), WithEncoder("webp", readyEncoder()), WithEncoder("avif", readyEncoder()))

	res := engine.Produce(context.Background(), "nope.png", Options{})
	if res.Source != "nope.png" || len(res.Derivatives) != 0 {
		t.Fatalf("missing source should fall back to the original: %+v", res)
	}
}

func TestPurgeRemovesAllDerivatives(t *testing.T) {
	root := t.TempDir()
	writeSourceImage(t, root, "photo.png")
	engine := newTestEngine(t, baseConfig(root), WithEncoder("webp", readyEncoder()), WithEncoder("avif", readyEncoder()))
	engine.Produce(context.Background(), "photo.png", Options{})

	if err := engine.Purge(context.Background(), "photo.png"); err != nil {
		t.Fatalf("purge failed: %v", err)
	}
	for _, name := range []string{"photo.avif", "photo.webp"} {
		if _, err := os.Stat(filepath.Join(root, name)); !os.IsNotExist(err) {
			t.Fatalf("%s should be removed", name)
		}
	}
	if _, err := os.Stat(filepath.Join(root, "photo.png")); err != nil {
		t.Fatalf("source must survive purge: %v", err)
	}
}

func TestEngineRegistersMetrics(t *testing.T) {
	root := t.TempDir()
	writeSourceImage(t, root, "photo.png")
	reg := prometheus.NewRegistry()
	cfg := baseConfig(root)
	cfg.Formats = []FormatConfig{{Name: "webp"}}
	engine := newTestEngine(t, cfg, WithRegisterer(reg), WithEncoder("webp", readyEncoder()))

	engine.Produce(context.Background(), "photo.png", Options{})

	if n := testutil.CollectAndCount(reg, "anyimage_resolve_total"); n != 1 {
		t.Fatalf("expected one resolve series, got %d", n)
	}
}

func TestWarmProducesOnWrite(t *testing.T) {
	root := t.TempDir()
	cfg := baseConfig(root)
	cfg.Global.WarmDebounce = Duration(100 * time.Millisecond)
	cfg.Formats = []FormatConfig{{Name: "webp"}}
	enc := readyEncoder()
	engine := newTestEngine(t, cfg, WithEncoder("webp", enc))

	if err := engine.Warm(context.Background()); err != nil {
		t.Fatalf("warm failed: %v", err)
	}
	if err := engine.Warm(context.Background()); err == nil {
		t.Fatalf("second warm should fail")
	}

	writeSourceImage(t, root, "fresh.png")
	derived := filepath.Join(root, "fresh.webp")
	deadline := time.Now().Add(5 * time.Second)
	for {
		if _, err := os.Stat(derived); err == nil {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("warmer did not produce %s", derived)
		}
		time.Sleep(20 * time.Millisecond)
	}

	if err := os.Remove(filepath.Join(root, "fresh.png")); err != nil {
		t.Fatal(err)
	}
	deadline = time.Now().Add(5 * time.Second)
	for {
		if _, err := os.Stat(derived); os.IsNotExist(err) {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("warmer did not purge %s", derived)
		}
		time.Sleep(20 * time.Millisecond)
	}

	if err := engine.Close(); err != nil {
		t.Fatalf("close failed: %v", err)
	}
}

func TestNewRejectsNilConfig(t *testing.T) {
	if _, err := New(nil, nil); err == nil {
		t.Fatalf("expected error")
	}
}

func TestVersion(t *testing.T) {
	if Version() == "" {
		t.Fatalf("version should not be empty")
	}
}

func TestWarmFailureDoesNotBlockLaterCalls(t *testing.T) {
	root := t.TempDir()
	cfg := baseConfig(root)
	cfg.Formats = []FormatConfig{{Name: "webp"}}
	engine := newTestEngine(t, cfg, WithEncoder("webp", readyEncoder()))

	if err := os.RemoveAll(root); err != nil {
		t.Fatal(err)
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := engine.Warm(context.Background()); err == nil {
			t.Errorf("warm should fail when the root is gone")
		}
		if err := engine.Warm(context.Background()); err == nil {
			t.Errorf("second warm should fail too")
		}
		if err := engine.Close(); err != nil {
			t.Errorf("close after failed warm: %v", err)
		}
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatalf("warm/close should not hang after a failed start")
	}
}
