package anyimage

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/any-image/any-image/internal/codec"
)

// stubEncoder 在 quality <= shrinkAt 时输出 small 字节，否则输出 big 字节。
type stubEncoder struct {
	available bool
	shrinkAt  int
	small     int
	big       int
	calls     atomic.Int32
}

func (s *stubEncoder) Available() bool { return s.available }

func (s *stubEncoder) Encode(_ context.Context, _ *codec.Bitmap, quality int) ([]byte, error) {
	s.calls.Add(1)
	if quality <= s.shrinkAt {
		return bytes.Repeat([]byte{1}, s.small), nil
	}
	return bytes.Repeat([]byte{2}, s.big), nil
}

func readyEncoder() *stubEncoder {
	return &stubEncoder{available: true, shrinkAt: 100, small: 16, big: 1 << 20}
}

func noisyImage() *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, 32, 32))
	for y := 0; y < 32; y++ {
		for x := 0; x < 32; x++ {
			img.Set(x, y, color.NRGBA{R: uint8(x * 7), G: uint8(y * 11), B: uint8(x ^ y), A: 200})
		}
	}
	return img
}

// writeSourceImage 在 root 下写入 PNG 或 JPEG 源图，并固定 mtime。
func writeSourceImage(t *testing.T, root, rel string) string {
	t.Helper()
	full := filepath.Join(root, filepath.FromSlash(rel))
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		t.Fatalf("创建目录失败: %v", err)
	}
	var buf bytes.Buffer
	var err error
	switch strings.ToLower(filepath.Ext(rel)) {
	case ".jpg", ".jpeg":
		err = jpeg.Encode(&buf, noisyImage(), &jpeg.Options{Quality: 95})
	default:
		err = png.Encode(&buf, noisyImage())
	}
	if err != nil {
		t.Fatalf("编码源图失败: %v", err)
	}
	if err := os.WriteFile(full, buf.Bytes(), 0o644); err != nil {
		t.Fatalf("写入源图失败: %v", err)
	}
	mod := time.Now().Add(-time.Hour).Truncate(time.Second)
	if err := os.Chtimes(full, mod, mod); err != nil {
		t.Fatalf("设置 mtime 失败: %v", err)
	}
	return full
}

func writeConfigFile(t *testing.T, content string) string {
	t.Helper()
	file := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(file, []byte(strings.TrimSpace(content)), 0o600); err != nil {
		t.Fatalf("写入配置失败: %v", err)
	}
	return file
}

func newTestEngine(t *testing.T, cfg *Config, opts ...Option) *Engine {
	t.Helper()
	engine, err := New(cfg, nil, opts...)
	if err != nil {
		t.Fatalf("创建引擎失败: %v", err)
	}
	t.Cleanup(func() { _ = engine.Close() })
	return engine
}

func baseConfig(root string) *Config {
	cfg := &Config{}
	cfg.Global.Root = root
	return cfg
}
