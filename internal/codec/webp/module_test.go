package webp

import (
	"testing"

	"github.com/any-image/any-image/internal/codec"
	"github.com/any-image/any-image/internal/codec/cli"
)

func TestWebPRegistration(t *testing.T) {
	spec, ok := codec.ResolveFormat("webp")
	if !ok {
		t.Fatalf("webp format not registered")
	}
	if spec.Extension != "webp" || spec.MIMEType != "image/webp" {
		t.Fatalf("unexpected spec: %+v", spec)
	}
	if spec.DefaultBinary != "cwebp" {
		t.Fatalf("unexpected default binary: %s", spec.DefaultBinary)
	}

	enc, ok := spec.NewEncoder(codec.EncoderOptions{}).(*cli.Encoder)
	if !ok {
		t.Fatalf("expected cli encoder")
	}
	if enc.Binary() != "cwebp" {
		t.Fatalf("empty binary should fall back to cwebp, got %s", enc.Binary())
	}
}

func TestArgsBuilder(t *testing.T) {
	args := argsBuilder([]string{"-m", "6"})(75, "/tmp/in.png", "/tmp/out.webp")
	want := []string{"-quiet", "-q", "75", "-alpha_q", "100", "-metadata", "none", "-m", "6", "/tmp/in.png", "-o", "/tmp/out.webp"}
	if len(args) != len(want) {
		t.Fatalf("unexpected args: %v", args)
	}
	for i := range want {
		if args[i] != want[i] {
			t.Fatalf("arg %d: want %q got %q", i, want[i], args[i])
		}
	}
}
