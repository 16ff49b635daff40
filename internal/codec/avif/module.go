// Package avif 注册 AVIF 目标格式，编码通过 libavif 的 avifenc 完成。
package avif

import (
	"strconv"

	"github.com/any-image/any-image/internal/codec"
	"github.com/any-image/any-image/internal/codec/cli"
)

const (
	formatKey     = "avif"
	priority      = 10
	defaultBinary = "avifenc"
)

// defaultArgs 选择中等编码速度，避免单次尝试耗时过长。
var defaultArgs = []string{"--speed", "6"}

func init() {
	codec.MustRegisterFormat(codec.FormatSpec{
		Key:           formatKey,
		Extension:     "avif",
		MIMEType:      "image/avif",
		Priority:      priority,
		DefaultBinary: defaultBinary,
		DefaultArgs:   defaultArgs,
		NewEncoder:    newEncoder,
	})
}

func newEncoder(opts codec.EncoderOptions) codec.Encoder {
	binary := opts.Binary
	if binary == "" {
		binary = defaultBinary
	}
	return cli.New(cli.Options{
		Format:    formatKey,
		Extension: "avif",
		Binary:    binary,
		Timeout:   opts.Timeout,
		BuildArgs: argsBuilder(opts.Args),
	})
}

func argsBuilder(extra []string) cli.ArgsBuilder {
	return func(quality int, input, output string) []string {
		q := strconv.Itoa(quality)
		args := []string{"-q", q, "--qalpha", q}
		args = append(args, extra...)
		return append(args, input, output)
	}
}
