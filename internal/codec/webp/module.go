// Package webp 注册 WebP 目标格式，编码通过 libwebp 的 cwebp 完成。
package webp

import (
	"strconv"

	"github.com/any-image/any-image/internal/codec"
	"github.com/any-image/any-image/internal/codec/cli"
)

const (
	formatKey     = "webp"
	priority      = 20
	defaultBinary = "cwebp"
)

func init() {
	codec.MustRegisterFormat(codec.FormatSpec{
		Key:           formatKey,
		Extension:     "webp",
		MIMEType:      "image/webp",
		Priority:      priority,
		DefaultBinary: defaultBinary,
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
		Extension: "webp",
		Binary:    binary,
		Timeout:   opts.Timeout,
		BuildArgs: argsBuilder(opts.Args),
	})
}

// argsBuilder 生成 cwebp 参数；alpha 通道固定无损压缩质量，元数据不复制。
func argsBuilder(extra []string) cli.ArgsBuilder {
	return func(quality int, input, output string) []string {
		args := []string{"-quiet", "-q", strconv.Itoa(quality), "-alpha_q", "100", "-metadata", "none"}
		args = append(args, extra...)
		return append(args, input, "-o", output)
	}
}
