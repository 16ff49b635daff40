// Package cli 基于 cwebp、avifenc 等外部编码器二进制实现 codec.Encoder。
// 每次质量尝试都把位图的无损 PNG 中间文件写入私有临时目录，运行二进制后将结果读回内存；
// 源图所在目录不会写入任何文件。
package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	osexec "os/exec"
	"path/filepath"
	"strings"
	"time"

	platformerrors "github.com/jmgilman/go/errors"
	"github.com/jmgilman/go/exec"

	"github.com/any-image/any-image/internal/codec"
)

// Runner 执行完整命令行（args[0] 为二进制）。
type Runner func(ctx context.Context, args ...string) error

// ArgsBuilder 根据质量与输入/输出路径生成二进制之后的参数。
type ArgsBuilder func(quality int, input, output string) []string

// Options 描述一个外部编码器。
type Options struct {
	Format    string
	Extension string
	Binary    string
	Timeout   time.Duration
	BuildArgs ArgsBuilder
	Runner    Runner
	LookPath  func(file string) (string, error)
}

// Encoder 调用外部二进制完成编码。
type Encoder struct {
	format    string
	extension string
	binary    string
	timeout   time.Duration
	buildArgs ArgsBuilder
	run       Runner
	lookPath  func(file string) (string, error)
}

// New 构建外部编码器；Runner/LookPath 缺省时使用真实进程执行与 PATH 查找。
func New(opts Options) *Encoder {
	e := &Encoder{
		format:    opts.Format,
		extension: strings.TrimPrefix(opts.Extension, "."),
		binary:    opts.Binary,
		timeout:   opts.Timeout,
		buildArgs: opts.BuildArgs,
		run:       opts.Runner,
		lookPath:  opts.LookPath,
	}
	if e.extension == "" {
		e.extension = e.format
	}
	if e.run == nil {
		e.run = ExecRunner
	}
	if e.lookPath == nil {
		e.lookPath = osexec.LookPath
	}
	return e
}

// ExecRunner 通过 jmgilman/go/exec 执行命令并捕获输出，失败时返回 *exec.ExecError。
func ExecRunner(ctx context.Context, args ...string) error {
	_, err := exec.New().WithContext(ctx).Run(args...)
	return err
}

// Binary 返回实际调用的二进制名称或路径。
func (e *Encoder) Binary() string {
	return e.binary
}

// Available 报告二进制是否可在 PATH（或给定路径）中找到。
func (e *Encoder) Available() bool {
	if e.binary == "" || e.buildArgs == nil {
		return false
	}
	_, err := e.lookPath(e.binary)
	return err == nil
}

// Encode 以给定质量运行一次外部编码器并返回输出字节。
func (e *Encoder) Encode(ctx context.Context, bm *codec.Bitmap, quality int) ([]byte, error) {
	if bm == nil {
		return nil, errors.New("nil bitmap")
	}
	if e.buildArgs == nil {
		return nil, fmt.Errorf("%s: %w", e.format, codec.ErrEncoderUnavailable)
	}

	input, err := bm.PNG()
	if err != nil {
		return nil, fmt.Errorf("encode intermediate png: %w", err)
	}

	dir, err := os.MkdirTemp("", "any-image-*")
	if err != nil {
		return nil, err
	}
	defer os.RemoveAll(dir)

	inPath := filepath.Join(dir, "source.png")
	outPath := filepath.Join(dir, "derived."+e.extension)
	if err := os.WriteFile(inPath, input, 0o600); err != nil {
		return nil, err
	}

	runCtx := ctx
	if e.timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}

	args := append([]string{e.binary}, e.buildArgs(quality, inPath, outPath)...)
	if err := e.run(runCtx, args...); err != nil {
		return nil, e.wrapRunError(runCtx, err, quality)
	}

	data, err := os.ReadFile(outPath)
	if err != nil {
		return nil, fmt.Errorf("read %s output: %w", e.binary, err)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("%s q=%d: %w", e.binary, quality, codec.ErrEmptyOutput)
	}
	return data, nil
}

func (e *Encoder) wrapRunError(ctx context.Context, err error, quality int) error {
	code := platformerrors.CodeExecutionFailed
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		code = platformerrors.CodeTimeout
	}

	details := map[string]interface{}{
		"format":  e.format,
		"quality": quality,
	}
	var execErr *exec.ExecError
	if errors.As(err, &execErr) {
		details["exit_code"] = execErr.ExitCode
		if stderr := strings.TrimSpace(execErr.Stderr); stderr != "" {
			details["stderr"] = stderr
		}
	}
	return platformerrors.WrapWithContext(err, code, fmt.Sprintf("%s encode failed", e.binary), details)
}
