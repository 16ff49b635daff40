package codec

import (
	"context"
	"errors"
	"io"
	"time"
)

var (
	// ErrUnsupportedSource 表示源文件扩展名没有对应的解码器。
	ErrUnsupportedSource = errors.New("unsupported source format")
	// ErrEncoderUnavailable 表示目标格式的编码器在当前运行环境不可用。
	ErrEncoderUnavailable = errors.New("encoder unavailable")
	// ErrEmptyOutput 表示编码器成功退出但没有产出任何字节。
	ErrEmptyOutput = errors.New("encoder produced empty output")
)

// Decoder 将源图字节流解码为归一化的 Bitmap。
type Decoder interface {
	Decode(r io.Reader) (*Bitmap, error)
}

// DecoderFunc 允许普通函数充当 Decoder。
type DecoderFunc func(r io.Reader) (*Bitmap, error)

// Decode 调用 f(r)。
func (f DecoderFunc) Decode(r io.Reader) (*Bitmap, error) {
	return f(r)
}

// Encoder 将 Bitmap 按给定质量（1-100）编码为目标格式字节。
type Encoder interface {
	// Available 报告编码器能否在当前环境运行，例如外部二进制是否在 PATH 中。
	Available() bool

	// Encode 每次调用都产出一份全新的缓冲区，不得修改 bm。
	Encode(ctx context.Context, bm *Bitmap, quality int) ([]byte, error)
}

// EncoderOptions 由配置层传入，描述编码器的调用方式。
type EncoderOptions struct {
	Binary  string
	Args    []string
	Timeout time.Duration
}

// EncoderFactory 根据配置构建具体 Encoder。
type EncoderFactory func(opts EncoderOptions) Encoder

// FormatSpec 描述一个目标格式的静态信息。Priority 越小越现代，渲染时排在前面。
type FormatSpec struct {
	Key           string
	Extension     string
	MIMEType      string
	Priority      int
	DefaultBinary string
	DefaultArgs   []string
	NewEncoder    EncoderFactory
}
