package codec

import (
	"fmt"
	"image/jpeg"
	"image/png"
	"io"
	"os"
	"path/filepath"
)

func init() {
	MustRegisterDecoder("png", DecoderFunc(decodePNG))
	MustRegisterDecoder("jpg", DecoderFunc(decodeJPEG))
	MustRegisterDecoder("jpeg", DecoderFunc(decodeJPEG))
}

// decodePNG 展开调色板为真彩色并保留 alpha。
func decodePNG(r io.Reader) (*Bitmap, error) {
	img, err := png.Decode(r)
	if err != nil {
		return nil, fmt.Errorf("decode png: %w", err)
	}
	return NewBitmap(img), nil
}

// decodeJPEG 将 YCbCr/CMYK/灰度统一转换为真彩色。
func decodeJPEG(r io.Reader) (*Bitmap, error) {
	img, err := jpeg.Decode(r)
	if err != nil {
		return nil, fmt.Errorf("decode jpeg: %w", err)
	}
	return NewBitmap(img), nil
}

// SourceExtension 返回小写、无点的扩展名。
func SourceExtension(path string) string {
	return normalizeKey(filepath.Ext(path))
}

// Supported 报告该路径的扩展名是否有注册的解码器。
func Supported(path string) bool {
	_, ok := DecoderFor(SourceExtension(path))
	return ok
}

// DecodeFile 按扩展名选择解码器读取源文件；未识别扩展名返回 ErrUnsupportedSource。
func DecodeFile(path string) (*Bitmap, error) {
	ext := SourceExtension(path)
	dec, ok := DecoderFor(ext)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedSource, ext)
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	return dec.Decode(f)
}
