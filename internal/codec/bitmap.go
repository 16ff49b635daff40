package codec

import (
	"bytes"
	"image"
	"image/png"
	"sync"

	"golang.org/x/image/draw"
)

// Bitmap 是解码后的源图副本：统一为 NRGBA 真彩色，保留 alpha 通道。
// 解码一次，多次质量尝试共享同一份只读数据。
type Bitmap struct {
	img *image.NRGBA

	once   sync.Once
	png    []byte
	pngErr error
}

// NewBitmap 将任意 image.Image（含调色板、灰度、YCbCr）转换为 NRGBA。
func NewBitmap(src image.Image) *Bitmap {
	if nrgba, ok := src.(*image.NRGBA); ok && nrgba.Rect.Min == (image.Point{}) {
		return &Bitmap{img: nrgba}
	}
	bounds := src.Bounds()
	dst := image.NewNRGBA(image.Rect(0, 0, bounds.Dx(), bounds.Dy()))
	draw.Draw(dst, dst.Bounds(), src, bounds.Min, draw.Src)
	return &Bitmap{img: dst}
}

// Image 返回底层图像，调用方不得修改。
func (b *Bitmap) Image() image.Image {
	return b.img
}

// Bounds 返回位图尺寸，原点固定为 (0,0)。
func (b *Bitmap) Bounds() image.Rectangle {
	return b.img.Bounds()
}

// Opaque 报告位图是否完全不透明。
func (b *Bitmap) Opaque() bool {
	return b.img.Opaque()
}

// PNG 返回位图的无损 PNG 中间表示，供外部编码器读取；结果在首次调用后缓存。
func (b *Bitmap) PNG() ([]byte, error) {
	b.once.Do(func() {
		var buf bytes.Buffer
		enc := png.Encoder{CompressionLevel: png.BestSpeed}
		if err := enc.Encode(&buf, b.img); err != nil {
			b.pngErr = err
			return
		}
		b.png = buf.Bytes()
	})
	return b.png, b.pngErr
}
