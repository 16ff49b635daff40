package anyimage

import (
	"strings"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/any-image/any-image/internal/codec"
)

// Option 调整 Engine 的构建方式。
type Option func(*engineOptions)

type engineOptions struct {
	registerer prometheus.Registerer
	encoders   map[string]codec.Encoder
}

// WithRegisterer 将引擎指标注册到 reg；未设置时指标不对外注册。
func WithRegisterer(reg prometheus.Registerer) Option {
	return func(o *engineOptions) {
		o.registerer = reg
	}
}

// WithEncoder 替换某个格式的编码器，常用于嵌入自带编码实现的宿主或测试。
func WithEncoder(format string, enc codec.Encoder) Option {
	return func(o *engineOptions) {
		if o.encoders == nil {
			o.encoders = make(map[string]codec.Encoder)
		}
		o.encoders[strings.ToLower(strings.TrimSpace(format))] = enc
	}
}
