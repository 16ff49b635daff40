package codec

import (
	"fmt"
	"sort"
	"strings"
	"sync"
)

var globalRegistry = newRegistry()

type registry struct {
	mu       sync.RWMutex
	formats  map[string]FormatSpec
	decoders map[string]Decoder
}

func newRegistry() *registry {
	return &registry{
		formats:  make(map[string]FormatSpec),
		decoders: make(map[string]Decoder),
	}
}

// RegisterFormat 将目标格式加入全局注册表，重复键会返回错误。
func RegisterFormat(spec FormatSpec) error {
	return globalRegistry.registerFormat(spec)
}

// MustRegisterFormat 在注册失败时 panic，适合格式包 init() 中调用。
func MustRegisterFormat(spec FormatSpec) {
	if err := RegisterFormat(spec); err != nil {
		panic(err)
	}
}

// ResolveFormat 返回指定键的格式描述，大小写不敏感。
func ResolveFormat(key string) (FormatSpec, bool) {
	return globalRegistry.resolveFormat(key)
}

// ListFormats 返回按 Priority（再按键）排序的格式列表。
func ListFormats() []FormatSpec {
	return globalRegistry.listFormats()
}

// FormatKeys 返回所有已注册格式的键值，顺序与 ListFormats 一致。
func FormatKeys() []string {
	items := ListFormats()
	result := make([]string, len(items))
	for i, spec := range items {
		result[i] = spec.Key
	}
	return result
}

// RegisterDecoder 为源文件扩展名（不含点）注册解码器。
func RegisterDecoder(ext string, dec Decoder) error {
	return globalRegistry.registerDecoder(ext, dec)
}

// MustRegisterDecoder 在注册失败时 panic。
func MustRegisterDecoder(ext string, dec Decoder) {
	if err := RegisterDecoder(ext, dec); err != nil {
		panic(err)
	}
}

// DecoderFor 返回扩展名对应的解码器，扩展名可带或不带前导点。
func DecoderFor(ext string) (Decoder, bool) {
	return globalRegistry.decoderFor(ext)
}

func normalizeKey(key string) string {
	return strings.ToLower(strings.TrimPrefix(strings.TrimSpace(key), "."))
}

func (r *registry) registerFormat(spec FormatSpec) error {
	key := normalizeKey(spec.Key)
	if key == "" {
		return fmt.Errorf("format key is required")
	}
	if spec.NewEncoder == nil {
		return fmt.Errorf("format %s requires an encoder factory", key)
	}
	spec.Key = key
	spec.Extension = normalizeKey(spec.Extension)
	if spec.Extension == "" {
		spec.Extension = key
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.formats[key]; exists {
		return fmt.Errorf("format %s already registered", key)
	}
	r.formats[key] = spec
	return nil
}

func (r *registry) resolveFormat(key string) (FormatSpec, bool) {
	normalized := normalizeKey(key)
	if normalized == "" {
		return FormatSpec{}, false
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	spec, ok := r.formats[normalized]
	return spec, ok
}

func (r *registry) listFormats() []FormatSpec {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if len(r.formats) == 0 {
		return nil
	}

	result := make([]FormatSpec, 0, len(r.formats))
	for _, spec := range r.formats {
		result = append(result, spec)
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].Priority != result[j].Priority {
			return result[i].Priority < result[j].Priority
		}
		return result[i].Key < result[j].Key
	})
	return result
}

func (r *registry) registerDecoder(ext string, dec Decoder) error {
	key := normalizeKey(ext)
	if key == "" {
		return fmt.Errorf("decoder extension is required")
	}
	if dec == nil {
		return fmt.Errorf("decoder for %s is nil", key)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.decoders[key]; exists {
		return fmt.Errorf("decoder %s already registered", key)
	}
	r.decoders[key] = dec
	return nil
}

func (r *registry) decoderFor(ext string) (Decoder, bool) {
	key := normalizeKey(ext)
	if key == "" {
		return nil, false
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	dec, ok := r.decoders[key]
	return dec, ok
}
