package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/any-image/any-image/internal/codec"
)

// Validate 针对语义级别做进一步校验，防止非法配置进入引擎。
func (c *Config) Validate() error {
	if c == nil {
		return errors.New("配置为空")
	}

	g := c.Global
	if strings.TrimSpace(g.Root) == "" {
		return newFieldError("Global.Root", "不能为空")
	}
	if g.NegativeCacheSize < 0 {
		return newFieldError("Global.NegativeCacheSize", "不能为负数")
	}
	if g.EncoderTimeout.DurationValue() <= 0 {
		return newFieldError("Global.EncoderTimeout", "必须大于 0")
	}
	if g.WarmDebounce.DurationValue() < 0 {
		return newFieldError("Global.WarmDebounce", "不能为负数")
	}
	if g.LogMaxSize < 0 || g.LogMaxBackups < 0 {
		return newFieldError("Global.LogMaxSize/LogMaxBackups", "不能为负数")
	}

	if len(c.Formats) == 0 {
		return errors.New("至少需要配置一个 Format")
	}

	seen := map[string]struct{}{}
	for i := range c.Formats {
		f := &c.Formats[i]
		name := normalizeName(f.Name)
		if name == "" {
			return newFieldError("Format[].Name", "不能为空")
		}
		if _, exists := seen[name]; exists {
			return newFieldError(formatField(name, "Name"), "重复")
		}
		seen[name] = struct{}{}
		f.Name = name

		if _, ok := codec.ResolveFormat(name); !ok {
			return newFieldError(formatField(name, "Name"), fmt.Sprintf("未注册格式，仅支持 %s", strings.Join(codec.FormatKeys(), "|")))
		}
		if strings.TrimSpace(f.Binary) == "" {
			return newFieldError(formatField(name, "Binary"), "不能为空")
		}
		if f.Timeout.DurationValue() < 0 {
			return newFieldError(formatField(name, "Timeout"), "不能为负数")
		}
	}

	return nil
}

// ensureRootDir 确认图片根目录存在且为目录；引擎从不创建根目录。
func ensureRootDir(root string) error {
	info, err := os.Stat(root)
	if err != nil {
		return newFieldError("Global.Root", fmt.Sprintf("无法访问: %v", err))
	}
	if !info.IsDir() {
		return newFieldError("Global.Root", "必须是目录")
	}
	return nil
}
