package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Duration 提供更灵活的反序列化能力，同时兼容纯秒整数与 Go Duration 字符串。
type Duration time.Duration

// UnmarshalText 使 Viper 可以识别诸如 "30s"、"5m" 或纯数字秒值等配置写法。
func (d *Duration) UnmarshalText(text []byte) error {
	raw := strings.TrimSpace(string(text))
	if raw == "" {
		*d = Duration(0)
		return nil
	}

	if parsed, err := time.ParseDuration(raw); err == nil {
		*d = Duration(parsed)
		return nil
	}

	if intVal, err := parseInt(raw); err == nil {
		*d = Duration(time.Duration(intVal) * time.Second)
		return nil
	}

	return fmt.Errorf("invalid duration value: %s", raw)
}

// DurationValue 返回真实的 time.Duration，便于调用方计算。
func (d Duration) DurationValue() time.Duration {
	return time.Duration(d)
}

// parseInt 支持十进制或 0x 前缀的十六进制字符串解析。
func parseInt(value string) (int64, error) {
	if strings.HasPrefix(value, "0x") || strings.HasPrefix(value, "0X") {
		return strconv.ParseInt(value, 0, 64)
	}
	return strconv.ParseInt(value, 10, 64)
}

// GlobalConfig 描述进程级行为，所有格式共享同一份参数。
type GlobalConfig struct {
	LogLevel          string   `mapstructure:"LogLevel"`
	LogFilePath       string   `mapstructure:"LogFilePath"`
	LogMaxSize        int      `mapstructure:"LogMaxSize"`
	LogMaxBackups     int      `mapstructure:"LogMaxBackups"`
	LogCompress       bool     `mapstructure:"LogCompress"`
	Root              string   `mapstructure:"Root"`
	RecreateAll       bool     `mapstructure:"RecreateAll"`
	NegativeCacheSize int      `mapstructure:"NegativeCacheSize"`
	EncoderTimeout    Duration `mapstructure:"EncoderTimeout"`
	WarmDebounce      Duration `mapstructure:"WarmDebounce"`
}

// FormatConfig 控制单个目标格式（webp/avif）的开关与编码器调用方式。
type FormatConfig struct {
	Name     string   `mapstructure:"Name"`
	Disabled bool     `mapstructure:"Disabled"`
	Binary   string   `mapstructure:"Binary"`
	Args     []string `mapstructure:"Args"`
	Timeout  Duration `mapstructure:"Timeout"`
}

// Config 是 TOML 文件映射的整体结构。
type Config struct {
	Global  GlobalConfig   `mapstructure:",squash"`
	Formats []FormatConfig `mapstructure:"Format"`
}

// EffectiveTimeout 返回特定格式生效的编码超时，未覆盖时回退至全局值。
func (c *Config) EffectiveTimeout(f FormatConfig) time.Duration {
	if f.Timeout.DurationValue() > 0 {
		return f.Timeout.DurationValue()
	}
	return c.Global.EncoderTimeout.DurationValue()
}

// Format 按名称查找格式配置（大小写不敏感）。
func (c *Config) Format(name string) (FormatConfig, bool) {
	key := normalizeName(name)
	for _, f := range c.Formats {
		if normalizeName(f.Name) == key {
			return f, true
		}
	}
	return FormatConfig{}, false
}

// EnabledFormats 返回未被全局禁用的格式名称，用于启动日志。
func (c *Config) EnabledFormats() []string {
	result := make([]string, 0, len(c.Formats))
	for _, f := range c.Formats {
		if f.Disabled {
			continue
		}
		result = append(result, f.Name)
	}
	return result
}

func normalizeName(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}
