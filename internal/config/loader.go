package config

import (
	"fmt"
	"path/filepath"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"

	"github.com/any-image/any-image/internal/codec"
)

// Load 读取并解析 TOML 配置文件，同时注入默认值与校验逻辑。
func Load(path string) (*Config, error) {
	if path == "" {
		path = "config.toml"
	}

	v := viper.New()
	v.SetConfigFile(path)
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("读取配置失败: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, viper.DecodeHook(durationDecodeHook())); err != nil {
		return nil, fmt.Errorf("解析配置失败: %w", err)
	}

	if err := cfg.Normalize(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Normalize 填充默认值、校验并将 Root 转为绝对路径；直接构造 Config 的调用方也需经过此步骤。
func (c *Config) Normalize() error {
	applyGlobalDefaults(&c.Global)
	if len(c.Formats) == 0 {
		c.Formats = defaultFormats()
	}
	for i := range c.Formats {
		applyFormatDefaults(&c.Formats[i])
	}

	if err := c.Validate(); err != nil {
		return err
	}

	absRoot, err := filepath.Abs(c.Global.Root)
	if err != nil {
		return fmt.Errorf("无法解析图片根目录: %w", err)
	}
	c.Global.Root = absRoot
	return ensureRootDir(absRoot)
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("LogLevel", "info")
	v.SetDefault("LogFilePath", "")
	v.SetDefault("LogMaxSize", 100)
	v.SetDefault("LogMaxBackups", 10)
	v.SetDefault("LogCompress", true)
	v.SetDefault("Root", "./public")
	v.SetDefault("RecreateAll", false)
	v.SetDefault("NegativeCacheSize", 0)
	v.SetDefault("EncoderTimeout", "30s")
	v.SetDefault("WarmDebounce", "500ms")
}

func applyGlobalDefaults(g *GlobalConfig) {
	if strings.TrimSpace(g.LogLevel) == "" {
		g.LogLevel = "info"
	}
	if g.EncoderTimeout.DurationValue() == 0 {
		g.EncoderTimeout = Duration(30 * time.Second)
	}
	if g.WarmDebounce.DurationValue() == 0 {
		g.WarmDebounce = Duration(500 * time.Millisecond)
	}
}

func applyFormatDefaults(f *FormatConfig) {
	f.Name = normalizeName(f.Name)
	spec, ok := codec.ResolveFormat(f.Name)
	if !ok {
		return
	}
	if strings.TrimSpace(f.Binary) == "" {
		f.Binary = spec.DefaultBinary
	}
	if f.Args == nil && len(spec.DefaultArgs) > 0 {
		f.Args = append([]string(nil), spec.DefaultArgs...)
	}
	if f.Timeout.DurationValue() < 0 {
		f.Timeout = Duration(0)
	}
}

// defaultFormats 在未配置 [[Format]] 时启用全部已注册格式。
func defaultFormats() []FormatConfig {
	specs := codec.ListFormats()
	result := make([]FormatConfig, 0, len(specs))
	for _, spec := range specs {
		result = append(result, FormatConfig{Name: spec.Key})
	}
	return result
}

func durationDecodeHook() mapstructure.DecodeHookFunc {
	targetType := reflect.TypeOf(Duration(0))

	return func(from reflect.Type, to reflect.Type, data interface{}) (interface{}, error) {
		if to != targetType {
			return data, nil
		}

		switch v := data.(type) {
		case string:
			if v == "" {
				return Duration(0), nil
			}
			if parsed, err := time.ParseDuration(v); err == nil {
				return Duration(parsed), nil
			}
			if seconds, err := strconv.ParseFloat(v, 64); err == nil {
				return Duration(time.Duration(seconds * float64(time.Second))), nil
			}
			return nil, fmt.Errorf("无法解析 Duration 字段: %s", v)
		case int:
			return Duration(time.Duration(v) * time.Second), nil
		case int64:
			return Duration(time.Duration(v) * time.Second), nil
		case float64:
			return Duration(time.Duration(v * float64(time.Second))), nil
		case time.Duration:
			return Duration(v), nil
		case Duration:
			return v, nil
		default:
			return nil, fmt.Errorf("不支持的 Duration 类型: %T", v)
		}
	}
}
