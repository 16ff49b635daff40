package logging

import "github.com/sirupsen/logrus"

// BaseFields 构建 action + 配置路径等基础字段，便于不同入口复用。
func BaseFields(action, configPath string) logrus.Fields {
	return logrus.Fields{
		"action":     action,
		"configPath": configPath,
	}
}

// DeriveFields 提供源文件/目标格式/命中状态字段，供派生图日志复用。
func DeriveFields(source, format, outcome string, cacheHit bool) logrus.Fields {
	return logrus.Fields{
		"source":    source,
		"format":    format,
		"outcome":   outcome,
		"cache_hit": cacheHit,
	}
}
