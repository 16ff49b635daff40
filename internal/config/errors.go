package config

import "fmt"

// FieldError 提供字段路径与错误原因，便于宿主环境向运维反馈。
type FieldError struct {
	Field  string
	Reason string
}

func (e FieldError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

// newFieldError 创建包含字段路径与原因的 error，便于定位。
func newFieldError(field, reason string) error {
	return FieldError{Field: field, Reason: reason}
}

// formatField 用于拼接格式级字段路径，方便输出 Format[xxx].Field 形式。
func formatField(name, field string) string {
	if name == "" {
		return fmt.Sprintf("Format[].%s", field)
	}
	return fmt.Sprintf("Format[%s].%s", name, field)
}
