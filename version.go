package anyimage

import "github.com/any-image/any-image/internal/version"

// Version 返回注入的版本 + 提交信息。
func Version() string {
	return version.Full()
}
