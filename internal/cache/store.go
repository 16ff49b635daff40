package cache

import (
	"context"
	"errors"
	"io"
	"path"
	"strings"
	"time"
)

// Store 负责管理派生图的磁盘读写。磁盘布局遵循：
//
//	<Root>/<dir>/<stem>.<source-ext>    # 源图（只读）
//	<Root>/<dir>/<stem>.<format-ext>    # 派生图
//
// 条目仅由文件本身组成，ModTime/Size 由文件系统提供。
type Store interface {
	// Stat 返回 Root 下相对路径的文件信息。不存在或为目录时返回 ErrNotFound。
	Stat(ctx context.Context, shortPath string) (*Entry, error)

	// Put 写入派生图并产出新的 Entry。实现需通过临时文件 + rename 保证写入原子性，
	// 并在失败时清理临时文件；opts.ModTime 非零时固定文件时间戳。
	Put(ctx context.Context, shortPath string, body io.Reader, opts PutOptions) (*Entry, error)

	// Remove 删除派生图，文件不存在视为成功。
	Remove(ctx context.Context, shortPath string) error

	// FullPath 将相对路径解析为 Root 下的绝对路径，越界时返回 ErrOutsideRoot。
	FullPath(shortPath string) (string, error)

	// Root 返回解析根目录的绝对路径。
	Root() string
}

// PutOptions 控制写入过程中的可选属性。
type PutOptions struct {
	ModTime time.Time
}

// Entry 描述一个磁盘文件：调用方使用的短路径、绝对路径及文件信息。
type Entry struct {
	ShortPath string    `json:"short_path"`
	FilePath  string    `json:"file_path"`
	SizeBytes int64     `json:"size_bytes"`
	ModTime   time.Time `json:"mod_time"`
}

var (
	// ErrNotFound 表示文件不存在。
	ErrNotFound = errors.New("cache entry not found")
	// ErrOutsideRoot 表示路径越过了解析根目录。
	ErrOutsideRoot = errors.New("path escapes resolution root")
)

// DerivedPath 保持目录与文件名主干不变，仅替换扩展名。短路径按斜杠风格处理，保留调用方写法。
func DerivedPath(shortPath, ext string) string {
	ext = strings.TrimPrefix(ext, ".")
	base := strings.TrimSuffix(shortPath, path.Ext(shortPath))
	return base + "." + ext
}
