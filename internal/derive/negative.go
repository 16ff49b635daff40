package derive

import (
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

// negativeKey 绑定源文件当前版本；源文件 mtime 或大小变化后自然失效。
type negativeKey struct {
	source  string
	format  string
	modTime int64
	size    int64
}

func newNegativeKey(source, format string, modTime time.Time, size int64) negativeKey {
	return negativeKey{source: source, format: format, modTime: modTime.UnixNano(), size: size}
}

// negativeCache 记住“本版本源图无法转换得更小”的结论，避免每次请求重复整轮质量搜索。
// nil 表示未启用。
type negativeCache struct {
	entries *lru.Cache[negativeKey, Outcome]
}

func newNegativeCache(size int) (*negativeCache, error) {
	if size <= 0 {
		return nil, nil
	}
	entries, err := lru.New[negativeKey, Outcome](size)
	if err != nil {
		return nil, err
	}
	return &negativeCache{entries: entries}, nil
}

func (c *negativeCache) lookup(key negativeKey) (Outcome, bool) {
	if c == nil {
		return "", false
	}
	return c.entries.Get(key)
}

func (c *negativeCache) remember(key negativeKey, outcome Outcome) {
	if c == nil || !outcome.negative() {
		return
	}
	c.entries.Add(key, outcome)
}

func (c *negativeCache) forget(key negativeKey) {
	if c == nil {
		return
	}
	c.entries.Remove(key)
}

func (c *negativeCache) len() int {
	if c == nil {
		return 0
	}
	return c.entries.Len()
}
