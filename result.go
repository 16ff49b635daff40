package anyimage

// Options 是单次 Produce 调用的开关。
type Options struct {
	// Disable 跳过全部派生，仅返回源图。
	Disable bool
	// ForceRecreate 忽略已有派生图，重新执行质量搜索。
	ForceRecreate bool
}

// Derivative 是一个可用的派生图。
type Derivative struct {
	Format   string `json:"format"`
	MIMEType string `json:"mime_type"`
	Path     string `json:"path"`
}

// Result 汇总一次 Produce 的结果，Derivatives 按格式优先级排序（最现代的在前）。
type Result struct {
	Source      string       `json:"source"`
	Derivatives []Derivative `json:"derivatives,omitempty"`
}

// Paths 返回 format → 派生图路径。
func (r Result) Paths() map[string]string {
	paths := make(map[string]string, len(r.Derivatives))
	for _, d := range r.Derivatives {
		paths[d.Format] = d.Path
	}
	return paths
}

// Lookup 返回指定格式的派生图路径。
func (r Result) Lookup(format string) (string, bool) {
	for _, d := range r.Derivatives {
		if d.Format == format {
			return d.Path, true
		}
	}
	return "", false
}
