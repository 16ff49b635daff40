// Package derive 实现派生图的“查缓存或转换”核心：给定源图与目标格式，
// 判断磁盘上的派生图是否仍然有效（mtime 完全相等且体积更小），否则以质量搜索重新生成。
// 所有失败都降级为“使用原图”，不会向调用方返回错误。
package derive

import (
	"bytes"
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"

	"github.com/any-image/any-image/internal/cache"
	"github.com/any-image/any-image/internal/codec"
	"github.com/any-image/any-image/internal/logging"
	"github.com/any-image/any-image/internal/metrics"
)

// 质量搜索参数：从 100 开始每次降 5，低于 70 停止，最多 7 次编码。
const (
	StartQuality = 100
	QualityStep  = 5
	QualityFloor = 70
	MaxAttempts  = (StartQuality-QualityFloor)/QualityStep + 1
)

// Format 是运行时的目标格式：注册表描述 + 配置开关 + 已构建的编码器。
type Format struct {
	Key       string
	Extension string
	MIMEType  string
	Disabled  bool
	Encoder   codec.Encoder
}

// Request 描述一次派生请求。
type Request struct {
	SourcePath    string
	Format        Format
	Disable       bool
	ForceRecreate bool
	RequestID     string
}

// Result 描述 Resolve 的结论；仅当 Outcome.Usable() 时 ShortPath 可被引用。
type Result struct {
	Format    string
	ShortPath string
	FilePath  string
	SizeBytes int64
	ModTime   time.Time
	Outcome   Outcome
	Attempts  int
	Quality   int
}

// Manager 是派生缓存管理器，可被多个 goroutine 共享。
type Manager struct {
	store    cache.Store
	logger   *logrus.Entry
	metrics  *metrics.Collector
	negative *negativeCache
	group    singleflight.Group
	decode   func(path string) (*codec.Bitmap, error)
}

// Option 配置 Manager。
type Option func(*Manager) error

// WithLogger 注入结构化日志。
func WithLogger(logger *logrus.Logger) Option {
	return func(m *Manager) error {
		m.logger = logging.Component(logger, "derive")
		return nil
	}
}

// WithMetrics 注入指标 collector。
func WithMetrics(c *metrics.Collector) Option {
	return func(m *Manager) error {
		m.metrics = c
		return nil
	}
}

// WithNegativeCache 启用容量为 size 的负结果缓存；size <= 0 时保持每次重新搜索。
func WithNegativeCache(size int) Option {
	return func(m *Manager) error {
		nc, err := newNegativeCache(size)
		if err != nil {
			return err
		}
		m.negative = nc
		return nil
	}
}

// NewManager 基于 store 构建管理器。
func NewManager(store cache.Store, opts ...Option) (*Manager, error) {
	if store == nil {
		return nil, errors.New("store required")
	}
	m := &Manager{
		store:  store,
		logger: logging.Component(nil, "derive"),
		decode: codec.DecodeFile,
	}
	for _, opt := range opts {
		if err := opt(m); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// Resolve 返回可用的派生图路径；第二个返回值为 false 时调用方应使用原图。
func (m *Manager) Resolve(ctx context.Context, req Request) (Result, bool) {
	started := time.Now()
	result := m.resolve(ctx, req)
	m.metrics.RecordResolve(req.Format.Key, string(result.Outcome))
	m.logResult(req, result, started)
	return result, result.Outcome.Usable()
}

// Remove 删除某个源图在指定格式下的派生图。
func (m *Manager) Remove(ctx context.Context, sourcePath string, format Format) error {
	return m.store.Remove(ctx, cache.DerivedPath(sourcePath, format.Extension))
}

func (m *Manager) resolve(ctx context.Context, req Request) Result {
	format := req.Format
	result := Result{Format: format.Key}

	if req.Disable || format.Disabled {
		result.Outcome = OutcomeDisabled
		return result
	}
	if format.Encoder == nil || !format.Encoder.Available() {
		result.Outcome = OutcomeUnavailable
		return result
	}

	source, err := m.store.Stat(ctx, req.SourcePath)
	if err != nil {
		if !errors.Is(err, cache.ErrNotFound) {
			m.logger.WithError(err).WithField("source", req.SourcePath).Warn("source_stat_failed")
		}
		result.Outcome = OutcomeMissingSource
		return result
	}
	if source.SizeBytes == 0 {
		result.Outcome = OutcomeEmptySource
		return result
	}
	if !codec.Supported(req.SourcePath) {
		result.Outcome = OutcomeUnsupported
		return result
	}

	derivedShort := cache.DerivedPath(req.SourcePath, format.Extension)
	derivedFull, err := m.store.FullPath(derivedShort)
	if err != nil {
		result.Outcome = OutcomeMissingSource
		return result
	}

	// 同一源图、同一派生文件的并发请求合并为一次查找/转换；同名不同扩展的源图
	// （photo.png 与 photo.jpg）各自按自身大小校验，强制重建与普通请求互不合并。
	// 共享的转换不随任何一个调用方取消，调用方取消时只放弃等待。
	key := req.SourcePath + "|" + derivedFull + "|" + strconv.FormatBool(req.ForceRecreate)
	ch := m.group.DoChan(key, func() (interface{}, error) {
		return m.lookupOrConvert(context.WithoutCancel(ctx), req, source, derivedShort), nil
	})
	select {
	case r := <-ch:
		return r.Val.(Result)
	case <-ctx.Done():
		result.Outcome = OutcomeCanceled
		return result
	}
}

func (m *Manager) lookupOrConvert(ctx context.Context, req Request, source *cache.Entry, derivedShort string) Result {
	format := req.Format
	negKey := newNegativeKey(req.SourcePath, format.Key, source.ModTime, source.SizeBytes)

	if !req.ForceRecreate {
		derived, err := m.store.Stat(ctx, derivedShort)
		switch {
		case err == nil:
			if derived.SizeBytes < source.SizeBytes && derived.ModTime.Equal(source.ModTime) {
				return Result{
					Format:    format.Key,
					ShortPath: derived.ShortPath,
					FilePath:  derived.FilePath,
					SizeBytes: derived.SizeBytes,
					ModTime:   derived.ModTime,
					Outcome:   OutcomeHit,
				}
			}
			// 体积不小于源图或 mtime 不一致：视为不存在，进入重新生成。
		case errors.Is(err, cache.ErrNotFound):
		default:
			m.logger.WithError(err).WithField("derived", derivedShort).Warn("derived_stat_failed")
		}

		if _, known := m.negative.lookup(negKey); known {
			return Result{Format: format.Key, Outcome: OutcomeKnownBad}
		}
	}

	result := m.regenerate(ctx, req, source, derivedShort)
	if result.Outcome.Usable() {
		m.negative.forget(negKey)
	} else {
		m.negative.remember(negKey, result.Outcome)
	}
	return result
}

// regenerate 解码一次源图，执行质量搜索，只把被接受的结果写入磁盘。
func (m *Manager) regenerate(ctx context.Context, req Request, source *cache.Entry, derivedShort string) Result {
	format := req.Format
	result := Result{Format: format.Key}

	bm, err := m.decode(source.FilePath)
	if err != nil {
		if errors.Is(err, codec.ErrUnsupportedSource) {
			result.Outcome = OutcomeUnsupported
			return result
		}
		m.logger.WithError(err).WithField("source", req.SourcePath).Warn("source_decode_failed")
		m.discardStale(ctx, derivedShort, source)
		result.Outcome = OutcomeFailed
		return result
	}

	data, attempts, quality, err := m.search(ctx, format, bm, source.SizeBytes)
	result.Attempts = attempts
	result.Quality = quality
	if err != nil {
		m.logger.WithError(err).WithFields(logrus.Fields{
			"source":   req.SourcePath,
			"format":   format.Key,
			"quality":  quality,
			"attempts": attempts,
		}).Warn("encode_failed")
		m.discardStale(ctx, derivedShort, source)
		result.Outcome = OutcomeFailed
		return result
	}
	if data == nil {
		m.discardStale(ctx, derivedShort, source)
		result.Outcome = OutcomeOversized
		return result
	}

	entry, err := m.store.Put(ctx, derivedShort, bytes.NewReader(data), cache.PutOptions{ModTime: source.ModTime})
	if err != nil {
		m.logger.WithError(err).WithField("derived", derivedShort).Warn("derived_write_failed")
		m.discardStale(ctx, derivedShort, source)
		result.Outcome = OutcomeFailed
		return result
	}
	if entry.SizeBytes >= source.SizeBytes {
		result.Outcome = OutcomeOversized
		return result
	}

	m.metrics.RecordSaved(format.Key, source.SizeBytes, entry.SizeBytes)
	result.ShortPath = entry.ShortPath
	result.FilePath = entry.FilePath
	result.SizeBytes = entry.SizeBytes
	result.ModTime = entry.ModTime
	result.Outcome = OutcomeConverted
	return result
}

// search 从 StartQuality 起逐级降低质量，返回首个小于 limit 的编码结果；
// 到达下限仍未变小时 data 为 nil。编码失败立即中止。
func (m *Manager) search(ctx context.Context, format Format, bm *codec.Bitmap, limit int64) (data []byte, attempts, quality int, err error) {
	for quality = StartQuality; quality >= QualityFloor; quality -= QualityStep {
		started := time.Now()
		data, err = format.Encoder.Encode(ctx, bm, quality)
		attempts++
		m.metrics.RecordEncode(format.Key, time.Since(started).Seconds())
		if err != nil {
			return nil, attempts, quality, err
		}
		if len(data) == 0 {
			return nil, attempts, quality, codec.ErrEmptyOutput
		}
		if int64(len(data)) < limit {
			return data, attempts, quality, nil
		}
	}
	return nil, attempts, QualityFloor, nil
}

// discardStale 删除与当前源图不匹配的派生图，保证磁盘上不会残留不可用文件；
// 仍然有效的派生图（如强制重建时遇到临时错误）保持不动。
func (m *Manager) discardStale(ctx context.Context, derivedShort string, source *cache.Entry) {
	derived, err := m.store.Stat(ctx, derivedShort)
	if err != nil {
		return
	}
	if derived.SizeBytes < source.SizeBytes && derived.ModTime.Equal(source.ModTime) {
		return
	}
	if err := m.store.Remove(ctx, derivedShort); err != nil {
		m.logger.WithError(err).WithField("derived", derivedShort).Warn("derived_remove_failed")
	}
}

func (m *Manager) logResult(req Request, result Result, started time.Time) {
	fields := logging.DeriveFields(req.SourcePath, req.Format.Key, string(result.Outcome), result.Outcome == OutcomeHit)
	fields["elapsed_ms"] = time.Since(started).Milliseconds()
	if req.RequestID != "" {
		fields["request_id"] = req.RequestID
	}
	if result.Attempts > 0 {
		fields["attempts"] = result.Attempts
		fields["quality"] = result.Quality
	}
	if result.ShortPath != "" {
		fields["derived"] = result.ShortPath
		fields["size_bytes"] = result.SizeBytes
	}
	if req.ForceRecreate {
		fields["force"] = true
	}

	entry := m.logger.WithFields(fields)
	switch result.Outcome {
	case OutcomeConverted:
		entry.Info("derive_converted")
	case OutcomeFailed:
		entry.Warn("derive_failed")
	case OutcomeOversized:
		entry.Info("derive_oversized")
	default:
		entry.Debug("derive_" + string(result.Outcome))
	}
}
