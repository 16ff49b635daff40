package anyimage

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/any-image/any-image/internal/cache"
	"github.com/any-image/any-image/internal/codec"
	"github.com/any-image/any-image/internal/config"
	"github.com/any-image/any-image/internal/derive"
	"github.com/any-image/any-image/internal/logging"
	"github.com/any-image/any-image/internal/metrics"
	"github.com/any-image/any-image/internal/version"
	"github.com/any-image/any-image/internal/warmer"
)

// Config 是引擎的静态配置，对应 TOML 配置文件。
type Config = config.Config

// FormatConfig 是单个目标格式的配置项。
type FormatConfig = config.FormatConfig

// Duration 兼容 "30s" 与纯秒数两种写法。
type Duration = config.Duration

// LoadConfig 读取 TOML 配置文件并完成默认值填充与校验。
func LoadConfig(path string) (*Config, error) {
	return config.Load(path)
}

// Engine 是多格式派生的入口，可被多个 goroutine 并发使用。
type Engine struct {
	cfg     *Config
	logger  *logrus.Logger
	store   cache.Store
	manager *derive.Manager
	formats []derive.Format

	mu     sync.Mutex
	warmer *warmer.Watcher
}

// Open 按“配置 → 日志 → 存储 → 派生管理器”的顺序构建引擎。
func Open(configPath string) (*Engine, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("加载配置失败: %w", err)
	}
	logger, err := logging.InitLogger(cfg.Global)
	if err != nil {
		return nil, fmt.Errorf("初始化日志失败: %w", err)
	}

	engine, err := New(cfg, logger)
	if err != nil {
		return nil, err
	}

	fields := logging.BaseFields("startup", configPath)
	fields["root"] = cfg.Global.Root
	fields["formats"] = engine.Formats()
	fields["version"] = version.Full()
	logger.WithFields(fields).Info("engine_ready")
	return engine, nil
}

// New 使用已构造的配置创建引擎；logger 为 nil 时丢弃日志。
func New(cfg *Config, logger *logrus.Logger, opts ...Option) (*Engine, error) {
	if cfg == nil {
		return nil, errors.New("配置为空")
	}
	if err := cfg.Normalize(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = logging.Discard()
	}

	var o engineOptions
	for _, opt := range opts {
		opt(&o)
	}

	store, err := cache.NewStore(cfg.Global.Root)
	if err != nil {
		return nil, fmt.Errorf("初始化存储失败: %w", err)
	}

	manager, err := derive.NewManager(store,
		derive.WithLogger(logger),
		derive.WithMetrics(metrics.New(o.registerer)),
		derive.WithNegativeCache(cfg.Global.NegativeCacheSize),
	)
	if err != nil {
		return nil, fmt.Errorf("初始化派生管理器失败: %w", err)
	}

	return &Engine{
		cfg:     cfg,
		logger:  logger,
		store:   store,
		manager: manager,
		formats: buildFormats(cfg, o.encoders),
	}, nil
}

// buildFormats 按注册表优先级（avif 在 webp 之前）列出配置中出现的格式。
func buildFormats(cfg *Config, overrides map[string]codec.Encoder) []derive.Format {
	specs := codec.ListFormats()
	formats := make([]derive.Format, 0, len(specs))
	for _, spec := range specs {
		fc, ok := cfg.Format(spec.Key)
		if !ok {
			continue
		}
		enc, ok := overrides[spec.Key]
		if !ok {
			enc = spec.NewEncoder(codec.EncoderOptions{
				Binary:  fc.Binary,
				Args:    fc.Args,
				Timeout: cfg.EffectiveTimeout(fc),
			})
		}
		formats = append(formats, derive.Format{
			Key:       spec.Key,
			Extension: spec.Extension,
			MIMEType:  spec.MIMEType,
			Disabled:  fc.Disabled,
			Encoder:   enc,
		})
	}
	return formats
}

// Produce 依次为每个格式解析派生图，返回所有可用结果。各格式互不影响，且不会返回错误。
func (e *Engine) Produce(ctx context.Context, sourcePath string, opts Options) Result {
	result := Result{Source: sourcePath}
	requestID := uuid.NewString()
	force := opts.ForceRecreate || e.cfg.Global.RecreateAll

	for _, format := range e.formats {
		res, ok := e.manager.Resolve(ctx, derive.Request{
			SourcePath:    sourcePath,
			Format:        format,
			Disable:       opts.Disable,
			ForceRecreate: force,
			RequestID:     requestID,
		})
		if !ok {
			continue
		}
		result.Derivatives = append(result.Derivatives, Derivative{
			Format:   format.Key,
			MIMEType: format.MIMEType,
			Path:     res.ShortPath,
		})
	}
	return result
}

// Purge 删除源图在所有格式下的派生图，通常在源图被删除后调用。
func (e *Engine) Purge(ctx context.Context, sourcePath string) error {
	var errs []error
	for _, format := range e.formats {
		if err := e.manager.Remove(ctx, sourcePath, format); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", format.Key, err))
		}
	}
	err := errors.Join(errs...)
	if err != nil {
		e.logger.WithError(err).WithField("source", sourcePath).Warn("purge_failed")
	}
	return err
}

// Formats 返回启用的格式，按优先级排序。
func (e *Engine) Formats() []string {
	keys := make([]string, 0, len(e.formats))
	for _, f := range e.formats {
		if f.Disabled {
			continue
		}
		keys = append(keys, f.Key)
	}
	return keys
}

// Root 返回解析根目录的绝对路径。
func (e *Engine) Root() string {
	return e.store.Root()
}

// Warm 启动对 Root 的文件监听：源图新增或修改后提前生成派生图，删除后清理派生图。
func (e *Engine) Warm(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.warmer != nil {
		return errors.New("预热监听已启动")
	}

	w, err := warmer.New(e.store.Root(), warmProducer{engine: e}, warmer.Options{
		Debounce: e.cfg.Global.WarmDebounce.DurationValue(),
		Logger:   e.logger,
	})
	if err != nil {
		return err
	}
	if err := w.Start(ctx); err != nil {
		_ = w.Stop()
		return err
	}
	e.warmer = w
	return nil
}

// Close 停止预热监听；未启动时无操作。
func (e *Engine) Close() error {
	e.mu.Lock()
	w := e.warmer
	e.warmer = nil
	e.mu.Unlock()
	if w == nil {
		return nil
	}
	return w.Stop()
}

// warmProducer 将监听事件转交给引擎。
type warmProducer struct {
	engine *Engine
}

func (p warmProducer) Refresh(ctx context.Context, shortPath string) {
	p.engine.Produce(ctx, shortPath, Options{})
}

func (p warmProducer) Purge(ctx context.Context, shortPath string) error {
	return p.engine.Purge(ctx, shortPath)
}
