// Package warmer 监听解析根目录的源图变化，提前生成派生图，并在源图删除时清理派生图。
package warmer

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/sirupsen/logrus"

	"github.com/any-image/any-image/internal/codec"
	"github.com/any-image/any-image/internal/logging"
)

const defaultDebounce = 500 * time.Millisecond

// Producer 接收去抖后的源图事件，路径均为相对 Root 的斜杠风格短路径。
type Producer interface {
	Refresh(ctx context.Context, shortPath string)
	Purge(ctx context.Context, shortPath string) error
}

// Options 控制 Watcher 的行为。
type Options struct {
	Debounce time.Duration
	Logger   *logrus.Logger
}

type action int

const (
	actionRefresh action = iota
	actionPurge
)

func (a action) String() string {
	if a == actionPurge {
		return "purge"
	}
	return "refresh"
}

type pending struct {
	timer  *time.Timer
	action action
}

// Watcher 递归监听 Root 目录。
type Watcher struct {
	root     string
	producer Producer
	debounce time.Duration
	logger   *logrus.Entry

	fsw    *fsnotify.Watcher
	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}

	mu       sync.Mutex
	timers   map[string]*pending
	inflight sync.WaitGroup

	startOnce sync.Once
	stopOnce  sync.Once
}

// New 创建 Watcher，调用 Start 后才开始监听。
func New(root string, producer Producer, opts Options) (*Watcher, error) {
	if producer == nil {
		return nil, errors.New("producer required")
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve root: %w", err)
	}
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create fsnotify watcher: %w", err)
	}
	debounce := opts.Debounce
	if debounce <= 0 {
		debounce = defaultDebounce
	}
	return &Watcher{
		root:     abs,
		producer: producer,
		debounce: debounce,
		logger:   logging.Component(opts.Logger, "warmer"),
		fsw:      fsw,
		done:     make(chan struct{}),
		timers:   make(map[string]*pending),
	}, nil
}

// Start 注册 Root 及其全部子目录并启动事件循环。ctx 取消等同于 Stop。
func (w *Watcher) Start(ctx context.Context) error {
	var err error
	started := false
	w.startOnce.Do(func() {
		w.ctx, w.cancel = context.WithCancel(ctx)
		if err = w.addTree(w.root, false); err != nil {
			w.cancel()
			// 事件循环未启动，直接关闭 done，Stop 不再等待。
			close(w.done)
			return
		}
		started = true
		go w.loop()
		w.logger.WithField("root", w.root).Info("warmer_started")
	})
	if err != nil {
		return err
	}
	if !started {
		return errors.New("watcher already started")
	}
	return nil
}

// Stop 停止监听，丢弃尚未触发的事件，并等待正在执行的回调结束。
func (w *Watcher) Stop() error {
	var err error
	w.stopOnce.Do(func() {
		if w.cancel != nil {
			w.cancel()
		}
		err = w.fsw.Close()
		if w.ctx != nil {
			<-w.done
		}

		w.mu.Lock()
		for key, p := range w.timers {
			if p.timer.Stop() {
				w.inflight.Done()
			}
			delete(w.timers, key)
		}
		w.mu.Unlock()
		w.inflight.Wait()
	})
	return err
}

func (w *Watcher) loop() {
	defer close(w.done)
	for {
		select {
		case <-w.ctx.Done():
			return
		case event, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			w.handle(event)
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.logger.WithError(err).Warn("warmer_watch_error")
		}
	}
}

func (w *Watcher) handle(event fsnotify.Event) {
	if hidden(event.Name) {
		return
	}

	switch {
	case event.Op&(fsnotify.Remove|fsnotify.Rename) != 0:
		if codec.Supported(event.Name) {
			w.schedule(event.Name, actionPurge)
		}
	case event.Op&fsnotify.Create != 0:
		info, err := os.Stat(event.Name)
		if err != nil {
			return
		}
		if info.IsDir() {
			if err := w.addTree(event.Name, true); err != nil {
				w.logger.WithError(err).WithField("dir", event.Name).Warn("warmer_watch_dir_failed")
			}
			return
		}
		if codec.Supported(event.Name) {
			w.schedule(event.Name, actionRefresh)
		}
	case event.Op&fsnotify.Write != 0:
		if codec.Supported(event.Name) {
			w.schedule(event.Name, actionRefresh)
		}
	}
}

// addTree 注册 dir 下的全部目录；refresh 为 true 时为已存在的源图安排预热，
// 用于覆盖目录创建与监听注册之间写入的文件。
func (w *Watcher) addTree(dir string, refresh bool) error {
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if path != dir && hidden(path) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() {
			if err := w.fsw.Add(path); err != nil {
				return fmt.Errorf("failed to watch folder %s: %w", path, err)
			}
			return nil
		}
		if refresh && codec.Supported(path) {
			w.schedule(path, actionRefresh)
		}
		return nil
	})
}

// schedule 按路径去抖：窗口内的重复事件只保留最后一次动作。
func (w *Watcher) schedule(name string, act action) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if p, ok := w.timers[name]; ok && p.timer.Stop() {
		p.action = act
		p.timer.Reset(w.debounce)
		return
	}

	p := &pending{action: act}
	w.inflight.Add(1)
	p.timer = time.AfterFunc(w.debounce, func() { w.fire(name, p) })
	w.timers[name] = p
}

func (w *Watcher) fire(name string, p *pending) {
	defer w.inflight.Done()

	w.mu.Lock()
	if w.timers[name] == p {
		delete(w.timers, name)
	}
	act := p.action
	w.mu.Unlock()

	if w.ctx.Err() != nil {
		return
	}
	short, err := w.shortPath(name)
	if err != nil {
		return
	}

	entry := w.logger.WithFields(logrus.Fields{"source": short, "action": act.String()})
	switch act {
	case actionPurge:
		// rename 事件同样会触发；文件仍存在时说明只是被覆盖，应转为预热。
		if _, err := os.Stat(name); err == nil {
			w.producer.Refresh(w.ctx, short)
			entry.Debug("warmer_refresh")
			return
		}
		if err := w.producer.Purge(w.ctx, short); err != nil {
			entry.WithError(err).Warn("warmer_purge_failed")
			return
		}
		entry.Debug("warmer_purge")
	default:
		w.producer.Refresh(w.ctx, short)
		entry.Debug("warmer_refresh")
	}
}

func (w *Watcher) shortPath(name string) (string, error) {
	rel, err := filepath.Rel(w.root, name)
	if err != nil {
		return "", err
	}
	if rel == "." || strings.HasPrefix(rel, "..") {
		return "", fmt.Errorf("path %s outside root", name)
	}
	return filepath.ToSlash(rel), nil
}

// hidden 跳过点文件，包括存储层写入时使用的临时文件。
func hidden(path string) bool {
	base := filepath.Base(path)
	return base != "" && base[0] == '.'
}
