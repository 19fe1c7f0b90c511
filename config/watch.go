package config

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// reloadDebounce 编辑器保存时常连续触发多次事件
const reloadDebounce = 200 * time.Millisecond

// Watch 监听配置文件，变更后重新加载并回调；无效配置只记日志，保留旧值。
// 监听目录而非文件本身，以兼容“写临时文件再改名”的保存方式。ctx 结束时退出。
func Watch(ctx context.Context, path string, log *zap.SugaredLogger, apply func(Config)) error {
	if path == "" {
		return nil
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("config watcher: %w", err)
	}
	if err := watcher.Add(filepath.Dir(path)); err != nil {
		watcher.Close()
		return fmt.Errorf("watch %s: %w", filepath.Dir(path), err)
	}
	target := filepath.Clean(path)

	go func() {
		defer watcher.Close()
		var pending <-chan time.Time
		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Clean(event.Name) != target {
					continue
				}
				if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
					continue
				}
				pending = time.After(reloadDebounce)
			case <-pending:
				pending = nil
				cfg, err := Load(path)
				if err != nil {
					log.Warnw("config reload rejected", "path", path, "err", err)
					continue
				}
				log.Infow("config reloaded", "path", path)
				apply(cfg)
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				log.Warnw("config watcher error", "err", err)
			}
		}
	}()
	return nil
}
