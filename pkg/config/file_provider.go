package config

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

const debounceDuration = 100 * time.Millisecond

// FileConfigProvider loads the configuration file and reloads it on change.
// A reload that fails to parse or validate is logged and the previous
// snapshot stays active.
type FileConfigProvider struct {
	path        string
	logger      *slog.Logger
	mu          sync.RWMutex
	snapshot    Snapshot
	subscribers []chan Snapshot
	watcher     *fsnotify.Watcher
	cancel      context.CancelFunc
	wg          sync.WaitGroup
	onReload    func(error)
}

// ProviderOption customises a FileConfigProvider.
type ProviderOption func(*FileConfigProvider)

// WithReloadHook registers fn to be called after every reload attempt that
// follows the initial load, with the load error or nil.
func WithReloadHook(fn func(error)) ProviderOption {
	return func(p *FileConfigProvider) {
		p.onReload = fn
	}
}

// NewFileConfigProvider loads path and starts watching it. The initial load
// must succeed.
func NewFileConfigProvider(path string, logger *slog.Logger, opts ...ProviderOption) (*FileConfigProvider, error) {
	if logger == nil {
		logger = slog.Default()
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve absolute path: %w", err)
	}

	p := &FileConfigProvider{
		path:   absPath,
		logger: logger.With("component", "config", "path", absPath),
	}
	for _, opt := range opts {
		opt(p)
	}

	if err := p.load(); err != nil {
		return nil, err
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create watcher: %w", err)
	}
	// Editors replace files by rename, so watch the directory.
	if err := watcher.Add(filepath.Dir(absPath)); err != nil {
		_ = watcher.Close()
		return nil, fmt.Errorf("failed to watch directory: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	p.watcher = watcher
	p.cancel = cancel

	p.wg.Add(1)
	go p.watchLoop(ctx)

	return p, nil
}

// CurrentSnapshot returns the active configuration.
func (p *FileConfigProvider) CurrentSnapshot() Snapshot {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.snapshot
}

// Subscribe returns a channel that receives every new snapshot. The current
// snapshot is delivered immediately.
func (p *FileConfigProvider) Subscribe() <-chan Snapshot {
	p.mu.Lock()
	defer p.mu.Unlock()
	ch := make(chan Snapshot, 1)
	p.subscribers = append(p.subscribers, ch)
	ch <- p.snapshot
	return ch
}

// Reload forces a reload from disk.
func (p *FileConfigProvider) Reload() error {
	return p.reload()
}

// Close stops the watcher and waits for the watch loop to exit.
func (p *FileConfigProvider) Close() error {
	p.cancel()
	err := p.watcher.Close()
	p.wg.Wait()
	return err
}

func (p *FileConfigProvider) watchLoop(ctx context.Context) {
	defer p.wg.Done()

	var debounceTimer *time.Timer
	defer func() {
		if debounceTimer != nil {
			debounceTimer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-p.watcher.Events:
			if !ok {
				return
			}

			if filepath.Clean(event.Name) != p.path {
				continue
			}

			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) || event.Has(fsnotify.Rename) || event.Has(fsnotify.Chmod) {
				if debounceTimer != nil {
					debounceTimer.Stop()
				}
				debounceTimer = time.AfterFunc(debounceDuration, func() {
					if ctx.Err() != nil {
						return
					}
					if err := p.reload(); err != nil {
						p.logger.Error("config reload failed, keeping previous routing table", "error", err)
					}
				})
			}
		case err, ok := <-p.watcher.Errors:
			if !ok {
				return
			}
			p.logger.Warn("config watcher error", "error", err)
		}
	}
}

func (p *FileConfigProvider) reload() error {
	err := p.load()
	if p.onReload != nil {
		p.onReload(err)
	}
	return err
}

func (p *FileConfigProvider) load() error {
	cfg, err := Load(p.path)
	if err != nil {
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	snapshot, err := NewSnapshot(cfg, p.snapshot.Generation+1)
	if err != nil {
		return fmt.Errorf("config file %s: %w", p.path, err)
	}
	p.snapshot = snapshot

	for _, ch := range p.subscribers {
		// Keep only the newest snapshot for slow consumers.
		select {
		case <-ch:
		default:
		}
		select {
		case ch <- snapshot:
		default:
		}
	}

	p.logger.Info("configuration loaded", "generation", snapshot.Generation)
	return nil
}
