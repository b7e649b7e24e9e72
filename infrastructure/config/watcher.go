package config

import (
	"fmt"
	"path/filepath"
	"reflect"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

const debounceDelay = 500 * time.Millisecond

// Watcher reloads the configuration when its YAML file changes and passes
// the new value to registered callbacks. Invalid reloads are logged and
// ignored.
type Watcher struct {
	path   string
	load   func() (*Config, error)
	logger *zap.Logger

	mu        sync.RWMutex
	config    *Config
	callbacks []func(*Config)

	watcher *fsnotify.Watcher
	stopCh  chan struct{}
	done    chan struct{}
	once    sync.Once
}

// NewWatcher watches initial.ConfigFile. The directory is watched rather than
// the file so that editors replacing the file by rename are picked up. load
// defaults to LoadConfig.
func NewWatcher(initial *Config, load func() (*Config, error), logger *zap.Logger) (*Watcher, error) {
	if initial.ConfigFile == "" {
		return nil, fmt.Errorf("no config file to watch")
	}
	if load == nil {
		load = LoadConfig
	}

	path, err := filepath.Abs(initial.ConfigFile)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve config path: %w", err)
	}

	fsWatcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create file watcher: %w", err)
	}
	if err := fsWatcher.Add(filepath.Dir(path)); err != nil {
		fsWatcher.Close()
		return nil, fmt.Errorf("failed to watch config directory: %w", err)
	}

	w := &Watcher{
		path:    path,
		load:    load,
		logger:  logger,
		config:  initial,
		watcher: fsWatcher,
		stopCh:  make(chan struct{}),
		done:    make(chan struct{}),
	}
	go w.watchLoop()

	logger.Info("Configuration hot reloading enabled", zap.String("file", path))
	return w, nil
}

// OnChange registers a callback to be called when configuration changes.
func (w *Watcher) OnChange(callback func(*Config)) {
	w.mu.Lock()
	w.callbacks = append(w.callbacks, callback)
	w.mu.Unlock()
}

// Current returns the most recently loaded configuration.
func (w *Watcher) Current() *Config {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.config
}

// Stop stops watching. It is safe to call more than once.
func (w *Watcher) Stop() {
	w.once.Do(func() {
		close(w.stopCh)
		<-w.done
	})
}

func (w *Watcher) watchLoop() {
	defer close(w.done)
	defer w.watcher.Close()

	var debounceTimer *time.Timer
	defer func() {
		if debounceTimer != nil {
			debounceTimer.Stop()
		}
	}()

	for {
		select {
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != w.path {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}

			w.logger.Debug("Configuration file changed",
				zap.String("file", event.Name),
				zap.String("operation", event.Op.String()),
			)
			if debounceTimer != nil {
				debounceTimer.Stop()
			}
			debounceTimer = time.AfterFunc(debounceDelay, w.reload)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Error("File watcher error", zap.Error(err))

		case <-w.stopCh:
			w.logger.Info("Stopping configuration watcher")
			return
		}
	}
}

func (w *Watcher) reload() {
	next, err := w.load()
	if err != nil {
		w.logger.Error("Invalid configuration after reload, keeping previous", zap.Error(err))
		return
	}

	w.mu.Lock()
	if reflect.DeepEqual(w.config, next) {
		w.mu.Unlock()
		w.logger.Debug("Configuration unchanged after reload")
		return
	}
	prev := w.config
	w.config = next
	callbacks := make([]func(*Config), len(w.callbacks))
	copy(callbacks, w.callbacks)
	w.mu.Unlock()

	for i, cb := range callbacks {
		func() {
			defer func() {
				if r := recover(); r != nil {
					w.logger.Error("Config callback panicked",
						zap.Int("callback_index", i),
						zap.Any("panic", r),
					)
				}
			}()
			cb(next)
		}()
	}

	if fixed := RestartRequired(prev, next); len(fixed) > 0 {
		w.logger.Warn("Changed settings take effect after restart", zap.Strings("settings", fixed))
	}
	w.logger.Info("Configuration reloaded",
		zap.Strings("applied", Reloadable(prev, next)),
		zap.Int("callbacks_notified", len(callbacks)),
	)
}

// Reloadable lists the settings that differ between prev and next and are
// applied to a running service. Session settings reach only sessions opened
// after the reload.
func Reloadable(prev, next *Config) []string {
	var changed []string
	add := func(name string, differs bool) {
		if differs {
			changed = append(changed, name)
		}
	}
	add("log_level", prev.LogLevel != next.LogLevel)
	add("autosave.delay", prev.Autosave.Delay != next.Autosave.Delay)
	add("history.limit", prev.History.Limit != next.History.Limit)
	add("session.idle_timeout", prev.Session.IdleTimeout != next.Session.IdleTimeout)
	add("graph.strict_validation", prev.Graph.StrictValidation != next.Graph.StrictValidation)
	return changed
}

// RestartRequired lists the settings that differ between prev and next but
// are only read at startup.
func RestartRequired(prev, next *Config) []string {
	var changed []string
	add := func(name string, differs bool) {
		if differs {
			changed = append(changed, name)
		}
	}
	add("server_address", prev.ServerAddress != next.ServerAddress)
	add("store", prev.Store != next.Store)
	add("supabase", prev.Supabase != next.Supabase)
	add("dynamodb", prev.DynamoDB != next.DynamoDB)
	add("events", prev.Events != next.Events)
	add("auth", prev.Auth != next.Auth)
	add("cors", !reflect.DeepEqual(prev.CORS, next.CORS))
	add("enable_metrics", prev.EnableMetrics != next.EnableMetrics)
	add("tracing", prev.Tracing != next.Tracing)
	return changed
}
