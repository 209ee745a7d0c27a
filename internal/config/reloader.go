package config

import (
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/sirupsen/logrus"
)

// ReloadCallback is invoked with the previous and the freshly loaded
// configuration after a reload passed the safety checks. Returning an error
// keeps the previous configuration active.
type ReloadCallback func(old, new *Config) error

// ConfigReloader re-reads the configuration file when it changes on disk or
// when the process receives SIGHUP. Only settings that can be applied to a
// running helper may change; key material, storage and oracle settings
// require a restart.
type ConfigReloader struct {
	path     string
	logger   *logrus.Logger
	watcher  *fsnotify.Watcher
	signals  chan os.Signal
	done     chan struct{}
	stopOnce sync.Once

	mu       sync.RWMutex
	current  *Config
	onReload ReloadCallback
}

// NewConfigReloader creates a reloader for path. An empty path disables
// file watching and leaves SIGHUP as the only trigger.
func NewConfigReloader(path string, cfg *Config, logger *logrus.Logger) (*ConfigReloader, error) {
	if cfg == nil {
		return nil, fmt.Errorf("initial configuration is required")
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}

	r := &ConfigReloader{
		path:    path,
		logger:  logger,
		signals: make(chan os.Signal, 1),
		done:    make(chan struct{}),
		current: cfg,
	}

	if path != "" {
		watcher, err := fsnotify.NewWatcher()
		if err != nil {
			return nil, fmt.Errorf("failed to create config watcher: %w", err)
		}
		// Watch the directory so atomic replace-by-rename is observed too.
		if err := watcher.Add(filepath.Dir(path)); err != nil {
			_ = watcher.Close()
			return nil, fmt.Errorf("failed to watch config directory: %w", err)
		}
		r.watcher = watcher
	}

	signal.Notify(r.signals, syscall.SIGHUP)
	return r, nil
}

// SetOnReloadCallback registers the function that applies a new configuration.
func (r *ConfigReloader) SetOnReloadCallback(cb ReloadCallback) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.onReload = cb
}

// GetCurrentConfig returns a copy of the active configuration.
func (r *ConfigReloader) GetCurrentConfig() *Config {
	r.mu.RLock()
	defer r.mu.RUnlock()
	cp := *r.current
	cp.Logging.RedactHeaders = append([]string(nil), r.current.Logging.RedactHeaders...)
	return &cp
}

// Start runs the reload loop until Stop is called.
func (r *ConfigReloader) Start() {
	var events <-chan fsnotify.Event
	var errs <-chan error
	if r.watcher != nil {
		events = r.watcher.Events
		errs = r.watcher.Errors
	}

	var debounce <-chan time.Time
	target := filepath.Clean(r.path)

	for {
		select {
		case <-r.done:
			return
		case <-r.signals:
			r.logger.Info("Received SIGHUP, reloading configuration")
			r.reload()
		case ev, ok := <-events:
			if !ok {
				events = nil
				continue
			}
			if filepath.Clean(ev.Name) != target {
				continue
			}
			if ev.Has(fsnotify.Write) || ev.Has(fsnotify.Create) || ev.Has(fsnotify.Rename) {
				debounce = time.After(50 * time.Millisecond)
			}
		case err, ok := <-errs:
			if !ok {
				errs = nil
				continue
			}
			r.logger.WithError(err).Warn("Config watcher error")
		case <-debounce:
			debounce = nil
			r.logger.WithField("path", r.path).Info("Configuration file changed, reloading")
			r.reload()
		}
	}
}

// Stop ends the reload loop and releases the watcher.
func (r *ConfigReloader) Stop() {
	r.stopOnce.Do(func() {
		signal.Stop(r.signals)
		close(r.done)
		if r.watcher != nil {
			_ = r.watcher.Close()
		}
	})
}

func (r *ConfigReloader) reload() {
	if r.path == "" {
		r.logger.Warn("No configuration file configured, nothing to reload")
		return
	}

	next, err := LoadConfig(r.path)
	if err != nil {
		r.logger.WithError(err).Error("Failed to reload configuration, keeping current settings")
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	old := r.current
	if err := r.validateReloadSafety(old, next); err != nil {
		r.logger.WithError(err).Error("Rejected configuration reload")
		return
	}
	if r.onReload != nil {
		if err := r.onReload(old, next); err != nil {
			r.logger.WithError(err).Error("Failed to apply reloaded configuration")
			return
		}
	}
	r.current = next
	r.logger.Info("Configuration reloaded")
}

// validateReloadSafety rejects changes that cannot be applied to a running
// process.
func (r *ConfigReloader) validateReloadSafety(old, new *Config) error {
	if old.Identity != new.Identity {
		if old.Identity.RootDataFolder != new.Identity.RootDataFolder {
			return fmt.Errorf("identity.root_data_folder cannot be changed during hot reload")
		}
		return fmt.Errorf("identity keys cannot be changed during hot reload")
	}
	if old.ObjectStorage.Type != new.ObjectStorage.Type {
		return fmt.Errorf("object_storage.type cannot be changed during hot reload")
	}
	if old.ObjectStorage != new.ObjectStorage {
		return fmt.Errorf("object_storage settings cannot be changed during hot reload")
	}
	if old.Oracle != new.Oracle {
		return fmt.Errorf("oracle settings cannot be changed during hot reload")
	}
	if old.TLS != new.TLS {
		return fmt.Errorf("tls settings cannot be changed during hot reload")
	}
	return nil
}
