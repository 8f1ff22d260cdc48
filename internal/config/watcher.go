package config

import (
	"context"
	"path/filepath"
	"sync"
	"time"

	"github.com/mariovalmir/chatwoot/internal/models"

	"github.com/fsnotify/fsnotify"
	"github.com/sirupsen/logrus"
)

// reloadDebounce collapses the burst of events editors emit for one save.
const reloadDebounce = 200 * time.Millisecond

// ConfigWatcher reloads the configuration when its file changes and tells
// registered callbacks. A file that fails to load keeps the previous
// configuration in place.
type ConfigWatcher struct {
	configPath string
	logger     *logrus.Logger
	mu         sync.RWMutex
	config     *models.Config
	callbacks  []func(*models.Config)
}

func NewConfigWatcher(configPath string, logger *logrus.Logger) *ConfigWatcher {
	return &ConfigWatcher{
		configPath: configPath,
		logger:     logger,
	}
}

// Load reads the file once. Start calls it when nothing is loaded yet.
func (cw *ConfigWatcher) Load() (*models.Config, error) {
	config, err := LoadConfig(cw.configPath)
	if err != nil {
		return nil, err
	}
	cw.mu.Lock()
	cw.config = config
	cw.mu.Unlock()
	return config, nil
}

// Start watches the file's directory until ctx is done. The directory is
// watched rather than the file so atomic rename-on-save is seen.
func (cw *ConfigWatcher) Start(ctx context.Context) error {
	if cw.GetConfig() == nil {
		if _, err := cw.Load(); err != nil {
			return err
		}
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	target := filepath.Clean(cw.configPath)
	if err := watcher.Add(filepath.Dir(target)); err != nil {
		return err
	}

	cw.logger.WithField("path", cw.configPath).Info("Configuration watcher started")

	var debounce <-chan time.Time
	for {
		select {
		case <-ctx.Done():
			cw.logger.Info("Configuration watcher stopping")
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != target {
				continue
			}
			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) || event.Has(fsnotify.Rename) {
				cw.logger.WithField("op", event.Op.String()).Debug("Configuration file changed")
				debounce = time.After(reloadDebounce)
			}

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			cw.logger.WithError(err).Error("Configuration watcher error")

		case <-debounce:
			debounce = nil
			cw.reloadConfig()
		}
	}
}

// GetConfig returns the current configuration (thread-safe)
func (cw *ConfigWatcher) GetConfig() *models.Config {
	cw.mu.RLock()
	defer cw.mu.RUnlock()
	return cw.config
}

// OnConfigChange registers a callback to be called when configuration changes
func (cw *ConfigWatcher) OnConfigChange(callback func(*models.Config)) {
	cw.mu.Lock()
	defer cw.mu.Unlock()
	cw.callbacks = append(cw.callbacks, callback)
}

func (cw *ConfigWatcher) reloadConfig() {
	newConfig, err := LoadConfig(cw.configPath)
	if err != nil {
		cw.logger.WithError(err).Error("Failed to reload configuration")
		return
	}

	cw.mu.Lock()
	oldConfig := cw.config
	cw.config = newConfig
	callbacks := make([]func(*models.Config), len(cw.callbacks))
	copy(callbacks, cw.callbacks)
	cw.mu.Unlock()

	cw.logger.Info("Configuration reloaded successfully")
	cw.logConfigChanges(oldConfig, newConfig)

	for _, callback := range callbacks {
		func(cb func(*models.Config)) {
			defer func() {
				if r := recover(); r != nil {
					cw.logger.WithField("panic", r).Error("Config change callback panicked")
				}
			}()
			cb(newConfig)
		}(callback)
	}
}

func (cw *ConfigWatcher) logConfigChanges(old, new *models.Config) {
	if old == nil {
		return
	}

	if len(old.Inboxes) != len(new.Inboxes) {
		cw.logger.WithFields(logrus.Fields{
			"old_count": len(old.Inboxes),
			"new_count": len(new.Inboxes),
		}).Info("Number of inboxes changed")
	}

	if old.LogLevel != new.LogLevel {
		cw.logger.WithFields(logrus.Fields{
			"old": old.LogLevel,
			"new": new.LogLevel,
		}).Info("Log level changed")
	}

	if old.DeletedShowOriginal != new.DeletedShowOriginal {
		cw.logger.WithField("new", new.DeletedShowOriginal).Info("Deleted message display changed")
	}
}
