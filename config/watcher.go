package config

import (
	"context"
	"encoding/json"
	"os"
	"sync"
	"time"

	"github.com/davecgh/go-spew/spew"
	"github.com/fsnotify/fsnotify"
	log "github.com/sirupsen/logrus"
)

var (
	gLock   sync.RWMutex
	gConfig *Config
)

func configFromFile(path string) (*Config, error) {
	config := Default()
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	p := json.NewDecoder(f)
	if err := p.Decode(config); err != nil {
		return nil, err
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	log.Debugf("Loaded configuration: %v", spew.Sdump(config))
	return config, nil
}

func Get() *Config {
	gLock.RLock()
	defer gLock.RUnlock()
	return gConfig
}

func waitForChange(ctx context.Context, path string) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()
	if err := watcher.Add(path); err != nil {
		return err
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-watcher.Events:
	}
	// Editors often replace rather than rewrite; give the new file a moment.
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(time.Second / 10):
	}
	return ctx.Err()
}

// Load reads the configuration file and watches it for changes until ctx is
// canceled. onReload, if set, runs with each successfully reloaded snapshot.
// Core detection thresholds are fixed at startup; reloads only affect the
// settings the callback chooses to apply.
func Load(ctx context.Context, path string, onReload func(*Config)) error {
	config, err := configFromFile(path)
	if err != nil {
		return err
	}
	gConfig = config
	go func() {
		for ctx.Err() == nil {
			if err := waitForChange(ctx, path); err != nil {
				if ctx.Err() != nil {
					return
				}
				log.Errorf("Error waiting for config file change: %v", err)
				continue
			}

			config, err := configFromFile(path)
			if err != nil {
				log.Errorf("Failed to load new config: %v", err)
				continue
			}
			gLock.Lock()
			gConfig = config
			gLock.Unlock()
			log.Infof("Configuration reloaded from %v", path)
			if onReload != nil {
				onReload(config)
			}
		}
	}()
	return nil
}
