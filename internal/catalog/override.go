package catalog

import (
	"fmt"
	"os"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"
)

// overrideFile is the on-disk shape of a catalog override file.
type overrideFile struct {
	Models []ModelDescriptor `yaml:"models"`
}

// LoadOverrideFile parses a models.yaml override file into descriptors.
func LoadOverrideFile(path string) ([]ModelDescriptor, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read override file: %w", err)
	}

	var f overrideFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse override file %s: %w", path, err)
	}
	for _, m := range f.Models {
		if err := m.Validate(); err != nil {
			return nil, fmt.Errorf("override file %s: %w", path, err)
		}
	}
	return f.Models, nil
}

// Watch reloads the override file into the catalog's fallback table whenever
// it changes on disk. Blocks until ctx-style cancellation via stop channel.
func Watch(stop <-chan struct{}, path string, c *Catalog) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(path); err != nil {
		return fmt.Errorf("watch %s: %w", path, err)
	}

	for {
		select {
		case <-stop:
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			models, err := LoadOverrideFile(path)
			if err != nil {
				log.Warn().Err(err).Str("path", path).Msg("catalog: override reload failed, keeping previous table")
				continue
			}
			c.SetFallback(models)
			log.Info().Int("models", len(models)).Str("path", path).Msg("catalog: override file reloaded")
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			log.Warn().Err(err).Msg("catalog: watcher error")
		}
	}
}
