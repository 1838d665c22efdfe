// Package watcher imports memory batches dropped into a watched
// directory as JSON files.
package watcher

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
	json "github.com/goccy/go-json"
	"github.com/rs/zerolog"

	"github.com/memtide/memtide/pkg/models"
)

// importedSuffix marks files already loaded so a rename doesn't retrigger
// the watcher.
const importedSuffix = ".imported"

// MemorySink receives imported memories.
type MemorySink interface {
	InsertMemories(ctx context.Context, memories []models.Memory) (int, error)
}

// Watcher loads *.json memory files from a directory into the store, both
// at startup and whenever a new file appears.
type Watcher struct {
	dir    string
	sink   MemorySink
	fsw    *fsnotify.Watcher
	logger zerolog.Logger
}

// New creates a watcher on dir. The directory must exist.
func New(dir string, sink MemorySink, logger zerolog.Logger) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create watcher: %w", err)
	}
	if err := fsw.Add(dir); err != nil {
		_ = fsw.Close()
		return nil, fmt.Errorf("watch %s: %w", dir, err)
	}

	return &Watcher{
		dir:    dir,
		sink:   sink,
		fsw:    fsw,
		logger: logger.With().Str("component", "import-watcher").Logger(),
	}, nil
}

// Run imports files already present, then processes filesystem events
// until the context is cancelled or the watcher is closed.
func (w *Watcher) Run(ctx context.Context) error {
	if err := w.ImportExisting(ctx); err != nil {
		w.logger.Warn().Err(err).Msg("Initial import scan failed")
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-w.fsw.Events:
			if !ok {
				return nil
			}
			if !ev.Op.Has(fsnotify.Create) && !ev.Op.Has(fsnotify.Write) {
				continue
			}
			if filepath.Ext(ev.Name) != ".json" {
				continue
			}
			n, err := w.ImportFile(ctx, ev.Name)
			if err != nil {
				w.logger.Error().Err(err).Str("file", ev.Name).Msg("Import failed")
				continue
			}
			w.logger.Info().Str("file", ev.Name).Int("imported", n).Msg("Memory file imported")
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return nil
			}
			w.logger.Error().Err(err).Msg("Watcher error")
		}
	}
}

// ImportExisting imports every *.json file already in the directory.
func (w *Watcher) ImportExisting(ctx context.Context) error {
	paths, err := filepath.Glob(filepath.Join(w.dir, "*.json"))
	if err != nil {
		return err
	}

	for _, path := range paths {
		n, err := w.ImportFile(ctx, path)
		if err != nil {
			w.logger.Error().Err(err).Str("file", path).Msg("Import failed")
			continue
		}
		w.logger.Info().Str("file", path).Int("imported", n).Msg("Memory file imported")
	}
	return nil
}

// ImportFile loads one JSON file (a single memory object or an array),
// stores its memories, and renames the file so it is not re-imported.
func (w *Watcher) ImportFile(ctx context.Context, path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, fmt.Errorf("read %s: %w", path, err)
	}

	memories, err := decodeMemories(data)
	if err != nil {
		return 0, fmt.Errorf("decode %s: %w", path, err)
	}
	if len(memories) == 0 {
		return 0, nil
	}

	n, err := w.sink.InsertMemories(ctx, memories)
	if err != nil {
		return n, fmt.Errorf("store memories from %s: %w", path, err)
	}

	if err := os.Rename(path, path+importedSuffix); err != nil {
		w.logger.Warn().Err(err).Str("file", path).Msg("Failed to rename imported file")
	}
	return n, nil
}

// Close stops the underlying filesystem watcher.
func (w *Watcher) Close() error {
	return w.fsw.Close()
}

func decodeMemories(data []byte) ([]models.Memory, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) > 0 && trimmed[0] == '[' {
		var memories []models.Memory
		if err := json.Unmarshal(trimmed, &memories); err != nil {
			return nil, err
		}
		return memories, nil
	}

	var m models.Memory
	if err := json.Unmarshal(trimmed, &m); err != nil {
		return nil, err
	}
	return []models.Memory{m}, nil
}
