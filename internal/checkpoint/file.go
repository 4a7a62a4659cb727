package checkpoint

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
)

// Store loads and saves checkpoint state.
type Store interface {
	Load() (*State, error)
	Save(*State) error
}

// FileStore keeps the state in one JSON file replaced atomically on every save.
type FileStore struct {
	path   string
	logger zerolog.Logger
	now    func() time.Time
}

var _ Store = (*FileStore)(nil)

// NewFileStore returns a store writing to path.
func NewFileStore(path string, logger zerolog.Logger) *FileStore {
	return &FileStore{
		path:   path,
		logger: logger.With().Str("component", "checkpoint").Logger(),
		now:    time.Now,
	}
}

// Path returns the checkpoint file location.
func (f *FileStore) Path() string { return f.path }

// Load reads the checkpoint. A missing, empty or unparseable file yields a fresh
// state; only an unreadable file is an error.
func (f *FileStore) Load() (*State, error) {
	data, err := os.ReadFile(f.path)
	if errors.Is(err, fs.ErrNotExist) {
		f.logger.Info().Str("path", f.path).Msg("no checkpoint, starting fresh")
		return NewState(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("read checkpoint %s: %w", f.path, err)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		f.logger.Warn().Str("path", f.path).Msg("empty checkpoint, starting fresh")
		return NewState(), nil
	}

	state := NewState()
	if err := json.Unmarshal(data, state); err != nil {
		f.logger.Warn().Err(err).Str("path", f.path).Msg("corrupt checkpoint, starting fresh")
		return NewState(), nil
	}
	f.logger.Info().
		Str("path", f.path).
		Str("run_id", state.RunID).
		Int("completed", len(state.completed)).
		Int("failed", len(state.failed)).
		Msg("checkpoint loaded")
	return state, nil
}

// Save writes state to <path>.part, syncs it and renames it over the checkpoint,
// so readers only ever see a complete file.
func (f *FileStore) Save(state *State) error {
	if state == nil {
		return errors.New("nil checkpoint state")
	}
	if dir := filepath.Dir(f.path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create checkpoint dir: %w", err)
		}
	}
	state.UpdatedAt = f.now().UTC()

	tmp := f.path + ".part"
	file, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("create checkpoint temp file: %w", err)
	}
	enc := json.NewEncoder(file)
	enc.SetIndent("", "  ")
	if err := enc.Encode(state); err != nil {
		_ = file.Close()
		_ = os.Remove(tmp)
		return fmt.Errorf("encode checkpoint: %w", err)
	}
	if err := file.Sync(); err != nil {
		_ = file.Close()
		_ = os.Remove(tmp)
		return fmt.Errorf("sync checkpoint: %w", err)
	}
	if err := file.Close(); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("close checkpoint: %w", err)
	}
	if err := os.Rename(tmp, f.path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("replace checkpoint: %w", err)
	}
	return nil
}

// Remove deletes the checkpoint file; a missing file is not an error.
func (f *FileStore) Remove() error {
	if err := os.Remove(f.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("remove checkpoint: %w", err)
	}
	return nil
}
