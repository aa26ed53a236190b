// Package store persists the published result set as a JSON file.
package store

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"

	"stockrecs/internal/stock"
)

// ErrWrite wraps every failure to persist the result set.
var ErrWrite = errors.New("failed to write result store")

// FileStore reads and writes the result set at Path.
type FileStore struct {
	Path string

	// Pretty indents the JSON output.
	Pretty bool

	Log zerolog.Logger
}

// New creates a FileStore.
func New(path string, pretty bool, log zerolog.Logger) *FileStore {
	return &FileStore{
		Path:   path,
		Pretty: pretty,
		Log:    log.With().Str("component", "store").Logger(),
	}
}

// Load returns the persisted set. A missing or malformed file yields an
// empty set; it is logged and never returned as an error.
func (s *FileStore) Load() *stock.ResultSet {
	set, err := read(s.Path)
	switch {
	case err == nil:
		return set
	case errors.Is(err, fs.ErrNotExist):
		s.Log.Info().Str("path", s.Path).Msg("Result file not created yet")
	default:
		s.Log.Warn().Err(err).Str("path", s.Path).Msg("Result file unreadable, starting empty")
	}
	return stock.NewResultSet()
}

// Save overwrites the file with set. The data goes to a temporary file in
// the same directory first and is renamed over the target.
func (s *FileStore) Save(set *stock.ResultSet) error {
	data, err := encode(set, s.Pretty)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrWrite, err)
	}

	dir := filepath.Dir(s.Path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("%w: %v", ErrWrite, err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(s.Path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("%w: %v", ErrWrite, err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("%w: %v", ErrWrite, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("%w: %v", ErrWrite, err)
	}
	if err := os.Chmod(tmp.Name(), 0o644); err != nil {
		return fmt.Errorf("%w: %v", ErrWrite, err)
	}
	if err := os.Rename(tmp.Name(), s.Path); err != nil {
		return fmt.Errorf("%w: %v", ErrWrite, err)
	}

	s.Log.Info().Str("path", s.Path).Int("records", set.Len()).Msg("Results saved")
	return nil
}

func read(path string) (*stock.ResultSet, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	set := stock.NewResultSet()
	if err := json.Unmarshal(data, set); err != nil {
		return nil, err
	}
	return set, nil
}

// encode writes UTF-8 JSON without escaping non-ASCII or HTML characters.
func encode(set *stock.ResultSet, pretty bool) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if pretty {
		enc.SetIndent("", "    ")
	}
	if err := enc.Encode(set.Records()); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
