// Package filestore persists exemplar sets as one JSON file per
// specialization, mirroring how compiled sets are exported for
// deployment. Writes go through a temp file and rename so a crashed
// save never leaves a torn record.
package filestore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/linnemanlabs/acuity/internal/exemplar"
)

const (
	filePrefix = "exemplars_"
	fileSuffix = ".json"
)

// Store persists exemplar sets under a directory.
type Store struct {
	dir string
}

// New creates the directory if needed and returns a Store over it.
func New(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("create exemplar dir: %w", err)
	}
	return &Store{dir: dir}, nil
}

func (s *Store) path(specialization string) string {
	return filepath.Join(s.dir, filePrefix+specialization+fileSuffix)
}

// Load reads the persisted set for a specialization.
func (s *Store) Load(_ context.Context, specialization string) (*exemplar.Set, bool, error) {
	data, err := os.ReadFile(s.path(specialization))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("read exemplar set: %w", err)
	}
	var set exemplar.Set
	if err := json.Unmarshal(data, &set); err != nil {
		return nil, false, fmt.Errorf("parse exemplar set %s: %w", specialization, err)
	}
	return &set, true, nil
}

// Save writes the set atomically via temp file + rename.
func (s *Store) Save(_ context.Context, set *exemplar.Set) error {
	data, err := json.MarshalIndent(set, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal exemplar set: %w", err)
	}

	tmp, err := os.CreateTemp(s.dir, filePrefix+set.Specialization+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("write exemplar set: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmpName, s.path(set.Specialization)); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("publish exemplar set: %w", err)
	}
	return nil
}

// List returns the specializations with a persisted set, sorted.
func (s *Store) List(_ context.Context) ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("list exemplar dir: %w", err)
	}
	var out []string
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasPrefix(name, filePrefix) || !strings.HasSuffix(name, fileSuffix) {
			continue
		}
		out = append(out, strings.TrimSuffix(strings.TrimPrefix(name, filePrefix), fileSuffix))
	}
	sort.Strings(out)
	return out, nil
}
