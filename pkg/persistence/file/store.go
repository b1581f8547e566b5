package file

import (
	"encoding/json"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
)

// store owns the directory tree. Writers are serialized by mu; a transaction holds
// the write lock for its whole lifetime.
type store struct {
	root string
	mu   sync.RWMutex
}

// view is the storage surface the repositories work against: the live directory
// tree or a transaction's staged overlay on top of it.
type view interface {
	read(dir, id string) ([]byte, error)
	write(dir, id string, data []byte) error
	remove(dir, id string) error
	list(dir string) ([]string, error)
}

func fileName(id string) string {
	return url.PathEscape(id) + ".json"
}

// diskView reads and writes the directory tree directly. When locked is true the
// caller already holds the store's write lock.
type diskView struct {
	s      *store
	locked bool
}

func (d diskView) read(dir, id string) ([]byte, error) {
	if !d.locked {
		d.s.mu.RLock()
		defer d.s.mu.RUnlock()
	}

	body, err := os.ReadFile(filepath.Join(d.s.root, dir, fileName(id)))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}

		return nil, fmt.Errorf("failed to read %s/%s: %w", dir, id, err)
	}

	return body, nil
}

func (d diskView) write(dir, id string, data []byte) error {
	if !d.locked {
		d.s.mu.Lock()
		defer d.s.mu.Unlock()
	}

	err := os.MkdirAll(filepath.Join(d.s.root, dir), 0750)
	if err != nil {
		return fmt.Errorf("failed to create %s directory: %w", dir, err)
	}

	target := filepath.Join(d.s.root, dir, fileName(id))
	tmp := target + ".tmp"

	err = os.WriteFile(tmp, data, 0600)
	if err != nil {
		return fmt.Errorf("failed to write %s/%s: %w", dir, id, err)
	}

	err = os.Rename(tmp, target)
	if err != nil {
		return fmt.Errorf("failed to replace %s/%s: %w", dir, id, err)
	}

	return nil
}

func (d diskView) remove(dir, id string) error {
	if !d.locked {
		d.s.mu.Lock()
		defer d.s.mu.Unlock()
	}

	err := os.Remove(filepath.Join(d.s.root, dir, fileName(id)))
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove %s/%s: %w", dir, id, err)
	}

	return nil
}

func (d diskView) list(dir string) ([]string, error) {
	if !d.locked {
		d.s.mu.RLock()
		defer d.s.mu.RUnlock()
	}

	files, err := fs.Glob(os.DirFS(filepath.Join(d.s.root, dir)), "*.json")
	if err != nil {
		return nil, fmt.Errorf("failed to list %s files: %w", dir, err)
	}

	ids := make([]string, 0, len(files))

	for _, file := range files {
		id, err := url.PathUnescape(strings.TrimSuffix(file, ".json"))
		if err != nil {
			continue
		}

		ids = append(ids, id)
	}

	slices.Sort(ids)

	return ids, nil
}

type stagedKey struct {
	dir, id string
}

// txView stages writes in memory until commit. A nil entry marks a removal.
type txView struct {
	disk   diskView
	staged map[stagedKey][]byte
	order  []stagedKey
}

func newTxView(s *store) *txView {
	return &txView{
		disk:   diskView{s: s, locked: true},
		staged: make(map[stagedKey][]byte),
	}
}

func (t *txView) read(dir, id string) ([]byte, error) {
	if data, ok := t.staged[stagedKey{dir, id}]; ok {
		return data, nil
	}

	return t.disk.read(dir, id)
}

func (t *txView) stage(key stagedKey, data []byte) {
	if _, ok := t.staged[key]; !ok {
		t.order = append(t.order, key)
	}

	t.staged[key] = data
}

func (t *txView) write(dir, id string, data []byte) error {
	t.stage(stagedKey{dir, id}, data)

	return nil
}

func (t *txView) remove(dir, id string) error {
	t.stage(stagedKey{dir, id}, nil)

	return nil
}

func (t *txView) list(dir string) ([]string, error) {
	ids, err := t.disk.list(dir)
	if err != nil {
		return nil, err
	}

	for key, data := range t.staged {
		if key.dir != dir {
			continue
		}

		present := slices.Contains(ids, key.id)

		switch {
		case data == nil && present:
			ids = slices.DeleteFunc(ids, func(id string) bool { return id == key.id })
		case data != nil && !present:
			ids = append(ids, key.id)
		}
	}

	slices.Sort(ids)

	return ids, nil
}

func (t *txView) commit() error {
	for _, key := range t.order {
		data := t.staged[key]

		var err error
		if data == nil {
			err = t.disk.remove(key.dir, key.id)
		} else {
			err = t.disk.write(key.dir, key.id, data)
		}

		if err != nil {
			return err
		}
	}

	return nil
}

func readJSON[T any](v view, dir, id string) (*T, error) {
	body, err := v.read(dir, id)
	if err != nil || body == nil {
		return nil, err
	}

	var value T

	err = json.Unmarshal(body, &value)
	if err != nil {
		return nil, fmt.Errorf("failed to decode %s/%s: %w", dir, id, err)
	}

	return &value, nil
}

func writeJSON(v view, dir, id string, value any) error {
	data, err := json.MarshalIndent(value, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode %s/%s: %w", dir, id, err)
	}

	return v.write(dir, id, data)
}
