package store

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

func (s *Store) ensureLoadedFile() {
	s.loadOnce.Do(func() {
		b, err := os.ReadFile(s.path)
		if err != nil {
			return
		}
		var rows []record
		if err := json.Unmarshal(b, &rows); err != nil {
			return
		}
		s.mu.Lock()
		defer s.mu.Unlock()
		for _, row := range rows {
			id := strings.TrimSpace(row.ID)
			if id == "" || row.Kind == "" {
				continue
			}
			s.byKey[key(row.Kind, id)] = row
		}
	})
}

func (s *Store) saveFileLocked() error {
	rows := make([]record, 0, len(s.byKey))
	for _, rec := range s.byKey {
		rows = append(rows, rec)
	}
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].Kind != rows[j].Kind {
			return rows[i].Kind < rows[j].Kind
		}
		return rows[i].ID < rows[j].ID
	})
	b, err := json.MarshalIndent(rows, "", "  ")
	if err != nil {
		return fmt.Errorf("store: encode file: %w", err)
	}
	if dir := filepath.Dir(s.path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	return os.WriteFile(s.path, b, 0o644)
}

func (s *Store) putFile(rec record) error {
	s.ensureLoadedFile()
	s.mu.Lock()
	defer s.mu.Unlock()
	s.byKey[key(rec.Kind, rec.ID)] = rec
	return s.saveFileLocked()
}

func (s *Store) getFile(kind, id string) (record, bool, error) {
	s.ensureLoadedFile()
	s.mu.RLock()
	rec, ok := s.byKey[key(kind, id)]
	s.mu.RUnlock()
	return rec, ok, nil
}

func (s *Store) deleteFile(kind, id string) error {
	s.ensureLoadedFile()
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.byKey, key(kind, id))
	return s.saveFileLocked()
}

func (s *Store) listFile(kind string) ([]record, error) {
	s.ensureLoadedFile()
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]record, 0, len(s.byKey))
	for _, rec := range s.byKey {
		if rec.Kind == kind {
			out = append(out, rec)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}
