// Package history persists conversation transcripts as JSON files, one per
// agent and save name.
package history

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"rollcage/internal/chat"
	rcerrors "rollcage/internal/errors"
	"rollcage/internal/nlu"
)

const DefaultName = "default"

// Store manages conversation files under root.
type Store struct {
	root string
	mu   sync.RWMutex
}

func NewStore(root string) *Store {
	return &Store{root: root}
}

func (s *Store) Root() string { return s.root }

// Path returns <root>/<agent>/<name>.json. Every component is sanitized; an
// agent like "user/model" nests one directory per segment.
func (s *Store) Path(agent, name string) string {
	parts := []string{s.root}
	parts = append(parts, agentDirs(agent)...)
	return filepath.Join(append(parts, fileName(name))...)
}

// Save writes msgs as pretty-printed JSON, replacing any previous file.
func (s *Store) Save(agent, name string, msgs []chat.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if msgs == nil {
		msgs = []chat.Message{}
	}

	path := s.Path(agent, name)
	data, err := json.MarshalIndent(msgs, "", "  ")
	if err != nil {
		return rcerrors.NewFileError(path, fmt.Errorf("marshal conversation: %w", err))
	}
	data = append(data, '\n')

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return rcerrors.NewFileError(path, err)
	}

	tmp, err := os.CreateTemp(dir, ".save-*.json")
	if err != nil {
		return rcerrors.NewFileError(path, err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return rcerrors.NewFileError(path, err)
	}
	if err := tmp.Close(); err != nil {
		return rcerrors.NewFileError(path, err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return rcerrors.NewFileError(path, err)
	}
	return nil
}

// Load reads a saved conversation. A missing file is a FileError wrapping
// errors.ErrNotFound.
func (s *Store) Load(agent, name string) ([]chat.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	path := s.Path(agent, name)
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, rcerrors.NewFileError(path, rcerrors.ErrNotFound)
		}
		return nil, rcerrors.NewFileError(path, err)
	}

	var msgs []chat.Message
	if err := json.Unmarshal(data, &msgs); err != nil {
		return nil, rcerrors.NewFileError(path, fmt.Errorf("parse conversation: %w", err))
	}
	for i, m := range msgs {
		if !m.Role.Valid() {
			return nil, rcerrors.NewFileError(path, fmt.Errorf("message %d: unknown role %q", i, m.Role))
		}
	}
	if msgs == nil {
		msgs = []chat.Message{}
	}
	return msgs, nil
}

// List returns the saved conversation names of agent, sorted.
func (s *Store) List(agent string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	dir := filepath.Join(append([]string{s.root}, agentDirs(agent)...)...)
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, rcerrors.NewFileError(dir, err)
	}

	var names []string
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || filepath.Ext(name) != ".json" || strings.HasPrefix(name, ".") {
			continue
		}
		names = append(names, strings.TrimSuffix(name, ".json"))
	}
	sort.Strings(names)
	return names, nil
}

func agentDirs(agent string) []string {
	var dirs []string
	for _, seg := range strings.Split(agent, "/") {
		if seg = nlu.SanitizeName(seg); seg != "" {
			dirs = append(dirs, seg)
		}
	}
	if len(dirs) == 0 {
		dirs = append(dirs, "_")
	}
	return dirs
}

func fileName(name string) string {
	name = nlu.SanitizeName(name)
	if name == "" {
		name = DefaultName
	}
	return name + ".json"
}
