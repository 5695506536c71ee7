package store

import (
	"context"
	"fmt"
	"os"
	"net/url"
	"path/filepath"
	"sort"
	"sync"

	"github.com/cxcscmu/LLM-Interviewer/pkg/conversation"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

const yamlRecordExt = ".yaml"

type yamlRecordDocument struct {
	Key    string               `yaml:"key"`
	Record *conversation.Record `yaml:"record"`
}

// YAMLFileRecordStore persists each record as one YAML document in dir.
type YAMLFileRecordStore struct {
	mu     sync.RWMutex
	dir    string
	closed bool
}

func NewYAMLFileRecordStore(dir string) (*YAMLFileRecordStore, error) {
	if dir == "" {
		return nil, fmt.Errorf("yaml record store directory is required")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	return &YAMLFileRecordStore{dir: dir}, nil
}

func (s *YAMLFileRecordStore) Get(_ context.Context, key Key) (*conversation.Record, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.ensureOpen(); err != nil {
		return nil, false, err
	}

	doc, err := s.readDocument(s.pathFor(key))
	if os.IsNotExist(errors.Cause(err)) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	if doc.Record == nil {
		return nil, false, nil
	}
	if err := doc.Record.Normalize(); err != nil {
		return nil, false, errors.Wrapf(err, "yaml record store: %s", key)
	}
	return doc.Record, true, nil
}

func (s *YAMLFileRecordStore) Keys(_ context.Context) ([]Key, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.ensureOpen(); err != nil {
		return nil, err
	}

	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, err
	}
	var keys []Key
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != yamlRecordExt {
			continue
		}
		doc, err := s.readDocument(filepath.Join(s.dir, e.Name()))
		if err != nil {
			return nil, err
		}
		if doc.Key != "" {
			keys = append(keys, Key(doc.Key))
		}
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	return keys, nil
}

func (s *YAMLFileRecordStore) Put(_ context.Context, key Key, record *conversation.Record) error {
	if err := validateKey(key); err != nil {
		return err
	}
	if record == nil {
		return errors.New("yaml record store: nil record")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.ensureOpen(); err != nil {
		return err
	}

	b, err := yaml.Marshal(&yamlRecordDocument{Key: key.String(), Record: record})
	if err != nil {
		return err
	}
	path := s.pathFor(key)
	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, b, 0o644); err != nil {
		return err
	}
	return os.Rename(tmpPath, path)
}

func (s *YAMLFileRecordStore) Delete(_ context.Context, key Key) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.ensureOpen(); err != nil {
		return err
	}
	if err := os.Remove(s.pathFor(key)); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

func (s *YAMLFileRecordStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func (s *YAMLFileRecordStore) readDocument(path string) (*yamlRecordDocument, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	doc := &yamlRecordDocument{}
	if err := yaml.Unmarshal(b, doc); err != nil {
		return nil, errors.Wrapf(err, "yaml record store: parsing %s", path)
	}
	return doc, nil
}

// pathFor maps a key onto a file name. Query escaping is reversible, so
// distinct keys never share a file, and it leaves no separators that could
// leave dir. The original key is kept inside the document.
func (s *YAMLFileRecordStore) pathFor(key Key) string {
	name := url.QueryEscape(key.String())
	return filepath.Join(s.dir, name+yamlRecordExt)
}

func (s *YAMLFileRecordStore) ensureOpen() error {
	if s.closed {
		return ErrStoreClosed
	}
	return nil
}

var _ RecordStore = (*YAMLFileRecordStore)(nil)
