package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// FileStore keeps the queue as a single JSON document. Every mutation reads,
// rewrites, and replaces the whole file under one mutex, so readers never see
// a partial write.
type FileStore struct {
	mu   sync.Mutex
	path string
}

// NewFileStore opens (or creates) the queue document at path.
func NewFileStore(path string) (*FileStore, error) {
	if path == "" {
		return nil, fmt.Errorf("queue file path is required")
	}
	store := &FileStore{path: path}
	store.mu.Lock()
	defer store.mu.Unlock()
	if _, err := os.Stat(path); os.IsNotExist(err) {
		if err := store.write(nil); err != nil {
			return nil, fmt.Errorf("initialize queue file: %w", err)
		}
	} else if err != nil {
		return nil, fmt.Errorf("stat queue file: %w", err)
	}
	return store, nil
}

func (s *FileStore) Enqueue(ctx context.Context, entry Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries, err := s.read()
	if err != nil {
		return err
	}
	entries = append(entries, entry)
	return s.write(entries)
}

func (s *FileStore) Peek(ctx context.Context) (*Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries, err := s.read()
	if err != nil {
		return nil, err
	}
	if len(entries) == 0 {
		return nil, nil
	}
	head := entries[0]
	return &head, nil
}

func (s *FileStore) Dequeue(ctx context.Context) (*Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries, err := s.read()
	if err != nil {
		return nil, err
	}
	if len(entries) == 0 {
		return nil, nil
	}
	head := entries[0]
	if err := s.write(entries[1:]); err != nil {
		return nil, err
	}
	return &head, nil
}

func (s *FileStore) Len(ctx context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries, err := s.read()
	if err != nil {
		return 0, err
	}
	return len(entries), nil
}

func (s *FileStore) read() ([]Entry, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read queue file: %w", err)
	}
	if len(data) == 0 {
		return nil, nil
	}
	var entries []Entry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("decode queue file: %w", err)
	}
	return entries, nil
}

// write replaces the document via a temp file and rename so a crash mid-write
// never leaves a truncated queue behind.
func (s *FileStore) write(entries []Entry) error {
	if entries == nil {
		entries = []Entry{}
	}
	data, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return fmt.Errorf("encode queue file: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(s.path), filepath.Base(s.path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp queue file: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("write queue file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("close queue file: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("replace queue file: %w", err)
	}
	return nil
}
