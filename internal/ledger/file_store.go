package ledger

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// FileStore keeps the ledger as a single JSON document, fully rewritten on
// every append under one mutex.
type FileStore struct {
	mu   sync.Mutex
	path string
}

// NewFileStore opens (or creates) the ledger document at path.
func NewFileStore(path string) (*FileStore, error) {
	if path == "" {
		return nil, fmt.Errorf("ledger file path is required")
	}
	store := &FileStore{path: path}
	store.mu.Lock()
	defer store.mu.Unlock()
	if _, err := os.Stat(path); os.IsNotExist(err) {
		if err := store.write(nil); err != nil {
			return nil, fmt.Errorf("initialize ledger file: %w", err)
		}
	} else if err != nil {
		return nil, fmt.Errorf("stat ledger file: %w", err)
	}
	return store, nil
}

func (s *FileStore) Append(ctx context.Context, record Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	records, err := s.read()
	if err != nil {
		return err
	}
	records = append(records, record)
	return s.write(records)
}

func (s *FileStore) ListRange(ctx context.Context, from, to time.Time) ([]Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	records, err := s.read()
	if err != nil {
		return nil, err
	}
	var out []Record
	for _, r := range records {
		if !r.Timestamp.Before(from) && r.Timestamp.Before(to) {
			out = append(out, r)
		}
	}
	return out, nil
}

func (s *FileStore) read() ([]Record, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read ledger file: %w", err)
	}
	if len(data) == 0 {
		return nil, nil
	}
	var records []Record
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("decode ledger file: %w", err)
	}
	return records, nil
}

func (s *FileStore) write(records []Record) error {
	if records == nil {
		records = []Record{}
	}
	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return fmt.Errorf("encode ledger file: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(s.path), filepath.Base(s.path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp ledger file: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("write ledger file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("close ledger file: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("replace ledger file: %w", err)
	}
	return nil
}
