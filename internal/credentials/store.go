// Package credentials persists pairing credential blobs across process
// restarts. One JSON file holds the whole mapping; keys are
// "<identifier>:<protocol>" and values are opaque strings.
package credentials

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/alex/castmasta/internal/domain"
)

const (
	dirMode  = 0o700
	fileMode = 0o600
)

type Store struct {
	path string

	mu      sync.Mutex
	records map[string]string
}

// DefaultPath is the store location used when none is configured.
func DefaultPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".castmasta", "credentials.json")
	}
	return filepath.Join(home, ".castmasta", "credentials.json")
}

// NewStore binds a store to path, creating the containing directory with
// owner-only access. A missing, unreadable or malformed file loads as an
// empty mapping; only directory creation can fail here.
func NewStore(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		path = DefaultPath()
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, dirMode); err != nil {
		return nil, fmt.Errorf("create credentials dir: %w", err)
	}
	if err := os.Chmod(dir, dirMode); err != nil {
		return nil, fmt.Errorf("restrict credentials dir: %w", err)
	}

	return &Store{
		path:    path,
		records: load(path),
	}, nil
}

func load(path string) map[string]string {
	records := map[string]string{}
	raw, err := os.ReadFile(path)
	if err != nil {
		return records
	}
	if err := json.Unmarshal(raw, &records); err != nil {
		return map[string]string{}
	}
	return records
}

func key(identifier string, protocol domain.PairingProtocol) string {
	return identifier + ":" + string(protocol)
}

// Get returns the credential blob for (identifier, protocol).
func (s *Store) Get(identifier string, protocol domain.PairingProtocol) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	blob, ok := s.records[key(identifier, protocol)]
	return blob, ok
}

// Set upserts a credential blob and persists the mapping.
func (s *Store) Set(identifier string, protocol domain.PairingProtocol, blob string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[key(identifier, protocol)] = blob
	return s.save()
}

// Delete removes every credential stored for identifier.
func (s *Store) Delete(identifier string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	prefix := identifier + ":"
	for k := range s.records {
		if strings.HasPrefix(k, prefix) {
			delete(s.records, k)
		}
	}
	return s.save()
}

// DeleteProtocol removes exactly one (identifier, protocol) credential.
func (s *Store) DeleteProtocol(identifier string, protocol domain.PairingProtocol) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.records, key(identifier, protocol))
	return s.save()
}

// save writes the mapping to a same-directory temp file with owner-only
// permissions, then atomically replaces the target. Failures clean up
// the temp file and surface; they are never swallowed.
func (s *Store) save() error {
	encoded, err := json.MarshalIndent(s.records, "", "  ")
	if err != nil {
		return domain.PersistenceFailure(err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(s.path), ".credentials-*.tmp")
	if err != nil {
		return domain.PersistenceFailure(err)
	}
	tmpPath := tmp.Name()

	if err := writeAndRestrict(tmp, encoded); err != nil {
		_ = os.Remove(tmpPath)
		return domain.PersistenceFailure(err)
	}
	if err := os.Rename(tmpPath, s.path); err != nil {
		_ = os.Remove(tmpPath)
		return domain.PersistenceFailure(err)
	}
	return nil
}

func writeAndRestrict(tmp *os.File, encoded []byte) error {
	defer tmp.Close()
	if _, err := tmp.Write(encoded); err != nil {
		return err
	}
	if err := tmp.Chmod(fileMode); err != nil {
		return err
	}
	return tmp.Sync()
}
