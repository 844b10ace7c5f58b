package clientstore

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"log/slog"
	"os"
	"sync"
	"time"

	gateway "github.com/bastionlabs/bastion/internal"
)

// JSONStore serves client records from a JSON file of the form
// {"clients": [...]}. The file is re-read whenever its mtime advances, so
// edits take effect without a restart. Lookup compares the key against
// every record in constant time per record and keeps the last match,
// making lookup duration independent of where (or whether) the key sits
// in the file.
type JSONStore struct {
	path   string
	logger *slog.Logger

	mu        sync.Mutex
	clients   []gateway.ClientRecord
	lastMtime time.Time
}

type clientFile struct {
	Clients []gateway.ClientRecord `json:"clients"`
}

// NewJSONStore creates a store reading from path. The first load happens
// lazily on lookup.
func NewJSONStore(path string, logger *slog.Logger) *JSONStore {
	return &JSONStore{path: path, logger: logger}
}

// GetByAPIKey scans all records for apiKey. File read failures degrade to
// a miss so a broken directory never takes authentication down with it.
func (s *JSONStore) GetByAPIKey(ctx context.Context, apiKey string) (*gateway.ClientRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.reload()

	var match *gateway.ClientRecord
	for i := range s.clients {
		c := &s.clients[i]
		if subtle.ConstantTimeCompare([]byte(apiKey), []byte(c.APIKey)) == 1 {
			match = c
		}
	}
	if match == nil {
		return nil, nil
	}
	rec := *match
	return &rec, nil
}

// reload re-reads the file when its mtime has advanced past the last load.
func (s *JSONStore) reload() {
	info, err := os.Stat(s.path)
	if err != nil {
		s.clients = nil
		return
	}
	if !info.ModTime().After(s.lastMtime) && s.clients != nil {
		return
	}

	data, err := os.ReadFile(s.path)
	if err != nil {
		s.logger.Warn("client config read failed", slog.String("path", s.path), slog.Any("error", err))
		s.clients = nil
		return
	}
	var f clientFile
	if err := json.Unmarshal(data, &f); err != nil {
		s.logger.Warn("client config parse failed", slog.String("path", s.path), slog.Any("error", err))
		s.clients = nil
		return
	}
	for i := range f.Clients {
		f.Clients[i].Normalize()
	}
	s.clients = f.Clients
	s.lastMtime = info.ModTime()
}
