// /internal/storage/storage.go
package storage

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/keshon/nuget-tracker/datastore"
	"github.com/rs/zerolog"
)

const commandHistoryLimit int = 50

var (
	ErrPackageTracked    = errors.New("package is already tracked")
	ErrPackageNotTracked = errors.New("package is not tracked")
)

type Storage struct {
	mu sync.Mutex
	ds *datastore.DataStore
}

// New opens the guild store at filePath.
func New(filePath string, log zerolog.Logger) (*Storage, error) {
	cfg := datastore.DefaultConfig(filePath)
	cfg.Logger = log.With().Str("component", "datastore").Logger()
	ds, err := datastore.NewWithConfig(cfg)
	if err != nil {
		return nil, err
	}
	return &Storage{ds: ds}, nil
}

func (s *Storage) Close() error {
	return s.ds.Close()
}

// Flush writes pending changes to disk.
func (s *Storage) Flush() error {
	return s.ds.SaveToFile()
}

// GuildIDs returns every guild that has a record.
func (s *Storage) GuildIDs() []string {
	return s.ds.Keys()
}

func (s *Storage) load(guildID string) (*Record, error) {
	var record Record
	if _, err := s.ds.Load(guildID, &record); err != nil {
		return nil, fmt.Errorf("load guild %s: %w", guildID, err)
	}
	if record.Packages == nil {
		record.Packages = map[string]TrackedPackage{}
	}
	if len(record.CommandsHistory) > commandHistoryLimit {
		record.CommandsHistory = record.CommandsHistory[len(record.CommandsHistory)-commandHistoryLimit:]
	}
	return &record, nil
}

// view returns a copy of the guild record.
func (s *Storage) view(guildID string) (*Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.load(guildID)
}

// update runs fn on the guild's record and stores it when fn succeeds.
func (s *Storage) update(guildID string, fn func(*Record) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	record, err := s.load(guildID)
	if err != nil {
		return err
	}
	if err := fn(record); err != nil {
		return err
	}
	return s.ds.Put(guildID, record)
}

func packageKey(id string) string {
	return strings.ToLower(strings.TrimSpace(id))
}

// AppendCommandToHistory appends a command history record for a guild
func (s *Storage) AppendCommandToHistory(guildID string, entry CommandHistory) error {
	if entry.Datetime.IsZero() {
		entry.Datetime = time.Now()
	}
	return s.update(guildID, func(r *Record) error {
		r.CommandsHistory = append(r.CommandsHistory, entry)
		if len(r.CommandsHistory) > commandHistoryLimit {
			r.CommandsHistory = r.CommandsHistory[len(r.CommandsHistory)-commandHistoryLimit:]
		}
		return nil
	})
}

func (s *Storage) FetchCommandHistory(guildID string) ([]CommandHistory, error) {
	record, err := s.view(guildID)
	if err != nil {
		return nil, err
	}
	return record.CommandsHistory, nil
}
