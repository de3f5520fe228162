package alias

import (
	"context"
	"sync"

	apperrors "github.com/louisbranch/passkeyd/internal/platform/errors"
)

// Row is one alias reservation.
type Row struct {
	App    string
	Hash   string
	UserID string
}

// Store is the authoritative alias table. InsertAliases is all-or-nothing:
// if any (app, hash) pair exists, nothing is written and the error carries
// ALIASES_TAKEN.
type Store interface {
	InsertAliases(ctx context.Context, rows []Row) error
	LookupAlias(ctx context.Context, app, hash string) (string, bool, error)
}

// MemoryStore is an in-process Store.
type MemoryStore struct {
	mu   sync.Mutex
	rows map[string]string
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{rows: make(map[string]string)}
}

// InsertAliases implements Store.
func (s *MemoryStore) InsertAliases(_ context.Context, rows []Row) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	batch := make(map[string]struct{}, len(rows))
	for _, row := range rows {
		key := row.App + "\x00" + row.Hash
		if _, ok := s.rows[key]; ok {
			return ErrTaken()
		}
		if _, ok := batch[key]; ok {
			return ErrTaken()
		}
		batch[key] = struct{}{}
	}
	for _, row := range rows {
		s.rows[row.App+"\x00"+row.Hash] = row.UserID
	}
	return nil
}

// LookupAlias implements Store.
func (s *MemoryStore) LookupAlias(_ context.Context, app, hash string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	userID, ok := s.rows[app+"\x00"+hash]
	return userID, ok, nil
}

// ErrTaken returns the ALIASES_TAKEN error.
func ErrTaken() error {
	return apperrors.New(apperrors.CodeAliasesTaken, "one or more aliases are taken")
}
