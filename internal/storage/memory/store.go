// Package memory implements storage interfaces with in-process maps,
// for tests and single-process deployments.
package memory

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/sirosfoundation/go-pesit/internal/storage"
)

// Store implements storage.Store without external dependencies. Safe
// for concurrent use.
type Store struct {
	mu        sync.RWMutex
	transfers map[string]*storage.TransferRecord
	files     map[string]*storage.FileData
}

// NewStore creates an empty in-memory store
func NewStore() *Store {
	return &Store{
		transfers: make(map[string]*storage.TransferRecord),
		files:     make(map[string]*storage.FileData),
	}
}

// Close is a no-op for the in-memory store
func (s *Store) Close(ctx context.Context) error { return nil }

// Ping is a no-op for the in-memory store
func (s *Store) Ping(ctx context.Context) error { return nil }

// TransferStore implementation

func (s *Store) CreateTransfer(ctx context.Context, rec *storage.TransferRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.StartedAt.IsZero() {
		rec.StartedAt = time.Now()
	}
	rec.UpdatedAt = rec.StartedAt

	for _, existing := range s.transfers {
		if existing.Partner == rec.Partner && existing.TransferID == rec.TransferID {
			return fmt.Errorf("transfer %d with partner %s already recorded", rec.TransferID, rec.Partner)
		}
	}

	clone := *rec
	s.transfers[rec.ID] = &clone
	return nil
}

func (s *Store) GetTransfer(ctx context.Context, id string) (*storage.TransferRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.transfers[id]
	if !ok {
		return nil, storage.ErrTransferNotFound
	}
	clone := *rec
	return &clone, nil
}

func (s *Store) GetTransferByLabel(ctx context.Context, partner string, transferID uint64) (*storage.TransferRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, rec := range s.transfers {
		if rec.Partner == partner && rec.TransferID == transferID {
			clone := *rec
			return &clone, nil
		}
	}
	return nil, storage.ErrTransferNotFound
}

func (s *Store) UpdateTransfer(ctx context.Context, rec *storage.TransferRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.transfers[rec.ID]; !ok {
		return storage.ErrTransferNotFound
	}
	rec.UpdatedAt = time.Now()
	clone := *rec
	s.transfers[rec.ID] = &clone
	return nil
}

func (s *Store) UpdateTransferStatus(ctx context.Context, id string, status storage.TransferStatus, diag string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.transfers[id]
	if !ok {
		return storage.ErrTransferNotFound
	}
	rec.Status = status
	if diag != "" {
		rec.Diag = diag
	}
	rec.UpdatedAt = time.Now()
	return nil
}

func (s *Store) RecordSyncPoint(ctx context.Context, id string, syncPoint uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.transfers[id]
	if !ok {
		return storage.ErrTransferNotFound
	}
	if syncPoint > rec.LastSyncPoint {
		rec.LastSyncPoint = syncPoint
		rec.UpdatedAt = time.Now()
	}
	return nil
}

func (s *Store) AddBytes(ctx context.Context, id string, n uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.transfers[id]
	if !ok {
		return storage.ErrTransferNotFound
	}
	rec.BytesTransferred += n
	rec.UpdatedAt = time.Now()
	return nil
}

func (s *Store) ListTransfers(ctx context.Context, filter *storage.TransferFilter) ([]*storage.TransferRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var recs []*storage.TransferRecord
	for _, rec := range s.transfers {
		if filter != nil {
			if filter.Partner != "" && rec.Partner != filter.Partner {
				continue
			}
			if filter.Direction != "" && rec.Direction != filter.Direction {
				continue
			}
			if filter.Status != "" && rec.Status != filter.Status {
				continue
			}
			if filter.Since != nil && rec.StartedAt.Before(*filter.Since) {
				continue
			}
		}
		clone := *rec
		recs = append(recs, &clone)
	}

	sort.Slice(recs, func(i, j int) bool {
		return recs[i].StartedAt.After(recs[j].StartedAt)
	})

	if filter != nil {
		if filter.Offset > 0 {
			if filter.Offset >= len(recs) {
				return nil, nil
			}
			recs = recs[filter.Offset:]
		}
		if filter.Limit > 0 && len(recs) > filter.Limit {
			recs = recs[:filter.Limit]
		}
	}
	return recs, nil
}

func (s *Store) ListResumable(ctx context.Context, partner string) ([]*storage.TransferRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var recs []*storage.TransferRecord
	for _, rec := range s.transfers {
		if partner != "" && rec.Partner != partner {
			continue
		}
		if !rec.Resumable() {
			continue
		}
		clone := *rec
		recs = append(recs, &clone)
	}

	sort.Slice(recs, func(i, j int) bool {
		return recs[i].UpdatedAt.After(recs[j].UpdatedAt)
	})
	return recs, nil
}

// FileStore implementation

func (s *Store) StoreFile(ctx context.Context, file *storage.FileData) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if file.Checksum == "" {
		hash := sha256.Sum256(file.Data)
		file.Checksum = hex.EncodeToString(hash[:])
	}
	if file.ID == "" {
		file.ID = uuid.NewString()
	}

	clone := *file
	clone.Data = append([]byte(nil), file.Data...)
	s.files[file.ID] = &clone
	return file.ID, nil
}

func (s *Store) GetFile(ctx context.Context, id string) (*storage.FileData, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	file, ok := s.files[id]
	if !ok {
		return nil, fmt.Errorf("file %s not found", id)
	}
	clone := *file
	clone.Data = append([]byte(nil), file.Data...)
	return &clone, nil
}

func (s *Store) DeleteFile(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.files[id]; !ok {
		return fmt.Errorf("file %s not found", id)
	}
	delete(s.files, id)
	return nil
}
