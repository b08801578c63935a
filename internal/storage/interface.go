// Package storage provides transfer history and file storage for the
// PeSIT server and client.
//
// # Interface Design
//
// The storage layer is organized into focused interfaces:
//
//   - [TransferStore]: Transfer history, sync-point positions and
//     resume gating
//   - [FileStore]: Binary file content with streaming support
//
// The [Store] interface combines both for convenience.
//
// # Implementations
//
// The mongodb sub-package provides a production-ready MongoDB
// implementation; the memory sub-package provides an in-memory one for
// tests and single-process deployments.
//
// # Concurrency
//
// All store implementations must be safe for concurrent use from
// multiple goroutines.
package storage

import (
	"context"
	"errors"
	"time"
)

// ErrTransferNotFound indicates the requested transfer record does not
// exist.
var ErrTransferNotFound = errors.New("transfer not found")

// Store is the main storage interface combining all sub-stores
type Store interface {
	TransferStore
	FileStore

	// Close releases storage resources
	Close(ctx context.Context) error

	// Ping checks backend connectivity
	Ping(ctx context.Context) error
}

// TransferStore manages transfer history records
type TransferStore interface {
	// CreateTransfer stores a new transfer record
	CreateTransfer(ctx context.Context, rec *TransferRecord) error

	// GetTransfer retrieves a transfer by record ID
	GetTransfer(ctx context.Context, id string) (*TransferRecord, error)

	// GetTransferByLabel retrieves a transfer by partner and PI_13
	// transfer identifier
	GetTransferByLabel(ctx context.Context, partner string, transferID uint64) (*TransferRecord, error)

	// UpdateTransfer replaces a transfer record
	UpdateTransfer(ctx context.Context, rec *TransferRecord) error

	// UpdateTransferStatus updates just the status of a transfer
	UpdateTransferStatus(ctx context.Context, id string, status TransferStatus, diag string) error

	// RecordSyncPoint advances the acknowledged sync point. The stored
	// position is monotone: an older value never overwrites a newer one.
	RecordSyncPoint(ctx context.Context, id string, syncPoint uint64) error

	// AddBytes accumulates transferred bytes
	AddBytes(ctx context.Context, id string, n uint64) error

	// ListTransfers returns transfers with filtering
	ListTransfers(ctx context.Context, filter *TransferFilter) ([]*TransferRecord, error)

	// ListResumable returns transfers eligible for resumption: failed
	// or aborted, sync points enabled, at least one acknowledged sync
	// point
	ListResumable(ctx context.Context, partner string) ([]*TransferRecord, error)
}

// FileStore manages file content (large binary data)
type FileStore interface {
	// StoreFile stores file content and returns its storage ID
	StoreFile(ctx context.Context, file *FileData) (string, error)

	// GetFile retrieves file content by storage ID
	GetFile(ctx context.Context, id string) (*FileData, error)

	// DeleteFile deletes stored file content
	DeleteFile(ctx context.Context, id string) error
}

// Domain models

// TransferRecord is the persistent history entry for one transfer
type TransferRecord struct {
	ID         string    `bson:"_id" json:"id"`
	TransferID uint64    `bson:"transfer_id" json:"transferId"`
	Partner    string    `bson:"partner" json:"partner"`
	Requester  string    `bson:"requester" json:"requester"`
	Server     string    `bson:"server" json:"server"`
	FileName   string    `bson:"file_name" json:"fileName"`
	Direction  Direction `bson:"direction" json:"direction"`

	Status TransferStatus `bson:"status" json:"status"`

	// Sync-point bookkeeping for resumption
	SyncPointsEnabled bool   `bson:"sync_points_enabled" json:"syncPointsEnabled"`
	SyncIntervalKB    uint16 `bson:"sync_interval_kb,omitempty" json:"syncIntervalKb,omitempty"`
	LastSyncPoint     uint64 `bson:"last_sync_point" json:"lastSyncPoint"`

	BytesTransferred uint64 `bson:"bytes_transferred" json:"bytesTransferred"`
	FileSizeKB       uint64 `bson:"file_size_kb,omitempty" json:"fileSizeKb,omitempty"`

	// FileID references the stored content for received transfers
	FileID string `bson:"file_id,omitempty" json:"fileId,omitempty"`

	// Diag is the rendered PI_02 code when the transfer ended on one
	Diag string `bson:"diag,omitempty" json:"diag,omitempty"`

	StartedAt time.Time `bson:"started_at" json:"startedAt"`
	UpdatedAt time.Time `bson:"updated_at" json:"updatedAt"`
}

// Direction of a transfer relative to the local side
type Direction string

const (
	DirectionSend    Direction = "send"
	DirectionReceive Direction = "receive"
)

// TransferStatus is the lifecycle status of a stored transfer
type TransferStatus string

const (
	StatusActive    TransferStatus = "active"    // transfer in progress
	StatusCompleted TransferStatus = "completed" // terminated normally
	StatusFailed    TransferStatus = "failed"    // terminated on error
	StatusAborted   TransferStatus = "aborted"   // terminated by ABORT
)

// TransferFilter narrows ListTransfers results
type TransferFilter struct {
	Partner   string
	Direction Direction
	Status    TransferStatus
	Since     *time.Time
	Limit     int
	Offset    int
}

// FileData holds file content and metadata
type FileData struct {
	ID       string `json:"id"`
	FileName string `json:"fileName"`
	Data     []byte `json:"-"`
	Checksum string `json:"checksum"`
}

// Resumable reports whether the record passes the resume gate
func (r *TransferRecord) Resumable() bool {
	switch r.Status {
	case StatusFailed, StatusAborted:
	default:
		return false
	}
	return r.SyncPointsEnabled && r.LastSyncPoint > 0
}
