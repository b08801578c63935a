package session

import (
	"fmt"
	"sync"
	"time"
)

// Direction of a transfer relative to the local side.
type Direction int

const (
	DirectionSend Direction = iota
	DirectionReceive
)

func (d Direction) String() string {
	if d == DirectionReceive {
		return "receive"
	}
	return "send"
}

// TransferState is the lifecycle state of a tracked transfer.
type TransferState int

const (
	TransferActive    TransferState = iota // transfer in progress
	TransferCompleted                      // terminated normally
	TransferFailed                         // terminated on error
	TransferAborted                        // terminated by ABORT
)

// TrackedTransfer is the bookkeeping record for one transfer.
type TrackedTransfer struct {
	TransferID        uint64
	Direction         Direction
	State             TransferState
	SyncPointsEnabled bool
	LastSyncPoint     uint64
	BytesTransferred  uint64
	StartedAt         time.Time
	UpdatedAt         time.Time
	Errors            []string
}

// TransferTracker tracks transfers for sync-point bookkeeping and
// resume gating. Safe for concurrent use.
type TransferTracker struct {
	mu        sync.RWMutex
	transfers map[uint64]*TrackedTransfer
}

// NewTransferTracker creates an empty tracker.
func NewTransferTracker() *TransferTracker {
	return &TransferTracker{transfers: make(map[uint64]*TrackedTransfer)}
}

// Track starts tracking a transfer.
func (t *TransferTracker) Track(id uint64, dir Direction, syncPoints bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := time.Now()
	t.transfers[id] = &TrackedTransfer{
		TransferID:        id,
		Direction:         dir,
		State:             TransferActive,
		SyncPointsEnabled: syncPoints,
		StartedAt:         now,
		UpdatedAt:         now,
	}
}

// Get retrieves a copy of the record for id.
func (t *TransferTracker) Get(id uint64) (TrackedTransfer, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	rec, ok := t.transfers[id]
	if !ok {
		return TrackedTransfer{}, false
	}
	return *rec, true
}

// AdvanceSyncPoint records an acknowledged sync point. The position is
// monotone: a duplicate or older acknowledgement never moves it back.
func (t *TransferTracker) AdvanceSyncPoint(id, n uint64) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	rec, ok := t.transfers[id]
	if !ok {
		return fmt.Errorf("transfer %d not tracked", id)
	}
	if n > rec.LastSyncPoint {
		rec.LastSyncPoint = n
		rec.UpdatedAt = time.Now()
	}
	return nil
}

// AddBytes accumulates transferred bytes.
func (t *TransferTracker) AddBytes(id, n uint64) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	rec, ok := t.transfers[id]
	if !ok {
		return fmt.Errorf("transfer %d not tracked", id)
	}
	rec.BytesTransferred += n
	rec.UpdatedAt = time.Now()
	return nil
}

// MarkCompleted records a normal termination.
func (t *TransferTracker) MarkCompleted(id uint64) error {
	return t.setState(id, TransferCompleted, "")
}

// MarkFailed records an error termination.
func (t *TransferTracker) MarkFailed(id uint64, err error) error {
	msg := ""
	if err != nil {
		msg = err.Error()
	}
	return t.setState(id, TransferFailed, msg)
}

// MarkAborted records an ABORT termination.
func (t *TransferTracker) MarkAborted(id uint64) error {
	return t.setState(id, TransferAborted, "")
}

func (t *TransferTracker) setState(id uint64, st TransferState, errMsg string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	rec, ok := t.transfers[id]
	if !ok {
		return fmt.Errorf("transfer %d not tracked", id)
	}
	rec.State = st
	rec.UpdatedAt = time.Now()
	if errMsg != "" {
		rec.Errors = append(rec.Errors, errMsg)
	}
	return nil
}

// Remove stops tracking a transfer.
func (t *TransferTracker) Remove(id uint64) {
	t.mu.Lock()
	defer t.mu.Unlock()

	delete(t.transfers, id)
}

// Resumable reports whether the transfer may be resumed: it must have
// ended in a failed or aborted state, with sync points enabled, and
// with at least one acknowledged sync point.
func (t *TransferTracker) Resumable(id uint64) error {
	rec, ok := t.Get(id)
	if !ok {
		return fmt.Errorf("%w: transfer %d not tracked", ErrNotResumable, id)
	}
	return ResumableRecord(rec.State, rec.SyncPointsEnabled, rec.LastSyncPoint)
}

// ResumableRecord applies the resume gate to raw record fields, so
// external history stores can share the rule.
func ResumableRecord(state TransferState, syncPoints bool, lastSync uint64) error {
	switch state {
	case TransferFailed, TransferAborted:
	default:
		return fmt.Errorf("%w: transfer did not end in a failed or aborted state", ErrNotResumable)
	}
	if !syncPoints {
		return fmt.Errorf("%w: sync points were not enabled", ErrNotResumable)
	}
	if lastSync == 0 {
		return fmt.Errorf("%w: no sync point was acknowledged", ErrNotResumable)
	}
	return nil
}
