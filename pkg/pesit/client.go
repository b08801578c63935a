package pesit

import (
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/rs/zerolog"

	"github.com/sirosfoundation/go-pesit/pkg/fpdu"
	"github.com/sirosfoundation/go-pesit/pkg/session"
	"github.com/sirosfoundation/go-pesit/pkg/transport"
)

// Client is the main PeSIT client for sending and receiving files
type Client struct {
	cfg     *ClientConfig
	tracker *session.TransferTracker

	mu     sync.Mutex
	active map[uint64]*session.Session
	nextID uint64

	log zerolog.Logger
}

// ClientConfig holds client configuration
type ClientConfig struct {
	// Address is the partner endpoint (host:port)
	Address string

	// Requester and Server are the PI_03/PI_04 identifications
	Requester string
	Server    string
	// Password is carried in PI_05 when set
	Password string

	// SyncIntervalKB enables sync points when non-zero
	SyncIntervalKB uint16
	SyncWindow     uint8
	Resync         bool

	MaxEntitySize int

	Transport *transport.Config
	Logger    zerolog.Logger
}

// TransferStatus is the terminal report of a transfer attempt
type TransferStatus struct {
	TransferID    uint64
	Direction     session.Direction
	State         session.TransferState
	LastSyncPoint uint64
	Bytes         uint64
}

// NewClient creates a new PeSIT client
func NewClient(cfg *ClientConfig) (*Client, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	if cfg.Address == "" {
		return nil, fmt.Errorf("address is required")
	}
	if cfg.Requester == "" || cfg.Server == "" {
		return nil, fmt.Errorf("requester and server identifications are required")
	}
	return &Client{
		cfg:     cfg,
		tracker: session.NewTransferTracker(),
		active:  make(map[uint64]*session.Session),
		log:     cfg.Logger.With().Str("component", "pesit-client").Logger(),
	}, nil
}

// SendFile transfers the content of r to the partner as fileName. size
// is declared in CREATE when non-zero. The returned status carries the
// transfer id needed for Cancel and Resume.
func (c *Client) SendFile(ctx context.Context, fileName string, size uint64, r io.Reader) (*TransferStatus, error) {
	id := c.allocateID()
	var opts []fpdu.CreateOption
	if size > 0 {
		opts = append(opts, fpdu.WithFileSize(size))
	}
	return c.send(ctx, id, fileName, r, 0, opts...)
}

// Resume restarts an interrupted send from its last acknowledged sync
// point. The transfer must have ended in a failed or aborted state with
// sync points enabled and at least one acknowledged sync point;
// otherwise no connection is opened and no state changes.
func (c *Client) Resume(ctx context.Context, transferID uint64, fileName string, r io.ReadSeeker) (*TransferStatus, error) {
	if err := c.tracker.Resumable(transferID); err != nil {
		return nil, err
	}
	rec, _ := c.tracker.Get(transferID)

	// Sync point N confirms N intervals of data; everything before the
	// restart offset is already with the partner.
	offset := int64(rec.LastSyncPoint) * int64(c.cfg.SyncIntervalKB) * 1024
	if _, err := r.Seek(offset, io.SeekStart); err != nil {
		return nil, fmt.Errorf("seeking to restart offset %d: %w", offset, err)
	}
	c.tracker.Remove(transferID)

	c.log.Info().
		Uint64("transfer_id", transferID).
		Uint64("sync_point", rec.LastSyncPoint).
		Msg("resuming transfer")
	return c.send(ctx, transferID, fileName, r, rec.LastSyncPoint, fpdu.WithRestartPoint(rec.LastSyncPoint))
}

// send runs one send session. restart seeds the sync sequence when
// resuming, so a second interruption records the true position rather
// than an ordinal restarted from one.
func (c *Client) send(ctx context.Context, id uint64, fileName string, r io.Reader, restart uint64, opts ...fpdu.CreateOption) (*TransferStatus, error) {
	conn, err := transport.Dial(ctx, c.cfg.Address, c.cfg.Transport)
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	cfg := c.sessionConfig(id)
	cfg.InitialSyncPoint = restart
	s := session.New(conn, cfg)
	c.tracker.Track(id, session.DirectionSend, s.SyncPointsEnabled())
	c.register(id, s)
	defer c.unregister(id)

	status := func() *TransferStatus { return c.status(id, s, session.DirectionSend) }

	if err := s.Connect(); err != nil {
		c.markEnd(id, s, err)
		return status(), err
	}
	if err := s.CreateFile(fileName, opts...); err != nil {
		c.markEnd(id, s, err)
		return status(), err
	}

	n, err := s.SendData(r)
	c.tracker.AddBytes(id, uint64(n))
	c.tracker.AdvanceSyncPoint(id, s.LastSyncPoint())
	if err != nil {
		c.markEnd(id, s, err)
		return status(), err
	}

	if err := s.CompleteSend(); err != nil {
		c.markEnd(id, s, err)
		return status(), err
	}
	c.tracker.MarkCompleted(id)
	c.log.Info().
		Uint64("transfer_id", id).
		Str("file", fileName).
		Int64("bytes", n).
		Msg("transfer completed")
	return status(), nil
}

// ReceiveFile reads the partner's copy of the transfer identified by
// transferID into w.
func (c *Client) ReceiveFile(ctx context.Context, fileName string, transferID uint64, w io.Writer) (*TransferStatus, error) {
	conn, err := transport.Dial(ctx, c.cfg.Address, c.cfg.Transport)
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	s := session.New(conn, c.sessionConfig(transferID))
	c.tracker.Track(transferID, session.DirectionReceive, s.SyncPointsEnabled())
	c.register(transferID, s)
	defer c.unregister(transferID)

	status := func() *TransferStatus { return c.status(transferID, s, session.DirectionReceive) }

	if err := s.Connect(); err != nil {
		c.markEnd(transferID, s, err)
		return status(), err
	}
	if err := s.SelectFile(fileName); err != nil {
		c.markEnd(transferID, s, err)
		return status(), err
	}

	n, err := s.ReceiveData(w)
	c.tracker.AddBytes(transferID, uint64(n))
	c.tracker.AdvanceSyncPoint(transferID, s.LastSyncPoint())
	if err != nil {
		c.markEnd(transferID, s, err)
		return status(), err
	}

	if err := s.CompleteReceive(); err != nil {
		c.markEnd(transferID, s, err)
		return status(), err
	}
	c.tracker.MarkCompleted(transferID)
	return status(), nil
}

// Cancel requests cooperative cancellation of an in-flight transfer.
// The session aborts at its next protocol checkpoint.
func (c *Client) Cancel(transferID uint64) error {
	c.mu.Lock()
	s, ok := c.active[transferID]
	c.mu.Unlock()
	if !ok {
		return fmt.Errorf("transfer %d is not in flight", transferID)
	}
	s.Cancel()
	return nil
}

// Status reports the tracked state of a transfer.
func (c *Client) Status(transferID uint64) (session.TrackedTransfer, bool) {
	return c.tracker.Get(transferID)
}

func (c *Client) sessionConfig(id uint64) session.Config {
	return session.Config{
		Requester:      c.cfg.Requester,
		Server:         c.cfg.Server,
		Password:       c.cfg.Password,
		SyncIntervalKB: c.cfg.SyncIntervalKB,
		SyncWindow:     c.cfg.SyncWindow,
		Resync:         c.cfg.Resync,
		TransferID:     id,
		MaxEntitySize:  c.cfg.MaxEntitySize,
		Logger:         c.cfg.Logger,
	}
}

func (c *Client) allocateID() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.nextID++
	return c.nextID
}

func (c *Client) register(id uint64, s *session.Session) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.active[id] = s
}

func (c *Client) unregister(id uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.active, id)
}

// markEnd distinguishes cancellation and aborts from plain failures.
func (c *Client) markEnd(id uint64, s *session.Session, err error) {
	if s.State() == session.StateAborted || s.Cancelled() {
		c.tracker.MarkAborted(id)
		return
	}
	c.tracker.MarkFailed(id, err)
}

func (c *Client) status(id uint64, s *session.Session, dir session.Direction) *TransferStatus {
	rec, _ := c.tracker.Get(id)
	bytes := s.BytesSent()
	if dir == session.DirectionReceive {
		bytes = s.BytesReceived()
	}
	return &TransferStatus{
		TransferID:    id,
		Direction:     dir,
		State:         rec.State,
		LastSyncPoint: s.LastSyncPoint(),
		Bytes:         bytes,
	}
}
