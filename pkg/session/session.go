package session

import (
	"errors"
	"fmt"
	"io"
	"sync/atomic"

	"github.com/rs/zerolog"

	"github.com/sirosfoundation/go-pesit/pkg/fpdu"
	"github.com/sirosfoundation/go-pesit/pkg/frame"
	"github.com/sirosfoundation/go-pesit/pkg/param"
)

// State of the session state machine.
type State int

const (
	StateIdle State = iota
	StateConnecting
	StateConnected
	StateTransferring
	StateSynchronizing
	StateCompleting
	StateClosed
	StateAborted
)

var stateNames = map[State]string{
	StateIdle:          "idle",
	StateConnecting:    "connecting",
	StateConnected:     "connected",
	StateTransferring:  "transferring",
	StateSynchronizing: "synchronizing",
	StateCompleting:    "completing",
	StateClosed:        "closed",
	StateAborted:       "aborted",
}

func (s State) String() string {
	if n, ok := stateNames[s]; ok {
		return n
	}
	return "unknown"
}

// Config holds the negotiation parameters for one session.
type Config struct {
	ConnID    byte
	Requester string
	Server    string
	Password  string

	// SyncIntervalKB enables sync points when non-zero.
	SyncIntervalKB uint16
	SyncWindow     uint8
	Resync         bool

	// InitialSyncPoint seeds the sync sequence when resuming: the
	// restart point is already acknowledged, and subsequent SYN
	// ordinals continue from it so each ordinal keeps meaning the same
	// absolute position in the file.
	InitialSyncPoint uint64

	TransferID    uint64
	MaxEntitySize int

	Logger zerolog.Logger
}

// Session drives the verb sequence for one transfer over one transport
// connection. It is owned by a single goroutine; only Cancel may be
// called concurrently.
type Session struct {
	cfg  Config
	r    *frame.Reader
	w    *frame.Writer
	conn io.ReadWriter

	state     State
	peerID    byte
	lastSync  uint64
	syncSeq   uint64
	sinceSync int
	cancelled atomic.Bool

	bytesSent     uint64
	bytesReceived uint64

	log zerolog.Logger
}

// New creates a session over conn. The connection stays owned by the
// caller; the session never closes it.
func New(conn io.ReadWriter, cfg Config) *Session {
	if cfg.ConnID == 0 {
		cfg.ConnID = 1
	}
	if cfg.MaxEntitySize == 0 {
		cfg.MaxEntitySize = fpdu.DefaultMaxEntitySize
	}
	return &Session{
		cfg:      cfg,
		conn:     conn,
		r:        frame.NewReader(conn),
		w:        frame.NewWriter(conn),
		state:    StateIdle,
		lastSync: cfg.InitialSyncPoint,
		syncSeq:  cfg.InitialSyncPoint,
		log:      cfg.Logger.With().Uint64("transfer", cfg.TransferID).Logger(),
	}
}

// State returns the current machine state.
func (s *Session) State() State { return s.state }

// PeerID returns the connection id assigned by the peer in ACONNECT.
func (s *Session) PeerID() byte { return s.peerID }

// LastSyncPoint returns the highest acknowledged sync point.
func (s *Session) LastSyncPoint() uint64 { return s.lastSync }

// BytesSent returns the payload bytes written during the data phase.
func (s *Session) BytesSent() uint64 { return s.bytesSent }

// BytesReceived returns the payload bytes read during the data phase.
func (s *Session) BytesReceived() uint64 { return s.bytesReceived }

// SyncPointsEnabled reports whether PI_07 was sent in CONNECT.
func (s *Session) SyncPointsEnabled() bool { return s.cfg.SyncIntervalKB > 0 }

// Cancel marks the session for cooperative cancellation. The current
// blocking I/O call still completes; the next protocol checkpoint
// observes the flag and issues ABORT.
func (s *Session) Cancel() { s.cancelled.Store(true) }

// Cancelled reports whether Cancel was called.
func (s *Session) Cancelled() bool { return s.cancelled.Load() }

// Connect performs the CONNECT/ACONNECT exchange.
func (s *Session) Connect() error {
	if s.state != StateIdle {
		return fmt.Errorf("connect in state %s", s.state)
	}
	s.state = StateConnecting

	opts := []fpdu.ConnectOption{
		fpdu.WithRequester(s.cfg.Requester),
		fpdu.WithServer(s.cfg.Server),
	}
	if s.cfg.Password != "" {
		opts = append(opts, fpdu.WithPassword(s.cfg.Password))
	}
	if s.SyncPointsEnabled() {
		opts = append(opts, fpdu.WithSyncPoints(s.cfg.SyncIntervalKB, s.cfg.SyncWindow))
	}
	if s.cfg.Resync {
		opts = append(opts, fpdu.WithResync())
	}

	connect, err := fpdu.NewConnect(opts...).Build(s.cfg.ConnID)
	if err != nil {
		return err
	}
	if err := s.w.Write(connect); err != nil {
		return err
	}

	ack, err := s.expect(fpdu.VerbAConnect)
	if err != nil {
		return err
	}
	s.peerID = ack.IDSrc
	s.state = StateConnected
	s.log.Debug().Uint8("peer_id", s.peerID).Msg("session connected")
	return nil
}

// CreateFile opens a send transfer with CREATE/ACK_CREATE. Extra
// builder options (file size, record description, restart point) are
// applied after the session defaults.
func (s *Session) CreateFile(fileName string, opts ...fpdu.CreateOption) error {
	if s.state != StateConnected {
		return fmt.Errorf("create in state %s", s.state)
	}
	all := append([]fpdu.CreateOption{
		fpdu.WithFileName(fileName),
		fpdu.WithTransferID(s.cfg.TransferID),
		fpdu.WithMaxEntitySize(uint64(s.cfg.MaxEntitySize)),
	}, opts...)
	create, err := fpdu.NewCreate(all...).Build(s.peerID)
	if err != nil {
		return err
	}
	if err := s.w.Write(create); err != nil {
		return err
	}
	if _, err := s.expect(fpdu.VerbAckCreate); err != nil {
		return err
	}
	s.state = StateTransferring
	return nil
}

// SelectFile opens a receive transfer with SELECT/ACK_SELECT.
func (s *Session) SelectFile(fileName string, opts ...fpdu.SelectOption) error {
	if s.state != StateConnected {
		return fmt.Errorf("select in state %s", s.state)
	}
	all := append([]fpdu.SelectOption{
		fpdu.WithSelectFileName(fileName),
		fpdu.WithSelectTransferID(s.cfg.TransferID),
	}, opts...)
	sel, err := fpdu.NewSelect(all...).Build(s.peerID)
	if err != nil {
		return err
	}
	if err := s.w.Write(sel); err != nil {
		return err
	}
	if _, err := s.expect(fpdu.VerbAckSelect); err != nil {
		return err
	}
	s.state = StateTransferring
	return nil
}

// SendData streams r through DTF FPDUs, exchanging a SYN/ACK_SYN pair
// at the negotiated interval. A transport timeout is returned as-is:
// it is recoverable and the caller decides whether to retry, resume,
// or abort.
func (s *Session) SendData(r io.Reader) (int64, error) {
	if s.state != StateTransferring {
		return 0, fmt.Errorf("send data in state %s", s.state)
	}

	chunk := make([]byte, s.cfg.MaxEntitySize)
	interval := int(s.cfg.SyncIntervalKB) * 1024
	var total int64
	for {
		if err := s.checkpoint(); err != nil {
			return total, err
		}
		n, err := r.Read(chunk)
		// A DTF never straddles a sync boundary: the restart offset is
		// the sync ordinal times the interval, so every SYN must account
		// for exactly the bytes sent before it.
		data := chunk[:n]
		for len(data) > 0 {
			take := len(data)
			if s.SyncPointsEnabled() && take > interval-s.sinceSync {
				take = interval - s.sinceSync
			}
			if werr := s.w.Write(fpdu.NewDTF(s.peerID, data[:take])); werr != nil {
				return total, werr
			}
			data = data[take:]
			total += int64(take)
			s.bytesSent += uint64(take)
			s.sinceSync += take
			if s.SyncPointsEnabled() && s.sinceSync == interval {
				if serr := s.syncPoint(); serr != nil {
					return total, serr
				}
			}
		}
		if err == io.EOF {
			return total, nil
		}
		if err != nil {
			return total, err
		}
	}
}

// syncPoint runs one SYN/ACK_SYN exchange and advances the restart
// position to the acknowledged PI_20 value.
func (s *Session) syncPoint() error {
	s.state = StateSynchronizing
	s.syncSeq++
	syn, err := fpdu.NewSyn(s.peerID, s.syncSeq)
	if err != nil {
		return err
	}
	if err := s.w.Write(syn); err != nil {
		return err
	}
	ack, err := s.expect(fpdu.VerbAckSyn)
	if err != nil {
		return err
	}
	if v, ok := ack.Param(param.SyncNumber); ok {
		s.advanceSync(v.Uint())
	}
	s.sinceSync = 0
	s.state = StateTransferring
	return nil
}

// advanceSync is the only mutation point for the restart position; it
// never moves backward, replayed or out-of-order acknowledgements are
// ignored.
func (s *Session) advanceSync(n uint64) {
	if n > s.lastSync {
		s.lastSync = n
		s.log.Debug().Uint64("sync_point", n).Msg("sync point acknowledged")
	}
}

// CompleteSend finishes the data phase (DTF_END/ACK) and releases the
// session (RELEASE/ACK_RELEASE).
func (s *Session) CompleteSend() error {
	if s.state != StateTransferring {
		return fmt.Errorf("complete in state %s", s.state)
	}
	s.state = StateCompleting

	end, err := fpdu.NewDTFEnd(s.peerID, 0)
	if err != nil {
		return err
	}
	if err := s.w.Write(end); err != nil {
		return err
	}
	if _, err := s.expect(fpdu.VerbAckDTFEnd); err != nil {
		return err
	}
	return s.release()
}

// ReceiveData consumes the peer's data phase, writing payload bytes to
// w and answering SYN with ACK_SYN, until DTF_END arrives.
func (s *Session) ReceiveData(w io.Writer) (int64, error) {
	if s.state != StateTransferring {
		return 0, fmt.Errorf("receive data in state %s", s.state)
	}

	var total int64
	for {
		if err := s.checkpoint(); err != nil {
			return total, err
		}
		f, err := s.r.Read()
		if err != nil {
			return total, err
		}

		switch {
		case f.Verb.IsData():
			var n int64
			if f.MultiArticle() {
				n, err = frame.CopyArticles(w, f.Data)
			} else {
				var written int
				written, err = w.Write(f.Data)
				n = int64(written)
			}
			total += n
			s.bytesReceived += uint64(n)
			if err != nil {
				return total, err
			}
		case f.Verb == fpdu.VerbSyn:
			s.state = StateSynchronizing
			v, _ := f.Param(param.SyncNumber)
			ack, aerr := fpdu.NewAckSyn(s.peerID, v.Uint())
			if aerr != nil {
				return total, aerr
			}
			if werr := s.w.Write(ack); werr != nil {
				return total, werr
			}
			s.advanceSync(v.Uint())
			s.state = StateTransferring
		case f.Verb == fpdu.VerbDTFEnd:
			s.state = StateCompleting
			ack, aerr := fpdu.NewAckDTFEnd(s.peerID, nil)
			if aerr != nil {
				return total, aerr
			}
			if werr := s.w.Write(ack); werr != nil {
				return total, werr
			}
			return total, nil
		case f.Verb == fpdu.VerbAbort:
			s.state = StateAborted
			return total, s.diagError(f)
		default:
			return total, s.abortUnexpected(f, fpdu.VerbDTF)
		}
	}
}

// CompleteReceive releases the session after ReceiveData returned.
func (s *Session) CompleteReceive() error {
	if s.state != StateCompleting {
		return fmt.Errorf("complete in state %s", s.state)
	}
	return s.release()
}

// Release closes the session with RELEASE/ACK_RELEASE without a data
// phase exchange, for sessions that never opened a transfer or whose
// data phase already ended.
func (s *Session) Release() error {
	switch s.state {
	case StateConnected, StateTransferring, StateCompleting:
		return s.release()
	}
	return fmt.Errorf("release in state %s", s.state)
}

// release runs RELEASE/ACK_RELEASE and closes the machine.
func (s *Session) release() error {
	if err := s.w.Write(fpdu.NewRelease(s.peerID)); err != nil {
		return err
	}
	if _, err := s.expect(fpdu.VerbAckRelease); err != nil {
		return err
	}
	s.state = StateClosed
	s.log.Debug().Msg("session released")
	return nil
}

// Abort sends ABORT with an optional diagnostic and moves to Aborted.
func (s *Session) Abort(diag []byte) error {
	if s.state == StateClosed || s.state == StateAborted {
		return nil
	}
	s.state = StateAborted
	abort, err := fpdu.NewAbort(s.peerID, diag)
	if err != nil {
		return err
	}
	return s.w.Write(abort)
}

// checkpoint observes the cancellation flag between protocol steps.
func (s *Session) checkpoint() error {
	if !s.cancelled.Load() {
		return nil
	}
	s.log.Info().Msg("cancellation observed, aborting")
	if err := s.Abort(nil); err != nil {
		return err
	}
	return ErrCancelled
}

// expect reads the next FPDU and verifies the verb. A peer ABORT or a
// non-zero diagnostic in the awaited verb moves the machine to Aborted.
func (s *Session) expect(want fpdu.Verb) (*fpdu.FPDU, error) {
	f, err := s.r.Read()
	if err != nil {
		return nil, err
	}
	s.w.SetEBCDIC(s.r.PeerEBCDIC())

	if f.Verb == fpdu.VerbAbort && want != fpdu.VerbAbort {
		s.state = StateAborted
		return nil, s.diagError(f)
	}
	if f.Verb != want {
		return nil, s.abortUnexpected(f, want)
	}
	if code := f.Diagnostic(); code != 0 {
		s.state = StateAborted
		return nil, s.diagError(f)
	}
	return f, nil
}

func (s *Session) diagError(f *fpdu.FPDU) error {
	code := []byte{0, 0, 0}
	if v, ok := f.Param(param.Diag); ok {
		code = v.Data
	}
	return &DiagnosticError{Verb: f.Verb, Code: code}
}

func (s *Session) abortUnexpected(f *fpdu.FPDU, want fpdu.Verb) error {
	err := &UnexpectedFPDUError{Got: f.Verb, Want: want}
	if aerr := s.Abort(nil); aerr != nil && !errors.Is(aerr, ErrCancelled) {
		s.log.Warn().Err(aerr).Msg("abort after unexpected FPDU failed")
	}
	return err
}
