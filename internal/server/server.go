// Package server provides the PeSIT responder.
//
// The server accepts TCP (optionally TLS) connections and answers the
// requester's verb sequence:
//
//   - CONNECT    - partner identification and password check, answered
//     with ACONNECT carrying the assigned connection id
//   - CREATE     - opens an inbound transfer; received data is stored
//     through the storage layer when DTF_END arrives
//   - SELECT     - opens an outbound transfer; previously stored file
//     content is streamed back in DTF entities
//   - SYN        - acknowledged with ACK_SYN at the same sync point
//   - RELEASE    - acknowledged and the connection drained
//
// Each connection is handled by its own goroutine. Transfer history,
// sync-point positions and file content go through [storage.Store], so
// interrupted transfers can be resumed from the last acknowledged sync
// point.
package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"

	"github.com/rs/zerolog"

	"github.com/sirosfoundation/go-pesit/internal/config"
	"github.com/sirosfoundation/go-pesit/internal/storage"
	"github.com/sirosfoundation/go-pesit/pkg/fpdu"
	"github.com/sirosfoundation/go-pesit/pkg/frame"
	"github.com/sirosfoundation/go-pesit/pkg/param"
	"github.com/sirosfoundation/go-pesit/pkg/transport"
)

// Diagnostic codes answered on refusals.
var (
	diagAccessRefused = []byte{0x22, 0x01, 0x00}
	diagFileNotFound  = []byte{0x23, 0x04, 0x00}
	diagProtocolError = []byte{0x30, 0x01, 0x00}
)

// Server is the PeSIT responder
type Server struct {
	cfg    *config.Config
	store  storage.Store
	logger zerolog.Logger

	mu       sync.Mutex
	listener *transport.Listener
	closed   bool
	nextID   byte

	wg sync.WaitGroup
}

// New creates a new PeSIT server
func New(cfg *config.Config, store storage.Store, logger zerolog.Logger) *Server {
	return &Server{
		cfg:    cfg,
		store:  store,
		logger: logger.With().Str("component", "server").Logger(),
		nextID: 1,
	}
}

// Start listens on the configured address and serves until Shutdown.
func (s *Server) Start() error {
	tcfg := transport.DefaultConfig()
	tcfg.ReadTimeout = s.cfg.Server.ReadTimeout
	tcfg.WriteTimeout = s.cfg.Server.WriteTimeout
	if s.cfg.Server.TLS.Enabled {
		tlsCfg, err := transport.ServerTLS(s.cfg.Server.TLS.CertFile, s.cfg.Server.TLS.KeyFile)
		if err != nil {
			return fmt.Errorf("loading TLS keypair: %w", err)
		}
		tcfg.TLS = tlsCfg
	}

	l, err := transport.Listen(s.cfg.Server.Address, tcfg)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", s.cfg.Server.Address, err)
	}

	s.mu.Lock()
	s.listener = l
	s.mu.Unlock()

	s.logger.Info().
		Str("addr", s.cfg.Server.Address).
		Bool("tls", s.cfg.Server.TLS.Enabled).
		Msg("server listening")
	return s.serve(l)
}

func (s *Server) serve(l *transport.Listener) error {
	for {
		conn, err := l.Accept()
		if err != nil {
			s.mu.Lock()
			closed := s.closed
			s.mu.Unlock()
			if closed {
				return nil
			}
			return err
		}
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			defer conn.Close()
			s.handleConn(conn, conn.RemoteAddr().String())
		}()
	}
}

// Addr returns the bound listener address, or nil before Start binds.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Shutdown stops accepting connections and waits for in-flight
// sessions to drain or the context to expire.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	s.closed = true
	l := s.listener
	s.mu.Unlock()
	if l != nil {
		l.Close()
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Server) assignConnID() byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	if s.nextID == 0 {
		s.nextID = 2
	}
	return s.nextID
}

func (s *Server) handleConn(conn io.ReadWriter, remote string) {
	h := &connHandler{
		srv: s,
		r:   frame.NewReader(conn),
		w:   frame.NewWriter(conn),
		log: s.logger.With().Str("remote", remote).Logger(),
	}
	if err := h.run(); err != nil {
		h.log.Warn().Err(err).Msg("connection ended with error")
	}
}

// connHandler drives the responder side of one connection.
type connHandler struct {
	srv *Server
	r   *frame.Reader
	w   *frame.Writer
	log zerolog.Logger

	connID  byte
	peerID  byte
	partner string

	// Sync options announced by the requester in PI_07.
	syncIntervalKB uint16
}

func (h *connHandler) read() (*fpdu.FPDU, error) {
	f, err := h.r.Read()
	if err != nil {
		return nil, err
	}
	h.w.SetEBCDIC(h.r.PeerEBCDIC())
	return f, nil
}

func (h *connHandler) run() error {
	if err := h.connect(); err != nil {
		return err
	}

	for {
		f, err := h.read()
		if err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, transport.ErrClosed) {
				return nil
			}
			return err
		}
		switch f.Verb {
		case fpdu.VerbCreate:
			err = h.handleReceive(f)
		case fpdu.VerbSelect:
			err = h.handleSend(f)
		case fpdu.VerbRelease:
			if werr := h.w.Write(fpdu.NewAckRelease(h.peerID)); werr != nil {
				return werr
			}
			h.log.Debug().Msg("connection released")
			return nil
		case fpdu.VerbAbort:
			h.log.Debug().Msg("requester aborted connection")
			return nil
		default:
			h.log.Warn().Str("verb", f.Verb.String()).Msg("unexpected verb")
			abort, aerr := fpdu.NewAbort(h.peerID, diagProtocolError)
			if aerr != nil {
				return aerr
			}
			return h.w.Write(abort)
		}
		if err != nil {
			return err
		}
	}
}

// connect answers the CONNECT/ACONNECT exchange, checking the partner
// identification against the configured list.
func (h *connHandler) connect() error {
	f, err := h.read()
	if err != nil {
		return err
	}
	if f.Verb != fpdu.VerbConnect {
		return fmt.Errorf("expected CONNECT, got %s", f.Verb)
	}
	h.peerID = f.IDSrc

	requester, _ := f.Param(param.Requester)
	h.partner = requester.Text()
	if v, ok := f.Param(param.SyncOptions); ok && len(v.Data) == 3 {
		h.syncIntervalKB = uint16(v.Data[0])<<8 | uint16(v.Data[1])
	}

	if !h.authenticate(f) {
		// The refusal never names the expected credential.
		h.log.Warn().Str("partner", h.partner).Msg("access refused")
		refuse, err := fpdu.NewAConnect(0, h.peerID, diagAccessRefused)
		if err != nil {
			return err
		}
		return h.w.Write(refuse)
	}

	h.connID = h.srv.assignConnID()
	ack, err := fpdu.NewAConnect(h.connID, h.peerID, nil)
	if err != nil {
		return err
	}
	if err := h.w.Write(ack); err != nil {
		return err
	}
	h.log.Info().Str("partner", h.partner).Uint8("conn_id", h.connID).Msg("partner connected")
	return nil
}

func (h *connHandler) authenticate(f *fpdu.FPDU) bool {
	p, known := h.srv.cfg.Partner(h.partner)
	if !known {
		// Unlisted partners are admitted without a password check.
		return len(h.srv.cfg.Partners) == 0
	}
	if p.Password == "" {
		return true
	}
	pw, ok := f.Param(param.Password)
	return ok && pw.Text() == p.Password
}

// handleReceive runs the inbound data phase opened by CREATE. Content
// is buffered and stored when DTF_END arrives; each acknowledged sync
// point is persisted so the transfer can be resumed.
func (h *connHandler) handleReceive(create *fpdu.FPDU) error {
	ctx := context.Background()

	fileName, _ := create.Param(param.FileName)
	transferID, _ := create.Param(param.TransferID)

	rec, content, err := h.openReceiveRecord(ctx, fileName.Text(), transferID.Uint(), create)
	if err != nil {
		h.log.Error().Err(err).Msg("opening transfer record")
		refuse, aerr := fpdu.NewAckCreate(h.peerID, diagProtocolError)
		if aerr != nil {
			return aerr
		}
		return h.w.Write(refuse)
	}

	if err := h.w.Write(mustAck(fpdu.NewAckCreate(h.peerID, nil))); err != nil {
		return err
	}
	h.log.Info().
		Str("file", rec.FileName).
		Uint64("transfer_id", rec.TransferID).
		Msg("inbound transfer opened")

	for {
		f, err := h.read()
		if err != nil {
			h.srv.store.UpdateTransferStatus(ctx, rec.ID, storage.StatusFailed, err.Error())
			return err
		}
		switch {
		case f.Verb.IsData():
			data := f.Data
			if f.MultiArticle() {
				data = nil
				for _, a := range frame.ExtractArticles(f.Data) {
					data = append(data, a...)
				}
			}
			content = append(content, data...)
			if aerr := h.srv.store.AddBytes(ctx, rec.ID, uint64(len(data))); aerr != nil {
				h.log.Error().Err(aerr).Msg("recording byte count")
			}
		case f.Verb == fpdu.VerbSyn:
			v, _ := f.Param(param.SyncNumber)
			ack, aerr := fpdu.NewAckSyn(h.peerID, v.Uint())
			if aerr != nil {
				return aerr
			}
			if werr := h.w.Write(ack); werr != nil {
				return werr
			}
			// The acknowledged prefix must survive an interruption, or
			// the restart point would have nothing to restart from.
			if serr := h.srv.store.RecordSyncPoint(ctx, rec.ID, v.Uint()); serr != nil {
				h.log.Error().Err(serr).Uint64("sync_point", v.Uint()).Msg("recording sync point")
			}
			h.persistPartial(ctx, rec, content)
		case f.Verb == fpdu.VerbDTFEnd:
			prev := rec.FileID
			fileID, serr := h.srv.store.StoreFile(ctx, &storage.FileData{
				FileName: rec.FileName,
				Data:     content,
			})
			if serr != nil {
				h.srv.store.UpdateTransferStatus(ctx, rec.ID, storage.StatusFailed, serr.Error())
				refuse, aerr := fpdu.NewAckDTFEnd(h.peerID, diagProtocolError)
				if aerr != nil {
					return aerr
				}
				return h.w.Write(refuse)
			}
			rec.FileID = fileID
			rec.Status = storage.StatusCompleted
			h.srv.store.UpdateTransfer(ctx, rec)
			if prev != "" && prev != fileID {
				h.srv.store.DeleteFile(ctx, prev)
			}
			h.log.Info().
				Str("file", rec.FileName).
				Int("bytes", len(content)).
				Msg("inbound transfer completed")
			return h.w.Write(mustAck(fpdu.NewAckDTFEnd(h.peerID, nil)))
		case f.Verb == fpdu.VerbAbort:
			h.srv.store.UpdateTransferStatus(ctx, rec.ID, storage.StatusAborted, renderDiag(f))
			h.log.Warn().Str("file", rec.FileName).Msg("inbound transfer aborted")
			return nil
		default:
			h.srv.store.UpdateTransferStatus(ctx, rec.ID, storage.StatusFailed, "protocol error")
			abort, aerr := fpdu.NewAbort(h.peerID, diagProtocolError)
			if aerr != nil {
				return aerr
			}
			return h.w.Write(abort)
		}
	}
}

func (h *connHandler) openReceiveRecord(ctx context.Context, fileName string, transferID uint64, create *fpdu.FPDU) (*storage.TransferRecord, []byte, error) {
	// A restart point on CREATE resumes an interrupted transfer: the
	// existing record keeps its identity, returns to active, and the
	// content persisted at the last acknowledged sync point is reloaded
	// so the stored file ends up whole.
	if restart, ok := create.Param(param.RestartPoint); ok && restart.Uint() > 0 {
		rec, err := h.srv.store.GetTransferByLabel(ctx, h.partner, transferID)
		if err != nil {
			return nil, nil, fmt.Errorf("restart point %d for unknown transfer %d", restart.Uint(), transferID)
		}
		if !rec.Resumable() {
			return nil, nil, fmt.Errorf("transfer %d is not resumable", transferID)
		}
		content := h.reloadPartial(ctx, rec, restart.Uint())
		rec.Status = storage.StatusActive
		if err := h.srv.store.UpdateTransfer(ctx, rec); err != nil {
			return nil, nil, err
		}
		return rec, content, nil
	}

	rec := &storage.TransferRecord{
		TransferID:        transferID,
		Partner:           h.partner,
		Requester:         h.partner,
		Server:            h.srv.cfg.Server.Name,
		FileName:          fileName,
		Direction:         storage.DirectionReceive,
		Status:            storage.StatusActive,
		SyncPointsEnabled: h.syncIntervalKB > 0,
		SyncIntervalKB:    h.syncIntervalKB,
	}
	if err := h.srv.store.CreateTransfer(ctx, rec); err != nil {
		return nil, nil, err
	}
	return rec, nil, nil
}

// persistPartial stores the content received so far under the record,
// replacing the previous partial. An interrupted transfer then resumes
// from stored bytes instead of an empty buffer.
func (h *connHandler) persistPartial(ctx context.Context, rec *storage.TransferRecord, content []byte) {
	fileID, err := h.srv.store.StoreFile(ctx, &storage.FileData{
		FileName: rec.FileName,
		Data:     content,
	})
	if err != nil {
		h.log.Error().Err(err).Str("file", rec.FileName).Msg("persisting partial content")
		return
	}
	prev := rec.FileID
	rec.FileID = fileID
	if err := h.srv.store.UpdateTransfer(ctx, rec); err != nil {
		h.log.Error().Err(err).Str("file", rec.FileName).Msg("updating transfer record")
	}
	if prev != "" {
		h.srv.store.DeleteFile(ctx, prev)
	}
}

// reloadPartial restores the persisted prefix, truncated to the
// requester's restart offset. The interval recorded with the transfer
// governed the original SYN spacing, so it also converts the restart
// ordinal to bytes.
func (h *connHandler) reloadPartial(ctx context.Context, rec *storage.TransferRecord, restart uint64) []byte {
	if rec.FileID == "" {
		return nil
	}
	file, err := h.srv.store.GetFile(ctx, rec.FileID)
	if err != nil {
		h.log.Error().Err(err).Str("file_id", rec.FileID).Msg("reloading partial content")
		return nil
	}
	offset := int(restart) * int(rec.SyncIntervalKB) * 1024
	if offset > len(file.Data) {
		offset = len(file.Data)
	}
	return file.Data[:offset]
}

// handleSend runs the outbound data phase opened by SELECT, streaming
// previously stored content back to the requester.
func (h *connHandler) handleSend(sel *fpdu.FPDU) error {
	ctx := context.Background()

	transferID, _ := sel.Param(param.TransferID)
	rec, err := h.srv.store.GetTransferByLabel(ctx, h.partner, transferID.Uint())
	if err != nil || rec.FileID == "" {
		h.log.Warn().Uint64("transfer_id", transferID.Uint()).Msg("selected file not found")
		refuse, aerr := fpdu.NewAckSelect(h.peerID, diagFileNotFound)
		if aerr != nil {
			return aerr
		}
		return h.w.Write(refuse)
	}
	file, err := h.srv.store.GetFile(ctx, rec.FileID)
	if err != nil {
		refuse, aerr := fpdu.NewAckSelect(h.peerID, diagFileNotFound)
		if aerr != nil {
			return aerr
		}
		return h.w.Write(refuse)
	}

	if err := h.w.Write(mustAck(fpdu.NewAckSelect(h.peerID, nil))); err != nil {
		return err
	}
	h.log.Info().Str("file", rec.FileName).Msg("outbound transfer opened")

	// A restart point skips content already delivered: sync points are
	// spaced at the interval announced in CONNECT, and the ordinals of
	// new SYNs continue from the restart point so each ordinal keeps
	// meaning the same absolute position.
	data := file.Data
	interval := int(h.syncIntervalKB) * 1024
	var restartPoint uint64
	if restart, ok := sel.Param(param.RestartPoint); ok && restart.Uint() > 0 && interval > 0 {
		restartPoint = restart.Uint()
		offset := int(restartPoint) * interval
		if offset > len(data) {
			offset = len(data)
		}
		data = data[offset:]
	}

	// A DTF never straddles a sync boundary; the restart offset
	// arithmetic depends on every SYN accounting for exactly the bytes
	// sent before it.
	entity := h.srv.cfg.Transfer.MaxEntitySize
	syncSeq := restartPoint
	var sinceSync int
	for off := 0; off < len(data); {
		end := off + entity
		if end > len(data) {
			end = len(data)
		}
		if interval > 0 && end-off > interval-sinceSync {
			end = off + interval - sinceSync
		}
		if err := h.w.Write(fpdu.NewDTF(h.peerID, data[off:end])); err != nil {
			return err
		}
		sinceSync += end - off
		off = end
		if interval > 0 && sinceSync == interval {
			syncSeq++
			syn, serr := fpdu.NewSyn(h.peerID, syncSeq)
			if serr != nil {
				return serr
			}
			if werr := h.w.Write(syn); werr != nil {
				return werr
			}
			ack, rerr := h.read()
			if rerr != nil {
				return rerr
			}
			if ack.Verb != fpdu.VerbAckSyn {
				return fmt.Errorf("expected ACK_SYN, got %s", ack.Verb)
			}
			sinceSync = 0
		}
	}

	end, err := fpdu.NewDTFEnd(h.peerID, 0)
	if err != nil {
		return err
	}
	if err := h.w.Write(end); err != nil {
		return err
	}
	ack, err := h.read()
	if err != nil {
		return err
	}
	if ack.Verb != fpdu.VerbAckDTFEnd {
		return fmt.Errorf("expected ACK_DTF_END, got %s", ack.Verb)
	}
	h.log.Info().Str("file", rec.FileName).Int("bytes", len(data)).Msg("outbound transfer completed")
	return nil
}

func renderDiag(f *fpdu.FPDU) string {
	if v, ok := f.Param(param.Diag); ok {
		return v.Render()
	}
	return ""
}

// mustAck unwraps constructors that cannot fail with valid inputs.
func mustAck(f *fpdu.FPDU, err error) *fpdu.FPDU {
	if err != nil {
		panic(err)
	}
	return f
}
