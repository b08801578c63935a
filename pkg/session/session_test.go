package session

import (
	"bytes"
	"errors"
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sirosfoundation/go-pesit/pkg/fpdu"
	"github.com/sirosfoundation/go-pesit/pkg/frame"
	"github.com/sirosfoundation/go-pesit/pkg/param"
)

// peer is a scripted remote side driven from a test goroutine. It uses
// t.Error (never Fatal) so failures from the goroutine are safe.
type peer struct {
	t *testing.T
	r *frame.Reader
	w *frame.Writer
}

func newPeer(t *testing.T, conn net.Conn) *peer {
	return &peer{t: t, r: frame.NewReader(conn), w: frame.NewWriter(conn)}
}

func (p *peer) read(want fpdu.Verb) *fpdu.FPDU {
	f, err := p.r.Read()
	if err != nil {
		p.t.Errorf("peer read: %v", err)
		return nil
	}
	if f.Verb != want {
		p.t.Errorf("peer read %s, want %s", f.Verb, want)
		return nil
	}
	return f
}

func (p *peer) write(f *fpdu.FPDU, err error) {
	if err != nil {
		p.t.Errorf("peer build: %v", err)
		return
	}
	if werr := p.w.Write(f); werr != nil {
		p.t.Errorf("peer write: %v", werr)
	}
}

// accept answers the CONNECT/ACONNECT exchange, assigning id to the
// connection.
func (p *peer) accept(id byte) *fpdu.FPDU {
	connect := p.read(fpdu.VerbConnect)
	if connect == nil {
		return nil
	}
	p.write(fpdu.NewAConnect(id, connect.IDSrc, nil))
	return connect
}

func TestConnect(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	done := make(chan struct{})
	go func() {
		defer close(done)
		p := newPeer(t, server)
		connect := p.accept(7)
		if connect == nil {
			return
		}
		if v, ok := connect.Param(param.Requester); !ok || v.Text() != "LOOP" {
			t.Errorf("requester = %q, want LOOP", v.Text())
		}
		if v, ok := connect.Param(param.Server); !ok || v.Text() != "CETOM1" {
			t.Errorf("server = %q, want CETOM1", v.Text())
		}
		if _, ok := connect.Param(param.SyncOptions); ok {
			t.Error("CONNECT carries PI_07 although sync points are disabled")
		}
	}()

	s := New(client, Config{Requester: "LOOP", Server: "CETOM1"})
	require.NoError(t, s.Connect())
	<-done

	assert.Equal(t, StateConnected, s.State())
	assert.Equal(t, byte(7), s.PeerID())
}

func TestConnect_Refused(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	go func() {
		p := newPeer(t, server)
		connect := p.read(fpdu.VerbConnect)
		if connect == nil {
			return
		}
		p.write(fpdu.NewAConnect(0, connect.IDSrc, []byte{0x22, 0x01, 0x00}))
	}()

	s := New(client, Config{Requester: "LOOP", Server: "CETOM1", Password: "s3cret"})
	err := s.Connect()
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrProtocolDiagnostic))

	var diag *DiagnosticError
	require.True(t, errors.As(err, &diag))
	assert.Equal(t, []byte{0x22, 0x01, 0x00}, diag.Code)
	assert.Equal(t, StateAborted, s.State())

	// The PI_05 password must never leak into error text.
	assert.NotContains(t, err.Error(), "s3cret")
}

func TestSendFlow(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	received := make(chan int, 1)
	go func() {
		p := newPeer(t, server)
		if p.accept(7) == nil {
			return
		}
		create := p.read(fpdu.VerbCreate)
		if create == nil {
			return
		}
		if v, ok := create.Param(param.FileName); !ok || v.Text() != "FILE" {
			t.Errorf("file name = %q, want FILE", v.Text())
		}
		p.write(fpdu.NewAckCreate(create.IDSrc, nil))

		var total int
		for {
			f, err := p.r.Read()
			if err != nil {
				t.Errorf("peer read: %v", err)
				return
			}
			switch {
			case f.Verb.IsData():
				total += len(f.Data)
			case f.Verb == fpdu.VerbSyn:
				v, _ := f.Param(param.SyncNumber)
				p.write(fpdu.NewAckSyn(f.IDSrc, v.Uint()))
			case f.Verb == fpdu.VerbDTFEnd:
				p.write(fpdu.NewAckDTFEnd(f.IDSrc, nil))
			case f.Verb == fpdu.VerbRelease:
				p.write(fpdu.NewAckRelease(f.IDSrc), nil)
				received <- total
				return
			default:
				t.Errorf("peer read unexpected %s", f.Verb)
				return
			}
		}
	}()

	s := New(client, Config{
		Requester:      "LOOP",
		Server:         "CETOM1",
		SyncIntervalKB: 1,
		SyncWindow:     2,
		TransferID:     42,
		MaxEntitySize:  512,
	})
	require.NoError(t, s.Connect())
	require.NoError(t, s.CreateFile("FILE", fpdu.WithFileSize(3072)))
	assert.Equal(t, StateTransferring, s.State())

	payload := bytes.Repeat([]byte{0xAB}, 3072)
	n, err := s.SendData(bytes.NewReader(payload))
	require.NoError(t, err)
	assert.Equal(t, int64(3072), n)

	require.NoError(t, s.CompleteSend())
	assert.Equal(t, StateClosed, s.State())

	// 3072 bytes at a 1 KB interval crosses the threshold three times.
	assert.Equal(t, uint64(3), s.LastSyncPoint())
	assert.Equal(t, uint64(3072), s.BytesSent())
	assert.Equal(t, 3072, <-received)
}

// Entities are split so a SYN always lands on an exact interval
// boundary: the restart offset is the sync ordinal times the interval,
// which only holds when no DTF straddles a boundary.
func TestSendData_SyncOnExactBoundary(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	atSync := make(chan int, 4)
	go func() {
		p := newPeer(t, server)
		if p.accept(7) == nil {
			return
		}
		create := p.read(fpdu.VerbCreate)
		if create == nil {
			return
		}
		p.write(fpdu.NewAckCreate(create.IDSrc, nil))

		var total int
		for {
			f, err := p.r.Read()
			if err != nil {
				t.Errorf("peer read: %v", err)
				return
			}
			switch {
			case f.Verb.IsData():
				total += len(f.Data)
			case f.Verb == fpdu.VerbSyn:
				atSync <- total
				v, _ := f.Param(param.SyncNumber)
				p.write(fpdu.NewAckSyn(f.IDSrc, v.Uint()))
			case f.Verb == fpdu.VerbDTFEnd:
				p.write(fpdu.NewAckDTFEnd(f.IDSrc, nil))
			case f.Verb == fpdu.VerbRelease:
				p.write(fpdu.NewAckRelease(f.IDSrc), nil)
				close(atSync)
				return
			default:
				t.Errorf("peer read unexpected %s", f.Verb)
				return
			}
		}
	}()

	// 700 does not divide 1024, so entities must be split at the
	// boundary for the SYNs to land at exactly 1024 and 2048.
	s := New(client, Config{
		Requester:      "LOOP",
		Server:         "CETOM1",
		SyncIntervalKB: 1,
		TransferID:     42,
		MaxEntitySize:  700,
	})
	require.NoError(t, s.Connect())
	require.NoError(t, s.CreateFile("FILE"))

	payload := bytes.Repeat([]byte{0xCD}, 2500)
	n, err := s.SendData(bytes.NewReader(payload))
	require.NoError(t, err)
	assert.Equal(t, int64(2500), n)
	require.NoError(t, s.CompleteSend())

	assert.Equal(t, 1024, <-atSync)
	assert.Equal(t, 2048, <-atSync)
	assert.Equal(t, uint64(2), s.LastSyncPoint())
}

// A resumed session continues the sync sequence from the restart point,
// so every ordinal keeps naming the same absolute file position across
// interruptions.
func TestSendData_ResumedSyncOrdinals(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	ordinals := make(chan uint64, 2)
	go func() {
		p := newPeer(t, server)
		if p.accept(7) == nil {
			return
		}
		create := p.read(fpdu.VerbCreate)
		if create == nil {
			return
		}
		if v, ok := create.Param(param.RestartPoint); !ok || v.Uint() != 2 {
			t.Errorf("restart point = %d, want 2", v.Uint())
		}
		p.write(fpdu.NewAckCreate(create.IDSrc, nil))

		for {
			f, err := p.r.Read()
			if err != nil {
				t.Errorf("peer read: %v", err)
				return
			}
			switch {
			case f.Verb.IsData():
			case f.Verb == fpdu.VerbSyn:
				v, _ := f.Param(param.SyncNumber)
				ordinals <- v.Uint()
				p.write(fpdu.NewAckSyn(f.IDSrc, v.Uint()))
			case f.Verb == fpdu.VerbDTFEnd:
				p.write(fpdu.NewAckDTFEnd(f.IDSrc, nil))
			case f.Verb == fpdu.VerbRelease:
				p.write(fpdu.NewAckRelease(f.IDSrc), nil)
				close(ordinals)
				return
			default:
				t.Errorf("peer read unexpected %s", f.Verb)
				return
			}
		}
	}()

	s := New(client, Config{
		Requester:        "LOOP",
		Server:           "CETOM1",
		SyncIntervalKB:   1,
		TransferID:       42,
		MaxEntitySize:    512,
		InitialSyncPoint: 2,
	})
	assert.Equal(t, uint64(2), s.LastSyncPoint())
	require.NoError(t, s.Connect())
	require.NoError(t, s.CreateFile("FILE", fpdu.WithRestartPoint(2)))

	n, err := s.SendData(bytes.NewReader(bytes.Repeat([]byte{0xEE}, 1024)))
	require.NoError(t, err)
	assert.Equal(t, int64(1024), n)
	require.NoError(t, s.CompleteSend())

	assert.Equal(t, uint64(3), <-ordinals)
	assert.Equal(t, uint64(3), s.LastSyncPoint())
}

func TestSendData_Cancelled(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	aborted := make(chan struct{})
	go func() {
		p := newPeer(t, server)
		if p.accept(7) == nil {
			return
		}
		create := p.read(fpdu.VerbCreate)
		if create == nil {
			return
		}
		p.write(fpdu.NewAckCreate(create.IDSrc, nil))
		if p.read(fpdu.VerbAbort) != nil {
			close(aborted)
		}
	}()

	s := New(client, Config{Requester: "LOOP", Server: "CETOM1"})
	require.NoError(t, s.Connect())
	require.NoError(t, s.CreateFile("FILE"))

	s.Cancel()
	_, err := s.SendData(bytes.NewReader([]byte("never sent")))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrCancelled))
	assert.Equal(t, StateAborted, s.State())
	<-aborted
}

func TestReceiveData(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	go func() {
		p := newPeer(t, server)
		if p.accept(7) == nil {
			return
		}
		sel := p.read(fpdu.VerbSelect)
		if sel == nil {
			return
		}
		p.write(fpdu.NewAckSelect(sel.IDSrc, nil))

		// Single-article data, a sync point, then multi-article data.
		p.write(fpdu.NewDTF(sel.IDSrc, []byte("hello")), nil)
		p.write(fpdu.NewSyn(sel.IDSrc, 1))
		p.read(fpdu.VerbAckSyn)
		p.write(&fpdu.FPDU{
			Verb:  fpdu.VerbDTF,
			IDDst: sel.IDSrc,
			IDSrc: 3,
			Data:  []byte{0, 3, 'A', 'B', 'C', 0, 2, 'D', 'E'},
		}, nil)
		p.write(fpdu.NewSyn(sel.IDSrc, 2))
		p.read(fpdu.VerbAckSyn)
		// A replayed sync point must not move the restart position back.
		p.write(fpdu.NewSyn(sel.IDSrc, 1))
		p.read(fpdu.VerbAckSyn)
		p.write(fpdu.NewDTFEnd(sel.IDSrc, 0))
		p.read(fpdu.VerbAckDTFEnd)
		rel := p.read(fpdu.VerbRelease)
		if rel == nil {
			return
		}
		p.write(fpdu.NewAckRelease(rel.IDSrc), nil)
	}()

	s := New(client, Config{Requester: "LOOP", Server: "CETOM1", SyncIntervalKB: 1})
	require.NoError(t, s.Connect())
	require.NoError(t, s.SelectFile("FILE"))

	var out bytes.Buffer
	n, err := s.ReceiveData(&out)
	require.NoError(t, err)
	assert.Equal(t, int64(10), n)
	assert.Equal(t, "helloABCDE", out.String())
	assert.Equal(t, uint64(2), s.LastSyncPoint())
	assert.Equal(t, uint64(10), s.BytesReceived())

	require.NoError(t, s.CompleteReceive())
	assert.Equal(t, StateClosed, s.State())
}

func TestReceiveData_PeerAbort(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	go func() {
		p := newPeer(t, server)
		if p.accept(7) == nil {
			return
		}
		sel := p.read(fpdu.VerbSelect)
		if sel == nil {
			return
		}
		p.write(fpdu.NewAckSelect(sel.IDSrc, nil))
		p.write(fpdu.NewDTF(sel.IDSrc, []byte("part")), nil)
		p.write(fpdu.NewAbort(sel.IDSrc, []byte{0x30, 0x00, 0x05}))
	}()

	s := New(client, Config{Requester: "LOOP", Server: "CETOM1"})
	require.NoError(t, s.Connect())
	require.NoError(t, s.SelectFile("FILE"))

	var out bytes.Buffer
	n, err := s.ReceiveData(&out)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrProtocolDiagnostic))
	assert.Equal(t, int64(4), n)
	assert.Equal(t, StateAborted, s.State())
}

func TestCreateAndRelease(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	done := make(chan struct{})
	go func() {
		defer close(done)
		p := newPeer(t, server)
		if p.accept(7) == nil {
			return
		}
		create := p.read(fpdu.VerbCreate)
		if create == nil {
			return
		}
		if v, ok := create.Param(param.FileName); !ok || v.Text() != "FILE" {
			t.Errorf("file name = %q, want FILE", v.Text())
		}
		if v, ok := create.Param(param.RecordLength); !ok || v.Uint() != 506 {
			t.Errorf("record length = %d, want 506", v.Uint())
		}
		if v, ok := create.Param(param.MaxEntitySize); !ok || v.Uint() != 512 {
			t.Errorf("max entity size = %d, want 512", v.Uint())
		}
		if v, ok := create.Param(param.ReservationSize); !ok || v.Uint() != 1 {
			t.Errorf("reservation = %d KB, want 1", v.Uint())
		}
		p.write(fpdu.NewAckCreate(create.IDSrc, nil))

		rel := p.read(fpdu.VerbRelease)
		if rel == nil {
			return
		}
		p.write(fpdu.NewAckRelease(rel.IDSrc), nil)
	}()

	s := New(client, Config{Requester: "LOOP", Server: "CETOM1", MaxEntitySize: 512})
	require.NoError(t, s.Connect())
	require.NoError(t, s.CreateFile("FILE",
		fpdu.WithRecordLength(506),
		fpdu.WithFileSize(1024),
	))
	assert.Equal(t, StateTransferring, s.State())

	require.NoError(t, s.Release())
	assert.Equal(t, StateClosed, s.State())
	<-done
}

func TestStateGuards(t *testing.T) {
	client, _ := net.Pipe()
	defer client.Close()

	s := New(client, Config{Requester: "LOOP", Server: "CETOM1"})
	assert.Error(t, s.CreateFile("FILE"))
	assert.Error(t, s.SelectFile("FILE"))
	assert.Error(t, s.Release())
	_, err := s.SendData(bytes.NewReader(nil))
	assert.Error(t, err)
	_, err = s.ReceiveData(&bytes.Buffer{})
	assert.Error(t, err)
	assert.Error(t, s.CompleteReceive())
}
