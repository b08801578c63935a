package pesit

import (
	"bytes"
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sirosfoundation/go-pesit/internal/config"
	"github.com/sirosfoundation/go-pesit/internal/server"
	"github.com/sirosfoundation/go-pesit/internal/storage"
	"github.com/sirosfoundation/go-pesit/internal/storage/memory"
	"github.com/sirosfoundation/go-pesit/pkg/session"
)

// startServer runs a responder on a loopback port and returns its
// address and backing store.
func startServer(t *testing.T) (string, *memory.Store) {
	t.Helper()
	cfg := &config.Config{
		Server: config.ServerConfig{
			Address: "127.0.0.1:0",
			Name:    "CETOM1",
		},
		Transfer: config.TransferConfig{MaxEntitySize: 512},
		Partners: []config.PartnerConfig{
			{Name: "LOOP", Password: "pw"},
		},
	}
	store := memory.NewStore()
	srv := server.New(cfg, store, zerolog.Nop())
	go srv.Start()
	t.Cleanup(func() { srv.Shutdown(context.Background()) })

	deadline := time.Now().Add(2 * time.Second)
	for srv.Addr() == nil {
		if time.Now().After(deadline) {
			t.Fatal("server did not start")
		}
		time.Sleep(5 * time.Millisecond)
	}
	return srv.Addr().String(), store
}

func newClient(t *testing.T, addr, password string) *Client {
	t.Helper()
	c, err := NewClient(&ClientConfig{
		Address:        addr,
		Requester:      "LOOP",
		Server:         "CETOM1",
		Password:       password,
		SyncIntervalKB: 1,
		SyncWindow:     2,
		MaxEntitySize:  512,
	})
	require.NoError(t, err)
	return c
}

func TestNewClient_Validation(t *testing.T) {
	_, err := NewClient(nil)
	assert.Error(t, err)

	_, err = NewClient(&ClientConfig{Requester: "LOOP", Server: "CETOM1"})
	assert.Error(t, err)

	_, err = NewClient(&ClientConfig{Address: "host:1761"})
	assert.Error(t, err)
}

func TestSendAndReceiveFile(t *testing.T) {
	addr, _ := startServer(t)
	c := newClient(t, addr, "pw")

	payload := bytes.Repeat([]byte("pesit-payload! "), 200) // 3000 bytes
	status, err := c.SendFile(context.Background(), "FILE", uint64(len(payload)), bytes.NewReader(payload))
	require.NoError(t, err)
	assert.Equal(t, session.TransferCompleted, status.State)
	assert.Equal(t, uint64(len(payload)), status.Bytes)
	assert.GreaterOrEqual(t, status.LastSyncPoint, uint64(2))

	tracked, ok := c.Status(status.TransferID)
	require.True(t, ok)
	assert.Equal(t, session.TransferCompleted, tracked.State)

	var out bytes.Buffer
	rstatus, err := c.ReceiveFile(context.Background(), "FILE", status.TransferID, &out)
	require.NoError(t, err)
	assert.Equal(t, session.TransferCompleted, rstatus.State)
	assert.Equal(t, payload, out.Bytes())
	assert.Equal(t, uint64(len(payload)), rstatus.Bytes)
}

func TestSendFile_Refused(t *testing.T) {
	addr, _ := startServer(t)
	c := newClient(t, addr, "wrong")

	status, err := c.SendFile(context.Background(), "FILE", 0, bytes.NewReader([]byte("data")))
	require.Error(t, err)
	assert.True(t, errors.Is(err, session.ErrProtocolDiagnostic))
	assert.Equal(t, session.TransferAborted, status.State)
	assert.Zero(t, status.Bytes)

	// A refused connection has no acknowledged sync point, so the
	// transfer cannot be resumed.
	_, err = c.Resume(context.Background(), status.TransferID, "FILE", bytes.NewReader(nil))
	require.Error(t, err)
	assert.True(t, errors.Is(err, session.ErrNotResumable))
}

func TestResume_Gate(t *testing.T) {
	addr, _ := startServer(t)
	c := newClient(t, addr, "pw")

	payload := bytes.Repeat([]byte{0x42}, 2048)
	status, err := c.SendFile(context.Background(), "FILE", uint64(len(payload)), bytes.NewReader(payload))
	require.NoError(t, err)

	// Completed transfers are not resumable.
	_, err = c.Resume(context.Background(), status.TransferID, "FILE", bytes.NewReader(payload))
	require.Error(t, err)
	assert.True(t, errors.Is(err, session.ErrNotResumable))

	// Neither are transfers the client never ran.
	_, err = c.Resume(context.Background(), 999, "FILE", bytes.NewReader(nil))
	require.Error(t, err)
	assert.True(t, errors.Is(err, session.ErrNotResumable))
}

// truncatedReader fails after delivering its first n bytes, standing in
// for a source interrupted mid-transfer.
type truncatedReader struct {
	r io.Reader
	n int
}

func (r *truncatedReader) Read(p []byte) (int, error) {
	if r.n <= 0 {
		return 0, errors.New("source interrupted")
	}
	if len(p) > r.n {
		p = p[:r.n]
	}
	n, err := r.r.Read(p)
	r.n -= n
	return n, err
}

func TestResume_CompletesInterruptedSend(t *testing.T) {
	addr, store := startServer(t)
	c := newClient(t, addr, "pw")

	payload := bytes.Repeat([]byte("resume-me!"), 300) // 3000 bytes
	status, err := c.SendFile(context.Background(), "FILE", uint64(len(payload)),
		&truncatedReader{r: bytes.NewReader(payload), n: 2048})
	require.Error(t, err)
	assert.Equal(t, session.TransferFailed, status.State)
	assert.Equal(t, uint64(2), status.LastSyncPoint)

	// The responder notices the lost connection on its own clock.
	deadline := time.Now().Add(2 * time.Second)
	for {
		rec, gerr := store.GetTransferByLabel(context.Background(), "LOOP", status.TransferID)
		if gerr == nil && rec.Status == storage.StatusFailed {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("server never recorded the interruption")
		}
		time.Sleep(5 * time.Millisecond)
	}

	rstatus, err := c.Resume(context.Background(), status.TransferID, "FILE", bytes.NewReader(payload))
	require.NoError(t, err)
	assert.Equal(t, session.TransferCompleted, rstatus.State)
	assert.GreaterOrEqual(t, rstatus.LastSyncPoint, uint64(2))

	// The stored file is whole, not just the resumed tail.
	var out bytes.Buffer
	_, err = c.ReceiveFile(context.Background(), "FILE", rstatus.TransferID, &out)
	require.NoError(t, err)
	assert.Equal(t, payload, out.Bytes())
}

func TestCancel_NotInFlight(t *testing.T) {
	c := newClient(t, "127.0.0.1:1", "pw")
	assert.Error(t, c.Cancel(1))
}

func TestSendFile_ConnectionRefused(t *testing.T) {
	c := newClient(t, "127.0.0.1:1", "pw")
	_, err := c.SendFile(context.Background(), "FILE", 0, bytes.NewReader([]byte("x")))
	assert.Error(t, err)
}
