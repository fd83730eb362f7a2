package serialcomm

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockTransport struct {
	readCh chan []byte
	errCh  chan error

	mu      sync.Mutex
	opens   int
	closes  int
	openErr error
	opened  bool
	lastCfg Config
	written bytes.Buffer
	info    PortInfo
}

func newMockTransport() *mockTransport {
	return &mockTransport{
		readCh: make(chan []byte, 16),
		errCh:  make(chan error, 1),
		info:   PortInfo{Name: "/dev/ttyUSB0", IsUSB: true, HasUSBIDs: true, VendorID: 0x0403, ProductID: 0x6001},
	}
}

func (m *mockTransport) Open(_ context.Context, cfg Config) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.openErr != nil {
		return m.openErr
	}
	m.opens++
	m.opened = true
	m.lastCfg = cfg
	return nil
}

// Read behaves like a port with a short read timeout.
func (m *mockTransport) Read(p []byte) (int, error) {
	select {
	case b := <-m.readCh:
		return copy(p, b), nil
	case err := <-m.errCh:
		return 0, err
	case <-time.After(2 * time.Millisecond):
		return 0, nil
	}
}

func (m *mockTransport) Write(p []byte) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.opened {
		return 0, ErrPortNotOpen
	}
	return m.written.Write(p)
}

func (m *mockTransport) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closes++
	m.opened = false
	return nil
}

func (m *mockTransport) Info() PortInfo { return m.info }

func (m *mockTransport) writtenString() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.written.String()
}

func (m *mockTransport) counts() (opens, closes int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.opens, m.closes
}

type forgettingTransport struct {
	*mockTransport
	forgets int
}

func (f *forgettingTransport) Forget(context.Context) error {
	f.forgets++
	return nil
}

func connectedAdapter(t *testing.T, mt *mockTransport) *Adapter {
	t.Helper()
	a := New(mt, Config{})
	require.NoError(t, a.Connect(context.Background()))
	t.Cleanup(func() { _ = a.Disconnect() })
	return a
}

func TestNew_DefaultConfig(t *testing.T) {
	a := New(newMockTransport(), Config{})
	cfg := a.Config()

	assert.Equal(t, Baud9600, cfg.BaudRate)
	assert.Equal(t, DataBits8, cfg.DataBits)
	assert.Equal(t, StopBits1, cfg.StopBits)
	assert.Equal(t, ParityNone, cfg.Parity)
	assert.Equal(t, StateDisconnected, a.State())
	assert.False(t, a.IsConnected())
}

func TestNew_OverridesWinKeyByKey(t *testing.T) {
	a := New(newMockTransport(), Config{BaudRate: Baud115200})
	cfg := a.Config()

	assert.Equal(t, Baud115200, cfg.BaudRate)
	assert.Equal(t, DataBits8, cfg.DataBits)
	assert.Equal(t, StopBits1, cfg.StopBits)
	assert.Equal(t, ParityNone, cfg.Parity)
}

func TestConnect_OpensWithEffectiveConfig(t *testing.T) {
	mt := newMockTransport()
	a := New(mt, Config{BaudRate: Baud19200, Parity: ParityEven})

	require.NoError(t, a.Connect(context.Background()))
	defer a.Disconnect()

	assert.True(t, a.IsConnected())
	assert.Equal(t, Baud19200, mt.lastCfg.BaudRate)
	assert.Equal(t, ParityEven, mt.lastCfg.Parity)
	assert.Equal(t, DataBits8, mt.lastCfg.DataBits)
}

func TestConnect_TwiceOpensOnce(t *testing.T) {
	mt := newMockTransport()
	a := connectedAdapter(t, mt)

	require.NoError(t, a.Connect(context.Background()))

	opens, _ := mt.counts()
	assert.Equal(t, 1, opens)
	assert.True(t, a.IsConnected())
}

func TestConnect_OpenFailureLeavesDisconnected(t *testing.T) {
	mt := newMockTransport()
	mt.openErr = errors.New("device busy")
	a := New(mt, Config{})

	err := a.Connect(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "device busy")
	assert.Equal(t, StateDisconnected, a.State())
	assert.EqualValues(t, 1, a.Metrics().ConnectionFailures.Load())

	// A later attempt may succeed.
	mt.mu.Lock()
	mt.openErr = nil
	mt.mu.Unlock()
	require.NoError(t, a.Connect(context.Background()))
	require.NoError(t, a.Disconnect())
}

func TestConnect_InvalidConfig(t *testing.T) {
	mt := newMockTransport()
	a := New(mt, Config{BaudRate: 1234})

	err := a.Connect(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid baud rate")

	opens, _ := mt.counts()
	assert.Zero(t, opens)
	assert.Equal(t, StateDisconnected, a.State())
}

func TestConnect_NilTransport(t *testing.T) {
	a := New(nil, Config{})
	assert.ErrorIs(t, a.Connect(context.Background()), ErrNilTransport)
	assert.Equal(t, UnknownDeviceIdentifier, a.DeviceIdentifier())
}

func TestDisconnect_BeforeConnectIsNoop(t *testing.T) {
	mt := newMockTransport()
	a := New(mt, Config{})

	require.NoError(t, a.Disconnect())
	_, closes := mt.counts()
	assert.Zero(t, closes)
}

func TestDisconnect_ClosesTransportOnce(t *testing.T) {
	mt := newMockTransport()
	a := New(mt, Config{})
	require.NoError(t, a.Connect(context.Background()))

	require.NoError(t, a.Disconnect())
	assert.False(t, a.IsConnected())
	require.NoError(t, a.Disconnect())

	_, closes := mt.counts()
	assert.Equal(t, 1, closes)
	assert.EqualValues(t, 1, a.Metrics().Disconnections.Load())
}

func TestReceive_InvokesCallbackOncePerChunk(t *testing.T) {
	mt := newMockTransport()
	a := connectedAdapter(t, mt)

	got := make(chan string, 4)
	a.SetOnReceiveFunc(func(chunk string) { got <- chunk })

	mt.readCh <- []byte("OK\r\n")

	select {
	case chunk := <-got:
		assert.Equal(t, "OK\r\n", chunk)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for chunk")
	}

	select {
	case extra := <-got:
		t.Fatalf("unexpected second callback with %q", extra)
	case <-time.After(20 * time.Millisecond):
	}
}

func TestReceive_ReplacedCallback(t *testing.T) {
	mt := newMockTransport()
	a := connectedAdapter(t, mt)

	first := make(chan string, 1)
	second := make(chan string, 1)
	a.SetOnReceiveFunc(func(chunk string) { first <- chunk })
	a.SetOnReceiveFunc(func(chunk string) { second <- chunk })

	mt.readCh <- []byte("ping")

	select {
	case chunk := <-second:
		assert.Equal(t, "ping", chunk)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for chunk")
	}
	assert.Empty(t, first)
}

func TestReceive_SplitMultibyteRune(t *testing.T) {
	mt := newMockTransport()
	a := connectedAdapter(t, mt)

	var (
		mu  sync.Mutex
		buf string
	)
	a.SetOnReceiveFunc(func(chunk string) {
		mu.Lock()
		buf += chunk
		mu.Unlock()
	})

	// "é" is 0xC3 0xA9; deliver it across two transport reads.
	mt.readCh <- []byte("caf\xc3")
	mt.readCh <- []byte("\xa9\r\n")

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return buf == "café\r\n"
	}, time.Second, 5*time.Millisecond)
}

func TestReceive_ReadErrorReachesErrorCallback(t *testing.T) {
	mt := newMockTransport()
	a := connectedAdapter(t, mt)

	errs := make(chan error, 1)
	a.SetOnErrorFunc(func(err error) { errs <- err })

	cause := errors.New("device unplugged")
	mt.errCh <- cause

	select {
	case err := <-errs:
		assert.ErrorIs(t, err, cause)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for read error")
	}
	assert.EqualValues(t, 1, a.Metrics().ReadErrors.Load())

	// The adapter still tears down cleanly after a read failure.
	require.NoError(t, a.Disconnect())
}

func TestWrite_ReachesTransport(t *testing.T) {
	mt := newMockTransport()
	a := connectedAdapter(t, mt)

	require.NoError(t, a.Write(context.Background(), "AT\r\n"))

	require.Eventually(t, func() bool {
		return mt.writtenString() == "AT\r\n"
	}, time.Second, 5*time.Millisecond)
	assert.EqualValues(t, 1, a.Metrics().SuccessfulWrites.Load())
}

func TestWrite_PreservesOrder(t *testing.T) {
	mt := newMockTransport()
	a := connectedAdapter(t, mt)

	for _, s := range []string{"one ", "two ", "three"} {
		require.NoError(t, a.Write(context.Background(), s))
	}

	require.Eventually(t, func() bool {
		return mt.writtenString() == "one two three"
	}, time.Second, 5*time.Millisecond)
}

func TestWrite_TruncatedRuneNotHeldBack(t *testing.T) {
	mt := newMockTransport()
	a := connectedAdapter(t, mt)

	require.NoError(t, a.Write(context.Background(), "AT\xe2"))

	require.Eventually(t, func() bool {
		return mt.writtenString() == "AT\uFFFD"
	}, time.Second, 5*time.Millisecond)
}

func TestWrite_NotConnected(t *testing.T) {
	a := New(newMockTransport(), Config{})
	assert.ErrorIs(t, a.Write(context.Background(), "AT\r\n"), ErrNotConnected)
}

func TestWrite_CancelledContext(t *testing.T) {
	mt := newMockTransport()
	a := connectedAdapter(t, mt)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, a.Write(ctx, "AT"), context.Canceled)
}

func TestWrite_FlushedBeforeDisconnect(t *testing.T) {
	mt := newMockTransport()
	a := New(mt, Config{})
	require.NoError(t, a.Connect(context.Background()))

	require.NoError(t, a.Write(context.Background(), "bye\r\n"))
	require.NoError(t, a.Disconnect())

	assert.Equal(t, "bye\r\n", mt.writtenString())
}

func TestReconnectAfterDisconnect(t *testing.T) {
	mt := newMockTransport()
	a := New(mt, Config{})

	for i := 0; i < 3; i++ {
		require.NoError(t, a.Connect(context.Background()))
		require.NoError(t, a.Write(context.Background(), "x"))
		require.NoError(t, a.Disconnect())
	}

	opens, closes := mt.counts()
	assert.Equal(t, 3, opens)
	assert.Equal(t, 3, closes)
	assert.Equal(t, "xxx", mt.writtenString())
}

func TestRevokeConnection_Unsupported(t *testing.T) {
	a := New(newMockTransport(), Config{})
	assert.ErrorIs(t, a.RevokeConnection(context.Background()), ErrUnsupportedOperation)
}

func TestRevokeConnection_CallsForgetOnce(t *testing.T) {
	ft := &forgettingTransport{mockTransport: newMockTransport()}
	a := New(ft, Config{})

	require.NoError(t, a.RevokeConnection(context.Background()))
	assert.Equal(t, 1, ft.forgets)
}

func TestDeviceIdentifier(t *testing.T) {
	mt := newMockTransport()
	assert.Equal(t, "6001", New(mt, Config{}).DeviceIdentifier())

	mt.info = PortInfo{Name: "/dev/ttyS0"}
	assert.Equal(t, UnknownDeviceIdentifier, New(mt, Config{}).DeviceIdentifier())
}

func TestScenario_ConnectReceiveWriteDisconnect(t *testing.T) {
	mt := newMockTransport()
	a := New(mt, Config{})

	cfg := a.Config()
	require.Equal(t, Baud9600, cfg.BaudRate)
	require.Equal(t, DataBits8, cfg.DataBits)
	require.Equal(t, StopBits1, cfg.StopBits)
	require.Equal(t, ParityNone, cfg.Parity)

	require.NoError(t, a.Connect(context.Background()))
	require.True(t, a.IsConnected())

	got := make(chan string, 1)
	a.SetOnReceiveFunc(func(chunk string) { got <- chunk })
	mt.readCh <- []byte("OK\r\n")

	select {
	case chunk := <-got:
		assert.Equal(t, "OK\r\n", chunk)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for chunk")
	}

	require.NoError(t, a.Write(context.Background(), "AT\r\n"))

	require.NoError(t, a.Disconnect())
	assert.False(t, a.IsConnected())
	require.NoError(t, a.Disconnect())

	assert.Equal(t, "AT\r\n", mt.writtenString())

	snap := a.MetricsSnapshot()
	assert.Equal(t, HealthStatusDown, snap.HealthStatus)
	assert.EqualValues(t, 1, snap.TotalChunks)
	assert.EqualValues(t, 4, snap.TotalBytesRead)
	assert.EqualValues(t, 4, snap.TotalBytesWritten)
}

func TestBufferPoolReusedAcrossConnections(t *testing.T) {
	mt := newMockTransport()
	pool := NewBufferPool(64)
	a := New(mt, Config{}, WithBufferPool(pool))

	require.NoError(t, a.Connect(context.Background()))
	require.NoError(t, a.Disconnect())
	require.NoError(t, a.Connect(context.Background()))
	require.NoError(t, a.Disconnect())

	stats := a.BufferPoolStats()
	assert.EqualValues(t, 2, stats.Gets)
	assert.EqualValues(t, 2, stats.Puts)
}
