package serialcomm

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Option configures an Adapter.
type Option func(*Adapter)

// WithLogger sets the logger. The default discards everything.
func WithLogger(logger zerolog.Logger) Option {
	return func(a *Adapter) {
		a.logger = logger
	}
}

// WithMetrics shares a Metrics instance, e.g. across reconnecting adapters.
func WithMetrics(m *Metrics) Option {
	return func(a *Adapter) {
		if m != nil {
			a.metrics = m
		}
	}
}

// WithBufferPool sets the pool transport read buffers are taken from.
func WithBufferPool(bp *BufferPool) Option {
	return func(a *Adapter) {
		a.pool = bp
	}
}

// Adapter turns a byte-oriented Transport into a text Communicator. Bytes
// read from the transport are decoded as UTF-8 and handed to the receive
// callback; strings passed to Write are encoded and sent to the transport.
//
// The receive and error callbacks run on the adapter's read goroutine and
// must not call Disconnect.
type Adapter struct {
	transport Transport
	cfg       Config
	logger    zerolog.Logger
	metrics   *Metrics
	pool      *BufferPool

	state connState

	cbMu      sync.RWMutex
	onReceive ReceiveFunc
	onError   ErrorFunc

	// writeMu serialises writes and guards sess.
	writeMu sync.Mutex
	sess    *session
}

// session holds the streams and goroutine signals of one connection.
type session struct {
	cancel       context.CancelFunc
	outbound     *io.PipeWriter
	inboundDone  chan struct{}
	loopDone     chan struct{}
	outboundDone chan struct{}
}

// New creates an Adapter for t. Non-zero fields of overrides replace the
// defaults (9600 baud, 8 data bits, 1 stop bit, no parity). The transport is
// not touched until Connect.
func New(t Transport, overrides Config, opts ...Option) *Adapter {
	a := &Adapter{
		transport: t,
		cfg:       DefaultConfig().Merge(overrides),
		logger:    zerolog.Nop(),
		metrics:   &Metrics{},
	}
	for _, opt := range opts {
		opt(a)
	}
	if a.pool == nil {
		a.pool = NewBufferPool(a.cfg.ReadBufferSize)
	}
	return a
}

// Config returns the effective configuration.
func (a *Adapter) Config() Config {
	return a.cfg
}

func (a *Adapter) State() State {
	return a.state.load()
}

func (a *Adapter) IsConnected() bool {
	return a.state.load() == StateConnected
}

// DeviceIdentifier returns the transport's USB product ID in hex, or "unknown".
func (a *Adapter) DeviceIdentifier() string {
	if a.transport == nil {
		return UnknownDeviceIdentifier
	}
	return a.transport.Info().DeviceIdentifier()
}

func (a *Adapter) SetOnReceiveFunc(fn ReceiveFunc) {
	a.cbMu.Lock()
	a.onReceive = fn
	a.cbMu.Unlock()
}

func (a *Adapter) SetOnErrorFunc(fn ErrorFunc) {
	a.cbMu.Lock()
	a.onError = fn
	a.cbMu.Unlock()
}

func (a *Adapter) Metrics() *Metrics {
	return a.metrics
}

func (a *Adapter) MetricsSnapshot() MetricsSnapshot {
	return a.metrics.Snapshot(a.IsConnected(), time.Now())
}

func (a *Adapter) BufferPoolStats() PoolStats {
	return a.pool.Stats()
}

// Connect opens the transport and starts the read loop and write pipe.
// It is a no-op when already connected.
func (a *Adapter) Connect(ctx context.Context) error {
	if a.transport == nil {
		return ErrNilTransport
	}
	if !a.state.transition(StateDisconnected, StateConnecting) {
		st := a.state.load()
		if st == StateConnected {
			return nil
		}
		return fmt.Errorf("%w: connect while %s", ErrInvalidState, st)
	}
	a.metrics.ConnectionAttempts.Inc()

	if err := ValidateConfig(a.cfg); err != nil {
		a.abortConnect()
		return fmt.Errorf("invalid serial port configuration: %w", err)
	}

	if err := a.transport.Open(ctx, a.cfg); err != nil {
		a.abortConnect()
		a.logger.Error().Err(err).Str("port", a.transport.Info().Name).Msg("serial connect failed")
		return err
	}

	inR, inW := io.Pipe()
	outR, outW := io.Pipe()
	pumpCtx, cancel := context.WithCancel(context.Background())

	s := &session{
		cancel:       cancel,
		outbound:     outW,
		inboundDone:  make(chan struct{}),
		loopDone:     make(chan struct{}),
		outboundDone: make(chan struct{}),
	}

	a.writeMu.Lock()
	a.sess = s
	a.writeMu.Unlock()

	go a.pumpInbound(pumpCtx, inW, s.inboundDone)
	go a.readLoop(inR, s.loopDone)
	go a.pumpOutbound(outR, s.outboundDone)

	a.metrics.recordConnect(time.Now())
	a.state.transition(StateConnecting, StateConnected)

	a.logger.Info().
		Str("port", a.transport.Info().Name).
		Str("device", a.DeviceIdentifier()).
		Int("baud", a.cfg.BaudRate.Int()).
		Int("data_bits", a.cfg.DataBits.Int()).
		Stringer("stop_bits", a.cfg.StopBits).
		Stringer("parity", a.cfg.Parity).
		Msg("serial connected")
	return nil
}

func (a *Adapter) abortConnect() {
	a.metrics.recordConnectFailure(time.Now())
	a.state.transition(StateConnecting, StateDisconnected)
}

// Disconnect stops the read loop, releases the pipes and closes the
// transport. It is a no-op when not connected. An in-flight Write is allowed
// to finish before the write pipe is closed.
func (a *Adapter) Disconnect() error {
	if !a.state.transition(StateConnected, StateDisconnecting) {
		if st := a.state.load(); st != StateDisconnected {
			return fmt.Errorf("%w: disconnect while %s", ErrInvalidState, st)
		}
		return nil
	}

	a.writeMu.Lock()
	s := a.sess
	a.writeMu.Unlock()

	// Inbound teardown must finish before the writer is closed.
	s.cancel()
	<-s.inboundDone
	<-s.loopDone

	a.writeMu.Lock()
	_ = s.outbound.Close()
	a.sess = nil
	a.writeMu.Unlock()
	<-s.outboundDone

	err := a.transport.Close()
	a.metrics.recordDisconnect(time.Now())
	a.state.transition(StateDisconnecting, StateDisconnected)

	if err != nil {
		a.logger.Error().Err(err).Msg("serial close failed")
		return fmt.Errorf("closing serial port: %w", err)
	}
	a.logger.Info().Str("port", a.transport.Info().Name).Msg("serial disconnected")
	return nil
}

// RevokeConnection asks the transport to forget the device's authorization.
func (a *Adapter) RevokeConnection(ctx context.Context) error {
	f, ok := a.transport.(Forgetter)
	if !ok {
		return ErrUnsupportedOperation
	}
	return f.Forget(ctx)
}

// Write encodes data as UTF-8 and queues it for the transport. It blocks
// until the write pipe accepts the bytes; there is no local buffering. Each
// call is encoded on its own, so a truncated sequence at the end of data is
// sent as U+FFFD rather than held for the next call.
func (a *Adapter) Write(ctx context.Context, data string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	a.writeMu.Lock()
	defer a.writeMu.Unlock()

	if a.state.load() != StateConnected || a.sess == nil {
		return ErrNotConnected
	}
	if len(data) == 0 {
		return nil
	}

	start := time.Now()
	encoded, err := encodeText(data)
	if err == nil {
		_, err = a.sess.outbound.Write(encoded)
	}
	a.metrics.recordWrite(err, time.Since(start), time.Now())
	if err != nil {
		a.logger.Error().Err(err).Int("len", len(data)).Msg("serial write failed")
		return fmt.Errorf("writing to serial port: %w", err)
	}
	return nil
}

// pumpInbound copies transport bytes into the decoder pipe until ctx is
// cancelled or the transport fails.
func (a *Adapter) pumpInbound(ctx context.Context, w *io.PipeWriter, done chan<- struct{}) {
	defer close(done)

	buf := a.pool.Get()
	defer a.pool.Put(buf)

	for {
		if ctx.Err() != nil {
			_ = w.Close()
			return
		}

		n, err := a.transport.Read(buf)
		if n > 0 {
			a.metrics.TransportReads.Inc()
			a.metrics.BytesRead.Add(int64(n))
			if _, werr := w.Write(buf[:n]); werr != nil {
				// read loop has gone away
				return
			}
		}
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, io.EOF) {
				_ = w.Close()
				return
			}
			_ = w.CloseWithError(fmt.Errorf("reading from transport: %w", err))
			return
		}
	}
}

// readLoop delivers decoded chunks to the receive callback as soon as they
// are available.
func (a *Adapter) readLoop(r *io.PipeReader, done chan<- struct{}) {
	defer close(done)
	defer r.Close()

	dec := newTextDecoder(r)
	buf := make([]byte, decodeBufferSize)

	for {
		n, err := dec.Read(buf)
		if n > 0 {
			a.deliver(string(buf[:n]))
		}
		if err != nil {
			if !errors.Is(err, io.EOF) {
				a.reportReadError(err)
			}
			return
		}
	}
}

func (a *Adapter) deliver(chunk string) {
	a.metrics.recordChunk(time.Now())

	a.cbMu.RLock()
	fn := a.onReceive
	a.cbMu.RUnlock()

	if fn != nil {
		fn(chunk)
	}
}

func (a *Adapter) reportReadError(err error) {
	a.metrics.recordReadError(time.Now())
	a.logger.Error().Err(err).Str("port", a.transport.Info().Name).Msg("serial read failed")

	a.cbMu.RLock()
	fn := a.onError
	a.cbMu.RUnlock()

	if fn != nil {
		fn(err)
	}
}

// pumpOutbound copies encoded bytes from the write pipe to the transport.
func (a *Adapter) pumpOutbound(r *io.PipeReader, done chan<- struct{}) {
	defer close(done)

	_, err := io.Copy(transportWriter{a: a}, r)
	if err != nil {
		a.logger.Error().Err(err).Msg("serial outbound pipe failed")
	}
	// Unblock any writer still waiting on the pipe.
	_ = r.CloseWithError(err)
}

// transportWriter writes everything it is given to the transport.
type transportWriter struct {
	a *Adapter
}

func (tw transportWriter) Write(p []byte) (int, error) {
	written := 0
	for written < len(p) {
		n, err := tw.a.transport.Write(p[written:])
		written += n
		tw.a.metrics.BytesWritten.Add(int64(n))
		if err != nil {
			return written, err
		}
		if n == 0 {
			return written, io.ErrShortWrite
		}
	}
	return written, nil
}
