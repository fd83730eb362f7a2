// Package bridge exposes a serialcomm.Communicator over HTTP: a WebSocket for
// two-way text, a Server-Sent Events stream of received chunks, and a small
// JSON API for status, device listing and connection control.
package bridge

import (
	"context"
	"io"
	"log"
	"net/http"
	"sync"
	"time"

	sse "github.com/alexandrevicenzi/go-sse"
	"github.com/goccy/go-json"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/Station-Manager/serialcomm"
)

const (
	// SerialEventsPath is the SSE channel carrying received chunks, each
	// encoded as a JSON string.
	SerialEventsPath = "/events/serial"
	// ErrorEventsPath is the SSE channel carrying read failures as JSON strings.
	ErrorEventsPath = "/events/errors"
	// MetricsEventsPath is the SSE channel carrying periodic MetricsSnapshot JSON.
	MetricsEventsPath = "/events/metrics"

	writeWait      = 5 * time.Second
	maxMessageSize = 64 * 1024
	sendBuffer     = 64
	eventBuffer    = 256
)

type Option func(*Bridge)

func WithLogger(logger zerolog.Logger) Option {
	return func(b *Bridge) {
		b.logger = logger
	}
}

// WithMetricsInterval publishes a metrics snapshot on MetricsEventsPath every
// d when the Communicator can report one. Zero disables it.
func WithMetricsInterval(d time.Duration) Option {
	return func(b *Bridge) {
		b.metricsInterval = d
	}
}

// WithDeviceLister replaces serialcomm.ListDevices for the /api/devices route.
func WithDeviceLister(fn func() []serialcomm.PortInfo) Option {
	return func(b *Bridge) {
		b.listDevices = fn
	}
}

// Bridge owns the receive and error callbacks of its Communicator and fans
// chunks out to every connected client.
type Bridge struct {
	comm        serialcomm.Communicator
	logger      zerolog.Logger
	listDevices func() []serialcomm.PortInfo
	upgrader    websocket.Upgrader
	events      *sse.Server
	// eventQueue feeds runEvents, the only caller of events.SendMessage.
	eventQueue chan event
	quit       chan struct{}
	closeOnce  sync.Once

	metricsInterval time.Duration
	metrics         *serialcomm.MetricsBroadcaster

	mu      sync.RWMutex
	clients map[*client]struct{}
}

type event struct {
	channel string
	data    string
}

type client struct {
	conn *websocket.Conn
	send chan []byte
}

func New(comm serialcomm.Communicator, opts ...Option) *Bridge {
	b := &Bridge{
		comm:        comm,
		logger:      zerolog.Nop(),
		listDevices: serialcomm.ListDevices,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
		events: sse.NewServer(&sse.Options{
			Logger: log.New(io.Discard, "", 0),
		}),
		clients:    make(map[*client]struct{}),
		eventQueue: make(chan event, eventBuffer),
		quit:       make(chan struct{}),
	}
	for _, opt := range opts {
		opt(b)
	}

	go b.runEvents()
	comm.SetOnReceiveFunc(b.broadcast)
	comm.SetOnErrorFunc(b.broadcastError)
	b.startMetrics()
	return b
}

func (b *Bridge) startMetrics() {
	src, ok := b.comm.(serialcomm.SnapshotSource)
	if !ok || b.metricsInterval <= 0 {
		return
	}
	mb, err := serialcomm.NewMetricsBroadcaster(src, 0, b.metricsInterval)
	if err != nil {
		b.logger.Error().Err(err).Msg("metrics broadcasting disabled")
		return
	}
	b.metrics = mb
	mb.Start()

	go func() {
		for snap := range mb.Channel() {
			data, err := json.Marshal(snap)
			if err != nil {
				b.logger.Error().Err(err).Msg("marshal metrics")
				continue
			}
			b.publish(MetricsEventsPath, string(data))
		}
	}()
}

// Handler returns the router serving every bridge route.
func (b *Bridge) Handler() http.Handler {
	r := mux.NewRouter()
	r.HandleFunc("/ws", b.serveWS).Methods(http.MethodGet)
	r.PathPrefix("/events/").Handler(b.events)

	// Registered on the root router: a subrouter answers a method mismatch with 404.
	r.HandleFunc("/api/status", b.status).Methods(http.MethodGet)
	r.HandleFunc("/api/devices", b.devices).Methods(http.MethodGet)
	r.HandleFunc("/api/connect", b.connect).Methods(http.MethodPost)
	r.HandleFunc("/api/disconnect", b.disconnect).Methods(http.MethodPost)
	return r
}

// Close drops every client and stops the event server.
func (b *Bridge) Close() {
	b.closeOnce.Do(func() {
		b.mu.Lock()
		for c := range b.clients {
			delete(b.clients, c)
			close(c.send)
		}
		b.mu.Unlock()
		if b.metrics != nil {
			b.metrics.Stop()
		}
		close(b.quit)
		b.events.Shutdown()
	})
}

// runEvents hands queued events to the SSE server, so a slow SSE client
// stalls this goroutine and never the serial read path.
func (b *Bridge) runEvents() {
	for {
		select {
		case <-b.quit:
			return
		case ev := <-b.eventQueue:
			b.events.SendMessage(ev.channel, sse.SimpleMessage(ev.data))
		}
	}
}

// publish queues an SSE event, dropping it when the queue is full.
func (b *Bridge) publish(channel, data string) {
	select {
	case b.eventQueue <- event{channel: channel, data: data}:
	default:
		b.logger.Debug().Str("channel", channel).Msg("event queue full, dropping event")
	}
}

// publishText JSON-encodes s so CR and LF survive SSE framing.
func (b *Bridge) publishText(channel, s string) {
	data, err := json.Marshal(s)
	if err != nil {
		b.logger.Error().Err(err).Msg("marshal event")
		return
	}
	b.publish(channel, string(data))
}

func (b *Bridge) clientCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.clients)
}

func (b *Bridge) broadcast(chunk string) {
	b.publishText(SerialEventsPath, chunk)

	b.mu.RLock()
	defer b.mu.RUnlock()
	for c := range b.clients {
		select {
		case c.send <- []byte(chunk):
		default:
			b.logger.Warn().Str("remote", c.conn.RemoteAddr().String()).Msg("client too slow, dropping chunk")
		}
	}
}

func (b *Bridge) broadcastError(err error) {
	b.logger.Error().Err(err).Msg("serial read error")
	b.publishText(ErrorEventsPath, err.Error())
}

func (b *Bridge) register(c *client) {
	b.mu.Lock()
	b.clients[c] = struct{}{}
	b.mu.Unlock()
}

func (b *Bridge) unregister(c *client) {
	b.mu.Lock()
	if _, ok := b.clients[c]; ok {
		delete(b.clients, c)
		close(c.send)
	}
	b.mu.Unlock()
}

func (b *Bridge) serveWS(w http.ResponseWriter, r *http.Request) {
	conn, err := b.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already replied to the client.
		b.logger.Debug().Err(err).Msg("websocket upgrade failed")
		return
	}

	c := &client{conn: conn, send: make(chan []byte, sendBuffer)}
	b.register(c)
	b.logger.Debug().Str("remote", conn.RemoteAddr().String()).Msg("websocket client connected")

	go b.writePump(c)
	b.readPump(c)
}

// readPump forwards text frames to the device until the client goes away.
func (b *Bridge) readPump(c *client) {
	defer b.unregister(c)

	c.conn.SetReadLimit(maxMessageSize)
	for {
		mt, msg, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
		if mt != websocket.TextMessage {
			continue
		}
		if err = b.comm.Write(context.Background(), string(msg)); err != nil {
			b.logger.Warn().Err(err).Msg("writing client frame to device")
		}
	}
}

// writePump is the only goroutine writing to c.conn.
func (b *Bridge) writePump(c *client) {
	defer c.conn.Close()

	for msg := range c.send {
		_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
			return
		}
	}
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	_ = c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
}

type statusResponse struct {
	Connected bool                        `json:"connected"`
	Device    string                      `json:"device"`
	Clients   int                         `json:"clients"`
	Metrics   *serialcomm.MetricsSnapshot `json:"metrics,omitempty"`
}

type errorResponse struct {
	Error string `json:"error"`
}

type deviceResponse struct {
	Name         string `json:"name"`
	IsUSB        bool   `json:"is_usb"`
	Identifier   string `json:"identifier"`
	SerialNumber string `json:"serial_number,omitempty"`
	Product      string `json:"product,omitempty"`
}

func (b *Bridge) status(w http.ResponseWriter, _ *http.Request) {
	resp := statusResponse{
		Connected: b.comm.IsConnected(),
		Device:    b.comm.DeviceIdentifier(),
		Clients:   b.clientCount(),
	}
	if m, ok := b.comm.(serialcomm.SnapshotSource); ok {
		snap := m.MetricsSnapshot()
		resp.Metrics = &snap
	}
	b.writeJSON(w, http.StatusOK, resp)
}

func (b *Bridge) devices(w http.ResponseWriter, _ *http.Request) {
	ports := b.listDevices()
	resp := make([]deviceResponse, 0, len(ports))
	for _, p := range ports {
		resp = append(resp, deviceResponse{
			Name:         p.Name,
			IsUSB:        p.IsUSB,
			Identifier:   p.DeviceIdentifier(),
			SerialNumber: p.SerialNumber,
			Product:      p.Product,
		})
	}
	b.writeJSON(w, http.StatusOK, resp)
}

func (b *Bridge) connect(w http.ResponseWriter, r *http.Request) {
	if err := b.comm.Connect(r.Context()); err != nil {
		b.writeJSON(w, http.StatusBadGateway, errorResponse{Error: err.Error()})
		return
	}
	b.status(w, r)
}

func (b *Bridge) disconnect(w http.ResponseWriter, r *http.Request) {
	if err := b.comm.Disconnect(); err != nil {
		b.writeJSON(w, http.StatusBadGateway, errorResponse{Error: err.Error()})
		return
	}
	b.status(w, r)
}

func (b *Bridge) writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		b.logger.Debug().Err(err).Msg("encoding response")
	}
}
