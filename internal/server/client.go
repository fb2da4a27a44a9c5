package server

import (
	"fmt"
	"math/rand"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gobwas/ws"
)

// sendBufferSize is the per-client outbound queue. Fan-out never
// blocks on a peer: when the buffer is full the frame is dropped for
// that peer only.
const sendBufferSize = 256

// Client is one WebSocket connection. Subscription state is mutated
// only by the connection's reader goroutine; the set itself is still
// locked because stats and fan-out read it concurrently.
type Client struct {
	id   string
	ip   string
	conn net.Conn

	send      chan []byte
	done      chan struct{}
	closeOnce sync.Once

	// writeMu serializes all conn writes: the write pump's batches and
	// the control frames written from other goroutines.
	writeMu sync.Mutex

	subscriptions *SubscriptionSet

	connectedAt    time.Time
	lastActivityMS atomic.Int64
}

func newClient(id, ip string, conn net.Conn) *Client {
	c := &Client{
		id:            id,
		ip:            ip,
		conn:          conn,
		send:          make(chan []byte, sendBufferSize),
		done:          make(chan struct{}),
		subscriptions: NewSubscriptionSet(),
		connectedAt:   time.Now(),
	}
	c.touch()
	return c
}

// touch records frame activity.
func (c *Client) touch() {
	c.lastActivityMS.Store(time.Now().UnixMilli())
}

// writeControl writes a single control frame under the write lock, so
// it can never interleave with the write pump's batched frames.
func (c *Client) writeControl(frame ws.Frame) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return ws.WriteFrame(c.conn, frame)
}

// close shuts the transport and releases the write pump. Safe to call
// from any goroutine, any number of times.
func (c *Client) close() {
	c.closeOnce.Do(func() {
		if c.conn != nil {
			c.conn.Close()
		}
		close(c.done)
	})
}

// newSocketID mints a process-unique socket id in the
// "<unix_ms>.<random>" shape surfaced to clients.
func (s *Server) newSocketID() string {
	for {
		id := fmt.Sprintf("%d.%d", time.Now().UnixMilli(), rand.Int63n(1_000_000_000))
		if _, taken := s.clients.Load(id); !taken {
			return id
		}
	}
}

// SubscriptionSet is a locked set of channel names.
type SubscriptionSet struct {
	mu       sync.RWMutex
	channels map[string]struct{}
}

func NewSubscriptionSet() *SubscriptionSet {
	return &SubscriptionSet{channels: make(map[string]struct{})}
}

func (s *SubscriptionSet) Add(channel string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.channels[channel] = struct{}{}
}

func (s *SubscriptionSet) Remove(channel string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.channels, channel)
}

func (s *SubscriptionSet) Has(channel string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.channels[channel]
	return ok
}

func (s *SubscriptionSet) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.channels)
}

// List returns a copy safe to iterate during teardown.
func (s *SubscriptionSet) List() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0, len(s.channels))
	for ch := range s.channels {
		out = append(out, ch)
	}
	return out
}
