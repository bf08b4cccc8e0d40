// Package ctrlhub accepts dataplane connections on the controller side.
package ctrlhub

import (
	"bufio"
	"errors"
	"fmt"
	"net"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gogf/greuse"
	"github.com/usnistgov/patchpanel/core/logging"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"inet.af/netaddr"
)

var logger = logging.New("ctrlhub")

// DefaultTimeout is the default command timeout.
const DefaultTimeout = 5 * time.Second

// ErrNoClient indicates the client ID is not connected.
var ErrNoClient = errors.New("client not connected")

// Hub accepts connections from dataplane processes and relays commands to them.
type Hub struct {
	// Timeout limits each command exchange.
	Timeout time.Duration

	ln      net.Listener
	mutex   sync.Mutex
	clients map[int]*client
	closed  bool
	wg      sync.WaitGroup
}

type client struct {
	mutex sync.Mutex
	conn  net.Conn
	rd    *bufio.Reader
}

// exchange sends a command line and reads one reply line.
func (c *client) exchange(line string, timeout time.Duration) ([]byte, error) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	c.conn.SetDeadline(time.Now().Add(timeout))
	if _, e := fmt.Fprintln(c.conn, line); e != nil {
		return nil, e
	}
	reply, e := c.rd.ReadBytes('\n')
	if e != nil {
		return nil, e
	}
	return reply[:len(reply)-1], nil
}

// Listen creates a Hub listening on a TCP address.
// The listener sets SO_REUSEPORT so that a restarted controller can bind immediately.
func Listen(addr string) (*Hub, error) {
	ipp, e := netaddr.ParseIPPort(addr)
	if e != nil {
		return nil, fmt.Errorf("listen address: %w", e)
	}
	ln, e := greuse.Listen("tcp", ipp.String())
	if e != nil {
		return nil, e
	}
	logger.Info("controller listening", zap.Stringer("addr", ln.Addr()))

	h := &Hub{
		Timeout: DefaultTimeout,
		ln:      ln,
		clients: map[int]*client{},
	}
	h.wg.Add(1)
	go h.acceptLoop()
	return h, nil
}

// Addr returns the listen address.
func (h *Hub) Addr() net.Addr {
	return h.ln.Addr()
}

func (h *Hub) acceptLoop() {
	defer h.wg.Done()
	for {
		conn, e := h.ln.Accept()
		if e != nil {
			if !errors.Is(e, net.ErrClosed) {
				logger.Warn("accept error", zap.Error(e))
			}
			return
		}
		h.wg.Add(1)
		go func() {
			defer h.wg.Done()
			h.handshake(conn)
		}()
	}
}

// handshake asks a new connection for its client ID and registers it.
// A reconnecting client replaces its previous connection.
func (h *Hub) handshake(conn net.Conn) {
	c := &client{conn: conn, rd: bufio.NewReader(conn)}
	reply, e := c.exchange("_get_client_id", h.Timeout)
	if e != nil {
		logger.Warn("handshake error", zap.Stringer("remote", conn.RemoteAddr()), zap.Error(e))
		conn.Close()
		return
	}
	id, e := strconv.Atoi(strings.TrimSpace(string(reply)))
	if e != nil {
		logger.Warn("handshake invalid client ID", zap.Stringer("remote", conn.RemoteAddr()), zap.ByteString("reply", reply))
		conn.Close()
		return
	}

	h.mutex.Lock()
	defer h.mutex.Unlock()
	if h.closed {
		conn.Close()
		return
	}
	if old := h.clients[id]; old != nil {
		old.conn.Close()
	}
	h.clients[id] = c
	logger.Info("client connected", zap.Int("id", id), zap.Stringer("remote", conn.RemoteAddr()))
}

// Clients returns connected client IDs in ascending order.
func (h *Hub) Clients() (ids []int) {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	for id := range h.clients {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// Exec sends a command line to a client and returns its reply.
// A client whose connection fails is removed.
func (h *Hub) Exec(id int, line string) ([]byte, error) {
	h.mutex.Lock()
	c := h.clients[id]
	h.mutex.Unlock()
	if c == nil {
		return nil, fmt.Errorf("%w: %d", ErrNoClient, id)
	}

	reply, e := c.exchange(line, h.Timeout)
	if e != nil {
		h.remove(id, c)
		return nil, fmt.Errorf("client %d: %w", id, e)
	}
	return reply, nil
}

// Bye sends exit to every client and disconnects them.
func (h *Hub) Bye() (e error) {
	for _, id := range h.Clients() {
		if _, err := h.Exec(id, "exit"); err != nil {
			e = multierr.Append(e, err)
		}
		h.mutex.Lock()
		if c := h.clients[id]; c != nil {
			h.removeLocked(id, c)
		}
		h.mutex.Unlock()
	}
	return e
}

func (h *Hub) remove(id int, c *client) {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	h.removeLocked(id, c)
}

func (h *Hub) removeLocked(id int, c *client) {
	c.conn.Close()
	if h.clients[id] == c {
		delete(h.clients, id)
		logger.Info("client disconnected", zap.Int("id", id))
	}
}

// Close stops listening and disconnects every client.
func (h *Hub) Close() error {
	e := h.ln.Close()
	h.mutex.Lock()
	h.closed = true
	for id, c := range h.clients {
		h.removeLocked(id, c)
	}
	h.mutex.Unlock()
	h.wg.Wait()
	return e
}
