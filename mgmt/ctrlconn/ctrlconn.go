// Package ctrlconn maintains the connection from the dataplane process to a controller.
package ctrlconn

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"net"
	"time"

	"github.com/pkg/math"
	"github.com/usnistgov/patchpanel/core/logging"
	"github.com/usnistgov/patchpanel/core/nnduration"
	"go.uber.org/zap"
	"inet.af/netaddr"
)

var logger = logging.New("ctrlconn")

// Defaults.
const (
	DefaultRedialInitial = 100
	DefaultRedialMaximum = 5000
	MaxLineLength        = 65536
)

// Executor executes a command line and returns its reply.
type Executor interface {
	Execute(line string) (reply []byte, exit bool)
}

// Config contains controller connection configuration.
type Config struct {
	// Controller is the controller TCP address, such as "127.0.0.1:5555".
	Controller string `json:"controller"`

	// RedialInitial is the initial backoff period before reconnecting.
	// The default is 100ms.
	RedialInitial nnduration.Milliseconds `json:"redialInitial,omitempty"`

	// RedialMaximum is the maximum backoff period before reconnecting.
	// The default is 5s.
	RedialMaximum nnduration.Milliseconds `json:"redialMaximum,omitempty"`
}

// Validate checks the controller address.
func (cfg Config) Validate() error {
	if _, e := netaddr.ParseIPPort(cfg.Controller); e != nil {
		return fmt.Errorf("controller address: %w", e)
	}
	return nil
}

func (cfg Config) backoff() (initial, maximum time.Duration) {
	initial = cfg.RedialInitial.DurationOr(DefaultRedialInitial)
	maximum = cfg.RedialMaximum.DurationOr(DefaultRedialMaximum)
	return initial, time.Duration(math.MaxInt64(int64(initial), int64(maximum)))
}

// Client executes commands received from a controller.
type Client struct {
	cfg      Config
	exec     Executor
	nRedials int
}

// New creates a Client.
func New(cfg Config, exec Executor) (*Client, error) {
	if e := cfg.Validate(); e != nil {
		return nil, e
	}
	return &Client{cfg: cfg, exec: exec}, nil
}

// NRedials returns how many times the connection has been re-established.
func (c *Client) NRedials() int {
	return c.nRedials
}

// Run connects to the controller and serves commands until an exit command or ctx cancellation.
// A lost connection is redialed with exponential backoff.
// Returns nil after an exit command.
func (c *Client) Run(ctx context.Context) error {
	initial, maximum := c.cfg.backoff()
	backoff := initial
	for {
		connected, exit, e := c.session(ctx)
		switch {
		case exit:
			return nil
		case ctx.Err() != nil:
			return ctx.Err()
		case connected:
			backoff = initial
		}
		logger.Warn("controller disconnected",
			zap.String("controller", c.cfg.Controller),
			zap.Duration("backoff", backoff),
			zap.Error(e),
		)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
		backoff = time.Duration(math.MinInt64(int64(backoff*2), int64(maximum)))
		c.nRedials++
	}
}

func (c *Client) session(ctx context.Context) (connected, exit bool, e error) {
	var dialer net.Dialer
	conn, e := dialer.DialContext(ctx, "tcp", c.cfg.Controller)
	if e != nil {
		return false, false, e
	}
	defer conn.Close()
	logger.Info("controller connected", zap.Stringer("local", conn.LocalAddr()), zap.Stringer("controller", conn.RemoteAddr()))

	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	scanner := bufio.NewScanner(conn)
	scanner.Buffer(make([]byte, 4096), MaxLineLength)
	for scanner.Scan() {
		reply, exit := c.exec.Execute(scanner.Text())
		if _, e = conn.Write(append(reply, '\n')); e != nil {
			return true, exit, e
		}
		if exit {
			return true, true, nil
		}
	}
	if e = scanner.Err(); e == nil {
		e = io.EOF
	}
	return true, false, e
}
