// Package mgmt provides the JSON-RPC 2.0 management server.
package mgmt

import (
	"errors"
	"fmt"
	"net"
	"net/rpc"
	"net/url"
	"os"
	"reflect"
	"strings"
	"sync"

	"github.com/powerman/rpc-codec/jsonrpc2"
	"github.com/usnistgov/patchpanel/core/logging"
	"go.uber.org/zap"
)

var logger = logging.New("mgmt")

// EnvMgmt is the environment variable that sets the listen URL.
// "0" disables the management server.
const EnvMgmt = "PATCHPANEL_MGMT"

// DefaultURL is the listen URL when EnvMgmt is unset.
const DefaultURL = "unix:///var/run/patchpanel-mgmt.sock"

// ErrDisabled indicates the management server is disabled by EnvMgmt.
var ErrDisabled = errors.New("management server disabled")

// ParseURL parses a management URL into network and address.
func ParseURL(mgmtURL string) (network, addr string, e error) {
	u, e := url.Parse(mgmtURL)
	if e != nil {
		return "", "", fmt.Errorf("management URL %q: %w", mgmtURL, e)
	}
	switch u.Scheme {
	case "unix":
		return u.Scheme, u.Path, nil
	case "tcp", "tcp4", "tcp6":
		return u.Scheme, u.Host, nil
	}
	return "", "", fmt.Errorf("unsupported management URL scheme %q", u.Scheme)
}

// URLFromEnv returns the listen URL from EnvMgmt.
func URLFromEnv() (string, error) {
	switch env := os.Getenv(EnvMgmt); env {
	case "0":
		return "", ErrDisabled
	case "":
		return DefaultURL, nil
	default:
		return env, nil
	}
}

// Server is a JSON-RPC 2.0 server.
type Server struct {
	rpc      *rpc.Server
	mutex    sync.Mutex
	listener net.Listener
	wg       sync.WaitGroup
}

// NewServer creates a Server.
func NewServer() *Server {
	return &Server{rpc: rpc.NewServer()}
}

// Register registers a management service.
// The service name is the type name of mg without "Mgmt" suffix.
func (s *Server) Register(mg any) error {
	typeName := reflect.Indirect(reflect.ValueOf(mg)).Type().Name()
	name := strings.TrimSuffix(typeName, "Mgmt")
	if e := s.rpc.RegisterName(name, mg); e != nil {
		return e
	}
	logger.Debug("service registered", zap.String("service", name))
	return nil
}

// Listen starts accepting connections on a management URL.
func (s *Server) Listen(mgmtURL string) error {
	network, addr, e := ParseURL(mgmtURL)
	if e != nil {
		return e
	}

	s.mutex.Lock()
	defer s.mutex.Unlock()
	if s.listener != nil {
		return errors.New("management server already started")
	}

	if network == "unix" {
		os.Remove(addr)
	}
	if s.listener, e = net.Listen(network, addr); e != nil {
		return fmt.Errorf("listen %s %s: %w", network, addr, e)
	}
	logger.Info("management server listening", zap.Stringer("addr", s.listener.Addr()))

	s.wg.Add(1)
	go s.serve(s.listener)
	return nil
}

// Addr returns the listen address, or nil if not listening.
func (s *Server) Addr() net.Addr {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

func (s *Server) serve(listener net.Listener) {
	defer s.wg.Done()
	for {
		conn, e := listener.Accept()
		if e != nil {
			if !errors.Is(e, net.ErrClosed) {
				logger.Warn("accept error", zap.Error(e))
			}
			return
		}
		go s.rpc.ServeCodec(jsonrpc2.NewServerCodec(conn, s.rpc))
	}
}

// Close stops accepting connections.
// Existing connections are served until the client closes them.
func (s *Server) Close() error {
	s.mutex.Lock()
	listener := s.listener
	s.listener = nil
	s.mutex.Unlock()

	if listener == nil {
		return nil
	}
	e := listener.Close()
	s.wg.Wait()
	return e
}

// Dial connects to a management server.
func Dial(mgmtURL string) (*jsonrpc2.Client, error) {
	network, addr, e := ParseURL(mgmtURL)
	if e != nil {
		return nil, e
	}
	return jsonrpc2.Dial(network, addr)
}
