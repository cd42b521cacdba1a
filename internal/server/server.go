// Package server provides the TCP listener, per-connection handlers, and
// the command dispatcher.
package server

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

var log = logrus.New()

// SetLogger replaces the package-level logger.
func SetLogger(l *logrus.Logger) { log = l }

// Server accepts connections and runs one handler goroutine per client.
// Handler lifetimes are independent: one client's failure never touches
// another's session.
type Server struct {
	addr           string
	disp           *Dispatcher
	maxMessageSize uint32

	listener net.Listener
	quit     chan struct{}
	wg       sync.WaitGroup

	connMu sync.Mutex
	conns  map[net.Conn]struct{}
}

// New returns an unstarted server.
func New(addr string, disp *Dispatcher, maxMessageSize uint32) *Server {
	return &Server{
		addr:           addr,
		disp:           disp,
		maxMessageSize: maxMessageSize,
		quit:           make(chan struct{}),
		conns:          make(map[net.Conn]struct{}),
	}
}

// Start binds the listener and launches the accept loop.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", s.addr, err)
	}
	s.listener = ln
	log.Infof("Listening on %s", ln.Addr())

	s.wg.Add(1)
	go s.acceptLoop()
	return nil
}

// Addr returns the bound listener address. Valid after Start.
func (s *Server) Addr() net.Addr {
	return s.listener.Addr()
}

func (s *Server) acceptLoop() {
	defer s.wg.Done()
	var delay time.Duration
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			select {
			case <-s.quit:
				return
			default:
			}
			// Back off so a persistent failure (fd exhaustion) does not
			// spin the loop hot.
			if delay == 0 {
				delay = 5 * time.Millisecond
			} else {
				delay *= 2
				if delay > time.Second {
					delay = time.Second
				}
			}
			log.Errorf("Accept failed: %v (retrying in %v)", err, delay)
			select {
			case <-time.After(delay):
			case <-s.quit:
				return
			}
			continue
		}
		delay = 0

		s.track(conn)
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			defer s.untrack(conn)
			NewHandler(conn, s.disp, s.maxMessageSize).Run()
		}()
	}
}

func (s *Server) track(conn net.Conn) {
	s.connMu.Lock()
	s.conns[conn] = struct{}{}
	s.connMu.Unlock()
}

func (s *Server) untrack(conn net.Conn) {
	s.connMu.Lock()
	delete(s.conns, conn)
	s.connMu.Unlock()
}

// Shutdown stops accepting new connections and waits for in-flight
// handlers to finish. When ctx expires first, remaining connections are
// closed, which makes their blocked reads fail promptly and triggers
// transfer abort cleanup.
func (s *Server) Shutdown(ctx context.Context) error {
	close(s.quit)
	if s.listener != nil {
		s.listener.Close()
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		log.Info("All connections drained")
		return nil
	case <-ctx.Done():
		s.connMu.Lock()
		n := len(s.conns)
		for conn := range s.conns {
			conn.Close()
		}
		s.connMu.Unlock()
		log.Warnf("Shutdown timeout, closed %d remaining connection(s)", n)
		<-done
		return ctx.Err()
	}
}
