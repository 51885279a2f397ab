package server

// TCP front-end for the overlay. Clients may speak RESP arrays
// (*N\r\n$len\r\n...) or the inline space-separated form; replies are the
// overlay's pre-framed RESP strings, written verbatim.

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"net"
	"strconv"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/tidekv/tidekv/metrics"
	"github.com/tidekv/tidekv/redis"
)

var errProtocol = errors.New("protocol error")

// Server accepts client connections and dispatches commands to the store.
type Server struct {
	store *redis.Store
	log   *zap.Logger

	mu     sync.Mutex
	ln     net.Listener
	conns  map[net.Conn]struct{}
	closed bool
	wg     sync.WaitGroup
}

// New creates a server over store.
func New(store *redis.Store, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{
		store: store,
		log:   logger,
		conns: make(map[net.Conn]struct{}),
	}
}

// ListenAndServe listens on addr and serves until Close.
func (s *Server) ListenAndServe(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	return s.Serve(ln)
}

// Serve accepts connections on ln until Close.
func (s *Server) Serve(ln net.Listener) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		ln.Close()
		return errors.New("server is closed")
	}
	s.ln = ln
	s.mu.Unlock()

	s.log.Info("listening", zap.String("addr", ln.Addr().String()))
	for {
		conn, err := ln.Accept()
		if err != nil {
			s.mu.Lock()
			closed := s.closed
			s.mu.Unlock()
			if closed {
				return nil
			}
			return err
		}
		s.mu.Lock()
		s.conns[conn] = struct{}{}
		s.mu.Unlock()
		s.wg.Add(1)
		go s.handleConn(conn)
	}
}

// Close stops accepting, closes every connection, and waits for handlers.
func (s *Server) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	ln := s.ln
	for conn := range s.conns {
		conn.Close()
	}
	s.mu.Unlock()

	var err error
	if ln != nil {
		err = ln.Close()
	}
	s.wg.Wait()
	return err
}

func (s *Server) handleConn(conn net.Conn) {
	defer s.wg.Done()
	defer func() {
		s.mu.Lock()
		delete(s.conns, conn)
		s.mu.Unlock()
		conn.Close()
	}()

	metrics.ConnectionsOpen.Inc()
	defer metrics.ConnectionsOpen.Dec()

	r := bufio.NewReader(conn)
	for {
		args, err := readCommand(r)
		if err != nil {
			if err != io.EOF && !errors.Is(err, net.ErrClosed) {
				s.log.Debug("closing connection",
					zap.String("remote", conn.RemoteAddr().String()),
					zap.Error(err))
				fmt.Fprintf(conn, "-ERR %s\r\n", err)
			}
			return
		}
		if len(args) == 0 {
			continue
		}
		cmd := strings.ToUpper(args[0])
		if cmd == "QUIT" {
			io.WriteString(conn, "+OK\r\n")
			return
		}
		reply := s.store.Execute(args)
		metrics.CommandsTotal.WithLabelValues(cmd).Inc()
		if _, err := io.WriteString(conn, reply); err != nil {
			return
		}
	}
}

// readCommand parses one client command, in either RESP array or inline
// form.
func readCommand(r *bufio.Reader) ([]string, error) {
	first, err := r.Peek(1)
	if err != nil {
		return nil, err
	}
	if first[0] == '*' {
		return readArray(r)
	}
	line, err := readLine(r)
	if err != nil {
		return nil, err
	}
	return strings.Fields(line), nil
}

func readLine(r *bufio.Reader) (string, error) {
	line, err := r.ReadString('\n')
	if err != nil {
		return "", err
	}
	return strings.TrimRight(line, "\r\n"), nil
}

func readArray(r *bufio.Reader) ([]string, error) {
	header, err := readLine(r)
	if err != nil {
		return nil, err
	}
	n, err := strconv.Atoi(header[1:])
	if err != nil || n < 0 {
		return nil, fmt.Errorf("%w: bad array header %q", errProtocol, header)
	}
	args := make([]string, 0, n)
	for i := 0; i < n; i++ {
		bulk, err := readLine(r)
		if err != nil {
			return nil, err
		}
		if len(bulk) == 0 || bulk[0] != '$' {
			return nil, fmt.Errorf("%w: expected bulk string, got %q", errProtocol, bulk)
		}
		length, err := strconv.Atoi(bulk[1:])
		if err != nil || length < 0 {
			return nil, fmt.Errorf("%w: bad bulk length %q", errProtocol, bulk)
		}
		buf := make([]byte, length+2)
		if _, err := io.ReadFull(r, buf); err != nil {
			return nil, err
		}
		args = append(args, string(buf[:length]))
	}
	return args, nil
}
