package watchdog

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"math/rand/v2"
	"net"
	"time"
)

// Request is what the server hands the launcher when it starts waiting:
// the name it is bound to and the token of the current cycle.
type Request struct {
	SocketName string
	Token      Token
}

// Supervisor is the launcher as seen from the server.
type Supervisor interface {
	// Ensure asks for the daemon to be (re)started against req.
	Ensure(req Request)
	// Cancel drops any pending or retrying ensure.
	Cancel()
}

// ServerOptions configures a Server. Zero values select defaults.
type ServerOptions struct {
	Namespace string
	SocketDir string
	Listen    ListenFunc
	Observer  Observer
	Logger    *slog.Logger
	Clock     func() time.Time
	Rand      *rand.Rand
	// RetryPause throttles rebinding while the clock is still inside the
	// bucket of the name that just failed. Zero retries at once.
	RetryPause time.Duration
}

// Server is the rendezvous side of the watchdog. It binds the current
// socket name, waits for exactly one daemon, and treats the end of that
// connection as the daemon being gone.
//
// listener, conn, name and token belong to the goroutine running Run.
type Server struct {
	namespace  string
	socketDir  string
	listen     ListenFunc
	supervisor Supervisor
	observer   Observer
	logger     *slog.Logger
	now        func() time.Time
	rng        *rand.Rand
	retryPause time.Duration

	name     string
	token    Token
	listener net.Listener
	conn     net.Conn
}

func NewServer(opts ServerOptions, supervisor Supervisor) *Server {
	s := &Server{
		namespace:  opts.Namespace,
		socketDir:  opts.SocketDir,
		listen:     opts.Listen,
		supervisor: supervisor,
		observer:   opts.Observer,
		logger:     opts.Logger,
		now:        opts.Clock,
		rng:        opts.Rand,
		retryPause: opts.RetryPause,
		token:      InitialToken,
	}
	if s.listen == nil {
		s.listen = ListenUnix
	}
	if s.observer == nil {
		s.observer = nopObserver{}
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	if s.now == nil {
		s.now = time.Now
	}
	if s.rng == nil {
		seed := uint64(time.Now().UnixNano())
		s.rng = rand.New(rand.NewPCG(seed, seed>>1))
	}
	return s
}

// Run loops until ctx is cancelled: listen, accept, hold the connection
// until it ends, tear down, advance the token, listen again. Failures are
// logged and retried, never returned.
func (s *Server) Run(ctx context.Context) {
	lowestPriority(s.logger, "keepalive-server")

	defer func() {
		s.closeConn()
		s.closeListener()
		s.supervisor.Cancel()
		s.logger.Info("Keepalive server stopped")
	}()

	for ctx.Err() == nil {
		if failed, ok := s.acceptPeer(ctx); !ok {
			if failed != "" {
				s.pauseAfterFailure(ctx, failed)
			}
			continue
		}

		err := s.monitor(ctx)
		s.teardown(ctx, err)
	}
}

// acceptPeer runs step one of the cycle. It returns ok once a connection is
// held; otherwise failed names the socket that just failed, if any.
func (s *Server) acceptPeer(ctx context.Context) (failed string, ok bool) {
	name := SocketName(s.namespace, s.now())

	if s.listener != nil && s.name != name {
		s.logger.Debug("Socket name rotated, rebinding", "old", s.name, "new", name)
		s.closeListener()
	}

	if s.listener == nil {
		listener, err := s.listen(Address(name, s.socketDir))
		if err != nil {
			s.bindFailed(name, err)
			return name, false
		}
		s.listener = listener
		s.name = name
		s.logger.Info("Waiting for keepalive daemon", "socket", s.name, "token", s.token)
		s.emit(EventListening, nil)
	}

	s.supervisor.Ensure(Request{SocketName: s.name, Token: s.token})

	listener := s.listener
	stop := context.AfterFunc(ctx, func() { listener.Close() })
	conn, err := listener.Accept()
	stop()

	if err != nil {
		if ctx.Err() != nil {
			return "", false
		}
		failedName := s.name
		s.bindFailed(failedName, err)
		return failedName, false
	}

	s.supervisor.Cancel()
	s.conn = conn
	s.logger.Info("Keepalive daemon connected", "socket", s.name, "token", s.token)
	s.emit(EventAccepted, nil)
	return "", true
}

// monitor blocks on the connection until the peer goes away. There is no
// read deadline: a peer that stays connected and silent counts as alive.
func (s *Server) monitor(ctx context.Context) error {
	conn := s.conn
	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	return readUntilClosed(conn)
}

func (s *Server) teardown(ctx context.Context, readErr error) {
	s.closeConn()
	if ctx.Err() != nil {
		return
	}

	if readErr != nil {
		s.logger.Warn("Keepalive connection failed", "socket", s.name, "token", s.token, "error", readErr)
	} else {
		s.logger.Warn("Keepalive daemon disconnected", "socket", s.name, "token", s.token)
	}
	s.emit(EventDisconnected, readErr)

	s.token = s.token.Advance(s.rng)
	s.logger.Debug("Liveness token advanced", "token", s.token)
	s.emit(EventTokenAdvanced, nil)
}

func (s *Server) bindFailed(name string, err error) {
	s.logger.Error("Keepalive socket failed, relocating", "socket", name, "error", err)

	s.closeListener()
	s.closeConn()
	s.name = name
	s.emit(EventBindFailed, err)
}

// pauseAfterFailure waits while the clock still yields the name that just
// failed, so a taken name is not hammered for the rest of its bucket.
func (s *Server) pauseAfterFailure(ctx context.Context, failed string) {
	if s.retryPause <= 0 || SocketName(s.namespace, s.now()) != failed {
		return
	}
	select {
	case <-ctx.Done():
	case <-time.After(s.retryPause):
	}
}

func (s *Server) closeListener() {
	if s.listener == nil {
		return
	}
	if err := s.listener.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
		s.logger.Debug("Failed to close listener", "socket", s.name, "error", err)
	}
	s.listener = nil
}

func (s *Server) closeConn() {
	if s.conn == nil {
		return
	}
	if err := s.conn.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
		s.logger.Debug("Failed to close connection", "socket", s.name, "error", err)
	}
	s.conn = nil
}

func (s *Server) emit(kind EventKind, err error) {
	s.observer.Observe(Event{
		Kind:       kind,
		SocketName: s.name,
		Token:      s.token,
		Err:        err,
		Time:       s.now(),
	})
}

// readUntilClosed reads one byte at a time and discards it. A clean EOF
// returns nil, anything else returns the read error.
func readUntilClosed(r io.Reader) error {
	var buf [1]byte
	for {
		if _, err := r.Read(buf[:]); err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}
	}
}
