// Package supervisor implements ConnectionSupervisor (spec.md §4.7):
// the outer connect/negotiate/serve/reconnect loop around a single
// TelnetFsm session. Grounded in rcornwell-S370/telnet/telnet.go's
// read-dispatch-loop shape, generalized from a server's per-client
// goroutine into a client's single persistent session, with
// golang.org/x/sys/unix supplying the signal handling and the
// select-equivalent readiness primitive named in spec.md §5 (the
// stlalpha-vision3 pack's internal/configtool/ui/turbo.go is the only
// other pack user of x/sys/unix, for terminal raw-mode rather than
// polling, so the poll loop itself is original to this package).
package supervisor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sys/unix"

	"github.com/racingmars/pr3287/perr"
	"github.com/racingmars/pr3287/telnet"
	"github.com/racingmars/pr3287/tracelog"
)

// Handler fans inbound TN3270E records out to the data-stream and SCS
// interpreters and drives end-of-job flushing; cmd/pr3287 supplies the
// concrete implementation wiring ds.Interpreter, scs.Interpreter, and
// printer.Job together.
type Handler interface {
	// HandleRecord processes one inbound record. fsm is passed through
	// so the handler can send TN3270E positive/negative responses
	// using the record's own sequence number.
	HandleRecord(fsm *telnet.Fsm, hdr telnet.Header, payload []byte) error

	// Flush is called on end-of-job (PRINT-EOJ, idle timeout, or
	// shutdown) to force out any buffered page.
	Flush() error
}

// Config is the subset of config.Options ConnectionSupervisor acts on
// directly; the rest is consumed by the Handler it's paired with.
type Config struct {
	Host     string
	Port     int
	PreferV6 bool
	MaxAddrs int

	Reconnect        bool
	ReconnectBackoff time.Duration

	EOJTimeout time.Duration

	SyncPort int

	TermType string
	LU       *telnet.LuSelector

	TLSProvider func(io.ReadWriter) (io.ReadWriter, error)
}

// Supervisor is ConnectionSupervisor.
type Supervisor struct {
	Cfg     Config
	Handler Handler
	Log     *tracelog.Logger
}

func New(cfg Config, h Handler, log *tracelog.Logger) *Supervisor {
	return &Supervisor{Cfg: cfg, Handler: h, Log: log}
}

// Run drives the connect/negotiate/serve loop until ctx is canceled,
// a fatal protocol error occurs, or (when Reconnect is false) the
// first session ends.
func (s *Supervisor) Run(ctx context.Context) error {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, unix.SIGTERM, unix.SIGINT, unix.SIGUSR1)
	defer signal.Stop(sigCh)

	for {
		err := s.runOnce(ctx, sigCh)
		if err == nil || !s.Cfg.Reconnect {
			return err
		}
		var fatal *perr.Fatal
		if errors.As(err, &fatal) {
			return err
		}
		if s.Log != nil {
			s.Log.Error("session ended, reconnecting", "error", err)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(s.backoff()):
		}
	}
}

func (s *Supervisor) backoff() time.Duration {
	if s.Cfg.ReconnectBackoff > 0 {
		return s.Cfg.ReconnectBackoff
	}
	return 5 * time.Second
}

func (s *Supervisor) runOnce(ctx context.Context, sigCh chan os.Signal) error {
	conn, err := s.dial(ctx, s.Cfg.Host, s.Cfg.Port)
	if err != nil {
		return &perr.Transient{Err: err}
	}
	defer conn.Close()

	var syncConn net.Conn
	if s.Cfg.SyncPort != 0 {
		syncConn, err = s.dial(ctx, s.Cfg.Host, s.Cfg.SyncPort)
		if err != nil {
			return &perr.Transient{Err: err}
		}
		defer syncConn.Close()
	}

	fsm := telnet.New(conn, s.Cfg.TermType, s.Cfg.LU, s.Log)
	if s.Cfg.TLSProvider != nil {
		fsm.SetTLSProvider(s.Cfg.TLSProvider)
	}
	if err := fsm.Start(); err != nil {
		return err
	}

	return s.serve(ctx, fsm, conn, syncConn, sigCh)
}

// dial resolves host (honoring PreferV6), tries up to MaxAddrs
// candidates in order, and returns the first successful connection
// (spec.md §4.7).
func (s *Supervisor) dial(ctx context.Context, host string, port int) (net.Conn, error) {
	addr := fmt.Sprintf("%s:%d", host, port)

	ips, err := net.DefaultResolver.LookupIPAddr(ctx, host)
	if err != nil || len(ips) == 0 {
		var d net.Dialer
		return d.DialContext(ctx, "tcp", addr)
	}

	ordered := orderAddrs(ips, s.Cfg.PreferV6)
	max := s.Cfg.MaxAddrs
	if max <= 0 || max > len(ordered) {
		max = len(ordered)
	}

	var d net.Dialer
	var lastErr error
	for _, ip := range ordered[:max] {
		target := net.JoinHostPort(ip.String(), fmt.Sprintf("%d", port))
		conn, err := d.DialContext(ctx, "tcp", target)
		if err == nil {
			return conn, nil
		}
		lastErr = err
	}
	return nil, lastErr
}

func orderAddrs(ips []net.IPAddr, preferV6 bool) []net.IPAddr {
	var first, second []net.IPAddr
	for _, ip := range ips {
		isV4 := ip.IP.To4() != nil
		switch {
		case isV4 && !preferV6, !isV4 && preferV6:
			first = append(first, ip)
		default:
			second = append(second, ip)
		}
	}
	return append(first, second...)
}

// serve runs the readiness-multiplexed record loop: unix.Poll watches
// the primary connection and, when configured, a secondary sync
// socket whose readability means "shut down now." No traffic on the
// primary within EOJTimeout forces a flush, matching the end-of-job
// timeout named in spec.md §4.7.
func (s *Supervisor) serve(ctx context.Context, fsm *telnet.Fsm, conn net.Conn, syncConn net.Conn, sigCh chan os.Signal) error {
	connFd, err := rawFd(conn)
	if err != nil {
		return &perr.Transient{Err: err}
	}
	var syncFd int = -1
	if syncConn != nil {
		syncFd, err = rawFd(syncConn)
		if err != nil {
			return &perr.Transient{Err: err}
		}
	}

	timeoutMs := -1
	if s.Cfg.EOJTimeout > 0 {
		timeoutMs = int(s.Cfg.EOJTimeout / time.Millisecond)
	}

	for {
		select {
		case <-ctx.Done():
			_ = s.Handler.Flush()
			return ctx.Err()
		case sig := <-sigCh:
			if s.Log != nil {
				s.Log.Error("signal received, shutting down", "signal", sig.String())
			}
			_ = s.Handler.Flush()
			return nil
		default:
		}

		fds := []unix.PollFd{{Fd: int32(connFd), Events: unix.POLLIN}}
		if syncFd >= 0 {
			fds = append(fds, unix.PollFd{Fd: int32(syncFd), Events: unix.POLLIN})
		}

		n, perr2 := unix.Poll(fds, timeoutMs)
		if perr2 != nil {
			if errors.Is(perr2, syscall.EINTR) {
				continue
			}
			return &perr.Transient{Err: perr2}
		}
		if n == 0 {
			// Idle for EOJTimeout: flush any pending job and keep
			// waiting for more host traffic.
			if err := s.Handler.Flush(); err != nil {
				return err
			}
			continue
		}
		if syncFd >= 0 && fds[1].Revents&unix.POLLIN != 0 {
			_ = s.Handler.Flush()
			return nil
		}
		if fds[0].Revents&(unix.POLLIN|unix.POLLHUP|unix.POLLERR) == 0 {
			continue
		}

		payload, hdr, err := fsm.NextRecord()
		if err != nil {
			_ = s.Handler.Flush()
			return err
		}
		if err := s.Handler.HandleRecord(fsm, hdr, payload); err != nil {
			var fatal *perr.Fatal
			if errors.As(err, &fatal) {
				return err
			}
			if s.Log != nil {
				s.Log.Error("record handling failed", "error", err)
			}
		}
	}
}

// rawFd extracts the OS file descriptor backing conn so it can be
// passed to unix.Poll alongside Go's own blocking Read/Write on the
// same conn; Control only inspects the descriptor, it doesn't consume
// it, so this is safe to interleave with ordinary net.Conn use.
func rawFd(conn net.Conn) (int, error) {
	sc, ok := conn.(syscall.Conn)
	if !ok {
		return 0, fmt.Errorf("supervisor: connection type %T has no raw descriptor", conn)
	}
	rc, err := sc.SyscallConn()
	if err != nil {
		return 0, err
	}
	var fd int
	ctrlErr := rc.Control(func(f uintptr) {
		fd = int(f)
	})
	if ctrlErr != nil {
		return 0, ctrlErr
	}
	return fd, nil
}
