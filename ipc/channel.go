package ipc

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sys/unix"

	"github.com/velmie/msgrelay"
)

const network = "unixpacket"

// Channel is a Unix packet-socket endpoint shared by all listener slots.
type Channel struct {
	path string
	cfg  Config
	ln   *net.UnixListener

	closed    atomic.Bool
	discarded atomic.Int64
	closeOnce sync.Once
	closeErr  error
}

var _ msgrelay.Channel = (*Channel)(nil)

// Listen creates the endpoint at path. A stale socket file left by a previous run is removed first.
func Listen(path string, opts ...Option) (*Channel, error) {
	if path == "" {
		return nil, ErrPathRequired
	}

	var cfg Config
	for _, opt := range opts {
		opt(&cfg)
	}
	cfg = cfg.withDefaults()

	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("msgrelay ipc: removing stale socket %s: %w", path, err)
	}

	ln, err := listenPacket(path, cfg.Backlog)
	if err != nil {
		return nil, fmt.Errorf("msgrelay ipc: listening on %s: %w", path, err)
	}
	ln.SetUnlinkOnClose(true)

	if err := os.Chmod(path, cfg.Mode); err != nil {
		return nil, errors.Join(fmt.Errorf("msgrelay ipc: chmod %s: %w", path, err), ln.Close())
	}

	return &Channel{path: path, cfg: cfg, ln: ln}, nil
}

// Path returns the endpoint path.
func (c *Channel) Path() string {
	return c.path
}

// Listen binds one pool instance to the endpoint.
func (c *Channel) Listen(context.Context) (msgrelay.Listener, error) {
	if c.closed.Load() {
		return nil, ErrChannelClosed
	}

	return &listener{channel: c}, nil
}

// Close stops accepting connections, unblocks every parked Receive and removes the socket file.
// Connections still waiting in the backlog are accepted, closed unread and counted by Discarded.
func (c *Channel) Close() error {
	c.closeOnce.Do(func() {
		c.closed.Store(true)
		drainErr := c.drainBacklog()
		c.closeErr = errors.Join(drainErr, c.ln.Close())
	})

	return c.closeErr
}

// Discarded returns how many producer messages were still in the backlog when the channel closed.
func (c *Channel) Discarded() int {
	return int(c.discarded.Load())
}

func (c *Channel) drainBacklog() error {
	raw, err := c.ln.SyscallConn()
	if err != nil {
		return fmt.Errorf("msgrelay ipc: drain backlog: %w", err)
	}

	return raw.Control(func(fd uintptr) {
		for {
			nfd, _, err := unix.Accept4(int(fd), unix.SOCK_CLOEXEC)
			if err != nil {
				return
			}
			_ = unix.Close(nfd)
			c.discarded.Add(1)
		}
	})
}

// listenPacket builds the listening socket by hand so the accept backlog can be bounded.
func listenPacket(path string, backlog int) (*net.UnixListener, error) {
	fd, err := unix.Socket(unix.AF_UNIX, unix.SOCK_SEQPACKET|unix.SOCK_CLOEXEC|unix.SOCK_NONBLOCK, 0)
	if err != nil {
		return nil, fmt.Errorf("socket: %w", err)
	}
	if err := unix.Bind(fd, &unix.SockaddrUnix{Name: path}); err != nil {
		_ = unix.Close(fd)
		return nil, fmt.Errorf("bind: %w", err)
	}
	if err := unix.Listen(fd, backlog); err != nil {
		_ = unix.Close(fd)
		_ = os.Remove(path)
		return nil, fmt.Errorf("listen: %w", err)
	}

	file := os.NewFile(uintptr(fd), path)
	defer file.Close()

	ln, err := net.FileListener(file)
	if err != nil {
		_ = os.Remove(path)
		return nil, fmt.Errorf("file listener: %w", err)
	}
	unixLn, ok := ln.(*net.UnixListener)
	if !ok {
		_ = ln.Close()
		_ = os.Remove(path)
		return nil, fmt.Errorf("file listener: unexpected type %T", ln)
	}

	return unixLn, nil
}

type listener struct {
	channel *Channel
	closed  atomic.Bool
}

// Receive accepts one connection and reads its single message.
// The accept itself is only interrupted by closing the Channel; ctx bounds the read.
func (l *listener) Receive(ctx context.Context) (string, error) {
	if l.closed.Load() || l.channel.closed.Load() {
		return "", ErrChannelClosed
	}

	conn, err := l.channel.ln.AcceptUnix()
	if err != nil {
		if errors.Is(err, net.ErrClosed) || l.channel.closed.Load() {
			return "", ErrChannelClosed
		}

		return "", fmt.Errorf("msgrelay ipc: accept: %w", err)
	}
	defer conn.Close()

	deadline := time.Now().Add(l.channel.cfg.ReadTimeout)
	if ctxDeadline, ok := ctx.Deadline(); ok && ctxDeadline.Before(deadline) {
		deadline = ctxDeadline
	}
	if err := conn.SetReadDeadline(deadline); err != nil {
		return "", fmt.Errorf("msgrelay ipc: set read deadline: %w", err)
	}

	return readMessage(conn, l.channel.cfg.MaxMessageSize)
}

// Close releases the instance. The shared kernel listener stays open for other slots.
func (l *listener) Close() error {
	l.closed.Store(true)

	return nil
}

func readMessage(conn *net.UnixConn, size int) (string, error) {
	buf := make([]byte, size)
	n, _, flags, _, err := conn.ReadMsgUnix(buf, nil)
	if err != nil {
		if errors.Is(err, io.EOF) {
			return "", ErrEmptyMessage
		}

		return "", fmt.Errorf("msgrelay ipc: read: %w", err)
	}
	if flags&unix.MSG_TRUNC != 0 {
		return "", fmt.Errorf("%w: limit %d bytes", ErrMessageTruncated, size)
	}
	if n == 0 {
		return "", ErrEmptyMessage
	}

	return string(buf[:n]), nil
}
