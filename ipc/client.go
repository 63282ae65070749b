package ipc

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"golang.org/x/sys/unix"
)

// Submit delivers message to the well-known endpoint with the default connect timeout.
// It reports whether the message was written; false means nothing was sent.
func Submit(message string) bool {
	return SubmitTo(context.Background(), DefaultPath(), message) == nil
}

// SubmitTo delivers message to the endpoint at path as a single framed unit.
// Without a ctx deadline, connecting is bounded by DefaultSubmitTimeout.
func SubmitTo(ctx context.Context, path, message string) error {
	if path == "" {
		return ErrPathRequired
	}
	if message == "" {
		return ErrEmptyMessage
	}
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, DefaultSubmitTimeout)
		defer cancel()
	}

	var dialer net.Dialer
	conn, err := dialer.DialContext(ctx, network, path)
	if err != nil {
		if isTimeout(ctx, err) {
			return fmt.Errorf("%w: %s", ErrSubmitTimeout, path)
		}

		return fmt.Errorf("msgrelay ipc: dial %s: %w", path, err)
	}
	defer conn.Close()

	if deadline, ok := ctx.Deadline(); ok {
		// The write only needs socket buffer space, so reuse the connect budget with a floor.
		if floor := time.Now().Add(DefaultSubmitTimeout); deadline.Before(floor) {
			deadline = floor
		}
		if err := conn.SetWriteDeadline(deadline); err != nil {
			return fmt.Errorf("msgrelay ipc: set write deadline: %w", err)
		}
	}

	n, err := conn.Write([]byte(message))
	if err != nil {
		return fmt.Errorf("msgrelay ipc: write: %w", err)
	}
	if n != len(message) {
		return fmt.Errorf("%w: %d of %d bytes", ErrShortWrite, n, len(message))
	}

	return nil
}

// isTimeout reports connect failures that mean "nobody accepted in time": an expired
// deadline, or a full accept backlog, which Unix sockets report as EAGAIN.
func isTimeout(ctx context.Context, err error) bool {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return true
	}
	if errors.Is(err, unix.EAGAIN) {
		return true
	}
	var netErr net.Error

	return errors.As(err, &netErr) && netErr.Timeout()
}
