package ipc

import "errors"

var (
	// ErrPathRequired is returned when the endpoint path is empty.
	ErrPathRequired = errors.New("msgrelay ipc: endpoint path is required")
	// ErrChannelClosed is returned by Listen and Receive after the channel is closed.
	ErrChannelClosed = errors.New("msgrelay ipc: channel closed")
	// ErrMessageTruncated is returned when a message exceeds the receive buffer.
	ErrMessageTruncated = errors.New("msgrelay ipc: message truncated")
	// ErrEmptyMessage is returned for a connection that carried no payload, and by SubmitTo for an empty message.
	ErrEmptyMessage = errors.New("msgrelay ipc: message is empty")
	// ErrSubmitTimeout is returned by SubmitTo when the endpoint does not accept in time.
	ErrSubmitTimeout = errors.New("msgrelay ipc: submit timed out")
	// ErrShortWrite is returned when the kernel accepted only part of a message.
	ErrShortWrite = errors.New("msgrelay ipc: short write")
)
