package core

// Frame is one raw signaling payload as read from or written to a transport.
type Frame []byte

// SignalConnection abstracts for a system messaging transport
// Owned by the adapter; the adapter must Close() it.
type SignalConnection interface {
	// TrySend queues a frame without blocking. It fails when the connection
	// is closed or its outbound buffer is full.
	TrySend(Frame) error
	Close()
}
