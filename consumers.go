package streamtee

import (
	"encoding/hex"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/e7canasta/orion-care-sensor/modules/stream-tee/internal/mailbox"
)

// FrameConsumer receives sampled frames on the engine's streaming thread.
//
// Consume must not block for long: the sampling branch waits for it. Data is
// only valid during the call.
type FrameConsumer interface {
	Consume(f Frame) error
}

// ConsumerFunc adapts a function to FrameConsumer
type ConsumerFunc func(Frame) error

// Consume calls fn(f)
func (fn ConsumerFunc) Consume(f Frame) error {
	return fn(f)
}

// PrefixLogger logs the format and the first N bytes of each frame.
// It is the default diagnostic consumer.
type PrefixLogger struct {
	N int
}

// NewPrefixLogger returns a PrefixLogger reading n bytes (DefaultPrefixBytes if n <= 0)
func NewPrefixLogger(n int) *PrefixLogger {
	if n <= 0 {
		n = DefaultPrefixBytes
	}
	return &PrefixLogger{N: n}
}

// Consume implements FrameConsumer
func (p *PrefixLogger) Consume(f Frame) error {
	n := p.N
	if n > len(f.Data) {
		n = len(f.Data)
	}
	slog.Info("stream-tee: frame sampled",
		"seq", f.Seq,
		"width", f.Format.Width,
		"height", f.Format.Height,
		"format", f.Format.PixelFormat,
		"size", len(f.Data),
		"prefix", hex.EncodeToString(f.Data[:n]),
		"trace_id", f.TraceID,
	)
	return nil
}

// ChannelConsumer copies frames into a buffered channel without blocking.
// Frames arriving while the channel is full are dropped and counted.
type ChannelConsumer struct {
	frames  chan Frame
	dropped atomic.Uint64

	mu     sync.RWMutex
	closed bool
}

// NewChannelConsumer creates a consumer with a channel of the given capacity
func NewChannelConsumer(capacity int) *ChannelConsumer {
	if capacity < 1 {
		capacity = 1
	}
	return &ChannelConsumer{frames: make(chan Frame, capacity)}
}

// Frames returns the receive side. Closed by Close.
func (c *ChannelConsumer) Frames() <-chan Frame {
	return c.frames
}

// Consume implements FrameConsumer
func (c *ChannelConsumer) Consume(f Frame) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return nil
	}

	select {
	case c.frames <- f.Clone():
	default:
		c.dropped.Add(1)
		slog.Debug("stream-tee: dropping frame, channel full",
			"seq", f.Seq,
			"trace_id", f.TraceID,
		)
	}
	return nil
}

// Dropped returns the number of frames dropped because the channel was full
func (c *ChannelConsumer) Dropped() uint64 {
	return c.dropped.Load()
}

// Close closes the frame channel. Idempotent.
func (c *ChannelConsumer) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	close(c.frames)
}

// MailboxConsumer keeps only the latest frame for a single reader.
//
// Consume never blocks: an unread frame is overwritten. Next blocks until a
// frame is available, so a slow reader always gets the freshest frame.
type MailboxConsumer struct {
	mb *mailbox.Mailbox[Frame]
}

// NewMailboxConsumer creates an empty mailbox consumer
func NewMailboxConsumer() *MailboxConsumer {
	return &MailboxConsumer{mb: mailbox.New[Frame]()}
}

// Consume implements FrameConsumer
func (m *MailboxConsumer) Consume(f Frame) error {
	m.mb.Publish(f.Clone())
	return nil
}

// Next blocks until a frame is available; ok is false after Close
func (m *MailboxConsumer) Next() (Frame, bool) {
	return m.mb.Next()
}

// Latest takes the pending frame without blocking, if any
func (m *MailboxConsumer) Latest() (Frame, bool) {
	return m.mb.TryNext()
}

// Dropped returns how many frames were overwritten before being read
func (m *MailboxConsumer) Dropped() uint64 {
	return m.mb.Stats().TotalDrops
}

// Close wakes the reader and discards further frames
func (m *MailboxConsumer) Close() {
	m.mb.Close()
}

// MultiConsumer hands each frame to every consumer in order. A failing
// consumer does not prevent the others from running.
type MultiConsumer []FrameConsumer

// Consume implements FrameConsumer
func (mc MultiConsumer) Consume(f Frame) error {
	var errs []error
	for _, c := range mc {
		if err := c.Consume(f); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
