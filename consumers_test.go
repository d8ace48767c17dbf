package streamtee

import (
	"errors"
	"testing"
	"time"
)

func frameOf(seq uint64, data ...byte) Frame {
	return Frame{
		Seq:       seq,
		Timestamp: time.Now(),
		Format:    video720,
		Data:      data,
		TraceID:   "trace",
	}
}

func TestPrefixLogger_ShortFrame(t *testing.T) {
	p := NewPrefixLogger(0)
	if p.N != DefaultPrefixBytes {
		t.Errorf("N = %d, want %d", p.N, DefaultPrefixBytes)
	}
	// Fewer bytes than the prefix length must not panic
	if err := p.Consume(frameOf(1, 0xAA, 0xBB)); err != nil {
		t.Errorf("Consume() error = %v", err)
	}
	if err := p.Consume(frameOf(2)); err != nil {
		t.Errorf("Consume() empty frame error = %v", err)
	}
}

func TestChannelConsumer_CopiesAndDrops(t *testing.T) {
	c := NewChannelConsumer(1)

	data := []byte{1, 2, 3}
	if err := c.Consume(frameOf(1, data...)); err != nil {
		t.Fatalf("Consume() error = %v", err)
	}
	// Channel full: dropped, never blocks
	if err := c.Consume(frameOf(2, 9)); err != nil {
		t.Fatalf("Consume() error = %v", err)
	}
	if c.Dropped() != 1 {
		t.Errorf("Dropped() = %d, want 1", c.Dropped())
	}

	got := <-c.Frames()
	if got.Seq != 1 || len(got.Data) != 3 || got.Data[0] != 1 {
		t.Errorf("frame = %+v", got)
	}

	c.Close()
	c.Close()
	if _, ok := <-c.Frames(); ok {
		t.Error("channel still open after Close")
	}
	if err := c.Consume(frameOf(3, 1)); err != nil {
		t.Errorf("Consume() after Close error = %v", err)
	}
}

func TestChannelConsumer_OwnsCopy(t *testing.T) {
	c := NewChannelConsumer(1)
	data := []byte{7, 7}
	_ = c.Consume(Frame{Seq: 1, Data: data})
	data[0] = 0

	got := <-c.Frames()
	if got.Data[0] != 7 {
		t.Errorf("frame data aliases engine memory: %v", got.Data)
	}
}

func TestMailboxConsumer_KeepsLatest(t *testing.T) {
	m := NewMailboxConsumer()
	for i := uint64(1); i <= 3; i++ {
		_ = m.Consume(frameOf(i, byte(i)))
	}

	got, ok := m.Next()
	if !ok || got.Seq != 3 {
		t.Fatalf("Next() = seq %d ok=%v, want seq 3", got.Seq, ok)
	}
	if m.Dropped() != 2 {
		t.Errorf("Dropped() = %d, want 2", m.Dropped())
	}

	done := make(chan bool)
	go func() {
		_, ok := m.Next()
		done <- ok
	}()
	m.Close()

	select {
	case ok := <-done:
		if ok {
			t.Error("Next() ok after Close")
		}
	case <-time.After(time.Second):
		t.Fatal("Next() not woken by Close")
	}
	t.Logf("✅ mailbox kept latest frame, %d overwritten", m.Dropped())
}

func TestMailboxConsumer_Latest(t *testing.T) {
	m := NewMailboxConsumer()
	if _, ok := m.Latest(); ok {
		t.Fatal("Latest() ok on empty mailbox")
	}

	_ = m.Consume(frameOf(1, 1))
	_ = m.Consume(frameOf(2, 2))
	got, ok := m.Latest()
	if !ok || got.Seq != 2 {
		t.Errorf("Latest() = seq %d ok=%v, want seq 2", got.Seq, ok)
	}
	if _, ok := m.Latest(); ok {
		t.Error("Latest() returned the same frame twice")
	}
	m.Close()
}

func TestMultiConsumer(t *testing.T) {
	errA := errors.New("a failed")
	var calls []string

	mc := MultiConsumer{
		ConsumerFunc(func(Frame) error { calls = append(calls, "a"); return errA }),
		ConsumerFunc(func(Frame) error { calls = append(calls, "b"); return nil }),
	}

	err := mc.Consume(frameOf(1, 1))
	if !errors.Is(err, errA) {
		t.Errorf("Consume() error = %v, want errA", err)
	}
	if len(calls) != 2 || calls[0] != "a" || calls[1] != "b" {
		t.Errorf("calls = %v, want [a b]", calls)
	}

	if err := (MultiConsumer{}).Consume(frameOf(2)); err != nil {
		t.Errorf("empty MultiConsumer error = %v", err)
	}
}
