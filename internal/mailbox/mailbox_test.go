package mailbox_test

import (
	"sync"
	"testing"
	"time"

	"github.com/e7canasta/orion-care-sensor/modules/stream-tee/internal/mailbox"
)

// TestMailboxOverwrite validates that an unconsumed value is replaced, not queued.
//
// Scenario:
//  1. Publish 1, 2, 3 without consuming
//  2. Next returns 3
//  3. TotalDrops = 2
func TestMailboxOverwrite(t *testing.T) {
	mb := mailbox.New[int]()

	for i := 1; i <= 3; i++ {
		if !mb.Publish(i) {
			t.Fatalf("Publish(%d) returned false on open mailbox", i)
		}
	}

	v, ok := mb.Next()
	if !ok {
		t.Fatal("Next() returned ok=false on open mailbox")
	}
	if v != 3 {
		t.Errorf("Next() = %d, want 3 (latest value)", v)
	}

	stats := mb.Stats()
	if stats.TotalDrops != 2 {
		t.Errorf("TotalDrops = %d, want 2", stats.TotalDrops)
	}
	if stats.ConsecutiveDrops != 0 {
		t.Errorf("ConsecutiveDrops = %d after consume, want 0", stats.ConsecutiveDrops)
	}
	if stats.Published != 3 || stats.Consumed != 1 {
		t.Errorf("Published/Consumed = %d/%d, want 3/1", stats.Published, stats.Consumed)
	}

	t.Logf("✅ Overwrite: received %d, drops=%d", v, stats.TotalDrops)
}

// TestMailboxPublishNonBlocking validates Publish never waits for the consumer.
func TestMailboxPublishNonBlocking(t *testing.T) {
	mb := mailbox.New[[]byte]()

	start := time.Now()
	for i := 0; i < 1000; i++ {
		mb.Publish([]byte{byte(i)})
	}
	elapsed := time.Since(start)

	if elapsed > 100*time.Millisecond {
		t.Errorf("Publish() blocked: elapsed=%v (expected <100ms)", elapsed)
	}
	t.Logf("✅ 1000 publishes in %v", elapsed)
}

// TestMailboxNextBlocksUntilPublish validates the blocking consume path.
func TestMailboxNextBlocksUntilPublish(t *testing.T) {
	mb := mailbox.New[string]()

	got := make(chan string, 1)
	go func() {
		v, ok := mb.Next()
		if ok {
			got <- v
		}
		close(got)
	}()

	select {
	case v := <-got:
		t.Fatalf("Next() returned %q before any Publish", v)
	case <-time.After(20 * time.Millisecond):
	}

	mb.Publish("frame")

	select {
	case v := <-got:
		if v != "frame" {
			t.Errorf("Next() = %q, want %q", v, "frame")
		}
	case <-time.After(time.Second):
		t.Fatal("Next() did not wake after Publish")
	}
}

// TestMailboxClose validates Close wakes a blocked consumer and is idempotent.
func TestMailboxClose(t *testing.T) {
	mb := mailbox.New[int]()

	var wg sync.WaitGroup
	wg.Add(1)
	var ok bool
	go func() {
		defer wg.Done()
		_, ok = mb.Next()
	}()

	time.Sleep(10 * time.Millisecond)
	mb.Close()
	mb.Close()

	done := make(chan struct{})
	go func() { wg.Wait(); close(done) }()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Close() did not wake blocked Next()")
	}

	if ok {
		t.Error("Next() returned ok=true after Close")
	}
	if mb.Publish(1) {
		t.Error("Publish() returned true after Close")
	}
	if !mb.Stats().Closed {
		t.Error("Stats().Closed = false after Close")
	}
}

// TestMailboxTryNext validates the non-blocking consume path.
func TestMailboxTryNext(t *testing.T) {
	mb := mailbox.New[int]()

	if _, ok := mb.TryNext(); ok {
		t.Fatal("TryNext() on empty mailbox returned ok=true")
	}

	mb.Publish(7)
	v, ok := mb.TryNext()
	if !ok || v != 7 {
		t.Errorf("TryNext() = (%d, %v), want (7, true)", v, ok)
	}
	if _, ok := mb.TryNext(); ok {
		t.Error("TryNext() returned the same value twice")
	}
}

// TestMailboxConcurrentProducers validates counters under concurrent Publish.
func TestMailboxConcurrentProducers(t *testing.T) {
	mb := mailbox.New[int]()

	const producers = 8
	const perProducer = 500

	var wg sync.WaitGroup
	for p := 0; p < producers; p++ {
		wg.Add(1)
		go func(p int) {
			defer wg.Done()
			for i := 0; i < perProducer; i++ {
				mb.Publish(p*perProducer + i)
			}
		}(p)
	}
	wg.Wait()

	stats := mb.Stats()
	if stats.Published != producers*perProducer {
		t.Errorf("Published = %d, want %d", stats.Published, producers*perProducer)
	}
	// Nothing consumed: every publish except the first overwrote a pending value.
	if stats.TotalDrops != producers*perProducer-1 {
		t.Errorf("TotalDrops = %d, want %d", stats.TotalDrops, producers*perProducer-1)
	}
	t.Logf("✅ %d concurrent publishes, drops=%d", stats.Published, stats.TotalDrops)
}
