package graph

import (
	"bytes"
	"errors"
	"testing"

	"github.com/e7canasta/orion-care-sensor/modules/stream-tee/internal/engine"
	"github.com/e7canasta/orion-care-sensor/modules/stream-tee/internal/engine/enginetest"
)

func newSampleSink(t *testing.T, consume ConsumeFunc) (*enginetest.SampleSink, *SamplerCounters) {
	t.Helper()
	eng := enginetest.New()
	st, err := eng.NewSampleSink("appsink", NameSampleSink)
	if err != nil {
		t.Fatalf("NewSampleSink() failed: %v", err)
	}
	sink := st.(*enginetest.SampleSink)
	counters := &SamplerCounters{}
	s := NewSampler(consume, counters)
	if err := sink.OnNewSample(s.HandleNewSample); err != nil {
		t.Fatalf("OnNewSample() failed: %v", err)
	}
	return sink, counters
}

// TestSampler_720pRGB validates the 1280x720 RGB extraction path end to end.
func TestSampler_720pRGB(t *testing.T) {
	data := make([]byte, 1280*720*3)
	for i := range data {
		data[i] = byte(i % 251)
	}

	var got Frame
	var prefix []byte
	sink, counters := newSampleSink(t, func(f Frame) error {
		got = f
		prefix = append([]byte(nil), f.Data[:16]...)
		return nil
	})

	smp := enginetest.NewSample(rawVideo720, data)
	if flow := sink.Deliver(smp); flow != engine.FlowOK {
		t.Fatalf("Deliver() = %s, want ok", flow)
	}

	if got.Format.Width != 1280 || got.Format.Height != 720 || got.Format.PixelFormat != "RGB" {
		t.Errorf("frame format = %v, want 1280x720 RGB", got.Format)
	}
	if got.Size() != 1280*720*3 {
		t.Errorf("frame size = %d, want %d", got.Size(), 1280*720*3)
	}
	if !bytes.Equal(prefix, data[:16]) {
		t.Errorf("prefix = %x, want %x", prefix, data[:16])
	}
	if got.Seq != 1 || got.TraceID == "" || got.Timestamp.IsZero() {
		t.Errorf("frame metadata not set: seq=%d trace=%q ts=%v", got.Seq, got.TraceID, got.Timestamp)
	}
	if smp.Buf.Maps() != 1 || smp.Buf.Releases() != 1 {
		t.Errorf("maps/releases = %d/%d, want 1/1", smp.Buf.Maps(), smp.Buf.Releases())
	}
	if counters.Frames.Load() != 1 || counters.Bytes.Load() != uint64(len(data)) {
		t.Errorf("Frames/Bytes = %d/%d", counters.Frames.Load(), counters.Bytes.Load())
	}
	if f, ok := counters.LastFormat(); !ok || f != rawVideo720 {
		t.Errorf("LastFormat() = %v (%v)", f, ok)
	}

	t.Logf("✅ 1280x720 RGB frame: %d bytes, first 16: %x", got.Size(), prefix)
}

func TestSampler_ExtractionFailures(t *testing.T) {
	f := rawVideo720

	tests := []struct {
		name     string
		sample   func() *enginetest.Sample
		wantMaps int
	}{
		{"no_sample", func() *enginetest.Sample { return nil }, 0},
		{"no_buffer", func() *enginetest.Sample { return &enginetest.Sample{Fmt: &f} }, 0},
		{"no_format", func() *enginetest.Sample {
			return &enginetest.Sample{Buf: &enginetest.Buffer{Data: []byte{1, 2, 3}}}
		}, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			called := false
			sink, counters := newSampleSink(t, func(Frame) error { called = true; return nil })

			smp := tt.sample()
			var flow engine.FlowReturn
			if smp == nil {
				flow = sink.Deliver(nil)
			} else {
				flow = sink.Deliver(smp)
			}

			if flow != engine.FlowError {
				t.Errorf("Deliver() = %s, want error", flow)
			}
			if called {
				t.Error("consumer called on extraction failure")
			}
			if counters.FlowErrors.Load() != 1 {
				t.Errorf("FlowErrors = %d, want 1", counters.FlowErrors.Load())
			}
			if smp != nil && smp.Buf != nil {
				if smp.Buf.Maps() != tt.wantMaps || smp.Buf.Releases() != smp.Buf.Maps() {
					t.Errorf("maps/releases = %d/%d", smp.Buf.Maps(), smp.Buf.Releases())
				}
			}
		})
	}
}

func TestSampler_UnmappableBufferSkipped(t *testing.T) {
	f := rawVideo720
	called := false
	sink, counters := newSampleSink(t, func(Frame) error { called = true; return nil })

	smp := &enginetest.Sample{Buf: &enginetest.Buffer{Data: []byte{1}, FailMap: true}, Fmt: &f}
	if flow := sink.Deliver(smp); flow != engine.FlowOK {
		t.Errorf("Deliver() = %s, want ok", flow)
	}
	if called {
		t.Error("consumer called for a buffer that could not be mapped")
	}
	if counters.MapFailures.Load() != 1 || counters.FlowErrors.Load() != 0 || counters.Frames.Load() != 0 {
		t.Errorf("MapFailures/FlowErrors/Frames = %d/%d/%d, want 1/0/0",
			counters.MapFailures.Load(), counters.FlowErrors.Load(), counters.Frames.Load())
	}
	if smp.Buf.Releases() != 0 {
		t.Errorf("Releases = %d, want 0 (nothing was mapped)", smp.Buf.Releases())
	}
}

func TestSampler_Extract_ErrExtraction(t *testing.T) {
	sink, _ := newSampleSink(t, nil)
	s := NewSampler(nil, nil)
	if err := s.Extract(sink); !errors.Is(err, ErrExtraction) {
		t.Errorf("Extract(empty) error = %v, want ErrExtraction", err)
	}
}

// TestSampler_ViewReleasedOnConsumerFailure validates that the mapped view is
// released whatever the consumer does, and flow stays OK.
func TestSampler_ViewReleasedOnConsumerFailure(t *testing.T) {
	tests := []struct {
		name       string
		consume    ConsumeFunc
		wantErrors uint64
		wantPanics uint64
	}{
		{"returns_error", func(Frame) error { return errors.New("analysis failed") }, 1, 0},
		{"panics", func(Frame) error { panic("index out of range") }, 1, 1},
		{"nil_consumer", nil, 0, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sink, counters := newSampleSink(t, tt.consume)

			smp := enginetest.NewSample(rawVideo720, []byte{0xde, 0xad, 0xbe, 0xef})
			if flow := sink.Deliver(smp); flow != engine.FlowOK {
				t.Errorf("Deliver() = %s, want ok", flow)
			}
			if smp.Buf.Releases() != 1 {
				t.Errorf("view released %d times, want 1", smp.Buf.Releases())
			}
			if counters.ConsumerErrors.Load() != tt.wantErrors {
				t.Errorf("ConsumerErrors = %d, want %d", counters.ConsumerErrors.Load(), tt.wantErrors)
			}
			if counters.ConsumerPanics.Load() != tt.wantPanics {
				t.Errorf("ConsumerPanics = %d, want %d", counters.ConsumerPanics.Load(), tt.wantPanics)
			}
		})
	}
}

func TestSampler_SequenceAndTrace(t *testing.T) {
	var frames []Frame
	sink, _ := newSampleSink(t, func(f Frame) error {
		frames = append(frames, f.Clone())
		return nil
	})

	for i := 0; i < 5; i++ {
		sink.Deliver(enginetest.NewSample(rawVideo720, []byte{byte(i)}))
	}

	if len(frames) != 5 {
		t.Fatalf("got %d frames, want 5", len(frames))
	}
	seen := make(map[string]bool)
	for i, f := range frames {
		if f.Seq != uint64(i+1) {
			t.Errorf("frame %d Seq = %d", i, f.Seq)
		}
		if seen[f.TraceID] {
			t.Errorf("duplicate TraceID %s", f.TraceID)
		}
		seen[f.TraceID] = true
		if f.Data[0] != byte(i) {
			t.Errorf("frame %d data = %x", i, f.Data)
		}
	}
}

func TestFrame_Clone(t *testing.T) {
	orig := Frame{Seq: 3, Format: rawVideo720, Data: []byte{1, 2, 3}}
	c := orig.Clone()
	orig.Data[0] = 9

	if c.Data[0] != 1 {
		t.Error("Clone() shares Data with the original")
	}
	if c.Seq != 3 || c.Format != rawVideo720 {
		t.Errorf("Clone() lost metadata: %+v", c)
	}
	if (Frame{}).Clone().Data != nil {
		t.Error("Clone() of empty frame allocated Data")
	}
}
