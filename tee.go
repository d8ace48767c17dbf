package streamtee

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/e7canasta/orion-care-sensor/modules/stream-tee/internal/engine"
	"github.com/e7canasta/orion-care-sensor/modules/stream-tee/internal/gstengine"
	"github.com/e7canasta/orion-care-sensor/modules/stream-tee/internal/graph"
	"github.com/e7canasta/orion-care-sensor/modules/stream-tee/internal/rate"
)

// Option customizes a TeeStream
type Option func(*TeeStream)

// WithEngine replaces the GStreamer engine (tests use enginetest)
func WithEngine(e engine.Engine) Option {
	return func(s *TeeStream) { s.eng = e }
}

// WithConsumer sets the frame consumer. Default: PrefixLogger.
func WithConsumer(c FrameConsumer) Option {
	return func(s *TeeStream) { s.consumer = c }
}

// WithEventHandler registers fn for session events. fn may run on engine
// threads and must not block.
func WithEventHandler(fn func(SessionEvent)) Option {
	return func(s *TeeStream) { s.onEvent = fn }
}

// TeeStream implements Provider: one decoded source fanned out to a display
// branch and a frame-sampling branch.
type TeeStream struct {
	cfg      Config
	eng      engine.Engine
	consumer FrameConsumer
	onEvent  func(SessionEvent)

	// Statistics (atomic, shared across sessions)
	resolverCounters graph.ResolverCounters
	samplerCounters  graph.SamplerCounters
	errorCounters    graph.ErrorCounters
	restartState     graph.RestartState
	sessions         atomic.Uint64
	window           *rate.Window

	// Lifecycle
	mu         sync.Mutex
	cancel     context.CancelFunc
	controller *graph.Controller
	started    time.Time
	running    atomic.Bool
	stopped    atomic.Bool
}

// NewTeeStream creates a tee stream with fail-fast validation
//
// Validates configuration at construction time:
//   - URI must not be empty and must carry a scheme
//   - Capture format must be a video media kind
//   - Width and height must be set together
//   - Restart delays must be consistent when restarts are enabled
//
// Without WithEngine, GStreamer is initialized and every configured stage
// factory is checked for availability.
func NewTeeStream(cfg Config, opts ...Option) (*TeeStream, error) {
	cfg = withDefaults(cfg)
	if err := validate(cfg); err != nil {
		return nil, err
	}

	s := &TeeStream{
		cfg:    cfg,
		window: rate.NewWindow(0),
	}
	for _, opt := range opts {
		opt(s)
	}

	if s.eng == nil {
		gst := gstengine.New()
		if err := gst.Available(cfg.Stages.Factories()...); err != nil {
			return nil, fmt.Errorf("stream-tee: GStreamer not available: %w", err)
		}
		s.eng = gst
	}
	if s.consumer == nil {
		s.consumer = NewPrefixLogger(cfg.PrefixBytes)
	}

	slog.Info("stream-tee: stream created",
		"uri", cfg.URI,
		"pipeline", cfg.PipelineName,
		"capture_format", cfg.CaptureFormat.CapsString(),
		"display_sink", cfg.Stages.DisplaySink,
		"max_restarts", cfg.Restart.MaxRestarts,
	)
	return s, nil
}

func withDefaults(cfg Config) Config {
	if cfg.PipelineName == "" {
		cfg.PipelineName = "test-pipeline"
	}
	cfg.Stages = cfg.Stages.WithDefaults()
	if cfg.CaptureFormat.MediaKind == "" {
		cfg.CaptureFormat.MediaKind = DefaultCaptureFormat.MediaKind
	}
	if cfg.CaptureFormat.PixelFormat == "" {
		cfg.CaptureFormat.PixelFormat = DefaultCaptureFormat.PixelFormat
	}
	if cfg.PrefixBytes == 0 {
		cfg.PrefixBytes = DefaultPrefixBytes
	}
	def := graph.DefaultRestartConfig()
	if cfg.Restart.InitialDelay == 0 {
		cfg.Restart.InitialDelay = def.InitialDelay
	}
	if cfg.Restart.MaxDelay == 0 {
		cfg.Restart.MaxDelay = def.MaxDelay
	}
	return cfg
}

func validate(cfg Config) error {
	if strings.TrimSpace(cfg.URI) == "" {
		return fmt.Errorf("stream-tee: source URI is required")
	}
	if !strings.Contains(cfg.URI, "://") {
		return fmt.Errorf("stream-tee: source URI %q has no scheme", cfg.URI)
	}
	if !strings.HasPrefix(cfg.CaptureFormat.MediaKind, "video/") {
		return fmt.Errorf("stream-tee: capture format %q is not video", cfg.CaptureFormat.MediaKind)
	}
	if cfg.CaptureFormat.Width < 0 || cfg.CaptureFormat.Height < 0 {
		return fmt.Errorf("stream-tee: invalid capture size %dx%d", cfg.CaptureFormat.Width, cfg.CaptureFormat.Height)
	}
	if (cfg.CaptureFormat.Width == 0) != (cfg.CaptureFormat.Height == 0) {
		return fmt.Errorf("stream-tee: capture width and height must be set together")
	}
	if cfg.PrefixBytes < 0 {
		return fmt.Errorf("stream-tee: invalid prefix length %d", cfg.PrefixBytes)
	}
	if cfg.Restart.MaxRestarts < 0 {
		return fmt.Errorf("stream-tee: invalid max restarts %d", cfg.Restart.MaxRestarts)
	}
	if cfg.Restart.MaxDelay < cfg.Restart.InitialDelay {
		return fmt.Errorf("stream-tee: restart max delay %v below initial delay %v",
			cfg.Restart.MaxDelay, cfg.Restart.InitialDelay)
	}
	return nil
}

// Run builds the graph, starts playback and blocks until the session ends.
//
// With restarts enabled, a runtime error rebuilds the whole graph after an
// exponential backoff; construction and startup errors are never retried.
func (s *TeeStream) Run(ctx context.Context) error {
	if !s.running.CompareAndSwap(false, true) {
		return fmt.Errorf("stream-tee: stream already running")
	}
	defer s.running.Store(false)

	if s.stopped.Load() {
		slog.Info("stream-tee: stop requested before run, nothing to do")
		return nil
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	s.mu.Lock()
	s.cancel = cancel
	s.started = time.Now()
	s.mu.Unlock()

	// Stop may have raced with the cancel registration
	if s.stopped.Load() {
		cancel()
	}

	restartCfg := graph.RestartConfig{
		MaxRestarts:  s.cfg.Restart.MaxRestarts,
		InitialDelay: s.cfg.Restart.InitialDelay,
		MaxDelay:     s.cfg.Restart.MaxDelay,
	}
	err := graph.RunWithRestart(runCtx, s.runSession, restartCfg, &s.restartState)

	stats := s.Stats()
	if err != nil {
		slog.Error("stream-tee: stream stopped",
			"error", err,
			"uri", s.cfg.URI,
			"uptime", stats.Uptime.Round(time.Millisecond),
			"frames_sampled", stats.FramesSampled,
			"restarts", stats.Restarts,
		)
		return err
	}

	slog.Info("stream-tee: stream stopped",
		"uri", s.cfg.URI,
		"uptime", stats.Uptime.Round(time.Millisecond),
		"frames_sampled", stats.FramesSampled,
	)
	return nil
}

// runSession builds, plays and supervises one graph instance.
func (s *TeeStream) runSession(ctx context.Context) error {
	n := s.sessions.Add(1)
	slog.Info("stream-tee: building pipeline", "session", n, "uri", s.cfg.URI)

	// Sampling rate is per session
	s.window.Reset()

	g, err := graph.Build(s.eng, s.graphSpec())
	if err != nil {
		return fmt.Errorf("stream-tee: %w", err)
	}

	resolver := graph.NewResolver(g.SplitterSink(), &s.resolverCounters)
	resolver.OnLinked(func(f engine.Format) {
		s.emit(SessionEvent{Kind: EventLinked, Format: f})
	})
	sampler := graph.NewSampler(s.consume, &s.samplerCounters)

	if err := g.Attach(resolver, sampler); err != nil {
		if terr := g.Teardown(); terr != nil {
			slog.Warn("stream-tee: teardown after failed attach", "error", terr)
		}
		return fmt.Errorf("stream-tee: %w", err)
	}

	ctrl := graph.NewController(g, s.eng.NewLoop(), &s.errorCounters, func(ev engine.ErrorEvent, cat graph.ErrorCategory) {
		s.emit(SessionEvent{
			Kind:     EventError,
			Stage:    ev.Source,
			Message:  ev.Message,
			Category: cat.String(),
		})
	})

	if err := ctrl.Start(); err != nil {
		return fmt.Errorf("stream-tee: %w", err)
	}

	s.mu.Lock()
	s.controller = ctrl
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		s.controller = nil
		s.mu.Unlock()
	}()

	s.emit(SessionEvent{Kind: EventStarted})

	framesBefore := s.samplerCounters.Frames.Load()
	err = ctrl.Run(ctx)

	// A session that produced frames was healthy: restart budget starts over.
	if s.samplerCounters.Frames.Load() > framesBefore {
		graph.ResetRestartState(&s.restartState)
	}

	stats := s.Stats()
	s.emit(SessionEvent{Kind: EventStopped, Stats: &stats})

	if err != nil {
		return fmt.Errorf("stream-tee: %w", err)
	}
	return nil
}

func (s *TeeStream) graphSpec() graph.Spec {
	sampleProps := map[string]any{
		"drop": s.cfg.SampleSink.Drop,
		"sync": s.cfg.SampleSink.Sync,
	}
	if s.cfg.SampleSink.MaxBuffers > 0 {
		sampleProps["max-buffers"] = s.cfg.SampleSink.MaxBuffers
	}
	return graph.Spec{
		Name:             s.cfg.PipelineName,
		SourceURI:        s.cfg.URI,
		Kinds:            s.cfg.Stages,
		CaptureFormat:    s.cfg.CaptureFormat,
		SampleSinkProps:  sampleProps,
		DisplaySinkProps: map[string]any{"sync": s.cfg.DisplaySync},
	}
}

// consume runs on the engine's streaming thread.
func (s *TeeStream) consume(f Frame) error {
	s.window.Record(f.Timestamp)
	return s.consumer.Consume(f)
}

func (s *TeeStream) emit(ev SessionEvent) {
	if s.onEvent == nil {
		return
	}
	ev.Pipeline = s.cfg.PipelineName
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now()
	}
	s.onEvent(ev)
}

// Stop requests the run loop to exit. Idempotent, safe before Run.
func (s *TeeStream) Stop() error {
	if !s.stopped.CompareAndSwap(false, true) {
		return nil
	}

	s.mu.Lock()
	cancel := s.cancel
	ctrl := s.controller
	s.mu.Unlock()

	slog.Info("stream-tee: stopping stream", "uri", s.cfg.URI)
	if ctrl != nil {
		ctrl.RequestStop("stop requested")
	}
	if cancel != nil {
		cancel()
	}
	return nil
}

// Stats returns current stream statistics
func (s *TeeStream) Stats() TeeStats {
	s.mu.Lock()
	started := s.started
	ctrl := s.controller
	s.mu.Unlock()

	now := time.Now()
	st := TeeStats{
		State:          graph.StateIdle.String(),
		IsRunning:      s.running.Load(),
		Sessions:       s.sessions.Load(),
		Restarts:       s.restartState.Restarts.Load(),
		FramesSampled:  s.samplerCounters.Frames.Load(),
		BytesRead:      s.samplerCounters.Bytes.Load(),
		FlowErrors:     s.samplerCounters.FlowErrors.Load(),
		ConsumerErrors: s.samplerCounters.ConsumerErrors.Load(),
		FramesSkipped:  s.samplerCounters.MapFailures.Load(),
		OutputsLinked:  s.resolverCounters.OutputsLinked.Load(),
		OutputsIgnored: s.resolverCounters.OutputsIgnored.Load(),
		LinkFailures:   s.resolverCounters.LinkFailures.Load(),
		ErrorsNetwork:  s.errorCounters.Network.Load(),
		ErrorsCodec:    s.errorCounters.Codec.Load(),
		ErrorsAuth:     s.errorCounters.Auth.Load(),
		ErrorsResource: s.errorCounters.Resource.Load(),
		ErrorsUnknown:  s.errorCounters.Unknown.Load(),
	}
	if ctrl != nil {
		st.State = ctrl.State().String()
	} else if st.Sessions > 0 && !st.IsRunning {
		st.State = graph.StateStopped.String()
	}
	if !started.IsZero() {
		st.Uptime = now.Sub(started)
	}
	if f, ok := s.samplerCounters.LastFormat(); ok {
		st.LastFormat = f
		st.Resolution = fmt.Sprintf("%dx%d", f.Width, f.Height)
	}
	if last := s.samplerCounters.LastFrameAt(); !last.IsZero() {
		st.LatencyMS = now.Sub(last).Milliseconds()
	}
	r := s.window.Stats(now)
	st.FPSReal = r.FPSMean
	st.FPSStable = r.IsStable
	return st
}
