package streamtee

import "context"

// Provider defines the contract for a branching capture session
//
// Implementations must guarantee:
//   - Run() blocks until the session ends (error, Stop or ctx cancellation)
//   - Run() tears every stage down exactly once before returning
//   - Stop() is idempotent and safe from any goroutine, including before Run
//   - Stats() is thread-safe
type Provider interface {
	// Run builds the graph, starts playback and blocks on the run loop.
	//
	// Frames are delivered to the configured FrameConsumer on engine
	// threads while Run blocks.
	//
	// Returns nil after an external stop, or an error if:
	//   - A stage or static link cannot be created (graph construction)
	//   - The engine refuses to start playback
	//   - The engine reports a runtime error (decode failure, unreachable
	//     source) and no restart is left
	//
	// Example:
	//   stream, _ := NewTeeStream(cfg)
	//   go func() {
	//       <-time.After(10 * time.Second)
	//       stream.Stop()
	//   }()
	//   if err := stream.Run(ctx); err != nil {
	//       log.Printf("session ended: %v", err)
	//   }
	Run(ctx context.Context) error

	// Stop requests the run loop to exit through the same path as a
	// runtime error, without marking the session failed.
	Stop() error

	// Stats returns current stream statistics.
	Stats() TeeStats
}

var _ Provider = (*TeeStream)(nil)
