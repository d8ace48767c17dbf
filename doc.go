// Package streamtee decodes one media source and fans it out to two
// independent branches: a display sink and a programmatic frame-sampling
// sink.
//
// Decoding, color conversion and rendering are delegated to GStreamer.
// This package owns the graph around them: it assembles the stages, links
// the source's video output into the splitter once the decoder has
// negotiated it at runtime, pulls finished buffers off the sampling branch
// without stalling it, and turns asynchronous engine errors into an orderly
// shutdown.
//
// # Quick Start
//
//	cfg := streamtee.Config{
//	    URI: "file:///videos/sample.mp4",
//	}
//
//	stream, err := streamtee.NewTeeStream(cfg,
//	    streamtee.WithConsumer(streamtee.ConsumerFunc(func(f streamtee.Frame) error {
//	        // f.Data is valid only during this call
//	        log.Printf("frame %d: %s, %d bytes", f.Seq, f.Format, len(f.Data))
//	        return nil
//	    })),
//	)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
//	defer cancel()
//
//	if err := stream.Run(ctx); err != nil {
//	    log.Printf("session ended: %v", err)
//	}
//
// # Topology
//
//	uridecodebin ~> tee ─┬─ queue → videoconvert → autovideosink
//	                     └─ queue → videoconvert → appsink (video/x-raw,format=RGB)
//
// The source → tee link (~>) is made when the decoder exposes its first raw
// video output. Audio outputs and further video outputs are ignored.
//
// # Consumers
//
// Frames are handed to a FrameConsumer on the engine's streaming thread:
//
//   - PrefixLogger (default): logs format and the first 16 bytes
//   - ChannelConsumer: non-blocking copy into a buffered channel, drops when full
//   - MailboxConsumer: keeps only the latest frame for a blocking reader
//   - MultiConsumer: fans one frame out to several consumers
//
// A consumer that returns an error or panics is counted in TeeStats; the
// mapped buffer is released either way and the pipeline keeps running.
//
// # Error Handling
//
//   - Construction errors (missing element, refused link): returned by Run
//     before playback starts
//   - Startup errors (engine refuses PLAYING): returned by Run
//   - Extraction errors (no buffer or caps): reported to the engine as a
//     flow error for that buffer only; an unmappable buffer is skipped and
//     counted in TeeStats.FramesSkipped
//   - Runtime errors (decode failure, unreachable source): stop the session,
//     classified as network, codec, auth, resource or unknown
//
// Runtime errors end Run unless Config.Restart allows rebuilding the graph
// with exponential backoff.
package streamtee
