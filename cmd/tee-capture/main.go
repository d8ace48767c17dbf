package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"sync/atomic"
	"syscall"
	"time"

	streamtee "github.com/e7canasta/orion-care-sensor/modules/stream-tee"
	"github.com/e7canasta/orion-care-sensor/modules/stream-tee/internal/config"
	"github.com/e7canasta/orion-care-sensor/modules/stream-tee/internal/emitter"
)

// Version information
const version = "v0.1.0"

func main() {
	// Parse command-line flags
	configPath := flag.String("config", "", "YAML configuration file (optional)")
	uri := flag.String("uri", "", "Source URI, e.g. file:///videos/sample.mp4 (required unless set in config)")
	pixelFormat := flag.String("format", "", "Capture pixel format: RGB, RGBA, BGR, GRAY8 (default from config)")
	displaySink := flag.String("display-sink", "", "Display sink factory, e.g. fakesink for headless runs")
	prefixBytes := flag.Int("prefix-bytes", 0, "Bytes of each frame to log (default from config)")
	outputDir := flag.String("output", "", "Directory to save sampled frames as PNG (optional)")
	maxFrames := flag.Int("max-frames", 0, "Stop after this many frames (0 = unlimited)")
	statsInterval := flag.Int("stats-interval", 10, "Seconds between stats reports (0 = off)")
	maxRestarts := flag.Int("max-restarts", -1, "Rebuilds allowed after runtime errors (-1 = from config)")
	debug := flag.Bool("debug", false, "Enable debug logging")
	jsonLogs := flag.Bool("json-logs", false, "Log as JSON")
	showVersion := flag.Bool("version", false, "Show version and exit")
	flag.Parse()

	// Show version
	if *showVersion {
		fmt.Printf("tee-capture %s\n", version)
		os.Exit(0)
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Flags override the file
	if *uri != "" {
		cfg.Source.URI = *uri
	}
	if *pixelFormat != "" {
		cfg.Capture.PixelFormat = strings.ToUpper(*pixelFormat)
	}
	if *displaySink != "" {
		cfg.Stages.DisplaySink = *displaySink
	}
	if *prefixBytes > 0 {
		cfg.Sampler.PrefixBytes = *prefixBytes
	}
	if *maxRestarts >= 0 {
		cfg.Restart.MaxRestarts = *maxRestarts
	}
	if *debug {
		cfg.Logging.Level = "debug"
	}
	if *jsonLogs {
		cfg.Logging.Format = "json"
	}

	if err := config.Validate(cfg); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}
	if err := config.ValidateSource(cfg); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n\n", err)
		fmt.Fprintf(os.Stderr, "Usage example:\n")
		fmt.Fprintf(os.Stderr, "  tee-capture --uri file:///videos/sample.mp4\n")
		fmt.Fprintf(os.Stderr, "  tee-capture --uri rtsp://192.168.1.100/stream --display-sink fakesink --output ./frames\n\n")
		flag.PrintDefaults()
		os.Exit(1)
	}

	setupLogging(cfg.Logging)

	// Create output directory if specified
	if *outputDir != "" {
		if err := os.MkdirAll(*outputDir, 0755); err != nil {
			log.Fatalf("Failed to create output directory: %v", err)
		}
		slog.Info("Frame saving enabled", "directory", *outputDir, "pixel_format", cfg.Capture.PixelFormat)
	}

	printBanner(cfg, *outputDir, *maxFrames)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	// Optional event publishing
	var events *eventPublisher
	if cfg.MQTT.Enabled() {
		em := emitter.NewMQTTEmitter(emitter.Config{
			Broker:   cfg.MQTT.Broker,
			ClientID: cfg.MQTT.ClientID,
			Topic:    cfg.MQTT.Topic,
			QoS:      cfg.MQTT.QoS,
		})
		if err := em.Connect(ctx); err != nil {
			slog.Warn("MQTT unavailable, events will not be published", "error", err)
		} else {
			events = newEventPublisher(em, cfg.InstanceID)
		}
	}

	// Consumers: diagnostic log, frame saver, frame limit
	var stream *streamtee.TeeStream
	var sampled atomic.Int64
	consumers := streamtee.MultiConsumer{streamtee.NewPrefixLogger(cfg.Sampler.PrefixBytes)}

	var saver *streamtee.MailboxConsumer
	if *outputDir != "" {
		saver = streamtee.NewMailboxConsumer()
		consumers = append(consumers, saver)
	}
	if *maxFrames > 0 {
		limit := int64(*maxFrames)
		consumers = append(consumers, streamtee.ConsumerFunc(func(streamtee.Frame) error {
			if sampled.Add(1) == limit {
				fmt.Printf("\nReached maximum frames (%d), stopping...\n", limit)
				stream.Stop()
			}
			return nil
		}))
	}

	opts := []streamtee.Option{streamtee.WithConsumer(consumers)}
	if events != nil {
		opts = append(opts, streamtee.WithEventHandler(events.Handle))
	}

	stream, err = streamtee.NewTeeStream(toStreamConfig(cfg), opts...)
	if err != nil {
		log.Fatalf("Failed to create stream: %v", err)
	}

	var framesSaved, saveErrors atomic.Int64
	saverDone := make(chan struct{})
	if saver != nil {
		go func() {
			defer close(saverDone)
			for {
				f, ok := saver.Next()
				if !ok {
					return
				}
				if err := saveFrame(*outputDir, f); err != nil {
					slog.Error("Failed to save frame", "error", err, "seq", f.Seq)
					saveErrors.Add(1)
					continue
				}
				framesSaved.Add(1)
			}
		}()
	} else {
		close(saverDone)
	}

	if *statsInterval > 0 {
		go reportStats(ctx, stream, time.Duration(*statsInterval)*time.Second)
	}

	fmt.Printf("Press Ctrl+C to stop gracefully\n")
	fmt.Printf("═══════════════════════════════════════════════════════════\n\n")

	runErr := stream.Run(ctx)

	// Run has emitted its last event; deliver the queue before disconnecting
	if events != nil {
		events.Close()
	}

	if saver != nil {
		// A frame still pending in the mailbox would be discarded by Close
		if f, ok := saver.Latest(); ok {
			if err := saveFrame(*outputDir, f); err != nil {
				slog.Error("Failed to save frame", "error", err, "seq", f.Seq)
				saveErrors.Add(1)
			} else {
				framesSaved.Add(1)
			}
		}
		saver.Close()
	}
	<-saverDone

	printFinalStats(stream.Stats(), *outputDir, framesSaved.Load(), saveErrors.Load())

	switch {
	case runErr == nil:
		slog.Info("Tee capture completed successfully")
	case errors.Is(runErr, streamtee.ErrRuntime):
		// Already reported by the stream; a runtime error still ends cleanly
		slog.Warn("Tee capture ended after a runtime error", "error", runErr)
	default:
		slog.Error("Tee capture failed", "error", runErr)
		os.Exit(1)
	}
}

func loadConfig(path string) (*config.Config, error) {
	if path == "" {
		cfg := config.Default()
		return &cfg, nil
	}
	return config.Load(path)
}

func setupLogging(lc config.LoggingConfig) {
	var level slog.Level
	switch lc.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if lc.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}
	slog.SetDefault(slog.New(handler))
}

func toStreamConfig(cfg *config.Config) streamtee.Config {
	maxBuffers := uint(0)
	if cfg.Sampler.MaxBuffers > 0 {
		maxBuffers = uint(cfg.Sampler.MaxBuffers)
	}
	return streamtee.Config{
		URI:          cfg.Source.URI,
		PipelineName: cfg.Pipeline.Name,
		Stages: streamtee.StageKinds{
			Source:      cfg.Stages.Source,
			Splitter:    cfg.Stages.Splitter,
			Queue:       cfg.Stages.Queue,
			Converter:   cfg.Stages.Converter,
			DisplaySink: cfg.Stages.DisplaySink,
			SampleSink:  cfg.Stages.SampleSink,
		},
		CaptureFormat: streamtee.Format{
			MediaKind:   cfg.Capture.MediaKind,
			PixelFormat: cfg.Capture.PixelFormat,
			Width:       cfg.Capture.Width,
			Height:      cfg.Capture.Height,
		},
		SampleSink: streamtee.SinkTuning{
			MaxBuffers: maxBuffers,
			Drop:       cfg.Sampler.Drop,
			Sync:       cfg.Sampler.Sync,
		},
		DisplaySync: cfg.Sampler.DisplaySync,
		PrefixBytes: cfg.Sampler.PrefixBytes,
		Restart: streamtee.RestartPolicy{
			MaxRestarts:  cfg.Restart.MaxRestarts,
			InitialDelay: cfg.Restart.InitialDelay,
			MaxDelay:     cfg.Restart.MaxDelay,
		},
	}
}

func printBanner(cfg *config.Config, outputDir string, maxFrames int) {
	fmt.Printf("\n")
	fmt.Printf("╔═══════════════════════════════════════════════════════════╗\n")
	fmt.Printf("║           Stream Tee Capture - Orion 2.0 Module           ║\n")
	fmt.Printf("║                      Version %s                       ║\n", version)
	fmt.Printf("╚═══════════════════════════════════════════════════════════╝\n")
	fmt.Printf("\n")
	fmt.Printf("Configuration:\n")
	fmt.Printf("  Source URI:    %s\n", cfg.Source.URI)
	fmt.Printf("  Pipeline:      %s\n", cfg.Pipeline.Name)
	fmt.Printf("  Capture:       %s %s\n", cfg.Capture.MediaKind, cfg.Capture.PixelFormat)
	fmt.Printf("  Display Sink:  %s\n", cfg.Stages.DisplaySink)
	fmt.Printf("  Max Restarts:  %d\n", cfg.Restart.MaxRestarts)
	if outputDir != "" {
		fmt.Printf("  Output Dir:    %s\n", outputDir)
	} else {
		fmt.Printf("  Output Dir:    (none - frames not saved)\n")
	}
	if maxFrames > 0 {
		fmt.Printf("  Max Frames:    %d\n", maxFrames)
	} else {
		fmt.Printf("  Max Frames:    unlimited\n")
	}
	if cfg.MQTT.Enabled() {
		fmt.Printf("  MQTT Events:   %s (%s)\n", cfg.MQTT.Broker, cfg.MQTT.Topic)
	}
	fmt.Printf("\n")
}

func reportStats(ctx context.Context, stream *streamtee.TeeStream, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			stats := stream.Stats()
			fmt.Printf("\n")
			fmt.Printf("╭─────────────────────────────────────────────────────────╮\n")
			fmt.Printf("│ Stream Statistics (Uptime: %s, State: %s)\n", stats.Uptime.Round(time.Second), stats.State)
			fmt.Printf("├─────────────────────────────────────────────────────────┤\n")
			fmt.Printf("│ Frames Sampled:     %6d frames\n", stats.FramesSampled)
			fmt.Printf("│ Resolution:         %6s\n", stats.Resolution)
			fmt.Printf("│ Real FPS:           %6.2f fps (stable: %v)\n", stats.FPSReal, stats.FPSStable)
			fmt.Printf("│ Latency:            %6d ms\n", stats.LatencyMS)
			fmt.Printf("│ Bytes Read:         %6.2f MB\n", float64(stats.BytesRead)/1024/1024)
			fmt.Printf("│ Flow Errors:        %6d\n", stats.FlowErrors)
			fmt.Printf("│ Consumer Errors:    %6d\n", stats.ConsumerErrors)
			fmt.Printf("│ Outputs Linked:     %6d (ignored: %d)\n", stats.OutputsLinked, stats.OutputsIgnored)
			fmt.Printf("│ Restarts:           %6d\n", stats.Restarts)
			totalErrors := stats.ErrorsNetwork + stats.ErrorsCodec + stats.ErrorsAuth + stats.ErrorsResource + stats.ErrorsUnknown
			if totalErrors > 0 {
				fmt.Printf("├─────────────────────────────────────────────────────────┤\n")
				fmt.Printf("│ Error Telemetry\n")
				fmt.Printf("├─────────────────────────────────────────────────────────┤\n")
				fmt.Printf("│ Network Errors:     %6d\n", stats.ErrorsNetwork)
				fmt.Printf("│ Codec Errors:       %6d\n", stats.ErrorsCodec)
				fmt.Printf("│ Auth Errors:        %6d\n", stats.ErrorsAuth)
				fmt.Printf("│ Resource Errors:    %6d\n", stats.ErrorsResource)
				fmt.Printf("│ Unknown Errors:     %6d\n", stats.ErrorsUnknown)
			}
			fmt.Printf("╰─────────────────────────────────────────────────────────╯\n")
			fmt.Printf("\n")
		}
	}
}

func printFinalStats(stats streamtee.TeeStats, outputDir string, saved, saveErrors int64) {
	fmt.Printf("\n")
	fmt.Printf("═══════════════════════════════════════════════════════════\n")
	fmt.Printf("                     Final Statistics                      \n")
	fmt.Printf("═══════════════════════════════════════════════════════════\n")
	fmt.Printf("  Total Uptime:       %s\n", stats.Uptime.Round(time.Second))
	fmt.Printf("  Sessions:           %d (restarts: %d)\n", stats.Sessions, stats.Restarts)
	fmt.Printf("  Frames Sampled:     %d frames\n", stats.FramesSampled)
	if outputDir != "" {
		fmt.Printf("  Frames Saved:       %d frames\n", saved)
		fmt.Printf("  Save Errors:        %d\n", saveErrors)
	}
	fmt.Printf("  Last Format:        %s\n", stats.LastFormat)
	fmt.Printf("  Average FPS:        %.2f fps\n", stats.FPSReal)
	fmt.Printf("  Bytes Read:         %.2f MB\n", float64(stats.BytesRead)/1024/1024)
	fmt.Printf("═══════════════════════════════════════════════════════════\n")
	fmt.Printf("\n")
}
