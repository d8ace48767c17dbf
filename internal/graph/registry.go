package graph

import (
	"fmt"
	"log/slog"

	"github.com/e7canasta/orion-care-sensor/modules/stream-tee/internal/engine"
)

// Kinds names the engine factory used for each stage kind.
type Kinds struct {
	Source      string
	Splitter    string
	Queue       string
	Converter   string
	DisplaySink string
	SampleSink  string
}

// DefaultKinds returns the GStreamer factories the graph is designed around
func DefaultKinds() Kinds {
	return Kinds{
		Source:      "uridecodebin",
		Splitter:    "tee",
		Queue:       "queue",
		Converter:   "videoconvert",
		DisplaySink: "autovideosink",
		SampleSink:  "appsink",
	}
}

// WithDefaults fills empty kinds from DefaultKinds
func (k Kinds) WithDefaults() Kinds {
	d := DefaultKinds()
	if k.Source == "" {
		k.Source = d.Source
	}
	if k.Splitter == "" {
		k.Splitter = d.Splitter
	}
	if k.Queue == "" {
		k.Queue = d.Queue
	}
	if k.Converter == "" {
		k.Converter = d.Converter
	}
	if k.DisplaySink == "" {
		k.DisplaySink = d.DisplaySink
	}
	if k.SampleSink == "" {
		k.SampleSink = d.SampleSink
	}
	return k
}

// Factories lists every distinct factory name
func (k Kinds) Factories() []string {
	seen := make(map[string]bool)
	var out []string
	for _, f := range []string{k.Source, k.Splitter, k.Queue, k.Converter, k.DisplaySink, k.SampleSink} {
		if f == "" || seen[f] {
			continue
		}
		seen[f] = true
		out = append(out, f)
	}
	return out
}

// Stage names inside the pipeline. Error events carry these as their source.
const (
	NameSource         = "video_source"
	NameSplitter       = "tee"
	NameDisplayQueue   = "video_queue"
	NameDisplayConvert = "video_convert"
	NameDisplaySink    = "video_sink"
	NameSampleQueue    = "app_queue"
	NameSampleConvert  = "app_convert"
	NameSampleSink     = "app_sink"
)

// registry instantiates stages from the engine and stops at the first
// factory that is unavailable.
type registry struct {
	eng   engine.Engine
	kinds Kinds
	err   error
}

func (r *registry) stage(factory, name string) engine.Stage {
	if r.err != nil {
		return nil
	}
	st, err := r.eng.NewStage(factory, name)
	if err != nil {
		r.fail(factory, name, err)
		return nil
	}
	slog.Debug("graph: stage created", "stage", name, "factory", factory)
	return st
}

func (r *registry) sampleSink(factory, name string) engine.SampleSink {
	if r.err != nil {
		return nil
	}
	st, err := r.eng.NewSampleSink(factory, name)
	if err != nil {
		r.fail(factory, name, err)
		return nil
	}
	slog.Debug("graph: stage created", "stage", name, "factory", factory)
	return st
}

func (r *registry) fail(factory, name string, err error) {
	slog.Error("graph: stage could not be created",
		"stage", name,
		"factory", factory,
		"error", err,
	)
	r.err = fmt.Errorf("%w: stage %s (%s): %v", ErrConstruction, name, factory, err)
}
