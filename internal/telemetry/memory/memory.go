// Package memory keeps a session trace in memory and exports it as a JSON
// file when the session ends.
package memory

import (
	"compress/gzip"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/iamyashm/pyRace/internal/telemetry"
)

// Config holds memory backend configuration.
type Config struct {
	OutputDir      string
	CompressOutput bool
}

// Trace is the exported file layout.
type Trace struct {
	Session telemetry.Info     `json:"session"`
	EndedAt time.Time          `json:"endedAt"`
	Samples []telemetry.Sample `json:"samples"`
}

// Backend stores samples in memory and exports them to JSON
type Backend struct {
	cfg Config

	mu             sync.RWMutex
	info           *telemetry.Info
	samples        []telemetry.Sample
	lastExportPath string
}

// New creates a new memory backend
func New(cfg Config) *Backend {
	return &Backend{cfg: cfg}
}

// Init initializes the backend
func (b *Backend) Init() error {
	return nil
}

// Close cleans up resources
func (b *Backend) Close() error {
	return nil
}

// StartSession begins a new trace, discarding any previous one.
func (b *Backend) StartSession(info telemetry.Info) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.info = &info
	b.samples = nil
	return nil
}

// EndSession writes the trace to disk. With no output directory configured
// the trace is only kept in memory.
func (b *Backend) EndSession() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.info == nil {
		return errors.New("no session started")
	}
	if b.cfg.OutputDir == "" {
		return nil
	}
	return b.export()
}

// RecordSamples appends samples to the trace.
func (b *Backend) RecordSamples(samples []telemetry.Sample) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.info == nil {
		return errors.New("no session started")
	}
	b.samples = append(b.samples, samples...)
	return nil
}

// Samples returns a copy of the recorded samples.
func (b *Backend) Samples() []telemetry.Sample {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]telemetry.Sample, len(b.samples))
	copy(out, b.samples)
	return out
}

// LastExportPath returns the path of the most recent export, if any.
func (b *Backend) LastExportPath() string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.lastExportPath
}

func (b *Backend) export() error {
	trace := Trace{
		Session: *b.info,
		EndedAt: time.Now(),
		Samples: b.samples,
	}
	if trace.Samples == nil {
		trace.Samples = []telemetry.Sample{}
	}

	id := strings.NewReplacer(" ", "_", ":", "_", "/", "_").Replace(b.info.ID)
	filename := fmt.Sprintf("trace_%s_slot%d_%s.json", id, b.info.Slot, b.info.StartedAt.Format("20060102_150405"))
	if b.cfg.CompressOutput {
		filename += ".gz"
	}

	if err := os.MkdirAll(b.cfg.OutputDir, 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	outputPath := filepath.Join(b.cfg.OutputDir, filename)
	if err := writeTrace(outputPath, trace, b.cfg.CompressOutput); err != nil {
		return err
	}

	b.lastExportPath = outputPath
	return nil
}

func writeTrace(path string, trace Trace, compress bool) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}
	defer f.Close()

	var w io.Writer = f
	if compress {
		gz := gzip.NewWriter(f)
		defer gz.Close()
		w = gz
	}

	if err := json.NewEncoder(w).Encode(trace); err != nil {
		return fmt.Errorf("failed to encode trace: %w", err)
	}
	return nil
}

// ReadTrace loads an exported trace, transparently decompressing .gz files.
func ReadTrace(path string) (*Trace, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var r io.Reader = f
	if strings.HasSuffix(path, ".gz") {
		gz, err := gzip.NewReader(f)
		if err != nil {
			return nil, fmt.Errorf("failed to open gzip stream: %w", err)
		}
		defer gz.Close()
		r = gz
	}

	var trace Trace
	if err := json.NewDecoder(r).Decode(&trace); err != nil {
		return nil, fmt.Errorf("failed to decode trace: %w", err)
	}
	return &trace, nil
}
