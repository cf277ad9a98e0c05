// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package mixlog records mixing experiments.
//
// A log file is a sequence of CBOR-encoded records, one per mixed color.
// Files are append-only; each session of a controller writes its own file
// named after the time it started.
package mixlog

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fxamacker/cbor/v2"
	"github.com/google/uuid"
)

// Session file naming
const (
	HardwarePrefix = "log"
	SilicoPrefix   = "silicolog"
	Extension      = ".cbor"
	timeLayout     = "02012006_150405"
)

// Record is one mixed color: the normalized mixture, what was measured,
// and the target in effect at the time
type Record struct {
	RunID             string    `cbor:"1,keyasint"`
	Time              time.Time `cbor:"2,keyasint"`
	Mixture           []float64 `cbor:"3,keyasint"`
	Measurement       []float64 `cbor:"4,keyasint"`
	TargetMixture     []float64 `cbor:"5,keyasint,omitempty"`
	TargetMeasurement []float64 `cbor:"6,keyasint,omitempty"`
}

// HasTarget reports whether a target was set when the record was taken
func (r Record) HasTarget() bool {
	return len(r.TargetMeasurement) > 0
}

var encMode = func() cbor.EncMode {
	em, err := cbor.EncOptions{Time: cbor.TimeRFC3339Nano}.EncMode()
	if err != nil {
		panic(err)
	}
	return em
}()

// SessionPath returns dir/<prefix>_DDMMYYYY_HHMMSS.cbor for t
func SessionPath(dir, prefix string, t time.Time) string {
	return filepath.Join(dir, prefix+"_"+t.Format(timeLayout)+Extension)
}

// Writer appends records to a log file. It is safe for concurrent use.
type Writer struct {
	mu    sync.Mutex
	f     *os.File
	enc   *cbor.Encoder
	path  string
	runID string
	count int
}

// Create starts a new session file under dir, creating dir if needed
func Create(dir, prefix string, now time.Time) (*Writer, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}
	return Open(SessionPath(dir, prefix, now))
}

// Open opens path for appending, creating it if needed
func Open(path string) (*Writer, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("failed to open log file: %w", err)
	}
	return &Writer{
		f:     f,
		enc:   encMode.NewEncoder(f),
		path:  path,
		runID: uuid.New().String(),
	}, nil
}

// Path returns the file being written
func (w *Writer) Path() string {
	return w.path
}

// RunID identifies the session; it is stamped on records that carry none
func (w *Writer) RunID() string {
	return w.runID
}

// Count returns the number of records appended by this writer
func (w *Writer) Count() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.count
}

// Append writes rec, filling in RunID and Time when they are unset
func (w *Writer) Append(rec Record) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.f == nil {
		return errors.New("log writer closed")
	}
	if rec.RunID == "" {
		rec.RunID = w.runID
	}
	if rec.Time.IsZero() {
		rec.Time = time.Now()
	}
	if err := w.enc.Encode(rec); err != nil {
		return fmt.Errorf("failed to write log record: %w", err)
	}
	w.count++
	return nil
}

// Close closes the file
func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.f == nil {
		return nil
	}
	err := w.f.Close()
	w.f = nil
	return err
}

// Read decodes every record in r
func Read(r io.Reader) ([]Record, error) {
	dec := cbor.NewDecoder(r)
	var records []Record
	for {
		var rec Record
		err := dec.Decode(&rec)
		if errors.Is(err, io.EOF) {
			return records, nil
		}
		if err != nil {
			return records, fmt.Errorf("record %d: %w", len(records), err)
		}
		records = append(records, rec)
	}
}

// ReadFile decodes every record in the log file at path
func ReadFile(path string) ([]Record, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open log file: %w", err)
	}
	defer f.Close()
	return Read(f)
}
