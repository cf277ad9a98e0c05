// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package mixlog

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSessionPath(t *testing.T) {
	ts := time.Date(2024, time.March, 7, 14, 5, 9, 0, time.UTC)
	assert.Equal(t, filepath.Join("logs", "log_07032024_140509.cbor"), SessionPath("logs", HardwarePrefix, ts))
	assert.Equal(t, filepath.Join("silicologs", "silicolog_07032024_140509.cbor"), SessionPath("silicologs", SilicoPrefix, ts))
}

func TestWriterAndReadFile(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "logs")
	now := time.Date(2024, time.January, 2, 3, 4, 5, 0, time.UTC)

	w, err := Create(dir, HardwarePrefix, now)
	require.NoError(t, err)
	assert.Equal(t, SessionPath(dir, HardwarePrefix, now), w.Path())

	first := Record{
		Mixture:     []float64{0.5, 0.5, 0, 0},
		Measurement: []float64{127, 127, 0},
	}
	second := Record{
		Time:              now,
		Mixture:           []float64{0, 0, 1, 0},
		Measurement:       []float64{0, 0, 255},
		TargetMixture:     []float64{0.5, 0.5, 0, 0},
		TargetMeasurement: []float64{127, 127, 0},
	}
	require.NoError(t, w.Append(first))
	require.NoError(t, w.Append(second))
	assert.Equal(t, 2, w.Count())
	require.NoError(t, w.Close())
	assert.Error(t, w.Append(first), "append after close")

	records, err := ReadFile(w.Path())
	require.NoError(t, err)
	require.Len(t, records, 2)

	assert.Equal(t, w.RunID(), records[0].RunID)
	assert.False(t, records[0].Time.IsZero())
	assert.Equal(t, first.Mixture, records[0].Mixture)
	assert.False(t, records[0].HasTarget())

	assert.True(t, records[1].Time.Equal(now))
	assert.Equal(t, second.TargetMeasurement, records[1].TargetMeasurement)
	assert.True(t, records[1].HasTarget())
}

func TestOpenAppendsToExistingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.cbor")

	for i := 0; i < 2; i++ {
		w, err := Open(path)
		require.NoError(t, err)
		require.NoError(t, w.Append(Record{Mixture: []float64{float64(i)}}))
		require.NoError(t, w.Close())
	}

	records, err := ReadFile(path)
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.NotEqual(t, records[0].RunID, records[1].RunID, "each writer is its own run")
}

func TestReadCorrupt(t *testing.T) {
	var buf bytes.Buffer
	w := &Writer{f: os.Stdout, enc: encMode.NewEncoder(&buf), runID: "r"}
	require.NoError(t, w.Append(Record{Mixture: []float64{1}}))
	buf.Write([]byte{0xFF, 0x00})

	records, err := Read(&buf)
	assert.Error(t, err)
	assert.Len(t, records, 1)
}

func TestReadFileMissing(t *testing.T) {
	_, err := ReadFile(filepath.Join(t.TempDir(), "nope.cbor"))
	assert.Error(t, err)
}
