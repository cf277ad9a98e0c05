// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package firmware

import (
	"context"
	"io"
	"sync"
)

// DefaultRxBufferSize matches the receive buffer of the Arduino's UART
const DefaultRxBufferSize = 64

// RxFIFO is the serial receive buffer between the transport goroutine and
// the controller. Bytes arriving while the buffer is full are dropped, as a
// UART would.
type RxFIFO struct {
	mu      sync.Mutex
	buf     []byte
	read    int
	write   int
	size    int
	dropped uint64
}

// NewRxFIFO creates a FIFO holding capacity bytes
func NewRxFIFO(capacity int) *RxFIFO {
	if capacity < 1 {
		capacity = DefaultRxBufferSize
	}
	// One slot stays empty to tell full from empty.
	return &RxFIFO{
		buf:  make([]byte, capacity+1),
		size: capacity + 1,
	}
}

// Write appends data. It never fails; overflow is counted in Dropped.
func (f *RxFIFO) Write(data []byte) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	for _, b := range data {
		next := (f.write + 1) % f.size
		if next == f.read {
			f.dropped++
			continue
		}
		f.buf[f.write] = b
		f.write = next
	}
	return len(data), nil
}

// TryReadByte implements ByteSource
func (f *RxFIFO) TryReadByte() (byte, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.read == f.write {
		return 0, false
	}
	b := f.buf[f.read]
	f.read = (f.read + 1) % f.size
	return b, true
}

// Available returns the number of buffered bytes
func (f *RxFIFO) Available() int {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.write >= f.read {
		return f.write - f.read
	}
	return f.size - f.read + f.write
}

// Dropped returns the number of bytes lost to overflow
func (f *RxFIFO) Dropped() uint64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.dropped
}

// Reset discards buffered bytes
func (f *RxFIFO) Reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.read = 0
	f.write = 0
}

// Receive copies bytes from r into f until r fails or ctx is done.
// It returns nil when r reports io.EOF.
func Receive(ctx context.Context, r io.Reader, f *RxFIFO) error {
	buf := make([]byte, 256)
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		n, err := r.Read(buf)
		if n > 0 {
			f.Write(buf[:n])
		}
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
	}
}
