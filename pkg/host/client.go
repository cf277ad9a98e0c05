// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package host drives a mixing robot from the computer side: it sends
// command frames, waits for the replies, and sequences pumps and
// measurements into color-mixing experiments.
package host

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/Thermoquad/mixbot/pkg/mixproto"
)

// Client errors
var (
	ErrTimeout = errors.New("device did not respond within timeout, try resetting the device")
	ErrClosed  = errors.New("connection closed")
)

// Default client timing
const (
	DefaultReplyTimeout    = 10 * time.Second
	DefaultCommandInterval = 50 * time.Millisecond
	replyQueueSize         = 64
)

// Options configures a Client
type Options struct {
	// ReplyTimeout bounds the wait for each reply. Mix commands get the pump
	// run time on top.
	ReplyTimeout time.Duration
	// CommandInterval is the minimum spacing between command frames.
	// Zero disables pacing.
	CommandInterval time.Duration
	// Logger receives protocol events; nil disables logging.
	Logger *zap.Logger
}

// DefaultOptions returns the default client options
func DefaultOptions() Options {
	return Options{
		ReplyTimeout:    DefaultReplyTimeout,
		CommandInterval: DefaultCommandInterval,
	}
}

// Client sends commands to a device over any byte stream. A background
// goroutine decodes reply frames; commands are issued one at a time.
type Client struct {
	conn    io.ReadWriter
	opts    Options
	logger  *zap.Logger
	limiter *rate.Limiter
	replies chan mixproto.Reply

	cmdMu sync.Mutex // serializes commands

	mu        sync.Mutex
	stats     *mixproto.Statistics
	validator *mixproto.Validator
	readErr   error
}

// NewClient starts decoding replies from conn
func NewClient(conn io.ReadWriter, opts Options) *Client {
	if opts.ReplyTimeout <= 0 {
		opts.ReplyTimeout = DefaultReplyTimeout
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	limit := rate.Inf
	if opts.CommandInterval > 0 {
		limit = rate.Every(opts.CommandInterval)
	}

	c := &Client{
		conn:      conn,
		opts:      opts,
		logger:    logger,
		limiter:   rate.NewLimiter(limit, 1),
		replies:   make(chan mixproto.Reply, replyQueueSize),
		stats:     mixproto.NewStatistics(),
		validator: mixproto.NewValidator(),
	}
	go c.readLoop()
	return c
}

// readLoop decodes frames until the connection fails
func (c *Client) readLoop() {
	defer close(c.replies)

	acc := mixproto.NewAccumulator(mixproto.HostCapacity)
	buf := make([]byte, 1024)

	for {
		n, err := c.conn.Read(buf)
		for i := 0; i < n; i++ {
			frame, ferr := acc.DecodeByte(buf[i])
			if frame == nil {
				continue
			}
			c.handleFrame(frame, ferr)
		}
		if err != nil {
			c.mu.Lock()
			if errors.Is(err, io.EOF) {
				c.readErr = ErrClosed
			} else {
				c.readErr = fmt.Errorf("%w: %w", ErrClosed, err)
			}
			c.mu.Unlock()
			return
		}
	}
}

func (c *Client) handleFrame(frame *mixproto.Frame, frameErr error) {
	reply, err := mixproto.ParseReply(frame)

	c.mu.Lock()
	if err != nil {
		c.stats.UpdateReply(nil, err)
	} else {
		c.stats.UpdateReply(&reply, frameErr)
	}
	anomalies := c.validator.Validate(reply)
	c.mu.Unlock()

	if err != nil {
		c.logger.Warn("undecodable reply", zap.String("payload", frame.String()), zap.Error(err))
		return
	}
	for _, a := range anomalies {
		c.logger.Warn("reply anomaly", zap.String("anomaly", a.Message))
	}
	c.logger.Debug("reply received", zap.String("reply", mixproto.FormatReply(reply)))

	select {
	case c.replies <- reply:
	default:
		c.logger.Warn("reply queue full, dropping reply", zap.String("payload", frame.String()))
	}
}

// next returns the next decoded reply
func (c *Client) next(ctx context.Context) (mixproto.Reply, error) {
	select {
	case r, ok := <-c.replies:
		if !ok {
			c.mu.Lock()
			err := c.readErr
			c.mu.Unlock()
			if err == nil {
				err = ErrClosed
			}
			return mixproto.Reply{}, err
		}
		return r, nil
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return mixproto.Reply{}, fmt.Errorf("%w: %w", ErrTimeout, ctx.Err())
		}
		return mixproto.Reply{}, ctx.Err()
	}
}

// WaitReady blocks until the device start-up banner arrives
func (c *Client) WaitReady(ctx context.Context) error {
	for {
		r, err := c.next(ctx)
		if err != nil {
			return fmt.Errorf("waiting for ready banner: %w", err)
		}
		if r.Kind == mixproto.ReplyReady {
			c.logger.Info("device ready")
			return nil
		}
		c.logger.Debug("ignoring frame before ready banner", zap.String("payload", r.Message))
	}
}

// ClearInput discards replies received but not yet consumed
func (c *Client) ClearInput() int {
	dropped := 0
	for {
		select {
		case _, ok := <-c.replies:
			if !ok {
				return dropped
			}
			dropped++
		default:
			return dropped
		}
	}
}

// Send transmits payload as a command frame and waits for its
// acknowledgement
func (c *Client) Send(ctx context.Context, payload string) (mixproto.Reply, error) {
	c.cmdMu.Lock()
	defer c.cmdMu.Unlock()
	return c.send(ctx, payload, c.opts.ReplyTimeout)
}

func (c *Client) send(ctx context.Context, payload string, timeout time.Duration) (mixproto.Reply, error) {
	frame, err := mixproto.EncodeFrame(payload)
	if err != nil {
		return mixproto.Reply{}, err
	}

	if n := c.ClearInput(); n > 0 {
		c.logger.Debug("discarded stale replies", zap.Int("count", n))
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return mixproto.Reply{}, err
	}

	c.mu.Lock()
	c.validator.Expect(payload)
	c.mu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if _, err := c.conn.Write(frame); err != nil {
		return mixproto.Reply{}, fmt.Errorf("failed to send %q: %w", payload, err)
	}
	c.logger.Debug("command sent", zap.String("frame", string(frame)))

	for {
		r, err := c.next(ctx)
		if err != nil {
			return mixproto.Reply{}, fmt.Errorf("waiting for ack of %q: %w", payload, err)
		}
		if r.Kind == mixproto.ReplyAck {
			return r, nil
		}
		c.logger.Debug("skipping non-ack frame", zap.String("kind", r.Kind.String()), zap.String("payload", r.Message))
	}
}

// Mix runs the pump on pin for seconds and waits for the acknowledgement,
// which the device sends once the pump has stopped
func (c *Client) Mix(ctx context.Context, pin int, seconds float64) (mixproto.Reply, error) {
	c.cmdMu.Lock()
	defer c.cmdMu.Unlock()
	run := time.Duration(seconds * float64(time.Second))
	return c.send(ctx, mixproto.NewMixCommand(pin, seconds), c.opts.ReplyTimeout+run)
}

// Measure requests a color measurement and returns the averaged reading
func (c *Client) Measure(ctx context.Context) (mixproto.RGB, error) {
	c.cmdMu.Lock()
	defer c.cmdMu.Unlock()

	if _, err := c.send(ctx, mixproto.NewMeasCommand(), c.opts.ReplyTimeout); err != nil {
		return mixproto.RGB{}, err
	}

	ctx, cancel := context.WithTimeout(ctx, c.opts.ReplyTimeout)
	defer cancel()
	for {
		r, err := c.next(ctx)
		if err != nil {
			return mixproto.RGB{}, fmt.Errorf("waiting for measurement: %w", err)
		}
		if r.Kind == mixproto.ReplyRGB {
			return r.Color, nil
		}
		c.logger.Debug("skipping non-rgb frame", zap.String("payload", r.Message))
	}
}

// Stats returns a snapshot of the reply statistics
func (c *Client) Stats() mixproto.Statistics {
	c.mu.Lock()
	defer c.mu.Unlock()
	return *c.stats
}

// Close closes the connection if it can be closed
func (c *Client) Close() error {
	if closer, ok := c.conn.(io.Closer); ok {
		return closer.Close()
	}
	return nil
}
