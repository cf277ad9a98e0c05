// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/Thermoquad/mixbot/pkg/host"
	"github.com/Thermoquad/mixbot/pkg/mixlog"
	"github.com/Thermoquad/mixbot/pkg/mixproto"
)

var controlNoLog bool

var controlCmd = &cobra.Command{
	Use:   "control",
	Short: "Interactive TUI for driving the mixing robot",
	Long: `Drive the mixing robot from an interactive terminal UI.

The left panel lists the actions: measuring, mixing, setting the target
color, running and purging pumps, and the cell maintenance sequences. The
input field takes the action's arguments (for example "1 1 0 0" for a
mixture or "R 2.5" for a purge). Enter runs the selected action.

Features:
  - Last measured and target color swatches
  - Reply statistics
  - Event logging
  - Mixes logged to a session file (unless --no-log)
  - Automatic reconnection on connection loss

Supports both serial and WebSocket connections.`,
	Args: cobra.NoArgs,
	RunE: runControl,
}

func init() {
	rootCmd.AddCommand(controlCmd)
	controlCmd.Flags().BoolVar(&controlNoLog, "no-log", false, "Do not write a session log")
}

// connectionManager handles the device connection lifecycle and reconnection
type connectionManager struct {
	client   *host.Client
	pc       *host.PumpController
	connInfo string
	log      *mixlog.Writer
	mu       sync.RWMutex
	p        *tea.Program
	done     chan struct{}

	reconnecting sync.Mutex
}

func (cm *connectionManager) controller() *host.PumpController {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	return cm.pc
}

func (cm *connectionManager) stats() (mixproto.Statistics, bool) {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	if cm.client == nil {
		return mixproto.Statistics{}, false
	}
	return cm.client.Stats(), true
}

// connect opens a client and controller and installs them
func (cm *connectionManager) connect(ctx context.Context) error {
	client, connInfo, err := OpenClient(ctx)
	if err != nil {
		return err
	}
	pc, err := host.NewPumpController(client, cfg.HostController(), cm.log, logger)
	if err != nil {
		client.Close()
		return err
	}

	cm.mu.Lock()
	defer cm.mu.Unlock()
	cm.client = client
	cm.pc = pc
	cm.connInfo = connInfo
	return nil
}

func (cm *connectionManager) close() {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	if cm.client != nil {
		cm.client.Close()
		cm.client = nil
		cm.pc = nil
	}
}

func runControl(cmd *cobra.Command, args []string) error {
	cm := &connectionManager{done: make(chan struct{})}

	if !controlNoLog {
		log, err := mixlog.Create(cfg.Controller.LogDir, mixlog.HardwarePrefix, time.Now())
		if err != nil {
			return err
		}
		defer log.Close()
		cm.log = log
	}

	if err := cm.connect(cmd.Context()); err != nil {
		return err
	}

	m := initialControlModel(cm, cm.connInfo)

	p := tea.NewProgram(m, tea.WithAltScreen(), tea.WithMouseCellMotion())
	cm.p = p

	_, err := p.Run()
	close(cm.done)
	cm.close()
	if err != nil {
		return fmt.Errorf("TUI error: %v", err)
	}
	return nil
}

// runAction returns a command executing action against the current controller
func (cm *connectionManager) runAction(action controlAction, arg string) tea.Cmd {
	return func() tea.Msg {
		pc := cm.controller()
		if pc == nil {
			return actionResultMsg{action: action.name, err: host.ErrClosed}
		}

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		go func() {
			select {
			case <-cm.done:
				cancel()
			case <-ctx.Done():
			}
		}()

		started := time.Now()
		res, err := action.run(ctx, pc, arg)
		if errors.Is(err, host.ErrClosed) {
			go cm.reconnect()
		}
		return actionResultMsg{
			action:  action.name,
			result:  res,
			err:     err,
			elapsed: time.Since(started),
		}
	}
}

// reconnect replaces a lost connection, retrying with exponential backoff.
// Concurrent calls collapse into one.
func (cm *connectionManager) reconnect() {
	if !cm.reconnecting.TryLock() {
		return
	}
	defer cm.reconnecting.Unlock()

	cm.close()
	if cm.p != nil {
		cm.p.Send(connectionLostMsg{})
	}

	backoff := 1 * time.Second
	maxBackoff := 30 * time.Second

	for {
		select {
		case <-cm.done:
			return
		case <-time.After(backoff):
		}

		ctx, cancel := context.WithTimeout(context.Background(), readyTimeout+15*time.Second)
		err := cm.connect(ctx)
		cancel()
		if err == nil {
			cm.mu.RLock()
			connInfo := cm.connInfo
			cm.mu.RUnlock()
			cm.p.Send(reconnectedMsg{connInfo: connInfo})
			return
		}
		logger.Debug("reconnect failed", zap.Error(err), zap.Duration("backoff", backoff))

		backoff *= 2
		if backoff > maxBackoff {
			backoff = maxBackoff
		}
	}
}
