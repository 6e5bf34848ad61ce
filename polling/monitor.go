// go-mfclassic
// Copyright (c) 2025 The Zaparoo Project Contributors.
// SPDX-License-Identifier: LGPL-3.0-or-later
//
// This file is part of go-mfclassic.
//
// go-mfclassic is free software; you can redistribute it and/or
// modify it under the terms of the GNU Lesser General Public
// License as published by the Free Software Foundation; either
// version 3 of the License, or (at your option) any later version.
//
// go-mfclassic is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the GNU
// Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with go-mfclassic; if not, write to the Free Software Foundation,
// Inc., 51 Franklin Street, Fifth Floor, Boston, MA  02110-1301, USA.

// Package polling watches a reader for MIFARE Classic cards arriving and
// leaving. One Monitor drives one session from one goroutine.
package polling

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	mifare "github.com/ZaparooProject/go-mfclassic"
)

// Config holds monitor timing.
type Config struct {
	// PollInterval is the pause between two polls.
	PollInterval time.Duration
	// CardRemovalTimeout is how long a card may stay silent before it is
	// reported removed.
	CardRemovalTimeout time.Duration
}

// DefaultConfig returns the monitor defaults.
func DefaultConfig() *Config {
	return &Config{
		PollInterval:       100 * time.Millisecond,
		CardRemovalTimeout: 600 * time.Millisecond,
	}
}

// CardHandler is called with the session selected on the new card. It may
// authenticate and read; the monitor halts the card afterwards.
type CardHandler func(ctx context.Context, s *mifare.Session, target *mifare.Target) error

// Monitor handles continuous card monitoring with state machine
type Monitor struct {
	session        *mifare.Session
	config         *Config
	OnCardDetected CardHandler
	OnCardChanged  CardHandler
	OnCardRemoved  func(uid mifare.UID)
	state          CardState
	mu             sync.Mutex
	isPaused       atomic.Bool
}

// NewMonitor creates a new card monitor
func NewMonitor(s *mifare.Session, config *Config) *Monitor {
	if config == nil {
		config = DefaultConfig()
	}
	return &Monitor{
		session: s,
		config:  config,
	}
}

// Start polls until ctx is done or the reader fails for good.
func (m *Monitor) Start(ctx context.Context) error {
	interval := m.config.PollInterval
	if interval <= 0 {
		interval = DefaultConfig().PollInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if err := m.Poll(ctx); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if !mifare.IsRetryable(err) {
				return err
			}
			mifare.Debugf("polling: %v", err)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// Poll runs one detection cycle: WUPA and activation, a callback when the
// card is new or different, then HLTA. Silence counts towards removal.
// Only reader link failures are returned.
func (m *Monitor) Poll(ctx context.Context) error {
	if m.isPaused.Load() {
		return nil
	}

	m.session.Reset()
	target, err := m.session.ActivateWakeup(ctx)
	if err != nil {
		return m.handleMiss(err)
	}

	m.mu.Lock()
	prev := m.state
	m.state.TransitionToDetected(target)
	m.mu.Unlock()

	var handler CardHandler
	switch {
	case !prev.Present:
		handler = m.OnCardDetected
	case !bytes.Equal(prev.UID(), target.UID):
		mifare.Debugf("polling: card changed from %s to %s", prev.UID(), target.UID)
		handler = m.OnCardChanged
	}
	if handler != nil {
		m.runHandler(ctx, handler, target)
	}

	if st := m.session.State(); st == mifare.StateSelected || st == mifare.StateAuthenticated {
		if err := m.session.Halt(ctx); err != nil {
			mifare.Debugf("polling: halt %s: %v", target.UID, err)
		}
	}
	return nil
}

func (m *Monitor) runHandler(ctx context.Context, handler CardHandler, target *mifare.Target) {
	m.mu.Lock()
	m.state.TransitionToReading()
	m.mu.Unlock()

	if err := handler(ctx, m.session, target); err != nil {
		mifare.Debugf("polling: card %s handler: %v", target.UID, err)
	}

	m.mu.Lock()
	m.state.DetectionState = StateTagDetected
	m.mu.Unlock()
}

// handleMiss deals with a poll nobody answered, or answered badly.
func (m *Monitor) handleMiss(err error) error {
	var te *mifare.TransportError
	link := errors.As(err, &te)

	m.mu.Lock()
	m.state.Misses++
	gone := m.state.Gone(m.config.CardRemovalTimeout, time.Now())
	var uid mifare.UID
	if gone || (link && m.state.Present) {
		uid = m.state.UID()
		m.state.TransitionToIdle()
	}
	m.mu.Unlock()

	if uid != nil && m.OnCardRemoved != nil {
		m.OnCardRemoved(uid)
	}
	if link {
		return fmt.Errorf("poll: %w", err)
	}
	if !errors.Is(err, mifare.ErrNoTagPresent) {
		mifare.Debugf("polling: %v", err)
	}
	return nil
}

// GetState returns a snapshot of the current card state
func (m *Monitor) GetState() CardState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Pause stops polling until Resume. A running callback finishes first.
func (m *Monitor) Pause() {
	m.isPaused.Store(true)
}

// Resume continues polling after Pause
func (m *Monitor) Resume() {
	m.isPaused.Store(false)
}

// IsPaused reports whether polling is paused
func (m *Monitor) IsPaused() bool {
	return m.isPaused.Load()
}
