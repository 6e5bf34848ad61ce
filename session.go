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

package mifare

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/ZaparooProject/go-mfclassic/crypto1"
	"github.com/ZaparooProject/go-mfclassic/iso14443a"
)

// Session drives one tag through REQUEST, ANTICOLLISION, SELECT,
// AUTHENTICATE, READ/WRITE and HALT over a Transceiver.
//
// A Session owns its transceiver and cipher. It is not safe for concurrent
// use: every command depends on the keystream left by the one before it.
// Any air error returns the session to StateIdle and discards the cipher;
// the caller restarts from a request.
type Session struct {
	tr       Transceiver
	config   *Config
	cipher   *crypto1.Cipher
	target   *Target
	uid      []byte
	fragment []byte
	auth     AuthState
	atqa     [2]byte
	level    int
	state    SessionState
}

// New creates a session on tr.
func New(tr Transceiver, opts ...Option) (*Session, error) {
	if tr == nil {
		return nil, fmt.Errorf("%w: nil transceiver", ErrInvalidParameter)
	}
	s := &Session{
		tr:     tr,
		config: DefaultConfig(),
	}
	for _, opt := range opts {
		if err := opt(s); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// State returns the current protocol state.
func (s *Session) State() SessionState {
	return s.state
}

// Auth returns the sector and key type the cipher is synchronised for. ok
// is false unless the session is authenticated.
func (s *Session) Auth() (auth AuthState, ok bool) {
	if s.state != StateAuthenticated {
		return AuthState{}, false
	}
	return s.auth, true
}

// Target returns the selected tag, or nil before selection completes.
func (s *Session) Target() *Target {
	if s.target == nil {
		return nil
	}
	t := *s.target
	t.UID = append(UID(nil), s.target.UID...)
	return &t
}

// CascadeLevel returns the cascade level the next anticollision or select
// will use, counted from 1.
func (s *Session) CascadeLevel() int {
	return s.level
}

// Reset returns the session to StateIdle without touching the air.
func (s *Session) Reset() {
	s.dropCipher()
	s.state = StateIdle
	s.auth = AuthState{}
	s.target = nil
	s.uid = nil
	s.fragment = nil
	s.atqa = [2]byte{}
	s.level = 0
}

func (s *Session) dropCipher() {
	if s.cipher != nil {
		s.cipher.Reset(0)
		s.cipher = nil
	}
}

// fail resets the session and returns err.
func (s *Session) fail(err error) error {
	s.tracef("session reset to Idle from %s: %v", s.state, err)
	s.Reset()
	return err
}

// require fails with ErrInvalidState unless the session is in one of the
// given states. It performs no I/O and leaves the state alone.
func (s *Session) require(op string, allowed ...SessionState) error {
	for _, st := range allowed {
		if s.state == st {
			return nil
		}
	}
	return fmt.Errorf("%s: %w: session is %s", op, ErrInvalidState, s.state)
}

// exchange sends one frame under the configured per-exchange deadline.
func (s *Session) exchange(ctx context.Context, tx iso14443a.Frame) (iso14443a.Frame, error) {
	if err := ctx.Err(); err != nil {
		return iso14443a.Frame{}, err
	}
	ctx, cancel := context.WithTimeout(ctx, s.config.Timeout)
	defer cancel()

	s.tracef("PCD -> %s", tx)
	rx, err := s.tr.TransceiveBits(ctx, tx)
	if err != nil {
		var ce *iso14443a.CollisionError
		switch {
		case errors.As(err, &ce):
			s.tracef("PICC <- collision at bit %d", ce.Pos)
		default:
			s.tracef("PICC <- error: %v", err)
		}
		return iso14443a.Frame{}, err
	}
	s.tracef("PICC <- %s", rx)
	return rx, nil
}

func (s *Session) capacity() Capacity {
	switch {
	case s.config.Capacity != 0:
		return s.config.Capacity
	case s.target != nil:
		return s.target.Capacity
	default:
		return Capacity1K
	}
}

func (s *Session) tracef(format string, args ...any) {
	if !DebugEnabled() {
		return
	}
	if s.config.Logger != nil {
		s.config.Logger.Log(context.Background(), slog.LevelDebug, fmt.Sprintf(format, args...))
		return
	}
	debugf(format, args...)
}
