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
	"fmt"
	"log/slog"
	"time"
)

// DefaultTimeout bounds one air exchange. MIFARE Classic answers within a
// few milliseconds; the margin covers slow host links.
const DefaultTimeout = 100 * time.Millisecond

// Config holds session settings.
type Config struct {
	Nonces   NonceSource
	Logger   *slog.Logger
	Timeout  time.Duration
	Capacity Capacity
}

// DefaultConfig returns the settings New starts from.
func DefaultConfig() *Config {
	return &Config{
		Timeout: DefaultTimeout,
		Nonces:  RandomNonces(),
	}
}

// Option is a functional option for configuring a Session
type Option func(*Session) error

// WithTimeout sets the deadline applied to every air exchange
func WithTimeout(timeout time.Duration) Option {
	return func(s *Session) error {
		if timeout <= 0 {
			return fmt.Errorf("%w: timeout must be positive, got %v", ErrInvalidParameter, timeout)
		}
		s.config.Timeout = timeout
		return nil
	}
}

// WithNonceSource sets where reader nonces come from
func WithNonceSource(src NonceSource) Option {
	return func(s *Session) error {
		if src == nil {
			return fmt.Errorf("%w: nil nonce source", ErrInvalidParameter)
		}
		s.config.Nonces = src
		return nil
	}
}

// WithCapacity fixes the tag layout instead of deriving it from SAK
func WithCapacity(c Capacity) Option {
	return func(s *Session) error {
		switch c {
		case CapacityMini, Capacity1K, Capacity4K:
			s.config.Capacity = c
			return nil
		default:
			return fmt.Errorf("%w: unknown capacity %d", ErrInvalidParameter, int(c))
		}
	}
}

// WithLogger sends this session's trace output to l
func WithLogger(l *slog.Logger) Option {
	return func(s *Session) error {
		s.config.Logger = l
		return nil
	}
}
