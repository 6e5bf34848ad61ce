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

package pn532

import (
	"fmt"
	"time"

	mifare "github.com/ZaparooProject/go-mfclassic"
)

// Config contains configuration options for the Reader
type Config struct {
	// RetryConfig configures retries of setup commands. Commands that reach
	// the tag are never retried.
	RetryConfig *RetryConfig
	// Timeout is the host link timeout
	Timeout time.Duration
	// RFTimeout is how long the PN532 waits for a tag answer. It is
	// rounded up to the next step the chip supports.
	RFTimeout time.Duration
}

// DefaultConfig returns default reader configuration
func DefaultConfig() *Config {
	return &Config{
		RetryConfig: DefaultRetryConfig(),
		Timeout:     time.Second,
		RFTimeout:   25 * time.Millisecond,
	}
}

// Option is a functional option for configuring a Reader
type Option func(*Reader) error

// WithRetryConfig sets the retry configuration for setup commands
func WithRetryConfig(config *RetryConfig) Option {
	return func(r *Reader) error {
		if config == nil {
			return fmt.Errorf("%w: nil retry config", mifare.ErrInvalidParameter)
		}
		r.config.RetryConfig = config
		return nil
	}
}

// WithMaxRetries sets the number of attempts for setup commands
func WithMaxRetries(maxAttempts int) Option {
	return func(r *Reader) error {
		cfg := *r.config.RetryConfig
		cfg.MaxAttempts = maxAttempts
		r.config.RetryConfig = &cfg
		return nil
	}
}

// WithTimeout sets the host link timeout
func WithTimeout(timeout time.Duration) Option {
	return func(r *Reader) error {
		if timeout <= 0 {
			return fmt.Errorf("%w: timeout must be positive, got %v", mifare.ErrInvalidParameter, timeout)
		}
		r.config.Timeout = timeout
		return nil
	}
}

// WithRFTimeout sets how long the PN532 waits for a tag to answer
func WithRFTimeout(timeout time.Duration) Option {
	return func(r *Reader) error {
		if timeout <= 0 {
			return fmt.Errorf("%w: RF timeout must be positive, got %v", mifare.ErrInvalidParameter, timeout)
		}
		r.config.RFTimeout = timeout
		return nil
	}
}
