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

	"github.com/ZaparooProject/go-mfclassic/iso14443a"
)

// Tag protocol errors
var (
	ErrNoTagPresent         = errors.New("no tag present")
	ErrCollisionUnresolved  = errors.New("anticollision did not converge")
	ErrBccMismatch          = errors.New("UID BCC mismatch")
	ErrAuthenticationFailed = errors.New("authentication failed")
	ErrTimeout              = errors.New("tag did not respond in time")
	ErrProtocolViolation    = errors.New("protocol violation")
	ErrInvalidState         = errors.New("operation not allowed in current state")
	ErrNotAuthenticated     = errors.New("sector not authenticated")
	ErrInvalidParameter     = errors.New("invalid parameter")
	ErrBlockOutOfRange      = errors.New("block out of range")
)

// Frame errors, shared with the codec so errors.Is works on either name
var (
	ErrParityMismatch   = iso14443a.ErrParityMismatch
	ErrChecksumMismatch = iso14443a.ErrChecksumMismatch
	ErrCollision        = iso14443a.ErrCollision
	ErrNoResponse       = iso14443a.ErrNoResponse
)

// Host link errors, raised by reader adapters and transports
var (
	ErrTransportRead       = errors.New("transport read failed")
	ErrTransportWrite      = errors.New("transport write failed")
	ErrTransportTimeout    = errors.New("transport timeout")
	ErrTransportClosed     = errors.New("transport closed")
	ErrCommunicationFailed = errors.New("communication failed")
	ErrNoACK               = errors.New("no ACK received")
	ErrFrameCorrupted      = errors.New("frame corrupted")
	ErrDataTooLarge        = errors.New("data too large")
	ErrDeviceNotFound      = errors.New("device not found")
	ErrDeviceNotSupported  = errors.New("device not supported")
	ErrNotReady            = errors.New("transport not ready")
)

// ErrorType classifies host link failures for retry decisions
type ErrorType int

const (
	// ErrorTypePermanent errors should not be retried
	ErrorTypePermanent ErrorType = iota
	// ErrorTypeTransient errors may succeed on retry
	ErrorTypeTransient
	// ErrorTypeTimeout errors are timeouts that may succeed on retry
	ErrorTypeTimeout
)

func (t ErrorType) String() string {
	switch t {
	case ErrorTypeTransient:
		return "transient"
	case ErrorTypeTimeout:
		return "timeout"
	default:
		return "permanent"
	}
}

// TransportError is a failure of the physical link between host and reader.
type TransportError struct {
	Err       error
	Op        string
	Port      string
	Type      ErrorType
	Retryable bool
}

func (e *TransportError) Error() string {
	if e.Port != "" {
		return fmt.Sprintf("%s on %s: %v", e.Op, e.Port, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// NewTransportError creates a transport error of the given type
func NewTransportError(op, port string, err error, errType ErrorType) *TransportError {
	return &TransportError{
		Op:        op,
		Port:      port,
		Err:       err,
		Type:      errType,
		Retryable: errType != ErrorTypePermanent,
	}
}

// NewTimeoutError creates a retryable timeout error
func NewTimeoutError(op, port string) *TransportError {
	return NewTransportError(op, port, ErrTransportTimeout, ErrorTypeTimeout)
}

// NewFrameCorruptedError creates a retryable host frame error
func NewFrameCorruptedError(op, port string) *TransportError {
	return NewTransportError(op, port, ErrFrameCorrupted, ErrorTypeTransient)
}

// NewNoACKError creates a retryable missing ACK error
func NewNoACKError(op, port string) *TransportError {
	return NewTransportError(op, port, ErrNoACK, ErrorTypeTransient)
}

// NewDataTooLargeError creates a permanent oversize error
func NewDataTooLargeError(op, port string) *TransportError {
	return NewTransportError(op, port, ErrDataTooLarge, ErrorTypePermanent)
}

// NewTransportNotReadyError creates a retryable not-ready error
func NewTransportNotReadyError(op, port string) *TransportError {
	return NewTransportError(op, port, ErrNotReady, ErrorTypeTransient)
}

// IsRetryable reports whether a host link operation may be repeated after err.
// Air errors are never retryable: the cipher stream cannot be rewound.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}

	var te *TransportError
	if errors.As(err, &te) {
		return te.Retryable
	}

	switch {
	case errors.Is(err, ErrTransportTimeout),
		errors.Is(err, ErrTransportRead),
		errors.Is(err, ErrTransportWrite),
		errors.Is(err, ErrCommunicationFailed),
		errors.Is(err, ErrNoACK),
		errors.Is(err, ErrFrameCorrupted),
		errors.Is(err, ErrNotReady):
		return true
	default:
		return false
	}
}

// GetErrorType returns the classification of err
func GetErrorType(err error) ErrorType {
	if err == nil {
		return ErrorTypePermanent
	}

	var te *TransportError
	if errors.As(err, &te) {
		return te.Type
	}

	switch {
	case errors.Is(err, ErrTransportTimeout):
		return ErrorTypeTimeout
	case errors.Is(err, ErrTransportRead),
		errors.Is(err, ErrTransportWrite),
		errors.Is(err, ErrCommunicationFailed),
		errors.Is(err, ErrNoACK),
		errors.Is(err, ErrFrameCorrupted),
		errors.Is(err, ErrNotReady):
		return ErrorTypeTransient
	default:
		return ErrorTypePermanent
	}
}

// NAKError is a negative 4-bit answer from the tag.
type NAKError struct {
	Op    string
	Block uint8
	Code  byte
}

func (e *NAKError) Error() string {
	return fmt.Sprintf("%s block %d: tag NAK 0x%X (%s)", e.Op, e.Block, e.Code,
		iso14443a.NAKMeaning(e.Code))
}

func (*NAKError) Unwrap() error {
	return ErrProtocolViolation
}

// isTimeout reports whether err means the tag stayed silent.
func isTimeout(err error) bool {
	return errors.Is(err, ErrNoResponse) ||
		errors.Is(err, ErrTransportTimeout) ||
		errors.Is(err, context.DeadlineExceeded)
}

// airError maps a transceiver failure to the error surfaced to callers.
// Silence becomes ErrTimeout; link failures are passed through.
func airError(op string, err error) error {
	if isTimeout(err) {
		return fmt.Errorf("%s: %w: %w", op, ErrTimeout, err)
	}
	return fmt.Errorf("%s: %w", op, err)
}
