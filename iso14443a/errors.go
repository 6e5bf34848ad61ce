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

package iso14443a

import (
	"errors"
	"fmt"
)

// Frame level errors
var (
	ErrParityMismatch   = errors.New("parity mismatch")
	ErrChecksumMismatch = errors.New("CRC_A mismatch")
	ErrShortFrame       = errors.New("frame too short")
	ErrMalformedFrame   = errors.New("malformed frame")
)

// Errors a Transceiver reports about what it heard on the air
var (
	// ErrNoResponse means the field stayed silent until the deadline.
	ErrNoResponse = errors.New("no response from tag")
	// ErrCollision means several tags answered with different bits.
	ErrCollision = errors.New("bit collision")
)

// FrameError locates a decoding failure inside a received frame.
type FrameError struct {
	Err   error
	Index int
}

func (e *FrameError) Error() string {
	return fmt.Sprintf("byte %d: %v", e.Index, e.Err)
}

func (e *FrameError) Unwrap() error {
	return e.Err
}

// CollisionError reports the first colliding bit of an anticollision answer.
// Received holds the bits that arrived intact before Pos, zero filled after.
type CollisionError struct {
	Received Frame
	Pos      int
}

func (e *CollisionError) Error() string {
	return fmt.Sprintf("bit collision at position %d", e.Pos)
}

func (*CollisionError) Unwrap() error {
	return ErrCollision
}
