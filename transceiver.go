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

	"github.com/ZaparooProject/go-mfclassic/iso14443a"
)

// Transceiver moves one raw ISO14443-A frame to the field and returns the
// tag's answer. It is the only thing a reader has to provide.
//
// Implementations must send Data and Parity exactly as given, with their own
// CRC generation, parity generation and CRYPTO1 support turned off, and must
// return the answer bits the same way. The deadline comes from ctx.
//
// Expected failures:
//   - silence until the deadline: an error wrapping iso14443a.ErrNoResponse
//   - colliding answers: *iso14443a.CollisionError
//   - a broken host link: *TransportError
//
// When tx.Bits is above eight and not a multiple of eight (a split
// anticollision frame), the answer continues the last request byte: its
// first tx.Bits%8 bit positions are zero and are counted in the returned
// Bits.
type Transceiver interface {
	TransceiveBits(ctx context.Context, tx iso14443a.Frame) (iso14443a.Frame, error)
}

// TransceiverFunc adapts a function to the Transceiver interface.
type TransceiverFunc func(ctx context.Context, tx iso14443a.Frame) (iso14443a.Frame, error)

// TransceiveBits calls f.
func (f TransceiverFunc) TransceiveBits(ctx context.Context, tx iso14443a.Frame) (iso14443a.Frame, error) {
	return f(ctx, tx)
}
