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
	"fmt"

	"github.com/ZaparooProject/go-mfclassic/iso14443a"
)

// checkBlockAccess enforces that block lies in the authenticated sector. It
// performs no I/O and does not change the state.
func (s *Session) checkBlockAccess(op string, block uint8) error {
	if err := s.require(op, StateAuthenticated); err != nil {
		return err
	}
	if !s.capacity().Contains(int(block)) {
		return fmt.Errorf("%s: %w: block %d on %s", op, ErrBlockOutOfRange, block, s.capacity())
	}
	if sector := SectorOf(int(block)); sector != s.auth.Sector {
		return fmt.Errorf("%s block %d: %w: %w for sector %d, session holds sector %d",
			op, block, ErrInvalidState, ErrNotAuthenticated, sector, s.auth.Sector)
	}
	return nil
}

// ReadBlock reads one block of the authenticated sector. The command and
// the answer travel encrypted; the CRC is checked on the decrypted data and
// nothing is returned when it fails.
func (s *Session) ReadBlock(ctx context.Context, block uint8) (Block, error) {
	var out Block
	if err := s.checkBlockAccess("read", block); err != nil {
		return out, err
	}

	tx := iso14443a.EncryptCommand(s.cipher, []byte{iso14443a.CmdRead, block})
	rx, err := s.exchange(ctx, tx)
	if err != nil {
		return out, s.fail(airError(fmt.Sprintf("read block %d", block), err))
	}

	if rx.Bits == 4 {
		code, nerr := iso14443a.DecryptNibble(s.cipher, rx)
		if nerr != nil {
			return out, s.fail(fmt.Errorf("read block %d: %w", block, nerr))
		}
		return out, s.fail(&NAKError{Op: "read", Block: block, Code: code})
	}
	if rx.Bits != (BlockSize+2)*8 {
		return out, s.fail(fmt.Errorf("read block %d: %w: %d answer bits",
			block, ErrProtocolViolation, rx.Bits))
	}

	data, err := iso14443a.DecryptCommand(s.cipher, rx)
	if err != nil {
		return out, s.fail(fmt.Errorf("read block %d: %w", block, err))
	}
	copy(out[:], data)
	return out, nil
}

// WriteBlock writes one block of the authenticated sector in two phases:
// the encrypted WRITE command, then the encrypted data. The tag answers each
// phase with an encrypted 4-bit ACK.
//
// Sector trailers are written like any other block. Access bits are the
// caller's responsibility and a bad trailer can lock the sector for good.
func (s *Session) WriteBlock(ctx context.Context, block uint8, data Block) error {
	if err := s.checkBlockAccess("write", block); err != nil {
		return err
	}

	tx := iso14443a.EncryptCommand(s.cipher, []byte{iso14443a.CmdWrite, block})
	if err := s.expectACK(ctx, "write", block, tx); err != nil {
		return err
	}

	tx = iso14443a.EncryptCommand(s.cipher, data[:])
	return s.expectACK(ctx, "write data", block, tx)
}

func (s *Session) expectACK(ctx context.Context, op string, block uint8, tx iso14443a.Frame) error {
	rx, err := s.exchange(ctx, tx)
	if err != nil {
		return s.fail(airError(fmt.Sprintf("%s block %d", op, block), err))
	}
	code, err := iso14443a.DecryptNibble(s.cipher, rx)
	if err != nil {
		return s.fail(fmt.Errorf("%s block %d: %w: %w", op, block, ErrProtocolViolation, err))
	}
	if code != iso14443a.ACK {
		return s.fail(&NAKError{Op: op, Block: block, Code: code})
	}
	return nil
}
