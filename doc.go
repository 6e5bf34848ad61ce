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

/*
Package mifare talks to MIFARE Classic tags (Mini, 1K and 4K) through any
reader that can move raw ISO14443-A bit frames.

The package drives the whole card protocol on the host: REQA/WUPA, the
anticollision and select cascade, the three-pass CRYPTO1 authentication and
the encrypted READ/WRITE/HALT exchanges. The reader hardware only has to
transmit and receive frames with their parity bits, which it does through the
Transceiver interface.

Features:
  - CRYPTO1 cipher in the crypto1 package
  - ISO14443-A frame codec (odd parity, CRC_A, short frames) in iso14443a
  - Card state machine with nested authentication
  - PN532 (UART, I2C, ACR122U over PC/SC) and libnfc adapters
  - Sector helpers and NDEF reading in tagops

Basic Usage:

	import (
	    "github.com/ZaparooProject/go-mfclassic"
	    "github.com/ZaparooProject/go-mfclassic/pn532"
	    "github.com/ZaparooProject/go-mfclassic/transport/uart"
	)

	port, err := uart.New("/dev/ttyUSB0")
	if err != nil {
	    log.Fatal(err)
	}
	defer port.Close()

	reader, err := pn532.NewReader(port)
	if err != nil {
	    log.Fatal(err)
	}
	if err := reader.Init(ctx); err != nil {
	    log.Fatal(err)
	}

	session, err := mifare.New(reader)
	if err != nil {
	    log.Fatal(err)
	}

	target, err := session.Activate(ctx)
	if err != nil {
	    log.Fatal(err)
	}
	fmt.Printf("Tag detected: %s\n", target.UID)

	if err := session.Authenticate(ctx, 4, mifare.DefaultKey, mifare.KeyA); err != nil {
	    log.Fatal(err)
	}
	block, err := session.ReadBlock(ctx, 4)

State Machine:

A Session moves through Idle, Requested, Anticollided, Selected,
Authenticating, Authenticated and Halted. Commands that are not legal in the
current state fail with ErrInvalidState before anything is sent. Any error on
the air drops the cipher and returns the session to Idle; a rejected key
leaves it Selected so another key can be tried.

Error Handling:

All operations return errors that can be inspected with errors.Is:

	if errors.Is(err, mifare.ErrAuthenticationFailed) {
	    // try the next key
	}

Air commands are never retried by the session. Host-link failures surface as
*TransportError and can be classified with IsRetryable.

Thread Safety:

A Session is not safe for concurrent use. One session owns one Transceiver.
*/
package mifare
