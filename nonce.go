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
	"crypto/rand"
	"encoding/binary"
	"fmt"
)

// NonceSource supplies the reader nonce Nr for each authentication. Every
// call must return a fresh value; the session does not check for reuse.
type NonceSource interface {
	Nonce() (uint32, error)
}

// NonceFunc adapts a function to NonceSource.
type NonceFunc func() (uint32, error)

// Nonce calls f.
func (f NonceFunc) Nonce() (uint32, error) { return f() }

type randomNonces struct{}

// RandomNonces returns a NonceSource backed by crypto/rand.
func RandomNonces() NonceSource { return randomNonces{} }

func (randomNonces) Nonce() (uint32, error) {
	var b [4]byte
	if _, err := rand.Read(b[:]); err != nil {
		return 0, fmt.Errorf("reader nonce: %w", err)
	}
	return binary.BigEndian.Uint32(b[:]), nil
}
