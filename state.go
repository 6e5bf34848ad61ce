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

import "fmt"

// SessionState is the position of a session in the tag protocol.
type SessionState int

const (
	// StateIdle means no tag is addressed. Only REQA or WUPA are legal.
	StateIdle SessionState = iota
	// StateRequested means a tag answered REQA/WUPA with ATQA.
	StateRequested
	// StateAnticollided means a UID fragment for the current level is known.
	StateAnticollided
	// StateSelected means the tag answered SELECT with a final SAK.
	StateSelected
	// StateAuthenticating is held while a handshake is on the air.
	StateAuthenticating
	// StateAuthenticated means the cipher is synchronised for one sector.
	StateAuthenticated
	// StateHalted means the tag accepted HLTA. Only WUPA is legal.
	StateHalted
)

var stateNames = [...]string{
	StateIdle:           "Idle",
	StateRequested:      "Requested",
	StateAnticollided:   "Anticollided",
	StateSelected:       "Selected",
	StateAuthenticating: "Authenticating",
	StateAuthenticated:  "Authenticated",
	StateHalted:         "Halted",
}

func (s SessionState) String() string {
	if s >= 0 && int(s) < len(stateNames) {
		return stateNames[s]
	}
	return fmt.Sprintf("SessionState(%d)", int(s))
}

// AuthState names the sector and key type of an authenticating or
// authenticated session.
type AuthState struct {
	Sector  int
	KeyType KeyType
}

func (a AuthState) String() string {
	return fmt.Sprintf("sector %d key %s", a.Sector, a.KeyType)
}
