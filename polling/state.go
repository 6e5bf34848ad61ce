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

package polling

import (
	"time"

	mifare "github.com/ZaparooProject/go-mfclassic"
)

// CardDetectionState represents the finite state machine for card detection
type CardDetectionState int

const (
	// StateIdle means no card is in the field.
	StateIdle CardDetectionState = iota
	// StateTagDetected means a card answered the last poll.
	StateTagDetected
	// StateReading means a detection callback is running.
	StateReading
)

func (s CardDetectionState) String() string {
	switch s {
	case StateTagDetected:
		return "detected"
	case StateReading:
		return "reading"
	default:
		return "idle"
	}
}

// CardState tracks the state of a card on a reader
type CardState struct {
	LastSeenTime   time.Time
	ReadStartTime  time.Time
	Target         *mifare.Target
	Misses         int
	DetectionState CardDetectionState
	Present        bool
}

// UID returns the UID of the present card, or nil.
func (cs *CardState) UID() mifare.UID {
	if cs.Target == nil {
		return nil
	}
	return cs.Target.UID
}

// TransitionToReading marks the start of a detection callback.
func (cs *CardState) TransitionToReading() {
	cs.DetectionState = StateReading
	cs.ReadStartTime = time.Now()
}

// TransitionToDetected records that target answered a poll.
func (cs *CardState) TransitionToDetected(target *mifare.Target) {
	cs.DetectionState = StateTagDetected
	cs.Present = true
	cs.Target = target
	cs.LastSeenTime = time.Now()
	cs.Misses = 0
}

// TransitionToIdle resets to idle state
func (cs *CardState) TransitionToIdle() {
	*cs = CardState{}
}

// Gone reports whether a present card has been silent for longer than
// timeout.
func (cs *CardState) Gone(timeout time.Duration, now time.Time) bool {
	return cs.Present && now.Sub(cs.LastSeenTime) >= timeout
}
