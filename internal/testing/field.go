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

package testing

import (
	"context"
	"errors"
	"sync"

	"github.com/ZaparooProject/go-mfclassic/iso14443a"
)

// Field is an RF field holding several virtual tags. Every frame reaches
// every tag; answers that differ bit for bit collide.
type Field struct {
	Tags []*VirtualTag
}

// NewField creates a field with the given tags.
func NewField(tags ...*VirtualTag) *Field {
	return &Field{Tags: tags}
}

// TransceiveBits delivers tx to all tags and merges their answers.
func (f *Field) TransceiveBits(ctx context.Context, tx iso14443a.Frame) (iso14443a.Frame, error) {
	if err := ctx.Err(); err != nil {
		return iso14443a.Frame{}, err
	}
	var answers []iso14443a.Frame
	for _, tag := range f.Tags {
		if rx, ok := tag.Handle(tx); ok {
			answers = append(answers, rx)
		}
	}
	switch len(answers) {
	case 0:
		return iso14443a.Frame{}, iso14443a.ErrNoResponse
	case 1:
		return answers[0], nil
	}

	first := answers[0]
	for _, other := range answers[1:] {
		if pos := firstDifference(first, other); pos >= 0 {
			return iso14443a.Frame{}, &iso14443a.CollisionError{
				Pos:      pos,
				Received: truncateBits(first, pos),
			}
		}
	}
	return first, nil
}

func firstDifference(a, b iso14443a.Frame) int {
	n := min(a.Bits, b.Bits)
	for i := 0; i < n; i++ {
		if a.Data[i/8]>>uint(i%8)&1 != b.Data[i/8]>>uint(i%8)&1 {
			return i
		}
	}
	if a.Bits != b.Bits {
		return n
	}
	return -1
}

// truncateBits keeps the first n data bits of f and the parity of the bytes
// completed before them.
func truncateBits(f iso14443a.Frame, n int) iso14443a.Frame {
	size := (n + 7) / 8
	out := iso14443a.Frame{
		Data:   append([]byte(nil), f.Data[:size]...),
		Parity: append([]byte(nil), f.Parity[:min(n/8, len(f.Parity))]...),
		Bits:   n,
	}
	if rem := n % 8; rem != 0 {
		out.Data[size-1] &= byte(1)<<uint(rem) - 1
	}
	return out
}

// Transceiver is the frame exchange the session drives.
type Transceiver interface {
	TransceiveBits(ctx context.Context, tx iso14443a.Frame) (iso14443a.Frame, error)
}

// Recorder passes frames through to Next and remembers what was sent.
type Recorder struct {
	Next   Transceiver
	frames []iso14443a.Frame
	mu     sync.Mutex
}

// TransceiveBits records tx and forwards it.
func (r *Recorder) TransceiveBits(ctx context.Context, tx iso14443a.Frame) (iso14443a.Frame, error) {
	r.mu.Lock()
	r.frames = append(r.frames, cloneFrame(tx))
	r.mu.Unlock()
	return r.Next.TransceiveBits(ctx, tx)
}

// Count returns the number of frames sent so far.
func (r *Recorder) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.frames)
}

// Frames returns the frames sent so far.
func (r *Recorder) Frames() []iso14443a.Frame {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]iso14443a.Frame(nil), r.frames...)
}

// Step is one scripted exchange.
type Step struct {
	Err error
	// Check, when set, inspects the frame sent.
	Check func(tx iso14443a.Frame) error
	Rx    iso14443a.Frame
}

// ErrScriptExhausted is returned when a Script runs out of steps.
var ErrScriptExhausted = errors.New("script exhausted")

// Script answers frames from a fixed list of steps, for failure injection.
type Script struct {
	Steps []Step
	Sent  []iso14443a.Frame
	pos   int
	mu    sync.Mutex
}

// NewScript creates a script.
func NewScript(steps ...Step) *Script {
	return &Script{Steps: steps}
}

// TransceiveBits returns the next step.
func (s *Script) TransceiveBits(_ context.Context, tx iso14443a.Frame) (iso14443a.Frame, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Sent = append(s.Sent, cloneFrame(tx))
	if s.pos >= len(s.Steps) {
		return iso14443a.Frame{}, ErrScriptExhausted
	}
	step := s.Steps[s.pos]
	s.pos++
	if step.Check != nil {
		if err := step.Check(tx); err != nil {
			return iso14443a.Frame{}, err
		}
	}
	return step.Rx, step.Err
}

// Remaining returns the number of unused steps.
func (s *Script) Remaining() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.Steps) - s.pos
}
