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
	"context"
	"fmt"
	"time"
)

// ContextTransport is a Transport that takes a context per command. The
// UART and I2C links implement it natively; anything else is wrapped by
// WithContext.
type ContextTransport interface {
	Transport
	SendCommandContext(ctx context.Context, cmd byte, args []byte) ([]byte, error)
}

// WithContext returns t as a ContextTransport. Links without native
// support get their timeout narrowed to the context deadline for the
// duration of each command, then set back to linkTimeout.
func WithContext(t Transport, linkTimeout time.Duration) ContextTransport {
	if ct, ok := t.(ContextTransport); ok {
		return ct
	}
	return &deadlineLink{Transport: t, linkTimeout: linkTimeout}
}

type deadlineLink struct {
	Transport
	linkTimeout time.Duration
}

type linkReply struct {
	err  error
	resp []byte
}

func (l *deadlineLink) SendCommandContext(ctx context.Context, cmd byte, args []byte) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("command 0x%02X not sent: %w", cmd, err)
	}
	if left, ok := timeLeft(ctx); ok {
		if err := l.SetTimeout(left); err != nil {
			return nil, err
		}
		defer l.restoreTimeout()
	}

	// The blocking call cannot be interrupted. If ctx wins, the goroutine
	// ends when the narrowed link timeout fires.
	replies := make(chan linkReply, 1)
	go func() {
		resp, err := l.SendCommand(cmd, args)
		replies <- linkReply{err: err, resp: resp}
	}()

	select {
	case r := <-replies:
		return r.resp, r.err
	case <-ctx.Done():
		return nil, fmt.Errorf("command 0x%02X abandoned: %w", cmd, ctx.Err())
	}
}

func (l *deadlineLink) restoreTimeout() {
	if err := l.SetTimeout(l.linkTimeout); err != nil {
		debugf("restore link timeout %v: %v", l.linkTimeout, err)
	}
}

// timeLeft reports the time until ctx's deadline, if it has one that has
// not passed yet.
func timeLeft(ctx context.Context) (time.Duration, bool) {
	deadline, ok := ctx.Deadline()
	if !ok {
		return 0, false
	}
	left := time.Until(deadline)
	return left, left > 0
}
