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

// Package tagops provides caller-side helpers on top of a mifare.Session:
// key dictionary authentication, sector reads, trailer parsing and NDEF
// access on MAD formatted tags.
package tagops

import (
	"bytes"
	"context"
	"errors"
	"fmt"

	mifare "github.com/ZaparooProject/go-mfclassic"
)

// Errors returned by tag operations
var (
	ErrNoTag        = errors.New("no tag detected")
	ErrTagChanged   = errors.New("a different tag answered")
	ErrKeyNotFound  = errors.New("no key in the dictionary opens the sector")
	ErrInvalidMAD   = errors.New("invalid MIFARE Application Directory")
	ErrNoNDEF       = errors.New("no NDEF message on tag")
	ErrInvalidTLV   = errors.New("invalid NDEF TLV")
	ErrNDEFTooLarge = errors.New("NDEF message does not fit the NDEF sectors")
)

// TagOperations runs multi-step operations against the tag a session has
// selected. Like the session it wraps, it is not safe for concurrent use.
type TagOperations struct {
	session *mifare.Session
	target  *mifare.Target
	// opened is the key of the session's current authentication.
	opened SectorKey
}

// New wraps s.
func New(s *mifare.Session) *TagOperations {
	return &TagOperations{session: s}
}

// Session returns the wrapped session.
func (t *TagOperations) Session() *mifare.Session {
	return t.session
}

// DetectTag activates a tag with WUPA, so halted tags are found too, and
// remembers it for the following operations.
func (t *TagOperations) DetectTag(ctx context.Context) (*mifare.Target, error) {
	t.session.Reset()
	t.opened = SectorKey{}
	target, err := t.session.ActivateWakeup(ctx)
	if err != nil {
		t.target = nil
		if errors.Is(err, mifare.ErrNoTagPresent) {
			return nil, fmt.Errorf("%w: %w", ErrNoTag, err)
		}
		return nil, err
	}
	t.target = target
	return target, nil
}

// Target returns the detected tag or nil.
func (t *TagOperations) Target() *mifare.Target {
	return t.target
}

// reselect brings the detected tag back to StateSelected after a failed
// authentication sent it to IDLE. Another UID answering is an error.
func (t *TagOperations) reselect(ctx context.Context) error {
	if t.target == nil {
		return ErrNoTag
	}
	t.session.Reset()
	t.opened = SectorKey{}
	target, err := t.session.ActivateWakeup(ctx)
	if err != nil {
		return fmt.Errorf("reselect: %w", err)
	}
	if !bytes.Equal(target.UID, t.target.UID) {
		return fmt.Errorf("%w: expected %s, got %s", ErrTagChanged, t.target.UID, target.UID)
	}
	return nil
}

// authenticate opens sector with key. A session already authenticated for
// that sector with the same key is reused. After a rejected key the tag is
// reselected, so the next attempt can follow straight away.
func (t *TagOperations) authenticate(ctx context.Context, sector int, key SectorKey) error {
	if t.target == nil {
		return ErrNoTag
	}
	if auth, ok := t.session.Auth(); ok && auth.Sector == sector && t.opened == key {
		return nil
	}
	if st := t.session.State(); st != mifare.StateSelected && st != mifare.StateAuthenticated {
		if err := t.reselect(ctx); err != nil {
			return err
		}
	}
	t.opened = SectorKey{}
	err := t.session.Authenticate(ctx, uint8(mifare.FirstBlock(sector)), key.Key, key.Type)
	switch {
	case err == nil:
		t.opened = key
		return nil
	case errors.Is(err, mifare.ErrAuthenticationFailed):
		// The tag went back to IDLE on the rejected handshake.
		if rerr := t.reselect(ctx); rerr != nil {
			return fmt.Errorf("%w (%w)", err, rerr)
		}
	}
	return err
}

// Halt halts the tag and forgets it.
func (t *TagOperations) Halt(ctx context.Context) error {
	t.target = nil
	if st := t.session.State(); st != mifare.StateSelected && st != mifare.StateAuthenticated {
		return nil
	}
	if err := t.session.Halt(ctx); err != nil {
		return fmt.Errorf("halt: %w", err)
	}
	return nil
}
