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

package transport

import (
	"context"
	"errors"
	"testing"
	"time"

	mifare "github.com/ZaparooProject/go-mfclassic"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWithRetry(t *testing.T) {
	t.Parallel()

	t.Run("succeeds after retries", func(t *testing.T) {
		t.Parallel()
		calls, nacks := 0, 0
		got, err := WithRetry(RetryConfig{
			MaxRetries: 3,
			OnRetry:    func() error { nacks++; return nil },
		}, func() (int, bool, error) {
			calls++
			return calls, calls < 3, nil
		})
		require.NoError(t, err)
		assert.Equal(t, 3, got)
		assert.Equal(t, 2, nacks)
	})

	t.Run("exhausted", func(t *testing.T) {
		t.Parallel()
		calls := 0
		_, err := WithRetry(RetryConfig{MaxRetries: 2, Description: "receiveFrame", Port: "/dev/null"},
			func() ([]byte, bool, error) {
				calls++
				return nil, true, nil
			})
		require.ErrorIs(t, err, mifare.ErrCommunicationFailed)
		assert.Equal(t, 3, calls)
		var te *mifare.TransportError
		require.ErrorAs(t, err, &te)
		assert.Equal(t, "receiveFrame", te.Op)
		assert.True(t, mifare.IsRetryable(err))
	})

	t.Run("permanent error stops", func(t *testing.T) {
		t.Parallel()
		boom := errors.New("boom")
		calls := 0
		_, err := WithRetry(RetryConfig{MaxRetries: 5}, func() (int, bool, error) {
			calls++
			return 0, false, boom
		})
		require.ErrorIs(t, err, boom)
		assert.Equal(t, 1, calls)
	})

	t.Run("retry callback error", func(t *testing.T) {
		t.Parallel()
		nackErr := errors.New("nack write failed")
		_, err := WithRetry(RetryConfig{MaxRetries: 5, OnRetry: func() error { return nackErr }},
			func() (int, bool, error) { return 0, true, nil })
		require.ErrorIs(t, err, nackErr)
	})
}

func TestTimeoutRetry(t *testing.T) {
	t.Parallel()

	calls := 0
	got, err := TimeoutRetry(context.Background(), time.Second, "i2c-1", func() (string, bool, error) {
		calls++
		return "ready", calls < 2, nil
	})
	require.NoError(t, err)
	assert.Equal(t, "ready", got)

	_, err = TimeoutRetry(context.Background(), 5*time.Millisecond, "i2c-1", func() (int, bool, error) {
		return 0, true, nil
	})
	require.ErrorIs(t, err, mifare.ErrTransportTimeout)
	assert.Equal(t, mifare.ErrorTypeTimeout, mifare.GetErrorType(err))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = TimeoutRetry(ctx, time.Second, "i2c-1", func() (int, bool, error) {
		return 0, true, nil
	})
	require.ErrorIs(t, err, context.Canceled)
}
