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
	"log/slog"
	"sync/atomic"
)

var (
	debugEnabled atomic.Bool
	logger       atomic.Pointer[slog.Logger]
)

// SetDebugEnabled turns protocol tracing on or off for the whole module.
func SetDebugEnabled(enabled bool) {
	debugEnabled.Store(enabled)
}

// DebugEnabled reports whether tracing is on.
func DebugEnabled() bool {
	return debugEnabled.Load()
}

// SetLogger replaces the logger debug output goes to. A nil logger restores
// slog.Default.
func SetLogger(l *slog.Logger) {
	logger.Store(l)
}

func currentLogger() *slog.Logger {
	if l := logger.Load(); l != nil {
		return l
	}
	return slog.Default()
}

// Debugf logs a formatted trace message when debugging is enabled. Reader
// adapters and transports use it so one switch controls every layer.
func Debugf(format string, args ...any) {
	if !debugEnabled.Load() {
		return
	}
	currentLogger().Log(context.Background(), slog.LevelDebug, fmt.Sprintf(format, args...))
}

// Debugln logs its arguments when debugging is enabled.
func Debugln(args ...any) {
	if !debugEnabled.Load() {
		return
	}
	currentLogger().Log(context.Background(), slog.LevelDebug, fmt.Sprint(args...))
}

func debugf(format string, args ...any) { Debugf(format, args...) }

func debugln(args ...any) { Debugln(args...) }
