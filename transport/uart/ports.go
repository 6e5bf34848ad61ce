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

package uart

import (
	"fmt"
	"path/filepath"
	"strings"

	"go.bug.st/serial/enumerator"
)

// Port describes a serial port that may have a PN532 behind it
type Port struct {
	Path    string
	VIDPID  string
	Product string
	IsUSB   bool
	// Likely is set for USB-serial bridges commonly used on PN532 boards.
	Likely bool
}

// ListOptions filters the ports returned by ListPorts
type ListOptions struct {
	// Blocklist holds VID:PID pairs (hex, case-insensitive) never to report
	Blocklist []string
	// IgnorePaths holds device paths never to report
	IgnorePaths []string
}

// knownBridges are USB-serial chips found on PN532 breakout boards
var knownBridges = []string{
	"1A86:7523", // WCH CH340
	"10C4:EA60", // Silicon Labs CP210x
	"0403:6001", // FTDI FT232R
	"067B:2303", // Prolific PL2303
}

// ListPorts enumerates serial ports, most likely PN532 candidates first.
func ListPorts(opts ListOptions) ([]Port, error) {
	details, err := enumerator.GetDetailedPortsList()
	if err != nil {
		return nil, fmt.Errorf("failed to enumerate serial ports: %w", err)
	}
	return filterPorts(details, opts), nil
}

func filterPorts(details []*enumerator.PortDetails, opts ListOptions) []Port {
	var likely, other []Port
	for _, d := range details {
		if d == nil || isPathIgnored(d.Name, opts.IgnorePaths) {
			continue
		}
		p := Port{Path: d.Name, IsUSB: d.IsUSB, Product: d.Product}
		if d.IsUSB {
			p.VIDPID = strings.ToUpper(d.VID + ":" + d.PID)
			if isBlocked(p.VIDPID, opts.Blocklist) {
				continue
			}
			p.Likely = isBlocked(p.VIDPID, knownBridges)
		}
		if p.Likely {
			likely = append(likely, p)
		} else {
			other = append(other, p)
		}
	}
	return append(likely, other...)
}

// isBlocked checks if a VID:PID is in list
func isBlocked(vidpid string, list []string) bool {
	vidpid = strings.ToUpper(strings.TrimSpace(vidpid))
	for _, entry := range list {
		if vidpid == strings.ToUpper(strings.TrimSpace(entry)) {
			return true
		}
	}
	return false
}

// isPathIgnored checks if a device path should be skipped. Paths are
// compared cleaned and case-insensitively so COM ports match on Windows.
func isPathIgnored(devicePath string, ignorePaths []string) bool {
	if devicePath == "" {
		return false
	}
	normalized := normalizedPath(devicePath)
	for _, ignore := range ignorePaths {
		if ignore == "" {
			continue
		}
		if devicePath == ignore || normalized == normalizedPath(ignore) {
			return true
		}
	}
	return false
}

func normalizedPath(path string) string {
	return strings.ToLower(filepath.Clean(path))
}
