// spoolbox
// Copyright 2025 The spoolbox authors
// This program is free software licensed under the GNU General Public License,
// version 3.0. The full text of the license can be found in LICENSE.txt.
// SPDX-License-Identifier: GPL-3.0-only

package maildir

import "errors"

var (
	// ErrInvalidArgument is returned when a mailbox is opened with a
	// blank spool root or user name.
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrOutOfRange is returned when a message index is outside
	// [1, Count()] for the current index.
	ErrOutOfRange = errors.New("message index out of range")
)
