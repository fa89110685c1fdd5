// spoolbox
// Copyright 2025 The spoolbox authors
// This program is free software licensed under the GNU General Public License,
// version 3.0. The full text of the license can be found in LICENSE.txt.
// SPDX-License-Identifier: GPL-3.0-only

package pop3

import (
	"time"

	"github.com/spoolbox/spoolbox/pkg/metrics"
)

// Mailbox is the drive-by-drive view of one user's maildrop that a
// retrieval session operates on. Indices are 1-based against the
// snapshot taken when the mailbox was opened; they are remapped only
// by CommitDeletes.
type Mailbox interface {
	Count() int
	TotalSize() int64
	Size(i int) (int64, error)
	Read(i int) ([]byte, error)
	Locator(i int) (string, error)
	MarkDelete(i int) error
	UnmarkAll()
	CommitDeletes() error
}

// PostOffice authenticates users and opens their mailboxes.
type PostOffice interface {
	// Name is the server name sent in the greeting banner.
	Name() string

	// OpenMailbox validates the credential pair and returns the
	// user's mailbox, loaded to a point-in-time snapshot.
	OpenMailbox(user, pass string) (Mailbox, error)

	// IdleTimeout bounds the wait for each client line. Zero means no
	// timeout.
	IdleTimeout() time.Duration

	// Metrics is the collector commands and retrievals are recorded
	// against.
	Metrics() metrics.Collector
}
