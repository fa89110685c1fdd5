// spoolbox
// Copyright 2025 The spoolbox authors
// This program is free software licensed under the GNU General Public License,
// version 3.0. The full text of the license can be found in LICENSE.txt.
// SPDX-License-Identifier: GPL-3.0-only

package main

import (
	"sync"

	"github.com/spoolbox/spoolbox/pkg/maildir"
)

// mailboxRegistry hands every delivery worker the same Mailbox per
// user, so the store's own lock serializes concurrent deliveries.
type mailboxRegistry struct {
	root string

	mu   sync.Mutex
	open map[string]*maildir.Mailbox
}

func newMailboxRegistry(root string) *mailboxRegistry {
	return &mailboxRegistry{
		root: root,
		open: make(map[string]*maildir.Mailbox),
	}
}

func (r *mailboxRegistry) OpenMailbox(user string) (*maildir.Mailbox, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if mb, found := r.open[user]; found {
		return mb, nil
	}

	mb, err := maildir.Open(r.root, user)
	if err != nil {
		return nil, err
	}
	r.open[user] = mb
	return mb, nil
}
