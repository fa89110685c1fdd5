// spoolbox
// Copyright 2025 The spoolbox authors
// This program is free software licensed under the GNU General Public License,
// version 3.0. The full text of the license can be found in LICENSE.txt.
// SPDX-License-Identifier: GPL-3.0-only

package main

import (
	"sync"

	"github.com/spoolbox/spoolbox/pkg/auth"
)

// accountStore wraps the parsed account file so it can be swapped out
// on SIGHUP while connections are being served.
type accountStore struct {
	path string

	mu   sync.RWMutex
	file *auth.File
}

func loadAccounts(path string) (*accountStore, error) {
	f, err := auth.LoadFile(path)
	if err != nil {
		return nil, err
	}
	return &accountStore{path: path, file: f}, nil
}

// Reload re-reads the account file. On error the previous accounts
// stay in effect.
func (s *accountStore) Reload() error {
	f, err := auth.LoadFile(s.path)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.file = f
	s.mu.Unlock()
	return nil
}

func (s *accountStore) Validate(user, pass string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.file.Validate(user, pass)
}

func (s *accountStore) Has(user string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.file.Has(user)
}
