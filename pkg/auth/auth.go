// spoolbox
// Copyright 2025 The spoolbox authors
// This program is free software licensed under the GNU General Public License,
// version 3.0. The full text of the license can be found in LICENSE.txt.
// SPDX-License-Identifier: GPL-3.0-only

// Package auth validates user credentials against a TOML account file.
package auth

import (
	"crypto/subtle"
	"fmt"
	"os"
	"strings"

	toml "github.com/pelletier/go-toml/v2"
	"golang.org/x/crypto/bcrypt"
)

// Account is one credential pair. Password is either a bcrypt hash
// (recognized by its "$2" prefix) or a plain text secret.
type Account struct {
	Username string `toml:"username"`
	Password string `toml:"password"`
}

type accountsFile struct {
	Accounts []Account `toml:"account"`
}

// File is an in-memory view of an account file.
type File struct {
	accounts map[string]string
}

// LoadFile reads and parses a TOML account file of the form:
//
//	[[account]]
//	username = "alice"
//	password = "$2a$10$..."
func LoadFile(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading account file: %w", err)
	}
	return Parse(data)
}

// Parse builds a File from raw TOML.
func Parse(data []byte) (*File, error) {
	var parsed accountsFile
	if err := toml.Unmarshal(data, &parsed); err != nil {
		return nil, fmt.Errorf("parsing account file: %w", err)
	}

	f := &File{accounts: make(map[string]string, len(parsed.Accounts))}
	for _, acct := range parsed.Accounts {
		if acct.Username == "" {
			return nil, fmt.Errorf("account with blank username")
		}
		if _, dup := f.accounts[acct.Username]; dup {
			return nil, fmt.Errorf("duplicate account %q", acct.Username)
		}
		f.accounts[acct.Username] = acct.Password
	}
	return f, nil
}

// Validate reports whether the credential pair matches a known
// account. It is an opaque yes/no oracle; callers get no detail about
// which part failed.
func (f *File) Validate(username, password string) bool {
	secret, found := f.accounts[username]
	if !found {
		// Burn comparable time so an unknown user is not
		// distinguishable from a bad password.
		subtle.ConstantTimeCompare([]byte(password), []byte(password))
		return false
	}

	if strings.HasPrefix(secret, "$2") {
		return bcrypt.CompareHashAndPassword([]byte(secret), []byte(password)) == nil
	}
	return subtle.ConstantTimeCompare([]byte(secret), []byte(password)) == 1
}

// Has reports whether an account exists for username.
func (f *File) Has(username string) bool {
	_, found := f.accounts[username]
	return found
}

// Len returns the number of accounts.
func (f *File) Len() int {
	return len(f.accounts)
}

// HashPassword produces a bcrypt hash suitable for an account file.
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("hashing password: %w", err)
	}
	return string(hash), nil
}
