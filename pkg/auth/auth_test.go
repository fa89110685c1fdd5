// spoolbox
// Copyright 2025 The spoolbox authors
// This program is free software licensed under the GNU General Public License,
// version 3.0. The full text of the license can be found in LICENSE.txt.
// SPDX-License-Identifier: GPL-3.0-only

package auth

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParsePlainAccounts(t *testing.T) {
	f, err := Parse([]byte(`
[[account]]
username = "alice"
password = "letmein"

[[account]]
username = "bob"
password = "hunter2"
`))
	require.NoError(t, err)
	assert.Equal(t, 2, f.Len())

	assert.True(t, f.Validate("alice", "letmein"))
	assert.True(t, f.Validate("bob", "hunter2"))

	assert.False(t, f.Validate("alice", "wrong"))
	assert.False(t, f.Validate("alice", ""))
	assert.False(t, f.Validate("carol", "letmein"))
	assert.False(t, f.Validate("", ""))
}

func TestBcryptAccounts(t *testing.T) {
	hash, err := HashPassword("s3cret")
	require.NoError(t, err)
	assert.True(t, len(hash) > 2 && hash[:2] == "$2")

	f, err := Parse([]byte(`
[[account]]
username = "alice"
password = "` + hash + `"
`))
	require.NoError(t, err)

	assert.True(t, f.Validate("alice", "s3cret"))
	assert.False(t, f.Validate("alice", "s3cret "))
	assert.False(t, f.Validate("alice", hash), "the hash itself is not the password")
}

func TestParseRejectsBadFiles(t *testing.T) {
	_, err := Parse([]byte("[[account]]\npassword = \"x\"\n"))
	assert.Error(t, err, "blank username")

	_, err = Parse([]byte(`
[[account]]
username = "alice"
password = "a"

[[account]]
username = "alice"
password = "b"
`))
	assert.Error(t, err, "duplicate username")

	_, err = Parse([]byte("not toml ["))
	assert.Error(t, err)
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "accounts.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
[[account]]
username = "alice"
password = "letmein"
`), 0600))

	f, err := LoadFile(path)
	require.NoError(t, err)
	assert.True(t, f.Validate("alice", "letmein"))

	_, err = LoadFile(filepath.Join(t.TempDir(), "missing.toml"))
	assert.Error(t, err)
}

func TestEmptyFileValidatesNothing(t *testing.T) {
	f, err := Parse([]byte(""))
	require.NoError(t, err)
	assert.Equal(t, 0, f.Len())
	assert.False(t, f.Validate("anyone", "anything"))
}
