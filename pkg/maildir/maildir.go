// spoolbox
// Copyright 2025 The spoolbox authors
// This program is free software licensed under the GNU General Public License,
// version 3.0. The full text of the license can be found in LICENSE.txt.
// SPDX-License-Identifier: GPL-3.0-only

// Package maildir implements a per-user maildrop with atomic delivery
// and a mark-then-commit delete protocol.
//
// Each mailbox owns two directories under <root>/<user>: tmp, where
// messages are fully written, and new, where they become visible only
// by an atomic rename. Readers therefore never observe a partially
// written message, and independent writers stay safe without file
// locks.
package maildir

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Locators embed the creation time as a zero-padded nanosecond prefix
// so plain name order is creation order. Files that do not follow the
// scheme (injected by other tools) are ordered by modification time.
var locatorPattern = regexp.MustCompile(`^\d{20}-`)

// Mailbox is a single user's maildrop. All operations on one Mailbox
// are serialized; distinct mailboxes never contend.
type Mailbox struct {
	root string
	user string

	newDir string
	tmpDir string

	mu       sync.Mutex
	index    []string
	toDelete map[string]struct{}
}

// Open ensures the user's tmp and new directories exist and returns
// the mailbox. The index is empty until Load is called.
func Open(root, user string) (*Mailbox, error) {
	if strings.TrimSpace(root) == "" {
		return nil, fmt.Errorf("%w: spool root missing", ErrInvalidArgument)
	}
	if strings.TrimSpace(user) == "" {
		return nil, fmt.Errorf("%w: user missing", ErrInvalidArgument)
	}

	userDir := filepath.Join(root, user)
	mb := &Mailbox{
		root:     root,
		user:     user,
		newDir:   filepath.Join(userDir, "new"),
		tmpDir:   filepath.Join(userDir, "tmp"),
		toDelete: make(map[string]struct{}),
	}
	for _, dir := range []string{mb.tmpDir, mb.newDir} {
		if err := os.MkdirAll(dir, 0700); err != nil {
			return nil, fmt.Errorf("create maildir folders: %w", err)
		}
	}
	return mb, nil
}

func (mb *Mailbox) User() string { return mb.user }

// Deliver writes the message into tmp under a globally unique locator
// and renames it into new. Visibility is established only by the
// rename; on any failure the staged file is removed best-effort and
// nothing becomes visible.
func (mb *Mailbox) Deliver(msg *Message) error {
	mb.mu.Lock()
	defer mb.mu.Unlock()

	base := fmt.Sprintf("%020d-%s.eml", time.Now().UnixNano(), uuid.NewString())
	tmp := filepath.Join(mb.tmpDir, base)
	fin := filepath.Join(mb.newDir, base)

	f, err := os.OpenFile(tmp, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0600)
	if err != nil {
		return fmt.Errorf("stage message: %w", err)
	}
	_, err = f.Write(msg.WireFormat())
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err == nil {
		// Atomic on POSIX filesystems. Where only an
		// overwrite-rename is available the unique locator still
		// guarantees no visible file is ever clobbered.
		err = os.Rename(tmp, fin)
	}
	if err != nil {
		os.Remove(tmp)
		return fmt.Errorf("deliver message: %w", err)
	}
	return nil
}

// Load replaces the index with the current contents of new, ordered by
// creation time with locator-name tie-breaking, and clears all pending
// delete marks. This is the only operation that changes what indices
// 1..N refer to.
func (mb *Mailbox) Load() error {
	mb.mu.Lock()
	defer mb.mu.Unlock()
	return mb.loadLocked()
}

func (mb *Mailbox) loadLocked() error {
	entries, err := os.ReadDir(mb.newDir)
	if err != nil {
		return fmt.Errorf("load mailbox: %w", err)
	}

	type indexed struct {
		name string
		key  string
	}
	files := make([]indexed, 0, len(entries))
	for _, ent := range entries {
		if !ent.Type().IsRegular() {
			continue
		}
		name := ent.Name()
		key := name
		if !locatorPattern.MatchString(name) {
			key = fmt.Sprintf("%020d-%s", foreignModTime(ent), name)
		}
		files = append(files, indexed{name: name, key: key})
	}
	sort.Slice(files, func(i, j int) bool { return files[i].key < files[j].key })

	mb.index = make([]string, len(files))
	for i, f := range files {
		mb.index[i] = f.name
	}
	mb.toDelete = make(map[string]struct{})
	return nil
}

func foreignModTime(ent os.DirEntry) int64 {
	info, err := ent.Info()
	if err != nil {
		return 0
	}
	return info.ModTime().UnixNano()
}

// Count reports the number of indexed messages.
func (mb *Mailbox) Count() int {
	mb.mu.Lock()
	defer mb.mu.Unlock()
	return len(mb.index)
}

// TotalSize reports the byte size of all indexed messages. Messages
// that cannot be stat'd count as zero.
func (mb *Mailbox) TotalSize() int64 {
	mb.mu.Lock()
	defer mb.mu.Unlock()
	var sum int64
	for _, name := range mb.index {
		if info, err := os.Stat(filepath.Join(mb.newDir, name)); err == nil {
			sum += info.Size()
		}
	}
	return sum
}

// Size reports the byte size of message i.
func (mb *Mailbox) Size(i int) (int64, error) {
	mb.mu.Lock()
	defer mb.mu.Unlock()
	name, err := mb.locatorLocked(i)
	if err != nil {
		return 0, err
	}
	info, err := os.Stat(filepath.Join(mb.newDir, name))
	if err != nil {
		return 0, fmt.Errorf("size failed: %w", err)
	}
	return info.Size(), nil
}

// Read returns the stored wire form of message i. Messages marked for
// deletion remain readable until CommitDeletes.
func (mb *Mailbox) Read(i int) ([]byte, error) {
	mb.mu.Lock()
	defer mb.mu.Unlock()
	name, err := mb.locatorLocked(i)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(filepath.Join(mb.newDir, name))
	if err != nil {
		return nil, fmt.Errorf("read failed: %w", err)
	}
	return data, nil
}

// Locator returns the opaque unique name of message i.
func (mb *Mailbox) Locator(i int) (string, error) {
	mb.mu.Lock()
	defer mb.mu.Unlock()
	return mb.locatorLocked(i)
}

// MarkDelete adds message i to the pending-delete set. Read access to
// i is unaffected until commit.
func (mb *Mailbox) MarkDelete(i int) error {
	mb.mu.Lock()
	defer mb.mu.Unlock()
	name, err := mb.locatorLocked(i)
	if err != nil {
		return err
	}
	mb.toDelete[name] = struct{}{}
	return nil
}

// UnmarkAll clears the pending-delete set without touching the index
// or any files.
func (mb *Mailbox) UnmarkAll() {
	mb.mu.Lock()
	defer mb.mu.Unlock()
	mb.toDelete = make(map[string]struct{})
}

// CommitDeletes removes every file in the pending-delete set and
// reloads the index. Already-missing files are tolerated. Removal is
// best-effort per file: on failure the remaining files are still
// attempted, already-removed files stay removed, and the first error
// is returned after the reload.
func (mb *Mailbox) CommitDeletes() error {
	mb.mu.Lock()
	defer mb.mu.Unlock()

	var firstErr error
	for name := range mb.toDelete {
		err := os.Remove(filepath.Join(mb.newDir, name))
		if err != nil && !os.IsNotExist(err) && firstErr == nil {
			firstErr = fmt.Errorf("delete failed: %s: %w", name, err)
		}
	}
	mb.toDelete = make(map[string]struct{})

	if err := mb.loadLocked(); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}

func (mb *Mailbox) locatorLocked(i int) (string, error) {
	if i < 1 || i > len(mb.index) {
		return "", fmt.Errorf("%w: %d", ErrOutOfRange, i)
	}
	return mb.index[i-1], nil
}
