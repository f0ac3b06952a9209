// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package spill provides temporary file-backed storage for content too
// large to hold in memory (§4.2 step 4, §4.3 cleanup policy). Each spilled
// payload is keyed by a fresh unique id and reference-counted: the backing
// file is removed once every holder has released its Handle.
package spill

import (
	"io"
	"os"
	"path/filepath"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/pkg/errors"
)

// ID identifies one spilled payload.
type ID string

// Store creates and opens spill files under a root directory, defaulting to
// os.TempDir() (tests may point it elsewhere).
type Store struct {
	dir string
}

// New returns a Store rooted at dir. If dir is empty, os.TempDir() is used.
func New(dir string) *Store {
	if dir == "" {
		dir = os.TempDir()
	}
	return &Store{dir: dir}
}

func (s *Store) path(id ID) string {
	return filepath.Join(s.dir, string(id))
}

// Create opens a fresh spill file under a random unique id. The file is
// opened create-only (no truncate), matching the original implementation's
// OpenOptions::new().create(true): a collision on a freshly generated uuid
// is not expected and is surfaced as an error rather than silently
// overwriting another message's content.
func (s *Store) Create() (*os.File, ID, error) {
	id := ID(uuid.NewString())
	f, err := os.OpenFile(s.path(id), os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o600)
	if err != nil {
		return nil, "", errors.Wrap(err, "spill: create")
	}
	return f, id, nil
}

// Open opens a previously spilled file for reading.
func (s *Store) Open(id ID) (*os.File, error) {
	f, err := os.Open(s.path(id))
	if err != nil {
		return nil, errors.Wrap(err, "spill: open")
	}
	return f, nil
}

// Remove deletes the backing file for id. Safe to call even if the file is
// already gone.
func (s *Store) Remove(id ID) error {
	if err := os.Remove(s.path(id)); err != nil && !os.IsNotExist(err) {
		return errors.Wrap(err, "spill: remove")
	}
	return nil
}

// Handle is a reference-counted pointer to a spilled file. The broker hands
// out one reference per registered subscriber when it broadcasts a Message
// carrying spilled content (§4.3); each egress goroutine calls Release after
// it finishes streaming (or abandons) the content. The backing file is
// removed when the last reference is released.
type Handle struct {
	store *Store
	id    ID
	refs  *atomic.Int64
}

// NewHandle creates a Handle with an initial reference count of 1,
// representing the ingress task's own reference (transferred to the broker
// event).
func NewHandle(store *Store, id ID) Handle {
	refs := new(atomic.Int64)
	refs.Store(1)
	return Handle{store: store, id: id, refs: refs}
}

// Clone increments the reference count and returns a Handle sharing the
// same backing file. Used by the broker to give one reference to each
// registry entry at fan-out time (§3 ServerMessage: "content handle is
// shared by reference across all subscribers").
func (h Handle) Clone() Handle {
	h.refs.Add(1)
	return h
}

// Open opens the backing file for reading.
func (h Handle) Open() (*os.File, error) {
	return h.store.Open(h.id)
}

// Release decrements the reference count and removes the backing file once
// it reaches zero. Safe to call exactly once per Handle value obtained from
// NewHandle or Clone.
func (h Handle) Release() error {
	if h.refs.Add(-1) == 0 {
		return h.store.Remove(h.id)
	}
	return nil
}

// CopyTo streams the handle's content to w through a BufSize-sized buffer,
// matching the ingress/egress copy idiom (§4.2 step 4, §4.5 step 3). It does
// not Release the handle; callers do that once after CopyTo returns,
// regardless of error, to avoid orphaning the spill file.
func (h Handle) CopyTo(w io.Writer, bufSize int) (int64, error) {
	f, err := h.Open()
	if err != nil {
		return 0, err
	}
	defer f.Close()
	if bufSize <= 0 {
		bufSize = 16 * 1024
	}
	n, err := io.CopyBuffer(w, f, make([]byte, bufSize))
	if err != nil {
		return n, errors.Wrap(err, "spill: copy")
	}
	return n, nil
}
