// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package broker

import (
	"io"

	"code.hybscloud.com/chatframe/spill"
)

type contentKind uint8

const (
	contentEmpty contentKind = iota
	contentMemory
	contentSpilled
)

// Content is the tagged variant carried by a ServerMessage: InMemory bytes,
// a Spilled reference-counted handle, or Empty (§3 ServerMessage). It is
// shared by reference across all subscribers of one broadcast; cloning never
// copies payload bytes.
type Content struct {
	kind   contentKind
	bytes  []byte
	handle spill.Handle
}

// InMemory wraps a payload materialized fully in memory (§4.2 step 4, small
// content).
func InMemory(b []byte) Content { return Content{kind: contentMemory, bytes: b} }

// Spilled wraps a handle to a temp-file-backed payload (§4.2 step 4, large
// content). The handle's initial reference is considered transferred to the
// returned Content.
func Spilled(h spill.Handle) Content { return Content{kind: contentSpilled, handle: h} }

// Empty is the content of Login/Logout and the error kinds, which carry no
// payload.
func Empty() Content { return Content{kind: contentEmpty} }

// Clone returns a Content sharing the same backing payload. For Spilled
// content this increments the handle's reference count; the caller must
// Release its clone exactly once. InMemory/Empty content needs no refcount:
// Go's garbage collector owns the backing byte slice.
func (c Content) Clone() Content {
	if c.kind == contentSpilled {
		return Content{kind: contentSpilled, handle: c.handle.Clone()}
	}
	return c
}

// Release drops this Content's reference. For Spilled content, the backing
// file is removed once every clone has been released (§4.3). It is a no-op
// for InMemory/Empty content.
func (c Content) Release() error {
	if c.kind == contentSpilled {
		return c.handle.Release()
	}
	return nil
}

// WriteTo writes the content to w: InMemory writes its bytes directly,
// Spilled streams the backing file through a bufSize buffer, Empty writes
// nothing (§4.5 step 3).
func (c Content) WriteTo(w io.Writer, bufSize int) error {
	switch c.kind {
	case contentMemory:
		if len(c.bytes) == 0 {
			return nil
		}
		_, err := w.Write(c.bytes)
		return err
	case contentSpilled:
		_, err := c.handle.CopyTo(w, bufSize)
		return err
	default:
		return nil
	}
}
