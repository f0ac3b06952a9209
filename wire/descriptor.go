// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package wire

import "encoding/binary"

// DescriptorLen is the fixed on-wire size of a Descriptor, in bytes: 2
// (kind) + 2 (header_len) + 4 (pad) + 8 (content_len).
const DescriptorLen = 16

// Descriptor is the fixed header that precedes every message on the wire:
//
//	kind        2 bytes LE
//	header_len  2 bytes LE
//	pad         4 bytes (zero on write, ignored on read)
//	content_len 8 bytes LE
//
// The 4-byte pad exists purely to align content_len on an 8-byte boundary;
// implementations MUST emit zeros for it and MUST ignore it on read to stay
// wire-compatible.
type Descriptor struct {
	Kind       MessageKind
	HeaderLen  uint16
	ContentLen uint64
}

// Bytes encodes d into a fresh DescriptorLen-byte slice.
func (d Descriptor) Bytes() []byte {
	var b [DescriptorLen]byte
	d.PutBytes(b[:])
	return b[:]
}

// PutBytes encodes d into b, which must be at least DescriptorLen bytes.
func (d Descriptor) PutBytes(b []byte) {
	_ = b[:DescriptorLen] // bounds check hint
	binary.LittleEndian.PutUint16(b[0:2], uint16(d.Kind))
	binary.LittleEndian.PutUint16(b[2:4], d.HeaderLen)
	b[4], b[5], b[6], b[7] = 0, 0, 0, 0
	binary.LittleEndian.PutUint64(b[8:16], d.ContentLen)
}

// DescriptorFromBytes decodes a Descriptor from exactly DescriptorLen bytes.
// The pad bytes (b[4:8]) are ignored, never validated. An unrecognized kind
// decodes to Unknown rather than failing: decoding a malformed-but-complete
// descriptor never errors, only interpreting it downstream does.
func DescriptorFromBytes(b []byte) Descriptor {
	_ = b[:DescriptorLen]
	return Descriptor{
		Kind:       kindFromUint16(binary.LittleEndian.Uint16(b[0:2])),
		HeaderLen:  binary.LittleEndian.Uint16(b[2:4]),
		ContentLen: binary.LittleEndian.Uint64(b[8:16]),
	}
}
