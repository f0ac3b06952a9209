// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package wire

import (
	"testing"

	"gotest.tools/v3/assert"
)

func TestDescriptorRoundTrip(t *testing.T) {
	cases := []Descriptor{
		{Kind: Login, HeaderLen: 0, ContentLen: 0},
		{Kind: Utf8, HeaderLen: 0, ContentLen: 5},
		{Kind: File, HeaderLen: 5, ContentLen: 102400},
		{Kind: Unknown, HeaderLen: 0xFFFF, ContentLen: 0xFFFFFFFFFFFFFFFF},
	}
	for _, d := range cases {
		got := DescriptorFromBytes(d.Bytes())
		assert.DeepEqual(t, got, d)
	}
}

func TestDescriptorLen(t *testing.T) {
	assert.Equal(t, len(Descriptor{Kind: Utf8}.Bytes()), DescriptorLen)
	assert.Equal(t, DescriptorLen, 16)
}

func TestDescriptorPadIsZeroAndIgnored(t *testing.T) {
	b := Descriptor{Kind: Utf8, HeaderLen: 3, ContentLen: 7}.Bytes()
	assert.DeepEqual(t, b[4:8], []byte{0, 0, 0, 0})

	// Garbage in the pad must not affect decoding.
	b[4], b[5], b[6], b[7] = 0xAA, 0xBB, 0xCC, 0xDD
	got := DescriptorFromBytes(b)
	assert.Equal(t, got.Kind, Utf8)
	assert.Equal(t, got.HeaderLen, uint16(3))
	assert.Equal(t, got.ContentLen, uint64(7))
}

func TestDescriptorUnknownKindNeverErrors(t *testing.T) {
	d := Descriptor{Kind: MessageKind(12345), HeaderLen: 0, ContentLen: 0}
	got := DescriptorFromBytes(d.Bytes())
	assert.Equal(t, got.Kind, Unknown)
}

func TestDescriptorLittleEndian(t *testing.T) {
	d := Descriptor{Kind: 0x0102, HeaderLen: 0x0304, ContentLen: 0x0102030405060708}
	b := d.Bytes()
	// kind is LE: low byte first.
	assert.Equal(t, b[0], byte(0x02))
	assert.Equal(t, b[1], byte(0x01))
	// content_len is LE.
	assert.Equal(t, b[8], byte(0x08))
	assert.Equal(t, b[15], byte(0x01))
}

func TestMessageKindHasPayload(t *testing.T) {
	for _, k := range []MessageKind{Utf8, File, Voice, Image} {
		assert.Assert(t, k.HasPayload())
	}
	for _, k := range []MessageKind{Login, Logout, UsernameExists, BadUsername, BadLogin, Unknown} {
		assert.Assert(t, !k.HasPayload())
	}
}
