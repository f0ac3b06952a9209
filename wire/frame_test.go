// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package wire

import (
	"bufio"
	"bytes"
	"io"
	"testing"

	"gotest.tools/v3/assert"
)

func TestWriteFrameThenReadDescriptorAndExact(t *testing.T) {
	var buf bytes.Buffer
	w := bufio.NewWriter(&buf)
	d := Descriptor{Kind: File, HeaderLen: 5, ContentLen: 3}

	err := WriteFrame(w, d, []byte("a.txt"), BytesSource([]byte{0x01, 0x02, 0x03}))
	assert.NilError(t, err)

	got, err := ReadDescriptor(&buf)
	assert.NilError(t, err)
	assert.DeepEqual(t, got, d)

	header, err := ReadExact(&buf, int(got.HeaderLen))
	assert.NilError(t, err)
	assert.Equal(t, string(header), "a.txt")

	content, err := ReadExact(&buf, int(got.ContentLen))
	assert.NilError(t, err)
	assert.DeepEqual(t, content, []byte{0x01, 0x02, 0x03})

	assert.Equal(t, buf.Len(), 0)
}

func TestWriteFrameBytesWrittenCount(t *testing.T) {
	var buf bytes.Buffer
	d := Descriptor{Kind: Utf8, HeaderLen: 0, ContentLen: 5}
	assert.NilError(t, WriteFrame(&buf, d, nil, BytesSource([]byte("hello"))))
	assert.Equal(t, buf.Len(), DescriptorLen+0+5)
}

func TestWriteFrameStreamsLargeContent(t *testing.T) {
	payload := bytes.Repeat([]byte{0x7A}, 100*1024)
	var buf bytes.Buffer
	d := Descriptor{Kind: File, HeaderLen: 0, ContentLen: uint64(len(payload))}
	err := WriteFrame(&buf, d, nil, StreamSource(bytes.NewReader(payload), int64(len(payload))))
	assert.NilError(t, err)

	got, err := ReadDescriptor(&buf)
	assert.NilError(t, err)
	content, err := ReadExact(&buf, int(got.ContentLen))
	assert.NilError(t, err)
	assert.DeepEqual(t, content, payload)
}

func TestReadDescriptorEOFAtBoundary(t *testing.T) {
	_, err := ReadDescriptor(bytes.NewReader(nil))
	assert.Equal(t, err, io.EOF)
}

func TestReadDescriptorShortRead(t *testing.T) {
	_, err := ReadDescriptor(bytes.NewReader([]byte{1, 2, 3}))
	assert.ErrorIs(t, err, ErrShortDescriptor)
}

func TestReadExactZeroLength(t *testing.T) {
	b, err := ReadExact(bytes.NewReader(nil), 0)
	assert.NilError(t, err)
	assert.Assert(t, b == nil)
}

func TestReadExactRespectsReadLimit(t *testing.T) {
	_, err := ReadExact(bytes.NewReader(make([]byte, 100)), 100, WithReadLimit(10))
	assert.ErrorIs(t, err, ErrTooLong)
}

func TestEmptySourceWritesNothing(t *testing.T) {
	var buf bytes.Buffer
	d := Descriptor{Kind: Login, HeaderLen: 0, ContentLen: 0}
	assert.NilError(t, WriteFrame(&buf, d, nil, EmptySource()))
	assert.Equal(t, buf.Len(), DescriptorLen)
}
