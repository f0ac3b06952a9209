// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package wire

import (
	"io"

	"github.com/pkg/errors"
)

// ReadDescriptor reads exactly DescriptorLen bytes from r and decodes them.
// It does not validate any relationship between the decoded fields (e.g.
// whether HeaderLen/ContentLen are sane for the given Kind); callers enforce
// that. A clean io.EOF with zero bytes consumed is reported as io.EOF so
// callers can distinguish "no more messages" from a
// mid-descriptor truncation, which is reported as ErrShortDescriptor.
func ReadDescriptor(r io.Reader) (Descriptor, error) {
	var b [DescriptorLen]byte
	n, err := io.ReadFull(r, b[:])
	if err != nil {
		if err == io.EOF && n == 0 {
			return Descriptor{}, io.EOF
		}
		if err == io.ErrUnexpectedEOF || (err == io.EOF && n > 0) {
			return Descriptor{}, ErrShortDescriptor
		}
		return Descriptor{}, errors.Wrap(err, "wire: read descriptor")
	}
	return DescriptorFromBytes(b[:]), nil
}

// WriteDescriptor encodes d and writes it to w.
func WriteDescriptor(w io.Writer, d Descriptor) error {
	_, err := w.Write(d.Bytes())
	if err != nil {
		return errors.Wrap(err, "wire: write descriptor")
	}
	return nil
}

// ReadExact reads exactly n bytes from r. It is used by ingress for header
// bytes and small (in-memory) content. WithReadLimit rejects n beyond the
// configured limit before attempting the read, guarding against a peer
// advertising an unreasonable header_len/content_len.
func ReadExact(r io.Reader, n int, opts ...Option) ([]byte, error) {
	if n < 0 {
		return nil, ErrInvalidArgument
	}
	o := resolve(opts)
	if o.ReadLimit > 0 && int64(n) > o.ReadLimit {
		return nil, ErrTooLong
	}
	if n == 0 {
		return nil, nil
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, errors.Wrap(err, "wire: read exact")
	}
	return buf, nil
}

// ContentSource supplies the content section of a frame to WriteFrame. It is
// either an in-memory []byte or a streamed io.Reader of known length.
type ContentSource struct {
	bytes  []byte
	stream io.Reader
	length int64
}

// BytesSource wraps an in-memory payload.
func BytesSource(b []byte) ContentSource {
	return ContentSource{bytes: b, length: int64(len(b))}
}

// StreamSource wraps a readable source of exactly length bytes. The caller
// guarantees r yields exactly length bytes; WriteFrame treats a short read
// as io.ErrUnexpectedEOF.
func StreamSource(r io.Reader, length int64) ContentSource {
	return ContentSource{stream: r, length: length}
}

// EmptySource is the zero-length content source used for Login/Logout and
// the error kinds.
func EmptySource() ContentSource { return ContentSource{} }

// WriteFrame writes descriptor, then header bytes, then the content from
// src, and flushes w if it implements interface{ Flush() error }. Writes for
// one connection's frame must not interleave with another frame on the same
// socket; callers serialize WriteFrame calls per connection.
func WriteFrame(w io.Writer, d Descriptor, header []byte, src ContentSource, opts ...Option) error {
	if err := WriteDescriptor(w, d); err != nil {
		return err
	}
	if len(header) > 0 {
		if _, err := w.Write(header); err != nil {
			return errors.Wrap(err, "wire: write header")
		}
	}
	if err := writeContent(w, src, resolve(opts)); err != nil {
		return err
	}
	if f, ok := w.(interface{ Flush() error }); ok {
		if err := f.Flush(); err != nil {
			return errors.Wrap(err, "wire: flush")
		}
	}
	return nil
}

func writeContent(w io.Writer, src ContentSource, o Options) error {
	switch {
	case src.length == 0:
		return nil
	case src.bytes != nil:
		if _, err := w.Write(src.bytes); err != nil {
			return errors.Wrap(err, "wire: write content")
		}
		return nil
	case src.stream != nil:
		buf := make([]byte, o.CopyBufSize)
		n, err := io.CopyBuffer(w, io.LimitReader(src.stream, src.length), buf)
		if err != nil {
			return errors.Wrap(err, "wire: stream content")
		}
		if n != src.length {
			return errors.Wrap(io.ErrUnexpectedEOF, "wire: stream content")
		}
		return nil
	default:
		return nil
	}
}
