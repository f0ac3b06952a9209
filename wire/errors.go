// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package wire

import "errors"

var (
	// ErrInvalidArgument reports an out-of-range value (a negative length)
	// passed to a wire operation.
	ErrInvalidArgument = errors.New("wire: invalid argument")

	// ErrTooLong reports a content length beyond a configured ReadLimit.
	ErrTooLong = errors.New("wire: content too long")

	// ErrShortDescriptor reports that fewer than DescriptorLen bytes were
	// available for a descriptor; the connection is unusable past this point.
	ErrShortDescriptor = errors.New("wire: short descriptor read")

	// ErrUnknownKind reports a descriptor whose kind did not decode to one of
	// the defined MessageKind values. This is a protocol error: the caller
	// should close the connection.
	ErrUnknownKind = errors.New("wire: unknown message kind")
)
