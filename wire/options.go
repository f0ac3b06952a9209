// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package wire

// BufSize is the threshold between in-memory and spilled content, and the
// buffer size used when streaming content through WriteFrame.
const BufSize = 16 * 1024

// Options configures the streaming helpers in this package. Zero value is
// the default: no read limit, BufSize-sized copy buffer.
type Options struct {
	// ReadLimit caps the length ReadExact will accept.
	// Zero means unlimited.
	ReadLimit int64

	// CopyBufSize overrides BufSize for the scratch buffer WriteFrame uses
	// when streaming content from an io.Reader source. Zero means BufSize.
	CopyBufSize int
}

type Option func(*Options)

// WithReadLimit caps accepted content length; exceeding it yields ErrTooLong.
func WithReadLimit(limit int64) Option {
	return func(o *Options) { o.ReadLimit = limit }
}

// WithCopyBufSize overrides the scratch buffer size used by WriteFrame's
// streaming path.
func WithCopyBufSize(n int) Option {
	return func(o *Options) { o.CopyBufSize = n }
}

func resolve(opts []Option) Options {
	var o Options
	for _, fn := range opts {
		fn(&o)
	}
	if o.CopyBufSize <= 0 {
		o.CopyBufSize = BufSize
	}
	return o
}
