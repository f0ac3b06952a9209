// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package header encodes and decodes the chat protocol's per-message header
// object: timestamp, sender, and an optional filename.
package header

import (
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/pkg/errors"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Header is the broker-emitted metadata object carried after the descriptor
// for every Login/Logout/Utf8/File/Voice/Image message. Clients never
// originate a Header; the broker synthesizes it from the session's confirmed
// username and the current time.
type Header struct {
	Timestamp time.Time `json:"timestamp"`
	From      string    `json:"from"`
	// Filename is present on the wire only for Kind == wire.File; the zero
	// value (empty string) means "absent" both in memory and on encode.
	Filename string `json:"filename,omitempty"`
}

// Encode serializes h to its self-describing wire form.
func Encode(h Header) ([]byte, error) {
	b, err := json.Marshal(h)
	if err != nil {
		return nil, errors.Wrap(err, "header: encode")
	}
	return b, nil
}

// Decode parses a wire-form header. Absent filename decodes to the zero
// value.
func Decode(b []byte) (Header, error) {
	var h Header
	if len(b) == 0 {
		return h, nil
	}
	if err := json.Unmarshal(b, &h); err != nil {
		return Header{}, errors.Wrap(err, "header: decode")
	}
	return h, nil
}
