// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package wire implements the chat protocol's framed binary wire format: a
// fixed 16-byte descriptor followed by a variable-length header and content
// section. See Descriptor for the on-wire layout.
package wire

// MessageKind identifies the purpose of one framed message. It is encoded as
// a little-endian uint16 on the wire (Descriptor.Kind).
type MessageKind uint16

const (
	Unknown        MessageKind = 0
	Login          MessageKind = 1
	Logout         MessageKind = 2
	UsernameExists MessageKind = 3
	BadUsername    MessageKind = 4
	BadLogin       MessageKind = 5
	Image          MessageKind = 6
	Utf8           MessageKind = 7
	File           MessageKind = 8
	Voice          MessageKind = 9
)

// kindFromUint16 maps a wire value to a MessageKind, defaulting to Unknown
// for any value outside the known range. It never errors: an unrecognized
// kind is a valid (if useless) descriptor value.
func kindFromUint16(v uint16) MessageKind {
	switch MessageKind(v) {
	case Login, Logout, UsernameExists, BadUsername, BadLogin, Image, Utf8, File, Voice:
		return MessageKind(v)
	default:
		return Unknown
	}
}

// HasPayload reports whether messages of this kind carry user payload
// content. Login/Logout carry a header but no content;
// UsernameExists/BadUsername/BadLogin carry neither.
func (k MessageKind) HasPayload() bool {
	switch k {
	case Utf8, File, Voice, Image:
		return true
	default:
		return false
	}
}

func (k MessageKind) String() string {
	switch k {
	case Login:
		return "Login"
	case Logout:
		return "Logout"
	case UsernameExists:
		return "UsernameExists"
	case BadUsername:
		return "BadUsername"
	case BadLogin:
		return "BadLogin"
	case Image:
		return "Image"
	case Utf8:
		return "Utf8"
	case File:
		return "File"
	case Voice:
		return "Voice"
	default:
		return "Unknown"
	}
}
