// Package crypt implements the stream cipher applied to download quest
// payloads. Even though the quest is delivered to a Gamecube client,
// the download wrapper uses the "PC" variant of the game's network
// cipher; that is a property of the file format and is preserved here.
//
// The cipher is symmetric: crypting a buffer twice with two states
// created from the same seed yields the original buffer.
package crypt

import "errors"

// ErrInvalidParams is returned when a buffer's length is zero or not a
// multiple of 4. The keystream is consumed in 32-bit words, so buffers
// must be padded to dword alignment by the caller.
var ErrInvalidParams = errors.New("crypt: buffer length must be a positive multiple of 4")

// Crypter XORs a deterministic keystream against buffers in place,
// advancing its internal state by one word per 4 bytes.
type Crypter interface {
	Crypt(data []byte) error
}
