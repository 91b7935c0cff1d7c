package hxclient

import "github.com/pthm/hxclient/lib/encoding"

// Codec is an alias for encoding.Codec for convenience. Servers seal binding
// attributes with it (see BindAttrs); clients open them (see WithCodec).
type Codec = encoding.Codec

// NewCodec creates a codec with the given key. Server and client must share
// the key.
func NewCodec(key []byte) (*Codec, error) {
	return encoding.NewCodec(key)
}
