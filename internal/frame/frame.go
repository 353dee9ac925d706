// Package frame implements the length-prefixed wire frame described in
// spec §4.1/§6: a fixed header (magic, version, flags, payload length)
// followed by the payload, with optional block compression and AEAD
// encryption layered underneath.
package frame

import (
	"encoding/binary"
	"fmt"
)

// Magic identifies the protocol on the wire. Chosen arbitrarily per
// spec §6 ("big-endian u32 magic, chosen constant").
const Magic uint32 = 0x4E4C4B31 // "NLK1"

// Version is the current wire protocol version.
const Version uint16 = 1

const (
	FlagCompressed uint16 = 1 << 0
	FlagEncrypted  uint16 = 1 << 1
)

// HeaderSize is the fixed on-wire size of a frame header in bytes:
// magic(4) + version(2) + flags(2) + length(4).
const HeaderSize = 4 + 2 + 2 + 4

// Frame is a single decoded wire frame.
type Frame struct {
	Version uint16
	Flags   uint16
	Payload []byte
}

func (f Frame) Compressed() bool { return f.Flags&FlagCompressed != 0 }
func (f Frame) Encrypted() bool  { return f.Flags&FlagEncrypted != 0 }

// Options controls how Encode prepares a payload.
type Options struct {
	Compress         bool
	Encrypt          bool
	CompressBlockSize int
}

// Codec encodes and decodes frames, applying the configured compressor
// and AEAD in the order spec §4.1 requires: encode compresses then
// encrypts; decode decrypts then decompresses.
type Codec struct {
	Compressor  Compressor
	Cipher      AEAD
	MaxFrameLen uint32
}

// NewCodec constructs a Codec with the package defaults (zlib block
// compression, ChaCha20-Poly1305 encryption) and the given max frame
// length (0 means no limit beyond the protocol's u32 field width).
func NewCodec(cipher AEAD, maxFrameLen uint32) *Codec {
	return &Codec{
		Compressor:  ZlibBlockCompressor{},
		Cipher:      cipher,
		MaxFrameLen: maxFrameLen,
	}
}

// Encode produces the wire bytes (header + payload) for plain, applying
// compression and/or encryption per opts.
func (c *Codec) Encode(plain []byte, opts Options) ([]byte, error) {
	payload := plain
	var flags uint16

	if opts.Compress {
		if c.Compressor == nil {
			return nil, fmt.Errorf("frame: compress requested but no Compressor configured")
		}
		compressed, err := c.Compressor.Compress(payload, opts.CompressBlockSize)
		if err != nil {
			return nil, err
		}
		payload = compressed
		flags |= FlagCompressed
	}

	if opts.Encrypt {
		if c.Cipher == nil {
			return nil, fmt.Errorf("frame: encrypt requested but no Cipher configured")
		}
		sealed, err := c.Cipher.Seal(payload)
		if err != nil {
			return nil, err
		}
		payload = sealed
		flags |= FlagEncrypted
	}

	if c.MaxFrameLen != 0 && uint32(len(payload)) > c.MaxFrameLen {
		return nil, ErrLengthExceedsLimit
	}

	header := make([]byte, HeaderSize)
	binary.BigEndian.PutUint32(header[0:4], Magic)
	binary.BigEndian.PutUint16(header[4:6], Version)
	binary.BigEndian.PutUint16(header[6:8], flags)
	binary.BigEndian.PutUint32(header[8:12], uint32(len(payload)))

	return append(header, payload...), nil
}

// DecodeHeader parses the fixed header from the front of data and
// returns the flags, declared payload length, and whether the header is
// well-formed. Callers use this to know how many more bytes to read
// from the transport before calling Decode.
func DecodeHeader(data []byte) (flags uint16, payloadLen uint32, err error) {
	if len(data) < HeaderSize {
		return 0, 0, protocolError(fmt.Errorf("%w: need %d bytes, got %d", ErrMalformedHeader, HeaderSize, len(data)))
	}
	magic := binary.BigEndian.Uint32(data[0:4])
	if magic != Magic {
		return 0, 0, protocolError(fmt.Errorf("%w: bad magic %x", ErrMalformedHeader, magic))
	}
	version := binary.BigEndian.Uint16(data[4:6])
	if version != Version {
		return 0, 0, protocolError(fmt.Errorf("%w: unsupported version %d", ErrMalformedHeader, version))
	}
	flags = binary.BigEndian.Uint16(data[6:8])
	payloadLen = binary.BigEndian.Uint32(data[8:12])
	return flags, payloadLen, nil
}

// Decode reverses Encode: given the flags from the header and the raw
// payload bytes that followed it, it decrypts (if FlagEncrypted) then
// decompresses (if FlagCompressed), per spec §4.1's fixed ordering.
func (c *Codec) Decode(flags uint16, payload []byte) ([]byte, error) {
	out := payload

	if flags&FlagEncrypted != 0 {
		if c.Cipher == nil {
			return nil, protocolError(fmt.Errorf("frame: encrypted frame but no Cipher configured"))
		}
		plain, err := c.Cipher.Open(out)
		if err != nil {
			return nil, protocolError(err)
		}
		out = plain
	}

	if flags&FlagCompressed != 0 {
		if c.Compressor == nil {
			return nil, protocolError(fmt.Errorf("frame: compressed frame but no Compressor configured"))
		}
		plain, err := c.Compressor.Decompress(out)
		if err != nil {
			return nil, protocolError(err)
		}
		out = plain
	}

	return out, nil
}

// MaxHeaderLimit enforces spec's LengthExceedsLimit check against a
// declared header length before any I/O reads the payload, so a
// malicious/corrupt peer cannot force an unbounded allocation.
func MaxHeaderLimit(payloadLen, maxFrameLen uint32) error {
	if maxFrameLen != 0 && payloadLen > maxFrameLen {
		return protocolError(ErrLengthExceedsLimit)
	}
	return nil
}
