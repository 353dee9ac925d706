package frame

import "errors"

// ProtocolError marks an error as fatal to the owning session per spec
// §4.1/§7: any error satisfying this is unrecoverable for the current
// connection and the session transitions straight to draining.
type ProtocolError struct {
	err error
}

func (p *ProtocolError) Error() string { return p.err.Error() }
func (p *ProtocolError) Unwrap() error { return p.err }

func protocolError(err error) *ProtocolError { return &ProtocolError{err: err} }

var (
	// ErrMalformedHeader is returned when the fixed frame header fails
	// to parse (bad magic, unsupported version, truncated read).
	ErrMalformedHeader = errors.New("frame: malformed header")
	// ErrLengthExceedsLimit is returned when the header's payload
	// length exceeds the configured maximum frame size.
	ErrLengthExceedsLimit = errors.New("frame: payload length exceeds limit")
	// ErrDecompressFailed is returned when the decompression stage of
	// Decode fails.
	ErrDecompressFailed = errors.New("frame: decompress failed")
	// ErrDecryptFailed is returned when the decryption stage of Decode
	// fails (including authentication failure of the AEAD tag).
	ErrDecryptFailed = errors.New("frame: decrypt failed")
)

// IsFatal reports whether err is one of this package's protocol errors,
// all of which are fatal to the session that produced them.
func IsFatal(err error) bool {
	var pe *ProtocolError
	return errors.As(err, &pe)
}
