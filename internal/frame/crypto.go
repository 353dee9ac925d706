package frame

import (
	"crypto/rand"
	"crypto/sha256"
	"fmt"
	"io"

	"golang.org/x/crypto/chacha20poly1305"
)

// AEAD is the out-of-scope symmetric-cipher primitive collaborator
// named in spec §1/§4.1. The connection key is assumed pre-shared (no
// key negotiation, per spec §1 Non-goals); Seal/Open derive their key
// material from it once, at session start.
type AEAD interface {
	Seal(plain []byte) ([]byte, error)
	Open(sealed []byte) ([]byte, error)
}

// ChaCha20Poly1305Cipher is the corpus-grounded default AEAD,
// mirroring the seal/open-with-random-nonce-prefix shape of
// bjarneo-hemmelig/internal/crypto/crypto.go's AES-GCM helpers, but
// built on the AEAD already present (indirectly) in the teacher's own
// go.mod dependency graph.
type ChaCha20Poly1305Cipher struct {
	aead interface {
		Seal(dst, nonce, plaintext, additionalData []byte) []byte
		Open(dst, nonce, ciphertext, additionalData []byte) ([]byte, error)
		NonceSize() int
	}
}

// NewChaCha20Poly1305Cipher derives a 32-byte key from the shared
// connection key via SHA-256 and constructs the AEAD.
func NewChaCha20Poly1305Cipher(connectionKey string) (*ChaCha20Poly1305Cipher, error) {
	digest := sha256.Sum256([]byte(connectionKey))
	aead, err := chacha20poly1305.New(digest[:])
	if err != nil {
		return nil, fmt.Errorf("frame: constructing cipher: %w", err)
	}
	return &ChaCha20Poly1305Cipher{aead: aead}, nil
}

func (c *ChaCha20Poly1305Cipher) Seal(plain []byte) ([]byte, error) {
	nonce := make([]byte, c.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("frame: generating nonce: %w", err)
	}
	return c.aead.Seal(nonce, nonce, plain, nil), nil
}

func (c *ChaCha20Poly1305Cipher) Open(sealed []byte) ([]byte, error) {
	nonceSize := c.aead.NonceSize()
	if len(sealed) < nonceSize {
		return nil, fmt.Errorf("%w: ciphertext shorter than nonce", ErrDecryptFailed)
	}
	nonce, body := sealed[:nonceSize], sealed[nonceSize:]
	plain, err := c.aead.Open(nil, nonce, body, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecryptFailed, err)
	}
	return plain, nil
}

// KeyDigest returns the hex-independent raw SHA-256 digest of the
// connection key, used by the handshake to advertise
// connection_key_digest without exposing the key itself.
func KeyDigest(connectionKey string) [32]byte {
	return sha256.Sum256([]byte(connectionKey))
}
