package frame

import (
	"bytes"
	"testing"
)

func roundTrip(t *testing.T, codec *Codec, plain []byte, opts Options) {
	t.Helper()
	encoded, err := codec.Encode(plain, opts)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	flags, payloadLen, err := DecodeHeader(encoded[:HeaderSize])
	if err != nil {
		t.Fatalf("DecodeHeader: %v", err)
	}
	payload := encoded[HeaderSize:]
	if uint32(len(payload)) != payloadLen {
		t.Fatalf("payload length mismatch: header says %d, got %d", payloadLen, len(payload))
	}
	decoded, err := codec.Decode(flags, payload)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if !bytes.Equal(decoded, plain) {
		t.Fatalf("round trip mismatch: got %q want %q", decoded, plain)
	}
}

func TestEncodeDecodeRoundTripPlain(t *testing.T) {
	codec := NewCodec(nil, 0)
	roundTrip(t, codec, []byte("hello, file manager"), Options{})
}

func TestEncodeDecodeRoundTripCompressedOnly(t *testing.T) {
	codec := NewCodec(nil, 0)
	payload := bytes.Repeat([]byte("abcdefgh"), 500)
	roundTrip(t, codec, payload, Options{Compress: true, CompressBlockSize: 64})
}

func TestEncodeDecodeRoundTripEncryptedOnly(t *testing.T) {
	cipher, err := NewChaCha20Poly1305Cipher("shared-secret")
	if err != nil {
		t.Fatalf("NewChaCha20Poly1305Cipher: %v", err)
	}
	codec := NewCodec(cipher, 0)
	roundTrip(t, codec, []byte("secret payload"), Options{Encrypt: true})
}

func TestEncodeDecodeRoundTripCompressedAndEncrypted(t *testing.T) {
	cipher, err := NewChaCha20Poly1305Cipher("shared-secret")
	if err != nil {
		t.Fatalf("NewChaCha20Poly1305Cipher: %v", err)
	}
	codec := NewCodec(cipher, 0)
	payload := bytes.Repeat([]byte("the quick brown fox "), 200)
	roundTrip(t, codec, payload, Options{Compress: true, CompressBlockSize: 128, Encrypt: true})
}

func TestDecodeHeaderRejectsBadMagic(t *testing.T) {
	data := make([]byte, HeaderSize)
	_, _, err := DecodeHeader(data)
	if !IsFatal(err) {
		t.Fatalf("DecodeHeader with bad magic should be a fatal ProtocolError, got %v", err)
	}
}

func TestDecodeHeaderRejectsTruncated(t *testing.T) {
	_, _, err := DecodeHeader([]byte{1, 2, 3})
	if !IsFatal(err) {
		t.Fatalf("DecodeHeader with truncated data should be fatal, got %v", err)
	}
}

func TestEncodeRejectsOversizedFrame(t *testing.T) {
	codec := NewCodec(nil, 4)
	_, err := codec.Encode([]byte("too long for the limit"), Options{})
	if err != ErrLengthExceedsLimit {
		t.Fatalf("Encode over MaxFrameLen = %v, want ErrLengthExceedsLimit", err)
	}
}

func TestDecodeWrongKeyFailsAuthentication(t *testing.T) {
	cipherA, _ := NewChaCha20Poly1305Cipher("key-a")
	cipherB, _ := NewChaCha20Poly1305Cipher("key-b")
	codecA := NewCodec(cipherA, 0)
	codecB := NewCodec(cipherB, 0)

	encoded, err := codecA.Encode([]byte("payload"), Options{Encrypt: true})
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	flags, _, err := DecodeHeader(encoded[:HeaderSize])
	if err != nil {
		t.Fatalf("DecodeHeader: %v", err)
	}
	_, err = codecB.Decode(flags, encoded[HeaderSize:])
	if !IsFatal(err) {
		t.Fatalf("Decode with wrong key should be a fatal ProtocolError, got %v", err)
	}
}
