package session

import (
	"fmt"
	"io"
	"net"

	"github.com/kcenon/file-manager/internal/container"
	"github.com/kcenon/file-manager/internal/frame"
)

// Handshake frames are always sent unencrypted/uncompressed: the
// connection key is verified by digest comparison before either side
// trusts the other, and no key exchange material needs protecting since
// the key itself is pre-shared (spec §1 Non-goals).

func writeHandshakeFrame(conn net.Conn, codec *frame.Codec, body []byte) error {
	encoded, err := codec.Encode(body, frame.Options{})
	if err != nil {
		return err
	}
	_, err = conn.Write(encoded)
	return err
}

func readHandshakeFrame(conn net.Conn, codec *frame.Codec) ([]byte, error) {
	header := make([]byte, frame.HeaderSize)
	if _, err := io.ReadFull(conn, header); err != nil {
		return nil, fmt.Errorf("session: reading handshake header: %w", err)
	}
	flags, payloadLen, err := frame.DecodeHeader(header)
	if err != nil {
		return nil, err
	}
	if err := frame.MaxHeaderLimit(payloadLen, codec.MaxFrameLen); err != nil {
		return nil, err
	}
	raw := make([]byte, payloadLen)
	if _, err := io.ReadFull(conn, raw); err != nil {
		return nil, fmt.Errorf("session: reading handshake body: %w", err)
	}
	return codec.Decode(flags, raw)
}

func parseHandshakeAckOrReject(body []byte) (Identity, error) {
	c, err := container.Parse(body)
	if err != nil {
		return Identity{}, err
	}
	if c.Header.MessageType == handshakeRejectMessageType {
		reasonVal, _ := c.Lookup("reason")
		reason, _ := reasonVal.String()
		return Identity{}, fmt.Errorf("session: handshake rejected: %s", reason)
	}
	return Identity{ID: c.Header.SourceID, SubID: c.Header.SourceSubID}, nil
}
