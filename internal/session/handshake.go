package session

import (
	"fmt"

	"github.com/kcenon/file-manager/internal/container"
)

const handshakeMessageType = "session_handshake"
const handshakeRejectMessageType = "session_handshake_reject"

// buildHandshake constructs the handshake container advertised by a
// client per spec §4.2/§6: {source_id, source_sub_id, session_type,
// requested_flags, connection_key_digest}.
func buildHandshake(self Identity, sessionType Type, compress, encrypt bool, keyDigest [32]byte) *container.Container {
	c := container.New(self.ID, self.SubID, "", "", handshakeMessageType)
	c.Add(container.NewString("session_type", string(sessionType)))
	c.Add(container.NewBool("requested_compress", compress))
	c.Add(container.NewBool("requested_encrypt", encrypt))
	c.Add(container.NewBytes("connection_key_digest", keyDigest[:]))
	return c
}

type handshakeAdvert struct {
	self        Identity
	sessionType Type
	compress    bool
	encrypt     bool
	keyDigest   []byte
}

func parseHandshake(c *container.Container) (handshakeAdvert, error) {
	if c.Header.MessageType != handshakeMessageType {
		return handshakeAdvert{}, fmt.Errorf("session: expected handshake message, got %q", c.Header.MessageType)
	}
	sessionTypeVal, ok := c.Lookup("session_type")
	if !ok {
		return handshakeAdvert{}, fmt.Errorf("session: handshake missing session_type")
	}
	sessionTypeStr, _ := sessionTypeVal.String()
	sessionType := Type(sessionTypeStr)
	if !sessionType.Valid() {
		return handshakeAdvert{}, fmt.Errorf("session: handshake has invalid session_type %q", sessionTypeStr)
	}
	compressVal, _ := c.Lookup("requested_compress")
	compress, _ := compressVal.Bool()
	encryptVal, _ := c.Lookup("requested_encrypt")
	encrypt, _ := encryptVal.Bool()
	digestVal, ok := c.Lookup("connection_key_digest")
	if !ok {
		return handshakeAdvert{}, fmt.Errorf("session: handshake missing connection_key_digest")
	}
	digest, _ := digestVal.Bytes()

	return handshakeAdvert{
		self:        Identity{ID: c.Header.SourceID, SubID: c.Header.SourceSubID},
		sessionType: sessionType,
		compress:    compress,
		encrypt:     encrypt,
		keyDigest:   digest,
	}, nil
}

// buildHandshakeAck is sent by the server back to the client once the
// digest and session type are accepted, advertising the server's own
// identity so the client can record (target_id, target_sub_id).
func buildHandshakeAck(self Identity) *container.Container {
	return container.New(self.ID, self.SubID, "", "", handshakeMessageType)
}

func buildHandshakeReject(reason string) *container.Container {
	c := container.New("", "", "", "", handshakeRejectMessageType)
	c.Add(container.NewString("reason", reason))
	return c
}
