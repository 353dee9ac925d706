package session

import (
	"net"

	"github.com/kcenon/file-manager/internal/frame"
)

func netPipeConn() (net.Conn, net.Conn) {
	return net.Pipe()
}

func testCodec() *frame.Codec {
	return frame.NewCodec(nil, 0)
}
