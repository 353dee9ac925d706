package frame

import (
	"bytes"
	"compress/zlib"
	"encoding/binary"
	"fmt"
	"io"
)

// DefaultCompressBlockSize matches spec §4.1's default compress_block_size.
const DefaultCompressBlockSize = 1024

// Compressor is the out-of-scope compression primitive collaborator
// named in spec §1. The default implementation applies compress/zlib in
// fixed-size blocks, each prefixed with its decompressed length, per
// spec §4.1 ("compress in blocks of a configured compress_block_size,
// prefix the decompressed length").
type Compressor interface {
	Compress(plain []byte, blockSize int) ([]byte, error)
	Decompress(compressed []byte) ([]byte, error)
}

// ZlibBlockCompressor is the corpus-grounded default Compressor,
// adapted from temaune502-LTD2's compressBytes/decompressBytes helpers
// (single-shot compress/zlib calls) into a block-prefixed stream.
type ZlibBlockCompressor struct{}

func (ZlibBlockCompressor) Compress(plain []byte, blockSize int) ([]byte, error) {
	if blockSize <= 0 {
		blockSize = DefaultCompressBlockSize
	}
	var out bytes.Buffer
	for offset := 0; offset < len(plain); offset += blockSize {
		end := offset + blockSize
		if end > len(plain) {
			end = len(plain)
		}
		block := plain[offset:end]

		var compBuf bytes.Buffer
		zw := zlib.NewWriter(&compBuf)
		if _, err := zw.Write(block); err != nil {
			return nil, fmt.Errorf("frame: compressing block: %w", err)
		}
		if err := zw.Close(); err != nil {
			return nil, fmt.Errorf("frame: closing compressor: %w", err)
		}

		var lenPrefix [8]byte
		binary.BigEndian.PutUint32(lenPrefix[0:4], uint32(len(block)))
		binary.BigEndian.PutUint32(lenPrefix[4:8], uint32(compBuf.Len()))
		out.Write(lenPrefix[:])
		out.Write(compBuf.Bytes())
	}
	return out.Bytes(), nil
}

func (ZlibBlockCompressor) Decompress(compressed []byte) ([]byte, error) {
	r := bytes.NewReader(compressed)
	var out bytes.Buffer
	for r.Len() > 0 {
		var lenPrefix [8]byte
		if _, err := io.ReadFull(r, lenPrefix[:]); err != nil {
			return nil, fmt.Errorf("%w: reading block header: %v", ErrDecompressFailed, err)
		}
		decompLen := binary.BigEndian.Uint32(lenPrefix[0:4])
		compLen := binary.BigEndian.Uint32(lenPrefix[4:8])

		compBlock := make([]byte, compLen)
		if _, err := io.ReadFull(r, compBlock); err != nil {
			return nil, fmt.Errorf("%w: reading block body: %v", ErrDecompressFailed, err)
		}

		zr, err := zlib.NewReader(bytes.NewReader(compBlock))
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrDecompressFailed, err)
		}
		block := make([]byte, decompLen)
		if _, err := io.ReadFull(zr, block); err != nil {
			zr.Close()
			return nil, fmt.Errorf("%w: %v", ErrDecompressFailed, err)
		}
		zr.Close()
		out.Write(block)
	}
	return out.Bytes(), nil
}
