package backlog

import (
	"encoding/binary"
	"fmt"
	"hash/crc32"
)

// Frame layout (big-endian):
//
//	magic(1) | version(1) | seq(8) | payloadLen(4) | crc32c(4) | payload
//
// The checksum covers the first 14 header bytes followed by the payload.

const (
	frameMagic   byte = 0xB7
	frameVersion byte = 1

	// FrameHeaderSize is the fixed size of a frame header in bytes.
	FrameHeaderSize = 18

	// DefaultMaxPayloadBytes bounds a single payload unless Options override it.
	DefaultMaxPayloadBytes = 64 << 20

	crcCoveredHeader = 14
)

var castagnoli = crc32.MakeTable(crc32.Castagnoli)

// Frame is one decoded record.
type Frame struct {
	Seq     uint64
	Payload []byte
}

// FrameSize returns the encoded size of a frame carrying n payload bytes.
func FrameSize(n int) int64 { return int64(FrameHeaderSize + n) }

// EncodeFrame returns the wire encoding of a frame.
func EncodeFrame(seq uint64, payload []byte) []byte {
	return AppendFrame(make([]byte, 0, FrameHeaderSize+len(payload)), seq, payload)
}

// AppendFrame appends the wire encoding of a frame to dst.
func AppendFrame(dst []byte, seq uint64, payload []byte) []byte {
	var h [FrameHeaderSize]byte
	h[0] = frameMagic
	h[1] = frameVersion
	binary.BigEndian.PutUint64(h[2:10], seq)
	binary.BigEndian.PutUint32(h[10:14], uint32(len(payload)))
	crc := crc32.Update(0, castagnoli, h[:crcCoveredHeader])
	crc = crc32.Update(crc, castagnoli, payload)
	binary.BigEndian.PutUint32(h[14:18], crc)
	dst = append(dst, h[:]...)
	return append(dst, payload...)
}

// frameHeader is the parsed fixed part of a frame.
type frameHeader struct {
	seq        uint64
	payloadLen uint32
	checksum   uint32
}

// parseFrameHeader validates the structural fields of a complete header.
// It does not verify the checksum, which needs the payload.
func parseFrameHeader(h []byte, maxPayload int) (frameHeader, error) {
	if h[0] != frameMagic {
		return frameHeader{}, fmt.Errorf("%w: bad magic 0x%02x", ErrCorruptFrame, h[0])
	}
	if h[1] != frameVersion {
		return frameHeader{}, fmt.Errorf("%w: unsupported version %d", ErrCorruptFrame, h[1])
	}
	fh := frameHeader{
		seq:        binary.BigEndian.Uint64(h[2:10]),
		payloadLen: binary.BigEndian.Uint32(h[10:14]),
		checksum:   binary.BigEndian.Uint32(h[14:18]),
	}
	if maxPayload > 0 && int64(fh.payloadLen) > int64(maxPayload) {
		return frameHeader{}, fmt.Errorf("%w: payload length %d exceeds limit %d", ErrCorruptFrame, fh.payloadLen, maxPayload)
	}
	return fh, nil
}

func (fh frameHeader) verify(h, payload []byte) error {
	crc := crc32.Update(0, castagnoli, h[:crcCoveredHeader])
	crc = crc32.Update(crc, castagnoli, payload)
	if crc != fh.checksum {
		return fmt.Errorf("%w: checksum mismatch for seq %d (stored %08x, computed %08x)", ErrCorruptFrame, fh.seq, fh.checksum, crc)
	}
	return nil
}

// DecodeFrame parses the frame at the start of b and returns it together with
// the number of bytes consumed. The error distinguishes the three outcomes a
// scan cares about:
//
//   - nil: a complete, checksum-valid frame
//   - ErrShortFrame: b ends before the header or the declared payload does
//   - ErrCorruptFrame (wrapped): the frame is structurally complete but invalid
//
// The returned payload aliases b.
func DecodeFrame(b []byte, maxPayload int) (Frame, int, error) {
	if len(b) < FrameHeaderSize {
		return Frame{}, 0, ErrShortFrame
	}
	fh, err := parseFrameHeader(b[:FrameHeaderSize], maxPayload)
	if err != nil {
		return Frame{}, 0, err
	}
	end := FrameHeaderSize + int(fh.payloadLen)
	if len(b) < end {
		return Frame{}, 0, ErrShortFrame
	}
	payload := b[FrameHeaderSize:end]
	if err := fh.verify(b[:FrameHeaderSize], payload); err != nil {
		return Frame{}, 0, err
	}
	return Frame{Seq: fh.seq, Payload: payload}, end, nil
}
