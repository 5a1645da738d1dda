package doubaospeech

import (
	"bytes"
	"compress/gzip"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// SAUC frame layout:
//
//	byte 0: version (4 bits) | header size in 4-byte words (4 bits)
//	byte 1: message type (4 bits) | flags (4 bits)
//	byte 2: serialization (4 bits) | compression (4 bits)
//	byte 3: reserved
//	[sequence int32]  when flags has bit 0 set
//	[error code uint32] for error frames
//	payload size uint32, payload
const (
	frameVersion = 0x1

	msgFullClient  = 0x1
	msgAudioClient = 0x2
	msgFullServer  = 0x9
	msgError       = 0xF

	flagNoSeq     = 0x0
	flagPosSeq    = 0x1
	flagLast      = 0x2
	flagLastSeq   = 0x3
	serialNone    = 0x0
	serialJSON    = 0x1
	compressNone  = 0x0
	compressGzip  = 0x1
	headerWords   = 1
	headerByteLen = 4 * headerWords
)

type frame struct {
	msgType   byte
	flags     byte
	serial    byte
	compress  byte
	sequence  int32
	errorCode uint32
	payload   []byte
}

func (f *frame) hasSequence() bool {
	return f.flags&flagPosSeq != 0
}

// last reports whether the server marked this as the final frame of the
// stream.
func (f *frame) last() bool {
	return f.flags&flagLast != 0
}

func (f *frame) marshal() []byte {
	var buf bytes.Buffer
	buf.Grow(headerByteLen + 12 + len(f.payload))
	buf.WriteByte(frameVersion<<4 | headerWords)
	buf.WriteByte(f.msgType<<4 | f.flags)
	buf.WriteByte(f.serial<<4 | f.compress)
	buf.WriteByte(0)
	if f.hasSequence() {
		binary.Write(&buf, binary.BigEndian, f.sequence)
	}
	if f.msgType == msgError {
		binary.Write(&buf, binary.BigEndian, f.errorCode)
	}
	binary.Write(&buf, binary.BigEndian, uint32(len(f.payload)))
	buf.Write(f.payload)
	return buf.Bytes()
}

var errShortFrame = errors.New("doubaospeech: short frame")

func unmarshalFrame(data []byte) (*frame, error) {
	if len(data) < headerByteLen {
		return nil, errShortFrame
	}
	hdr := int(data[0]&0x0F) * 4
	if hdr < headerByteLen || len(data) < hdr {
		return nil, errShortFrame
	}
	f := &frame{
		msgType:  data[1] >> 4,
		flags:    data[1] & 0x0F,
		serial:   data[2] >> 4,
		compress: data[2] & 0x0F,
	}
	rest := data[hdr:]
	if f.hasSequence() {
		if len(rest) < 4 {
			return nil, errShortFrame
		}
		f.sequence = int32(binary.BigEndian.Uint32(rest))
		rest = rest[4:]
	}
	if f.msgType == msgError {
		if len(rest) < 4 {
			return nil, errShortFrame
		}
		f.errorCode = binary.BigEndian.Uint32(rest)
		rest = rest[4:]
	}
	if len(rest) < 4 {
		return nil, errShortFrame
	}
	size := binary.BigEndian.Uint32(rest)
	rest = rest[4:]
	if uint64(size) > uint64(len(rest)) {
		return nil, fmt.Errorf("doubaospeech: payload size %d exceeds frame (%d bytes)", size, len(rest))
	}
	f.payload = rest[:size]
	if f.compress == compressGzip && size > 0 {
		r, err := gzip.NewReader(bytes.NewReader(f.payload))
		if err != nil {
			return nil, fmt.Errorf("doubaospeech: gzip: %w", err)
		}
		defer r.Close()
		if f.payload, err = io.ReadAll(r); err != nil {
			return nil, fmt.Errorf("doubaospeech: gzip: %w", err)
		}
	}
	return f, nil
}
