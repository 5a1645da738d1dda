package pcm

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
)

// ErrNotWAV is returned by DecodeWAV when data is not a RIFF/WAVE file.
var ErrNotWAV = errors.New("pcm: not a RIFF/WAVE file")

const wavHeaderSize = 44

// WAV is a decoded WAV file holding 16-bit PCM samples.
type WAV struct {
	SampleRate    int
	Channels      int
	BitsPerSample int
	Data          []byte
}

// EncodeWAV wraps 16-bit little-endian PCM in a canonical 44-byte RIFF header.
func EncodeWAV(data []byte, sampleRate, channels int) []byte {
	const bitsPerSample = 16
	blockAlign := channels * bitsPerSample / 8
	byteRate := sampleRate * blockAlign

	buf := bytes.NewBuffer(make([]byte, 0, wavHeaderSize+len(data)))
	buf.WriteString("RIFF")
	binary.Write(buf, binary.LittleEndian, uint32(36+len(data)))
	buf.WriteString("WAVE")

	buf.WriteString("fmt ")
	binary.Write(buf, binary.LittleEndian, uint32(16))
	binary.Write(buf, binary.LittleEndian, uint16(1)) // PCM
	binary.Write(buf, binary.LittleEndian, uint16(channels))
	binary.Write(buf, binary.LittleEndian, uint32(sampleRate))
	binary.Write(buf, binary.LittleEndian, uint32(byteRate))
	binary.Write(buf, binary.LittleEndian, uint16(blockAlign))
	binary.Write(buf, binary.LittleEndian, uint16(bitsPerSample))

	buf.WriteString("data")
	binary.Write(buf, binary.LittleEndian, uint32(len(data)))
	buf.Write(data)
	return buf.Bytes()
}

// EncodeWAV wraps data recorded in format f in a RIFF header.
func (f Format) EncodeWAV(data []byte) []byte {
	return EncodeWAV(data, f.SampleRate(), f.Channels())
}

// DecodeWAV parses a RIFF/WAVE file containing uncompressed 16-bit PCM.
// Chunks other than "fmt " and "data" are skipped.
func DecodeWAV(data []byte) (*WAV, error) {
	if len(data) < 12 || string(data[0:4]) != "RIFF" || string(data[8:12]) != "WAVE" {
		return nil, ErrNotWAV
	}
	var (
		w      WAV
		hasFmt bool
	)
	off := 12
	for off+8 <= len(data) {
		id := string(data[off : off+4])
		size := int(binary.LittleEndian.Uint32(data[off+4 : off+8]))
		body := off + 8
		end := body + size
		if end > len(data) {
			// Some writers leave the data size unset while streaming.
			if id != "data" {
				return nil, fmt.Errorf("pcm: truncated %q chunk", id)
			}
			end = len(data)
		}

		switch id {
		case "fmt ":
			if size < 16 {
				return nil, fmt.Errorf("pcm: short fmt chunk (%d bytes)", size)
			}
			audioFormat := binary.LittleEndian.Uint16(data[body:])
			w.Channels = int(binary.LittleEndian.Uint16(data[body+2:]))
			w.SampleRate = int(binary.LittleEndian.Uint32(data[body+4:]))
			w.BitsPerSample = int(binary.LittleEndian.Uint16(data[body+14:]))
			if audioFormat != 1 && audioFormat != 0xFFFE {
				return nil, fmt.Errorf("pcm: unsupported wav encoding %d", audioFormat)
			}
			if w.BitsPerSample != 16 {
				return nil, fmt.Errorf("pcm: unsupported bit depth %d", w.BitsPerSample)
			}
			hasFmt = true
		case "data":
			if !hasFmt {
				return nil, errors.New("pcm: data chunk before fmt chunk")
			}
			w.Data = data[body:end]
			return &w, nil
		}

		off = end
		if size%2 == 1 {
			off++ // chunks are word aligned
		}
	}
	return nil, errors.New("pcm: wav has no data chunk")
}
