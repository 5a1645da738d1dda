package pcm

// Framer cuts a byte stream of 16-bit mono samples into frames of a fixed
// number of samples. Bytes that do not complete a frame are kept and prefixed
// to the next chunk.
//
// A Framer is not safe for concurrent use; it belongs to the single stage
// that consumes the stream.
type Framer struct {
	frameBytes int
	leftover   []byte
}

// NewFramer returns a Framer producing frames of frameLen samples.
func NewFramer(frameLen int) *Framer {
	if frameLen <= 0 {
		panic("pcm: frame length must be positive")
	}
	return &Framer{frameBytes: frameLen * 2}
}

// FrameBytes returns the size of one frame in bytes.
func (f *Framer) FrameBytes() int {
	return f.frameBytes
}

// Feed appends chunk to the pending bytes and returns every whole frame now
// available, in order. Returned frames do not alias chunk or each other.
func (f *Framer) Feed(chunk []byte) [][]byte {
	buf := append(f.leftover, chunk...)
	var frames [][]byte
	off := 0
	for off+f.frameBytes <= len(buf) {
		frame := make([]byte, f.frameBytes)
		copy(frame, buf[off:off+f.frameBytes])
		frames = append(frames, frame)
		off += f.frameBytes
	}
	// Slide the remainder to the front so the backing array is reused.
	n := copy(buf, buf[off:])
	f.leftover = buf[:n]
	return frames
}

// Pending returns the number of buffered bytes that do not yet form a frame.
func (f *Framer) Pending() int {
	return len(f.leftover)
}

// Reset discards pending bytes.
func (f *Framer) Reset() {
	f.leftover = f.leftover[:0]
}
