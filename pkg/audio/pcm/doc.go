// Package pcm provides types and utilities for 16-bit little-endian PCM audio,
// the only sample encoding that travels through the speech pipeline.
//
// Key types and functions:
//   - Format: sample rate, channel count and bit depth of a stream
//   - Framer: cuts arbitrarily sized chunks into fixed-length frames,
//     carrying the remainder forward
//   - Normalize: peak-based gain normalization of one frame
//   - EncodeWAV / DecodeWAV: RIFF container for archived and uploaded audio
//
// Example usage:
//
//	// 512-sample frames at 16kHz mono
//	f := pcm.NewFramer(512)
//	for _, frame := range f.Feed(chunk) {
//		process(frame)
//	}
//
//	// Raise quiet audio towards full scale before recognition
//	data = pcm.Normalize(data)
package pcm
