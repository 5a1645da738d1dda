package pcm

import "encoding/binary"

const (
	// NormalizeTarget is the peak magnitude Normalize raises audio towards.
	NormalizeTarget = 30000
	// NormalizeMaxGain caps the gain Normalize applies.
	NormalizeMaxGain = 3.0
)

// Peak returns the largest absolute sample value of little-endian 16-bit PCM.
func Peak(b []byte) int {
	peak := 0
	for i := 0; i+1 < len(b); i += 2 {
		v := int(int16(binary.LittleEndian.Uint16(b[i:])))
		if v < 0 {
			v = -v
		}
		if v > peak {
			peak = v
		}
	}
	return peak
}

// Gain returns the factor Normalize would apply to audio with the given peak:
// min(NormalizeMaxGain, NormalizeTarget/peak). It returns 1 for silence.
func Gain(peak int) float64 {
	if peak <= 0 {
		return 1
	}
	return min(NormalizeMaxGain, float64(NormalizeTarget)/float64(peak))
}

// Normalize scales little-endian 16-bit PCM so that its peak approaches
// NormalizeTarget. Audio is never attenuated: when the gain is not above 1 the
// input slice is returned as is. Otherwise a new slice is returned with every
// sample scaled and clipped to the int16 range. A trailing odd byte is copied
// unchanged.
func Normalize(b []byte) []byte {
	g := Gain(Peak(b))
	if g <= 1 {
		return b
	}
	out := make([]byte, len(b))
	copy(out, b)
	for i := 0; i+1 < len(out); i += 2 {
		v := float64(int16(binary.LittleEndian.Uint16(out[i:]))) * g
		binary.LittleEndian.PutUint16(out[i:], uint16(clip16(v)))
	}
	return out
}

func clip16(v float64) int16 {
	switch {
	case v > 32767:
		return 32767
	case v < -32768:
		return -32768
	}
	return int16(v)
}
