// Package resampler converts 16-bit PCM between sample rates and channel
// layouts. Uploaded recordings are brought to the 16kHz mono format the
// recognizers expect before they are streamed.
//
//	src := resampler.Format{SampleRate: 44100, Stereo: true}
//	out, err := resampler.Resample(data, src, resampler.Mono16K)
package resampler
