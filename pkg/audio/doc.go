// Package audio groups the audio sub-packages used by the speech pipeline:
//
//   - pcm: formats, framing, gain normalization and WAV containers
//   - portaudio: microphone capture and speaker playback
//   - resampler: sample rate and channel conversion
//
// For the bounded queues that carry frames between stages, see
// github.com/haivivi/voicegate/pkg/buffer.
package audio
