package speech

import (
	"fmt"
	"maps"
	"slices"
	"strings"
)

// Container is how synthesized samples are packaged.
type Container string

const (
	ContainerRIFF Container = "riff"
	ContainerRaw  Container = "raw"
	ContainerMP3  Container = "mp3"
	ContainerOgg  Container = "ogg"
)

// Format describes one named output format.
type Format struct {
	Name       string
	Container  Container
	SampleRate int
	// Codec is the engine-side encoding: pcm, mp3 or ogg_opus.
	Codec string
}

var formats = map[string]Format{
	"riff-16khz-16bit-mono-pcm":       {Container: ContainerRIFF, SampleRate: 16000, Codec: "pcm"},
	"riff-24khz-16bit-mono-pcm":       {Container: ContainerRIFF, SampleRate: 24000, Codec: "pcm"},
	"raw-16khz-16bit-mono-pcm":        {Container: ContainerRaw, SampleRate: 16000, Codec: "pcm"},
	"raw-24khz-16bit-mono-pcm":        {Container: ContainerRaw, SampleRate: 24000, Codec: "pcm"},
	"audio-16khz-32kbitrate-mono-mp3": {Container: ContainerMP3, SampleRate: 16000, Codec: "mp3"},
	"audio-24khz-48kbitrate-mono-mp3": {Container: ContainerMP3, SampleRate: 24000, Codec: "mp3"},
	"ogg-16khz-16bit-mono-opus":       {Container: ContainerOgg, SampleRate: 16000, Codec: "ogg_opus"},
	"ogg-24khz-16bit-mono-opus":       {Container: ContainerOgg, SampleRate: 24000, Codec: "ogg_opus"},
}

// LookupFormat returns the format named name. The empty name selects
// DefaultFormat. Names are case-insensitive.
func LookupFormat(name string) (Format, error) {
	if name == "" {
		name = DefaultFormat
	}
	key := strings.ToLower(name)
	f, ok := formats[key]
	if !ok {
		return Format{}, fmt.Errorf("%w: %q", ErrUnknownFormat, name)
	}
	f.Name = key
	return f, nil
}

// Formats lists the known format names in sorted order.
func Formats() []string {
	return slices.Sorted(maps.Keys(formats))
}

// IsWAV reports whether a format name denotes a RIFF/WAV container.
func IsWAV(name string) bool {
	n := strings.ToLower(name)
	return strings.Contains(n, "riff") || strings.Contains(n, "wav")
}

// MediaType returns the HTTP content type of audio in this format.
func (f Format) MediaType() string {
	if IsWAV(f.Name) {
		return "audio/wav"
	}
	return "application/octet-stream"
}

// Ext returns the file extension used when saving this format.
func (f Format) Ext() string {
	if IsWAV(f.Name) {
		return ".wav"
	}
	return ".bin"
}

// PCM reports whether the format carries uncompressed samples.
func (f Format) PCM() bool {
	return f.Codec == "pcm"
}
