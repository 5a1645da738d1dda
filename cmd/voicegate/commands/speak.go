package commands

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/haivivi/voicegate/pkg/audio/pcm"
	"github.com/haivivi/voicegate/pkg/audio/portaudio"
	"github.com/haivivi/voicegate/pkg/cli"
	"github.com/haivivi/voicegate/pkg/client"
	"github.com/haivivi/voicegate/pkg/server"
	"github.com/haivivi/voicegate/pkg/speech"
)

const defaultSpeakOut = "out.wav"

var speakCmd = &cobra.Command{
	Use:   "speak [text]",
	Short: "Synthesize text through the gateway",
	Long: `Synthesize text through the gateway and save the audio.

The request comes from the argument or from a YAML/JSON file:

  text: Сәлеметсіз бе
  voiceName: kk-KZ-AigulNeural
  format: riff-24khz-16bit-mono-pcm

When the default output name is kept, its extension follows the format:
.wav for RIFF formats and .bin otherwise.

Example:
  voicegate speak "Алмаз сабақта жоқ" --format riff-24khz-16bit-mono-pcm --play
  voicegate speak --demo --out demo/phrase.wav`,
	Args: cobra.MaximumNArgs(1),
	RunE: runSpeak,
}

func init() {
	f := speakCmd.Flags()
	f.StringP("file", "f", "", "request file (YAML or JSON, - for stdin)")
	f.String("voice", "", "voice name")
	f.String("format", "", "output format, e.g. riff-16khz-16bit-mono-pcm")
	f.String("deployment", "", "custom voice deployment id")
	f.String("out", defaultSpeakOut, "output file")
	f.Bool("play", false, "play the result (PCM formats)")
	f.Bool("demo", false, "synthesize the built-in demo phrases")
	f.Bool("list-formats", false, "list output formats and exit")
}

func runSpeak(cmd *cobra.Command, args []string) error {
	if list, _ := cmd.Flags().GetBool("list-formats"); list {
		for _, name := range speech.Formats() {
			fmt.Println(name)
		}
		return nil
	}
	c, err := currentContext()
	if err != nil {
		return err
	}

	var req speech.Request
	if path, _ := cmd.Flags().GetString("file"); path != "" {
		if err := cli.LoadRequest(path, &req); err != nil {
			return err
		}
	}
	if len(args) > 0 {
		req.Text = args[0]
	}
	req.Voice = stringFlag(cmd, "voice", orValue(req.Voice, c.Voice))
	req.Format = stringFlag(cmd, "format", orValue(req.Format, c.Format))
	req.Deployment = stringFlag(cmd, "deployment", req.Deployment)
	req = req.Normalize()

	out, _ := cmd.Flags().GetString("out")
	out = outputPath(out, req.Format, !cmd.Flags().Changed("out"))
	play, _ := cmd.Flags().GetBool("play")

	texts := []string{req.Text}
	if demo, _ := cmd.Flags().GetBool("demo"); demo {
		texts = server.DefaultPhrases
	} else if req.Text == "" {
		return fmt.Errorf("text is required (argument, --file or --demo)")
	}

	api := client.NewAPI(c.Server, c.APIKey)
	for i, text := range texts {
		r := req
		r.Text = text
		data, mediaType, err := api.Synthesize(cmd.Context(), r)
		if err != nil {
			return err
		}
		path := out
		if len(texts) > 1 {
			path = numbered(out, i+1)
		}
		if err := saveFile(path, data); err != nil {
			return err
		}
		fmt.Printf("%s (%s, %d bytes): %s\n", path, mediaType, len(data), text)
		if play {
			if err := playWAV(cmd, data); err != nil {
				return err
			}
		}
	}
	return nil
}

// outputPath switches the extension of the default output name to match
// the format.
func outputPath(out, format string, isDefault bool) string {
	if !isDefault {
		return out
	}
	ext := ".bin"
	if speech.IsWAV(format) {
		ext = ".wav"
	}
	return strings.TrimSuffix(out, filepath.Ext(out)) + ext
}

func numbered(path string, n int) string {
	ext := filepath.Ext(path)
	return fmt.Sprintf("%s_%02d%s", strings.TrimSuffix(path, ext), n, ext)
}

func saveFile(path string, data []byte) error {
	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory: %w", err)
		}
	}
	return os.WriteFile(path, data, 0o644)
}

func playWAV(cmd *cobra.Command, data []byte) error {
	wav, err := pcm.DecodeWAV(data)
	if err != nil {
		return fmt.Errorf("play: %w", err)
	}
	if err := portaudio.Initialize(); err != nil {
		return err
	}
	defer portaudio.Terminate()
	return portaudio.Play(cmd.Context(), pcm.Int16s(wav.Data), wav.SampleRate)
}

func orValue(v, fallback string) string {
	if v != "" {
		return v
	}
	return fallback
}
