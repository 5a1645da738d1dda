package commands

import (
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/haivivi/voicegate/pkg/audio/portaudio"
	"github.com/haivivi/voicegate/pkg/cli"
	"github.com/haivivi/voicegate/pkg/client"
	"github.com/haivivi/voicegate/pkg/protocol"
	"github.com/haivivi/voicegate/pkg/wakeword"
)

const (
	manualFrameLen  = 512
	captureRate     = 16000
	energyThreshold = 1500
	energyFrames    = 5
)

var listenCmd = &cobra.Command{
	Use:   "listen",
	Short: "Stream the microphone to the gateway",
	Long: `Stream the microphone to the gateway's streaming recognizer.

Recording starts when the wake word is heard and stops when the server
finalizes the utterance. The wake word is detected with Porcupine when an
access key and keywords are configured, and with a simple loudness
detector otherwise. With --manual, recording starts on "s" or an empty
line instead. --devices lists the audio devices and exits.

Keys (type, then Enter):
  s   start recording (--manual)
  x   cancel the current utterance
  q   quit`,
	RunE: runListen,
}

func init() {
	f := listenCmd.Flags()
	f.String("language", "", "recognition language, e.g. kk-KZ")
	f.Bool("normalize", false, "ask the server to normalize input gain")
	f.Bool("manual", false, "start recording with a key instead of a wake word")
	f.String("access-key", "", "Picovoice access key (env PICOVOICE_ACCESS_KEY)")
	f.StringSlice("keyword", nil, "Porcupine keyword file (.ppn); repeatable (env WAKEWORD_FILE)")
	f.StringSlice("builtin", nil, "built-in Porcupine keyword, e.g. porcupine")
	f.Float32("sensitivity", 0, "wake word sensitivity 0..1 (env WAKEWORD_SENSITIVITY)")
	f.Int("queue", client.DefaultQueueSize, "capture and send queue size")
	f.Bool("devices", false, "list audio devices and exit")
}

func runListen(cmd *cobra.Command, args []string) error {
	if list, _ := cmd.Flags().GetBool("devices"); list {
		return listDevices(cmd)
	}
	c, err := currentContext()
	if err != nil {
		return err
	}
	streamURL, err := c.StreamURL(protocol.Path)
	if err != nil {
		return err
	}
	normalize := c.Normalize
	if cmd.Flags().Changed("normalize") {
		normalize, _ = cmd.Flags().GetBool("normalize")
	}
	manual, _ := cmd.Flags().GetBool("manual")
	queue, _ := cmd.Flags().GetInt("queue")

	det, err := newDetector(cmd, c, manual)
	if err != nil {
		return err
	}
	defer det.Close()

	if err := portaudio.Initialize(); err != nil {
		return err
	}
	defer portaudio.Terminate()

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if manual {
		fmt.Fprintln(os.Stderr, "Manual mode: s + Enter to start, x to cancel, q to quit.")
	} else {
		fmt.Fprintln(os.Stderr, "Say the wake word to start. x + Enter cancels, q quits.")
	}
	return client.Run(ctx, client.Config{
		URL:          streamURL,
		APIKey:       c.APIKey,
		Language:     stringFlag(cmd, "language", c.Language),
		Normalize:    normalize,
		Detector:     det,
		Manual:       manual,
		CaptureQueue: queue,
		SendQueue:    queue,
		Output:       os.Stdout,
		Keys:         os.Stdin,
	}, client.SourceFunc(startCapture))
}

func listDevices(cmd *cobra.Command) error {
	if err := portaudio.Initialize(); err != nil {
		return err
	}
	defer portaudio.Terminate()
	devices, err := portaudio.Devices()
	if err != nil {
		return err
	}
	if jqFilter != "" || cmd.Flags().Changed("output") {
		return printResult(devices)
	}
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "INDEX\tNAME\tIN\tOUT\tRATE\tDEFAULT")
	for _, d := range devices {
		def := ""
		switch {
		case d.IsDefaultInput && d.IsDefaultOutput:
			def = "in,out"
		case d.IsDefaultInput:
			def = "in"
		case d.IsDefaultOutput:
			def = "out"
		}
		fmt.Fprintf(w, "%d\t%s\t%d\t%d\t%.0f\t%s\n", d.Index, d.Name, d.MaxInputChannels, d.MaxOutputChannels, d.DefaultSampleRate, def)
	}
	return w.Flush()
}

func startCapture(sampleRate, frameLen int, cb func([]int16)) (client.Capture, error) {
	c, err := portaudio.StartCapture(sampleRate, frameLen, cb)
	if err != nil {
		return nil, err
	}
	return c, nil
}

// newDetector picks Porcupine when it is configured, the loudness detector
// otherwise, and a detector that never fires in manual mode.
func newDetector(cmd *cobra.Command, c *cli.Context, manual bool) (wakeword.Detector, error) {
	if manual {
		return wakeword.Never(manualFrameLen, captureRate), nil
	}
	ww := cli.Wakeword{}
	if c.Wakeword != nil {
		ww = *c.Wakeword
	}
	if v := os.Getenv("PICOVOICE_ACCESS_KEY"); v != "" {
		ww.AccessKey = v
	}
	if v := os.Getenv("WAKEWORD_FILE"); v != "" {
		ww.Keywords = []string{v}
	}
	if v := os.Getenv("WAKEWORD_SENSITIVITY"); v != "" {
		s, err := strconv.ParseFloat(v, 32)
		if err != nil {
			return nil, fmt.Errorf("WAKEWORD_SENSITIVITY: %w", err)
		}
		ww.Sensitivity = float32(s)
	}
	ww.AccessKey = stringFlag(cmd, "access-key", ww.AccessKey)
	if cmd.Flags().Changed("keyword") {
		ww.Keywords, _ = cmd.Flags().GetStringSlice("keyword")
	}
	if cmd.Flags().Changed("builtin") {
		ww.BuiltIn, _ = cmd.Flags().GetStringSlice("builtin")
	}
	if cmd.Flags().Changed("sensitivity") {
		ww.Sensitivity, _ = cmd.Flags().GetFloat32("sensitivity")
	}

	if ww.AccessKey != "" && len(ww.Keywords)+len(ww.BuiltIn) > 0 {
		p, err := wakeword.NewPorcupine(wakeword.PorcupineConfig{
			AccessKey:    ww.AccessKey,
			KeywordPaths: ww.Keywords,
			BuiltIn:      ww.BuiltIn,
			Sensitivity:  ww.Sensitivity,
		})
		if err != nil {
			return nil, err
		}
		slog.Info("listen: porcupine wake word", "keywords", len(ww.Keywords)+len(ww.BuiltIn))
		return p, nil
	}
	slog.Info("listen: no porcupine keywords configured, using loudness detection")
	return wakeword.NewEnergy(energyThreshold, energyFrames, manualFrameLen, captureRate), nil
}
