package commands

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/haivivi/voicegate/pkg/client"
)

var recognizeCmd = &cobra.Command{
	Use:   "recognize <file.wav>",
	Short: "Recognize a WAV file through the gateway",
	Long: `Upload a WAV file for one-shot recognition.

Any sample rate, mono or stereo, is accepted; the server converts it to
16 kHz mono first.

Example:
  voicegate recognize lesson.wav --language kk-KZ --jq .text`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := currentContext()
		if err != nil {
			return err
		}
		data, err := os.ReadFile(args[0])
		if err != nil {
			return fmt.Errorf("read %s: %w", args[0], err)
		}
		language := stringFlag(cmd, "language", c.Language)
		res, err := client.NewAPI(c.Server, c.APIKey).Recognize(cmd.Context(), data, language)
		if err != nil {
			return err
		}
		return printResult(res)
	},
}

func init() {
	recognizeCmd.Flags().String("language", "", "recognition language, e.g. kk-KZ")
}
