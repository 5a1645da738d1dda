// Package main is the voicegate CLI.
//
// Usage:
//
//	voicegate [flags] <command> [args]
//
// Commands:
//
//	serve       - Run the speech gateway (streaming STT, file STT, TTS, intents)
//	listen      - Stream the microphone with wake-word gating
//	speak       - Synthesize text through the gateway
//	recognize   - Recognize a WAV file through the gateway
//	intent      - Classify text through the gateway
//	transcript  - Browse stored session transcripts
//	config      - Manage client contexts
//
// Client settings are stored in ~/.voicegate/config.yaml.
package main

import (
	"fmt"
	"os"

	"github.com/haivivi/voicegate/cmd/voicegate/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
