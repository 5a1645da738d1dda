package commands

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/haivivi/voicegate/pkg/cli"
)

var (
	verbose     bool
	configPath  string
	contextName string
	serverURL   string
	apiKey      string
	outputFmt   string
	jqFilter    string
)

var rootCmd = &cobra.Command{
	Use:   "voicegate",
	Short: "Real-time speech gateway and clients",
	Long: `voicegate - a speech gateway and its command line clients.

The server streams microphone audio to a recognition engine over a
websocket and also serves file recognition, synthesis and intent
classification. The clients talk to a server selected by a context.

Examples:
  # Run a server with the offline echo engine
  API_KEY=secret voicegate serve --engine echo

  # Point the clients at it
  voicegate config add-context local --server-url http://localhost:8000 --api-key secret
  voicegate listen --manual
  voicegate speak "Сәлеметсіз бе"
  voicegate intent "Алмаз сабақта жоқ" --jq .topIntent`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		setupLogging()
	},
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.BoolVarP(&verbose, "verbose", "v", false, "verbose output")
	pf.StringVar(&configPath, "config", "", "client config file (default ~/.voicegate/config.yaml)")
	pf.StringVarP(&contextName, "context", "c", "", "context to use instead of the current one")
	pf.StringVar(&serverURL, "server", "", "gateway base URL (overrides the context)")
	pf.StringVar(&apiKey, "key", "", "gateway API key (overrides the context)")
	pf.StringVarP(&outputFmt, "output", "o", "yaml", "output format: yaml or json")
	pf.StringVar(&jqFilter, "jq", "", "jq filter applied to the result")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(listenCmd)
	rootCmd.AddCommand(speakCmd)
	rootCmd.AddCommand(recognizeCmd)
	rootCmd.AddCommand(intentCmd)
	rootCmd.AddCommand(transcriptCmd)
	rootCmd.AddCommand(configCmd)
}

// setupLogging routes slog through a charmbracelet logger on stderr.
func setupLogging() {
	level := log.InfoLevel
	if verbose {
		level = log.DebugLevel
	}
	logger := log.NewWithOptions(os.Stderr, log.Options{
		Level:           level,
		ReportTimestamp: verbose,
		TimeFormat:      time.TimeOnly,
	})
	slog.SetDefault(slog.New(logger))
}

func loadConfig() (*cli.Config, error) {
	return cli.LoadConfig(configPath)
}

// currentContext resolves --context or the current context and applies
// --server and --key. Without any context the local default server is used.
func currentContext() (*cli.Context, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	resolved, err := cfg.Resolve(contextName)
	switch {
	case err == nil:
	case errors.Is(err, cli.ErrNoContext):
		resolved = &cli.Context{Server: "http://localhost:8000"}
	default:
		return nil, err
	}
	c := *resolved
	if serverURL != "" {
		c.Server = serverURL
	}
	if apiKey != "" {
		c.APIKey = apiKey
	}
	if c.Server == "" {
		return nil, fmt.Errorf("no server configured (use --server or a context)")
	}
	return &c, nil
}

func outputOptions() cli.OutputOptions {
	return cli.OutputOptions{Format: cli.Format(outputFmt), JQ: jqFilter}
}

func printResult(v any) error {
	return cli.Output(os.Stdout, v, outputOptions())
}

// stringFlag returns the flag value when set, otherwise fallback.
func stringFlag(cmd *cobra.Command, name, fallback string) string {
	if cmd.Flags().Changed(name) {
		v, _ := cmd.Flags().GetString(name)
		return v
	}
	return fallback
}
