package commands

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/haivivi/voicegate/pkg/cli"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage client contexts",
	Long: `Manage client contexts.

A context names a gateway server with the API key and defaults the client
commands use, similar to kubectl's contexts.

Configuration is stored in ~/.voicegate/config.yaml`,
}

var configAddContextCmd = &cobra.Command{
	Use:   "add-context <name>",
	Short: "Add or replace a context",
	Long: `Add or replace a context.

Example:
  voicegate config add-context school \
    --server-url https://speech.example.kz --api-key SECRET \
    --language kk-KZ --normalize \
    --access-key PICOVOICE_KEY --keyword ~/models/salem.ppn`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		f := cmd.Flags()
		server, _ := f.GetString("server-url")
		if server == "" {
			return fmt.Errorf("--server-url is required")
		}
		key, _ := f.GetString("api-key")
		ctx := &cli.Context{
			Name:   args[0],
			Server: server,
			APIKey: key,
		}
		ctx.Language, _ = f.GetString("language")
		ctx.Normalize, _ = f.GetBool("normalize")
		ctx.Voice, _ = f.GetString("voice")
		ctx.Format, _ = f.GetString("format")
		ctx.Locale, _ = f.GetString("locale")
		ctx.Project, _ = f.GetString("project")
		ctx.Deployment, _ = f.GetString("deployment")

		ww := cli.Wakeword{}
		ww.AccessKey, _ = f.GetString("access-key")
		ww.Keywords, _ = f.GetStringSlice("keyword")
		ww.BuiltIn, _ = f.GetStringSlice("builtin")
		ww.Sensitivity, _ = f.GetFloat32("sensitivity")
		if ww.AccessKey != "" || len(ww.Keywords) > 0 || len(ww.BuiltIn) > 0 {
			ctx.Wakeword = &ww
		}

		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if err := cfg.SetContext(ctx); err != nil {
			return err
		}
		fmt.Printf("Context %q saved to %s\n", ctx.Name, cfg.Path())
		return nil
	},
}

var configDeleteContextCmd = &cobra.Command{
	Use:   "delete-context <name>",
	Short: "Delete a context",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if err := cfg.DeleteContext(args[0]); err != nil {
			return err
		}
		fmt.Printf("Context %q deleted\n", args[0])
		return nil
	},
}

var configUseContextCmd = &cobra.Command{
	Use:   "use-context <name>",
	Short: "Set the current context",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if err := cfg.UseContext(args[0]); err != nil {
			return err
		}
		fmt.Printf("Switched to context %q\n", args[0])
		return nil
	},
}

var configListContextsCmd = &cobra.Command{
	Use:     "list-contexts",
	Aliases: []string{"get-contexts"},
	Short:   "List all contexts",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if len(cfg.Contexts) == 0 {
			fmt.Println("No contexts configured")
			return nil
		}
		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "CURRENT\tNAME\tSERVER\tLANGUAGE\tWAKE WORD")
		for _, name := range cfg.Names() {
			c := cfg.Contexts[name]
			current := ""
			if name == cfg.CurrentContext {
				current = "*"
			}
			wake := "loudness"
			if c.Wakeword != nil && c.Wakeword.AccessKey != "" {
				wake = "porcupine"
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", current, name, c.Server, c.Language, wake)
		}
		return w.Flush()
	},
}

var configViewCmd = &cobra.Command{
	Use:   "view",
	Short: "View the configuration with secrets masked",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		view := cli.Config{CurrentContext: cfg.CurrentContext, Contexts: map[string]*cli.Context{}}
		for name, c := range cfg.Contexts {
			masked := *c
			masked.APIKey = cli.MaskAPIKey(c.APIKey)
			if c.Wakeword != nil {
				ww := *c.Wakeword
				ww.AccessKey = cli.MaskAPIKey(ww.AccessKey)
				masked.Wakeword = &ww
			}
			view.Contexts[name] = &masked
		}
		fmt.Printf("# %s\n", cfg.Path())
		return printResult(view)
	},
}

func init() {
	f := configAddContextCmd.Flags()
	f.String("server-url", "", "gateway base URL, e.g. http://localhost:8000 (required)")
	f.String("api-key", "", "gateway API key")
	f.String("language", "", "default recognition language")
	f.Bool("normalize", false, "ask the server to normalize input gain")
	f.String("voice", "", "default synthesis voice")
	f.String("format", "", "default synthesis format")
	f.String("locale", "", "default intent locale")
	f.String("project", "", "default intent project")
	f.String("deployment", "", "default intent deployment")
	f.String("access-key", "", "Picovoice access key")
	f.StringSlice("keyword", nil, "Porcupine keyword file; repeatable")
	f.StringSlice("builtin", nil, "built-in Porcupine keyword; repeatable")
	f.Float32("sensitivity", 0, "wake word sensitivity 0..1")

	configCmd.AddCommand(configAddContextCmd)
	configCmd.AddCommand(configDeleteContextCmd)
	configCmd.AddCommand(configUseContextCmd)
	configCmd.AddCommand(configListContextsCmd)
	configCmd.AddCommand(configViewCmd)
}
