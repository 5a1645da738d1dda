package commands

import (
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/haivivi/voicegate/pkg/client"
)

var transcriptCmd = &cobra.Command{
	Use:   "transcript",
	Short: "Browse stored session transcripts",
}

var transcriptListCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "List recorded streaming sessions",
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := currentContext()
		if err != nil {
			return err
		}
		sessions, err := client.NewAPI(c.Server, c.APIKey).Sessions(cmd.Context())
		if err != nil {
			return err
		}
		if jqFilter != "" || cmd.Flags().Changed("output") {
			return printResult(sessions)
		}
		if len(sessions) == 0 {
			fmt.Println("No sessions recorded")
			return nil
		}
		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tSTARTED\tDURATION\tFINALS\tAUDIO")
		for _, s := range sessions {
			dur := "-"
			if !s.EndedAt.IsZero() {
				dur = s.EndedAt.Sub(s.StartedAt).Round(time.Second).String()
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\n", s.ID, s.StartedAt.Local().Format(time.DateTime), dur, s.Finals, s.Audio)
		}
		return w.Flush()
	},
}

var transcriptGetCmd = &cobra.Command{
	Use:   "get <session-id>",
	Short: "Show the transcript of a session",
	Long: `Show the transcript of a session.

By default only the recognized text is printed; use -o or --jq for the
full record list.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := currentContext()
		if err != nil {
			return err
		}
		tr, err := client.NewAPI(c.Server, c.APIKey).Transcript(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		if jqFilter != "" || cmd.Flags().Changed("output") {
			return printResult(tr)
		}
		fmt.Println(tr.Text)
		return nil
	},
}

func init() {
	transcriptCmd.AddCommand(transcriptListCmd)
	transcriptCmd.AddCommand(transcriptGetCmd)
}
