package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/haivivi/voicegate/pkg/cli"
	"github.com/haivivi/voicegate/pkg/client"
	"github.com/haivivi/voicegate/pkg/intent"
)

var demoUtterances = []string{
	"Журналды аш",
	"Сыныпты үш топқа бөл",
	"Алмаз сабақта жоқ",
	"Бүгін ауа райы қандай",
}

var intentCmd = &cobra.Command{
	Use:   "intent [text]",
	Short: "Classify text through the gateway",
	Long: `Classify an utterance into an intent with entities.

The request comes from the argument or from a YAML/JSON file:

  text: Алмаз сабақта жоқ
  locale: kk-KZ
  projectName: classroom

Example:
  voicegate intent "Сыныпты үш топқа бөл" --jq .topIntent
  voicegate intent --demo -o json`,
	Args: cobra.MaximumNArgs(1),
	RunE: runIntent,
}

func init() {
	f := intentCmd.Flags()
	f.StringP("file", "f", "", "request file (YAML or JSON, - for stdin)")
	f.String("locale", "", "text locale (default kk-KZ)")
	f.String("project", "", "intent catalog project")
	f.String("deployment", "", "model deployment")
	f.Bool("demo", false, "classify the built-in demo utterances")
}

func runIntent(cmd *cobra.Command, args []string) error {
	c, err := currentContext()
	if err != nil {
		return err
	}
	var req intent.Request
	if path, _ := cmd.Flags().GetString("file"); path != "" {
		if err := cli.LoadRequest(path, &req); err != nil {
			return err
		}
	}
	if len(args) > 0 {
		req.Text = args[0]
	}
	req.Locale = stringFlag(cmd, "locale", orValue(req.Locale, c.Locale))
	req.Project = stringFlag(cmd, "project", orValue(req.Project, c.Project))
	req.Deployment = stringFlag(cmd, "deployment", orValue(req.Deployment, c.Deployment))

	api := client.NewAPI(c.Server, c.APIKey)
	if demo, _ := cmd.Flags().GetBool("demo"); demo {
		type result struct {
			Text       string             `json:"text" yaml:"text"`
			Prediction *intent.Prediction `json:"prediction" yaml:"prediction"`
		}
		var out []result
		for _, text := range demoUtterances {
			r := req
			r.Text = text
			p, err := api.Predict(cmd.Context(), r)
			if err != nil {
				return fmt.Errorf("%q: %w", text, err)
			}
			p.Raw = nil
			out = append(out, result{Text: text, Prediction: p})
		}
		return printResult(out)
	}
	if req.Text == "" {
		return fmt.Errorf("text is required (argument, --file or --demo)")
	}
	p, err := api.Predict(cmd.Context(), req)
	if err != nil {
		return err
	}
	return printResult(p)
}
