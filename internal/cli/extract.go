package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"chatstream/pkg/actions"
	"chatstream/pkg/directive"
)

func init() {
	rootCmd.AddCommand(extractCmd)
}

var extractCmd = &cobra.Command{
	Use:   "extract [text]",
	Short: "Run directive extraction and resolution on assistant text",
	Long: `extract shows what a complete assistant reply turns into: the visible
text and the attachment its directive resolves to against the agent's
actions. Without an argument the text is read from stdin.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		text := ""
		if len(args) == 1 {
			text = args[0]
		} else {
			b, err := io.ReadAll(os.Stdin)
			if err != nil {
				return err
			}
			text = string(b)
		}

		res := directive.Extract(text)
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "visible: %s\n", res.VisibleText)
		if res.Stripped > 1 {
			fmt.Fprintf(out, "stripped: %d markers (only the first is used)\n", res.Stripped)
		}
		if res.Dropped != nil {
			fmt.Fprintf(out, "dropped: %s %s", res.Dropped.Kind, res.Dropped.Reason)
			if res.Dropped.Field != "" {
				fmt.Fprintf(out, " (%s)", res.Dropped.Field)
			}
			fmt.Fprintln(out)
			return nil
		}
		if res.Directive == nil {
			fmt.Fprintln(out, "directive: none")
			return nil
		}
		fmt.Fprintf(out, "directive: %s %s\n", res.Directive.Kind, res.Directive.ActionID)

		agentID, err := requireAgent()
		if err != nil {
			return err
		}
		db, err := openStore()
		if err != nil {
			return err
		}
		defer db.Close()
		snap, err := actions.Load(context.Background(), db, agentID)
		if err != nil {
			return err
		}
		att, err := actions.Resolve(res.Directive, snap)
		if err != nil {
			fmt.Fprintf(out, "attachment: none (%v)\n", err)
			return nil
		}
		b, _ := json.MarshalIndent(att, "", "  ")
		fmt.Fprintf(out, "attachment:\n%s\n", strings.TrimSpace(string(b)))
		return nil
	},
}
