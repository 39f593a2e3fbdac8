package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
)

var inspectJSON bool

func init() {
	inspectCmd.PersistentFlags().BoolVar(&inspectJSON, "json", false, "print raw JSON")
	inspectCmd.AddCommand(inspectConversationsCmd, inspectMessagesCmd, inspectStatsCmd)
	rootCmd.AddCommand(inspectCmd)
}

var inspectCmd = &cobra.Command{
	Use:   "inspect",
	Short: "Read conversations and messages from the local store",
}

var inspectConversationsCmd = &cobra.Command{
	Use:   "conversations",
	Short: "List the agent's conversations, newest first",
	RunE: func(cmd *cobra.Command, args []string) error {
		agentID, err := requireAgent()
		if err != nil {
			return err
		}
		db, err := openStore()
		if err != nil {
			return err
		}
		defer db.Close()

		convs, err := db.ListConversations(context.Background(), agentID)
		if err != nil {
			return err
		}
		if inspectJSON {
			return printJSON(cmd, convs)
		}
		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tTITLE\tDEVICE\tMESSAGES\tUPDATED")
		for _, c := range convs {
			fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\n", c.ID, c.Title, c.DeviceID, c.MessageCount, humanize.Time(time.Unix(0, c.UpdatedTS)))
		}
		return w.Flush()
	},
}

var inspectMessagesCmd = &cobra.Command{
	Use:   "messages <conversation-id>",
	Short: "Print a conversation's messages in order",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openStore()
		if err != nil {
			return err
		}
		defer db.Close()

		msgs, err := db.ListMessages(context.Background(), args[0])
		if err != nil {
			return err
		}
		if inspectJSON {
			return printJSON(cmd, msgs)
		}
		out := cmd.OutOrStdout()
		for _, m := range msgs {
			fmt.Fprintf(out, "#%d %s %s: %s\n", m.Seq, time.Unix(0, m.TS).Format(time.RFC3339), m.Role, m.Content)
			if m.Attachment != nil {
				printAttachment(out, m.Key(), m.Attachment)
			}
		}
		return nil
	},
}

var inspectStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Print store totals",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openStore()
		if err != nil {
			return err
		}
		defer db.Close()

		st, err := db.Stats(context.Background())
		if err != nil {
			return err
		}
		return printJSON(cmd, st)
	},
}

func printJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
