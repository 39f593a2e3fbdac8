package cli

import (
	"context"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"chatstream/pkg/actions"
	"chatstream/pkg/store"
)

func init() {
	actionsCmd.AddCommand(actionsImportCmd, actionsListCmd, actionsDeleteCmd)
	rootCmd.AddCommand(actionsCmd)
}

var actionsCmd = &cobra.Command{
	Use:   "actions",
	Short: "Manage action configs in the local store",
}

var actionsImportCmd = &cobra.Command{
	Use:   "import <catalog.yaml>",
	Short: "Validate a catalog file and save every action in it",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfgs, err := actions.ReadCatalog(args[0])
		if err != nil {
			return err
		}
		db, err := openStore()
		if err != nil {
			return err
		}
		defer db.Close()

		ctx := context.Background()
		for _, c := range cfgs {
			if err := db.SaveAction(ctx, c); err != nil {
				return fmt.Errorf("save %s/%s: %w", c.AgentID, c.ID, err)
			}
		}
		fmt.Fprintf(cmd.OutOrStdout(), "imported %d actions\n", len(cfgs))
		return nil
	},
}

var actionsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List the agent's actions",
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

		cfgs, err := db.LoadActions(context.Background(), agentID)
		if err != nil {
			return err
		}
		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tTYPE\tSTATUS\tNAME")
		for _, c := range cfgs {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", c.ID, c.Type, c.Status, c.Name)
		}
		return w.Flush()
	},
}

var actionsDeleteCmd = &cobra.Command{
	Use:   "delete <action-id>",
	Short: "Delete one of the agent's actions",
	Args:  cobra.ExactArgs(1),
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
		return db.DeleteAction(context.Background(), agentID, args[0])
	},
}

func openStore() (*store.DB, error) {
	if err := ensureDir(profile.DBPath); err != nil {
		return nil, err
	}
	db, err := store.Open(profile.DBPath)
	if err != nil {
		return nil, fmt.Errorf("open store %s (is the daemon using it?): %w", profile.DBPath, err)
	}
	return db, nil
}
