package cli

import (
	"fmt"
	"os"

	"github.com/goccy/go-yaml"
	"github.com/spf13/cobra"
)

func init() {
	profileCmd.AddCommand(profileShowCmd, profileSetCmd)
	rootCmd.AddCommand(profileCmd)
}

var profileCmd = &cobra.Command{
	Use:   "profile",
	Short: "Show or edit the chatctl profile",
}

var profileShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the active profile",
	RunE: func(cmd *cobra.Command, args []string) error {
		out, err := yaml.Marshal(profile)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "# %s\n%s", profilePath, out)
		return nil
	},
}

var profileSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set one profile field",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		// reload so --agent/--db overrides are not persisted by accident
		p, err := LoadProfile(profilePath)
		if err != nil {
			return err
		}
		if err := p.Set(args[0], args[1]); err != nil {
			return err
		}
		if err := SaveProfile(p, profilePath); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s updated\n", args[0])
		return nil
	},
}

// Set assigns a field by its yaml name.
func (p *Profile) Set(key, value string) error {
	fields := map[string]*string{
		"agent_id":         &p.AgentID,
		"device_id":        &p.DeviceID,
		"db_path":          &p.DBPath,
		"backend_url":      &p.BackendURL,
		"integrations_url": &p.IntegrationsURL,
		"workspace_id":     &p.WorkspaceID,
		"timezone":         &p.Timezone,
		"log_level":        &p.LogLevel,
	}
	f, ok := fields[key]
	if !ok {
		return fmt.Errorf("unknown profile key %q", key)
	}
	*f = value
	return nil
}

func ensureDir(path string) error {
	return os.MkdirAll(path, 0o700)
}
