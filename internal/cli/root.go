// Package cli implements chatctl, the operator tool for chatting against a
// backend, managing actions and inspecting the local store.
package cli

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"chatstream/pkg/logger"
)

var (
	version = "dev"
	commit  = "unknown"
)

var (
	profilePath string
	verbose     bool
	profile     *Profile
)

var rootCmd = &cobra.Command{
	Use:   "chatctl",
	Short: "Chat client and operator tool for chatstream",
	Long: `chatctl runs interactive chat sessions against the AI backend and
manages the local conversation store: action catalogs, directive checks,
availability lookups and store inspection.`,
	Version:       fmt.Sprintf("%s (commit: %s)", version, commit),
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		_ = godotenv.Load(".env")
		p, err := LoadProfile(profilePath)
		if err != nil {
			return err
		}
		if p.fillDefaults() {
			if err := SaveProfile(p, profilePath); err != nil {
				logger.Warn("profile_save_failed", "path", profilePath, "error", err)
			}
		}
		if v, _ := cmd.Flags().GetString("agent"); v != "" {
			p.AgentID = v
		}
		if v, _ := cmd.Flags().GetString("db"); v != "" {
			p.DBPath = v
		}
		profile = p

		level := p.LogLevel
		if verbose {
			level = "debug"
		}
		if level == "" {
			level = "warn"
		}
		logger.InitWriter(os.Stderr, level)
		return nil
	},
}

// Execute runs the root command and exits non-zero on error.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.CompletionOptions.DisableDefaultCmd = true

	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
	rootCmd.PersistentFlags().StringVarP(&profilePath, "profile", "p", defaultProfilePath(), "profile file path")
	rootCmd.PersistentFlags().String("agent", "", "agent id (overrides the profile)")
	rootCmd.PersistentFlags().String("db", "", "store path (overrides the profile)")
}

func requireAgent() (string, error) {
	if profile.AgentID == "" {
		return "", fmt.Errorf("no agent id: pass --agent or set agent_id in %s", profilePath)
	}
	return profile.AgentID, nil
}
