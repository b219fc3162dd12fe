package cmd

import (
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
	"github.com/vsalavatov/multifs/pkg/config/config"
	"github.com/vsalavatov/multifs/pkg/utils"
)

const redacted = "xxxxx"

var configCmdGroup = &cobra.Command{
	Use:   "config [command]",
	Short: "Show the configuration",
	Long: `
multifs config allows to print the configuration, and the backends that can be
used in the other commands.
`,
}

var configPrintCmd = &cobra.Command{
	Use:   "print",
	Short: "Display the configuration",
	Long: `Read the environment variables, the config file and
the given parameters to display the configuration. The secrets are redacted.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.GetConfig()
		drive := cfg.Drive
		if drive.ClientSecret != "" {
			drive.ClientSecret = redacted
		}
		if drive.AccessToken != "" {
			drive.AccessToken = redacted
		}
		backends := make(map[string]string, len(cfg.Backends))
		for name, u := range cfg.Backends {
			backends[name] = utils.RedactURL(u)
		}

		out, err := json.MarshalIndent(struct {
			Log      config.Log
			Backends map[string]string
			Drive    config.Drive
			Swift    config.Swift
			SQLite   config.SQLite
		}{cfg.Log, backends, drive, cfg.Swift, cfg.SQLite}, "", "  ")
		if err != nil {
			return err
		}

		_, err = fmt.Fprintln(cmd.OutOrStdout(), string(out))
		return err
	},
}

var configBackendsCmd = &cobra.Command{
	Use:     "backends",
	Short:   "List the configured backends",
	Example: "$ multifs config backends",
	RunE: func(cmd *cobra.Command, args []string) error {
		names := config.BackendNames()
		var maxnamelen int
		for _, name := range names {
			if len(name) > maxnamelen {
				maxnamelen = len(name)
			}
		}
		smaxnamelen := strconv.Itoa(maxnamelen)
		for _, name := range names {
			u, err := config.Backend(name)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "%-"+smaxnamelen+"s  %s\n", name, utils.RedactURL(u))
			if err != nil {
				return err
			}
		}
		return nil
	},
}

func init() {
	configCmdGroup.AddCommand(configPrintCmd)
	configCmdGroup.AddCommand(configBackendsCmd)
	RootCmd.AddCommand(configCmdGroup)
}
