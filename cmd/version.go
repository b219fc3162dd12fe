package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	build "github.com/vsalavatov/multifs/pkg/config"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number",
	Long:  `Print the current version number of the binary`,
	RunE: func(cmd *cobra.Command, args []string) error {
		version := build.Version
		if version == "" {
			version = "unknown"
		}
		if build.IsDevRelease() {
			version += " (development)"
		}
		if build.BuildTime != "" {
			version += ", built at " + build.BuildTime
		}
		_, err := fmt.Fprintln(cmd.OutOrStdout(), version)
		return err
	},
}

func init() {
	RootCmd.AddCommand(versionCmd)
}
