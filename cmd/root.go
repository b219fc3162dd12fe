package cmd

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/vsalavatov/multifs/model/storage"
	"github.com/vsalavatov/multifs/pkg/config/config"
	"github.com/vsalavatov/multifs/pkg/logger"
)

var cfgFile string

// ErrUsage is returned by the cmd.Usage() method
var ErrUsage = errors.New("Bad usage of command")

// RootCmd represents the base command when called without any subcommands
var RootCmd = &cobra.Command{
	Use:   "multifs",
	Short: "multifs is the main command",
	Long: `multifs gives the same file operations on local folders, embedded SQLite
databases, Google Drive accounts and OpenStack Swift containers.

The backends are declared by name in the configuration file, and a node is
designated by backend:/path/to/node. Files can be copied and moved from one
backend to another.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return config.Setup(cfgFile)
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		// Display the usage/help by default
		return cmd.Usage()
	},
	// Do not display usage on error
	SilenceUsage: true,
	// We have our own way to display error messages
	SilenceErrors: true,
}

// consentPrinter returns a function printing the Drive consent page, when an
// authorization is needed, on the error output of the command.
func consentPrinter(cmd *cobra.Command) func(authURL string) error {
	return func(authURL string) error {
		_, err := fmt.Fprintf(cmd.ErrOrStderr(),
			"Open this URL in your browser to authorize multifs:\n\n    %s\n\n", authURL)
		return err
	}
}

// withStorage runs fn with a new storage, and closes the backends it has
// opened when fn returns.
func withStorage(cmd *cobra.Command, fn func(ctx context.Context, s *storage.Storage) error) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	s := storage.New(consentPrinter(cmd))
	defer func() {
		if err := s.Shutdown(context.Background()); err != nil {
			logger.WithNamespace("cmd").Warnf("Could not close the backends: %s", err)
		}
	}()
	return fn(ctx, s)
}

func init() {
	usageFunc := RootCmd.UsageFunc()

	RootCmd.SetUsageFunc(func(cmd *cobra.Command) error {
		_ = usageFunc(cmd)
		return ErrUsage
	})

	flags := RootCmd.PersistentFlags()
	flags.StringVarP(&cfgFile, "config", "c", "", "configuration file (default \"$HOME/.config/multifs/multifs.yaml\")")

	flags.String("log-level", "info", "define the log level")
	checkNoErr(viper.BindPFlag("log.level", flags.Lookup("log-level")))
}

func checkNoErr(err error) {
	if err != nil {
		panic(err)
	}
}
