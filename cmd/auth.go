package cmd

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/vsalavatov/multifs/pkg/config/config"
	"github.com/vsalavatov/multifs/pkg/googleauth"
)

var flagAuthReset bool

var authCmdGroup = &cobra.Command{
	Use:   "auth <command>",
	Short: "Manage the authorizations given to multifs",
	RunE: func(cmd *cobra.Command, args []string) error {
		return cmd.Usage()
	},
}

var authDriveCmd = &cobra.Command{
	Use:   "drive [--reset]",
	Short: "Authorize multifs to access Google Drive",
	Long: `Run the OAuth2 authorization flow for Google Drive: the consent page is
opened in a browser, and the tokens are cached for the next commands. It is not
needed when a static access token is configured.

With --reset, the cached tokens are discarded first.`,
	Example: "$ multifs auth drive --reset",
	RunE: func(cmd *cobra.Command, args []string) error {
		if len(args) != 0 {
			return cmd.Usage()
		}
		requester, err := googleauth.NewRequester(config.GetConfig().Drive, consentPrinter(cmd))
		if err != nil {
			return err
		}
		cached, isCached := requester.(*googleauth.CachedRequester)
		if flagAuthReset && isCached {
			if err := os.Remove(cached.Path); err != nil && !errors.Is(err, os.ErrNotExist) {
				return err
			}
		}
		tok, err := requester.RequestAuthorization(cmd.Context())
		if err != nil {
			return err
		}
		w := cmd.OutOrStdout()
		if !isCached {
			_, err = fmt.Fprintln(w, "Using the access token of the configuration")
			return err
		}
		if tok.Expiry.IsZero() {
			_, err = fmt.Fprintf(w, "Authorized, the tokens are cached in %s\n", cached.Path)
		} else {
			_, err = fmt.Fprintf(w, "Authorized until %s, the tokens are cached in %s\n",
				tok.Expiry.Format("2006-01-02 15:04"), cached.Path)
		}
		return err
	},
}

func init() {
	authDriveCmd.Flags().BoolVar(&flagAuthReset, "reset", false, "discard the cached tokens")

	authCmdGroup.AddCommand(authDriveCmd)
	RootCmd.AddCommand(authCmdGroup)
}
