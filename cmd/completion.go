package cmd

import (
	"errors"

	"github.com/spf13/cobra"
)

var completionCmd = &cobra.Command{
	Use:   "completion <shell>",
	Short: "Output shell completion code for the specified shell",
	Long: `
Output shell completion code for the specified shell (bash, zsh, or fish). The
shell code must be evaluated to provide interactive completion of multifs
commands.

Bash:

  $ source <(multifs completion bash)

  # To load completions for each session, execute once:
  # Linux:
  $ multifs completion bash > /etc/bash_completion.d/multifs
  # macOS:
  $ multifs completion bash > $(brew --prefix)/etc/bash_completion.d/multifs

Note: this requires the bash-completion framework, which is not installed by
default on Mac.  This can be installed by using homebrew:

    $ brew install bash-completion

Once installed, bash_completion must be evaluated.  This can be done by adding the
following line to the .bash_profile

    $ source $(brew --prefix)/etc/bash_completion

Zsh:

  # If shell completion is not already enabled in your environment,
  # you will need to enable it.  You can execute the following once:

  $ echo "autoload -U compinit; compinit" >> ~/.zshrc

  # To load completions for each session, execute once:
  $ multifs completion zsh > "${fpath[1]}/_multifs"

  # You will need to start a new shell for this setup to take effect.

fish:

  $ multifs completion fish | source

  # To load completions for each session, execute once:
  $ multifs completion fish > /etc/fish/completions/multifs.fish
`,
	ValidArgs: []string{"bash", "zsh", "fish"},
	RunE: func(cmd *cobra.Command, args []string) error {
		if len(args) != 1 {
			return cmd.Usage()
		}
		switch args[0] {
		case "bash":
			return RootCmd.GenBashCompletion(cmd.OutOrStdout())
		case "zsh":
			return RootCmd.GenZshCompletion(cmd.OutOrStdout())
		case "fish":
			includeDescription := true
			return RootCmd.GenFishCompletion(cmd.OutOrStdout(), includeDescription)
		}
		return errors.New("Unsupported shell")
	},
}

func init() {
	RootCmd.AddCommand(completionCmd)
}
