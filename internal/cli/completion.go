package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/matzehuels/pathmap/internal/config"
	"github.com/matzehuels/pathmap/pkg/plate"
	"github.com/matzehuels/pathmap/pkg/tiles"
	"github.com/matzehuels/pathmap/pkg/track"
)

// completionCommand creates the completion command for generating shell completions.
func (c *CLI) completionCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "completion [bash|zsh|fish|powershell]",
		Short: "Generate shell completion scripts",
		Long: `Completion prints a shell script that completes pathmap commands, tile
providers, cache backends, path colours and track files.

  $ source <(pathmap completion bash)
  $ pathmap completion zsh > "${fpath[1]}/_pathmap"
  $ pathmap completion fish | source
  PS> pathmap completion powershell | Out-String | Invoke-Expression`,
		DisableFlagsInUseLine: true,
		ValidArgs:             []string{"bash", "zsh", "fish", "powershell"},
		Args:                  cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			switch args[0] {
			case "bash":
				return cmd.Root().GenBashCompletionV2(out, true)
			case "zsh":
				return cmd.Root().GenZshCompletion(out)
			case "fish":
				return cmd.Root().GenFishCompletion(out, true)
			case "powershell":
				return cmd.Root().GenPowerShellCompletionWithDesc(out)
			}
			return nil
		},
	}

	return cmd
}

// flagCompletions maps flag names to their value completions. A flag is
// completed wherever a command defines it.
var flagCompletions = map[string]cobra.CompletionFunc{
	"provider": cobra.FixedCompletions(tiles.ProviderNames(), cobra.ShellCompDirectiveNoFileComp),
	"cache": cobra.FixedCompletions(
		[]string{config.BackendFile, config.BackendRedis, config.BackendNone},
		cobra.ShellCompDirectiveNoFileComp),
	"color":   cobra.FixedCompletions(append(plate.ColorNames(), plate.NoColor), cobra.ShellCompDirectiveNoFileComp),
	"output":  cobra.FixedCompletions([]string{"pdf"}, cobra.ShellCompDirectiveFilterFileExt),
	"png-dir": cobra.FixedCompletions(nil, cobra.ShellCompDirectiveFilterDirs),
	"config":  cobra.FixedCompletions([]string{"toml"}, cobra.ShellCompDirectiveFilterFileExt),
}

// completeTrack offers track files for the first argument.
func completeTrack(_ *cobra.Command, args []string, _ string) ([]string, cobra.ShellCompDirective) {
	if len(args) > 0 {
		return nil, cobra.ShellCompDirectiveNoFileComp
	}
	return track.Extensions(), cobra.ShellCompDirectiveFilterFileExt
}

// mustRegisterCompletions attaches flagCompletions to every command under
// root. It panics if a flag already has a completion.
func mustRegisterCompletions(root *cobra.Command) {
	var walk func(cmd *cobra.Command) error
	walk = func(cmd *cobra.Command) error {
		for name, fn := range flagCompletions {
			if cmd.NonInheritedFlags().Lookup(name) == nil {
				continue
			}
			if err := cmd.RegisterFlagCompletionFunc(name, fn); err != nil {
				return fmt.Errorf("%s --%s: %w", cmd.CommandPath(), name, err)
			}
		}
		for _, sub := range cmd.Commands() {
			if err := walk(sub); err != nil {
				return err
			}
		}
		return nil
	}
	if err := walk(root); err != nil {
		panic(err)
	}
}
