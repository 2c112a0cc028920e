package cli

import (
	"github.com/spf13/cobra"

	"github.com/matzehuels/pathmap/internal/config"
)

// configCommand creates the config command.
func (c *CLI) configCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Write or inspect the configuration file",
	}

	cmd.AddCommand(c.configInitCommand())
	cmd.AddCommand(c.configShowCommand())

	return cmd
}

// configInitCommand creates the "config init" subcommand.
func (c *CLI) configInitCommand() *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write the default configuration file",
		Long: `Init writes the built-in defaults to the file named by --config, or to
$XDG_CONFIG_HOME/pathmap/config.toml.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			path := c.configPath
			if path == "" {
				var err error
				if path, err = config.DefaultPath(); err != nil {
					return err
				}
			}
			if err := config.Write(path, config.Default(), force); err != nil {
				return err
			}
			printSuccess("Wrote configuration")
			printFile(path)
			printNextStep("Inspect the effective settings", appName+" config show")
			return nil
		},
	}
	cmd.Flags().BoolVarP(&force, "force", "f", false, "overwrite an existing file")

	return cmd
}

// configShowCommand creates the "config show" subcommand.
func (c *CLI) configShowCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration as TOML",
		Long: `Show prints the configuration after the file and PATHMAP_* environment
variables have been applied.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := c.loadConfig(cmd, nil)
			if err != nil {
				return err
			}
			if cfg.File != "" {
				cmd.PrintErrln(StyleDim.Render("# from " + cfg.File))
			}
			return cfg.Encode(cmd.OutOrStdout())
		},
	}
}
