package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/tidwall/gjson"

	"github.com/guilhermegouw/storyloom/internal/config"
	"github.com/guilhermegouw/storyloom/internal/ui"
)

func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Read and edit the user configuration file",
		Long: `Read and edit single fields of the user configuration file.

Keys use JSON path notation, for example:
  storyloom config set generation.provider openai
  storyloom config set providers.openai.api_key sk-...
  storyloom config set generation.workers 2
  storyloom config get options.store`,
	}

	cmd.AddCommand(newConfigGetCmd(), newConfigSetCmd())
	return cmd
}

func newConfigGetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get KEY",
		Short: "Print a configuration field",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			value, ok, err := config.GetConfigField(config.GlobalConfigPath(), args[0])
			if err != nil {
				return err
			}
			if !ok {
				return fmt.Errorf("%s is not set in %s", args[0], config.GlobalConfigPath())
			}
			fmt.Fprintln(cmd.OutOrStdout(), value)
			return nil
		},
	}
}

func newConfigSetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "set KEY VALUE",
		Short: "Set a configuration field",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := config.GlobalConfigPath()
			if err := config.SetConfigField(path, args[0], parseConfigValue(args[1])); err != nil {
				return err
			}
			cfg, err := config.LoadFromFile(path)
			if err != nil {
				return fmt.Errorf("config saved but no longer loads: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s updated in %s\n", args[0], path)
			if verr := cfg.Validate().Error(); verr != nil {
				fmt.Fprintln(cmd.ErrOrStderr(), ui.CurrentTheme().Warn(verr.Error()))
			}
			return nil
		},
	}
}

// parseConfigValue keeps numbers and booleans typed. Anything else is
// stored as a string.
func parseConfigValue(raw string) any {
	if !gjson.Valid(raw) {
		return raw
	}
	res := gjson.Parse(raw)
	switch res.Type {
	case gjson.Number, gjson.True, gjson.False:
		return res.Value()
	default:
		return raw
	}
}
