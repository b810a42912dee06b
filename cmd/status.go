package cmd

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/guilhermegouw/storyloom/internal/config"
	"github.com/guilhermegouw/storyloom/internal/debug"
	"github.com/guilhermegouw/storyloom/internal/ui"
)

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show provider, storage and configuration",
		Long: `Display the current storyloom status including:
  - Configured provider and backend
  - Session store and data directories
  - Number of character sheets and stored sessions`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, false, func(a *app) error {
				summaries, err := a.engine.List(cmd.Context())
				if err != nil {
					return err
				}
				version, err := a.db.SchemaVersion()
				if err != nil {
					return err
				}
				printStatus(cmd.OutOrStdout(), a.cfg, len(summaries), version)
				return nil
			})
		},
	}
}

func printStatus(w io.Writer, cfg *config.Config, sessions int, schema int64) {
	theme := ui.CurrentTheme()

	fmt.Fprintln(w, theme.Title("Storyloom Status"))
	fmt.Fprintln(w, theme.Muted(strings.Repeat("─", 40)))
	fmt.Fprintln(w)

	fmt.Fprintln(w, "Provider:")
	p, err := cfg.Provider()
	if err != nil {
		fmt.Fprintf(w, "  %s\n", theme.Warn(err.Error()))
	} else {
		name := p.Name
		if name == "" {
			name = p.ID
		}
		fmt.Fprintf(w, "  %s (%s) at %s\n", name, p.Type, p.BaseURL)
		fmt.Fprintf(w, "  API key: %s\n", keyStatus(p.APIKey))
	}
	fmt.Fprintf(w, "  Backend: %s\n", cfg.Generation.Backend)
	fmt.Fprintf(w, "  Workers: %d, timeout %s\n", cfg.Generation.Workers, cfg.Generation.Timeout())
	fmt.Fprintln(w)

	fmt.Fprintln(w, "Storage:")
	fmt.Fprintf(w, "  Store: %s\n", cfg.Options.Store)
	fmt.Fprintf(w, "  Sessions: %d\n", sessions)
	fmt.Fprintf(w, "  Database: %s (schema %d)\n", cfg.DatabasePath(), schema)
	fmt.Fprintf(w, "  Characters: %s (%d sheets)\n", cfg.CharactersDir(), countSheets(cfg.CharactersDir()))
	fmt.Fprintf(w, "  Presets: %s\n", cfg.PresetsDir())
	fmt.Fprintln(w)

	if result := cfg.Validate(); !result.IsValid || len(result.Warnings) > 0 {
		fmt.Fprintln(w, "Problems:")
		for _, e := range result.Errors {
			fmt.Fprintf(w, "  %s\n", theme.ErrorLine("error", e.Error()))
		}
		for _, warning := range result.WarningStrings() {
			fmt.Fprintf(w, "  %s\n", theme.Warn("warning "+warning))
		}
		fmt.Fprintln(w)
	}

	fmt.Fprintf(w, "Config File: %s\n", config.GlobalConfigPath())
	if debug.IsEnabled() {
		fmt.Fprintf(w, "Debug Log: %s\n", debug.LogPath())
	}
}

func keyStatus(key string) string {
	switch {
	case key == "":
		return "not set"
	case len(key) <= 8:
		return "set"
	default:
		return key[:4] + "…" + key[len(key)-4:]
	}
}

func countSheets(dir string) int {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return 0
	}
	n := 0
	for _, e := range entries {
		switch filepath.Ext(e.Name()) {
		case ".json", ".yaml", ".yml":
			n++
		}
	}
	return n
}
