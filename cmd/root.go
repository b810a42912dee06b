// Package cmd provides the CLI commands for storyloom.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/guilhermegouw/storyloom/internal/apperr"
	"github.com/guilhermegouw/storyloom/internal/ui"
)

// Exit codes.
const (
	exitOK         = 0
	exitFailure    = 1
	exitValidation = 2
	exitNotFound   = 3
	exitConflict   = 4
)

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "storyloom",
		Short: "Character chats and stories from local or hosted models",
		Long: `Storyloom generates character-driven chat sessions and multi-part stories.

Sessions are persisted after every turn. Bounded stories and
character-to-character chats run in the background until their turn or
part limit is reached, and can be paused and resumed at any time.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().Bool("debug", false, "Enable debug logging to the data directory")

	cmd.AddCommand(
		newSessionCmd(),
		newStatsCmd(),
		newStatusCmd(),
		newMigrateCmd(),
		newConfigCmd(),
		newVersionCmd(),
	)

	return cmd
}

// Execute runs the root command and returns the process exit code.
func Execute() int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err := newRootCmd().ExecuteContext(ctx)
	if err == nil {
		return exitOK
	}

	return reportError(os.Stderr, err)
}

// reportError prints err and returns its exit code. Expected outcomes
// such as a missing session are printed alone; failures get a pointer
// to the debug log.
func reportError(w io.Writer, err error) int {
	theme := ui.CurrentTheme()
	if errors.Is(err, context.Canceled) {
		fmt.Fprintln(w, theme.Warn("Interrupted. Sessions keep their last saved turn."))
		return exitFailure
	}
	fmt.Fprintln(w, theme.ErrorLine("Error:", err.Error()))
	if !apperr.IsExpected(err) {
		fmt.Fprintln(w, theme.Muted("Run again with --debug to write a detailed log."))
	}
	return exitCode(err)
}

func exitCode(err error) int {
	switch apperr.KindOf(err) {
	case apperr.KindValidation:
		return exitValidation
	case apperr.KindNotFound:
		return exitNotFound
	case apperr.KindConflict:
		return exitConflict
	default:
		return exitFailure
	}
}
