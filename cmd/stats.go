package cmd

import (
	"fmt"
	"io"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/guilhermegouw/storyloom/internal/analytics"
	"github.com/guilhermegouw/storyloom/internal/ui"
)

func newStatsCmd() *cobra.Command {
	var reset bool

	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show usage statistics",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, false, func(a *app) error {
				if reset {
					if err := a.recorder.Reset(cmd.Context()); err != nil {
						return err
					}
					fmt.Fprintln(cmd.OutOrStdout(), "Statistics cleared.")
					return nil
				}

				ov, err := a.recorder.Overview(cmd.Context())
				if err != nil {
					return err
				}
				return printOverview(cmd.OutOrStdout(), ov)
			})
		},
	}

	cmd.Flags().BoolVar(&reset, "reset", false, "Clear all statistics")
	return cmd
}

func printOverview(w io.Writer, ov *analytics.Overview) error {
	theme := ui.CurrentTheme()

	fmt.Fprintln(w, theme.Title("Totals"))
	fmt.Fprintf(w, "  sessions %d   completed %d   words %d\n\n", ov.TotalSessions, ov.TotalCompleted, ov.TotalWords)

	if len(ov.ByType) > 0 {
		fmt.Fprintln(w, theme.Title("By type"))
		tbl := &ui.Table{Headers: []string{"TYPE", "CREATED", "COMPLETED", "WORDS", "COMPLETION"}}
		for _, t := range ov.ByType {
			tbl.Append(t.Type, strconv.Itoa(t.Created), strconv.Itoa(t.Completed), strconv.Itoa(t.Words), fmt.Sprintf("%.1f%%", t.CompletionRate))
		}
		if err := tbl.Render(w); err != nil {
			return err
		}
		fmt.Fprintln(w)
	}

	fmt.Fprintln(w, theme.Title(fmt.Sprintf("Last %d days", analytics.RecentDays)))
	recent := &ui.Table{Headers: []string{"DAY", "CREATED", "COMPLETED", "WORDS"}}
	for _, d := range ov.Recent {
		recent.Append(d.Day, strconv.Itoa(d.Created), strconv.Itoa(d.Completed), strconv.Itoa(d.Words))
	}
	if err := recent.Render(w); err != nil {
		return err
	}
	fmt.Fprintln(w)

	if len(ov.Characters) > 0 {
		fmt.Fprintln(w, theme.Title("Top characters"))
		chars := &ui.Table{Headers: []string{"NAME", "SESSIONS"}, MaxWidth: map[int]int{0: 32}}
		for _, c := range ov.Characters {
			chars.Append(c.Name, strconv.Itoa(c.Sessions))
		}
		if err := chars.Render(w); err != nil {
			return err
		}
		fmt.Fprintln(w)
	}

	fmt.Fprintln(w, theme.Title("Sanitization"))
	fmt.Fprintf(w, "  runs %d   characters removed %d   average retention %.1f%%\n",
		ov.Sanitizations, ov.CharsRemoved, ov.AverageRetention)
	return nil
}

