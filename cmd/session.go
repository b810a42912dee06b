package cmd

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/atotto/clipboard"
	"github.com/spf13/cobra"

	"github.com/guilhermegouw/storyloom/internal/engine"
	"github.com/guilhermegouw/storyloom/internal/events"
	"github.com/guilhermegouw/storyloom/internal/scheduler"
	"github.com/guilhermegouw/storyloom/internal/session"
	"github.com/guilhermegouw/storyloom/internal/ui"
)

func newSessionCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "session",
		Aliases: []string{"s"},
		Short:   "Create, run and inspect sessions",
	}

	cmd.AddCommand(
		newSessionCreateCmd(),
		newSessionListCmd(),
		newSessionGetCmd(),
		newSessionDeleteCmd(),
		newSessionPauseCmd(),
		newSessionResumeCmd(),
		newSessionGenerateCmd(),
		newSessionSanitizeCmd(),
		newSessionPresetsCmd(),
	)

	return cmd
}

func newSessionCreateCmd() *cobra.Command {
	var (
		kind, mode        string
		scenario, setting string
		characters        []string
		turns             = limitFlag(session.DefaultTurns)
		parts             = limitFlag(session.DefaultParts)
		wait              bool
	)

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a session and start generating",
		Long: `Create a chat or story session.

Single-character chats are driven by 'session generate'. Stories and
multi-character chats generate in the background until their limit is
reached. A limit of "unlimited" (or 999) never completes; unlimited
sessions only get their opening and continue with 'session generate'.`,
		Example: `  storyloom session create --type story --character nova --character rex:creative --scenario "A heist on Mars"
  storyloom session create --type chat --character nova --setting "A quiet bar"
  storyloom session create --type chat --mode multi --character nova --character rex --turns 8
  storyloom session create --type story --character nova --parts unlimited`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			req := engine.CreateRequest{
				Type:     session.Type(kind),
				ChatMode: session.ChatMode(mode),
				Scenario: scenario,
				Setting:  setting,
			}
			for _, c := range characters {
				req.Participants = append(req.Participants, engine.ParseParticipantRef(c))
			}
			if cmd.Flags().Changed("turns") {
				req.Turns = turns.ptr()
			}
			if cmd.Flags().Changed("parts") {
				req.Parts = parts.ptr()
			}

			return withApp(cmd, true, func(a *app) error {
				ctx := cmd.Context()
				out := cmd.OutOrStdout()
				runs := a.hub.Run.Subscribe(ctx)

				created, err := a.engine.Create(ctx, req)
				if err != nil {
					return err
				}
				printHeader(out, created.Session)
				printTranscript(out, created.Session)

				if created.Task == nil {
					return nil
				}
				if !wait {
					fmt.Fprintln(out, ui.CurrentTheme().Muted("Generation scheduled."))
					return nil
				}
				fmt.Fprintln(out)
				return followRun(ctx, out, runs, created.Session.ID, created.Task)
			})
		},
	}

	f := cmd.Flags()
	f.StringVar(&kind, "type", string(session.TypeStory), "Session type: story or chat")
	f.StringVar(&mode, "mode", "", "Chat mode: single or multi (default single)")
	f.StringArrayVarP(&characters, "character", "c", nil, "Character id, optionally with a model preset (id:preset). Repeatable")
	f.StringVar(&scenario, "scenario", "", "Scenario or topic")
	f.StringVar(&setting, "setting", "", "Setting")
	f.Var(&turns, "turns", "Chat turn limit, or unlimited")
	f.Var(&parts, "parts", "Story part limit, or unlimited")
	f.BoolVar(&wait, "wait", true, "Print progress until the background run finishes")

	return cmd
}

// limitFlag is a turn or part limit that also accepts "unlimited".
type limitFlag int

func (l *limitFlag) String() string {
	if int(*l) == session.Unlimited {
		return "unlimited"
	}
	return strconv.Itoa(int(*l))
}

func (l *limitFlag) Set(v string) error {
	if strings.EqualFold(strings.TrimSpace(v), "unlimited") {
		*l = limitFlag(session.Unlimited)
		return nil
	}
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		return fmt.Errorf("want a number or unlimited, got %q", v)
	}
	*l = limitFlag(n)
	return nil
}

func (l *limitFlag) Type() string {
	return "limit"
}

func (l *limitFlag) ptr() *int {
	n := int(*l)
	return &n
}

func newSessionListCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List sessions, most recently updated first",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, false, func(a *app) error {
				summaries, err := a.engine.List(cmd.Context())
				if err != nil {
					return err
				}
				if len(summaries) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "No sessions yet.")
					return nil
				}

				theme := ui.CurrentTheme()
				tbl := &ui.Table{
					Headers:  []string{"ID", "TYPE", "STATUS", "TITLE", "UPDATED"},
					MaxWidth: map[int]int{3: 48},
					Style: func(col int, cell string) string {
						if col == 2 {
							return theme.Status(cell)
						}
						return cell
					},
				}
				for _, s := range summaries {
					tbl.Append(s.ID, string(s.Type), string(s.Status), s.Title, s.UpdatedAt.Local().Format(timeLayout))
				}
				return tbl.Render(cmd.OutOrStdout())
			})
		},
	}
}

func newSessionGetCmd() *cobra.Command {
	var render, asJSON, copyText bool

	cmd := &cobra.Command{
		Use:   "get ID",
		Short: "Show a session and its transcript",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, false, func(a *app) error {
				s, err := a.engine.Get(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()

				if copyText {
					if err := clipboard.WriteAll(s.Transcript()); err != nil {
						return fmt.Errorf("copying transcript: %w", err)
					}
				}

				switch {
				case asJSON:
					data, err := session.Encode(s)
					if err != nil {
						return err
					}
					fmt.Fprintln(out, string(data))
				case render:
					rendered, err := ui.NewMarkdownRenderer().Render(transcriptMarkdown(s), renderWidth)
					if err != nil {
						a.logger.Warn("markdown render failed", "session", s.ID, "error", err)
					}
					fmt.Fprint(out, rendered)
				default:
					printHeader(out, s)
					printTranscript(out, s)
				}

				if copyText {
					fmt.Fprintln(cmd.ErrOrStderr(), ui.CurrentTheme().Muted("Transcript copied to clipboard."))
				}
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&render, "render", false, "Render the transcript as markdown")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the stored document")
	cmd.Flags().BoolVar(&copyText, "copy", false, "Copy the transcript to the clipboard")
	cmd.MarkFlagsMutuallyExclusive("render", "json")

	return cmd
}

func newSessionDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "delete ID",
		Aliases: []string{"rm"},
		Short:   "Delete a session",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, false, func(a *app) error {
				if err := a.engine.Delete(cmd.Context(), args[0]); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Deleted %s\n", args[0])
				return nil
			})
		},
	}
}

func newSessionPauseCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "pause ID",
		Short: "Pause a session; running generation stops after the current turn",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, false, func(a *app) error {
				s, err := a.engine.Pause(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", s.ID, ui.CurrentTheme().Status(statusOf(s)))
				return nil
			})
		},
	}
}

func newSessionResumeCmd() *cobra.Command {
	var wait bool

	cmd := &cobra.Command{
		Use:   "resume ID",
		Short: "Resume a paused session and continue its background run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, true, func(a *app) error {
				ctx := cmd.Context()
				out := cmd.OutOrStdout()
				runs := a.hub.Run.SubscribeFiltered(ctx, func(ev events.RunEvent) bool {
					return ev.SessionID == args[0]
				})

				s, task, err := a.engine.Resume(ctx, args[0])
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "%s %s %s\n", s.ID, ui.CurrentTheme().Status(statusOf(s)), progressLabel(scheduler.ProgressOf(s)))

				if task == nil || !wait {
					return nil
				}
				return followRun(ctx, out, runs, s.ID, task)
			})
		},
	}

	cmd.Flags().BoolVar(&wait, "wait", true, "Print progress until the background run finishes")
	return cmd
}

func newSessionGenerateCmd() *cobra.Command {
	var (
		input string
		wait  bool
	)

	cmd := &cobra.Command{
		Use:   "generate ID",
		Short: "Generate the next turn of a session",
		Long: `Generate the next turn of a session.

For chats, --input is the user message. For stories it steers the next
part; a bounded story without input continues in the background until
its part limit.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, true, func(a *app) error {
				ctx := cmd.Context()
				out := cmd.OutOrStdout()
				theme := ui.CurrentTheme()
				runs := a.hub.Run.SubscribeFiltered(ctx, func(ev events.RunEvent) bool {
					return ev.SessionID == args[0]
				})

				res, err := a.engine.Generate(ctx, args[0], input)
				if res != nil && res.Paused {
					fmt.Fprintln(out, theme.Warn("Session is paused. Resume it first."))
				}
				if err != nil {
					return err
				}

				switch {
				case res.Task != nil:
					if !wait {
						fmt.Fprintln(out, theme.Muted("Generation scheduled."))
						return nil
					}
					return followRun(ctx, out, runs, args[0], res.Task)
				case res.Completed && res.Response == "":
					fmt.Fprintln(out, theme.Badge("Session already completed.", theme.Success))
					return nil
				}

				if res.Degraded {
					fmt.Fprintln(cmd.ErrOrStderr(), theme.Warn("Generation failed; showing fallback text. Nothing was saved."))
				}
				if res.Speaker != "" && !res.Degraded {
					fmt.Fprintf(out, "%s %s\n", theme.Speaker(res.Speaker+":"), res.Response)
				} else {
					fmt.Fprintln(out, res.Response)
				}
				fmt.Fprintln(out, theme.Muted("progress: "+progressLabel(res.Progress)))
				if res.Completed {
					fmt.Fprintln(out, theme.Badge("Session completed.", theme.Success))
				}
				return nil
			})
		},
	}

	cmd.Flags().StringVarP(&input, "input", "i", "", "User message or story direction")
	cmd.Flags().BoolVar(&wait, "wait", true, "Print progress until a scheduled run finishes")
	return cmd
}

func newSessionSanitizeCmd() *cobra.Command {
	var presetName string

	cmd := &cobra.Command{
		Use:   "sanitize ID",
		Short: "Clean up a story into a single polished text",
		Long: `Rewrite the whole transcript of a story with a sanitizer preset and
replace its parts with the result. When the model fails the original
text is kept as the single part.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, true, func(a *app) error {
				res, err := a.engine.Sanitize(cmd.Context(), args[0], presetName)
				if err != nil {
					return err
				}

				theme := ui.CurrentTheme()
				out := cmd.OutOrStdout()
				if !res.Applied {
					fmt.Fprintln(cmd.ErrOrStderr(), theme.Warn(fmt.Sprintf("Sanitizer failed, original text kept: %v", res.Err)))
				}
				fmt.Fprintf(out, "%s %s  %d -> %d characters\n",
					theme.Badge("sanitized", theme.Success), res.Preset, res.OriginalChars, res.CleanedChars)
				return nil
			})
		},
	}

	cmd.Flags().StringVarP(&presetName, "preset", "p", "", "Sanitizer preset (default sanitizer-balanced, see 'session presets')")
	return cmd
}

func newSessionPresetsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "presets",
		Short: "List model presets usable with --character id:preset and sanitize --preset",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, false, func(a *app) error {
				for _, name := range a.presets.Names() {
					fmt.Fprintln(cmd.OutOrStdout(), name)
				}
				return nil
			})
		},
	}
}
